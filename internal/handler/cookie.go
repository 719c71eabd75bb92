package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/onboarding/internal/auth"
)

// isSecureRequest はリクエストがHTTPS経由で到達したかどうかを返す。
// TLS終端がリバースプロキシの場合はX-Forwarded-Protoで判定する。
func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}

	forwarded := r.Header.Values("X-Forwarded-Proto")
	for _, value := range forwarded {
		for _, proto := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(proto), "https") {
				return true
			}
		}
	}
	return false
}

// sessionCookie はセッションCookieの共通属性を設定したCookieを返す。
// クロスオリジンのフロントエンドから送信させるためSameSite=Noneとする。
func sessionCookie(r *http.Request, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteNoneMode,
	}
}

// setSessionCookie はログイン時のセッションCookieを設定する。
func setSessionCookie(w http.ResponseWriter, r *http.Request, token string, ttl time.Duration) {
	http.SetCookie(w, sessionCookie(r, token, int(ttl/time.Second)))
}

// clearSessionCookie はセッションCookieを即時失効させる。
func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sessionCookie(r, "", -1))
}
