package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/onboarding/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookie名。
const SessionCookieName = "app_session_id"

// DefaultSessionTTL はセッショントークンの既定の有効期間（1年）。
const DefaultSessionTTL = 365 * 24 * time.Hour

// sessionClaims はセッショントークンのJWTクレーム。
type sessionClaims struct {
	OpenID string `json:"openId"`
	AppID  string `json:"appId"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// SessionCodec はHS256署名付きセッショントークンの発行と検証を行う。
type SessionCodec struct {
	secret []byte
	appID  string
	now    func() time.Time
}

// NewSessionCodec はSessionCodecを生成する。秘密鍵が空の場合はConfigurationErrorを返す。
func NewSessionCodec(secret, appID string) (*SessionCodec, error) {
	if secret == "" {
		return nil, model.NewConfigurationError("JWT_SECRET is not configured")
	}
	return &SessionCodec{
		secret: []byte(secret),
		appID:  appID,
		now:    time.Now,
	}, nil
}

// Issue はセッショントークンを発行する。ttlが0以下の場合はDefaultSessionTTLを使用する。
func (c *SessionCodec) Issue(openID, name string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	claims := sessionClaims{
		OpenID: openID,
		AppID:  c.appID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(c.now().Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Verify はセッショントークンを検証し、Sessionを返す。
// 未指定・署名不一致・期限切れ・必須クレーム欠落のいずれの場合もnilを返す。
// 理由はログにのみ記録し、呼び出し元には返さない。
func (c *SessionCodec) Verify(token string) *model.Session {
	if token == "" {
		slog.Warn("missing session cookie")
		return nil
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		slog.Warn("session verification failed", slog.String("reason", verifyFailureReason(err)))
		return nil
	}

	if claims.OpenID == "" || claims.AppID == "" || claims.Name == "" {
		slog.Warn("session payload missing required fields")
		return nil
	}

	return &model.Session{
		OpenID:    claims.OpenID,
		AppID:     claims.AppID,
		Name:      claims.Name,
		ExpiresAt: claims.ExpiresAt.Time,
	}
}

// verifyFailureReason はログ用の失敗理由を返す。トークン本体は含めない。
func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_expiration"
	default:
		return "invalid"
	}
}
