// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/onboarding/internal/auth"
	"github.com/hitoshi/onboarding/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// Authenticator はセッションCookieの値からユーザーを解決するインターフェース。
// auth.Serviceが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, cookieValue string) (*model.User, error)
}

// NewAuthMiddleware はセッションCookieからユーザーを解決し、リクエストコンテキストに注入するミドルウェアを返す。
// 認証に失敗してもリクエストは拒否せず、匿名として後続に渡す。
// 認証の要否は後続のハンドラーが判断する。
func NewAuthMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Cookieヘッダーがない場合は空文字列として扱う
			var token string
			if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
				token = cookie.Value
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				slog.Warn("request treated as unauthenticated",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				user = nil
			}

			if user != nil {
				annotateUser(r.Context(), user.OpenID)
				r = r.WithContext(ContextWithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 匿名リクエストの場合はnilを返す。
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
