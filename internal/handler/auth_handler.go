// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/onboarding/internal/middleware"
	"github.com/hitoshi/onboarding/internal/model"
)

// AuthServiceInterface はOAuthコールバックハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	HandleCallback(ctx context.Context, code, state string) (string, error)
	SessionTTL() time.Duration
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// Callback はOAuthコールバックを処理する。
// GET /api/oauth/callback?code=xxx&state=yyy
//
// 認可コードをアクセストークンに交換してユーザーを登録し、
// セッションCookieを設定してトップページにリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("code and state are required"))
		return
	}

	token, err := h.service.HandleCallback(r.Context(), code, state)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeIncompleteProfile {
			slog.Warn("oauth callback rejected", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}

		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerErrorMessage(w, "OAuth callback failed")
		return
	}

	setSessionCookie(w, r, token, h.service.SessionTTL())
	http.Redirect(w, r, "/", http.StatusFound)
}
