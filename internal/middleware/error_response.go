package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/onboarding/internal/model"
)

// ErrorResponseBody はRPC以外のエンドポイント（OAuthコールバック等）のエラーレスポンス形式。
// errorにはクライアント向けのメッセージ、それ以外は原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
	Action   string `json:"action,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error:    apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteInternalServerErrorMessage(w, "Internal server error")
}

// WriteInternalServerErrorMessage は指定メッセージで500レスポンスを書き込む。
func WriteInternalServerErrorMessage(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  message,
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
