// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// エラー種別。errors.Isで判定する。
var (
	ErrValidation    = errors.New("validation error")
	ErrAuth          = errors.New("authentication error")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUpstream      = errors.New("upstream error")
	ErrConfiguration = errors.New("configuration error")
	ErrUnavailable   = errors.New("datastore unavailable")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, onboarding, system
	Action   string // ユーザー向け対処方法
	Kind     error  // エラー種別（ErrValidation等）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap はエラー種別を返す。
func (e *APIError) Unwrap() error {
	return e.Kind
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeNotAdmin           = "NOT_ADMIN"
	ErrCodeSubmissionNotFound = "SUBMISSION_NOT_FOUND"
	ErrCodeAlreadyApproved    = "ALREADY_APPROVED"
	ErrCodeNotConfigured      = "NOT_CONFIGURED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeMissingOpenID      = "MISSING_OPEN_ID"
	ErrCodeIncompleteProfile  = "INCOMPLETE_PROFILE"
)

// 認可エラーのメッセージ。クライアントが文言で判定するため固定値とする。
const (
	UnauthenticatedMessage = "Please login (10001)"
	NotAdminMessage        = "You do not have required permission (10002)"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
		Kind:     ErrValidation,
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  UnauthenticatedMessage,
		Category: "auth",
		Action:   "ログインしてください。",
		Kind:     ErrAuth,
	}
}

// NewNotAdminError は管理者権限不足エラーを生成する。
func NewNotAdminError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAdmin,
		Message:  NotAdminMessage,
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
		Kind:     ErrForbidden,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "ログインし直してください。",
		Kind:     ErrAuth,
	}
}

// NewMissingOpenIDError はOpenIDが指定されていない場合のエラーを生成する。
func NewMissingOpenIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingOpenID,
		Message:  "User openId is required for upsert",
		Category: "validation",
		Action:   "外部IdPのユーザーIDを指定してください。",
		Kind:     ErrValidation,
	}
}

// NewIncompleteProfileError は外部IdPのプロフィールにユーザーIDが含まれない場合のエラーを生成する。
func NewIncompleteProfileError() *APIError {
	return &APIError{
		Code:     ErrCodeIncompleteProfile,
		Message:  "openId missing from user info",
		Category: "auth",
		Action:   "再度ログインしてください。",
		Kind:     ErrValidation,
	}
}

// NewSubmissionNotFoundError は申請が見つからない場合のエラーを生成する。
func NewSubmissionNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionNotFound,
		Message:  fmt.Sprintf("Submission not found: %d", id),
		Category: "onboarding",
		Action:   "申請IDを確認してください。",
		Kind:     ErrNotFound,
	}
}

// NewAlreadyApprovedError は承認済み申請の再承認エラーを生成する。
func NewAlreadyApprovedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyApproved,
		Message:  "Submission already approved",
		Category: "onboarding",
		Action:   "申請一覧を再読み込みしてください。",
		Kind:     ErrConflict,
	}
}

// NewConfigurationError は必須設定が未設定の場合のエラーを生成する。
// 詳細はログにのみ残し、クライアントには内部エラーとして返される。
func NewConfigurationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeNotConfigured,
		Message:  message,
		Category: "system",
		Action:   "管理者に連絡してください。",
		Kind:     ErrConfiguration,
	}
}

// UpstreamError は外部サービス（IdP、CRM、通知）の呼び出し失敗を表す。
// StatusCodeが0の場合はネットワークエラー等でレスポンスを受信できなかったことを示す。
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s API Error: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s API Error (%d): %s", e.Service, e.StatusCode, e.Body)
}

// Unwrap は原因エラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is はErrUpstreamとの比較を可能にする。
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}
