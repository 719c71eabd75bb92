// Package model はドメインモデルを定義する。
package model

import "time"

// SubmissionStatus はオンボーディング申請の審査状態を表す。
type SubmissionStatus string

const (
	// SubmissionStatusPending は審査待ち。申請作成時の初期状態。
	SubmissionStatusPending SubmissionStatus = "pending"
	// SubmissionStatusApproved は承認済み。CRMロケーションIDが設定される。
	SubmissionStatusApproved SubmissionStatus = "approved"
	// SubmissionStatusRejected は却下済み。
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// DefaultCountry は国コード未指定時の既定値。
const DefaultCountry = "US"

// Submission は企業のオンボーディング申請を表す。
// GHLLocationIDはStatusがapprovedの場合のみ設定される。
type Submission struct {
	ID int64

	CompanyName    string
	CompanyPhone   string
	CompanyEmail   string
	CompanyWebsite *string

	CompanyAddress string
	City           string
	State          string
	PostalCode     string
	Country        string

	OwnerFirstName string
	OwnerLastName  string
	OwnerEmail     string
	OwnerPhone     string

	BusinessHours *string

	Status        SubmissionStatus
	GHLLocationID *string
	AdminNotes    *string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ReviewedAt *time.Time
	ReviewedBy *int64
}

// NewSubmission は申請フォームの入力値を表す。
// 永続化前の未検証データで、サニタイズと検証を経てSubmissionになる。
type NewSubmission struct {
	CompanyName    string `json:"companyName" validate:"required,max=255"`
	CompanyPhone   string `json:"companyPhone" validate:"required,max=50"`
	CompanyEmail   string `json:"companyEmail" validate:"required,email,max=320"`
	CompanyWebsite string `json:"companyWebsite" validate:"max=500"`
	CompanyAddress string `json:"companyAddress" validate:"required,max=500"`
	City           string `json:"city" validate:"required,max=100"`
	State          string `json:"state" validate:"required,len=2,alpha"`
	PostalCode     string `json:"postalCode" validate:"required,max=10"`
	Country        string `json:"country" validate:"len=2,alpha"`
	OwnerFirstName string `json:"ownerFirstName" validate:"required,max=100"`
	OwnerLastName  string `json:"ownerLastName" validate:"required,max=100"`
	OwnerEmail     string `json:"ownerEmail" validate:"required,email,max=320"`
	OwnerPhone     string `json:"ownerPhone" validate:"required,max=50"`
	BusinessHours  string `json:"businessHours"`
}
