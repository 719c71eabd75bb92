// Package onboarding はオンボーディング申請の受付と審査を提供する。
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/onboarding/internal/crm"
	"github.com/hitoshi/onboarding/internal/metrics"
	"github.com/hitoshi/onboarding/internal/model"
	"github.com/hitoshi/onboarding/internal/repository"
	"github.com/hitoshi/onboarding/internal/security"
)

// Provisioner はCRMサブアカウントの作成インターフェース。crm.Clientが実装する。
type Provisioner interface {
	CreateLocationWithSnapshot(ctx context.Context, params crm.LocationParams) (*crm.Location, error)
}

// Service はオンボーディング申請のサービス層。
type Service struct {
	repo        repository.SubmissionRepository
	provisioner Provisioner
	sanitizer   security.TextSanitizer
	validate    *validator.Validate
	metrics     metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	repo repository.SubmissionRepository,
	provisioner Provisioner,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Service{
		repo:        repo,
		provisioner: provisioner,
		sanitizer:   sanitizer,
		validate:    NewValidator(),
		metrics:     mc,
		now:         time.Now,
	}
}

// Submit は申請を検証してpending状態で保存し、採番されたIDを返す。
// 入力はマークアップを除去してから検証する。国コード未指定時はUSとする。
func (s *Service) Submit(ctx context.Context, in model.NewSubmission) (int64, error) {
	in = s.sanitize(in)
	if in.Country == "" {
		in.Country = model.DefaultCountry
	}

	if err := Validate(s.validate, in); err != nil {
		return 0, err
	}

	sub := &model.Submission{
		CompanyName:    in.CompanyName,
		CompanyPhone:   in.CompanyPhone,
		CompanyEmail:   in.CompanyEmail,
		CompanyWebsite: optional(in.CompanyWebsite),
		CompanyAddress: in.CompanyAddress,
		City:           in.City,
		State:          strings.ToUpper(in.State),
		PostalCode:     in.PostalCode,
		Country:        strings.ToUpper(in.Country),
		OwnerFirstName: in.OwnerFirstName,
		OwnerLastName:  in.OwnerLastName,
		OwnerEmail:     in.OwnerEmail,
		OwnerPhone:     in.OwnerPhone,
		BusinessHours:  optional(in.BusinessHours),
	}

	id, err := s.repo.Create(ctx, sub)
	if err != nil {
		return 0, fmt.Errorf("failed to create submission: %w", err)
	}

	s.metrics.RecordSubmissionCreated()
	slog.Info("submission created",
		slog.Int64("submission_id", id),
		slog.String("company_name", sub.CompanyName),
	)
	return id, nil
}

// List は全申請を作成日時の昇順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Submission, error) {
	submissions, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, nil
}

// Get は申請を取得する。存在しない場合はNotFoundErrorを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Submission, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubmissionNotFoundError(id)
	}
	return sub, nil
}

// Approve は申請を承認し、CRMにサブアカウントを作成する。作成したロケーションIDを返す。
// 承認済みの申請はCRMを呼び出さずにConflictErrorを返す。
// CRM呼び出しが失敗した場合、申請はpendingのまま残りエラーを返す。
// ステータス更新は承認済みでないことを条件とし、同時承認で後れた側はConflictErrorとなる。
func (s *Service) Approve(ctx context.Context, id int64, reviewer *model.User) (string, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if sub.Status == model.SubmissionStatusApproved {
		return "", model.NewAlreadyApprovedError()
	}

	location, err := s.provisioner.CreateLocationWithSnapshot(ctx, locationParams(sub))
	if err != nil {
		return "", fmt.Errorf("failed to provision crm location: %w", err)
	}

	updated, err := s.repo.MarkApproved(ctx, id, location.ID, reviewerID(reviewer), s.now())
	if err != nil {
		slog.Error("crm location created but approval was not recorded",
			slog.Int64("submission_id", id),
			slog.String("location_id", location.ID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to approve submission: %w", err)
	}
	if !updated {
		slog.Error("submission approved concurrently; crm location is orphaned",
			slog.Int64("submission_id", id),
			slog.String("location_id", location.ID),
		)
		return "", model.NewAlreadyApprovedError()
	}

	s.metrics.RecordSubmissionReviewed(string(model.SubmissionStatusApproved))
	slog.Info("submission approved",
		slog.Int64("submission_id", id),
		slog.String("location_id", location.ID),
		slog.String("reviewer", reviewerOpenID(reviewer)),
	)
	return location.ID, nil
}

// Reject は申請を却下する。現在の状態に関わらずrejectedにするため、繰り返し呼び出してもエラーにならない。
// 承認済みだった場合、CRMロケーションIDはクリアされ、CRM側のサブアカウントは残る。
func (s *Service) Reject(ctx context.Context, id int64, reviewer *model.User) error {
	previous, found, err := s.repo.MarkRejected(ctx, id, reviewerID(reviewer), s.now())
	if err != nil {
		return fmt.Errorf("failed to reject submission: %w", err)
	}
	if !found {
		return model.NewSubmissionNotFoundError(id)
	}

	if previous != nil {
		slog.Warn("approved submission rejected; crm location left in place",
			slog.Int64("submission_id", id),
			slog.String("location_id", *previous),
		)
	}

	s.metrics.RecordSubmissionReviewed(string(model.SubmissionStatusRejected))
	slog.Info("submission rejected",
		slog.Int64("submission_id", id),
		slog.String("reviewer", reviewerOpenID(reviewer)),
	)
	return nil
}

// sanitize は全ての文字列フィールドからマークアップを除去する。
func (s *Service) sanitize(in model.NewSubmission) model.NewSubmission {
	if s.sanitizer == nil {
		return in
	}
	for _, f := range []*string{
		&in.CompanyName, &in.CompanyPhone, &in.CompanyEmail, &in.CompanyWebsite,
		&in.CompanyAddress, &in.City, &in.State, &in.PostalCode, &in.Country,
		&in.OwnerFirstName, &in.OwnerLastName, &in.OwnerEmail, &in.OwnerPhone,
		&in.BusinessHours,
	} {
		*f = s.sanitizer.Sanitize(*f)
	}
	return in
}

func locationParams(sub *model.Submission) crm.LocationParams {
	params := crm.LocationParams{
		Name:       sub.CompanyName,
		Email:      sub.CompanyEmail,
		Phone:      sub.CompanyPhone,
		Address:    sub.CompanyAddress,
		City:       sub.City,
		State:      sub.State,
		PostalCode: sub.PostalCode,
		Country:    sub.Country,
		Timezone:   crm.DefaultTimezone,
	}
	if sub.CompanyWebsite != nil {
		params.Website = *sub.CompanyWebsite
	}
	return params
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func reviewerID(u *model.User) *int64 {
	if u == nil || u.ID == 0 {
		return nil
	}
	id := u.ID
	return &id
}

func reviewerOpenID(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.OpenID
}
