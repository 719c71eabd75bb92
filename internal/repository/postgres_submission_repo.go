package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/onboarding/internal/model"
)

// PostgresSubmissionRepo はPostgreSQLを使用したオンボーディング申請リポジトリ。
type PostgresSubmissionRepo struct {
	store DBProvider
}

// NewPostgresSubmissionRepo はPostgresSubmissionRepoを生成する。
func NewPostgresSubmissionRepo(store DBProvider) *PostgresSubmissionRepo {
	return &PostgresSubmissionRepo{store: store}
}

const submissionColumns = `id, company_name, company_phone, company_email, company_website,
	company_address, city, state, postal_code, country,
	owner_first_name, owner_last_name, owner_email, owner_phone,
	business_hours, status, ghl_location_id, admin_notes,
	created_at, updated_at, reviewed_at, reviewed_by`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var (
		s                               model.Submission
		website, hours, location, notes sql.NullString
		status                          string
		reviewedAt                      sql.NullTime
		reviewedBy                      sql.NullInt64
	)
	err := row.Scan(
		&s.ID, &s.CompanyName, &s.CompanyPhone, &s.CompanyEmail, &website,
		&s.CompanyAddress, &s.City, &s.State, &s.PostalCode, &s.Country,
		&s.OwnerFirstName, &s.OwnerLastName, &s.OwnerEmail, &s.OwnerPhone,
		&hours, &status, &location, &notes,
		&s.CreatedAt, &s.UpdatedAt, &reviewedAt, &reviewedBy,
	)
	if err != nil {
		return nil, err
	}

	s.CompanyWebsite = nullStringPtr(website)
	s.BusinessHours = nullStringPtr(hours)
	s.GHLLocationID = nullStringPtr(location)
	s.AdminNotes = nullStringPtr(notes)
	s.Status = model.SubmissionStatus(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		s.ReviewedAt = &t
	}
	if reviewedBy.Valid {
		id := reviewedBy.Int64
		s.ReviewedBy = &id
	}
	return &s, nil
}

// Create は申請をpending状態で作成し、採番されたIDを返す。
// sのID、Status、CreatedAt、UpdatedAtはDBの値で上書きされる。
func (r *PostgresSubmissionRepo) Create(ctx context.Context, s *model.Submission) (int64, error) {
	db, err := r.store.DB()
	if err != nil {
		return 0, err
	}

	country := s.Country
	if country == "" {
		country = model.DefaultCountry
	}

	err = db.QueryRowContext(ctx,
		`INSERT INTO onboarding_submissions (
			company_name, company_phone, company_email, company_website,
			company_address, city, state, postal_code, country,
			owner_first_name, owner_last_name, owner_email, owner_phone,
			business_hours, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`,
		s.CompanyName, s.CompanyPhone, s.CompanyEmail, stringPtrValue(s.CompanyWebsite),
		s.CompanyAddress, s.City, s.State, s.PostalCode, country,
		s.OwnerFirstName, s.OwnerLastName, s.OwnerEmail, s.OwnerPhone,
		stringPtrValue(s.BusinessHours), string(model.SubmissionStatusPending),
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert submission: %w", err)
	}

	s.Country = country
	s.Status = model.SubmissionStatusPending
	return s.ID, nil
}

// List は全申請を作成日時の昇順で返す。
func (r *PostgresSubmissionRepo) List(ctx context.Context) ([]*model.Submission, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM onboarding_submissions ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	submissions := make([]*model.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}

	return submissions, nil
}

// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
func (r *PostgresSubmissionRepo) FindByID(ctx context.Context, id int64) (*model.Submission, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, err
	}

	s, err := scanSubmission(db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM onboarding_submissions WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find submission by ID: %w", err)
	}
	return s, nil
}

// MarkApproved は承認済みでない申請をapprovedに更新し、CRMロケーションIDを記録する。
// status <> 'approved' を条件とする条件付き更新のため、同時承認のうち1件のみが成功する。
func (r *PostgresSubmissionRepo) MarkApproved(ctx context.Context, id int64, locationID string, reviewedBy *int64, at time.Time) (bool, error) {
	db, err := r.store.DB()
	if err != nil {
		return false, err
	}

	result, err := db.ExecContext(ctx,
		`UPDATE onboarding_submissions
		 SET status = 'approved', ghl_location_id = $2, reviewed_at = $3, reviewed_by = $4, updated_at = now()
		 WHERE id = $1 AND status <> 'approved'`,
		id, locationID, at, int64PtrValue(reviewedBy),
	)
	if err != nil {
		return false, fmt.Errorf("failed to approve submission: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// MarkRejected は申請をrejectedに更新する。現在の状態は問わない。
// approved以外ではCRMロケーションIDを保持できないため、設定済みの場合はクリアして旧値を返す。
func (r *PostgresSubmissionRepo) MarkRejected(ctx context.Context, id int64, reviewedBy *int64, at time.Time) (*string, bool, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, false, err
	}

	var previous sql.NullString
	err = db.QueryRowContext(ctx,
		`UPDATE onboarding_submissions AS s
		 SET status = 'rejected', ghl_location_id = NULL, reviewed_at = $2, reviewed_by = $3, updated_at = now()
		 FROM (SELECT id, ghl_location_id FROM onboarding_submissions WHERE id = $1 FOR UPDATE) AS old
		 WHERE s.id = old.id
		 RETURNING old.ghl_location_id`,
		id, at, int64PtrValue(reviewedBy),
	).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to reject submission: %w", err)
	}

	return nullStringPtr(previous), true, nil
}

func int64PtrValue(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// compile-time interface check
var _ SubmissionRepository = (*PostgresSubmissionRepo)(nil)
