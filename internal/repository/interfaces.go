// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/onboarding/internal/model"
)

// DBProvider は接続済みのsql.DBを提供するインターフェース。
// database.Storeが実装する。未接続の場合はmodel.ErrUnavailableをラップしたエラーを返す。
type DBProvider interface {
	DB() (*sql.DB, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByOpenID は外部IdPのユーザーIDでユーザーを取得する。見つからない場合はnilを返す。
	FindByOpenID(ctx context.Context, openID string) (*model.User, error)

	// Upsert はopen_idをキーにユーザーを作成または更新する。
	// Setが立っているフィールドのみを書き込み、それ以外の既存値は変更しない。
	Upsert(ctx context.Context, in model.UserUpsert) error
}

// SubmissionRepository はオンボーディング申請の永続化インターフェース。
type SubmissionRepository interface {
	// Create は申請をpending状態で作成し、採番されたIDを返す。
	Create(ctx context.Context, s *model.Submission) (int64, error)

	// List は全申請を作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.Submission, error)

	// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Submission, error)

	// MarkApproved は承認済みでない申請をapprovedに更新し、CRMロケーションIDを記録する。
	// 既に承認済みの場合は更新せずfalseを返す。
	MarkApproved(ctx context.Context, id int64, locationID string, reviewedBy *int64, at time.Time) (bool, error)

	// MarkRejected は申請をrejectedに更新する。現在の状態は問わない。
	// 申請が存在しない場合はfound=falseを返す。
	// 承認済みだった場合はクリアしたCRMロケーションIDをpreviousLocationIDとして返す。
	MarkRejected(ctx context.Context, id int64, reviewedBy *int64, at time.Time) (previousLocationID *string, found bool, err error)
}
