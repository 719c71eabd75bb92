// Package user はローカルユーザーディレクトリのドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/onboarding/internal/auth"
	"github.com/hitoshi/onboarding/internal/model"
	"github.com/hitoshi/onboarding/internal/repository"
)

// Directory は外部IdPのユーザーIDをキーとするローカルユーザーの参照と更新を提供する。
// DB利用不可は読み取りでは「未登録」、書き込みでは「何もしない」として扱う。
type Directory struct {
	repo        repository.UserRepository
	ownerOpenID string
	now         func() time.Time
}

// NewDirectory はDirectoryを生成する。ownerOpenIDに一致するユーザーは自動的にadminになる。
func NewDirectory(repo repository.UserRepository, ownerOpenID string) *Directory {
	return &Directory{
		repo:        repo,
		ownerOpenID: ownerOpenID,
		now:         time.Now,
	}
}

// Upsert はユーザーを作成または更新する。
// OpenIDが空の場合はDBの状態に関わらずValidationErrorを返す。
// 書き込むフィールドが1つもない場合は最終ログイン日時を現在時刻で更新する。
func (d *Directory) Upsert(ctx context.Context, in model.UserUpsert) error {
	if in.OpenID == "" {
		return model.NewMissingOpenIDError()
	}

	in.Role = auth.AssignRole(in.OpenID, d.ownerOpenID, in.Role)
	if !hasWritableField(in) {
		in.LastSignedIn = model.SetTo(d.now())
	}

	err := d.repo.Upsert(ctx, in)
	if errors.Is(err, model.ErrUnavailable) {
		slog.Warn("cannot upsert user: database not available",
			slog.String("open_id", in.OpenID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// FindByOpenID はユーザーを取得する。未登録またはDB利用不可の場合はnilを返す。
func (d *Directory) FindByOpenID(ctx context.Context, openID string) (*model.User, error) {
	user, err := d.repo.FindByOpenID(ctx, openID)
	if errors.Is(err, model.ErrUnavailable) {
		slog.Warn("cannot get user: database not available",
			slog.String("open_id", openID),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func hasWritableField(in model.UserUpsert) bool {
	return in.Name.Set ||
		in.Email.Set ||
		in.LoginMethod.Set ||
		(in.Role.Set && in.Role.Value != nil) ||
		(in.LastSignedIn.Set && in.LastSignedIn.Value != nil)
}

// compile-time interface check
var _ auth.UserDirectory = (*Directory)(nil)
