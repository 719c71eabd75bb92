package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/onboarding/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	store DBProvider
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(store DBProvider) *PostgresUserRepo {
	return &PostgresUserRepo{store: store}
}

const userColumns = `id, open_id, name, email, login_method, role, created_at, updated_at, last_signed_in`

// FindByOpenID は外部IdPのユーザーIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByOpenID(ctx context.Context, openID string) (*model.User, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, err
	}

	var (
		u                        model.User
		name, email, loginMethod sql.NullString
		role                     string
	)
	err = db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE open_id = $1 LIMIT 1`,
		openID,
	).Scan(&u.ID, &u.OpenID, &name, &email, &loginMethod, &role, &u.CreatedAt, &u.UpdatedAt, &u.LastSignedIn)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by open_id: %w", err)
	}

	u.Name = nullStringPtr(name)
	u.Email = nullStringPtr(email)
	u.LoginMethod = nullStringPtr(loginMethod)
	u.Role = model.Role(role)
	return &u, nil
}

// Upsert はopen_idをキーにユーザーを作成または更新する。
// INSERT時に指定のないカラムはDBの既定値（role='user', last_signed_in=now()）になる。
// UPDATE時はSetが立っているカラムのみを上書きする。
func (r *PostgresUserRepo) Upsert(ctx context.Context, in model.UserUpsert) error {
	if in.OpenID == "" {
		return model.NewMissingOpenIDError()
	}

	db, err := r.store.DB()
	if err != nil {
		return err
	}

	query, args := buildUserUpsert(in)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// buildUserUpsert はUserUpsertからINSERT ... ON CONFLICT文と引数を組み立てる。
func buildUserUpsert(in model.UserUpsert) (string, []any) {
	columns := []string{"open_id"}
	args := []any{in.OpenID}

	add := func(column string, set bool, value any) {
		if !set {
			return
		}
		columns = append(columns, column)
		args = append(args, value)
	}

	add("name", in.Name.Set, stringPtrValue(in.Name.Value))
	add("email", in.Email.Set, stringPtrValue(in.Email.Value))
	add("login_method", in.LoginMethod.Set, stringPtrValue(in.LoginMethod.Value))
	if in.Role.Set && in.Role.Value != nil {
		add("role", true, string(*in.Role.Value))
	}
	if in.LastSignedIn.Set && in.LastSignedIn.Value != nil {
		add("last_signed_in", true, *in.LastSignedIn.Value)
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	updates := make([]string, 0, len(columns))
	for _, c := range columns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	updates = append(updates, "updated_at = now()")

	query := fmt.Sprintf(
		`INSERT INTO users (%s) VALUES (%s) ON CONFLICT (open_id) DO UPDATE SET %s`,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
	return query, args
}

// stringPtrValue はnilをSQL NULLとして渡せる値に変換する。
func stringPtrValue(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
