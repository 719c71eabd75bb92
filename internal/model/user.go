// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。オーナーIDと一致するユーザーに自動付与される。
	RoleAdmin Role = "admin"
)

// User は外部IdPで認証されたユーザーのローカルレコードを表す。
// OpenIDが外部IdPのユーザー識別子で、1つのOpenIDに対してUserは高々1件。
type User struct {
	ID           int64
	OpenID       string
	Name         *string
	Email        *string
	LoginMethod  *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSignedIn time.Time
}

// IsAdmin は管理者権限を持つかどうかを返す。
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Field は部分更新における1フィールドの値を表す。
// Setがfalseの場合は「変更しない」、SetがtrueでValueがnilの場合は「NULLに更新する」を意味する。
type Field[T any] struct {
	Set   bool
	Value *T
}

// Keep は変更しないフィールドを返す。
func Keep[T any]() Field[T] {
	return Field[T]{}
}

// SetTo は指定値に更新するフィールドを返す。
func SetTo[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: &v}
}

// SetNull はNULLに更新するフィールドを返す。
func SetNull[T any]() Field[T] {
	return Field[T]{Set: true}
}

// SetOrNull は空文字列をNULLとして扱う文字列フィールドを返す。
func SetOrNull(v string) Field[string] {
	if v == "" {
		return SetNull[string]()
	}
	return SetTo(v)
}

// UserUpsert はユーザーのUPSERT入力を表す。
// OpenIDのみ必須で、それ以外はSetが立っているフィールドのみ書き込まれる。
type UserUpsert struct {
	OpenID       string
	Name         Field[string]
	Email        Field[string]
	LoginMethod  Field[string]
	Role         Field[Role]
	LastSignedIn Field[time.Time]
}

// Session は署名付きセッショントークンから復元されたセッション情報を表す。
// サーバー側には永続化されない。
type Session struct {
	OpenID    string
	AppID     string
	Name      string
	ExpiresAt time.Time
}
