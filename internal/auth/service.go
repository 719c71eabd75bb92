// Package auth はOAuth認証フロー、セッショントークン、リクエスト認証を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/onboarding/internal/metrics"
	"github.com/hitoshi/onboarding/internal/model"
)

// IdentityProvider は外部IdPのインターフェース。
type IdentityProvider interface {
	// ExchangeCode は認可コードをアクセストークンに交換する。
	ExchangeCode(ctx context.Context, code, state string) (*TokenResponse, error)
	// GetUserInfo はアクセストークンでユーザー情報を取得する。
	GetUserInfo(ctx context.Context, accessToken string) (*Profile, error)
	// GetUserInfoByJWT はセッショントークンでユーザー情報を取得する。
	GetUserInfoByJWT(ctx context.Context, sessionToken string) (*Profile, error)
}

// UserDirectory はローカルユーザーの参照と更新のインターフェース。
// user.Directoryが実装する。
type UserDirectory interface {
	// FindByOpenID はユーザーを取得する。未登録またはDB利用不可の場合はnilを返す。
	FindByOpenID(ctx context.Context, openID string) (*model.User, error)
	// Upsert はユーザーを作成または更新する。
	Upsert(ctx context.Context, in model.UserUpsert) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL time.Duration
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	codec     *SessionCodec
	idp       IdentityProvider
	directory UserDirectory
	metrics   metrics.MetricsCollector
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	codec *SessionCodec,
	idp IdentityProvider,
	directory UserDirectory,
	mc metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Service{
		codec:     codec,
		idp:       idp,
		directory: directory,
		metrics:   mc,
		config:    config,
		now:       time.Now,
	}
}

// SessionTTL はセッショントークンとCookieの有効期間を返す。
func (s *Service) SessionTTL() time.Duration {
	return s.config.SessionTTL
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// ユーザーレコードは毎回UPSERTされ、プロフィールと最終ログイン日時が更新される。
func (s *Service) HandleCallback(ctx context.Context, code, state string) (string, error) {
	// 1. 認可コードをアクセストークンに交換
	token, err := s.idp.ExchangeCode(ctx, code, state)
	if err != nil {
		return "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	profile, err := s.idp.GetUserInfo(ctx, token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to fetch user info: %w", err)
	}
	if profile.OpenID == "" {
		return "", model.NewIncompleteProfileError()
	}

	// 3. ローカルユーザーを作成または更新
	if err := s.directory.Upsert(ctx, profileUpsert(profile, s.now())); err != nil {
		return "", fmt.Errorf("failed to upsert user: %w", err)
	}

	// 4. セッショントークンを発行
	sessionToken, err := s.codec.Issue(profile.OpenID, profile.Name, s.config.SessionTTL)
	if err != nil {
		return "", err
	}

	slog.Info("user logged in",
		slog.String("open_id", profile.OpenID),
		slog.String("login_method", stringOrEmpty(profile.LoginMethod)),
	)
	return sessionToken, nil
}

// Authenticate はセッションCookieの値からリクエストのユーザーを解決する。
// Cookieが空の場合はnil, nilを返す。
// トークンが無効な場合、ユーザー同期に失敗した場合、同期後もユーザーが存在しない場合は
// model.ErrAuthをラップしたエラーを返す。呼び出し元は匿名リクエストとして扱う。
func (s *Service) Authenticate(ctx context.Context, cookieValue string) (*model.User, error) {
	if cookieValue == "" {
		s.metrics.RecordAuthOutcome(metrics.AuthAnonymous)
		return nil, nil
	}

	session := s.codec.Verify(cookieValue)
	if session == nil {
		s.metrics.RecordAuthOutcome(metrics.AuthInvalidSession)
		return nil, fmt.Errorf("%w: invalid session cookie", model.ErrAuth)
	}

	signedInAt := s.now()

	user, err := s.directory.FindByOpenID(ctx, session.OpenID)
	if err != nil {
		s.metrics.RecordAuthOutcome(metrics.AuthSyncFailed)
		return nil, fmt.Errorf("%w: failed to look up user: %w", model.ErrAuth, err)
	}

	// 未登録ユーザーはIdPから遅延同期する
	if user == nil {
		user, err = s.syncUser(ctx, cookieValue, signedInAt)
		if err != nil {
			s.metrics.RecordAuthOutcome(metrics.AuthSyncFailed)
			return nil, fmt.Errorf("%w: failed to sync user info: %w", model.ErrAuth, err)
		}
	}

	if user == nil {
		s.metrics.RecordAuthOutcome(metrics.AuthUserNotFound)
		return nil, model.NewUserNotFoundError()
	}

	// 最終ログイン日時の更新は失敗しても認証結果に影響させない
	touch := model.UserUpsert{OpenID: user.OpenID, LastSignedIn: model.SetTo(signedInAt)}
	if err := s.directory.Upsert(ctx, touch); err != nil {
		slog.Warn("failed to update last signed in",
			slog.String("open_id", user.OpenID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastSignedIn = signedInAt
	}

	s.metrics.RecordAuthOutcome(metrics.AuthAuthenticated)
	return user, nil
}

// syncUser はセッショントークンでIdPからユーザー情報を取得してUPSERTし、再取得する。
func (s *Service) syncUser(ctx context.Context, sessionToken string, signedInAt time.Time) (*model.User, error) {
	profile, err := s.idp.GetUserInfoByJWT(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if profile.OpenID == "" {
		return nil, model.NewMissingOpenIDError()
	}

	if err := s.directory.Upsert(ctx, profileUpsert(profile, signedInAt)); err != nil {
		return nil, err
	}

	slog.Info("user synced from identity provider", slog.String("open_id", profile.OpenID))
	return s.directory.FindByOpenID(ctx, profile.OpenID)
}

// profileUpsert はIdPのプロフィールからUPSERT入力を組み立てる。
// 空の名前、未設定のメールアドレスとログイン方法はNULLとして書き込む。
func profileUpsert(p *Profile, signedInAt time.Time) model.UserUpsert {
	in := model.UserUpsert{
		OpenID:       p.OpenID,
		Name:         model.SetOrNull(p.Name),
		Email:        model.SetNull[string](),
		LoginMethod:  model.SetNull[string](),
		LastSignedIn: model.SetTo(signedInAt),
	}
	if p.Email != nil {
		in.Email = model.SetTo(*p.Email)
	}
	if p.LoginMethod != nil {
		in.LoginMethod = model.SetTo(*p.LoginMethod)
	}
	return in
}

func stringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
