package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/onboarding/internal/metrics"
	"github.com/hitoshi/onboarding/internal/model"
)

const (
	exchangeTokenPath      = "/webdev.v1.WebDevAuthPublicService/ExchangeToken"
	getUserInfoPath        = "/webdev.v1.WebDevAuthPublicService/GetUserInfo"
	getUserInfoWithJWTPath = "/webdev.v1.WebDevAuthPublicService/GetUserInfoWithJwt"

	// DefaultIdentityTimeout はIdPへのリクエストタイムアウトの既定値。
	DefaultIdentityTimeout = 30 * time.Second
)

// IdentityConfig はIdPクライアントの設定。
type IdentityConfig struct {
	BaseURL string
	AppID   string
	Timeout time.Duration
}

// Profile はIdPから取得したユーザー情報を表す。
type Profile struct {
	OpenID      string
	Name        string
	Email       *string
	LoginMethod *string
	Platforms   []string
}

// TokenResponse は認可コード交換のレスポンス。
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
	IDToken     string `json:"idToken"`
}

// userInfoResponse はIdPのユーザー情報エンドポイントのレスポンス。
type userInfoResponse struct {
	OpenID    string   `json:"openId"`
	ProjectID string   `json:"projectId"`
	Name      string   `json:"name"`
	Email     *string  `json:"email"`
	Platform  string   `json:"platform"`
	Platforms []string `json:"platforms"`
}

// IdentityClient は外部IdPのHTTPクライアント。
type IdentityClient struct {
	config  IdentityConfig
	client  *http.Client
	metrics metrics.MetricsCollector
}

// NewIdentityClient はIdentityClientを生成する。
// BaseURLが空でも生成は成功し、呼び出し時にConfigurationErrorを返す。
func NewIdentityClient(config IdentityConfig, mc metrics.MetricsCollector) *IdentityClient {
	if config.Timeout <= 0 {
		config.Timeout = DefaultIdentityTimeout
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &IdentityClient{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		metrics: mc,
	}
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// stateは認可開始時にbase64エンコードされたリダイレクトURIで、署名検証はせずデコードのみ行う。
func (c *IdentityClient) ExchangeCode(ctx context.Context, code, state string) (*TokenResponse, error) {
	redirectURI, err := decodeState(state)
	if err != nil {
		return nil, model.NewValidationError("state is not valid base64")
	}

	payload := map[string]string{
		"clientId":    c.config.AppID,
		"grantType":   "authorization_code",
		"code":        code,
		"redirectUri": redirectURI,
	}

	var token TokenResponse
	if err := c.post(ctx, exchangeTokenPath, payload, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, &model.UpstreamError{Service: metrics.ServiceOAuth, Err: fmt.Errorf("empty access token in response")}
	}
	return &token, nil
}

// GetUserInfo はアクセストークンでユーザー情報を取得する。
func (c *IdentityClient) GetUserInfo(ctx context.Context, accessToken string) (*Profile, error) {
	var info userInfoResponse
	if err := c.post(ctx, getUserInfoPath, map[string]string{"accessToken": accessToken}, &info); err != nil {
		return nil, err
	}
	return info.toProfile(), nil
}

// GetUserInfoByJWT はセッショントークン自体を使ってユーザー情報を取得する。
// ローカルにユーザーレコードがない場合の遅延同期で使用する。
func (c *IdentityClient) GetUserInfoByJWT(ctx context.Context, sessionToken string) (*Profile, error) {
	payload := map[string]string{
		"jwtToken":  sessionToken,
		"projectId": c.config.AppID,
	}

	var info userInfoResponse
	if err := c.post(ctx, getUserInfoWithJWTPath, payload, &info); err != nil {
		return nil, err
	}
	return info.toProfile(), nil
}

func (r *userInfoResponse) toProfile() *Profile {
	return &Profile{
		OpenID:      r.OpenID,
		Name:        r.Name,
		Email:       r.Email,
		LoginMethod: DeriveLoginMethod(r.Platforms, r.Platform),
		Platforms:   r.Platforms,
	}
}

// post はJSONをPOSTし、成功時はレスポンスをoutにデコードする。
// 非2xxレスポンスと通信エラーはUpstreamErrorとして返す。
func (c *IdentityClient) post(ctx context.Context, path string, payload, out any) error {
	if c.config.BaseURL == "" {
		return model.NewConfigurationError("OAUTH_SERVER_URL is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	c.metrics.RecordUpstreamLatency(metrics.ServiceOAuth, time.Since(start))
	if err != nil {
		return &model.UpstreamError{Service: metrics.ServiceOAuth, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstreamStatus(metrics.ServiceOAuth, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.UpstreamError{Service: metrics.ServiceOAuth, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &model.UpstreamError{
			Service:    metrics.ServiceOAuth,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &model.UpstreamError{Service: metrics.ServiceOAuth, StatusCode: resp.StatusCode, Body: string(respBody), Err: err}
	}
	return nil
}

// decodeState はstateパラメータからリダイレクトURIを復元する。
func decodeState(state string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(state, "="))
		if err != nil {
			return "", err
		}
	}
	return string(b), nil
}
