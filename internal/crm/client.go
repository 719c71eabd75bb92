// Package crm はCRM（GoHighLevel）へのサブアカウント作成とスナップショット適用を提供する。
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/onboarding/internal/metrics"
	"github.com/hitoshi/onboarding/internal/model"
)

const (
	// DefaultBaseURL はGHL APIのベースURL。
	DefaultBaseURL = "https://services.leadconnectorhq.com"
	// APIVersion はVersionヘッダーに指定するAPIバージョン。
	APIVersion = "2021-07-28"
	// DefaultTimezone はタイムゾーン未指定時の既定値。
	DefaultTimezone = "America/New_York"
	// DefaultRequestsPerSecond はクライアント側で許可する秒間リクエスト数の既定値。
	DefaultRequestsPerSecond = 10
)

// Config はCRMクライアントの設定。
type Config struct {
	APIKey            string
	AgencyID          string
	SnapshotID        string
	BaseURL           string
	RequestsPerSecond float64
}

// LocationParams はロケーション作成パラメータ。
type LocationParams struct {
	Name       string
	Email      string
	Phone      string
	Address    string
	City       string
	State      string
	PostalCode string
	Country    string
	Website    string
	Timezone   string
}

// Location はCRMに作成されたサブアカウント（ロケーション）。
type Location struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Website    string `json:"website"`
	Timezone   string `json:"timezone"`
}

// createLocationRequest はロケーション作成APIのリクエストボディ。
type createLocationRequest struct {
	CompanyID  string `json:"companyId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Website    string `json:"website"`
	Timezone   string `json:"timezone"`
}

// createLocationResponse はロケーション作成APIのレスポンス。
type createLocationResponse struct {
	Location *Location `json:"location"`
}

// Client はGHL APIのクライアント。
// 呼び出しはクライアント側のレートリミッターで平準化する。リトライは行わない。
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewClient はClientを生成する。
// APIキーやエージェンシーIDが未設定でも生成は成功し、呼び出し時にConfigurationErrorを返す。
func NewClient(config Config, httpClient *http.Client, logger *slog.Logger, mc metrics.MetricsCollector) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		logger:     logger,
		metrics:    mc,
	}
}

// CreateLocation はエージェンシー配下にロケーションを作成する。
// 非2xxレスポンスの場合はステータスコードと本文を含むUpstreamErrorを返す。
func (c *Client) CreateLocation(ctx context.Context, params LocationParams) (*Location, error) {
	if c.config.AgencyID == "" {
		return nil, model.NewConfigurationError("GHL_AGENCY_ID is not configured")
	}

	timezone := params.Timezone
	if timezone == "" {
		timezone = DefaultTimezone
	}
	body := createLocationRequest{
		CompanyID:  c.config.AgencyID,
		Name:       params.Name,
		Email:      params.Email,
		Phone:      params.Phone,
		Address:    params.Address,
		City:       params.City,
		State:      params.State,
		PostalCode: params.PostalCode,
		Country:    params.Country,
		Website:    params.Website,
		Timezone:   timezone,
	}

	var resp createLocationResponse
	if err := c.do(ctx, http.MethodPost, "/locations/", body, &resp); err != nil {
		return nil, err
	}
	if resp.Location == nil || resp.Location.ID == "" {
		return nil, &model.UpstreamError{Service: metrics.ServiceGHL, Err: fmt.Errorf("location id missing in response")}
	}

	c.logger.Info("crm location created",
		slog.String("location_id", resp.Location.ID),
		slog.String("name", params.Name),
	)
	return resp.Location, nil
}

// ApplySnapshot は設定済みのスナップショットをロケーションに適用する。
func (c *Client) ApplySnapshot(ctx context.Context, locationID string) error {
	if c.config.SnapshotID == "" {
		return model.NewConfigurationError("GHL_SNAPSHOT_ID is not configured")
	}

	path := fmt.Sprintf("/locations/%s/snapshots/%s/apply",
		url.PathEscape(locationID), url.PathEscape(c.config.SnapshotID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// CreateLocationWithSnapshot はロケーションを作成し、スナップショットを適用する。
// スナップショットの適用失敗はログに記録するのみで、作成済みロケーションを成功として返す。
func (c *Client) CreateLocationWithSnapshot(ctx context.Context, params LocationParams) (*Location, error) {
	location, err := c.CreateLocation(ctx, params)
	if err != nil {
		c.metrics.RecordProvisioning(false)
		return nil, err
	}
	c.metrics.RecordProvisioning(true)

	if err := c.ApplySnapshot(ctx, location.ID); err != nil {
		c.metrics.RecordSnapshotFailure()
		c.logger.Error("failed to apply snapshot",
			slog.String("location_id", location.ID),
			slog.String("error", err.Error()),
		)
	}
	return location, nil
}

// do はGHL APIを呼び出す。outがnilの場合はレスポンス本文を読み捨てる。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.config.APIKey == "" {
		return model.NewConfigurationError("GHL_API_KEY is not configured")
	}

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordUpstreamLatency(metrics.ServiceGHL, time.Since(start))
	if err != nil {
		c.logger.Error("crm request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &model.UpstreamError{Service: metrics.ServiceGHL, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstreamStatus(metrics.ServiceGHL, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.UpstreamError{Service: metrics.ServiceGHL, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("crm returned error status",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return &model.UpstreamError{
			Service:    metrics.ServiceGHL,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &model.UpstreamError{Service: metrics.ServiceGHL, StatusCode: resp.StatusCode, Body: string(respBody), Err: err}
	}
	return nil
}
