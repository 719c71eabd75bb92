// Package notify はアプリケーションオーナーへの通知送信を提供する。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/onboarding/internal/metrics"
	"github.com/hitoshi/onboarding/internal/model"
)

const (
	// TitleMaxLength はタイトルの最大文字数。
	TitleMaxLength = 1200
	// ContentMaxLength は本文の最大文字数。
	ContentMaxLength = 20000

	sendNotificationPath = "webdevtoken.v1.WebDevService/SendNotification"
)

// Config は通知サービスの設定。
type Config struct {
	BaseURL string
	APIKey  string
}

// Payload はオーナー通知の内容。
type Payload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Notifier はオーナー通知を外部の通知サービスへ送信する。
type Notifier struct {
	config     Config
	httpClient *http.Client
	metrics    metrics.MetricsCollector
}

// NewNotifier はNotifierを生成する。
func NewNotifier(config Config, httpClient *http.Client, mc metrics.MetricsCollector) *Notifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Notifier{config: config, httpClient: httpClient, metrics: mc}
}

// NotifyOwner はオーナーに通知を送信し、配信できたかどうかを返す。
// 入力が不正な場合はValidationError、通知サービスが未設定の場合はConfigurationErrorを返す。
// 配信の失敗（非2xx、通信エラー）はログに記録しfalseを返す。
func (n *Notifier) NotifyOwner(ctx context.Context, p Payload) (bool, error) {
	payload, err := validatePayload(p)
	if err != nil {
		return false, err
	}
	if n.config.BaseURL == "" {
		return false, model.NewConfigurationError("Notification service URL is not configured.")
	}
	if n.config.APIKey == "" {
		return false, model.NewConfigurationError("Notification service API key is not configured.")
	}

	delivered := n.send(ctx, payload)
	n.metrics.RecordNotification(delivered)
	return delivered, nil
}

func (n *Notifier) send(ctx context.Context, payload Payload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("failed to encode notification", slog.String("error", err.Error()))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(n.config.BaseURL), bytes.NewReader(body))
	if err != nil {
		slog.Warn("failed to create notification request", slog.String("error", err.Error()))
		return false
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connect-Protocol-Version", "1")

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	n.metrics.RecordUpstreamLatency(metrics.ServiceNotification, time.Since(start))
	if err != nil {
		slog.Warn("error calling notification service", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	n.metrics.RecordUpstreamStatus(metrics.ServiceNotification, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Warn("failed to notify owner",
			slog.Int("http_status", resp.StatusCode),
			slog.String("detail", string(detail)),
		)
		return false
	}
	return true
}

// validatePayload はタイトルと本文をトリムし、必須と最大文字数を検証する。
func validatePayload(p Payload) (Payload, error) {
	title := strings.TrimSpace(p.Title)
	content := strings.TrimSpace(p.Content)

	if title == "" {
		return Payload{}, model.NewValidationError("Notification title is required.")
	}
	if content == "" {
		return Payload{}, model.NewValidationError("Notification content is required.")
	}
	if utf8.RuneCountInString(title) > TitleMaxLength {
		return Payload{}, model.NewValidationError(fmt.Sprintf("Notification title must be at most %d characters.", TitleMaxLength))
	}
	if utf8.RuneCountInString(content) > ContentMaxLength {
		return Payload{}, model.NewValidationError(fmt.Sprintf("Notification content must be at most %d characters.", ContentMaxLength))
	}
	return Payload{Title: title, Content: content}, nil
}

// endpointURL はベースURLから通知エンドポイントのURLを組み立てる。
func endpointURL(baseURL string) string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + sendNotificationPath
}
