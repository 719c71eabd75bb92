// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証ゲートの判定結果ラベル。
const (
	AuthAuthenticated  = "authenticated"
	AuthAnonymous      = "anonymous"
	AuthInvalidSession = "invalid_session"
	AuthSyncFailed     = "sync_failed"
	AuthUserNotFound   = "user_not_found"
)

// 外部サービス名ラベル。
const (
	ServiceOAuth        = "OAuth"
	ServiceGHL          = "GHL"
	ServiceNotification = "Notification"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証ゲートやサービス層、外部APIクライアントから利用する。
type MetricsCollector interface {
	RecordAuthOutcome(outcome string)
	RecordSubmissionCreated()
	RecordSubmissionReviewed(status string)
	RecordProvisioning(success bool)
	RecordSnapshotFailure()
	RecordNotification(delivered bool)
	RecordUpstreamStatus(service string, statusCode int)
	RecordUpstreamLatency(service string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcome     *prometheus.CounterVec
	submissions     prometheus.Counter
	reviews         *prometheus.CounterVec
	provisioning    *prometheus.CounterVec
	snapshotFail    prometheus.Counter
	notifications   *prometheus.CounterVec
	upstreamStatus  *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_auth_outcome_total",
			Help: "認証ゲートの判定結果別リクエスト数",
		}, []string{"outcome"}),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_submissions_created_total",
			Help: "作成されたオンボーディング申請の合計数",
		}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_submissions_reviewed_total",
			Help: "審査結果別の申請数",
		}, []string{"status"}),
		provisioning: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_crm_provisioning_total",
			Help: "CRMロケーション作成の結果別回数",
		}, []string{"result"}),
		snapshotFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_crm_snapshot_fail_total",
			Help: "スナップショット適用失敗の合計数",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_owner_notification_total",
			Help: "オーナー通知の配信結果別回数",
		}, []string{"result"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_upstream_http_status_total",
			Help: "外部サービスのHTTPステータスコード別レスポンス数",
		}, []string{"service", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_upstream_latency_seconds",
			Help:    "外部サービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
	}

	reg.MustRegister(
		c.authOutcome,
		c.submissions,
		c.reviews,
		c.provisioning,
		c.snapshotFail,
		c.notifications,
		c.upstreamStatus,
		c.upstreamLatency,
	)

	return c
}

// RecordAuthOutcome は認証ゲートの判定結果を記録する。
func (c *Collector) RecordAuthOutcome(outcome string) {
	c.authOutcome.WithLabelValues(outcome).Inc()
}

// RecordSubmissionCreated は申請作成を記録する。
func (c *Collector) RecordSubmissionCreated() {
	c.submissions.Inc()
}

// RecordSubmissionReviewed は審査結果（approved/rejected）を記録する。
func (c *Collector) RecordSubmissionReviewed(status string) {
	c.reviews.WithLabelValues(status).Inc()
}

// RecordProvisioning はCRMロケーション作成の結果を記録する。
func (c *Collector) RecordProvisioning(success bool) {
	c.provisioning.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSnapshotFailure はスナップショット適用失敗を記録する。
func (c *Collector) RecordSnapshotFailure() {
	c.snapshotFail.Inc()
}

// RecordNotification はオーナー通知の配信結果を記録する。
func (c *Collector) RecordNotification(delivered bool) {
	c.notifications.WithLabelValues(resultLabel(delivered)).Inc()
}

// RecordUpstreamStatus は外部サービスのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(service string, statusCode int) {
	c.upstreamStatus.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は外部サービス呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(service string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(service).Observe(duration.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// NopCollector は何も記録しないMetricsCollector。メトリクス未設定時やテストで使用する。
type NopCollector struct{}

func (NopCollector) RecordAuthOutcome(string)                    {}
func (NopCollector) RecordSubmissionCreated()                    {}
func (NopCollector) RecordSubmissionReviewed(string)             {}
func (NopCollector) RecordProvisioning(bool)                     {}
func (NopCollector) RecordSnapshotFailure()                      {}
func (NopCollector) RecordNotification(bool)                     {}
func (NopCollector) RecordUpstreamStatus(string, int)            {}
func (NopCollector) RecordUpstreamLatency(string, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
