// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Webhookディスパッチャーやサービス層から利用する。
type MetricsCollector interface {
	RecordDispatchSuccess(actionType string)
	RecordDispatchFailure(actionType string, reason string)
	RecordPullRequestsOpened(count int)
	RecordForwardStatus(statusCode int)
	RecordDispatchLatency(duration time.Duration)
	RecordHookRegistration()
	RecordHookDeregistration()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	dispatchSuccess *prometheus.CounterVec
	dispatchFail    *prometheus.CounterVec
	pullsOpened     prometheus.Counter
	forwardStatus   *prometheus.CounterVec
	dispatchLatency prometheus.Histogram
	hooksRegistered prometheus.Counter
	hooksRemoved    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backstroke_dispatch_success_total",
			Help: "Webhookディスパッチ成功の合計数（アクション種別ごと）",
		}, []string{"action_type"}),
		dispatchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backstroke_dispatch_fail_total",
			Help: "Webhookディスパッチ失敗の合計数（アクション種別・理由ごと）",
		}, []string{"action_type", "reason"}),
		pullsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backstroke_pull_requests_opened_total",
			Help: "同期アクションで作成されたプルリクエストの合計数",
		}),
		forwardStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backstroke_forward_status_total",
			Help: "転送先から返されたHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backstroke_dispatch_latency_seconds",
			Help:    "Webhookディスパッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		hooksRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backstroke_hooks_registered_total",
			Help: "プロバイダーに登録されたWebhookの合計数",
		}),
		hooksRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backstroke_hooks_removed_total",
			Help: "プロバイダーから解除されたWebhookの合計数",
		}),
	}

	reg.MustRegister(
		c.dispatchSuccess,
		c.dispatchFail,
		c.pullsOpened,
		c.forwardStatus,
		c.dispatchLatency,
		c.hooksRegistered,
		c.hooksRemoved,
	)

	return c
}

// RecordDispatchSuccess はディスパッチ成功を記録する。
func (c *Collector) RecordDispatchSuccess(actionType string) {
	c.dispatchSuccess.WithLabelValues(actionType).Inc()
}

// RecordDispatchFailure はディスパッチ失敗を記録する。
func (c *Collector) RecordDispatchFailure(actionType string, reason string) {
	c.dispatchFail.WithLabelValues(actionType, reason).Inc()
}

// RecordPullRequestsOpened は作成されたプルリクエスト数を記録する。
func (c *Collector) RecordPullRequestsOpened(count int) {
	c.pullsOpened.Add(float64(count))
}

// RecordForwardStatus は転送先のHTTPステータスコードを記録する。
func (c *Collector) RecordForwardStatus(statusCode int) {
	c.forwardStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordDispatchLatency はディスパッチのレイテンシを記録する。
func (c *Collector) RecordDispatchLatency(duration time.Duration) {
	c.dispatchLatency.Observe(duration.Seconds())
}

// RecordHookRegistration はWebhook登録を記録する。
func (c *Collector) RecordHookRegistration() {
	c.hooksRegistered.Inc()
}

// RecordHookDeregistration はWebhook解除を記録する。
func (c *Collector) RecordHookDeregistration() {
	c.hooksRemoved.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
