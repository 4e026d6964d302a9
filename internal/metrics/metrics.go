// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(provider, result string)
	RecordCapsuleCreated()
	RecordCapsuleDeleted()
	RecordRateLimited(scope string)
	RecordPayment(status string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(method string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          *prometheus.CounterVec
	capsulesCreated prometheus.Counter
	capsulesDeleted prometheus.Counter
	rateLimited     *prometheus.CounterVec
	payments        *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timecapsule_logins_total",
			Help: "プロバイダー・結果別のログイン数",
		}, []string{"provider", "result"}),
		capsulesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timecapsule_capsules_created_total",
			Help: "作成されたタイムカプセルの合計数",
		}),
		capsulesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timecapsule_capsules_deleted_total",
			Help: "削除されたタイムカプセルの合計数",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timecapsule_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"scope"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timecapsule_payments_total",
			Help: "ステータス別の決済処理数",
		}, []string{"status"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timecapsule_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timecapsule_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		c.logins,
		c.capsulesCreated,
		c.capsulesDeleted,
		c.rateLimited,
		c.payments,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(provider, result string) {
	c.logins.WithLabelValues(provider, result).Inc()
}

// RecordCapsuleCreated はカプセル作成を記録する。
func (c *Collector) RecordCapsuleCreated() {
	c.capsulesCreated.Inc()
}

// RecordCapsuleDeleted はカプセル削除を記録する。
func (c *Collector) RecordCapsuleDeleted() {
	c.capsulesDeleted.Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordPayment は決済ステータスを記録する。
func (c *Collector) RecordPayment(status string) {
	c.payments.WithLabelValues(status).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(method string, duration time.Duration) {
	c.requestLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordLogin(string, string) {}
func (NopCollector) RecordCapsuleCreated() {}
func (NopCollector) RecordCapsuleDeleted() {}
func (NopCollector) RecordRateLimited(string) {}
func (NopCollector) RecordPayment(string) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRequestLatency(string, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクターが失敗しても取得できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
