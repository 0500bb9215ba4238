// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はチャレンジ参加申込とライフサイクルのメトリクスを収集する。
// challenge.MetricsRecorder を実装する。
type Collector struct {
	joinResults         *prometheus.CounterVec
	joinConflictRetries prometheus.Counter
	joinLatency         prometheus.Histogram
	lifecycleTransition *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		joinResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courseman_challenge_join_total",
			Help: "チャレンジ参加申込の結果別の合計数",
		}, []string{"result"}),
		joinConflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_challenge_join_conflict_retry_total",
			Help: "参加トランザクションの直列化失敗による再試行の合計数",
		}),
		joinLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courseman_challenge_join_latency_seconds",
			Help:    "チャレンジ参加申込処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		lifecycleTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courseman_challenge_transition_total",
			Help: "チャレンジの状態遷移の合計数",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		c.joinResults,
		c.joinConflictRetries,
		c.joinLatency,
		c.lifecycleTransition,
	)

	return c
}

// RecordJoinResult は参加申込の結果（admit/各拒否理由/diverted_to_cart等）を記録する。
func (c *Collector) RecordJoinResult(result string) {
	c.joinResults.WithLabelValues(result).Inc()
}

// RecordJoinConflictRetry は直列化失敗による再試行を記録する。
func (c *Collector) RecordJoinConflictRetry() {
	c.joinConflictRetries.Inc()
}

// RecordJoinLatency は参加申込処理のレイテンシを記録する。
func (c *Collector) RecordJoinLatency(d time.Duration) {
	c.joinLatency.Observe(d.Seconds())
}

// RecordLifecycleTransition はチャレンジの状態遷移を記録する。
func (c *Collector) RecordLifecycleTransition(from, to string) {
	c.lifecycleTransition.WithLabelValues(from, to).Inc()
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
