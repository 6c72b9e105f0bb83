// Package metrics はPrometheusメトリクスを提供する。
//
// サービスごとに独立したレジストリを持つため、テストで複数生成しても登録が衝突しない。
// nilの *Metrics に対する記録は何もしない。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はサービスが記録するメトリクスの集合。
type Metrics struct {
	// registry はこのMetricsが登録されるレジストリ。
	registry *prometheus.Registry

	// edgeOutcomes はEdgeAuthの終端状態ごとのリクエスト数。
	edgeOutcomes *prometheus.CounterVec
	// breakerState はサーキットブレーカーの状態（0=CLOSED, 1=HALF_OPEN, 2=OPEN）。
	breakerState *prometheus.GaugeVec
	// fallbacks は縮退応答を返した回数。
	fallbacks *prometheus.CounterVec
	// published はイベント発行の結果ごとの件数。
	published *prometheus.CounterVec
	// consumed はイベント処理の結果ごとの件数。
	consumed *prometheus.CounterVec
}

// New は新しいレジストリにメトリクスを登録して返す。
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, reg))
	return &Metrics{
		registry: reg,
		edgeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orderhub_edge_auth_total",
			Help: "Requests handled by the edge auth filter by terminal outcome",
		}, []string{"outcome"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orderhub_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		}, []string{"name"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orderhub_fallback_total",
			Help: "Degraded fallback results by call site and reason",
		}, []string{"name", "reason"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orderhub_events_published_total",
			Help: "Published events by topic and result",
		}, []string{"topic", "result"}),
		consumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orderhub_events_consumed_total",
			Help: "Consumed events by topic, group and result",
		}, []string{"topic", "group", "result"}),
	}
}

// Handler は /metrics 用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry はメトリクスが登録されたレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// EdgeOutcome はEdgeAuthの終端状態を1件記録する。
func (m *Metrics) EdgeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.edgeOutcomes.WithLabelValues(outcome).Inc()
}

// BreakerState はサーキットブレーカーの状態を記録する。
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// Fallback は縮退応答を1件記録する。
func (m *Metrics) Fallback(name, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(name, reason).Inc()
}

// Published はイベント発行の結果を1件記録する。
func (m *Metrics) Published(topic string, err error) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic, result(err)).Inc()
}

// Consumed はイベント処理の結果を1件記録する。
func (m *Metrics) Consumed(topic, group string, err error) {
	if m == nil {
		return
	}
	m.consumed.WithLabelValues(topic, group, result(err)).Inc()
}

// result はエラーの有無をラベル値に変換する。
func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
