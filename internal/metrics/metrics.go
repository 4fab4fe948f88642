// Package metrics は Prometheus 形式のメトリクスを提供します。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "market"

// Metrics はアプリケーションのメトリクスをまとめた構造体です。
// nil のレシーバーでも安全に呼び出せます。
type Metrics struct {
	gatherer prometheus.Gatherer

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	gateOutcomes *prometheus.CounterVec
	tokensIssued *prometheus.CounterVec
}

// New は専用のレジストリにメトリクスを登録して返します。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gateOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_gate_total",
			Help:      "Authentication gate results.",
		}, []string{"result"}),
		tokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_tokens_issued_total",
			Help:      "Credential pairs issued by reason.",
		}, []string{"reason"}),
	}
}

// Middleware はリクエスト数とレイテンシを記録します。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler は /metrics のハンドラーです。
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// ObserveGate は認証ゲートの判定結果を記録します。
func (m *Metrics) ObserveGate(result string) {
	if m == nil {
		return
	}
	m.gateOutcomes.WithLabelValues(result).Inc()
}

// ObserveTokensIssued はトークン発行を記録します。
func (m *Metrics) ObserveTokensIssued(reason string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(reason).Inc()
}
