// Package metrics holds the Prometheus collectors shared by the API client,
// the JSON-RPC dispatcher and the HTTP surface. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "workzone_mcp"

// UnknownLabel replaces client-supplied label values outside the known set.
const UnknownLabel = "unknown"

type Metrics struct {
	backendRequests *prometheus.CounterVec
	backendRetries  *prometheus.CounterVec
	breakerState    prometheus.Gauge
	toolCalls       *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	rpcRequests     *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		backendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Outbound Workzone API attempts by HTTP method and outcome.",
		}, []string{"method", "outcome"}),
		backendRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Retries scheduled after transient Workzone API failures.",
		}, []string{"method"}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_circuit_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and result.",
		}, []string{"tool", "result"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		rpcRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method.",
		}, []string{"method"}),
	}
}

func (m *Metrics) ObserveBackend(method, outcome string) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveRetry(method string) {
	if m == nil {
		return
	}
	m.backendRetries.WithLabelValues(method).Inc()
}

func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.breakerState.Set(float64(state))
}

func (m *Metrics) ObserveToolCall(tool string, isError bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if isError {
		result = "error"
	}
	m.toolCalls.WithLabelValues(tool, result).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) ObserveRPC(method string) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method).Inc()
}
