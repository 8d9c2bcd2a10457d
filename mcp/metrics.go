package mcp

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and histograms a Server or Client can report
// against a caller-supplied registry (never the global default, so the
// package stays embeddable in a larger application's own metrics setup).
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestErrors     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	activeHTTPSessions prometheus.Gauge
}

// NewMetrics registers its collectors against reg and returns a Metrics
// whose ObserveRequest/SessionOpened/SessionClosed methods record into
// them. Protocol and the transports do not call these methods themselves.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_requests_total",
			Help: "Total JSON-RPC requests handled, by method.",
		}, []string{"method"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_request_errors_total",
			Help: "Total JSON-RPC requests that returned an error, by method and code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_request_duration_seconds",
			Help:    "Handler latency for JSON-RPC requests, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		activeHTTPSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_active_http_sessions",
			Help: "Currently open Streamable-HTTP sessions.",
		}),
	}
	reg.MustRegister(m.requestsTotal, m.requestErrors, m.requestDuration, m.activeHTTPSessions)
	return m
}

// MetricsHandler returns an http.Handler serving reg's metrics in the Prometheus
// exposition format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed request's outcome and latency.
func (m *Metrics) ObserveRequest(method string, seconds float64, rpcErr *RPCError) {
	m.requestsTotal.WithLabelValues(method).Inc()
	m.requestDuration.WithLabelValues(method).Observe(seconds)
	if rpcErr != nil {
		m.requestErrors.WithLabelValues(method, codeLabel(rpcErr.Code)).Inc()
	}
}

// SessionOpened/SessionClosed track Streamable-HTTP session count.
func (m *Metrics) SessionOpened() { m.activeHTTPSessions.Inc() }
func (m *Metrics) SessionClosed() { m.activeHTTPSessions.Dec() }

func codeLabel(code int) string {
	switch code {
	case CodeParseError:
		return "parse_error"
	case CodeInvalidRequest:
		return "invalid_request"
	case CodeMethodNotFound:
		return "method_not_found"
	case CodeInvalidParams:
		return "invalid_params"
	case CodeInternalError:
		return "internal_error"
	case CodeRequestTimeout:
		return "request_timeout"
	case CodeConnectionClosed:
		return "connection_closed"
	default:
		return "other"
	}
}
