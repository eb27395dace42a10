// Package metrics provides Prometheus instrumentation for gexflow.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts processed trade ticks by classified direction.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gexflow_ticks_total",
		Help: "Trade ticks processed, by classified direction",
	}, []string{"direction"})

	// RejectedInputs counts ticks and snapshots refused at the boundary.
	RejectedInputs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gexflow_rejected_inputs_total",
		Help: "Inputs rejected as invalid",
	}, []string{"input"})

	SnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gexflow_snapshots_total",
		Help: "Option chain snapshots processed",
	})

	// SnapshotDuration is the time to solve and aggregate one snapshot.
	SnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gexflow_snapshot_duration_seconds",
		Help:    "Chain evaluation latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	// UnpricedContracts counts per-contract IV failures by reason.
	UnpricedContracts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gexflow_unpriced_contracts_total",
		Help: "Contracts left without Greeks, by reason",
	}, []string{"reason"})

	ParityFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gexflow_parity_fallbacks_total",
		Help: "Deep ITM contracts priced from the opposite leg",
	})

	StaleSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gexflow_stale_snapshots_total",
		Help: "Snapshots older than the quote staleness bound",
	})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gexflow_alerts_total",
		Help: "Alerts emitted, by kind",
	}, []string{"kind"})

	CumulativeDelta = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gexflow_cumulative_delta",
		Help: "Session cumulative volume delta",
	})

	NetGEX = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gexflow_net_gex",
		Help: "Total net gamma exposure across strikes",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gexflow_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gexflow_notifications_total",
		Help: "Alert notifications by outcome",
	}, []string{"outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gexflow_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gexflow_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Flush keeps event streams working behind the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
