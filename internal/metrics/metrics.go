// Package metrics provides Prometheus instrumentation for the wager engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JoinsTotal counts join attempts, partitioned by phase (first or
	// second) and result (ok, rejected, ledger_failed).
	JoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klash_joins_total",
		Help: "Total market join attempts",
	}, []string{"phase", "result"})

	// ResolutionsTotal counts resolution attempts per scheduler pass.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klash_resolutions_total",
		Help: "Total market resolution attempts",
	}, []string{"result"})

	// ReconciliationGaps counts confirmed ledger operations whose
	// subsequent store write failed. Each increment pairs with a
	// structured log carrying market id, tx hash, and operation.
	ReconciliationGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "klash_reconciliation_gaps_total",
		Help: "Ledger operations confirmed but not recorded in the store",
	})

	// EscrowInitsTotal counts escrow initializations, including the
	// tolerated already-exists outcome.
	EscrowInitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klash_escrow_inits_total",
		Help: "Escrow initialization attempts",
	}, []string{"result"})

	// LedgerLatency tracks settlement-ledger round-trip time per
	// operation.
	LedgerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "klash_ledger_latency_seconds",
		Help:    "Ledger operation latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "klash_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klash_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "klash_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is low.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
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
