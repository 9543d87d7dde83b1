// Package metrics provides Prometheus instrumentation for the trade engine.
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
	// OrdersPlaced counts accepted orders, partitioned by kind.
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickersim_orders_placed_total",
		Help: "Total number of orders accepted",
	}, []string{"kind"})

	// OrdersFilled counts fills, partitioned by kind.
	OrdersFilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickersim_orders_filled_total",
		Help: "Total number of orders filled",
	}, []string{"kind"})

	// EvaluationDuration tracks how long one evaluation pass takes.
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tickersim_evaluation_duration_seconds",
		Help:    "Duration of one pending-order evaluation pass",
		Buckets: prometheus.DefBuckets,
	})

	// PendingOrders tracks the number of unresolved orders.
	PendingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickersim_pending_orders",
		Help: "Number of currently pending orders",
	})

	// QuoteFailures counts quote lookups that came back empty.
	QuoteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickersim_quote_failures_total",
		Help: "Quote lookups that returned no price",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickersim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickersim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tickersim_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
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

		// Use the raw path for the label; routes here are low cardinality.
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
