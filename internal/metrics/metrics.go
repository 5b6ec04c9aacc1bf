// Package metrics provides Prometheus instrumentation for the risk engine.
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
	// RiskCalculationsTotal counts metric computations, partitioned by the
	// return-series source (historical vs synthetic fallback).
	RiskCalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskengine_calculations_total",
		Help: "Total number of portfolio risk calculations",
	}, []string{"source"})

	// CalculationLatency tracks risk computation latency.
	CalculationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "riskengine_calculation_latency_seconds",
		Help:    "Portfolio risk calculation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// HeatmapsServed counts liquidation heatmaps served, partitioned by
	// data source ("live" vs "estimated").
	HeatmapsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskengine_heatmaps_served_total",
		Help: "Liquidation heatmaps served by data source",
	}, []string{"source"})

	// TradeGateDecisions counts gate outcomes by result: allowed, reduced,
	// or blocked.
	TradeGateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskengine_trade_gate_decisions_total",
		Help: "Trade gate decisions by outcome",
	}, []string{"outcome"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "riskengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "riskengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// SnapshotsSaved counts risk snapshots persisted to the history store.
	SnapshotsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "riskengine_snapshots_saved_total",
		Help: "Risk snapshots persisted to the history store",
	})
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

		// Use the route pattern for path label to avoid high cardinality.
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
