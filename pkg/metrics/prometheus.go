// Package metrics provides Prometheus instrumentation for the ranking
// engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NodeRowsIn counts rows fed into each node.
	NodeRowsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rankdsl_node_rows_in_total",
		Help: "Total input rows per node",
	}, []string{"plan", "node_id", "op"})

	// NodeRowsOut counts rows produced by each node.
	NodeRowsOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rankdsl_node_rows_out_total",
		Help: "Total output rows per node",
	}, []string{"plan", "node_id", "op"})

	// NodeDuration tracks per-node execution latency.
	NodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rankdsl_node_duration_seconds",
		Help:    "Node execution latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"plan", "node_id", "op"})

	// NodeErrors counts node execution failures.
	NodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rankdsl_node_errors_total",
		Help: "Total node execution failures",
	}, []string{"plan", "node_id", "op"})

	// GuestWriteCells counts cells committed by guest modules.
	GuestWriteCells = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rankdsl_guest_write_cells_total",
		Help: "Total cells committed through the guest writer path",
	}, []string{"module"})
)

// ServeMetrics starts an HTTP server on the given address to serve
// Prometheus metrics at /metrics.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go server.ListenAndServe()
	return server
}
