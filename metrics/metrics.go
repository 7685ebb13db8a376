// Package metrics exposes Prometheus instrumentation for the settlement
// service: an optional standalone metrics server plus counters for the
// callback ingestion pipeline.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	callbacksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_callbacks_received_total",
		Help: "Settlement callback frames received over HTTP.",
	})

	callbacksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_callbacks_rejected_total",
		Help: "Settlement callbacks rejected before application, by reason.",
	}, []string{"reason"})

	settlementsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_applied_total",
		Help: "Settlement outcomes applied exactly once.",
	})
)

// IncCallbacksReceived counts one received callback frame.
func IncCallbacksReceived() {
	callbacksReceived.Inc()
}

// IncCallbacksRejected counts one rejected callback with its reason.
func IncCallbacksRejected(reason string) {
	callbacksRejected.WithLabelValues(reason).Inc()
}

// IncSettlementsApplied counts one applied settlement outcome.
func IncSettlementsApplied() {
	settlementsApplied.Inc()
}

// MetricsServer serves the Prometheus scrape endpoint on its own
// listener, separate from the API server.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given namespace and listen
// address. An empty address returns a server whose ListenAndServe is a
// no-op error, matching http.Server behavior.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:    listenAddr,
			Handler: mux,
		},
	}, nil
}

// ListenAndServe blocks serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
