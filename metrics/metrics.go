// Package metrics exposes prometheus instrumentation and the standalone
// metrics server the HTTP server shell starts alongside the API listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheHits counts cache-aside hits by entry kind (plot, key, trust, player).
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dftools_cache_hits_total",
		Help: "Cache hits by entry kind.",
	}, []string{"kind"})

	// CacheMisses counts cache-aside misses by entry kind.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dftools_cache_misses_total",
		Help: "Cache misses by entry kind.",
	}, []string{"kind"})

	// AuthFailures counts rejected credentials by error kind.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dftools_auth_failures_total",
		Help: "Authentication failures by error kind.",
	}, []string{"kind"})

	// HandshakeResults counts federation verification attempts by outcome.
	HandshakeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dftools_handshake_results_total",
		Help: "Federation handshake outcomes.",
	}, []string{"outcome"})
)

// MetricsServer serves the prometheus scrape endpoint on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr. An empty addr disables it.
func New(addr string) (*MetricsServer, error) {
	if addr == "" {
		return nil, nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	if m == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
