// Package metrics exposes the service's Prometheus collectors and the
// standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mint outcomes.
const (
	OutcomeMinted          = "minted"
	OutcomeUnknownTemplate = "unknown_template"
	OutcomeInvalidProof    = "invalid_proof"
	OutcomeNullifierReused = "nullifier_reused"
	OutcomeUnavailable     = "verifier_unavailable"
	OutcomeError           = "error"
)

var (
	MintAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_attempts_total",
		Help: "Mint requests by proof kind and outcome.",
	}, []string{"kind", "outcome"})

	VerifyDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proof_verify_duration_seconds",
		Help:    "Time spent verifying identity proofs.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"kind"})

	PersistDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_persist_duration_seconds",
		Help:    "Time spent writing the template store document.",
		Buckets: prometheus.DefBuckets,
	})

	Templates = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "templates",
		Help: "Number of registered templates.",
	})
)

// ObserveSince records the elapsed time since start on an observer.
func ObserveSince(o prometheus.Observer, start time.Time) {
	o.Observe(time.Since(start).Seconds())
}

// MetricsServer serves /metrics from a dedicated registry.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// New builds a registry with the service collectors prefixed by namespace,
// plus the Go runtime and process collectors.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registerer := prometheus.WrapRegistererWithPrefix(namespace+"_", registry)

	for _, c := range []prometheus.Collector{MintAttempts, VerifyDuration, PersistDuration, Templates} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		registry: registry,
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the /metrics handler, for embedding or tests.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
