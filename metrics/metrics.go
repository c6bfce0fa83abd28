// Package metrics exposes the oracle's Prometheus metrics and the server that serves them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcome labels.
const (
	OutcomeSigned          = "signed"
	OutcomeInvalidRequest  = "invalid_request"
	OutcomeUpstreamFailure = "upstream_failure"
	OutcomeSigningFailure  = "signing_failure"
)

// FetchMetrics groups the collectors updated by the proxy handler.
type FetchMetrics struct {
	Fetches          *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram
	UpstreamStatus   *prometheus.CounterVec
	AttestationDocs  *prometheus.CounterVec
}

// NewFetchMetrics creates and registers the fetch collectors on reg.
// A nil registry leaves the collectors unregistered, which is what tests want.
func NewFetchMetrics(namespace string, reg prometheus.Registerer) *FetchMetrics {
	m := &FetchMetrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Proxied fetches by outcome.",
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Duration of upstream HTTP calls including body capture.",
			Buckets:   prometheus.DefBuckets,
		}),
		UpstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_status_total",
			Help:      "Upstream responses by status class.",
		}, []string{"class"}),
		AttestationDocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attestation_documents_total",
			Help:      "Attestation documents served, by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.Fetches, m.UpstreamDuration, m.UpstreamStatus, m.AttestationDocs)
	}
	return m
}

// ObserveFetch records the outcome of one proxied fetch.
func (m *FetchMetrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the duration and status class of an upstream call.
func (m *FetchMetrics) ObserveUpstream(status int, took time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDuration.Observe(took.Seconds())
	m.UpstreamStatus.WithLabelValues(statusClass(status)).Inc()
}

// ObserveAttestation records whether an attestation document could be produced.
func (m *FetchMetrics) ObserveAttestation(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.AttestationDocs.WithLabelValues("error").Inc()
		return
	}
	m.AttestationDocs.WithLabelValues("ok").Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// MetricsServer serves the Prometheus exposition endpoint.
type MetricsServer struct {
	Registry *prometheus.Registry
	srv      *http.Server
}

// New creates a metrics server listening on addr with a fresh registry that
// includes the Go runtime and process collectors.
func New(namespace, addr string) (*MetricsServer, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &MetricsServer{
		Registry: reg,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
