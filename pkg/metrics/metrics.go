package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors. Constructed once in
// main and injected; each instance owns its own registry so tests never
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	JobsSubmitted    prometheus.Counter
	JobsCompleted    prometheus.Counter
	JobsFailed       prometheus.Counter
	JobDuration      prometheus.Histogram
	ExtractionErrors *prometheus.CounterVec
	AnalysisErrors   *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_jobs_submitted_total",
			Help: "Number of analysis jobs accepted for processing.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_jobs_completed_total",
			Help: "Number of analysis jobs that reached completed.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_jobs_failed_total",
			Help: "Number of analysis jobs that reached failed.",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analysis_job_duration_seconds",
			Help:    "Wall-clock duration of analysis jobs from submit to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ExtractionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "document_extraction_errors_total",
			Help: "Extraction failures by error kind.",
		}, []string{"kind"}),
		AnalysisErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_analysis_errors_total",
			Help: "AI invocation failures by error kind.",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsSubmitted,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobDuration,
		m.ExtractionErrors,
		m.AnalysisErrors,
	)

	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
