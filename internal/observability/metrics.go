package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mapviz"

// Metrics holds the Prometheus counters, histograms, and gauges for map pipelines.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec   // labels: pipeline, status={success,failed,skipped}
	RunDuration     *prometheus.HistogramVec // labels: pipeline
	PipelineRunning *prometheus.GaugeVec     // labels: pipeline
	LastSuccess     *prometheus.GaugeVec     // labels: pipeline; unix seconds

	// Data quality.
	FetchErrors   *prometheus.CounterVec // labels: pipeline
	UnmatchedKeys *prometheus.GaugeVec   // labels: pipeline

	// Boundary file cache.
	BoundaryCache *prometheus.CounterVec // labels: result={hit,miss}

	// Remote source requests.
	SourceRequests *prometheus.CounterVec   // labels: source={github,socrata}, outcome={success,error}
	SourceDuration *prometheus.HistogramVec // labels: source

	// Artifact events.
	EventsPublished prometheus.Counter
	EventErrors     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.PipelineRunning,
		m.LastSuccess,
		m.FetchErrors,
		m.UnmatchedKeys,
		m.BoundaryCache,
		m.SourceRequests,
		m.SourceDuration,
		m.EventsPublished,
		m.EventErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"pipeline", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-join-bin-render run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"pipeline"}),
		PipelineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress.",
		}, []string{"pipeline"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successfully rendered artifact.",
		}, []string{"pipeline"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Refresh failures that fell back to the last local copy.",
		}, []string{"pipeline"}),
		UnmatchedKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmatched_keys",
			Help:      "Tabular join keys without a boundary feature in the last run.",
		}, []string{"pipeline"}),
		BoundaryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_cache_total",
			Help:      "Boundary file cache lookups by result.",
		}, []string{"result"}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Remote dataset API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Remote dataset API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Artifact events written to Kafka.",
		}),
		EventErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Artifact events that could not be written.",
		}),
	}
}
