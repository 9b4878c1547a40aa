// Package metrics exposes Prometheus collectors for the search engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gcbaptista/patient-search/internal/corpus"
	"github.com/gcbaptista/patient-search/model"
)

const namespace = "patient_search"

var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of searches run against the corpus",
		},
		[]string{"mode"}, // "sequential" / "parallel"
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search pipeline duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	SearchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of matching patients per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
		},
	)

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Dispatched messages by request type and reply type",
		},
		[]string{"type", "reply"},
	)

	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Background corpus syncs by outcome",
		},
		[]string{"outcome"}, // "success" / "failure"
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Background corpus sync duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30},
		},
	)

	JobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Background jobs by type and terminal status",
		},
		[]string{"type", "status"},
	)

	CorpusPatients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_patients",
			Help:      "Number of patients in the snapshot in service",
		},
	)

	CorpusVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_version",
			Help:      "Version of the snapshot in service",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SearchRequestsTotal,
			SearchDuration,
			SearchResults,
			MessagesTotal,
			SyncRunsTotal,
			SyncDuration,
			JobsFinishedTotal,
			CorpusPatients,
			CorpusVersion,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}

// Recorder feeds the collectors from the engine components.
type Recorder struct{}

// NewRecorder registers the collectors and returns a Recorder.
func NewRecorder() Recorder {
	Register()
	return Recorder{}
}

func (Recorder) ObserveSearch(duration time.Duration, results int, parallel bool) {
	mode := "sequential"
	if parallel {
		mode = "parallel"
	}
	SearchRequestsTotal.WithLabelValues(mode).Inc()
	SearchDuration.Observe(duration.Seconds())
	SearchResults.Observe(float64(results))
}

func (Recorder) ObserveMessage(requestType, replyType string) {
	MessagesTotal.WithLabelValues(requestType, replyType).Inc()
}

func (Recorder) ObserveSync(duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	SyncRunsTotal.WithLabelValues(outcome).Inc()
	SyncDuration.Observe(duration.Seconds())
}

func (Recorder) JobFinished(jobType model.JobType, status model.JobStatus, _ time.Duration) {
	JobsFinishedTotal.WithLabelValues(string(jobType), string(status)).Inc()
}

// CorpusSwapped updates the corpus gauges; it matches corpus.WithOnSwap.
func (Recorder) CorpusSwapped(snap *corpus.Snapshot) {
	CorpusPatients.Set(float64(len(snap.Patients)))
	CorpusVersion.Set(float64(snap.Version))
}
