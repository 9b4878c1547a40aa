package jobs

import (
	"strconv"
	"sync"
	"time"

	"github.com/gcbaptista/patient-search/model"
)

// Metadata keys the manager reads when accounting for finished jobs.
const (
	MetadataSource       = "source"
	MetadataPatientCount = "patient_count"
)

const recentWindow = 20

// SourceCounts tallies finished jobs for one corpus source.
type SourceCounts struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// FinishedJob summarises the most recent job to reach a terminal status.
type FinishedJob struct {
	JobID        string          `json:"job_id"`
	Status       model.JobStatus `json:"status"`
	Source       string          `json:"source,omitempty"`
	PatientCount int             `json:"patient_count,omitempty"`
	Duration     time.Duration   `json:"duration_ns"`
	FinishedAt   time.Time       `json:"finished_at"`
	Error        string          `json:"error,omitempty"`
}

// JobMetricsData is a point-in-time copy of the job counters.
type JobMetricsData struct {
	JobsCreated          int64                     `json:"jobs_created"`
	JobsCompleted        int64                     `json:"jobs_completed"`
	JobsFailed           int64                     `json:"jobs_failed"`
	JobsCancelled        int64                     `json:"jobs_cancelled"`
	AverageExecutionTime time.Duration             `json:"average_execution_time_ns"`
	RecentExecutionTime  time.Duration             `json:"recent_execution_time_ns"`
	JobsByStatus         map[model.JobStatus]int64 `json:"jobs_by_status"`
	BySource             map[string]SourceCounts   `json:"by_source"`
	SuccessRate          float64                   `json:"success_rate"`
	CurrentWorkload      int64                     `json:"current_workload"`
	LastFinished         *FinishedJob              `json:"last_finished,omitempty"`
	LastSuccessAt        *time.Time                `json:"last_success_at,omitempty"`
	LastUpdated          time.Time                 `json:"last_updated"`
}

// JobMetrics keeps the in-process view of sync jobs served by GET /jobs/metrics.
// The Prometheus side of the same events goes through the manager Observer.
type JobMetrics struct {
	mu            sync.RWMutex
	created       int64
	completed     int64
	failed        int64
	cancelled     int64
	totalTime     time.Duration
	recent        []time.Duration
	byStatus      map[model.JobStatus]int64
	bySource      map[string]SourceCounts
	lastFinished  *FinishedJob
	lastSuccessAt *time.Time
	lastUpdated   time.Time
}

// NewJobMetrics creates an empty collector.
func NewJobMetrics() *JobMetrics {
	return &JobMetrics{
		byStatus:    make(map[model.JobStatus]int64),
		bySource:    make(map[string]SourceCounts),
		lastUpdated: time.Now(),
	}
}

func (m *JobMetrics) jobCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.created++
	m.byStatus[model.JobStatusPending]++
	m.lastUpdated = time.Now()
}

func (m *JobMetrics) statusChanged(from, to model.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moveStatus(from, to)
}

// jobFinished accounts for a job that just reached a terminal status. from is the
// status it left; job already carries the new one.
func (m *JobMetrics) jobFinished(job *model.Job, from model.JobStatus, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.moveStatus(from, job.Status)

	source := job.Metadata[MetadataSource]
	counts := m.bySource[source]
	switch job.Status {
	case model.JobStatusCompleted:
		m.completed++
		counts.Completed++
		m.totalTime += elapsed
		m.recent = append(m.recent, elapsed)
		if len(m.recent) > recentWindow {
			m.recent = m.recent[len(m.recent)-recentWindow:]
		}
		at := m.lastUpdated
		if job.CompletedAt != nil {
			at = *job.CompletedAt
		}
		m.lastSuccessAt = &at
	case model.JobStatusFailed:
		m.failed++
		counts.Failed++
	case model.JobStatusCancelled:
		m.cancelled++
		counts.Cancelled++
	}
	m.bySource[source] = counts

	finished := &FinishedJob{
		JobID:    job.ID,
		Status:   job.Status,
		Source:   source,
		Duration: elapsed,
		Error:    job.Error,
	}
	if n, err := strconv.Atoi(job.Metadata[MetadataPatientCount]); err == nil {
		finished.PatientCount = n
	}
	if job.CompletedAt != nil {
		finished.FinishedAt = *job.CompletedAt
	}
	m.lastFinished = finished
}

func (m *JobMetrics) moveStatus(from, to model.JobStatus) {
	if from != "" && m.byStatus[from] > 0 {
		m.byStatus[from]--
	}
	m.byStatus[to]++
	m.lastUpdated = time.Now()
}

// Snapshot returns a copy of the counters.
func (m *JobMetrics) Snapshot() JobMetricsData {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byStatus := make(map[model.JobStatus]int64, len(m.byStatus))
	for k, v := range m.byStatus {
		byStatus[k] = v
	}
	bySource := make(map[string]SourceCounts, len(m.bySource))
	for k, v := range m.bySource {
		bySource[k] = v
	}

	data := JobMetricsData{
		JobsCreated:         m.created,
		JobsCompleted:       m.completed,
		JobsFailed:          m.failed,
		JobsCancelled:       m.cancelled,
		RecentExecutionTime: average(m.recent),
		JobsByStatus:        byStatus,
		BySource:            bySource,
		SuccessRate:         m.successRate(),
		CurrentWorkload:     m.workload(),
		LastUpdated:         m.lastUpdated,
	}
	if m.completed > 0 {
		data.AverageExecutionTime = m.totalTime / time.Duration(m.completed)
	}
	if m.lastFinished != nil {
		last := *m.lastFinished
		data.LastFinished = &last
	}
	if m.lastSuccessAt != nil {
		at := *m.lastSuccessAt
		data.LastSuccessAt = &at
	}
	return data
}

// SuccessRate is completed / (completed + failed), or 1 when nothing has settled.
// Cancelled jobs count as neither.
func (m *JobMetrics) SuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.successRate()
}

// CurrentWorkload is the number of pending and running jobs.
func (m *JobMetrics) CurrentWorkload() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workload()
}

func (m *JobMetrics) successRate() float64 {
	settled := m.completed + m.failed
	if settled == 0 {
		return 1.0
	}
	return float64(m.completed) / float64(settled)
}

func (m *JobMetrics) workload() int64 {
	return m.byStatus[model.JobStatusPending] + m.byStatus[model.JobStatusRunning]
}

func average(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return total / time.Duration(len(samples))
}
