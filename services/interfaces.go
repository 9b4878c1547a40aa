// Package services declares the operations the transports depend on.
package services

import (
	"context"
	"encoding/json"

	"github.com/gcbaptista/patient-search/internal/jobs"
	"github.com/gcbaptista/patient-search/model"
)

// PatientSearcher runs patient searches over the corpus in service.
type PatientSearcher interface {
	Search(ctx context.Context, req model.SearchRequest) (model.SearchResponse, error)
}

// CorpusSyncer refreshes the corpus.
type CorpusSyncer interface {
	// Sync runs a refresh and returns once it has settled.
	Sync(ctx context.Context, cfg json.RawMessage) (model.SyncReport, error)
	// SyncAsync starts a refresh and returns its job ID immediately.
	SyncAsync(cfg json.RawMessage) (string, error)
	// CorpusInfo describes the snapshot in service.
	CorpusInfo() model.CorpusInfo
}

// JobManager defines operations for inspecting background jobs
type JobManager interface {
	GetJob(jobID string) (*model.Job, error)
	ListJobs(status *model.JobStatus) []*model.Job
	JobMetrics() jobs.JobMetricsData
	JobSuccessRate() float64
	CurrentWorkload() int64
}

// AnalyticsProvider summarises recent search activity
type AnalyticsProvider interface {
	Analytics() model.AnalyticsDashboard
}

// Engine is everything the transports need.
type Engine interface {
	PatientSearcher
	CorpusSyncer
	JobManager
	AnalyticsProvider
}
