// Package engine wires the corpus store, search pipeline, job manager and sync task together.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/internal/analytics"
	"github.com/gcbaptista/patient-search/internal/corpus"
	"github.com/gcbaptista/patient-search/internal/jobs"
	"github.com/gcbaptista/patient-search/internal/metrics"
	"github.com/gcbaptista/patient-search/internal/protocol"
	"github.com/gcbaptista/patient-search/internal/search"
	"github.com/gcbaptista/patient-search/internal/syncer"
	"github.com/gcbaptista/patient-search/model"
)

// Options configures an Engine.
type Options struct {
	Provider corpus.Provider
	Corpus   config.CorpusConfig
	Search   config.SearchSettings
	Sync     config.SyncSettings
	Logger   *zap.Logger
}

// Engine owns the corpus snapshot and every component that reads or refreshes it.
// It implements the services.Engine interface.
type Engine struct {
	store      *corpus.Store
	searcher   *search.Service
	task       *syncer.Task
	jobManager *jobs.Manager
	analytics  *analytics.Service
	recorder   metrics.Recorder
	logger     *zap.Logger
}

// New creates an Engine and starts its job manager. The corpus is loaded lazily
// on first search unless Warmup is called.
func New(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("corpus provider cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if problems := opts.Sync.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid sync settings: %s", problems[0])
	}

	recorder := metrics.NewRecorder()

	store := corpus.NewStore(opts.Provider,
		corpus.WithProviderTimeout(opts.Corpus.ProviderTimeout),
		corpus.WithDataDir(opts.Corpus.DataDir),
		corpus.WithOnSwap(recorder.CorpusSwapped),
		corpus.WithStoreLogger(logger))

	searcher, err := search.NewService(store, opts.Search, recorder, logger)
	if err != nil {
		return nil, err
	}

	invalidator, _ := opts.Provider.(corpus.Invalidator)
	task := syncer.NewTask(store, invalidator, opts.Sync, recorder, logger)

	jobManager := jobs.NewManager(opts.Sync.MaxConcurrent,
		jobs.WithObserver(recorder),
		jobs.WithRetention(opts.Sync.JobRetention),
		jobs.WithLogger(logger))
	jobManager.Start()

	e := &Engine{
		store:      store,
		searcher:   searcher,
		task:       task,
		jobManager: jobManager,
		recorder:   recorder,
		logger:     logger.Named("engine"),
	}
	e.analytics = analytics.NewService(e)
	return e, nil
}

// Warmup loads the initial corpus snapshot.
func (e *Engine) Warmup(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	e.logger.Info("corpus ready",
		zap.String("source", snap.Source),
		zap.Int("patients", len(snap.Patients)),
		zap.Uint64("version", snap.Version))
	return nil
}

// Search runs the search pipeline over the snapshot in service.
// Successful searches are tracked for the analytics dashboard.
func (e *Engine) Search(ctx context.Context, req model.SearchRequest) (model.SearchResponse, error) {
	start := time.Now()
	resp, err := e.searcher.Search(ctx, req)
	if err != nil {
		return resp, err
	}
	e.analytics.TrackSearchEvent(analytics.NewSearchEvent(req, resp, time.Since(start)))
	return resp, nil
}

// Analytics summarises recent searches.
func (e *Engine) Analytics() model.AnalyticsDashboard {
	return e.analytics.GetDashboardData()
}

// CorpusInfo describes the snapshot in service.
func (e *Engine) CorpusInfo() model.CorpusInfo {
	snap := e.store.Current()
	if snap == nil {
		return model.CorpusInfo{Source: e.store.ProviderName()}
	}
	return model.CorpusInfo{
		Loaded:   true,
		Patients: len(snap.Patients),
		Version:  snap.Version,
		Source:   snap.Source,
		LoadedAt: snap.LoadedAt,
	}
}

// Dispatcher returns a message dispatcher bound to this engine.
func (e *Engine) Dispatcher() *protocol.Dispatcher {
	return protocol.NewDispatcher(e, e, e.recorder, e.logger)
}

// GetJob retrieves a job by ID
func (e *Engine) GetJob(jobID string) (*model.Job, error) {
	return e.jobManager.GetJob(jobID)
}

// ListJobs returns jobs, newest first, optionally filtered by status
func (e *Engine) ListJobs(status *model.JobStatus) []*model.Job {
	return e.jobManager.ListJobs(status)
}

// JobMetrics returns the job manager counters
func (e *Engine) JobMetrics() jobs.JobMetricsData {
	return e.jobManager.GetMetrics()
}

// JobSuccessRate returns the share of settled sync jobs that completed
func (e *Engine) JobSuccessRate() float64 {
	return e.jobManager.GetJobSuccessRate()
}

// CurrentWorkload returns the number of pending and running sync jobs
func (e *Engine) CurrentWorkload() int64 {
	return e.jobManager.GetCurrentWorkload()
}

// Close stops background jobs and releases the scoring pool.
func (e *Engine) Close() {
	e.jobManager.Stop()
	e.searcher.Close()
}
