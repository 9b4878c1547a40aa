// Package search runs the Filter, Score and Rank pipeline over the current corpus snapshot.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/internal/corpus"
	"github.com/gcbaptista/patient-search/model"
)

// SnapshotLoader returns the corpus snapshot to search.
type SnapshotLoader interface {
	Load(ctx context.Context) (*corpus.Snapshot, error)
}

// Recorder receives per-search measurements.
type Recorder interface {
	ObserveSearch(duration time.Duration, results int, parallel bool)
}

// Service implements patient search over a corpus store.
// It fulfils the services.PatientSearcher interface together with the engine.
type Service struct {
	corpus   SnapshotLoader
	settings config.SearchSettings
	pool     *ants.Pool
	recorder Recorder
	logger   *zap.Logger
}

// NewService creates a search Service. A worker pool is started when settings allow
// partitioned scoring; Close releases it.
func NewService(loader SnapshotLoader, settings config.SearchSettings, recorder Recorder, logger *zap.Logger) (*Service, error) {
	if loader == nil {
		return nil, fmt.Errorf("corpus loader cannot be nil")
	}
	if problems := settings.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid search settings: %s", problems[0])
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		corpus:   loader,
		settings: settings,
		recorder: recorder,
		logger:   logger.Named("search"),
	}
	if settings.Workers > 1 && settings.ParallelThreshold >= 0 {
		pool, err := ants.NewPool(settings.Workers)
		if err != nil {
			return nil, fmt.Errorf("failed to create scoring pool: %w", err)
		}
		s.pool = pool
	}
	return s, nil
}

// Close releases the scoring pool.
func (s *Service) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Search runs the pipeline for one request. An empty or whitespace-only query
// returns an empty result list without touching the corpus.
func (s *Service) Search(ctx context.Context, req model.SearchRequest) (model.SearchResponse, error) {
	start := time.Now()
	query := NormalizeQuery(req.Query)

	resp := model.SearchResponse{
		Hits:    []model.ScoredResult{},
		QueryID: uuid.New().String(),
	}
	if query == "" {
		resp.Took = time.Since(start).Milliseconds()
		return resp, nil
	}

	snap, err := s.corpus.Load(ctx)
	if err != nil {
		return model.SearchResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.SearchResponse{}, err
	}

	parallel := s.pool != nil && s.settings.ParallelEnabled(len(snap.Patients))
	var results []model.ScoredResult
	if parallel {
		results = s.scorePartitioned(query, req.Filters, snap.Patients)
	} else {
		results = scorePatients(query, req.Filters, snap.Patients)
	}
	results = Rank(results)

	resp.Total = len(results)
	if s.settings.MaxResults > 0 && len(results) > s.settings.MaxResults {
		results = results[:s.settings.MaxResults]
	}
	if results != nil {
		resp.Hits = results
	}
	resp.CorpusVersion = snap.Version
	resp.Parallel = parallel

	elapsed := time.Since(start)
	resp.Took = elapsed.Milliseconds()
	if s.recorder != nil {
		s.recorder.ObserveSearch(elapsed, resp.Total, parallel)
	}
	s.logger.Debug("search completed",
		zap.String("query_id", resp.QueryID),
		zap.Int("corpus_size", len(snap.Patients)),
		zap.Int("total", resp.Total),
		zap.Bool("parallel", parallel),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}

// scorePartitioned scores fixed-size partitions on the pool and concatenates them
// in partition order, which keeps the stable ranking identical to the sequential path.
func (s *Service) scorePartitioned(query string, filters model.Filters, patients []model.Patient) []model.ScoredResult {
	size := s.settings.PartitionSize
	count := (len(patients) + size - 1) / size
	parts := make([][]model.ScoredResult, count)

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		lo := i * size
		hi := min(lo+size, len(patients))
		idx := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			parts[idx] = scorePatients(query, filters, patients[lo:hi])
		}
		if err := s.pool.Submit(task); err != nil {
			s.logger.Warn("scoring pool rejected partition, scoring inline", zap.Error(err))
			task()
		}
	}
	wg.Wait()

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	results := make([]model.ScoredResult, 0, total)
	for _, p := range parts {
		results = append(results, p...)
	}
	return results
}
