// Package testutil provides helpers shared by tests that drive a full engine.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/internal/corpus"
	"github.com/gcbaptista/patient-search/internal/engine"
	"github.com/gcbaptista/patient-search/model"
	"github.com/gcbaptista/patient-search/services"
)

// EngineOption adjusts the options of a test engine
type EngineOption func(*engine.Options)

// WithProvider replaces the synthetic corpus
func WithProvider(p corpus.Provider) EngineOption {
	return func(o *engine.Options) { o.Provider = p }
}

// WithSearchSettings replaces the search settings
func WithSearchSettings(s config.SearchSettings) EngineOption {
	return func(o *engine.Options) { o.Search = s }
}

// CreateTestEngine creates an engine over the default synthetic corpus with
// sync delays disabled. It is closed when the test ends.
func CreateTestEngine(t *testing.T, opts ...EngineOption) *engine.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Sync.MinDelay, cfg.Sync.MaxDelay = 0, 0

	options := engine.Options{
		Provider: corpus.NewSyntheticProvider(corpus.DefaultSyntheticSize),
		Corpus:   cfg.Corpus,
		Search:   cfg.Search,
		Sync:     cfg.Sync,
	}
	for _, opt := range opts {
		opt(&options)
	}

	eng, err := engine.New(options)
	require.NoError(t, err, "Failed to create test engine")
	t.Cleanup(eng.Close)
	return eng
}

// JobPollingOptions configures job polling behavior
type JobPollingOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	LogProgress  bool
}

// DefaultJobPollingOptions returns sensible defaults for job polling
func DefaultJobPollingOptions() JobPollingOptions {
	return JobPollingOptions{
		Timeout:      10 * time.Second,
		PollInterval: 10 * time.Millisecond,
		LogProgress:  true,
	}
}

// WaitForJobCompletion polls a job until it finishes or times out and returns it.
// A failed or cancelled job is returned too; use AssertJobCompleted to require success.
func WaitForJobCompletion(t *testing.T, jobManager services.JobManager, jobID string, opts JobPollingOptions) *model.Job {
	t.Helper()
	timeout := time.After(opts.Timeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			t.Fatalf("Job %s did not finish within %v", jobID, opts.Timeout)
			return nil
		case <-ticker.C:
			job, err := jobManager.GetJob(jobID)
			require.NoError(t, err, "Failed to get job status")

			if job.Status.IsFinished() {
				if opts.LogProgress && job.CompletedAt != nil {
					t.Logf("Job %s %s in %v", jobID, job.Status, job.CompletedAt.Sub(job.CreatedAt))
				}
				return job
			}
			if opts.LogProgress && job.Progress != nil {
				t.Logf("Job %s progress: %d/%d - %s",
					jobID,
					job.Progress.Current,
					job.Progress.Total,
					job.Progress.Message)
			}
		}
	}
}

// AssertJobCompleted verifies that a job completed successfully
func AssertJobCompleted(t *testing.T, job *model.Job, expectedType model.JobType) {
	t.Helper()
	assert.Equal(t, model.JobStatusCompleted, job.Status, "Job should be completed")
	assert.Equal(t, expectedType, job.Type, "Job type should match")
	assert.NotNil(t, job.CompletedAt, "Job should have completion timestamp")
	assert.Empty(t, job.Error, "Job should not have error")
}

// SearchTestCase represents a test case for search operations
type SearchTestCase struct {
	Name          string
	Request       model.SearchRequest
	ExpectedCount int      // compared with the response total; negative skips the check
	ExpectedFirst string   // expected first patient ID
	ExpectedIDs   []string // expected patient IDs in rank order, when set
	ValidateFunc  func(t *testing.T, resp model.SearchResponse)
}

// RunSearchTests runs a suite of search tests against a searcher
func RunSearchTests(t *testing.T, searcher services.PatientSearcher, tests []SearchTestCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			resp, err := searcher.Search(context.Background(), tt.Request)
			require.NoError(t, err, "Search should not fail")
			require.NotNil(t, resp.Hits, "Hits should never be nil")

			if tt.ExpectedCount >= 0 {
				assert.Equal(t, tt.ExpectedCount, resp.Total, "Result count should match")
			}
			if tt.ExpectedFirst != "" {
				require.NotEmpty(t, resp.Hits, "Expected at least one hit")
				assert.Equal(t, tt.ExpectedFirst, resp.Hits[0].ID, "First result should match expected")
			}
			if tt.ExpectedIDs != nil {
				ids := make([]string, 0, len(resp.Hits))
				for _, hit := range resp.Hits {
					ids = append(ids, hit.ID)
				}
				assert.Equal(t, tt.ExpectedIDs, ids, "Ranked IDs should match")
			}
			if tt.ValidateFunc != nil {
				tt.ValidateFunc(t, resp)
			}
		})
	}
}
