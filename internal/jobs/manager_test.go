package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	searchErrors "github.com/gcbaptista/patient-search/internal/errors"
	"github.com/gcbaptista/patient-search/model"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []model.JobStatus
}

func (o *recordingObserver) JobFinished(_ model.JobType, status model.JobStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) seen() []model.JobStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.JobStatus(nil), o.statuses...)
}

func TestJobManager_CreateJob(t *testing.T) {
	manager := NewManager(2)
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeSyncCorpus, map[string]string{"operation": "test"})
	if jobID == "" {
		t.Fatal("Expected non-empty job ID")
	}

	job, err := manager.GetJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get created job: %v", err)
	}
	if job.Type != model.JobTypeSyncCorpus {
		t.Errorf("Expected job type %s, got %s", model.JobTypeSyncCorpus, job.Type)
	}
	if job.Status != model.JobStatusPending {
		t.Errorf("Expected job status %s, got %s", model.JobStatusPending, job.Status)
	}
	if job.Metadata["operation"] != "test" {
		t.Errorf("Expected metadata to be kept, got %v", job.Metadata)
	}
}

func TestJobManager_GetJobUnknown(t *testing.T) {
	manager := NewManager(1)
	defer manager.Stop()

	_, err := manager.GetJob("nope")
	if !errors.Is(err, searchErrors.ErrJobNotFound) {
		t.Fatalf("Expected ErrJobNotFound, got %v", err)
	}

	_, err = manager.WaitJob(context.Background(), "nope")
	if !errors.Is(err, searchErrors.ErrJobNotFound) {
		t.Fatalf("Expected ErrJobNotFound from WaitJob, got %v", err)
	}
}

func TestJobManager_ExecuteAndWait(t *testing.T) {
	observer := &recordingObserver{}
	manager := NewManager(2, WithObserver(observer))
	manager.Start()
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeSyncCorpus, nil)

	err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		manager.UpdateJobProgress(job.ID, 50, 100, "Halfway done")
		time.Sleep(10 * time.Millisecond)
		manager.UpdateJobProgress(job.ID, 100, 100, "Completed")
		manager.SetJobMetadata(job.ID, "patient_count", "60")
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := manager.WaitJob(ctx, jobID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Progress)
	assert.Equal(t, 100, job.Progress.Current)
	assert.Equal(t, 100.0, job.Progress.GetProgressPercentage())
	assert.Equal(t, "60", job.Metadata["patient_count"])
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, []model.JobStatus{model.JobStatusCompleted}, observer.seen())

	metrics := manager.GetMetrics()
	assert.Equal(t, int64(1), metrics.JobsCreated)
	assert.Equal(t, int64(1), metrics.JobsCompleted)
	assert.Equal(t, int64(0), manager.GetCurrentWorkload())
}

func TestJobManager_FailedAndPanickingJobs(t *testing.T) {
	manager := NewManager(2)
	defer manager.Stop()

	failing := manager.CreateJob(model.JobTypeSyncCorpus, nil)
	require.NoError(t, manager.ExecuteJob(failing, func(context.Context, *model.Job) error {
		return errors.New("source down")
	}))

	panicking := manager.CreateJob(model.JobTypeSyncCorpus, nil)
	require.NoError(t, manager.ExecuteJob(panicking, func(context.Context, *model.Job) error {
		panic("boom")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job, err := manager.WaitJob(ctx, failing)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, "source down", job.Error)

	job, err = manager.WaitJob(ctx, panicking)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "boom")

	assert.Equal(t, 0.0, manager.GetJobSuccessRate())
}

func TestJobManager_ExecuteTwiceRejected(t *testing.T) {
	manager := NewManager(1)
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeSyncCorpus, nil)
	require.NoError(t, manager.ExecuteJob(jobID, func(context.Context, *model.Job) error { return nil }))

	_, err := manager.WaitJob(context.Background(), jobID)
	require.NoError(t, err)

	err = manager.ExecuteJob(jobID, func(context.Context, *model.Job) error { return nil })
	assert.Error(t, err)
}

func TestJobManager_WorkerLimitSerialisesJobs(t *testing.T) {
	manager := NewManager(1)
	defer manager.Stop()

	var mu sync.Mutex
	running, maxRunning := 0, 0
	work := func(context.Context, *model.Job) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}

	var ids []string
	for i := 0; i < 4; i++ {
		id := manager.CreateJob(model.JobTypeSyncCorpus, nil)
		require.NoError(t, manager.ExecuteJob(id, work))
		ids = append(ids, id)
	}
	for _, id := range ids {
		_, err := manager.WaitJob(context.Background(), id)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, maxRunning)
}

func TestJobManager_StopCancelsRunningJob(t *testing.T) {
	manager := NewManager(1)

	started := make(chan struct{})
	jobID := manager.CreateJob(model.JobTypeSyncCorpus, nil)
	require.NoError(t, manager.ExecuteJob(jobID, func(ctx context.Context, _ *model.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	<-started
	manager.Stop()

	job, err := manager.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, job.Status)

	err = manager.ExecuteJob(manager.CreateJob(model.JobTypeSyncCorpus, nil), func(context.Context, *model.Job) error { return nil })
	assert.Error(t, err, "a stopped manager must refuse new work")
}

func TestJobManager_ListAndCleanup(t *testing.T) {
	manager := NewManager(2)
	defer manager.Stop()

	first := manager.CreateJob(model.JobTypeSyncCorpus, nil)
	time.Sleep(time.Millisecond)
	second := manager.CreateJob(model.JobTypeSyncCorpus, nil)

	jobs := manager.ListJobs(nil)
	require.Len(t, jobs, 2)
	assert.Equal(t, second, jobs[0].ID, "newest job first")

	require.NoError(t, manager.ExecuteJob(first, func(context.Context, *model.Job) error { return nil }))
	_, err := manager.WaitJob(context.Background(), first)
	require.NoError(t, err)

	completed := model.JobStatusCompleted
	assert.Len(t, manager.ListJobs(&completed), 1)

	assert.Equal(t, 1, manager.CleanupOldJobs(0))
	_, err = manager.GetJob(first)
	assert.Error(t, err)
	_, err = manager.GetJob(second)
	assert.NoError(t, err, "pending jobs are never cleaned up")
}
