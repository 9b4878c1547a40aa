package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gcbaptista/patient-search/internal/jobs"
	"github.com/gcbaptista/patient-search/model"
)

type syncOutcome struct {
	report model.SyncReport
	err    error
}

// SyncAsync starts a corpus sync job and returns its ID.
func (e *Engine) SyncAsync(cfg json.RawMessage) (string, error) {
	return e.startSync(cfg, nil)
}

// Sync starts a corpus sync job and waits until it settles. The job keeps running
// if ctx ends first; only the wait is abandoned.
func (e *Engine) Sync(ctx context.Context, cfg json.RawMessage) (model.SyncReport, error) {
	outcome := make(chan syncOutcome, 1)
	jobID, err := e.startSync(cfg, outcome)
	if err != nil {
		return model.SyncReport{}, err
	}

	job, err := e.jobManager.WaitJob(ctx, jobID)
	if err != nil {
		return model.SyncReport{}, err
	}

	select {
	case out := <-outcome:
		if out.err != nil {
			return model.SyncReport{}, out.err
		}
		return out.report, nil
	default:
		return model.SyncReport{}, fmt.Errorf("sync job %s %s: %s", jobID, job.Status, job.Error)
	}
}

func (e *Engine) startSync(cfg json.RawMessage, outcome chan<- syncOutcome) (string, error) {
	jobID := e.jobManager.CreateJob(model.JobTypeSyncCorpus, map[string]string{
		"operation":         "sync_corpus",
		jobs.MetadataSource: e.store.ProviderName(),
	})

	err := e.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		return e.executeSyncJob(ctx, cfg, job.ID, outcome)
	})
	if err != nil {
		return "", fmt.Errorf("failed to start sync job: %w", err)
	}
	return jobID, nil
}

// executeSyncJob runs the sync task and records its outcome on the job.
func (e *Engine) executeSyncJob(ctx context.Context, cfg json.RawMessage, jobID string, outcome chan<- syncOutcome) error {
	report, err := e.task.RunWithProgress(ctx, cfg, func(current, total int, message string) {
		e.jobManager.UpdateJobProgress(jobID, current, total, message)
	})
	if err == nil {
		report.JobID = jobID
		e.jobManager.SetJobMetadata(jobID, jobs.MetadataPatientCount, strconv.Itoa(report.PatientCount))
		e.jobManager.SetJobMetadata(jobID, "corpus_version", strconv.FormatUint(report.Version, 10))
	}
	if outcome != nil {
		outcome <- syncOutcome{report: report, err: err}
	}
	return err
}
