// Package syncer implements the background corpus refresh.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/internal/corpus"
	searchErrors "github.com/gcbaptista/patient-search/internal/errors"
	"github.com/gcbaptista/patient-search/internal/protocol"
	"github.com/gcbaptista/patient-search/model"
)

// Refresher swaps in a fresh corpus snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (*corpus.Snapshot, error)
}

// Recorder receives per-sync measurements.
type Recorder interface {
	ObserveSync(duration time.Duration, err error)
}

// ProgressFunc reports the current step of a running sync.
type ProgressFunc func(current, total int, message string)

// Options is the decoded sync configuration payload. Unknown fields are ignored.
type Options struct {
	DelayMs     *int64 `json:"delayMs,omitempty"`
	BypassCache bool   `json:"bypassCache,omitempty"`
}

// ParseOptions decodes a raw configuration payload. An absent or null payload yields zero Options.
// delayMs must lie in [0, maxDelay]; a non-positive maxDelay disables the upper bound check.
func ParseOptions(raw json.RawMessage, maxDelay time.Duration) (Options, error) {
	var opts Options
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return opts, nil
	}
	if err := json.Unmarshal(trimmed, &opts); err != nil {
		return Options{}, searchErrors.NewInvalidPayloadError(protocol.TypeSyncData, "malformed configuration", err)
	}
	if opts.DelayMs != nil && *opts.DelayMs < 0 {
		return Options{}, searchErrors.NewInvalidPayloadError(protocol.TypeSyncData, "delayMs cannot be negative", nil)
	}
	if opts.DelayMs != nil && maxDelay > 0 && *opts.DelayMs > maxDelay.Milliseconds() {
		return Options{}, searchErrors.NewInvalidPayloadError(protocol.TypeSyncData,
			fmt.Sprintf("delayMs cannot exceed %d", maxDelay.Milliseconds()), nil)
	}
	return opts, nil
}

// Task refreshes the corpus after a variable delay standing in for the upstream transfer.
type Task struct {
	store       Refresher
	invalidator corpus.Invalidator
	settings    config.SyncSettings
	recorder    Recorder
	logger      *zap.Logger
	jitter      func(n int64) int64
}

// NewTask creates a sync task. invalidator and recorder may be nil.
func NewTask(store Refresher, invalidator corpus.Invalidator, settings config.SyncSettings, recorder Recorder, logger *zap.Logger) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Task{
		store:       store,
		invalidator: invalidator,
		settings:    settings,
		recorder:    recorder,
		logger:      logger.Named("sync"),
		jitter:      rand.Int63n,
	}
}

// Run performs one sync and returns once the new snapshot is in service.
func (t *Task) Run(ctx context.Context, raw json.RawMessage) (model.SyncReport, error) {
	return t.RunWithProgress(ctx, raw, nil)
}

// RunWithProgress is Run with step reporting.
func (t *Task) RunWithProgress(ctx context.Context, raw json.RawMessage, progress ProgressFunc) (report model.SyncReport, err error) {
	start := time.Now()
	defer func() {
		if t.recorder != nil {
			t.recorder.ObserveSync(time.Since(start), err)
		}
	}()
	if progress == nil {
		progress = func(int, int, string) {}
	}

	opts, err := ParseOptions(raw, t.settings.MaxRequestedDelay)
	if err != nil {
		return model.SyncReport{}, err
	}

	const steps = 3
	delay := t.delay(opts)
	progress(0, steps, "waiting for upstream")
	t.logger.Debug("sync started", zap.Duration("delay", delay), zap.Bool("bypass_cache", opts.BypassCache))

	if err := sleep(ctx, delay); err != nil {
		return model.SyncReport{}, err
	}

	progress(1, steps, "invalidating cache")
	if opts.BypassCache && t.invalidator != nil {
		if err := t.invalidator.Invalidate(ctx); err != nil {
			t.logger.Warn("cache invalidation failed, refreshing anyway", zap.Error(err))
		}
	}

	progress(2, steps, "refreshing corpus")
	snap, err := t.store.Refresh(ctx)
	if err != nil {
		return model.SyncReport{}, err
	}
	progress(steps, steps, "corpus refreshed")

	report = model.SyncReport{
		PatientCount: len(snap.Patients),
		Version:      snap.Version,
		Source:       snap.Source,
		Duration:     time.Since(start),
	}
	t.logger.Info("sync completed",
		zap.Int("patients", report.PatientCount),
		zap.Uint64("version", report.Version),
		zap.Duration("elapsed", report.Duration))
	return report, nil
}

// delay picks the simulated transfer time, honouring an explicit delayMs.
func (t *Task) delay(opts Options) time.Duration {
	if opts.DelayMs != nil {
		return time.Duration(*opts.DelayMs) * time.Millisecond
	}
	spread := int64(t.settings.MaxDelay - t.settings.MinDelay)
	if spread <= 0 {
		return t.settings.MinDelay
	}
	return t.settings.MinDelay + time.Duration(t.jitter(spread+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
