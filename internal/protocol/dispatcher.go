package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	searchErrors "github.com/gcbaptista/patient-search/internal/errors"
	"github.com/gcbaptista/patient-search/model"
)

// Searcher runs the search pipeline.
type Searcher interface {
	Search(ctx context.Context, req model.SearchRequest) (model.SearchResponse, error)
}

// Syncer runs a background sync and returns once it has settled.
type Syncer interface {
	Sync(ctx context.Context, cfg json.RawMessage) (model.SyncReport, error)
}

// Recorder counts dispatched messages.
type Recorder interface {
	ObserveMessage(requestType, replyType string)
}

// Dispatcher routes request envelopes to the search pipeline or the sync task
// and turns every outcome, including panics, into a correlated reply.
type Dispatcher struct {
	searcher Searcher
	syncer   Syncer
	recorder Recorder
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher. recorder and logger may be nil.
func NewDispatcher(searcher Searcher, syncer Syncer, recorder Recorder, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		searcher: searcher,
		syncer:   syncer,
		recorder: recorder,
		logger:   logger.Named("dispatcher"),
	}
}

// Handle processes one message to completion and returns its reply.
// It never panics and never returns a reply without the request id.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) (reply Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("message handler panicked",
				zap.String("type", msg.Type),
				zap.String("id", msg.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			reply = ErrorReply(msg.ID, fmt.Errorf("internal error: %v", r))
		}
		if d.recorder != nil {
			d.recorder.ObserveMessage(msg.Type, reply.Type)
		}
	}()

	var (
		out Message
		err error
	)
	switch msg.Type {
	case TypeSearchPatients:
		out, err = d.handleSearch(ctx, msg)
	case TypeSyncData:
		out, err = d.handleSync(ctx, msg)
	default:
		err = searchErrors.NewUnrecognizedMessageTypeError(msg.Type)
	}

	if err != nil {
		d.logger.Warn("message failed", zap.String("type", msg.Type), zap.String("id", msg.ID), zap.Error(err))
		return ErrorReply(msg.ID, err)
	}
	return out
}

func (d *Dispatcher) handleSearch(ctx context.Context, msg Message) (Message, error) {
	req, err := decodeSearch(msg.Payload)
	if err != nil {
		return Message{}, err
	}

	resp, err := d.searcher.Search(ctx, req)
	if err != nil {
		return Message{}, err
	}

	hits := resp.Hits
	if hits == nil {
		hits = []model.ScoredResult{}
	}
	payload, err := json.Marshal(hits)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode search results: %w", err)
	}
	return Message{Type: TypeSearchResults, Payload: payload, ID: msg.ID}, nil
}

func (d *Dispatcher) handleSync(ctx context.Context, msg Message) (Message, error) {
	report, err := d.syncer.Sync(ctx, msg.Payload)
	if err != nil {
		return Message{}, err
	}

	payload, err := json.Marshal(SyncCompletePayload{
		Success:      true,
		PatientCount: report.PatientCount,
		Version:      report.Version,
		JobID:        report.JobID,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode sync result: %w", err)
	}
	return Message{Type: TypeSyncComplete, Payload: payload, ID: msg.ID}, nil
}

func decodeSearch(raw json.RawMessage) (model.SearchRequest, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return model.SearchRequest{}, searchErrors.NewInvalidPayloadError(TypeSearchPatients, "payload is required", nil)
	}

	var payload SearchPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return model.SearchRequest{}, searchErrors.NewInvalidPayloadError(TypeSearchPatients, "malformed payload", err)
	}
	if payload.Query == nil {
		return model.SearchRequest{}, searchErrors.NewInvalidPayloadError(TypeSearchPatients, "query is required", nil)
	}

	req := model.SearchRequest{Query: *payload.Query}
	if payload.Filters != nil {
		req.Filters = *payload.Filters
	}
	return req, nil
}

// Run serves messages from in until it is closed or ctx is cancelled.
// Searches are handled inline in arrival order. Each sync runs on its own goroutine
// and replies when it settles, so its reply may be overtaken by later search replies.
// Run waits for in-flight syncs before returning.
func (d *Dispatcher) Run(ctx context.Context, in <-chan Message, out chan<- Message) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if msg.Type == TypeSyncData {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d.send(ctx, out, d.Handle(ctx, msg))
				}()
				continue
			}
			d.send(ctx, out, d.Handle(ctx, msg))
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, out chan<- Message, reply Message) {
	select {
	case out <- reply:
	case <-ctx.Done():
		d.logger.Warn("dropping reply after shutdown", zap.String("type", reply.Type), zap.String("id", reply.ID))
	}
}
