package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/internal/protocol"
	"github.com/gcbaptista/patient-search/model"
)

type fakeReader struct {
	records   chan kafkago.Message
	fetchErrs chan error

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{records: make(chan kafkago.Message, 16), fetchErrs: make(chan error, 4)}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case err := <-r.fetchErrs:
		return kafkago.Message{}, err
	default:
	}
	select {
	case m := <-r.records:
		return m, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeWriter struct {
	mu      sync.Mutex
	written []kafkago.Message
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) replies(t *testing.T) []protocol.Message {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]protocol.Message, 0, len(w.written))
	for _, m := range w.written {
		var msg protocol.Message
		require.NoError(t, json.Unmarshal(m.Value, &msg))
		out = append(out, msg)
	}
	return out
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, req model.SearchRequest) (model.SearchResponse, error) {
	return model.SearchResponse{Hits: []model.ScoredResult{{
		Patient:        model.Patient{ID: "P0001", Name: "Martin"},
		RelevanceScore: 100,
		MatchedFields:  []string{model.FieldName},
	}}, Total: 1}, nil
}

type stubSyncer struct{}

func (stubSyncer) Sync(context.Context, json.RawMessage) (model.SyncReport, error) {
	return model.SyncReport{PatientCount: 60, Version: 2}, nil
}

func record(t *testing.T, offset int64, msgType, id string, payload any) kafkago.Message {
	t.Helper()
	msg, err := protocol.NewRequest(msgType, id, payload)
	require.NoError(t, err)
	value, err := json.Marshal(msg)
	require.NoError(t, err)
	return kafkago.Message{Offset: offset, Value: value}
}

func startBridge(t *testing.T, reader *fakeReader, writer *fakeWriter) (context.CancelFunc, <-chan error) {
	t.Helper()
	dispatcher := protocol.NewDispatcher(stubSearcher{}, stubSyncer{}, nil, nil)
	bridge := NewBridge(reader, writer, dispatcher, nil)
	bridge.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestBridge_RepliesWithCorrelationID(t *testing.T) {
	reader, writer := newFakeReader(), &fakeWriter{}
	cancel, done := startBridge(t, reader, writer)

	reader.records <- record(t, 1, protocol.TypeSearchPatients, "req-1", map[string]string{"query": "martin"})
	reader.records <- record(t, 2, protocol.TypeSyncData, "req-2", map[string]int{"delayMs": 0})
	reader.records <- record(t, 3, "BOGUS", "req-3", nil)

	require.Eventually(t, func() bool { return len(writer.replies(t)) == 3 }, 2*time.Second, 5*time.Millisecond)

	byID := map[string]protocol.Message{}
	for _, reply := range writer.replies(t) {
		byID[reply.ID] = reply
	}
	assert.Equal(t, protocol.TypeSearchResults, byID["req-1"].Type)
	assert.Equal(t, protocol.TypeSyncComplete, byID["req-2"].Type)
	assert.Equal(t, protocol.TypeError, byID["req-3"].Type)
	assert.Equal(t, "Unrecognized message type: BOGUS", byID["req-3"].Error)

	results, err := protocol.DecodeResults(byID["req-1"])
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "P0001", results[0].ID)

	writer.mu.Lock()
	for _, m := range writer.written {
		var msg protocol.Message
		require.NoError(t, json.Unmarshal(m.Value, &msg))
		assert.Equal(t, msg.ID, string(m.Key))
		require.Len(t, m.Headers, 1)
		assert.Equal(t, msg.Type, string(m.Headers[0].Value))
	}
	writer.mu.Unlock()

	assert.ElementsMatch(t, []int64{1, 2, 3}, reader.commits())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestBridge_UndecodableMessageIsCommittedAndSkipped(t *testing.T) {
	reader, writer := newFakeReader(), &fakeWriter{}
	startBridge(t, reader, writer)

	reader.records <- kafkago.Message{Offset: 7, Value: []byte("{not json")}
	reader.records <- record(t, 8, protocol.TypeSearchPatients, "after", map[string]string{"query": "m"})

	require.Eventually(t, func() bool { return len(writer.replies(t)) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "after", writer.replies(t)[0].ID)
	assert.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []int64{7, 8}, reader.commits())
}

func TestBridge_MalformedEnvelopeWithIDGetsErrorReply(t *testing.T) {
	reader, writer := newFakeReader(), &fakeWriter{}
	startBridge(t, reader, writer)

	reader.records <- kafkago.Message{Offset: 3, Value: []byte(`{"type":5,"payload":null,"id":"t3"}`)}

	require.Eventually(t, func() bool { return len(writer.replies(t)) == 1 }, 2*time.Second, 5*time.Millisecond)
	reply := writer.replies(t)[0]
	assert.Equal(t, "t3", reply.ID)
	assert.Equal(t, protocol.TypeError, reply.Type)
	assert.Contains(t, reply.Error, "malformed message envelope")

	writer.mu.Lock()
	published := writer.written[0]
	writer.mu.Unlock()
	assert.Equal(t, "t3", string(published.Key))
	require.Len(t, published.Headers, 1)
	assert.Equal(t, protocol.TypeError, string(published.Headers[0].Value))

	assert.Eventually(t, func() bool { return len(reader.commits()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{3}, reader.commits())
}

func TestBridge_FetchErrorsAreRetried(t *testing.T) {
	reader, writer := newFakeReader(), &fakeWriter{}
	reader.fetchErrs <- errors.New("broker not available")
	reader.fetchErrs <- errors.New("broker not available")
	startBridge(t, reader, writer)

	reader.records <- record(t, 1, protocol.TypeSearchPatients, "retry", map[string]string{"query": "m"})

	require.Eventually(t, func() bool { return len(writer.replies(t)) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "retry", writer.replies(t)[0].ID)
}

func TestBridge_Close(t *testing.T) {
	reader, writer := newFakeReader(), &fakeWriter{}
	bridge := NewBridge(reader, writer, protocol.NewDispatcher(stubSearcher{}, stubSyncer{}, nil, nil), nil)

	require.NoError(t, bridge.Close())
	assert.True(t, reader.closed)
	assert.True(t, writer.closed)
}

func TestNewReaderAndWriter(t *testing.T) {
	cfg := config.Default().Kafka
	cfg.Brokers = []string{"localhost:9092"}

	reader := NewReader(cfg)
	defer reader.Close()
	assert.Equal(t, cfg.RequestTopic, reader.Config().Topic)
	assert.Equal(t, cfg.GroupID, reader.Config().GroupID)

	writer := NewWriter(cfg)
	defer writer.Close()
	assert.Equal(t, cfg.ResponseTopic, writer.Topic)
}
