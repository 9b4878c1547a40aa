package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/internal/corpus"
	searchErrors "github.com/gcbaptista/patient-search/internal/errors"
	"github.com/gcbaptista/patient-search/internal/search"
	"github.com/gcbaptista/patient-search/model"
)

// --- Test Helpers ---

type gatedSyncer struct {
	release chan struct{}
	err     error
	calls   int
	mu      sync.Mutex
}

func (s *gatedSyncer) Sync(ctx context.Context, _ json.RawMessage) (model.SyncReport, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return model.SyncReport{}, ctx.Err()
		}
	}
	if s.err != nil {
		return model.SyncReport{}, s.err
	}
	return model.SyncReport{JobID: "job-1", PatientCount: 60, Version: 2}, nil
}

type panickingSearcher struct{}

func (panickingSearcher) Search(context.Context, model.SearchRequest) (model.SearchResponse, error) {
	var m map[string]int
	m["boom"]++
	return model.SearchResponse{}, nil
}

type nilHitsSearcher struct{}

func (nilHitsSearcher) Search(context.Context, model.SearchRequest) (model.SearchResponse, error) {
	return model.SearchResponse{}, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	replies map[string]int
}

func (r *fakeRecorder) ObserveMessage(requestType, replyType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replies == nil {
		r.replies = make(map[string]int)
	}
	r.replies[requestType+"->"+replyType]++
}

func newSearcher(t *testing.T) *search.Service {
	t.Helper()
	settings := config.DefaultSearchSettings()
	settings.ParallelThreshold = -1
	svc, err := search.NewService(corpus.NewStore(corpus.NewSyntheticProvider(60)), settings, nil, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func decode(t *testing.T, raw string) Message {
	t.Helper()
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return msg
}

// --- Test Cases ---

func TestHandle_SearchMartin(t *testing.T) {
	d := NewDispatcher(newSearcher(t), &gatedSyncer{}, nil, nil)

	reply := d.Handle(context.Background(), decode(t,
		`{"type":"SEARCH_PATIENTS","payload":{"query":"Martin","filters":{}},"id":"t1"}`))

	assert.Equal(t, TypeSearchResults, reply.Type)
	assert.Equal(t, "t1", reply.ID)
	assert.Empty(t, reply.Error)

	results, err := DecodeResults(reply)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Martin", results[0].Name)
	assert.True(t, results[0].HasField(model.FieldName))
	assert.GreaterOrEqual(t, results[0].RelevanceScore, 100)
}

func TestHandle_SearchWithFilters(t *testing.T) {
	d := NewDispatcher(newSearcher(t), &gatedSyncer{}, nil, nil)

	reply := d.Handle(context.Background(), decode(t,
		`{"type":"SEARCH_PATIENTS","payload":{"query":"a","filters":{"site":"Delta","floor":null}},"id":"f"}`))

	results, err := DecodeResults(reply)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "Delta", r.Site)
	}
}

func TestHandle_EmptyQueryYieldsEmptyArray(t *testing.T) {
	d := NewDispatcher(newSearcher(t), &gatedSyncer{}, nil, nil)

	for _, q := range []string{`""`, `"   "`} {
		reply := d.Handle(context.Background(), decode(t,
			`{"type":"SEARCH_PATIENTS","payload":{"query":`+q+`},"id":"e"}`))
		assert.Equal(t, TypeSearchResults, reply.Type)
		assert.JSONEq(t, `[]`, string(reply.Payload))
	}

	reply := NewDispatcher(nilHitsSearcher{}, nil, nil, nil).Handle(context.Background(), decode(t,
		`{"type":"SEARCH_PATIENTS","payload":{"query":"x"},"id":"n"}`))
	assert.JSONEq(t, `[]`, string(reply.Payload))
}

func TestHandle_UnrecognizedType(t *testing.T) {
	d := NewDispatcher(newSearcher(t), &gatedSyncer{}, nil, nil)

	reply := d.Handle(context.Background(), decode(t, `{"type":"BOGUS","payload":null,"id":"t2"}`))

	assert.Equal(t, TypeError, reply.Type)
	assert.Equal(t, "t2", reply.ID)
	assert.Equal(t, "Unrecognized message type: BOGUS", reply.Error)

	data, err := json.Marshal(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ERROR","payload":null,"id":"t2","error":"Unrecognized message type: BOGUS"}`, string(data))
}

func TestHandle_InvalidSearchPayloads(t *testing.T) {
	d := NewDispatcher(newSearcher(t), &gatedSyncer{}, nil, nil)

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"null payload", `null`, "payload is required"},
		{"missing query", `{"filters":{}}`, "query is required"},
		{"query not a string", `{"query":42}`, "malformed payload"},
		{"filters not an object", `{"query":"a","filters":"Delta"}`, "malformed payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := d.Handle(context.Background(), Message{
				Type:    TypeSearchPatients,
				Payload: json.RawMessage(tt.payload),
				ID:      "bad",
			})
			assert.Equal(t, TypeError, reply.Type)
			assert.Equal(t, "bad", reply.ID)
			assert.Contains(t, reply.Error, tt.want)
			assert.Equal(t, "null", string(reply.Payload))
		})
	}
}

func TestHandle_PanicBecomesError(t *testing.T) {
	recorder := &fakeRecorder{}
	d := NewDispatcher(panickingSearcher{}, &gatedSyncer{}, recorder, nil)

	var reply Message
	assert.NotPanics(t, func() {
		reply = d.Handle(context.Background(), Message{
			Type:    TypeSearchPatients,
			Payload: json.RawMessage(`{"query":"x"}`),
			ID:      "p",
		})
	})
	assert.Equal(t, TypeError, reply.Type)
	assert.Equal(t, "p", reply.ID)
	assert.Contains(t, reply.Error, "internal error")
	assert.Equal(t, 1, recorder.replies["SEARCH_PATIENTS->ERROR"])
}

func TestHandle_Sync(t *testing.T) {
	d := NewDispatcher(newSearcher(t), &gatedSyncer{}, nil, nil)

	reply := d.Handle(context.Background(), Message{Type: TypeSyncData, Payload: json.RawMessage(`{}`), ID: "s1"})
	require.Equal(t, TypeSyncComplete, reply.Type)
	assert.Equal(t, "s1", reply.ID)

	var payload SyncCompletePayload
	require.NoError(t, json.Unmarshal(reply.Payload, &payload))
	assert.True(t, payload.Success)
	assert.Equal(t, 60, payload.PatientCount)
	assert.Equal(t, "job-1", payload.JobID)

	failing := NewDispatcher(newSearcher(t), &gatedSyncer{err: errors.New("corpus source down")}, nil, nil)
	reply = failing.Handle(context.Background(), Message{Type: TypeSyncData, ID: "s2"})
	assert.Equal(t, TypeError, reply.Type)
	assert.Equal(t, "s2", reply.ID)
	assert.Equal(t, "corpus source down", reply.Error)
}

func TestRun_SyncReplyOvertakenBySearch(t *testing.T) {
	syncer := &gatedSyncer{release: make(chan struct{})}
	d := NewDispatcher(newSearcher(t), syncer, nil, nil)

	in := make(chan Message)
	out := make(chan Message, 4)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), in, out) }()

	in <- Message{Type: TypeSyncData, Payload: json.RawMessage(`{"delayMs":0}`), ID: "sync"}
	in <- Message{Type: TypeSearchPatients, Payload: json.RawMessage(`{"query":"martin"}`), ID: "search"}

	first := <-out
	assert.Equal(t, "search", first.ID, "search must not wait for the sync")
	assert.Equal(t, TypeSearchResults, first.Type)

	select {
	case early := <-out:
		t.Fatalf("sync replied before it settled: %+v", early)
	case <-time.After(20 * time.Millisecond):
	}

	close(syncer.release)
	second := <-out
	assert.Equal(t, "sync", second.ID)
	assert.Equal(t, TypeSyncComplete, second.Type)

	close(in)
	require.NoError(t, <-done)
}

func TestRun_SearchRepliesInArrivalOrder(t *testing.T) {
	d := NewDispatcher(newSearcher(t), &gatedSyncer{}, nil, nil)

	in := make(chan Message, 3)
	out := make(chan Message, 3)
	in <- Message{Type: TypeSearchPatients, Payload: json.RawMessage(`{"query":"a"}`), ID: "1"}
	in <- Message{Type: "BOGUS", ID: "2"}
	in <- Message{Type: TypeSearchPatients, Payload: json.RawMessage(`{"query":"b"}`), ID: "3"}
	close(in)

	require.NoError(t, d.Run(context.Background(), in, out))
	close(out)

	var order []string
	for msg := range out {
		order = append(order, msg.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, order)
}

func TestRun_ContextCancelled(t *testing.T) {
	syncer := &gatedSyncer{release: make(chan struct{})}
	d := NewDispatcher(newSearcher(t), syncer, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan Message, 1)
	out := make(chan Message)
	in <- Message{Type: TypeSyncData, ID: "s"}

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, in, out) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNewRequest(t *testing.T) {
	msg, err := NewRequest(TypeSearchPatients, "r1", SearchPayload{Query: model.StringPtr("dub")})
	require.NoError(t, err)
	assert.Equal(t, "r1", msg.ID)
	assert.JSONEq(t, `{"query":"dub"}`, string(msg.Payload))

	msg, err = NewRequest(TypeSyncData, "r2", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(msg.Payload))

	_, err = DecodeResults(Message{Type: TypeError})
	assert.Error(t, err)
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantErr  bool
		wantID   string
		wantType string
	}{
		{name: "valid envelope", data: `{"type":"SEARCH_PATIENTS","payload":{"query":"a"},"id":"t1"}`, wantID: "t1", wantType: TypeSearchPatients},
		{name: "wrongly typed type keeps id", data: `{"type":5,"payload":null,"id":"t3"}`, wantErr: true, wantID: "t3"},
		{name: "wrongly typed id", data: `{"type":"SYNC_DATA","id":7}`, wantErr: true},
		{name: "not json", data: `{not json`, wantErr: true},
		{name: "json array", data: `["t4"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, searchErrors.ErrInvalidPayload))
				assert.Empty(t, msg.Type)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantType, msg.Type)
			}
			assert.Equal(t, tt.wantID, msg.ID)
		})
	}
}
