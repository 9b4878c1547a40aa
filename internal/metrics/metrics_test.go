package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gcbaptista/patient-search/internal/corpus"
	"github.com/gcbaptista/patient-search/model"
)

func TestMiddleware_RecordsDurationAndCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/jobs/:jobId", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/jobs/:jobId", "404"))

	req := httptest.NewRequest(http.MethodGet, "/jobs/abc", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/jobs/:jobId", "404"))
	if after-before != 1 {
		t.Errorf("expected one request labelled by route template, got %f", after-before)
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected http_request_duration_seconds to have observations")
	}
}

func TestMiddleware_UnknownRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", http.NoBody))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "404"))

	if after-before != 1 {
		t.Errorf("expected unmatched route under 'unknown', got delta %f", after-before)
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	NewRecorder() // registering twice must not panic

	searches := testutil.ToFloat64(SearchRequestsTotal.WithLabelValues("parallel"))
	rec.ObserveSearch(time.Millisecond, 4, true)
	if got := testutil.ToFloat64(SearchRequestsTotal.WithLabelValues("parallel")); got != searches+1 {
		t.Errorf("expected parallel search counter to increase, got %f", got)
	}

	failures := testutil.ToFloat64(SyncRunsTotal.WithLabelValues("failure"))
	rec.ObserveSync(time.Second, errors.New("boom"))
	if got := testutil.ToFloat64(SyncRunsTotal.WithLabelValues("failure")); got != failures+1 {
		t.Errorf("expected sync failure counter to increase, got %f", got)
	}

	messages := testutil.ToFloat64(MessagesTotal.WithLabelValues("BOGUS", "ERROR"))
	rec.ObserveMessage("BOGUS", "ERROR")
	if got := testutil.ToFloat64(MessagesTotal.WithLabelValues("BOGUS", "ERROR")); got != messages+1 {
		t.Errorf("expected message counter to increase, got %f", got)
	}

	jobs := testutil.ToFloat64(JobsFinishedTotal.WithLabelValues("sync_corpus", "completed"))
	rec.JobFinished(model.JobTypeSyncCorpus, model.JobStatusCompleted, time.Second)
	if got := testutil.ToFloat64(JobsFinishedTotal.WithLabelValues("sync_corpus", "completed")); got != jobs+1 {
		t.Errorf("expected job counter to increase, got %f", got)
	}

	rec.CorpusSwapped(&corpus.Snapshot{Patients: make([]model.Patient, 42), Version: 7})
	if got := testutil.ToFloat64(CorpusPatients); got != 42 {
		t.Errorf("expected corpus gauge 42, got %f", got)
	}
	if got := testutil.ToFloat64(CorpusVersion); got != 7 {
		t.Errorf("expected corpus version 7, got %f", got)
	}
}
