package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/internal/corpus"
	"github.com/gcbaptista/patient-search/model"
)

func TestCreateTestEngine_SearchSuite(t *testing.T) {
	eng := CreateTestEngine(t)

	RunSearchTests(t, eng, []SearchTestCase{
		{
			Name:          "name prefix ranks Martin first",
			Request:       model.SearchRequest{Query: "Martin"},
			ExpectedCount: -1,
			ExpectedFirst: "P0001",
		},
		{
			Name: "filters",
			Request: model.SearchRequest{
				Query:   "delta",
				Filters: model.Filters{Site: model.StringPtr("Delta"), Floor: model.StringPtr("2")},
			},
			ExpectedCount: 3,
			ExpectedIDs:   []string{"P0012", "P0032", "P0052"},
		},
		{
			Name:          "empty query",
			Request:       model.SearchRequest{Query: "   "},
			ExpectedCount: 0,
			ExpectedIDs:   []string{},
			ValidateFunc: func(t *testing.T, resp model.SearchResponse) {
				assert.Zero(t, resp.CorpusVersion, "corpus should not be consulted")
			},
		},
	})
}

func TestCreateTestEngine_Options(t *testing.T) {
	patients := []model.Patient{{ID: "X1", Name: "Solo", Site: "Alpha", Floor: "0"}}
	settings := config.DefaultSearchSettings()
	settings.MaxResults = 1

	eng := CreateTestEngine(t,
		WithProvider(corpus.NewStaticProvider("static", patients)),
		WithSearchSettings(settings))

	resp, err := eng.Search(context.Background(), model.SearchRequest{Query: "solo"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "X1", resp.Hits[0].ID)
	assert.Equal(t, "static", eng.CorpusInfo().Source)
}

func TestWaitForJobCompletion(t *testing.T) {
	eng := CreateTestEngine(t)

	jobID, err := eng.SyncAsync(nil)
	require.NoError(t, err)

	job := WaitForJobCompletion(t, eng, jobID, DefaultJobPollingOptions())
	AssertJobCompleted(t, job, model.JobTypeSyncCorpus)
	assert.Equal(t, "60", job.Metadata["patient_count"])
}

func TestWaitForJobCompletion_ReturnsFailedJob(t *testing.T) {
	eng := CreateTestEngine(t)

	jobID, err := eng.SyncAsync([]byte(`{"delayMs": -1}`))
	require.NoError(t, err)

	opts := DefaultJobPollingOptions()
	opts.LogProgress = false
	job := WaitForJobCompletion(t, eng, jobID, opts)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.Error)
}
