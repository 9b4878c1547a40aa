package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	searchErrors "github.com/gcbaptista/patient-search/internal/errors"
	"github.com/gcbaptista/patient-search/model"
)

// SyncHandler starts a corpus sync. The body is the optional sync configuration.
// By default it answers 202 with the job ID; ?wait=true blocks until the sync settles.
func (api *API) SyncHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	var cfg json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			SendInvalidJSONError(c, fmt.Errorf("sync configuration is not valid JSON"))
			return
		}
		cfg = body
	}

	wait, _ := strconv.ParseBool(c.Query("wait"))
	if wait {
		report, err := api.engine.Sync(c.Request.Context(), cfg)
		if err != nil {
			if errors.Is(err, searchErrors.ErrInvalidPayload) {
				SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
				return
			}
			SendJobExecutionError(c, "sync", err)
			return
		}
		c.JSON(http.StatusOK, report)
		return
	}

	jobID, err := api.engine.SyncAsync(cfg)
	if err != nil {
		SendJobExecutionError(c, "sync", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": "Corpus sync started",
		"job_id":  jobID,
	})
}

// GetJobHandler handles requests to get job status by ID
func (api *API) GetJobHandler(c *gin.Context) {
	jobID := c.Param("jobId")
	if result := ValidateJobID(jobID); result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	job, err := api.engine.GetJob(jobID)
	if err != nil {
		if errors.Is(err, searchErrors.ErrJobNotFound) {
			SendJobNotFoundError(c, jobID)
			return
		}
		SendInternalError(c, "job lookup", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobsHandler handles requests to list jobs, optionally filtered by ?status=
func (api *API) ListJobsHandler(c *gin.Context) {
	statusParam := c.Query("status")

	var statusFilter *model.JobStatus
	if statusParam != "" {
		if result := ValidateJobStatus(statusParam); result.HasErrors() {
			SendStructuredValidationError(c, result)
			return
		}
		status := model.JobStatus(statusParam)
		statusFilter = &status
	}

	jobs := api.engine.ListJobs(statusFilter)
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetJobMetricsHandler handles requests to get sync job metrics
func (api *API) GetJobMetricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":          api.engine.JobMetrics(),
		"success_rate":     api.engine.JobSuccessRate(),
		"current_workload": api.engine.CurrentWorkload(),
	})
}
