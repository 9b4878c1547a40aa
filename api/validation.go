// Package api exposes the patient search engine over HTTP.
package api

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gcbaptista/patient-search/model"
)

// MaxQueryLength bounds the query accepted by POST /patients/_search, in characters.
const MaxQueryLength = 256

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of validation operations
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// ValidateSearchRequest checks the body of a search request.
// An empty query is valid and yields no hits; a missing one is not.
func ValidateSearchRequest(req SearchRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if req.Query == nil {
		result.AddError("query", "Query is required")
	} else if utf8.RuneCountInString(*req.Query) > MaxQueryLength {
		result.AddError("query", "Query cannot be longer than 256 characters")
	}

	if req.Filters.Site != nil && strings.TrimSpace(*req.Filters.Site) == "" {
		result.AddError("filters.site", "Site filter cannot be empty; omit it to search all sites")
	}
	if req.Filters.Floor != nil && strings.TrimSpace(*req.Filters.Floor) == "" {
		result.AddError("filters.floor", "Floor filter cannot be empty; omit it to search all floors")
	}

	return result
}

// ValidateJobID validates a job ID path parameter
func ValidateJobID(jobID string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if jobID == "" {
		result.AddError("jobId", "Job ID is required")
		return result
	}
	if _, err := uuid.Parse(jobID); err != nil {
		result.AddError("jobId", "Job ID must be a UUID")
	}

	return result
}

// ValidateJobStatus validates a job status filter
func ValidateJobStatus(status string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch model.JobStatus(status) {
	case model.JobStatusPending, model.JobStatusRunning, model.JobStatusCompleted,
		model.JobStatusFailed, model.JobStatusCancelled:
	default:
		result.AddError("status", "Status must be one of pending, running, completed, failed, cancelled")
	}

	return result
}
