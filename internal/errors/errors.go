package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrUnrecognizedMessageType is returned when a message carries an unknown type
	ErrUnrecognizedMessageType = errors.New("unrecognized message type")

	// ErrInvalidPayload is returned when a message payload cannot be decoded or is incomplete
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrCorpusUnavailable is returned when no corpus snapshot could be loaded
	ErrCorpusUnavailable = errors.New("corpus unavailable")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)

// UnrecognizedMessageTypeError carries the offending message type
type UnrecognizedMessageTypeError struct {
	Type string
}

func (e *UnrecognizedMessageTypeError) Error() string {
	return fmt.Sprintf("Unrecognized message type: %s", e.Type)
}

func (e *UnrecognizedMessageTypeError) Is(target error) bool {
	return target == ErrUnrecognizedMessageType
}

// NewUnrecognizedMessageTypeError creates a new UnrecognizedMessageTypeError
func NewUnrecognizedMessageTypeError(msgType string) *UnrecognizedMessageTypeError {
	return &UnrecognizedMessageTypeError{Type: msgType}
}

// InvalidPayloadError represents a malformed or incomplete message payload
type InvalidPayloadError struct {
	MessageType string
	Reason      string
	Err         error
}

func (e *InvalidPayloadError) Error() string {
	msg := "invalid payload: " + e.Reason
	if e.MessageType != "" {
		msg = fmt.Sprintf("invalid %s payload: %s", e.MessageType, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidPayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Err
}

// NewInvalidPayloadError creates a new InvalidPayloadError
func NewInvalidPayloadError(msgType, reason string, err error) *InvalidPayloadError {
	return &InvalidPayloadError{MessageType: msgType, Reason: reason, Err: err}
}

// CorpusUnavailableError wraps the provider failure that left the engine without a corpus
type CorpusUnavailableError struct {
	Source string
	Err    error
}

func (e *CorpusUnavailableError) Error() string {
	return fmt.Sprintf("corpus from '%s' unavailable: %v", e.Source, e.Err)
}

func (e *CorpusUnavailableError) Is(target error) bool {
	return target == ErrCorpusUnavailable
}

func (e *CorpusUnavailableError) Unwrap() error {
	return e.Err
}

// NewCorpusUnavailableError creates a new CorpusUnavailableError
func NewCorpusUnavailableError(source string, err error) *CorpusUnavailableError {
	return &CorpusUnavailableError{Source: source, Err: err}
}

// JobNotFoundError represents a job not found error with context
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job with ID '%s' not found", e.JobID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}

// NewJobNotFoundError creates a new JobNotFoundError
func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{JobID: jobID}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
