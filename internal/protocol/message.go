// Package protocol implements the typed request/response message channel of the engine.
package protocol

import (
	"encoding/json"
	"fmt"

	searchErrors "github.com/gcbaptista/patient-search/internal/errors"
	"github.com/gcbaptista/patient-search/model"
)

// Request message types.
const (
	TypeSearchPatients = "SEARCH_PATIENTS"
	TypeSyncData       = "SYNC_DATA"
)

// Response message types.
const (
	TypeSearchResults = "SEARCH_RESULTS"
	TypeSyncComplete  = "SYNC_COMPLETE"
	TypeError         = "ERROR"
)

// Message is the envelope used in both directions.
// ID is chosen by the caller and echoed verbatim in the reply.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	ID      string          `json:"id"`
	Error   string          `json:"error,omitempty"`
}

// SearchPayload is the SEARCH_PATIENTS payload. Query is a pointer so a missing key can be told apart from "".
type SearchPayload struct {
	Query   *string        `json:"query"`
	Filters *model.Filters `json:"filters,omitempty"`
}

// SyncCompletePayload is the SYNC_COMPLETE payload.
type SyncCompletePayload struct {
	Success      bool   `json:"success"`
	PatientCount int    `json:"patientCount"`
	Version      uint64 `json:"version"`
	JobID        string `json:"jobId,omitempty"`
}

// NewRequest builds a request envelope, encoding payload as JSON. A nil payload encodes as null.
func NewRequest(msgType, id string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: raw, ID: id}, nil
}

// ErrorReply builds an ERROR envelope correlated to id.
func ErrorReply(id string, err error) Message {
	return Message{Type: TypeError, Payload: json.RawMessage("null"), ID: id, Error: err.Error()}
}

// DecodeMessage parses an envelope. If data does not decode into a Message the
// error is an InvalidPayloadError and the returned Message carries whatever id
// could still be read, so the caller can answer it with ErrorReply. An empty ID
// means the envelope cannot be correlated.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	if err == nil {
		return msg, nil
	}

	var head struct {
		ID any `json:"id"`
	}
	_ = json.Unmarshal(data, &head)
	id, _ := head.ID.(string)
	return Message{ID: id}, searchErrors.NewInvalidPayloadError("", "malformed message envelope", err)
}

// DecodeResults extracts the ranked results from a SEARCH_RESULTS reply.
func DecodeResults(msg Message) ([]model.ScoredResult, error) {
	if msg.Type != TypeSearchResults {
		return nil, fmt.Errorf("expected %s reply, got %s", TypeSearchResults, msg.Type)
	}
	var results []model.ScoredResult
	if err := json.Unmarshal(msg.Payload, &results); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return results, nil
}
