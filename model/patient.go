package model

import "time"

// Patient is a single record of the searchable corpus.
// Every field is a plain string; room, floor and NISS values may look numeric but are never compared as numbers.
type Patient struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	FirstName            string `json:"firstName"`
	Room                 string `json:"room"`
	Bed                  string `json:"bed"`
	Floor                string `json:"floor"`
	Site                 string `json:"site"`
	BirthDate            string `json:"birthDate"`            // YYYY-MM-DD
	SocialSecurityNumber string `json:"socialSecurityNumber"` // NISS, digits grouped, no checksum
}

// Field tags reported in ScoredResult.MatchedFields.
const (
	FieldName      = "name"
	FieldFirstName = "firstName"
	FieldRoom      = "room"
	FieldNISS      = "niss"
	FieldBirthDate = "birthDate"
	FieldLocation  = "location"
)

// MatchableFields lists the tags in their canonical reporting order.
var MatchableFields = []string{FieldName, FieldFirstName, FieldRoom, FieldNISS, FieldBirthDate, FieldLocation}

// Filters holds the optional exact-match structural constraints of a search.
// A nil pointer means no constraint on that dimension.
type Filters struct {
	Site  *string `json:"site,omitempty"`
	Floor *string `json:"floor,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (f Filters) IsEmpty() bool {
	return f.Site == nil && f.Floor == nil
}

// SearchRequest is a patient search query.
type SearchRequest struct {
	Query   string  `json:"query"`
	Filters Filters `json:"filters"`
}

// ScoredResult is a Patient annotated with its relevance score and the fields that contributed to it.
// The patient fields are flattened into the JSON object.
type ScoredResult struct {
	Patient
	RelevanceScore int      `json:"relevanceScore"`
	MatchedFields  []string `json:"matchedFields"`
}

// HasField reports whether the given tag contributed to the score.
func (r ScoredResult) HasField(tag string) bool {
	for _, f := range r.MatchedFields {
		if f == tag {
			return true
		}
	}
	return false
}

// StringPtr is a small helper for building Filters literals.
func StringPtr(s string) *string {
	return &s
}

// SearchResponse is the ranked outcome of one search.
type SearchResponse struct {
	Hits          []ScoredResult `json:"hits"`
	Total         int            `json:"total"` // matches before max_results truncation
	Took          int64          `json:"took"`  // milliseconds
	QueryID       string         `json:"query_id"`
	CorpusVersion uint64         `json:"corpus_version"` // 0 when the corpus was not consulted
	Parallel      bool           `json:"parallel"`       // scored on the worker pool
}

// CorpusInfo describes the corpus snapshot in service.
type CorpusInfo struct {
	Loaded   bool      `json:"loaded"`
	Patients int       `json:"patients"`
	Version  uint64    `json:"version"`
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`
}
