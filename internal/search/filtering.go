package search

import "github.com/gcbaptista/patient-search/model"

// MatchesFilters reports whether a patient passes the structural filters.
// Site and floor are compared exactly and independently; a nil filter always passes.
func MatchesFilters(p model.Patient, f model.Filters) bool {
	if f.Site != nil && p.Site != *f.Site {
		return false
	}
	if f.Floor != nil && p.Floor != *f.Floor {
		return false
	}
	return true
}
