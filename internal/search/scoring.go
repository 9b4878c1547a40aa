package search

import (
	"sort"
	"strings"

	"github.com/gcbaptista/patient-search/model"
)

// Per-field score contributions.
const (
	ScorePrefix    = 100 // name or firstName starts with the query
	ScoreContains  = 80  // name or firstName contains the query
	ScoreNISS      = 95
	ScoreRoom      = 90
	ScoreBirthDate = 70
	ScoreLocation  = 60 // site or floor, counted once
)

// NormalizeQuery trims and lower-cases a raw query.
func NormalizeQuery(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Score evaluates every field rule against an already normalised query and sums the contributions.
// Name, firstName, site and floor are compared lower-cased; room, NISS and birthDate are compared raw.
// Matched fields are returned in model.MatchableFields order.
func Score(query string, p model.Patient) (int, []string) {
	score := 0
	var matched []string

	if s := textScore(strings.ToLower(p.Name), query); s > 0 {
		score += s
		matched = append(matched, model.FieldName)
	}
	if s := textScore(strings.ToLower(p.FirstName), query); s > 0 {
		score += s
		matched = append(matched, model.FieldFirstName)
	}
	if strings.Contains(p.Room, query) {
		score += ScoreRoom
		matched = append(matched, model.FieldRoom)
	}
	if strings.Contains(p.SocialSecurityNumber, query) {
		score += ScoreNISS
		matched = append(matched, model.FieldNISS)
	}
	if strings.Contains(p.BirthDate, query) {
		score += ScoreBirthDate
		matched = append(matched, model.FieldBirthDate)
	}
	if strings.Contains(strings.ToLower(p.Site), query) || strings.Contains(strings.ToLower(p.Floor), query) {
		score += ScoreLocation
		matched = append(matched, model.FieldLocation)
	}

	return score, matched
}

func textScore(value, query string) int {
	switch {
	case strings.HasPrefix(value, query):
		return ScorePrefix
	case strings.Contains(value, query):
		return ScoreContains
	default:
		return 0
	}
}

// scorePatients filters and scores patients in enumeration order, dropping non-matches.
func scorePatients(query string, filters model.Filters, patients []model.Patient) []model.ScoredResult {
	var results []model.ScoredResult
	unfiltered := filters.IsEmpty()
	for _, p := range patients {
		if !unfiltered && !MatchesFilters(p, filters) {
			continue
		}
		score, matched := Score(query, p)
		if score == 0 {
			continue
		}
		results = append(results, model.ScoredResult{
			Patient:        p,
			RelevanceScore: score,
			MatchedFields:  matched,
		})
	}
	return results
}

// Rank orders results by descending score. The sort is stable, so equal scores
// keep their corpus enumeration order.
func Rank(results []model.ScoredResult) []model.ScoredResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results
}
