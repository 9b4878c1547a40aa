// Package analytics keeps a bounded, in-memory history of searches and summarises it for dashboards.
// Events carry the shape of a query, never its text.
package analytics

import (
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gcbaptista/patient-search/model"
)

const maxEventsToKeep = 10000

// CorpusReporter describes the corpus in service.
type CorpusReporter interface {
	CorpusInfo() model.CorpusInfo
}

// Service implements analytics tracking and reporting
type Service struct {
	mutex     sync.RWMutex
	events    []model.SearchEvent
	maxEvents int
	corpus    CorpusReporter
	now       func() time.Time
}

// NewService creates a new analytics service. corpus may be nil.
func NewService(corpus CorpusReporter) *Service {
	return &Service{
		events:    make([]model.SearchEvent, 0),
		maxEvents: maxEventsToKeep,
		corpus:    corpus,
		now:       time.Now,
	}
}

// NewSearchEvent describes a finished search without retaining the query text.
func NewSearchEvent(req model.SearchRequest, resp model.SearchResponse, took time.Duration) model.SearchEvent {
	trimmed := strings.TrimSpace(req.Query)
	event := model.SearchEvent{
		QueryKind:     ClassifyQuery(trimmed),
		QueryLength:   len([]rune(trimmed)),
		Parallel:      resp.Parallel,
		ResponseTime:  took,
		ResultCount:   resp.Total,
		CorpusVersion: resp.CorpusVersion,
		Filtered:      !req.Filters.IsEmpty(),
		MatchedFields: matchedFields(resp.Hits),
	}
	if req.Filters.Site != nil {
		event.Site = *req.Filters.Site
	}
	if req.Filters.Floor != nil {
		event.Floor = *req.Filters.Floor
	}
	return event
}

// matchedFields returns the distinct tags that contributed to any hit, in model.MatchableFields order.
func matchedFields(hits []model.ScoredResult) []string {
	var tags []string
	for _, tag := range model.MatchableFields {
		for _, hit := range hits {
			if hit.HasField(tag) {
				tags = append(tags, tag)
				break
			}
		}
	}
	return tags
}

// ClassifyQuery buckets a query by the characters it contains.
func ClassifyQuery(query string) string {
	if strings.TrimSpace(query) == "" {
		return model.QueryKindEmpty
	}
	var digits, letters, other bool
	for _, r := range query {
		switch {
		case unicode.IsDigit(r):
			digits = true
		case unicode.IsLetter(r):
			letters = true
		case r == '.' || r == '-' || r == '/' || unicode.IsSpace(r):
		default:
			other = true
		}
	}
	switch {
	case digits && !letters && !other:
		return model.QueryKindNumeric
	case letters && !digits && !other:
		return model.QueryKindText
	default:
		return model.QueryKindMixed
	}
}

// TrackSearchEvent records a new search event
func (s *Service) TrackSearchEvent(event model.SearchEvent) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	s.events = append(s.events, event)

	if len(s.events) > s.maxEvents {
		s.events = s.events[len(s.events)-s.maxEvents:]
	}
}

// GetDashboardData returns complete analytics dashboard data
func (s *Service) GetDashboardData() model.AnalyticsDashboard {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := s.now()
	yesterday := now.Add(-24 * time.Hour)

	last24hEvents := filterEventsByTimeRange(s.events, yesterday, now.Add(time.Nanosecond))
	prev24hEvents := filterEventsByTimeRange(s.events, yesterday.Add(-24*time.Hour), yesterday)

	dashboard := model.AnalyticsDashboard{
		TotalSearches:            len(last24hEvents),
		SearchesChangePercent:    calculateChangePercent(len(last24hEvents), len(prev24hEvents)),
		AvgResponseTime:          calculateAvgResponseTime(last24hEvents),
		ResponseTimeChange:       calculateResponseTimeChange(last24hEvents, prev24hEvents),
		ZeroResultRate:           zeroResultRate(last24hEvents),
		SearchPerformance24h:     getHourlyPerformance(last24hEvents),
		ResponseTimeDistribution: getResponseTimeDistribution(last24hEvents),
		QueryKinds:               getQueryKindStats(last24hEvents),
		FilterUsage:              getFilterUsage(last24hEvents),
		FieldMatches:             getFieldMatches(last24hEvents),
		SystemHealth:             getSystemHealth(),
	}
	for _, event := range last24hEvents {
		if event.Parallel {
			dashboard.ParallelSearches++
		}
	}
	if s.corpus != nil {
		info := s.corpus.CorpusInfo()
		dashboard.CorpusPatients = info.Patients
		dashboard.CorpusVersion = info.Version
	}

	return dashboard
}

// filterEventsByTimeRange returns events in [start, end)
func filterEventsByTimeRange(events []model.SearchEvent, start, end time.Time) []model.SearchEvent {
	var filtered []model.SearchEvent
	for _, event := range events {
		if !event.Timestamp.Before(start) && event.Timestamp.Before(end) {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

func calculateChangePercent(current, previous int) float64 {
	if previous == 0 {
		if current > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(current-previous) / float64(previous) * 100.0
}

// calculateAvgResponseTime returns the mean response time in milliseconds
func calculateAvgResponseTime(events []model.SearchEvent) int64 {
	if len(events) == 0 {
		return 0
	}

	var total time.Duration
	for _, event := range events {
		total += event.ResponseTime
	}
	return (total / time.Duration(len(events))).Milliseconds()
}

func calculateResponseTimeChange(current, previous []model.SearchEvent) string {
	currentAvg := calculateAvgResponseTime(current)
	previousAvg := calculateAvgResponseTime(previous)

	if previousAvg == 0 {
		return "stable"
	}

	change := float64(currentAvg-previousAvg) / float64(previousAvg)
	switch {
	case change > 0.1:
		return "up"
	case change < -0.1:
		return "down"
	default:
		return "stable"
	}
}

func zeroResultRate(events []model.SearchEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	zero := 0
	for _, event := range events {
		if event.ResultCount == 0 {
			zero++
		}
	}
	return float64(zero) / float64(len(events)) * 100
}

func getHourlyPerformance(events []model.SearchEvent) []model.SearchPerformanceHourly {
	hourlyData := make(map[int][]model.SearchEvent)
	for _, event := range events {
		hour := event.Timestamp.Hour()
		hourlyData[hour] = append(hourlyData[hour], event)
	}

	performance := make([]model.SearchPerformanceHourly, 0, 24)
	for hour := 0; hour < 24; hour++ {
		performance = append(performance, model.SearchPerformanceHourly{
			Hour:            hour,
			SearchCount:     len(hourlyData[hour]),
			AvgResponseTime: calculateAvgResponseTime(hourlyData[hour]),
		})
	}
	return performance
}

func getResponseTimeDistribution(events []model.SearchEvent) model.ResponseTimeDistribution {
	dist := model.ResponseTimeDistribution{}
	total := len(events)
	if total == 0 {
		return dist
	}

	for _, event := range events {
		ms := event.ResponseTime.Milliseconds()
		switch {
		case ms <= 25:
			dist.Bucket0To25ms++
		case ms <= 50:
			dist.Bucket25To50ms++
		case ms <= 100:
			dist.Bucket50To100ms++
		default:
			dist.Bucket100msPlus++
		}
	}

	dist.Percentage0To25 = float64(dist.Bucket0To25ms) / float64(total) * 100
	dist.Percentage25To50 = float64(dist.Bucket25To50ms) / float64(total) * 100
	dist.Percentage50To100 = float64(dist.Bucket50To100ms) / float64(total) * 100
	dist.Percentage100Plus = float64(dist.Bucket100msPlus) / float64(total) * 100

	return dist
}

func getQueryKindStats(events []model.SearchEvent) model.QueryKindStats {
	stats := model.QueryKindStats{}
	for _, event := range events {
		switch event.QueryKind {
		case model.QueryKindEmpty:
			stats.Empty++
		case model.QueryKindNumeric:
			stats.Numeric++
		case model.QueryKindText:
			stats.Text++
		case model.QueryKindMixed:
			stats.Mixed++
		}
	}
	return stats
}

func getFilterUsage(events []model.SearchEvent) model.FilterUsage {
	usage := model.FilterUsage{BySite: make(map[string]int)}
	for _, event := range events {
		if !event.Filtered {
			usage.Unfiltered++
			continue
		}
		if event.Site != "" {
			usage.SiteFiltered++
			usage.BySite[event.Site]++
		}
		if event.Floor != "" {
			usage.FloorFiltered++
		}
	}
	return usage
}

func getFieldMatches(events []model.SearchEvent) map[string]int {
	counts := make(map[string]int, len(model.MatchableFields))
	for _, tag := range model.MatchableFields {
		counts[tag] = 0
	}
	for _, event := range events {
		for _, tag := range event.MatchedFields {
			counts[tag]++
		}
	}
	return counts
}

func getSystemHealth() model.SystemHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var memoryUsage float64
	if m.Sys > 0 {
		memoryUsage = float64(m.Alloc) / float64(m.Sys) * 100
	}
	return model.SystemHealth{
		MemoryUsage: memoryUsage,
		Goroutines:  runtime.NumGoroutine(),
	}
}
