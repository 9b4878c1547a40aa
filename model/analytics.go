package model

import "time"

// Query kinds recorded by search analytics. Raw query text is never stored.
const (
	QueryKindEmpty   = "empty"   // blank after trimming
	QueryKindNumeric = "numeric" // digits and separators: room, NISS, birth date
	QueryKindText    = "text"    // letters and spaces: names, sites
	QueryKindMixed   = "mixed"
)

// SearchEvent represents a single search event for analytics tracking.
type SearchEvent struct {
	QueryKind     string        `json:"query_kind"`
	QueryLength   int           `json:"query_length"`
	Filtered      bool          `json:"filtered"`
	Site          string        `json:"site,omitempty"`
	Floor         string        `json:"floor,omitempty"`
	MatchedFields []string      `json:"matched_fields,omitempty"` // tags seen in any hit, canonical order
	Parallel      bool          `json:"parallel"`
	ResponseTime  time.Duration `json:"response_time"`
	ResultCount   int           `json:"result_count"`
	CorpusVersion uint64        `json:"corpus_version"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ResponseTimeDistribution represents response time distribution buckets
type ResponseTimeDistribution struct {
	Bucket0To25ms     int     `json:"bucket_0_25ms"`
	Bucket25To50ms    int     `json:"bucket_25_50ms"`
	Bucket50To100ms   int     `json:"bucket_50_100ms"`
	Bucket100msPlus   int     `json:"bucket_100ms_plus"`
	Percentage0To25   float64 `json:"percentage_0_25"`
	Percentage25To50  float64 `json:"percentage_25_50"`
	Percentage50To100 float64 `json:"percentage_50_100"`
	Percentage100Plus float64 `json:"percentage_100_plus"`
}

// QueryKindStats counts searches per query kind.
type QueryKindStats struct {
	Empty   int `json:"empty"`
	Numeric int `json:"numeric"`
	Text    int `json:"text"`
	Mixed   int `json:"mixed"`
}

// FilterUsage counts how often structural filters narrowed a search.
type FilterUsage struct {
	Unfiltered    int            `json:"unfiltered"`
	SiteFiltered  int            `json:"site_filtered"`
	FloorFiltered int            `json:"floor_filtered"`
	BySite        map[string]int `json:"by_site"`
}

// SearchPerformanceHourly represents hourly search performance data
type SearchPerformanceHourly struct {
	Hour            int   `json:"hour"`
	SearchCount     int   `json:"search_count"`
	AvgResponseTime int64 `json:"avg_response_time"` // in milliseconds
}

// SystemHealth represents process health metrics
type SystemHealth struct {
	MemoryUsage float64 `json:"memory_usage_percent"`
	Goroutines  int     `json:"goroutines"`
}

// AnalyticsDashboard represents the complete analytics dashboard data
type AnalyticsDashboard struct {
	// Summary metrics over the last 24 hours
	TotalSearches         int     `json:"total_searches"`
	SearchesChangePercent float64 `json:"searches_change_percent"`
	AvgResponseTime       int64   `json:"avg_response_time"` // in milliseconds
	ResponseTimeChange    string  `json:"response_time_change"`
	ZeroResultRate        float64 `json:"zero_result_rate"`
	ParallelSearches      int     `json:"parallel_searches"`
	CorpusPatients        int     `json:"corpus_patients"`
	CorpusVersion         uint64  `json:"corpus_version"`

	// Detailed analytics
	SearchPerformance24h     []SearchPerformanceHourly `json:"search_performance_24h"`
	ResponseTimeDistribution ResponseTimeDistribution  `json:"response_time_distribution"`
	QueryKinds               QueryKindStats            `json:"query_kinds"`
	FilterUsage              FilterUsage               `json:"filter_usage"`
	FieldMatches             map[string]int            `json:"field_matches"` // searches with a hit on each tag
	SystemHealth             SystemHealth              `json:"system_health"`
}
