package config

import (
	"fmt"
	"time"
)

// SearchSettings tunes the search pipeline.
type SearchSettings struct {
	MaxResults        int `yaml:"max_results"`        // 0 returns every match
	ParallelThreshold int `yaml:"parallel_threshold"` // corpus size from which scoring is partitioned; negative disables
	Workers           int `yaml:"workers"`            // size of the scoring worker pool
	PartitionSize     int `yaml:"partition_size"`     // patients per scoring partition
}

// DefaultSearchSettings returns the settings used for small in-memory corpora.
func DefaultSearchSettings() SearchSettings {
	return SearchSettings{
		ParallelThreshold: 5000,
		Workers:           4,
		PartitionSize:     1024,
	}
}

// ParallelEnabled reports whether a corpus of n patients should be scored in partitions.
func (s SearchSettings) ParallelEnabled(n int) bool {
	return s.ParallelThreshold >= 0 && s.Workers > 1 && n >= s.ParallelThreshold
}

// Validate returns the list of problems found in the settings.
func (s SearchSettings) Validate() []string {
	var problems []string
	if s.MaxResults < 0 {
		problems = append(problems, fmt.Sprintf("max_results cannot be negative, got %d", s.MaxResults))
	}
	if s.Workers < 0 {
		problems = append(problems, fmt.Sprintf("workers cannot be negative, got %d", s.Workers))
	}
	if s.PartitionSize <= 0 {
		problems = append(problems, fmt.Sprintf("partition_size must be positive, got %d", s.PartitionSize))
	}
	return problems
}

// SyncSettings bounds the background corpus refresh.
type SyncSettings struct {
	MinDelay      time.Duration `yaml:"min_delay"`      // lower bound of the simulated refresh duration
	MaxDelay      time.Duration `yaml:"max_delay"`      // upper bound of the simulated refresh duration
	MaxConcurrent int           `yaml:"max_concurrent"` // refreshes allowed to run at once
	JobRetention  time.Duration `yaml:"job_retention"`  // finished jobs older than this are dropped
	// MaxRequestedDelay caps the delayMs a caller may ask for; larger values are rejected.
	MaxRequestedDelay time.Duration `yaml:"max_requested_delay"`
}

// DefaultSyncSettings mirrors the one-to-a-few seconds refresh of the synthetic source.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		MinDelay:          1 * time.Second,
		MaxDelay:          3 * time.Second,
		MaxConcurrent:     1,
		JobRetention:      24 * time.Hour,
		MaxRequestedDelay: 30 * time.Second,
	}
}

// Validate returns the list of problems found in the settings.
func (s SyncSettings) Validate() []string {
	var problems []string
	if s.MinDelay < 0 {
		problems = append(problems, "min_delay cannot be negative")
	}
	if s.MaxDelay < s.MinDelay {
		problems = append(problems, fmt.Sprintf("max_delay (%s) must not be lower than min_delay (%s)", s.MaxDelay, s.MinDelay))
	}
	if s.MaxConcurrent <= 0 {
		problems = append(problems, fmt.Sprintf("max_concurrent must be positive, got %d", s.MaxConcurrent))
	}
	if s.JobRetention <= 0 {
		problems = append(problems, "job_retention must be positive")
	}
	if s.MaxRequestedDelay <= 0 {
		problems = append(problems, "max_requested_delay must be positive")
	}
	return problems
}
