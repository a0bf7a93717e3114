package worker

import "time"

// RefreshConfig controls how a refresh run executes.
type RefreshConfig struct {
	// Concurrency is the number of locations refreshed in parallel.
	Concurrency int

	// Timeout bounds a single location update.
	Timeout time.Duration
}

// DefaultRefreshConfig returns the default refresh settings.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}
