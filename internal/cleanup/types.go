package cleanup

import "time"

// CleanupConfig holds configuration for the maintenance loop.
type CleanupConfig struct {
	CheckInterval time.Duration // default 1h
}

// DefaultConfig returns sane defaults.
func DefaultConfig() CleanupConfig {
	return CleanupConfig{
		CheckInterval: 1 * time.Hour,
	}
}

// Result is the outcome of one cleanup pass.
type Result struct {
	LocksPruned int
	DBBytes     int64
}
