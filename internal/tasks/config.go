package tasks

import (
	"time"

	"github.com/hallshelf/hallshelf/internal/config"
)

// Config holds configuration for the task queue system.
type Config struct {
	// Workers is the number of concurrent task workers. Default: 2
	Workers int

	// ReleaseAfter is when stuck tasks are released back to queue. Default: 15m
	ReleaseAfter time.Duration

	// CleanupInterval is how often to clean up completed tasks. Default: 1h
	CleanupInterval time.Duration

	// RetentionDuration is how long to keep completed tasks. Default: 24h
	RetentionDuration time.Duration

	// AuditRetentionDays is used by cleanup tasks that do not carry their own. Default: 90
	AuditRetentionDays int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:            2,
		ReleaseAfter:       15 * time.Minute,
		CleanupInterval:    1 * time.Hour,
		RetentionDuration:  24 * time.Hour,
		AuditRetentionDays: 90,
	}
}

// ConfigFrom fills a Config from the application settings, keeping defaults
// for unset values.
func ConfigFrom(tc config.Tasks, ac config.Audit) Config {
	cfg := DefaultConfig()
	if tc.Workers > 0 {
		cfg.Workers = tc.Workers
	}
	if tc.ReleaseAfter > 0 {
		cfg.ReleaseAfter = tc.ReleaseAfter
	}
	if tc.CleanupInterval > 0 {
		cfg.CleanupInterval = tc.CleanupInterval
	}
	if tc.RetentionDuration > 0 {
		cfg.RetentionDuration = tc.RetentionDuration
	}
	if ac.RetentionDays > 0 {
		cfg.AuditRetentionDays = ac.RetentionDays
	}
	return cfg
}
