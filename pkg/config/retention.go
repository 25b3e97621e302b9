package config

import "time"

// RetentionConfig controls data retention and cleanup behavior for
// executions, events, and dead-letter items.
type RetentionConfig struct {
	// ExecutionRetentionDays is how many days to keep completed executions
	// before soft-deleting them.
	ExecutionRetentionDays int `yaml:"execution_retention_days"`

	// EventTTL is the maximum age of orphaned event rows before deletion.
	// Per-execution cleanup handles the normal case; this is a safety net.
	EventTTL time.Duration `yaml:"event_ttl"`

	// DeadLetterRetentionDays is how long archived dead-letter items are
	// kept before permanent deletion.
	DeadLetterRetentionDays int `yaml:"dead_letter_retention_days"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// CleanupSchedule is an optional cron expression that replaces the
	// fixed interval, for deployments that want retention sweeps pinned to
	// an off-peak window (e.g. "0 3 * * *"). Empty means interval-based.
	CleanupSchedule string `yaml:"cleanup_schedule,omitempty"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		ExecutionRetentionDays: 90,
		EventTTL:               1 * time.Hour,
		DeadLetterRetentionDays: 30,
		CleanupInterval:        12 * time.Hour,
	}
}
