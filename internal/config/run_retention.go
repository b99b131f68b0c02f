package config

import (
	"fmt"
	"time"
)

// RunRetentionConfig controls pruning of the run audit table
type RunRetentionConfig struct {
	// RetentionDays is how long run records are kept (in days)
	// Default: 30, Range: 1-365
	RetentionDays int `mapstructure:"retention_days"`

	// CleanupInterval is how often pruning runs
	// Default: 24h, Range: 1m-168h
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// CleanupBatchSize is the number of runs deleted per transaction
	// Larger batches = faster cleanup but longer locks
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `mapstructure:"cleanup_batch_size"`

	// CleanupEnabled controls whether pruning runs in serve
	// Default: true
	CleanupEnabled bool `mapstructure:"cleanup_enabled"`
}

// DefaultRunRetentionConfig returns the default retention configuration
func DefaultRunRetentionConfig() RunRetentionConfig {
	return RunRetentionConfig{
		RetentionDays:    30,
		CleanupInterval:  24 * time.Hour,
		CleanupBatchSize: 1000,
		CleanupEnabled:   true,
	}
}

// Validate checks if the configuration has valid values
func (c RunRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}

	if c.CleanupInterval < time.Minute {
		return fmt.Errorf("cleanup_interval must be at least 1m (got %s)", c.CleanupInterval)
	}
	if c.CleanupInterval > 168*time.Hour {
		return fmt.Errorf("cleanup_interval too large (got %s, max 168h)", c.CleanupInterval)
	}

	if c.CleanupBatchSize < 100 {
		return fmt.Errorf("cleanup_batch_size must be at least 100 (got %d)", c.CleanupBatchSize)
	}
	if c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size too large (got %d, max 10000)", c.CleanupBatchSize)
	}

	return nil
}

// Cutoff returns the oldest finish time that is kept
func (c RunRetentionConfig) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(c.RetentionDays) * 24 * time.Hour)
}

// String returns a human-readable representation of the config
func (c RunRetentionConfig) String() string {
	return fmt.Sprintf("RunRetentionConfig{RetentionDays: %d, CleanupInterval: %s, BatchSize: %d, Enabled: %t}",
		c.RetentionDays, c.CleanupInterval, c.CleanupBatchSize, c.CleanupEnabled)
}
