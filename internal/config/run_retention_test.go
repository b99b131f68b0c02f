package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunRetentionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RunRetentionConfig)
		wantErr bool
	}{
		{"defaults", func(c *RunRetentionConfig) {}, false},
		{"retention too short", func(c *RunRetentionConfig) { c.RetentionDays = 0 }, true},
		{"retention too long", func(c *RunRetentionConfig) { c.RetentionDays = 366 }, true},
		{"interval too short", func(c *RunRetentionConfig) { c.CleanupInterval = time.Second }, true},
		{"interval too long", func(c *RunRetentionConfig) { c.CleanupInterval = 200 * time.Hour }, true},
		{"batch too small", func(c *RunRetentionConfig) { c.CleanupBatchSize = 10 }, true},
		{"batch too large", func(c *RunRetentionConfig) { c.CleanupBatchSize = 20000 }, true},
		{"boundaries", func(c *RunRetentionConfig) {
			c.RetentionDays = 365
			c.CleanupInterval = time.Minute
			c.CleanupBatchSize = 100
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunRetentionConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunRetentionConfig_Cutoff(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	cfg := RunRetentionConfig{RetentionDays: 2}
	assert.Equal(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), cfg.Cutoff(now))
}

func TestRunRetentionConfig_String(t *testing.T) {
	s := DefaultRunRetentionConfig().String()
	assert.Contains(t, s, "RetentionDays: 30")
	assert.Contains(t, s, "Enabled: true")
}
