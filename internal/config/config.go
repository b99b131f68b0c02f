// Package config loads service configuration from an optional .env file, an
// optional YAML file and TRIAGE_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. TRIAGE_TRACKER_API_KEY
const EnvPrefix = "TRIAGE"

// DefaultConfigName is looked up in the working directory when no file is given
const DefaultConfigName = "triage"

// Model providers
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Knowledge base backends
const (
	KBBackendSQLite   = "sqlite"
	KBBackendPostgres = "postgres"
	KBBackendFile     = "file"
)

// Config is the full service configuration
type Config struct {
	Server    ServerConfig       `mapstructure:"server"`
	Tracker   TrackerConfig      `mapstructure:"tracker"`
	Model     ModelConfig        `mapstructure:"model"`
	Triage    TriageConfig       `mapstructure:"triage"`
	KB        KBConfig           `mapstructure:"kb"`
	Database  DatabaseConfig     `mapstructure:"database"`
	NATS      NATSConfig         `mapstructure:"nats"`
	Log       LogConfig          `mapstructure:"log"`
	Retention RunRetentionConfig `mapstructure:"retention"`
}

// ServerConfig configures the webhook listener
type ServerConfig struct {
	Addr               string        `mapstructure:"addr"`
	WebhookSecret      string        `mapstructure:"webhook_secret"` // Empty disables signature checks
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	TimestampTolerance time.Duration `mapstructure:"timestamp_tolerance"` // 0 disables the replay window
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// TrackerConfig configures the Linear client
type TrackerConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Endpoint          string        `mapstructure:"endpoint"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ModelConfig configures plan generation
type ModelConfig struct {
	Provider           string        `mapstructure:"provider"`
	Name               string        `mapstructure:"name"`
	APIKey             string        `mapstructure:"api_key"` // Falls back to the provider's own env var
	MaxTokens          int           `mapstructure:"max_tokens"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	AttemptTimeout     time.Duration `mapstructure:"attempt_timeout"`
	MaxConcurrentCalls int           `mapstructure:"max_concurrent_calls"`
}

// TriageConfig holds the state machine settings
type TriageConfig struct {
	SystemPrompt       string        `mapstructure:"system_prompt"`
	SystemPromptFile   string        `mapstructure:"system_prompt_file"`
	AwaitingInfoLabel  string        `mapstructure:"awaiting_info_label"`
	BotMarker          string        `mapstructure:"bot_marker"`
	CompletionEmoji    string        `mapstructure:"completion_emoji"`
	EventTimeout       time.Duration `mapstructure:"event_timeout"`
	SubtaskConcurrency int           `mapstructure:"subtask_concurrency"`
}

// KBConfig selects and configures the knowledge base store
type KBConfig struct {
	Backend     string        `mapstructure:"backend"`
	TeamsKey    string        `mapstructure:"teams_key"`
	LabelsKey   string        `mapstructure:"labels_key"`
	Dir         string        `mapstructure:"dir"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"` // Negative disables caching
}

// DatabaseConfig locates the service database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// NATSConfig configures outcome notifications. Empty URL disables them.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			MaxBodyBytes:       1 << 20,
			TimestampTolerance: 60 * time.Second,
			ShutdownTimeout:    30 * time.Second,
		},
		Tracker: TrackerConfig{
			Endpoint:          "https://api.linear.app/graphql",
			RequestsPerSecond: 5,
			Burst:             5,
			Timeout:           30 * time.Second,
		},
		Model: ModelConfig{
			Provider:           ProviderAnthropic,
			MaxTokens:          2048,
			MaxAttempts:        3,
			BackoffBase:        time.Second,
			AttemptTimeout:     60 * time.Second,
			MaxConcurrentCalls: 4,
		},
		Triage: TriageConfig{
			BotMarker:          "<!-- bot -->",
			CompletionEmoji:    "white_check_mark",
			EventTimeout:       5 * time.Minute,
			SubtaskConcurrency: 4,
		},
		KB: KBConfig{
			Backend:   KBBackendSQLite,
			TeamsKey:  "teams",
			LabelsKey: "labels",
			Dir:       "kb",
			CacheTTL:  5 * time.Minute,
		},
		Database:  DatabaseConfig{Path: ".triage/triage.db"},
		NATS:      NATSConfig{Subject: "triage.outcomes"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Retention: DefaultRunRetentionConfig(),
	}
}

// Load reads configuration. path may be empty, in which case triage.yaml in
// the working directory is used if present. A .env file in the working
// directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply on Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.webhook_secret", d.Server.WebhookSecret)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.timestamp_tolerance", d.Server.TimestampTolerance)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("tracker.api_key", d.Tracker.APIKey)
	v.SetDefault("tracker.endpoint", d.Tracker.Endpoint)
	v.SetDefault("tracker.requests_per_second", d.Tracker.RequestsPerSecond)
	v.SetDefault("tracker.burst", d.Tracker.Burst)
	v.SetDefault("tracker.timeout", d.Tracker.Timeout)

	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.api_key", d.Model.APIKey)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("model.max_attempts", d.Model.MaxAttempts)
	v.SetDefault("model.backoff_base", d.Model.BackoffBase)
	v.SetDefault("model.attempt_timeout", d.Model.AttemptTimeout)
	v.SetDefault("model.max_concurrent_calls", d.Model.MaxConcurrentCalls)

	v.SetDefault("triage.system_prompt", d.Triage.SystemPrompt)
	v.SetDefault("triage.system_prompt_file", d.Triage.SystemPromptFile)
	v.SetDefault("triage.awaiting_info_label", d.Triage.AwaitingInfoLabel)
	v.SetDefault("triage.bot_marker", d.Triage.BotMarker)
	v.SetDefault("triage.completion_emoji", d.Triage.CompletionEmoji)
	v.SetDefault("triage.event_timeout", d.Triage.EventTimeout)
	v.SetDefault("triage.subtask_concurrency", d.Triage.SubtaskConcurrency)

	v.SetDefault("kb.backend", d.KB.Backend)
	v.SetDefault("kb.teams_key", d.KB.TeamsKey)
	v.SetDefault("kb.labels_key", d.KB.LabelsKey)
	v.SetDefault("kb.dir", d.KB.Dir)
	v.SetDefault("kb.postgres_dsn", d.KB.PostgresDSN)
	v.SetDefault("kb.cache_ttl", d.KB.CacheTTL)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject", d.NATS.Subject)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("retention.retention_days", d.Retention.RetentionDays)
	v.SetDefault("retention.cleanup_interval", d.Retention.CleanupInterval)
	v.SetDefault("retention.cleanup_batch_size", d.Retention.CleanupBatchSize)
	v.SetDefault("retention.cleanup_enabled", d.Retention.CleanupEnabled)
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxBodyBytes < 1024 || c.Server.MaxBodyBytes > 64<<20 {
		return fmt.Errorf("server.max_body_bytes must be between 1024 and %d (got %d)", 64<<20, c.Server.MaxBodyBytes)
	}
	if c.Server.TimestampTolerance < 0 {
		return fmt.Errorf("server.timestamp_tolerance cannot be negative (got %s)", c.Server.TimestampTolerance)
	}

	if c.Tracker.Burst < 1 {
		return fmt.Errorf("tracker.burst must be at least 1 (got %d)", c.Tracker.Burst)
	}

	switch c.Model.Provider {
	case ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("model.provider must be %q or %q (got %q)", ProviderAnthropic, ProviderGemini, c.Model.Provider)
	}
	if c.Model.MaxAttempts < 1 || c.Model.MaxAttempts > 10 {
		return fmt.Errorf("model.max_attempts must be between 1 and 10 (got %d)", c.Model.MaxAttempts)
	}
	if c.Model.BackoffBase < 0 {
		return fmt.Errorf("model.backoff_base cannot be negative (got %s)", c.Model.BackoffBase)
	}
	if c.Model.MaxConcurrentCalls < 0 {
		return fmt.Errorf("model.max_concurrent_calls cannot be negative (got %d)", c.Model.MaxConcurrentCalls)
	}

	if strings.TrimSpace(c.Triage.BotMarker) == "" {
		return fmt.Errorf("triage.bot_marker is required")
	}
	if c.Triage.SystemPrompt != "" && c.Triage.SystemPromptFile != "" {
		return fmt.Errorf("triage.system_prompt and triage.system_prompt_file are mutually exclusive")
	}
	if c.Triage.SubtaskConcurrency < 1 {
		return fmt.Errorf("triage.subtask_concurrency must be at least 1 (got %d)", c.Triage.SubtaskConcurrency)
	}

	switch c.KB.Backend {
	case KBBackendSQLite:
	case KBBackendPostgres:
		if c.KB.PostgresDSN == "" {
			return fmt.Errorf("kb.postgres_dsn is required for the postgres backend")
		}
	case KBBackendFile:
		if c.KB.Dir == "" {
			return fmt.Errorf("kb.dir is required for the file backend")
		}
	default:
		return fmt.Errorf("kb.backend must be one of sqlite, postgres, file (got %q)", c.KB.Backend)
	}
	if c.KB.TeamsKey == "" || c.KB.LabelsKey == "" {
		return fmt.Errorf("kb.teams_key and kb.labels_key are required")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json' (got %q)", c.Log.Format)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}

	if err := c.Retention.Validate(); err != nil {
		return err
	}
	return nil
}

// SystemPromptTemplate returns the configured prompt template, reading the
// prompt file when one is set. Empty means the built-in prompt.
func (c *Config) SystemPromptTemplate() (string, error) {
	if c.Triage.SystemPromptFile == "" {
		return c.Triage.SystemPrompt, nil
	}
	data, err := os.ReadFile(c.Triage.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("reading system prompt file: %w", err)
	}
	return string(data), nil
}

// NewLogger builds the slog logger described by the config
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error (got %q)", s)
	}
	return level, nil
}
