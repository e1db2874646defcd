// Package config loads and validates radar configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Fallback policies for classifier verdicts that name no known business.
const (
	FallbackDefaultBusiness = "default_business"
	FallbackUnattributed    = "unattributed"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Consensus  ConsensusConfig  `mapstructure:"consensus"`
	Heartbeat  HeartbeatConfig  `mapstructure:"heartbeat"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DatabaseConfig selects and tunes the backing store.
type DatabaseConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// SourceConfig tunes one upstream adapter.
type SourceConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseURL       string `mapstructure:"base_url"`
	PacingMs      int    `mapstructure:"pacing_ms"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
	RetryBaseMs   int    `mapstructure:"retry_base_ms"`
	Limit         int    `mapstructure:"limit"`
}

// Pacing returns the delay between consecutive requests.
func (s SourceConfig) Pacing() time.Duration {
	return time.Duration(s.PacingMs) * time.Millisecond
}

// RetryBase returns the first backoff delay.
func (s SourceConfig) RetryBase() time.Duration {
	return time.Duration(s.RetryBaseMs) * time.Millisecond
}

// TwitterConfig adds credentials to the shared source knobs.
type TwitterConfig struct {
	SourceConfig `mapstructure:",squash"`
	BearerToken  string `mapstructure:"bearer_token"`
}

// SourcesConfig groups adapter settings.
type SourcesConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	Reddit         SourceConfig  `mapstructure:"reddit"`
	HackerNews     SourceConfig  `mapstructure:"hackernews"`
	TikTok         SourceConfig  `mapstructure:"tiktok"`
	Instagram      SourceConfig  `mapstructure:"instagram"`
	Twitter        TwitterConfig `mapstructure:"twitter"`
}

// Timeout returns the per-request HTTP timeout.
func (s SourcesConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// LLMConfig points at an OpenRouter-compatible chat completion API.
type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Referer string `mapstructure:"referer"`
	Title   string `mapstructure:"title"`
}

// ClassifierConfig tunes relevance classification.
type ClassifierConfig struct {
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	BatchSize      int     `mapstructure:"batch_size"`
	Fallback       string  `mapstructure:"fallback"`
}

// ConsensusConfig tunes multi-model keyword suggestion.
type ConsensusConfig struct {
	Models             []string `mapstructure:"models"`
	TimeoutSeconds     int      `mapstructure:"timeout_seconds"`
	MaxParallel        int      `mapstructure:"max_parallel"`
	PreselectThreshold int      `mapstructure:"preselect_threshold"`
	Temperature        float64  `mapstructure:"temperature"`
	MaxTokens          int      `mapstructure:"max_tokens"`
}

// HeartbeatConfig controls health derivation.
type HeartbeatConfig struct {
	HealthyWindowHours int `mapstructure:"healthy_window_hours"`
}

// HealthyWindow returns the recency bound for a healthy adapter.
func (h HeartbeatConfig) HealthyWindow() time.Duration {
	return time.Duration(h.HealthyWindowHours) * time.Hour
}

// NotifyConfig holds metadata for publish-subscribe notifications.
type NotifyConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	MinRelevance int    `mapstructure:"min_relevance"`
}

// ArchiveConfig sets where raw upstream payloads are kept.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	// LocalDir is used when no bucket is set.
	LocalDir string `mapstructure:"local_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// TracingConfig controls OpenTelemetry spans around batch jobs.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.provider", "memory")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.migrate", true)

	v.SetDefault("sources.user_agent", "Mozilla/5.0 (compatible; mention-radar/0.1)")
	v.SetDefault("sources.timeout_seconds", 30)
	setSourceDefaults(v, "reddit", "https://old.reddit.com", 2000, 3, 5000, 25)
	setSourceDefaults(v, "hackernews", "https://hacker-news.firebaseio.com/v0", 0, 3, 2000, 500)
	setSourceDefaults(v, "tiktok", "https://www.tiktok.com", 2000, 1, 0, 30)
	setSourceDefaults(v, "instagram", "https://www.instagram.com", 2000, 1, 0, 20)
	setSourceDefaults(v, "twitter", "https://api.twitter.com/2", 3000, 2, 2000, 20)
	v.SetDefault("sources.tiktok.enabled", false)

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)

	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.title", "Mention Radar")

	v.SetDefault("classifier.model", "google/gemini-flash-1.5")
	v.SetDefault("classifier.temperature", 0.3)
	v.SetDefault("classifier.max_tokens", 1000)
	v.SetDefault("classifier.timeout_seconds", 30)
	v.SetDefault("classifier.batch_size", 10)
	v.SetDefault("classifier.fallback", FallbackDefaultBusiness)

	v.SetDefault("consensus.models", []string{
		"openai/gpt-5.2",
		"anthropic/claude-opus-4.5",
		"google/gemini-3-pro-preview",
	})
	v.SetDefault("consensus.timeout_seconds", 60)
	v.SetDefault("consensus.max_parallel", 4)
	v.SetDefault("consensus.preselect_threshold", 2)
	v.SetDefault("consensus.temperature", 0.7)
	v.SetDefault("consensus.max_tokens", 4000)

	v.SetDefault("heartbeat.healthy_window_hours", 24)
	v.SetDefault("notify.min_relevance", 8)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("tracing.service_name", "mention-radar")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("logging.development", false)
}

func setSourceDefaults(v *viper.Viper, name, baseURL string, pacingMs, attempts, retryBaseMs, limit int) {
	prefix := "sources." + name + "."
	v.SetDefault(prefix+"enabled", true)
	v.SetDefault(prefix+"base_url", baseURL)
	v.SetDefault(prefix+"pacing_ms", pacingMs)
	v.SetDefault(prefix+"retry_attempts", attempts)
	v.SetDefault(prefix+"retry_base_ms", retryBaseMs)
	v.SetDefault(prefix+"limit", limit)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Database.Provider {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("database.provider %q is not one of memory, postgres", c.Database.Provider)
	}
	if c.Sources.TimeoutSeconds <= 0 {
		return fmt.Errorf("sources.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Classifier.BatchSize <= 0 {
		return fmt.Errorf("classifier.batch_size must be > 0")
	}
	if c.Classifier.Fallback != FallbackDefaultBusiness && c.Classifier.Fallback != FallbackUnattributed {
		return fmt.Errorf("classifier.fallback must be %q or %q", FallbackDefaultBusiness, FallbackUnattributed)
	}
	if len(c.Consensus.Models) == 0 {
		return fmt.Errorf("consensus.models must list at least one model")
	}
	if c.Consensus.PreselectThreshold < 1 {
		return fmt.Errorf("consensus.preselect_threshold must be >= 1")
	}
	if c.Heartbeat.HealthyWindowHours <= 0 {
		return fmt.Errorf("heartbeat.healthy_window_hours must be > 0")
	}
	if c.Notify.Enabled && (c.Notify.ProjectID == "" || c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic are required when notify is enabled")
	}
	if c.Archive.Enabled && c.Archive.GCSBucket == "" && c.Archive.LocalDir == "" {
		return fmt.Errorf("archive.gcs_bucket or archive.local_dir is required when archive is enabled")
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1) {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	return nil
}

// ClassifierTimeout converts the classifier timeout into a duration.
func (c Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutSeconds) * time.Second
}

// ConsensusTimeout converts the per-model timeout into a duration.
func (c Config) ConsensusTimeout() time.Duration {
	return time.Duration(c.Consensus.TimeoutSeconds) * time.Second
}
