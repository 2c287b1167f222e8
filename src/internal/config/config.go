// FILE: thermwatch/src/internal/config/config.go
package config

import (
	"strings"
	"time"
)

// Config is the complete thermwatch configuration. It is loaded once at
// startup and passed explicitly to every component.
type Config struct {
	Quiet                 bool `toml:"quiet"`
	DisableStatusReporter bool `toml:"disable_status_reporter"`

	Logging  LogConfig      `toml:"logging"`
	Source   SourceConfig   `toml:"source"`
	Detect   DetectConfig   `toml:"detect"`
	Annotate AnnotateConfig `toml:"annotate"`
	Store    StoreConfig    `toml:"store"`
	Fallback FallbackConfig `toml:"fallback"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// SourceConfig configures the tailing reader
type SourceConfig struct {
	// Input CSV file, appended to by the sensor producer
	Path string `toml:"path"`

	// Wait between polls when no new data is available
	PollIntervalMS int64 `toml:"poll_interval_ms"`

	// Offset state file. Empty derives "<path>.offset", "none" disables resume.
	OffsetFile string `toml:"offset_file"`

	// Persist the offset after this many lines
	CheckpointEvery int64 `toml:"checkpoint_every"`

	// Wake early on filesystem write events
	WatchEvents bool `toml:"watch_events"`

	// Lines longer than this are discarded
	MaxLineBytes int64 `toml:"max_line_bytes"`
}

func (s SourceConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// OffsetPath resolves the offset state file, empty when persistence is disabled
func (s SourceConfig) OffsetPath() string {
	switch strings.ToLower(s.OffsetFile) {
	case "none":
		return ""
	case "":
		return s.Path + ".offset"
	default:
		return s.OffsetFile
	}
}

// DetectConfig configures the anomaly filter
type DetectConfig struct {
	TemperatureThreshold float64 `toml:"temperature_threshold"`
}

// AnnotateConfig configures the external annotation provider and worker pool
type AnnotateConfig struct {
	// Provider credential. Empty runs in unconfigured mode.
	APIKey string `toml:"api_key"`

	// OpenAI-compatible endpoint base URL
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`

	MaxTokens int64 `toml:"max_tokens"`
	TimeoutMS int64 `toml:"timeout_ms"`
	Workers   int64 `toml:"workers"`

	// Capacity of the queue between reader and workers
	QueueSize int64 `toml:"queue_size"`

	// Provider call rate limit, 0 disables
	RatePerSec float64 `toml:"rate_per_sec"`
	Burst      int64   `toml:"burst"`
}

func (a AnnotateConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

func (a AnnotateConfig) Configured() bool {
	return strings.TrimSpace(a.APIKey) != ""
}

// Store types
const (
	StoreAuto     = "auto"
	StoreNone     = "none"
	StoreREST     = "rest"
	StorePostgres = "postgres"
)

// StoreConfig configures the durable alert store
type StoreConfig struct {
	// "auto", "none", "rest" or "postgres"
	Type string `toml:"type"`

	// REST (PostgREST/Supabase) endpoint and key
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`

	// Postgres connection string
	DSN string `toml:"dsn"`

	Table     string `toml:"table"`
	TimeoutMS int64  `toml:"timeout_ms"`

	// Total write attempts before degrading to the fallback log
	MaxAttempts   int64 `toml:"max_attempts"`
	BackoffBaseMS int64 `toml:"backoff_base_ms"`
	BackoffMaxMS  int64 `toml:"backoff_max_ms"`
}

func (s StoreConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

func (s StoreConfig) BackoffBase() time.Duration {
	return time.Duration(s.BackoffBaseMS) * time.Millisecond
}

func (s StoreConfig) BackoffMax() time.Duration {
	return time.Duration(s.BackoffMaxMS) * time.Millisecond
}

// FallbackConfig configures the local append-only alert log
type FallbackConfig struct {
	Directory string `toml:"directory"`
	Name      string `toml:"name"`

	// fsync after every record
	Sync bool `toml:"sync"`
}

// PipelineConfig configures orchestration
type PipelineConfig struct {
	// Capacity of the queue between annotation workers and the sink writer
	AlertQueueSize int64 `toml:"alert_queue_size"`

	// Hard bound on drain time at shutdown
	DrainTimeoutMS int64 `toml:"drain_timeout_ms"`
}

func (p PipelineConfig) DrainTimeout() time.Duration {
	return time.Duration(p.DrainTimeoutMS) * time.Millisecond
}

// MetricsConfig configures the metrics and status endpoint
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}
