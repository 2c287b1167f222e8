// FILE: thermwatch/src/internal/config/validation.go
package config

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// validateConfig is the centralized validator for the entire configuration.
// It also resolves Store.Type "auto" to the concrete store selected by the
// configured endpoint.
func validateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if err := validateLogConfig(cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := validateSource(&cfg.Source); err != nil {
		return fmt.Errorf("source config: %w", err)
	}
	if err := validateDetect(cfg.Detect); err != nil {
		return fmt.Errorf("detect config: %w", err)
	}
	if err := validateAnnotate(cfg.Annotate); err != nil {
		return fmt.Errorf("annotate config: %w", err)
	}
	if err := validateStore(&cfg.Store); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := validateFallback(cfg.Fallback); err != nil {
		return fmt.Errorf("fallback config: %w", err)
	}
	if err := validatePipeline(cfg.Pipeline); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if cfg.Metrics.Enabled {
		if err := lconfig.NonEmpty(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics config: listen address required when enabled")
		}
	}

	return nil
}

func validateSource(s *SourceConfig) error {
	if err := lconfig.NonEmpty(s.Path); err != nil {
		return fmt.Errorf("path is required")
	}
	if s.PollIntervalMS < 10 {
		return fmt.Errorf("poll interval too small: %d ms (min: 10ms)", s.PollIntervalMS)
	}
	if s.CheckpointEvery < 1 {
		return fmt.Errorf("checkpoint_every must be positive: %d", s.CheckpointEvery)
	}
	if s.MaxLineBytes < 64 {
		return fmt.Errorf("max_line_bytes too small: %d (min: 64)", s.MaxLineBytes)
	}
	return nil
}

func validateDetect(d DetectConfig) error {
	if math.IsNaN(d.TemperatureThreshold) || math.IsInf(d.TemperatureThreshold, 0) {
		return fmt.Errorf("temperature_threshold must be finite")
	}
	return nil
}

func validateAnnotate(a AnnotateConfig) error {
	if a.Workers < 1 {
		return fmt.Errorf("workers must be positive: %d", a.Workers)
	}
	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive: %d", a.QueueSize)
	}
	if a.TimeoutMS < 1 {
		return fmt.Errorf("timeout_ms must be positive: %d", a.TimeoutMS)
	}
	if a.RatePerSec < 0 {
		return fmt.Errorf("rate_per_sec cannot be negative")
	}
	if a.RatePerSec > 0 && a.Burst < 1 {
		return fmt.Errorf("burst must be positive when rate limiting: %d", a.Burst)
	}
	if a.Configured() {
		if _, err := url.ParseRequestURI(a.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url %q: %w", a.BaseURL, err)
		}
		if err := lconfig.NonEmpty(a.Model); err != nil {
			return fmt.Errorf("model is required when api_key is set")
		}
	}
	return nil
}

func validateStore(s *StoreConfig) error {
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	if s.Type == "" || s.Type == StoreAuto {
		switch {
		case s.URL != "":
			s.Type = StoreREST
		case s.DSN != "":
			s.Type = StorePostgres
		default:
			s.Type = StoreNone
		}
	}

	switch s.Type {
	case StoreNone:
		return nil
	case StoreREST:
		u, err := url.ParseRequestURI(s.URL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("rest store requires a valid url, got %q", s.URL)
		}
		if err := lconfig.NonEmpty(s.APIKey); err != nil {
			return fmt.Errorf("rest store requires api_key")
		}
	case StorePostgres:
		if err := lconfig.NonEmpty(s.DSN); err != nil {
			return fmt.Errorf("postgres store requires dsn")
		}
	default:
		return fmt.Errorf("unknown store type '%s' (must be auto, none, rest or postgres)", s.Type)
	}

	if !tableNamePattern.MatchString(s.Table) {
		return fmt.Errorf("invalid table name %q", s.Table)
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive: %d", s.MaxAttempts)
	}
	if s.BackoffBaseMS < 1 {
		return fmt.Errorf("backoff_base_ms must be positive: %d", s.BackoffBaseMS)
	}
	if s.BackoffMaxMS < s.BackoffBaseMS {
		return fmt.Errorf("backoff_max_ms (%d) below backoff_base_ms (%d)", s.BackoffMaxMS, s.BackoffBaseMS)
	}
	if s.TimeoutMS < 1 {
		return fmt.Errorf("timeout_ms must be positive: %d", s.TimeoutMS)
	}
	return nil
}

func validateFallback(f FallbackConfig) error {
	if err := lconfig.NonEmpty(f.Directory); err != nil {
		return fmt.Errorf("directory is required")
	}
	if err := lconfig.NonEmpty(f.Name); err != nil {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(f.Name, `/\`) {
		return fmt.Errorf("name must not contain path separators: %s", f.Name)
	}
	return nil
}

func validatePipeline(p PipelineConfig) error {
	if p.AlertQueueSize < 1 {
		return fmt.Errorf("alert_queue_size must be positive: %d", p.AlertQueueSize)
	}
	if p.DrainTimeoutMS < 1 {
		return fmt.Errorf("drain_timeout_ms must be positive: %d", p.DrainTimeoutMS)
	}
	return nil
}
