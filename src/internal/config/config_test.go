// FILE: thermwatch/src/internal/config/config_test.go
package config

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaults()
	require.NoError(t, validateConfig(cfg))

	assert.Equal(t, 900.0, cfg.Detect.TemperatureThreshold)
	assert.Equal(t, StoreNone, cfg.Store.Type, "no endpoint configured resolves to local-only mode")
	assert.False(t, cfg.Annotate.Configured())
	assert.Equal(t, 100*time.Millisecond, cfg.Source.PollInterval())
}

func TestValidateStore_AutoResolution(t *testing.T) {
	testCases := []struct {
		name     string
		store    StoreConfig
		expected string
	}{
		{"NoEndpoint", StoreConfig{Type: StoreAuto}, StoreNone},
		{"URLSelectsREST", StoreConfig{Type: StoreAuto, URL: "https://db.example.com", APIKey: "k"}, StoreREST},
		{"DSNSelectsPostgres", StoreConfig{Type: "", DSN: "postgres://u:p@h/db"}, StorePostgres},
		{"ExplicitNoneWins", StoreConfig{Type: "NONE", URL: "https://db.example.com"}, StoreNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := defaults().Store
			s.Type, s.URL, s.APIKey, s.DSN = tc.store.Type, tc.store.URL, tc.store.APIKey, tc.store.DSN
			require.NoError(t, validateStore(&s))
			assert.Equal(t, tc.expected, s.Type)
		})
	}
}

func TestValidateConfig_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"EmptyPath", func(c *Config) { c.Source.Path = "" }, "path is required"},
		{"PollTooSmall", func(c *Config) { c.Source.PollIntervalMS = 1 }, "poll interval too small"},
		{"NaNThreshold", func(c *Config) { c.Detect.TemperatureThreshold = math.NaN() }, "must be finite"},
		{"NoWorkers", func(c *Config) { c.Annotate.Workers = 0 }, "workers must be positive"},
		{"RESTWithoutKey", func(c *Config) { c.Store.URL = "https://db.example.com" }, "requires api_key"},
		{"BadTable", func(c *Config) {
			c.Store.Type = StorePostgres
			c.Store.DSN = "postgres://h/db"
			c.Store.Table = "alerts; drop table x"
		}, "invalid table name"},
		{"UnknownStore", func(c *Config) { c.Store.Type = "kafka" }, "unknown store type"},
		{"BackoffInverted", func(c *Config) {
			c.Store.Type = StorePostgres
			c.Store.DSN = "postgres://h/db"
			c.Store.BackoffMaxMS = 10
		}, "below backoff_base_ms"},
		{"FallbackNameWithSlash", func(c *Config) { c.Fallback.Name = "a/b.jsonl" }, "path separators"},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"ZeroDrain", func(c *Config) { c.Pipeline.DrainTimeoutMS = 0 }, "drain_timeout_ms"},
		{"AnnotateBadURL", func(c *Config) {
			c.Annotate.APIKey = "secret"
			c.Annotate.BaseURL = "::not a url"
		}, "invalid base_url"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestApplyLegacyEnv(t *testing.T) {
	env := map[string]string{
		"GEMINI_API_KEY":  "gemini-key",
		"SUPABASE_URL":    "https://x.supabase.co",
		"SUPABASE_KEY":    "supa-key",
		"SUPABASE_DB_URI": "postgresql://u:p@h:5432/db",
	}
	getenv := func(k string) string { return env[k] }

	t.Run("FillsEmpty", func(t *testing.T) {
		cfg := defaults()
		applyLegacyEnv(cfg, getenv)
		assert.Equal(t, "gemini-key", cfg.Annotate.APIKey)
		assert.Equal(t, "https://x.supabase.co", cfg.Store.URL)
		assert.Equal(t, "supa-key", cfg.Store.APIKey)
		assert.Equal(t, "postgresql://u:p@h:5432/db", cfg.Store.DSN)
	})

	t.Run("KeepsExplicit", func(t *testing.T) {
		cfg := defaults()
		cfg.Annotate.APIKey = "explicit"
		applyLegacyEnv(cfg, getenv)
		assert.Equal(t, "explicit", cfg.Annotate.APIKey)
	})
}

func TestCustomEnvTransform(t *testing.T) {
	assert.Equal(t, "THERMWATCH_ANNOTATE_API_KEY", customEnvTransform("annotate.api_key"))
	assert.Equal(t, "THERMWATCH_DETECT_TEMPERATURE_THRESHOLD", customEnvTransform("detect.temperature_threshold"))
}

func TestSourceConfig_OffsetPath(t *testing.T) {
	s := SourceConfig{Path: "/data/stream.csv"}
	assert.Equal(t, "/data/stream.csv.offset", s.OffsetPath())

	s.OffsetFile = "none"
	assert.Equal(t, "", s.OffsetPath())

	s.OffsetFile = "/var/lib/thermwatch/offset.json"
	assert.Equal(t, "/var/lib/thermwatch/offset.json", s.OffsetPath())
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("THERMWATCH_CONFIG_FILE", "")
	t.Setenv("THERMWATCH_CONFIG_DIR", "")
	assert.Equal(t, "thermwatch.toml", GetConfigPath(""))
	assert.Equal(t, "/etc/tw.toml", GetConfigPath("/etc/tw.toml"))

	t.Setenv("THERMWATCH_CONFIG_DIR", "/etc/thermwatch")
	assert.Equal(t, "/etc/thermwatch/thermwatch.toml", GetConfigPath(""))

	t.Setenv("THERMWATCH_CONFIG_FILE", "custom.toml")
	assert.Equal(t, "/etc/thermwatch/custom.toml", GetConfigPath(""))
}
