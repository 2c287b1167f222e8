// FILE: thermwatch/src/internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

const envPrefix = "THERMWATCH_"

func defaults() *Config {
	return &Config{
		Logging: DefaultLogConfig(),
		Source: SourceConfig{
			Path:            "./data/stream.csv",
			PollIntervalMS:  100,
			CheckpointEvery: 1,
			WatchEvents:     true,
			MaxLineBytes:    64 * 1024,
		},
		Detect: DetectConfig{
			TemperatureThreshold: 900.0,
		},
		Annotate: AnnotateConfig{
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:      "gemini-2.0-flash",
			MaxTokens:  200,
			TimeoutMS:  15000,
			Workers:    4,
			QueueSize:  256,
			RatePerSec: 1,
			Burst:      4,
		},
		Store: StoreConfig{
			Type:          StoreAuto,
			Table:         "alerts",
			TimeoutMS:     5000,
			MaxAttempts:   5,
			BackoffBaseMS: 200,
			BackoffMaxMS:  5000,
		},
		Fallback: FallbackConfig{
			Directory: "./data",
			Name:      "critical_alerts_log.jsonl",
			Sync:      true,
		},
		Pipeline: PipelineConfig{
			AlertQueueSize: 256,
			DrainTimeoutMS: 30000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// LoadWithCLI builds the configuration from defaults, the config file,
// THERMWATCH_* environment variables and CLI overrides, in increasing
// precedence, then validates it.
func LoadWithCLI(cliArgs []string, configPath string) (*Config, error) {
	cfg, err := lconfig.NewBuilder().
		WithDefaults(defaults()).
		WithEnvPrefix(envPrefix).
		WithFile(configPath).
		WithArgs(cliArgs).
		WithEnvTransform(customEnvTransform).
		WithSources(
			lconfig.SourceCLI,
			lconfig.SourceEnv,
			lconfig.SourceFile,
			lconfig.SourceDefault,
		).
		Build()

	if err != nil {
		// A missing config file is fine, defaults and env still apply
		if !strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	finalConfig := &Config{}
	if err := cfg.Scan(finalConfig, ""); err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}

	applyLegacyEnv(finalConfig, os.Getenv)

	if err := validateConfig(finalConfig); err != nil {
		return nil, err
	}
	return finalConfig, nil
}

func customEnvTransform(path string) string {
	env := strings.ReplaceAll(path, ".", "_")
	env = strings.ToUpper(env)
	env = envPrefix + env
	return env
}

// applyLegacyEnv fills empty credentials from the variable names used by
// earlier deployments of the pipeline.
func applyLegacyEnv(cfg *Config, getenv func(string) string) {
	if cfg.Annotate.APIKey == "" {
		cfg.Annotate.APIKey = getenv("GEMINI_API_KEY")
	}
	if cfg.Store.URL == "" {
		cfg.Store.URL = getenv("SUPABASE_URL")
	}
	if cfg.Store.APIKey == "" {
		cfg.Store.APIKey = getenv("SUPABASE_KEY")
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = getenv("SUPABASE_DB_URI")
	}
}

// GetConfigPath resolves the config file location. An explicit flag value wins.
func GetConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}

	if configFile := os.Getenv(envPrefix + "CONFIG_FILE"); configFile != "" {
		if filepath.IsAbs(configFile) {
			return configFile
		}
		if configDir := os.Getenv(envPrefix + "CONFIG_DIR"); configDir != "" {
			return filepath.Join(configDir, configFile)
		}
		return configFile
	}

	if configDir := os.Getenv(envPrefix + "CONFIG_DIR"); configDir != "" {
		return filepath.Join(configDir, "thermwatch.toml")
	}

	return "thermwatch.toml"
}
