// FILE: thermwatch/src/cmd/thermwatch/bootstrap.go
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"thermwatch/src/internal/clock"
	"thermwatch/src/internal/config"
	"thermwatch/src/internal/metrics"
	"thermwatch/src/internal/service"
	"thermwatch/src/internal/version"

	"github.com/lixenwraith/log"
	"golang.org/x/term"
)

var logger *log.Logger

// bootstrapPipeline builds the pipeline and, if enabled, the metrics server
func bootstrapPipeline(cfg *config.Config) (*service.Pipeline, *metrics.Server, error) {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	pipeline, err := service.Build(cfg, clock.Real(), m, logger)
	if err != nil {
		return nil, nil, err
	}

	var srv *metrics.Server
	if m != nil {
		srv = metrics.NewServer(cfg.Metrics.Listen, m, pipeline.GetStats, logger)
		if err := srv.Start(); err != nil {
			pipeline.Shutdown(0)
			return nil, nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		Print("Metrics: http://%s/metrics\n", srv.Addr())
		Print("Status:  http://%s/status\n", srv.Addr())
	}

	logger.Info("msg", "thermwatch initialized",
		"version", version.Short(),
		"run_id", pipeline.RunID,
		"metrics_enabled", srv != nil)

	return pipeline, srv, nil
}

// initializeLogger sets up the logger based on configuration
func initializeLogger(cfg *config.Config) error {
	logger = log.NewLogger()

	var configArgs []string

	if cfg.Quiet {
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=false",
			"level=255")

		return logger.InitWithDefaults(configArgs...)
	}

	levelValue, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	configArgs = append(configArgs, fmt.Sprintf("level=%d", levelValue))

	console := false
	switch cfg.Logging.Output {
	case "none":
		configArgs = append(configArgs, "disable_file=true", "enable_stdout=false")

	case "stdout", "stderr":
		console = true
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target="+cfg.Logging.Output)

	case "file":
		configArgs = append(configArgs, "enable_stdout=false")
		configureFileLogging(&configArgs, cfg)

	case "both":
		console = true
		configArgs = append(configArgs, "enable_stdout=true")
		configureFileLogging(&configArgs, cfg)
		configureConsoleTarget(&configArgs, cfg)

	default:
		return fmt.Errorf("invalid log output mode: %s", cfg.Logging.Output)

	}

	if format := consoleFormat(cfg, console); format != "" {
		configArgs = append(configArgs, "format="+format)
	}

	return logger.InitWithDefaults(configArgs...)
}

// consoleFormat honours an explicit format, otherwise picks txt for an
// interactive terminal and json when output is piped or collected
func consoleFormat(cfg *config.Config, console bool) string {
	if cfg.Logging.Console.Format != "" {
		return cfg.Logging.Console.Format
	}
	if !console {
		return ""
	}

	fd := os.Stderr.Fd()
	if cfg.Logging.Output == "stdout" || cfg.Logging.Console.Target == "stdout" {
		fd = os.Stdout.Fd()
	}
	if term.IsTerminal(int(fd)) {
		return "txt"
	}
	return "json"
}

func configureFileLogging(configArgs *[]string, cfg *config.Config) {
	f := cfg.Logging.File
	*configArgs = append(*configArgs,
		fmt.Sprintf("directory=%s", f.Directory),
		fmt.Sprintf("name=%s", f.Name),
		fmt.Sprintf("max_size_mb=%d", f.MaxSizeMB),
		fmt.Sprintf("max_total_size_mb=%d", f.MaxTotalSizeMB))

	if f.RetentionHours > 0 {
		*configArgs = append(*configArgs,
			fmt.Sprintf("retention_period_hrs=%.1f", f.RetentionHours))
	}
}

func configureConsoleTarget(configArgs *[]string, cfg *config.Config) {
	target := "stderr"
	if cfg.Logging.Console.Target != "" {
		target = cfg.Logging.Console.Target
	}

	// Split mode routes info/debug to stdout and warn/error to stderr
	if target == "split" {
		*configArgs = append(*configArgs, "stdout_split_mode=true")
		*configArgs = append(*configArgs, "stdout_target=split")
	} else {
		*configArgs = append(*configArgs, fmt.Sprintf("stdout_target=%s", target))
	}
}

func parseLogLevel(level string) (int, error) {
	switch strings.ToLower(level) {
	case "debug":
		return int(log.LevelDebug), nil
	case "info":
		return int(log.LevelInfo), nil
	case "warn", "warning":
		return int(log.LevelWarn), nil
	case "error":
		return int(log.LevelError), nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}

func shutdownLogger() {
	if logger != nil {
		if err := logger.Shutdown(2 * time.Second); err != nil {
			// Best effort, the logger itself is gone
			fmt.Fprintf(os.Stderr, "Logger shutdown error: %v\n", err)
		}
		logger = nil
	}
}
