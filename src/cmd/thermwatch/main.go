// FILE: thermwatch/src/cmd/thermwatch/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"thermwatch/src/internal/config"
	"thermwatch/src/internal/service"
	"thermwatch/src/internal/source"
	"thermwatch/src/internal/version"

	"github.com/joho/godotenv"
)

const (
	exitOK            = 0
	exitError         = 1
	exitInputNotFound = 2
	exitDrainDeadline = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flagCfg, err := ParseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	InitOutputHandler(flagCfg.Quiet)

	if flagCfg.ShowHelp {
		displayHelp()
		return exitOK
	}
	if flagCfg.ShowVersion {
		fmt.Println(version.String())
		return exitOK
	}

	if err := loadEnvFile(flagCfg.EnvFile); err != nil {
		Error("Failed to load env file: %v\n", err)
		return exitError
	}

	configPath := config.GetConfigPath(flagCfg.ConfigFile)
	cfg, err := config.LoadWithCLI(flagCfg.Overrides, configPath)
	if err != nil {
		Error("Failed to load config: %v\n", err)
		return exitError
	}

	if err := initializeLogger(cfg); err != nil {
		Error("Failed to initialize logger: %v\n", err)
		return exitError
	}
	defer shutdownLogger()

	logger.Info("msg", "thermwatch starting",
		"version", version.String(),
		"config_file", configPath,
		"input", cfg.Source.Path,
		"store", cfg.Store.Type,
		"log_output", cfg.Logging.Output)

	pipeline, srv, err := bootstrapPipeline(cfg)
	if err != nil {
		logger.Error("msg", "Failed to bootstrap pipeline", "error", err)
		if errors.Is(err, source.ErrNotFound) {
			Error("Input file not found: %s\n", cfg.Source.Path)
			return exitInputNotFound
		}
		Error("Failed to start: %v\n", err)
		return exitError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := NewSignalHandler(logger)
	defer signals.Stop()

	if err := pipeline.Start(ctx); err != nil {
		logger.Error("msg", "Failed to start pipeline", "error", err)
		return exitError
	}

	if !cfg.DisableStatusReporter {
		go statusReporter(ctx, pipeline)
	}

	Print("Watching %s (threshold %.1f)\n", cfg.Source.Path, cfg.Detect.TemperatureThreshold)

	signals.Wait(ctx, pipeline.Done())

	if srv != nil {
		if err := srv.Shutdown(); err != nil {
			logger.Warn("msg", "Metrics server shutdown error", "error", err)
		}
	}

	return drain(pipeline, cfg.Pipeline.DrainTimeout())
}

// drain shuts the pipeline down within timeout and maps the outcome to an
// exit code
func drain(pipeline *service.Pipeline, timeout time.Duration) int {
	report, err := pipeline.Shutdown(timeout)

	if errors.Is(err, service.ErrDrainDeadline) {
		logger.Error("msg", "Drain deadline exceeded, in-flight alerts dropped",
			"dropped", report.Dropped,
			"elapsed", report.Elapsed)
		return exitDrainDeadline
	}
	if err != nil {
		logger.Error("msg", "Shutdown error", "error", err)
		return exitError
	}

	logger.Info("msg", "Shutdown complete",
		"elapsed", report.Elapsed,
		"lines_read", report.LinesRead,
		"alerts_persisted", report.AlertsPersisted)
	return exitOK
}

// loadEnvFile exports variables from a dotenv file without overriding the
// process environment. A missing file is not an error; an empty path skips it.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}
