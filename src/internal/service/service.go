// FILE: thermwatch/src/internal/service/service.go
package service

import (
	"fmt"

	"thermwatch/src/internal/annotate"
	"thermwatch/src/internal/clock"
	"thermwatch/src/internal/config"
	"thermwatch/src/internal/filter"
	"thermwatch/src/internal/metrics"
	"thermwatch/src/internal/sink"
	"thermwatch/src/internal/source"

	"github.com/google/uuid"
	"github.com/lixenwraith/log"
)

// Build wires a pipeline from configuration. A missing input file is
// reported as source.ErrNotFound. m may be nil.
func Build(cfg *config.Config, clk clock.Clock, m *metrics.Metrics, logger *log.Logger) (*Pipeline, error) {
	if clk == nil {
		clk = clock.Real()
	}
	runID := uuid.NewString()

	logger.Debug("msg", "Building pipeline",
		"component", "service",
		"run_id", runID)

	src, err := source.Open(cfg.Source, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}

	flt := filter.New(cfg.Detect, logger)

	annotator := annotate.New(cfg.Annotate, cfg.Detect.TemperatureThreshold, logger)
	stage := annotate.NewStage(cfg.Annotate, annotator, logger)

	snk, err := sink.New(cfg, runID, clk, logger)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create sink: %w", err)
	}

	p := NewPipeline(Options{
		RunID:        runID,
		AnomalyQueue: int(cfg.Annotate.QueueSize),
		AlertQueue:   int(cfg.Pipeline.AlertQueueSize),
	}, Components{
		Source:  src,
		Filter:  flt,
		Stage:   stage,
		Sink:    snk,
		Metrics: m,
		Clock:   clk,
	}, logger)

	logger.Info("msg", "Pipeline built",
		"component", "service",
		"run_id", runID,
		"input", cfg.Source.Path,
		"threshold", cfg.Detect.TemperatureThreshold,
		"annotator", annotator.Name(),
		"sink", snk.Name())

	return p, nil
}
