// FILE: thermwatch/src/internal/annotate/stage.go
package annotate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"thermwatch/src/internal/config"
	"thermwatch/src/internal/core"

	"github.com/lixenwraith/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	degradedPrefix   = "CRITICAL: Check Manual (annotation failed: "
	unconfiguredText = "CRITICAL: Check Manual (annotation provider not configured)"
)

// Observer receives the outcome of every annotation attempt
type Observer interface {
	ObserveAnnotation(status core.AnnotationStatus, elapsed time.Duration)
}

// DropFunc is called for each reading abandoned at the hard drain deadline
type DropFunc func(r core.Reading, reason string)

// Stage enriches anomalies with a repair action using a fixed worker pool
type Stage struct {
	annotator Annotator
	timeout   time.Duration
	workers   int
	limiter   *rate.Limiter
	observer  Observer
	onDrop    DropFunc
	logger    *log.Logger

	// Statistics
	totalProcessed    atomic.Uint64
	totalOK           atomic.Uint64
	totalDegraded     atomic.Uint64
	totalUnconfigured atomic.Uint64
	totalDropped      atomic.Uint64
	inFlight          atomic.Int64
}

// NewStage creates an annotation stage around annotator
func NewStage(cfg config.AnnotateConfig, annotator Annotator, logger *log.Logger) *Stage {
	workers := int(cfg.Workers)
	if workers < 1 {
		workers = 1
	}

	s := &Stage{
		annotator: annotator,
		timeout:   cfg.Timeout(),
		workers:   workers,
		logger:    logger,
	}

	if cfg.RatePerSec > 0 {
		burst := int(cfg.Burst)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	logger.Debug("msg", "Annotation stage created",
		"component", "annotate",
		"annotator", annotator.Name(),
		"workers", workers,
		"timeout", s.timeout,
		"rate_per_sec", cfg.RatePerSec)

	return s
}

// SetObserver registers an observer for annotation outcomes
func (s *Stage) SetObserver(o Observer) {
	s.observer = o
}

// SetDropHandler registers a callback for readings abandoned on cancellation
func (s *Stage) SetDropHandler(fn DropFunc) {
	s.onDrop = fn
}

// outcome is an annotation result that has not been counted yet
type outcome struct {
	alert   core.Alert
	elapsed time.Duration
	err     error
}

// annotation is what a provider call produced
type annotation struct {
	text string
	err  error
}

// Enrich annotates one anomalous reading. It never drops the reading: any
// failure yields a DEGRADED alert with a placeholder action.
func (s *Stage) Enrich(ctx context.Context, r core.Reading) core.Alert {
	o := s.enrich(ctx, r)
	s.record(r, o)
	return o.alert
}

func (s *Stage) enrich(ctx context.Context, r core.Reading) outcome {
	if isUnconfigured(s.annotator) {
		return outcome{alert: core.NewAlert(r, unconfiguredText, core.AnnotationUnconfigured)}
	}

	start := time.Now()
	text, err := s.annotate(ctx, r)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, ErrUnconfigured):
		return outcome{alert: core.NewAlert(r, unconfiguredText, core.AnnotationUnconfigured), elapsed: elapsed}
	case err != nil:
		return outcome{
			alert:   core.NewAlert(r, degradedPrefix+err.Error()+")", core.AnnotationDegraded),
			elapsed: elapsed,
			err:     err,
		}
	default:
		return outcome{alert: core.NewAlert(r, text, core.AnnotationOK), elapsed: elapsed}
	}
}

// record counts an outcome once its alert has been handed on
func (s *Stage) record(r core.Reading, o outcome) {
	s.totalProcessed.Add(1)

	status := o.alert.AnnotationStatus
	switch status {
	case core.AnnotationOK:
		s.totalOK.Add(1)
	case core.AnnotationUnconfigured:
		s.totalUnconfigured.Add(1)
	case core.AnnotationDegraded:
		s.totalDegraded.Add(1)
		s.logger.Warn("msg", "Annotation failed, degrading",
			"component", "annotate",
			"sensor_id", r.SensorID,
			"observed_at", r.Timestamp,
			"elapsed", o.elapsed,
			"error", o.err)
	}
	s.observe(status, o.elapsed)
}

// annotate calls the provider in its own goroutine so a call that ignores
// its context cannot outlive the timeout. A late answer is discarded.
func (s *Stage) annotate(ctx context.Context, r core.Reading) (string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resultCh := make(chan annotation, 1)
	go func() {
		text, err := s.annotator.Annotate(callCtx, r.Temperature, r.Vibration)
		resultCh <- annotation{text: text, err: err}
	}()

	var res annotation
	select {
	case res = <-resultCh:
	case <-callCtx.Done():
		return "", s.expired(ctx)
	}

	if callCtx.Err() != nil {
		return "", s.expired(ctx)
	}
	if res.err != nil {
		return "", res.err
	}

	text := strings.TrimSpace(res.text)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

// expired names why the call context ended: the stage context or the timeout
func (s *Stage) expired(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("timed out after %s", s.timeout)
}

// Run consumes in with the worker pool until in is closed, sending enriched
// alerts to out. When ctx is cancelled, queued and in-flight readings are
// dropped and ctx.Err() is returned.
func (s *Stage) Run(ctx context.Context, in <-chan core.Reading, out chan<- core.Alert) error {
	g := new(errgroup.Group)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			s.worker(ctx, in, out)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		s.dropQueued(in)
		return err
	}
	return nil
}

func (s *Stage) worker(ctx context.Context, in <-chan core.Reading, out chan<- core.Alert) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				return
			}

			s.inFlight.Add(1)
			o := s.enrich(ctx, r)
			if ctx.Err() != nil {
				s.inFlight.Add(-1)
				s.drop(r, "drain deadline exceeded during annotation")
				return
			}

			select {
			case out <- o.alert:
				s.record(r, o)
			case <-ctx.Done():
				s.drop(r, "drain deadline exceeded before persist")
			}
			s.inFlight.Add(-1)
		}
	}
}

// dropQueued discards whatever is still buffered in the input queue
func (s *Stage) dropQueued(in <-chan core.Reading) {
	for {
		select {
		case r, ok := <-in:
			if !ok {
				return
			}
			s.drop(r, "drain deadline exceeded while queued")
		default:
			return
		}
	}
}

func (s *Stage) drop(r core.Reading, reason string) {
	s.totalDropped.Add(1)
	s.logger.Warn("msg", "Anomaly dropped",
		"component", "annotate",
		"sensor_id", r.SensorID,
		"observed_at", r.Timestamp,
		"temperature", r.Temperature,
		"reason", reason)
	if s.onDrop != nil {
		s.onDrop(r, reason)
	}
}

func (s *Stage) observe(status core.AnnotationStatus, elapsed time.Duration) {
	if s.observer != nil {
		s.observer.ObserveAnnotation(status, elapsed)
	}
}

// InFlight returns the number of readings currently being annotated
func (s *Stage) InFlight() int64 {
	return s.inFlight.Load()
}

// GetStats returns stage statistics
func (s *Stage) GetStats() map[string]any {
	return map[string]any{
		"annotator":          s.annotator.Name(),
		"workers":            s.workers,
		"in_flight":          s.inFlight.Load(),
		"total_processed":    s.totalProcessed.Load(),
		"total_ok":           s.totalOK.Load(),
		"total_degraded":     s.totalDegraded.Load(),
		"total_unconfigured": s.totalUnconfigured.Load(),
		"total_dropped":      s.totalDropped.Load(),
	}
}
