// FILE: thermwatch/src/internal/service/pipeline.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"thermwatch/src/internal/annotate"
	"thermwatch/src/internal/clock"
	"thermwatch/src/internal/core"
	"thermwatch/src/internal/filter"
	"thermwatch/src/internal/format"
	"thermwatch/src/internal/metrics"
	"thermwatch/src/internal/sink"
	"thermwatch/src/internal/source"

	"github.com/lixenwraith/log"
)

// ErrDrainDeadline is returned by Shutdown when in-flight work had to be abandoned
var ErrDrainDeadline = errors.New("drain deadline exceeded")

// State is the lifecycle state of a pipeline
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Components are the stages a pipeline connects
type Components struct {
	Source source.Source
	Filter *filter.Filter
	Stage  *annotate.Stage
	Sink   sink.Sink

	// Optional
	Metrics *metrics.Metrics
	Clock   clock.Clock
}

// Options size the queues between stages
type Options struct {
	RunID        string
	AnomalyQueue int
	AlertQueue   int
}

// DrainReport summarises a shutdown
type DrainReport struct {
	Elapsed          time.Duration
	DeadlineExceeded bool
	Dropped          uint64
	LinesRead        uint64
	AlertsPersisted  uint64
}

// Pipeline moves lines from the source through the filter and annotation
// stage to the sink
type Pipeline struct {
	RunID string
	Stats *PipelineStats

	source  source.Source
	filter  *filter.Filter
	stage   *annotate.Stage
	sink    sink.Sink
	metrics *metrics.Metrics
	clock   clock.Clock
	logger  *log.Logger

	anomalyQueue int
	alertQueue   int

	state        atomic.Int32
	mu           sync.Mutex
	readerCancel context.CancelFunc
	workCancel   context.CancelFunc
	wg           sync.WaitGroup
	done         chan struct{}
	stopped      chan struct{}
	report       DrainReport
	reportErr    error
}

// PipelineStats contains statistics for a pipeline
type PipelineStats struct {
	StartTime           time.Time
	TotalLinesRead      atomic.Uint64
	TotalHeaderRows     atomic.Uint64
	TotalParseErrors    atomic.Uint64
	TotalReadings       atomic.Uint64
	TotalAnomalies      atomic.Uint64
	TotalCommitted      atomic.Uint64
	TotalCommittedLocal atomic.Uint64
	TotalDegraded       atomic.Uint64
	TotalFailed         atomic.Uint64
	TotalDroppedOnDrain atomic.Uint64
}

// NewPipeline creates an idle pipeline
func NewPipeline(opts Options, comps Components, logger *log.Logger) *Pipeline {
	clk := comps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	if opts.AnomalyQueue < 1 {
		opts.AnomalyQueue = 1
	}
	if opts.AlertQueue < 1 {
		opts.AlertQueue = 1
	}

	p := &Pipeline{
		RunID:        opts.RunID,
		Stats:        &PipelineStats{},
		source:       comps.Source,
		filter:       comps.Filter,
		stage:        comps.Stage,
		sink:         comps.Sink,
		metrics:      comps.Metrics,
		clock:        clk,
		logger:       logger,
		anomalyQueue: opts.AnomalyQueue,
		alertQueue:   opts.AlertQueue,
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}

	p.stage.SetDropHandler(func(r core.Reading, reason string) {
		p.recordDrop("annotate")
	})
	if p.metrics != nil {
		p.stage.SetObserver(p.metrics)
	}

	return p
}

// State returns the current lifecycle state
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Done is closed once every stage has exited
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Start launches the reader, the annotation workers and the sink writer.
// Cancelling ctx stops the reader only; use Shutdown to drain.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("pipeline cannot start from state %s", p.State())
	}

	readerCtx, readerCancel := context.WithCancel(ctx)
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))

	p.mu.Lock()
	p.readerCancel = readerCancel
	p.workCancel = workCancel
	p.mu.Unlock()

	p.Stats.StartTime = p.clock.Now()

	anomalies := make(chan core.Reading, p.anomalyQueue)
	alerts := make(chan core.Alert, p.alertQueue)

	p.wg.Add(3)
	go func() {
		defer p.wg.Done()
		defer close(anomalies)
		p.readLoop(readerCtx, workCtx, anomalies)
	}()
	go func() {
		defer p.wg.Done()
		defer close(alerts)
		_ = p.stage.Run(workCtx, anomalies, alerts)
	}()
	go func() {
		defer p.wg.Done()
		p.writeLoop(workCtx, alerts)
	}()

	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	p.logger.Info("msg", "Pipeline started",
		"component", "pipeline",
		"run_id", p.RunID,
		"annotator_pool", p.stage.GetStats()["workers"],
		"sink", p.sink.Name(),
		"anomaly_queue", p.anomalyQueue,
		"alert_queue", p.alertQueue)
	return nil
}

// readLoop is the only goroutine touching the source
func (p *Pipeline) readLoop(ctx, workCtx context.Context, anomalies chan<- core.Reading) {
	for {
		line, err := p.source.Next(ctx)
		if err != nil {
			return
		}
		p.Stats.TotalLinesRead.Add(1)
		if p.metrics != nil {
			p.metrics.IncLinesRead()
		}

		reading, err := format.ParseRow(line.Text)
		if err != nil {
			if errors.Is(err, format.ErrHeader) {
				p.Stats.TotalHeaderRows.Add(1)
				p.logger.Debug("msg", "Skipping header row",
					"component", "pipeline",
					"offset", line.Offset)
				continue
			}
			p.Stats.TotalParseErrors.Add(1)
			if p.metrics != nil {
				p.metrics.IncParseErrors()
			}
			p.logger.Warn("msg", "Discarding malformed row",
				"component", "pipeline",
				"offset", line.Offset,
				"error", err)
			continue
		}

		p.Stats.TotalReadings.Add(1)
		if !p.filter.IsAnomaly(reading) {
			continue
		}
		p.Stats.TotalAnomalies.Add(1)
		if p.metrics != nil {
			p.metrics.IncAnomalies()
		}

		// A held anomaly is still handed off while draining; only the hard
		// deadline abandons it
		select {
		case anomalies <- reading:
			if p.metrics != nil {
				p.metrics.SetQueueDepth("anomalies", len(anomalies))
			}
		case <-workCtx.Done():
			p.logger.Warn("msg", "Anomaly dropped",
				"component", "pipeline",
				"sensor_id", reading.SensorID,
				"observed_at", reading.Timestamp,
				"temperature", reading.Temperature,
				"reason", "drain deadline exceeded before annotation")
			p.recordDrop("reader")
			return
		}
	}
}

// writeLoop serialises all sink writes
func (p *Pipeline) writeLoop(ctx context.Context, alerts <-chan core.Alert) {
	for alert := range alerts {
		if p.metrics != nil {
			p.metrics.SetQueueDepth("alerts", len(alerts))
		}

		if ctx.Err() != nil {
			p.logger.Warn("msg", "Alert dropped",
				"component", "pipeline",
				"alert_id", alert.ID,
				"sensor_id", alert.SensorID,
				"observed_at", alert.ObservedAt,
				"annotation_status", alert.AnnotationStatus,
				"reason", "drain deadline exceeded while queued for persist")
			p.recordDrop("sink")
			continue
		}

		result := p.sink.Persist(ctx, alert)
		switch result {
		case core.Committed:
			p.Stats.TotalCommitted.Add(1)
		case core.CommittedLocal:
			p.Stats.TotalCommittedLocal.Add(1)
		case core.Degraded:
			p.Stats.TotalDegraded.Add(1)
		case core.Failed:
			p.Stats.TotalFailed.Add(1)
		}
		if p.metrics != nil {
			p.metrics.ObservePersist(result)
		}

		p.logger.Debug("msg", "Alert persisted",
			"component", "pipeline",
			"alert_id", alert.ID,
			"sensor_id", alert.SensorID,
			"observed_at", alert.ObservedAt,
			"annotation_status", alert.AnnotationStatus,
			"result", result.String())
	}
}

func (p *Pipeline) recordDrop(stage string) {
	p.Stats.TotalDroppedOnDrain.Add(1)
	if p.metrics != nil {
		p.metrics.IncDropped(stage)
	}
}

// Shutdown stops reading and waits up to drainTimeout for queued anomalies
// to be annotated and persisted. Past the deadline the remaining work is
// dropped and ErrDrainDeadline is returned. The offset is checkpointed and
// the sink closed in both cases. Safe to call more than once.
func (p *Pipeline) Shutdown(drainTimeout time.Duration) (DrainReport, error) {
	if p.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		err := errors.Join(p.source.Close(), p.sink.Close())
		p.mu.Lock()
		p.reportErr = err
		p.mu.Unlock()
		close(p.done)
		close(p.stopped)
		return DrainReport{}, err
	}
	if !p.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		<-p.stopped
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.report, p.reportErr
	}

	start := p.clock.Now()
	p.logger.Info("msg", "Draining pipeline",
		"component", "pipeline",
		"run_id", p.RunID,
		"drain_timeout", drainTimeout)

	p.mu.Lock()
	readerCancel, workCancel := p.readerCancel, p.workCancel
	p.mu.Unlock()

	readerCancel()

	exceeded := false
	select {
	case <-p.done:
	case <-p.clock.After(drainTimeout):
		exceeded = true
		p.logger.Warn("msg", "Drain deadline reached, abandoning in-flight work",
			"component", "pipeline",
			"run_id", p.RunID,
			"in_flight", p.stage.InFlight())
		workCancel()
		<-p.done
	}
	workCancel()

	var errs []error
	if err := p.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("source close: %w", err))
	}
	if err := p.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sink close: %w", err))
	}

	persisted := p.Stats.TotalCommitted.Load() + p.Stats.TotalCommittedLocal.Load() + p.Stats.TotalDegraded.Load()
	report := DrainReport{
		Elapsed:          p.clock.Now().Sub(start),
		DeadlineExceeded: exceeded,
		Dropped:          p.Stats.TotalDroppedOnDrain.Load(),
		LinesRead:        p.Stats.TotalLinesRead.Load(),
		AlertsPersisted:  persisted,
	}
	if exceeded {
		errs = append([]error{ErrDrainDeadline}, errs...)
	}
	err := errors.Join(errs...)

	p.mu.Lock()
	p.report, p.reportErr = report, err
	p.mu.Unlock()
	p.state.Store(int32(StateStopped))
	close(p.stopped)

	p.logger.Info("msg", "Pipeline stopped",
		"component", "pipeline",
		"run_id", p.RunID,
		"elapsed", report.Elapsed,
		"deadline_exceeded", exceeded,
		"dropped", report.Dropped,
		"lines_read", report.LinesRead,
		"alerts_persisted", report.AlertsPersisted)

	return report, err
}

// GetStats returns pipeline statistics
func (p *Pipeline) GetStats() map[string]any {
	srcStats := p.source.GetStats()
	sinkStats := p.sink.GetStats()

	return map[string]any{
		"run_id":             p.RunID,
		"state":              p.State().String(),
		"uptime_seconds":     int(p.clock.Now().Sub(p.Stats.StartTime).Seconds()),
		"total_lines_read":   p.Stats.TotalLinesRead.Load(),
		"total_header_rows":  p.Stats.TotalHeaderRows.Load(),
		"total_parse_errors": p.Stats.TotalParseErrors.Load(),
		"total_readings":     p.Stats.TotalReadings.Load(),
		"total_anomalies":    p.Stats.TotalAnomalies.Load(),
		"persist": map[string]any{
			"committed":       p.Stats.TotalCommitted.Load(),
			"committed_local": p.Stats.TotalCommittedLocal.Load(),
			"degraded":        p.Stats.TotalDegraded.Load(),
			"failed":          p.Stats.TotalFailed.Load(),
		},
		"total_dropped": p.Stats.TotalDroppedOnDrain.Load(),
		"source": map[string]any{
			"type":            srcStats.Type,
			"total_entries":   srcStats.TotalEntries,
			"dropped_entries": srcStats.DroppedEntries,
			"start_time":      srcStats.StartTime,
			"last_entry_time": srcStats.LastEntryTime,
			"details":         srcStats.Details,
		},
		"filter": p.filter.GetStats(),
		"stage":  p.stage.GetStats(),
		"sink": map[string]any{
			"type":            sinkStats.Type,
			"total_processed": sinkStats.TotalProcessed,
			"start_time":      sinkStats.StartTime,
			"last_processed":  sinkStats.LastProcessed,
			"details":         sinkStats.Details,
		},
	}
}
