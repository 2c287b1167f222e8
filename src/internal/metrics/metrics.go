// FILE: thermwatch/src/internal/metrics/metrics.go
package metrics

import (
	"time"

	"thermwatch/src/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "thermwatch"

// Metrics holds the pipeline collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	linesRead         prometheus.Counter
	parseErrors       prometheus.Counter
	anomalies         prometheus.Counter
	annotations       *prometheus.CounterVec
	annotationLatency prometheus.Histogram
	persistResults    *prometheus.CounterVec
	dropped           *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		linesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "lines_read_total",
			Help:      "Complete lines read from the input file",
		}),
		parseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "parse_errors_total",
			Help:      "Lines discarded as malformed rows",
		}),
		anomalies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "anomalies_total",
			Help:      "Readings above the temperature threshold",
		}),
		annotations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "annotate",
			Name:      "annotations_total",
			Help:      "Annotation attempts by resulting status",
		}, []string{"status"}),
		annotationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "annotate",
			Name:      "latency_seconds",
			Help:      "Annotation provider call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		}),
		persistResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "persist_total",
			Help:      "Persist outcomes by result",
		}, []string{"result"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dropped_total",
			Help:      "Anomalies abandoned at the drain deadline by stage",
		}, []string{"stage"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Items buffered between stages",
		}, []string{"queue"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncLinesRead() { m.linesRead.Inc() }

func (m *Metrics) IncParseErrors() { m.parseErrors.Inc() }

func (m *Metrics) IncAnomalies() { m.anomalies.Inc() }

// ObserveAnnotation records one annotation outcome
func (m *Metrics) ObserveAnnotation(status core.AnnotationStatus, elapsed time.Duration) {
	m.annotations.WithLabelValues(string(status)).Inc()
	if status != core.AnnotationUnconfigured {
		m.annotationLatency.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObservePersist(result core.PersistResult) {
	m.persistResults.WithLabelValues(result.String()).Inc()
}

func (m *Metrics) IncDropped(stage string) {
	m.dropped.WithLabelValues(stage).Inc()
}

func (m *Metrics) SetQueueDepth(queue string, depth int) {
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}
