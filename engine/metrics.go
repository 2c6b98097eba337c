package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "bp4"
	metricsSubsystem = "writer"
)

// writerMetrics counts what a writer did since it was opened.
type writerMetrics struct {
	steps         prometheus.Counter
	flushes       prometheus.Counter
	dataBytes     prometheus.Counter
	metadataBytes prometheus.Counter
}

func newWriterMetrics() *writerMetrics {
	return &writerMetrics{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "steps_total",
			Help:      "Number of steps completed by EndStep or Close.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "flushes_total",
			Help:      "Number of data flushes, including the final one.",
		}),
		dataBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "data_bytes_total",
			Help:      "Bytes this rank wrote to its data subfile.",
		}),
		metadataBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "metadata_bytes_total",
			Help:      "Bytes written to the metadata file, rank 0 only.",
		}),
	}
}

// PrometheusCollectors returns the writer's metrics for registration.
func (w *Writer) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		w.metrics.steps,
		w.metrics.flushes,
		w.metrics.dataBytes,
		w.metrics.metadataBytes,
	}
}
