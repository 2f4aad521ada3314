package metrics

import (
	"time"

	"github.com/contre95/csvinserter/src/features/ingesting"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "csvinserter"

// Collector exposes ingestion counters to Prometheus. It implements
// ingesting.Observer.
type Collector struct {
	registry         *prometheus.Registry
	filesDetected    prometheus.Counter
	filesProcessed   *prometheus.CounterVec
	readFailures     prometheus.Counter
	loadFailures     prometheus.Counter
	disposalFailures *prometheus.CounterVec
	bytesLoaded      prometheus.Counter
	loadDuration     prometheus.Histogram
}

// NewCollector registers every ingestion metric on a private registry.
// queueDepth is sampled at scrape time and may be nil.
func NewCollector(queueDepth func() int) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		filesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_detected_total",
			Help:      "CSV files reported by the watcher.",
		}),
		filesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Files that went through the processing loop, by outcome.",
		}, []string{"outcome"}),
		readFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Files that could not be read.",
		}),
		loadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_failures_total",
			Help:      "Inserts rejected by ClickHouse or failed in transport.",
		}),
		disposalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disposal_failures_total",
			Help:      "Files that could not be moved or removed after processing, by outcome.",
		}, []string{"outcome"}),
		bytesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_loaded_total",
			Help:      "Bytes successfully inserted.",
		}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of insert requests.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	c.registry.MustRegister(
		c.filesDetected,
		c.filesProcessed,
		c.readFailures,
		c.loadFailures,
		c.disposalFailures,
		c.bytesLoaded,
		c.loadDuration,
	)
	if queueDepth != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events waiting to be processed.",
		}, func() float64 { return float64(queueDepth()) }))
	}
	return c
}

// Registry returns the registry holding the ingestion metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) FileDetected() { c.filesDetected.Inc() }

func (c *Collector) ReadFailed() { c.readFailures.Inc() }

func (c *Collector) LoadFinished(bytes int, took time.Duration, err error) {
	c.loadDuration.Observe(took.Seconds())
	if err != nil {
		c.loadFailures.Inc()
		return
	}
	c.bytesLoaded.Add(float64(bytes))
}

func (c *Collector) FileProcessed(outcome ingesting.Outcome) {
	c.filesProcessed.WithLabelValues(outcome.String()).Inc()
}

func (c *Collector) DisposalFailed(outcome ingesting.Outcome) {
	c.disposalFailures.WithLabelValues(outcome.String()).Inc()
}
