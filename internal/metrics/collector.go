// Package metrics exports operation counters for gobucket runs.
//
// The CLI is a short-lived batch job, so metrics are pushed to a
// Prometheus pushgateway at exit instead of being scraped.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/3leaps/gobucket/pkg/provider"
)

const namespace = "gobucket"

// OutcomeSuccess labels operations that returned no error. Failures are
// labelled with their provider.Kind.
const OutcomeSuccess = "success"

// Collector implements provider.Recorder on a private registry.
type Collector struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
	deleted    prometheus.Counter
}

var _ provider.Recorder = (*Collector)(nil)

// NewCollector creates a Collector with its metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Storage operations by name and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Storage operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved by uploads and downloads.",
		}, []string{"direction"}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_deleted_total",
			Help:      "Objects removed by drains.",
		}),
	}
	c.registry.MustRegister(c.operations, c.duration, c.bytes, c.deleted)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveOperation implements provider.Recorder.
func (c *Collector) ObserveOperation(op string, err error, elapsed time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = provider.Classify(err).String()
	}
	c.operations.WithLabelValues(op, outcome).Inc()
	c.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// AddTransferred implements provider.Recorder.
func (c *Collector) AddTransferred(direction string, n int64) {
	if n <= 0 {
		return
	}
	c.bytes.WithLabelValues(direction).Add(float64(n))
}

// AddDeleted implements provider.Recorder.
func (c *Collector) AddDeleted(n int) {
	if n <= 0 {
		return
	}
	c.deleted.Add(float64(n))
}

// Push sends the current values to a pushgateway, replacing the previous
// push for job.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(c.registry).PushContext(ctx)
}
