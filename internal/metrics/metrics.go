// Package metrics exposes the Prometheus registry for daovoter's core
// orchestration pipeline: scanner lag, queue depth, job retries, and vote
// outcomes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters, gauges, and histograms the core pipeline
// increments. Constructed once via Default and shared across components.
type Registry struct {
	ScannerBlocksBehind prometheus.Gauge
	ScannerWindowSeconds prometheus.Histogram
	ScannerEventsTotal  *prometheus.CounterVec

	QueueDepth    *prometheus.GaugeVec
	JobRetries    *prometheus.CounterVec
	JobsFailed    prometheus.Counter

	VotesCast   *prometheus.CounterVec
	VotesFailed *prometheus.CounterVec

	ExecutorInFlight prometheus.Gauge
}

var (
	once    sync.Once
	regInst *Registry
)

// Default returns the lazily-constructed, process-wide metrics registry,
// registered against the default Prometheus registerer.
func Default() *Registry {
	once.Do(func() {
		regInst = newRegistry()
		regInst.mustRegister()
	})
	return regInst
}

func newRegistry() *Registry {
	return &Registry{
		ScannerBlocksBehind: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "daovoter",
			Subsystem: "scanner",
			Name:      "blocks_behind",
			Help:      "Blocks between the scanner's durable cursor and the chain head.",
		}),
		ScannerWindowSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "daovoter",
			Subsystem: "scanner",
			Name:      "window_duration_seconds",
			Help:      "Time to query and process one historical-sync window.",
			Buckets:   prometheus.DefBuckets,
		}),
		ScannerEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daovoter",
			Subsystem: "scanner",
			Name:      "events_total",
			Help:      "Contract events processed, segmented by event name and outcome.",
		}, []string{"event", "outcome"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "daovoter",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Pending jobs per priority lane.",
		}, []string{"lane"}),
		JobRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daovoter",
			Subsystem: "queue",
			Name:      "job_retries_total",
			Help:      "Job re-lease attempts, segmented by lane.",
		}, []string{"lane"}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "daovoter",
			Subsystem: "queue",
			Name:      "jobs_failed_total",
			Help:      "Jobs that exhausted all retry attempts.",
		}),
		VotesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daovoter",
			Subsystem: "executor",
			Name:      "votes_cast_total",
			Help:      "Successful on-chain votes, segmented by direction and call mode.",
		}, []string{"direction", "mode"}),
		VotesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daovoter",
			Subsystem: "executor",
			Name:      "votes_failed_total",
			Help:      "Failed on-chain vote attempts, segmented by error code.",
		}, []string{"error_code"}),
		ExecutorInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "daovoter",
			Subsystem: "executor",
			Name:      "in_flight",
			Help:      "Completed-analysis results currently being processed, bounded by executor_concurrency.",
		}),
	}
}

func (r *Registry) mustRegister() {
	prometheus.MustRegister(
		r.ScannerBlocksBehind,
		r.ScannerWindowSeconds,
		r.ScannerEventsTotal,
		r.QueueDepth,
		r.JobRetries,
		r.JobsFailed,
		r.VotesCast,
		r.VotesFailed,
		r.ExecutorInFlight,
	)
}
