package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	polledCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "outbox",
		Name:      "rows_polled_total",
		Help:      "Number of outbox rows claimed for processing.",
	})

	publishedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "outbox",
		Name:      "rows_published_total",
		Help:      "Number of outbox rows successfully published to the broker.",
	})

	retriedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "outbox",
		Name:      "rows_retried_total",
		Help:      "Number of send failures that scheduled a retry.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "outbox",
		Name:      "rows_failed_total",
		Help:      "Number of rows that exhausted retries and became FAILED.",
	})

	tickErrorsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "outbox",
		Name:      "tick_errors_total",
		Help:      "Number of relay ticks that ended in an error.",
	})

	breakerSkipsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "outbox",
		Name:      "breaker_skips_total",
		Help:      "Number of ticks skipped because the circuit breaker was open.",
	})

	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eventrelay",
		Subsystem: "outbox",
		Name:      "tick_duration_seconds",
		Help:      "Time spent claiming, sending, and updating one batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	batchSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventrelay",
		Subsystem: "outbox",
		Name:      "batch_size",
		Help:      "Current adaptive batch size.",
	})

	cleanupDeletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "outbox",
		Name:      "cleanup_deleted_total",
		Help:      "Number of published rows removed by the retention cleanup.",
	})
)

func init() {
	prometheus.MustRegister(
		polledCounter,
		publishedCounter,
		retriedCounter,
		failedCounter,
		tickErrorsCounter,
		breakerSkipsCounter,
		tickDuration,
		batchSizeGauge,
		cleanupDeletedCounter,
	)
}
