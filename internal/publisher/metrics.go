package publisher

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "publisher",
		Name:      "events_published_total",
		Help:      "Number of events acknowledged by the broker in direct mode.",
	})

	retriedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "publisher",
		Name:      "send_retries_total",
		Help:      "Number of failed direct send attempts that were retried.",
	})

	deadLetteredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "publisher",
		Name:      "events_dead_lettered_total",
		Help:      "Number of events diverted to the dead-letter topic.",
	})

	backedUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrelay",
		Subsystem: "publisher",
		Name:      "events_backed_up_total",
		Help:      "Number of events written to the local backup directory.",
	})
)

func init() {
	prometheus.MustRegister(
		publishedCounter,
		retriedCounter,
		deadLetteredCounter,
		backedUpCounter,
	)
}
