// Package metrics declares the controller's operational counters,
// registered against the default Prometheus registry that
// pkg/httpapi's /metrics route serves. Grounded on
// pkg/agent/metrics.go's promauto-backed gauge/counter declarations
// and Record* helper functions (spec.md §4.7's ambient metrics
// commitment).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubscribeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arha",
			Name:      "subscribe_total",
			Help:      "Subscribe requests handled, by outcome.",
		},
		[]string{"result"},
	)

	UnsubscribeTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arha",
			Name:      "unsubscribe_total",
			Help:      "Unsubscribe requests handled.",
		},
	)

	AlertTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arha",
			Name:      "alert_total",
			Help:      "Alerts handled, by kind.",
		},
		[]string{"kind"},
	)

	AllocateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arha",
			Name:      "allocate_total",
			Help:      "Allocator invocations, by strategy and outcome.",
		},
		[]string{"strategy", "result"},
	)

	PlacementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "arha",
			Name:      "placement_duration_seconds",
			Help:      "Time spent selecting a node and getting a new pod ready.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// RecordSubscribe records a subscribe outcome ("accepted" or "rejected").
func RecordSubscribe(result string) {
	SubscribeTotal.WithLabelValues(result).Inc()
}

// RecordUnsubscribe records one unsubscribe request.
func RecordUnsubscribe() {
	UnsubscribeTotal.Inc()
}

// RecordAlert records one alert of the given kind.
func RecordAlert(kind string) {
	AlertTotal.WithLabelValues(kind).Inc()
}

// RecordAllocate records one allocator invocation's outcome.
func RecordAllocate(strategy, result string) {
	AllocateTotal.WithLabelValues(strategy, result).Inc()
}

// RecordPlacementDuration records the wall-clock time a placement attempt took.
func RecordPlacementDuration(seconds float64) {
	PlacementDuration.Observe(seconds)
}
