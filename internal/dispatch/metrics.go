package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "postqueue"

var (
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "cycles_total",
			Help:      "Total dispatch cycles by result",
		},
		[]string{"result"},
	)

	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "items_total",
			Help:      "Total posts processed by outcome",
		},
		[]string{"outcome"},
	)

	publishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "publish_duration_seconds",
			Help:      "Time to publish one post to the external API",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	stuckClaims = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "stuck_claims",
			Help:      "In-flight posts whose claim exceeded the staleness threshold",
		},
	)
)

func recordCycle(result string) {
	cyclesTotal.WithLabelValues(result).Inc()
}

func recordItem(outcome string) {
	itemsTotal.WithLabelValues(outcome).Inc()
}

func recordPublishDuration(d time.Duration) {
	publishDuration.Observe(d.Seconds())
}

func recordStuckClaims(count int) {
	stuckClaims.Set(float64(count))
}
