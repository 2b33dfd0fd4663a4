package posts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "postqueue"

var queueSize = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "posts",
		Name:      "queue_size",
		Help:      "Number of posts by status",
	},
	[]string{"status"},
)

// RecordQueueStats updates post queue size metrics.
func RecordQueueStats(stats *QueueStats) {
	queueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	queueSize.WithLabelValues("in_flight").Set(float64(stats.InFlight))
	queueSize.WithLabelValues("posted").Set(float64(stats.Posted))
	queueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
