package hub

import "github.com/prometheus/client_golang/prometheus"

var (
	metricConnectedTerminals = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_connected_terminals",
		Help: "Number of terminals currently connected to the hub",
	})

	metricEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_events_published_total",
			Help: "Presence events fanned out, by type",
		},
		[]string{"type"},
	)

	metricEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_events_dropped_total",
		Help: "Presence events dropped because a subscriber buffer was full",
	})
)

// RegisterMetrics registers the hub metrics with the default prometheus
// registry. Call once at startup.
func RegisterMetrics() {
	prometheus.MustRegister(metricConnectedTerminals, metricEventsPublished, metricEventsDropped)
}
