package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for event publishing.
type Metrics struct {
	Emitted      *prometheus.CounterVec
	Dropped      prometheus.Counter
	SinkFailures prometheus.Counter
	Buffered     prometheus.Gauge
}

// NewMetrics registers the publisher metrics with the default registry.
// Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "issuance_events_emitted_total",
			Help: "Total number of events accepted for publishing",
		}, []string{"category"}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "issuance_events_dropped_total",
			Help: "Total number of events dropped because the buffer was full",
		}),
		SinkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "issuance_events_sink_failures_total",
			Help: "Total number of event batches the sink failed to write",
		}),
		Buffered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "issuance_events_buffered",
			Help: "Number of events waiting in the publish buffer",
		}),
	}
}
