// Package monitoring exposes Prometheus metrics for the ingest path.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service registers. Create exactly one
// per process with New.
type Metrics struct {
	QueueDepth     prometheus.Gauge
	EventsAdmitted prometheus.Counter
	EventsRejected prometheus.Counter
	EventsDropped  prometheus.Counter

	StageDuration *prometheus.HistogramVec
	ScoredEvents  *prometheus.CounterVec
	AlertsRaised  *prometheus.CounterVec

	WebsocketSessions prometheus.Gauge
}

// New registers all collectors on reg (pass prometheus.DefaultRegisterer
// in production).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "queue_depth",
			Help:      "Events waiting in the ingest queue.",
		}),
		EventsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "events_admitted_total",
			Help:      "Events accepted into the ingest queue.",
		}),
		EventsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "events_rejected_total",
			Help:      "Events rejected because the queue was near capacity.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "events_dropped_total",
			Help:      "Scored events dropped because persistence failed.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sentinel",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each processing stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		ScoredEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "scored_events_total",
			Help:      "Scored events by resulting risk level.",
		}, []string{"risk_level"}),
		AlertsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by priority.",
		}, []string{"priority"}),
		WebsocketSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "websocket_sessions",
			Help:      "Connected admin websocket sessions.",
		}),
	}
}
