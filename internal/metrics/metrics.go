// Package metrics exposes the relay's internal counters via Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "watchparty_signaling"

type Metrics struct {
	registry *prometheus.Registry

	ConnectionsTotal prometheus.Counter
	ConnectionsOpen  prometheus.Gauge

	RoomsCreatedTotal prometheus.Counter
	RoomsActive       prometheus.Gauge
	JoinsTotal        prometheus.Counter
	JoinFailuresTotal *prometheus.CounterVec // label: reason

	RelayedEventsTotal *prometheus.CounterVec // label: event
	DroppedEmitsTotal  prometheus.Counter
	RateLimitedTotal   prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Transport connections accepted since start.",
		}),
		ConnectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Currently open transport connections.",
		}),
		RoomsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created since start.",
		}),
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms currently holding at least one member.",
		}),
		JoinsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Successful room joins since start.",
		}),
		JoinFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_failures_total",
			Help:      "Rejected room joins by reason.",
		}, []string{"reason"}),
		RelayedEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_events_total",
			Help:      "Events fanned out to room members, by event name.",
		}, []string{"event"}),
		DroppedEmitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_emits_total",
			Help:      "Outbound emits dropped because a connection's send queue was full.",
		}),
		RateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Connections closed for exceeding the inbound message rate limit.",
		}),
	}
}

// Handler exposes the registry in Prometheus' text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
