// Package metrics holds the Prometheus collectors for the guard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bruteguard"

// Metrics is registered on its own registry so tests can build many.
type Metrics struct {
	registry *prometheus.Registry

	LoginOutcomes        *prometheus.CounterVec
	BlocksCreated        *prometheus.CounterVec
	BlocksLifted         prometheus.Counter
	Notifications        *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
	TrackedSources       prometheus.Gauge
	TrackerEvictions     prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoginOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		BlocksCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_created_total",
			Help:      "Block rules written, by origin.",
		}, []string{"origin"}),
		BlocksLifted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_lifted_total",
			Help:      "Block rules removed by an administrator.",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Block notifications delivered, by sink and result.",
		}, []string{"sink", "result"}),
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Block notifications dropped because the queue was full.",
		}),
		TrackedSources: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_sources",
			Help:      "Source addresses with an open failure streak.",
		}),
		TrackerEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_evictions_total",
			Help:      "Idle failure streaks evicted by the janitor.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
