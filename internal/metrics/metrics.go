// Package metrics exposes Prometheus instrumentation for running games.
package metrics

import (
	"net/http"

	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
	"github.com/concentration-game/concentration-server-go/internal/game/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concentration"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	GamesCreated prometheus.Counter
	ActiveGames  prometheus.Gauge
	Transitions  *prometheus.CounterVec
	Wins         prometheus.Counter
	MovesToWin   prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GamesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_created_total",
			Help:      "Games created since start.",
		}),
		ActiveGames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "games_active",
			Help:      "Games currently held in memory.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Game transitions by event type.",
		}, []string{"event"}),
		Wins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_won_total",
			Help:      "Games finished with every pair matched.",
		}),
		MovesToWin: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "moves_to_win",
			Help:      "Move count at the winning match.",
			Buckets:   prometheus.LinearBuckets(8, 4, 10),
		}),
	}
	m.registry.MustRegister(m.GamesCreated, m.ActiveGames, m.Transitions, m.Wins, m.MovesToWin)
	return m
}

// Track counts the transitions of a model and returns the listener handle.
// A win is counted once per deal: undoing the winning match and matching
// again does not count it twice.
func (m *Metrics) Track(model *concentration.Model) int {
	// listeners of one model are never called concurrently
	winCounted := false
	return model.Events().Subscribe(func(e events.Event) {
		m.Transitions.WithLabelValues(string(e.Type)).Inc()
		switch {
		case e.Type == events.EventGameReset:
			winCounted = false
		case e.Won && !winCounted:
			winCounted = true
			m.Wins.Inc()
			m.MovesToWin.Observe(float64(e.MoveCount))
		}
	})
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
