// Package metrics exposes the server's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument the kernel reports.
type Metrics struct {
	// Tick engine
	TicksTotal   prometheus.Counter
	TickDuration prometheus.Histogram
	AgentsAlive  prometheus.Gauge

	// Actions, labeled by type and success
	ActionsResolved *prometheus.CounterVec

	// Gateway
	RegistrationsTotal *prometheus.CounterVec
	AuthFailuresTotal  *prometheus.CounterVec

	// Economy
	TradesExecuted prometheus.Counter
	OffersExpired  prometheus.Counter
}

// New creates and registers all instruments against the given registerer.
// Tests pass a fresh prometheus.NewRegistry() to avoid double registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "observatory_ticks_total",
			Help: "Number of world ticks processed",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "observatory_tick_duration_seconds",
			Help:    "Wall time spent processing a single tick",
			Buckets: prometheus.DefBuckets,
		}),
		AgentsAlive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "observatory_agents_alive",
			Help: "Agents currently alive in the world",
		}),
		ActionsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "observatory_actions_resolved_total",
			Help: "Resolved actions by type and outcome",
		}, []string{"action_type", "success"}),
		RegistrationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "observatory_registrations_total",
			Help: "Agent registration attempts by outcome",
		}, []string{"outcome"}),
		AuthFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "observatory_auth_failures_total",
			Help: "Signed-request authentication failures by reason",
		}, []string{"reason"}),
		TradesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "observatory_trades_executed_total",
			Help: "Trade offers accepted and executed",
		}),
		OffersExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "observatory_trade_offers_expired_total",
			Help: "Trade offers that expired before acceptance",
		}),
	}
}
