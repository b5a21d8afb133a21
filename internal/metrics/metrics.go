// Package metrics declares the domain counters exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RefreshInitialized = "initialized"
	RefreshSkipped     = "skipped"
	RefreshUpdated     = "updated"
	RefreshFailed      = "failed"
)

var (
	StreakRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilens_streak_refresh_total",
			Help: "Streak refresh attempts by outcome",
		},
		[]string{"result"},
	)
	LedgerIncrements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilens_ledger_increments_total",
			Help: "Daily nutrition ledger increments by outcome",
		},
		[]string{"result"},
	)
	MealsLogged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nutrilens_meals_logged_total",
			Help: "Meals logged",
		},
	)
	MilestonePushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilens_milestone_push_total",
			Help: "Streak milestone notifications by outcome",
		},
		[]string{"result"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nutrilens_active_sessions",
			Help: "Open realtime session websockets",
		},
	)
)

var registerOnce sync.Once

// Register adds the domain metrics to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(StreakRefreshes, LedgerIncrements, MealsLogged, MilestonePushes, ActiveSessions)
	})
}
