// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UnlocksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unlocks_completed_total",
			Help: "Total number of unlock batches committed",
		},
		[]string{"unlock_type"},
	)

	UnlocksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unlocks_failed_total",
			Help: "Total number of unlock batches rejected or failed",
		},
		[]string{"unlock_type", "error_code"},
	)

	CreditsCharged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_charged_total",
			Help: "Total credits debited by unlock batches",
		},
		[]string{"unlock_type"},
	)

	UnlockDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "unlock_duration_seconds",
			Help: "Duration of unlock batch processing in seconds",
		},
		[]string{"unlock_type"},
	)

	PlanPurchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_purchases_total",
			Help: "Total number of plan purchases applied",
		},
		[]string{"plan"},
	)

	PlanExpiryRollovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_expiry_rollovers_total",
			Help: "Total number of lazy expiry rollovers by resulting plan",
		},
		[]string{"to_plan"},
	)
)
