package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unlockAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circle_unlock_attempts_total",
		Help: "Unlock attempts by category and outcome",
	}, []string{"category", "outcome"})

	pointsAwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circle_points_awarded_total",
		Help: "Points credited by award source",
	}, []string{"source"})

	tierPromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circle_tier_promotions_total",
		Help: "Tier promotions by destination tier",
	}, []string{"tier"})

	puzzleVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circle_puzzle_verifications_total",
		Help: "Puzzle verification results by type",
	}, []string{"type", "result"})

	capabilityGrantFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circle_capability_grant_failures_total",
		Help: "Capability grants that failed after a committed unlock",
	})

	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "circle_evaluation_duration_seconds",
		Help:    "Time to load state and evaluate all unlockables for a user",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

func observeAward(source string, res AwardResult, delta int64) {
	if delta > 0 {
		pointsAwardedTotal.WithLabelValues(source).Add(float64(delta))
	}
	if res.Promoted {
		tierPromotionsTotal.WithLabelValues(res.NewTier.String()).Inc()
	}
}
