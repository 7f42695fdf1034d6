package services

import (
	"v4corner/internal/apperr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationsTotal counts engagement mutations.
	// Labels: operation (comment_create, like, favorite, ...), result (ok or an error code)
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement",
		Name:      "mutations_total",
		Help:      "Engagement mutations by operation and result",
	}, []string{"operation", "result"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement",
		Name:      "notifications_total",
		Help:      "Notifications written by type",
	}, []string{"type"})

	// cascadeSize observes how many comments a single delete transitions.
	cascadeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "engagement",
		Name:      "comment_cascade_size",
		Help:      "Comments soft-deleted per delete request",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	reconcileCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement",
		Name:      "reconcile_corrections_total",
		Help:      "Counter values corrected by reconciliation",
	}, []string{"counter"})
)

func observeMutation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = apperr.CodeOf(err)
	}
	mutationsTotal.WithLabelValues(operation, result).Inc()
}
