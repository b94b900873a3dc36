package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "evault"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "document_operations_total", Help: "Document lifecycle operations by outcome."},
		[]string{"operation", "outcome"},
	)
	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "verifications_total", Help: "Integrity verifications by result."},
		[]string{"result"},
	)
	OrphanedBlobs = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "orphaned_blobs_total", Help: "Blobs left behind after a failed cleanup."},
	)
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Verification code dispatches by outcome."},
		[]string{"outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentOperations)
	reg.MustRegister(Verifications)
	reg.MustRegister(OrphanedBlobs)
	reg.MustRegister(NotificationsSent)
}

// Outcome classifies an operation error for the operations counter.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
