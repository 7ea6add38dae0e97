package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileSessionsTotal,
		reconcilePollsTotal,
		reconcilePollDuration,
	)
}

var (
	// Finished reconciliation sessions by terminal outcome.
	// outcome: succeeded|canceled|timed_out|error_exhausted|aborted
	reconcileSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconcile_sessions_total",
			Help: "Finished payment reconciliation sessions by outcome.",
		},
		[]string{"outcome"},
	)

	// Individual status checks by result.
	// result: ok|error
	reconcilePollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconcile_polls_total",
			Help: "Payment status checks issued by reconciliation sessions.",
		},
		[]string{"result"},
	)

	reconcilePollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_reconcile_poll_duration_seconds",
			Help:    "Duration of a single payment status check in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

func IncReconcileSession(outcome string) {
	reconcileSessionsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncReconcilePoll(result string) {
	reconcilePollsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveReconcilePoll(seconds float64) {
	reconcilePollDuration.Observe(seconds)
}
