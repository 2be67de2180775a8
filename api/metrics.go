package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counters for the handful of operations worth watching in
// production. Exposed on /metrics by the router.
var (
	breakdownsComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_breakdowns_computed_total",
		Help: "Number of job breakdowns served (live or snapshot).",
	})

	paymentSyncRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_payment_sync_runs_total",
		Help: "Number of automatic payment reconciliation runs.",
	})

	finalizations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_job_finalizations_total",
		Help: "Number of jobs finalized into snapshots.",
	})
)
