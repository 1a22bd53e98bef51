package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_dispatches_total",
		Help: "Total number of dispatch attempts by resolution status.",
	}, []string{"status"})

	GatewaySendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notifier_gateway_send_latency_seconds",
		Help:    "Latency of gateway send calls, including endpoint probing.",
		Buckets: prometheus.DefBuckets,
	})

	RunGuardSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_run_guard_skips_total",
		Help: "Candidates skipped because they were already notified for the same day and kind.",
	})

	BatchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_batch_runs_total",
		Help: "Completed batch runs by mode.",
	}, []string{"mode"})
)
