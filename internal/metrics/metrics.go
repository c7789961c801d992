package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khatma_dispatch_runs_total",
		Help: "Number of reminder dispatch runs.",
	})

	PushesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khatma_pushes_sent_total",
		Help: "Push notifications accepted by a push service.",
	})

	PushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khatma_push_errors_total",
		Help: "Push delivery attempts that failed.",
	})

	StaleSubscriptionsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khatma_stale_subscriptions_removed_total",
		Help: "Subscriptions deleted after the push service reported them gone.",
	})
)
