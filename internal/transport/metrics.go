package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factcheck_status_polls_total",
		Help: "Status polls issued against the backend.",
	})
	pollFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factcheck_status_poll_failures_total",
		Help: "Status polls that failed and were swallowed as transient.",
	})
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factcheck_updates_delivered_total",
		Help: "Normalized updates delivered to the reconciler, by channel.",
	}, []string{"channel"})
	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factcheck_push_reconnects_total",
		Help: "Reconnection attempts on the push channel.",
	})
	reconnectExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factcheck_push_reconnect_exhausted_total",
		Help: "Times the push channel gave up reconnecting.",
	})
	terminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factcheck_terminal_transitions_total",
		Help: "Terminal transitions observed by the polling loop, by status.",
	}, []string{"status"})
)
