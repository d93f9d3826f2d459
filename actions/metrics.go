package actions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionExecCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "triggers_action_executions_total",
	Help: "Number of preset executions, by preset type and result",
}, []string{"type", "result"})

var actionExecDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "triggers_action_duration_seconds",
	Help:    "Duration of preset executions",
	Buckets: prometheus.DefBuckets,
}, []string{"type"})

var cleanupScheduled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "triggers_cleanup_scheduled_total",
	Help: "Number of artifact cleanups scheduled",
})

var cleanupResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "triggers_cleanup_results_total",
	Help: "Number of artifact cleanups run, by result",
}, []string{"result"})
