package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "triggers_events_processed_total",
	Help: "Number of events dispatched, by event type",
}, []string{"type"})

var eventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "triggers_event_duration_seconds",
	Help:    "Time taken to dispatch one event",
	Buckets: prometheus.DefBuckets,
}, []string{"type"})

var rulesMatched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "triggers_rules_matched_total",
	Help: "Number of rules whose conditions held",
})

var ruleErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "triggers_rule_errors_total",
	Help: "Number of rules that failed while processing an event",
})

var cooldownSkips = promauto.NewCounter(prometheus.CounterOpts{
	Name: "triggers_cooldown_skips_total",
	Help: "Number of presets skipped because they were cooling down",
})
