package observer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var firedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "triggers_fired_events_total",
	Help: "Number of preset firings recorded, by result",
}, []string{"result"})

var sinkErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "triggers_observer_sink_errors_total",
	Help: "Number of failed deliveries to live sinks",
})

var bufferSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "triggers_observer_buffer_size",
	Help: "Number of firings held in the execution history",
})

var liveViewers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "triggers_live_viewers",
	Help: "Number of connected live stream viewers",
})
