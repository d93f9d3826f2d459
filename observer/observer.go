// Package observer records preset firings in a bounded in-memory history and
// forwards them to live sinks.
package observer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventFired is the name firings are emitted under.
const EventFired = "trigger:fired"

// DefaultCapacity is the history size used when none is configured.
const DefaultCapacity = 100

// FiredEvent is one preset execution attempt.
type FiredEvent struct {
	RuleID    string `json:"ruleId"`
	PresetID  string `json:"presetId"`
	TenantID  string `json:"tenantId"`
	EventType string `json:"eventType"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Timestamp formats t the way FiredEvent carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Sink receives firings as they are recorded.
type Sink interface {
	Emit(name string, evt FiredEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(name string, evt FiredEvent) error

func (f SinkFunc) Emit(name string, evt FiredEvent) error {
	return f(name, evt)
}

// Observer keeps the most recent firings and fans each new one out to its
// sinks. Sink failures are logged and otherwise ignored.
type Observer struct {
	Logger *slog.Logger

	mu     sync.Mutex
	buffer *ring[FiredEvent]

	sinkMu sync.RWMutex
	sinks  []Sink
}

// New creates an observer holding at most capacity firings.
func New(capacity int, sinks ...Sink) *Observer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Observer{
		Logger: slog.Default(),
		buffer: newRing[FiredEvent](capacity),
		sinks:  sinks,
	}
}

// Subscribe adds a sink for subsequent firings.
func (o *Observer) Subscribe(s Sink) {
	o.sinkMu.Lock()
	defer o.sinkMu.Unlock()
	o.sinks = append(o.sinks, s)
}

// Record appends evt to the history and emits it to every sink.
func (o *Observer) Record(evt FiredEvent) {
	o.mu.Lock()
	o.buffer.push(evt)
	size := o.buffer.len()
	o.mu.Unlock()

	result := "success"
	if !evt.Success {
		result = "failure"
	}
	firedEvents.WithLabelValues(result).Inc()
	bufferSize.Set(float64(size))

	o.sinkMu.RLock()
	sinks := o.sinks
	o.sinkMu.RUnlock()
	for _, s := range sinks {
		o.emit(s, evt)
	}
}

func (o *Observer) emit(s Sink, evt FiredEvent) {
	defer func() {
		if r := recover(); r != nil {
			sinkErrors.Inc()
			o.Logger.Error("observer sink panicked", "rule", evt.RuleID, "preset", evt.PresetID, "panic", r)
		}
	}()
	if err := s.Emit(EventFired, evt); err != nil {
		sinkErrors.Inc()
		o.Logger.Error("observer sink failed", "rule", evt.RuleID, "preset", evt.PresetID, "err", err)
	}
}

// Buffer returns the recorded firings, oldest first.
func (o *Observer) Buffer() []FiredEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffer.snapshot()
}

// Clear drops the recorded history.
func (o *Observer) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffer.clear()
	bufferSize.Set(0)
}

func (e FiredEvent) String() string {
	status := "ok"
	if !e.Success {
		status = "failed: " + e.Error
	}
	return fmt.Sprintf("%s rule=%s preset=%s %s", e.Timestamp, e.RuleID, e.PresetID, status)
}
