package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liamcoop/triggers/event"
	"github.com/liamcoop/triggers/rules"
)

// DefaultTimeout bounds a single preset execution when none is configured.
const DefaultTimeout = 10 * time.Second

// Request is one preset execution.
type Request struct {
	RuleID  string
	Preset  rules.Preset
	Context *event.Context
}

// Result is what a handler reports on success.
type Result struct {
	Artifact *Artifact
	Summary  string
}

// Handler performs one preset type.
type Handler func(ctx context.Context, x *Executor, req Request) (Result, error)

// Outcome is the result of executing one preset.
type Outcome struct {
	RuleID   string           `json:"ruleId"`
	PresetID string           `json:"presetId"`
	Type     rules.PresetType `json:"type"`
	Success  bool             `json:"success"`
	Skipped  bool             `json:"skipped,omitempty"`
	Error    string           `json:"error,omitempty"`
	Summary  string           `json:"summary,omitempty"`
	Artifact *Artifact        `json:"artifact,omitempty"`
}

// Executor routes presets to their handlers.
type Executor struct {
	Platform Platform
	Webhooks HTTPCaller
	Cleanup  *Scheduler
	Logger   *slog.Logger
	// Timeout bounds each execution; zero means DefaultTimeout.
	Timeout time.Duration

	mu       sync.RWMutex
	handlers map[rules.PresetType]Handler
}

// NewExecutor creates an executor with every built-in preset type
// registered.
func NewExecutor(platform Platform, webhooks HTTPCaller, cleanup *Scheduler, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Executor{
		Platform: platform,
		Webhooks: webhooks,
		Cleanup:  cleanup,
		Logger:   logger,
		Timeout:  DefaultTimeout,
		handlers: make(map[rules.PresetType]Handler),
	}
	x.Register(rules.PresetEmbed, handleEmbed)
	x.Register(rules.PresetText, handleText)
	x.Register(rules.PresetReply, handleReply)
	x.Register(rules.PresetWebhook, handleWebhook)
	x.Register(rules.PresetDM, handleDirect)
	x.Register(rules.PresetReaction, handleReaction)
	return x
}

// Register installs h for t, replacing any existing handler.
func (x *Executor) Register(t rules.PresetType, h Handler) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.handlers[t] = h
}

func (x *Executor) handler(t rules.PresetType) (Handler, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	h, ok := x.handlers[t]
	return h, ok
}

// Execute runs one preset. It never panics and never returns an error; all
// failures are reported in the Outcome.
func (x *Executor) Execute(ctx context.Context, ruleID string, preset rules.Preset, c *event.Context) (out Outcome) {
	out = Outcome{RuleID: ruleID, PresetID: preset.ID, Type: preset.Type}
	if c == nil {
		c = &event.Context{}
	}
	logger := x.Logger.With("tenant", c.TenantID, "rule", ruleID, "preset", preset.ID, "type", preset.Type)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Error = fmt.Sprintf("handler panicked: %v", r)
			logger.Error("preset handler panicked", "panic", r)
		}
		result := "ok"
		if !out.Success {
			result = "failed"
		}
		actionExecCount.WithLabelValues(string(preset.Type), result).Inc()
		actionExecDuration.WithLabelValues(string(preset.Type)).Observe(time.Since(start).Seconds())
	}()

	h, ok := x.handler(preset.Type)
	if !ok {
		out.Error = fmt.Sprintf("unsupported preset type %q", preset.Type)
		logger.Warn("preset execution failed", "err", out.Error)
		return out
	}

	timeout := x.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := h(ctx, x, Request{RuleID: ruleID, Preset: preset, Context: c})
	if err != nil {
		out.Error = err.Error()
		logger.Warn("preset execution failed", "err", err)
		return out
	}

	out.Success = true
	out.Summary = res.Summary
	out.Artifact = res.Artifact
	if res.Artifact != nil && preset.RemoveAfterSeconds > 0 {
		x.scheduleCleanup(*res.Artifact, preset, logger)
	}
	return out
}

func (x *Executor) scheduleCleanup(a Artifact, preset rules.Preset, logger *slog.Logger) {
	if x.Cleanup == nil || x.Platform == nil {
		return
	}
	delay := time.Duration(preset.RemoveAfterSeconds) * time.Second
	name := fmt.Sprintf("%s %s/%s", a.Kind, a.ChannelID, a.MessageID)
	if !x.Cleanup.Schedule(delay, name, func(ctx context.Context) error {
		return x.Platform.DeleteArtifact(ctx, a)
	}) {
		logger.Debug("cleanup not scheduled, scheduler closed")
	}
}
