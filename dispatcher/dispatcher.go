// Package dispatcher runs a tenant's rules against incoming events.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/liamcoop/triggers/actions"
	"github.com/liamcoop/triggers/cooldown"
	"github.com/liamcoop/triggers/event"
	"github.com/liamcoop/triggers/observer"
	"github.com/liamcoop/triggers/rules"
)

// RuleSource loads the rules of a tenant.
type RuleSource interface {
	List(ctx context.Context, tenantID string) ([]*rules.Rule, error)
}

type ConditionEvaluator interface {
	Evaluate(conds []rules.Condition, c *event.Context, logic rules.ConditionLogic) bool
}

type PresetSelector interface {
	Select(presets []rules.Preset, mode rules.RunMode, randomCount int) []rules.Preset
}

type PresetExecutor interface {
	Execute(ctx context.Context, ruleID string, preset rules.Preset, c *event.Context) actions.Outcome
}

type Recorder interface {
	Record(evt observer.FiredEvent)
}

// Dispatcher processes one event at a time per call; calls may run
// concurrently.
type Dispatcher struct {
	Rules      RuleSource
	Conditions ConditionEvaluator
	Selector   PresetSelector
	Cooldowns  cooldown.Tracker
	Executor   PresetExecutor
	Observer   Recorder
	Logger     *slog.Logger
	Now        func() time.Time
}

// Report describes what one event did.
type Report struct {
	TenantID  string            `json:"tenantId"`
	EventType event.Type        `json:"eventType"`
	Evaluated int               `json:"evaluated"`
	Matched   []string          `json:"matched"`
	Outcomes  []actions.Outcome `json:"outcomes"`
	Errors    []string          `json:"errors,omitempty"`
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// Dispatch runs every enabled rule of the event's tenant that listens for
// the event's type, in ascending priority order. A failing rule is logged
// and skipped; it never stops the rules after it.
func (d *Dispatcher) Dispatch(ctx context.Context, evt event.Event) Report {
	start := time.Now()
	report := Report{
		TenantID:  evt.TenantID,
		EventType: evt.Type,
		Matched:   []string{},
		Outcomes:  []actions.Outcome{},
	}
	logger := d.logger().With("tenant", evt.TenantID, "event", evt.Type)
	defer func() {
		eventsProcessed.WithLabelValues(string(evt.Type)).Inc()
		eventDuration.WithLabelValues(string(evt.Type)).Observe(time.Since(start).Seconds())
	}()

	ectx, err := event.NewContext(evt, d.now())
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		logger.Warn("failed to build event context", "err", err)
		return report
	}

	all, err := d.Rules.List(ctx, evt.TenantID)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("failed to load rules: %v", err))
		logger.Error("failed to load rules", "err", err)
		return report
	}

	for _, rule := range candidates(all, evt.Type) {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err.Error())
			break
		}
		report.Evaluated++
		matched, outcomes, err := d.runRule(ctx, rule, ectx, logger)
		if err != nil {
			ruleErrors.Inc()
			report.Errors = append(report.Errors, fmt.Sprintf("rule %s: %v", rule.ID, err))
			logger.Error("rule processing failed", "rule", rule.ID, "err", err)
		}
		if matched {
			rulesMatched.Inc()
			report.Matched = append(report.Matched, rule.ID)
		}
		report.Outcomes = append(report.Outcomes, outcomes...)
	}
	return report
}

// candidates returns the enabled rules for t, sorted by priority, then age,
// then id.
func candidates(all []*rules.Rule, t event.Type) []*rules.Rule {
	out := make([]*rules.Rule, 0, len(all))
	for _, r := range all {
		if r != nil && r.Enabled && r.EventType == t {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (d *Dispatcher) runRule(ctx context.Context, rule *rules.Rule, ectx *event.Context, logger *slog.Logger) (matched bool, outcomes []actions.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !d.Conditions.Evaluate(rule.Conditions, ectx, rule.ConditionLogic) {
		return false, nil, nil
	}

	logger = logger.With("rule", rule.ID)
	selected := d.Selector.Select(rule.Presets, rule.RunMode, rule.RandomCount)
	logger.Debug("rule matched", "selected", len(selected))

	for _, preset := range selected {
		out, ok := d.gate(ctx, rule, preset, logger)
		if !ok {
			outcomes = append(outcomes, out)
			continue
		}
		out = d.Executor.Execute(ctx, rule.ID, preset, ectx)
		outcomes = append(outcomes, out)
		d.observe(rule, out, ectx)
	}
	return true, outcomes, nil
}

// gate applies the preset's cooldown. Tracker errors let the preset fire.
func (d *Dispatcher) gate(ctx context.Context, rule *rules.Rule, preset rules.Preset, logger *slog.Logger) (actions.Outcome, bool) {
	cd := cooldown.Seconds(preset.CooldownSeconds)
	if cd == 0 || d.Cooldowns == nil {
		return actions.Outcome{}, true
	}
	key := cooldown.Key{TenantID: rule.TenantID, RuleID: rule.ID, PresetID: preset.ID}
	allowed, err := d.Cooldowns.TryFire(ctx, key, cd)
	if err != nil {
		logger.Warn("cooldown check failed, firing anyway", "preset", preset.ID, "err", err)
		return actions.Outcome{}, true
	}
	if allowed {
		return actions.Outcome{}, true
	}
	cooldownSkips.Inc()
	logger.Debug("preset cooling down", "preset", preset.ID, "cooldown", cd)
	return actions.Outcome{
		RuleID:   rule.ID,
		PresetID: preset.ID,
		Type:     preset.Type,
		Skipped:  true,
		Summary:  "cooling down",
	}, false
}

func (d *Dispatcher) observe(rule *rules.Rule, out actions.Outcome, ectx *event.Context) {
	if d.Observer == nil {
		return
	}
	summary := out.Summary
	if summary == "" {
		summary = fmt.Sprintf("%s preset of rule %q", out.Type, rule.Name)
	}
	d.Observer.Record(observer.FiredEvent{
		RuleID:    rule.ID,
		PresetID:  out.PresetID,
		TenantID:  ectx.TenantID,
		EventType: string(ectx.EventType),
		Summary:   summary,
		Timestamp: observer.Timestamp(d.now()),
		Success:   out.Success,
		Error:     out.Error,
	})
}
