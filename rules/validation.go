package rules

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/liamcoop/triggers/event"
)

var (
	ErrRuleLimitExceeded   = errors.New("tenant rule limit exceeded")
	ErrPresetLimitExceeded = errors.New("rule preset limit exceeded")
	ErrInvalidRule         = errors.New("invalid rule")
)

// MaxPatternLength bounds regex condition values.
const MaxPatternLength = 512

var conditionTypes = map[ConditionType]bool{
	ConditionMessageContent: true,
	ConditionAuthorID:       true,
	ConditionAuthorRole:     true,
	ConditionChannelID:      true,
	ConditionHasAttachment:  true,
	ConditionMentionsUser:   true,
	ConditionPattern:        true,
	ConditionPresenceStatus: true,
	ConditionVoiceChannel:   true,
	ConditionCustom:         true,
}

var matchTypes = map[MatchType]bool{
	MatchExactly:     true,
	MatchContains:    true,
	MatchStartsWith:  true,
	MatchEndsWith:    true,
	MatchRegex:       true,
	MatchGreaterThan: true,
	MatchLessThan:    true,
}

var presetTypes = map[PresetType]bool{
	PresetEmbed:    true,
	PresetText:     true,
	PresetReply:    true,
	PresetWebhook:  true,
	PresetDM:       true,
	PresetReaction: true,
}

// Valid reports whether t is a known condition type.
func (t ConditionType) Valid() bool { return conditionTypes[t] }

// Valid reports whether m is a known match type.
func (m MatchType) Valid() bool { return matchTypes[m] }

// Valid reports whether t is a known preset type.
func (t PresetType) Valid() bool { return presetTypes[t] }

// ValidateRule checks a rule definition before it is persisted.
// Preset count violations wrap ErrPresetLimitExceeded, every other problem
// wraps ErrInvalidRule.
func ValidateRule(r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: rule is nil", ErrInvalidRule)
	}
	if r.TenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if len(r.Name) > 100 {
		return fmt.Errorf("%w: name length %d exceeds maximum of 100 characters", ErrInvalidRule, len(r.Name))
	}
	if !r.EventType.Valid() {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidRule, r.EventType)
	}
	if len(r.Presets) > MaxPresetsPerRule {
		return fmt.Errorf("%w: rule has %d presets, maximum allowed is %d", ErrPresetLimitExceeded, len(r.Presets), MaxPresetsPerRule)
	}

	switch r.ConditionLogic {
	case "", LogicAnd, LogicOr:
	default:
		return fmt.Errorf("%w: unknown condition logic %q", ErrInvalidRule, r.ConditionLogic)
	}
	switch r.RunMode {
	case "", RunAll, RunRandom, RunSingle, RunPinnedRandom:
	default:
		return fmt.Errorf("%w: unknown run mode %q", ErrInvalidRule, r.RunMode)
	}
	if r.RandomCount < 0 {
		return fmt.Errorf("%w: randomCount cannot be negative", ErrInvalidRule)
	}

	for i, c := range r.Conditions {
		if err := validateCondition(c); err != nil {
			return fmt.Errorf("%w: condition %d: %v", ErrInvalidRule, i, err)
		}
	}

	seen := make(map[string]bool, len(r.Presets))
	for i, p := range r.Presets {
		if p.ID != "" {
			if seen[p.ID] {
				return fmt.Errorf("%w: duplicate preset id %q", ErrInvalidRule, p.ID)
			}
			seen[p.ID] = true
		}
		if err := validatePreset(p); err != nil {
			return fmt.Errorf("%w: preset %d: %v", ErrInvalidRule, i, err)
		}
	}
	return nil
}

func validateCondition(c Condition) error {
	if !c.Type.Valid() {
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	if c.Match != "" && !c.Match.Valid() {
		return fmt.Errorf("unknown match type %q", c.Match)
	}

	switch {
	case c.Type == ConditionCustom:
		return checkExpression(c.Value)
	case c.Match == MatchRegex || (c.Type == ConditionPattern && c.Match == ""):
		if len(c.Value) > MaxPatternLength {
			return fmt.Errorf("regex pattern too long (max %d bytes): %d bytes", MaxPatternLength, len(c.Value))
		}
		if _, err := regexp.Compile(c.Value); err != nil {
			return fmt.Errorf("invalid regex pattern %q: %v", c.Value, err)
		}
	}
	return nil
}

func checkExpression(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("custom condition requires an expression")
	}
	env, err := event.NewCELEnv()
	if err != nil {
		return err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %v", issues.Err())
	}
	if out := ast.OutputType(); out.String() != "bool" && out.String() != "dyn" {
		return fmt.Errorf("custom condition must evaluate to bool, got %s", out)
	}
	return nil
}

func validatePreset(p Preset) error {
	if !p.Type.Valid() {
		return fmt.Errorf("unknown preset type %q", p.Type)
	}
	if p.CooldownSeconds < 0 {
		return fmt.Errorf("cooldownSeconds cannot be negative")
	}
	if p.RemoveAfterSeconds < 0 {
		return fmt.Errorf("removeAfterSeconds cannot be negative")
	}

	switch p.Type {
	case PresetText, PresetReply, PresetDM:
		if strings.TrimSpace(p.Template) == "" {
			return fmt.Errorf("%s preset requires a template", p.Type)
		}
	case PresetEmbed:
		if p.Embed == nil {
			return fmt.Errorf("embed preset requires an embed")
		}
		if p.Embed.Title == "" && p.Embed.Description == "" && len(p.Embed.Fields) == 0 {
			return fmt.Errorf("embed preset requires a title, description or fields")
		}
	case PresetReaction:
		if strings.TrimSpace(p.Emoji) == "" {
			return fmt.Errorf("reaction preset requires an emoji")
		}
	case PresetWebhook:
		if p.Webhook == nil {
			return fmt.Errorf("webhook preset requires webhook configuration")
		}
		u, err := url.Parse(p.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook url %q must be an absolute http(s) url", p.Webhook.URL)
		}
	}
	return nil
}
