package rules

import (
	"time"

	"github.com/liamcoop/triggers/event"
)

const (
	// MaxRulesPerTenant is the number of rules a single tenant may hold.
	MaxRulesPerTenant = 20
	// MaxPresetsPerRule is the number of presets a single rule may hold.
	MaxPresetsPerRule = 5
	// DefaultGroup is the condition group used when GroupID is unset.
	DefaultGroup = "default"
)

// ConditionLogic governs how condition groups combine.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)

// RunMode selects which of a rule's presets fire on a match.
type RunMode string

const (
	RunAll          RunMode = "all"
	RunRandom       RunMode = "random"
	RunSingle       RunMode = "single"
	RunPinnedRandom RunMode = "pinned-random"
)

// ConditionType selects the context field a condition inspects.
type ConditionType string

const (
	ConditionMessageContent ConditionType = "messageContent"
	ConditionAuthorID       ConditionType = "authorId"
	ConditionAuthorRole     ConditionType = "authorRole"
	ConditionChannelID      ConditionType = "channelId"
	ConditionHasAttachment  ConditionType = "hasAttachment"
	ConditionMentionsUser   ConditionType = "mentionsUser"
	ConditionPattern        ConditionType = "pattern"
	ConditionPresenceStatus ConditionType = "presenceStatus"
	ConditionVoiceChannel   ConditionType = "voiceChannel"
	ConditionCustom         ConditionType = "custom"
)

// MatchType is the comparison applied between a field and Condition.Value.
type MatchType string

const (
	MatchExactly     MatchType = "exactly"
	MatchContains    MatchType = "contains"
	MatchStartsWith  MatchType = "startsWith"
	MatchEndsWith    MatchType = "endsWith"
	MatchRegex       MatchType = "regex"
	MatchGreaterThan MatchType = "greaterThan"
	MatchLessThan    MatchType = "lessThan"
)

// PresetType selects the action handler for a preset.
type PresetType string

const (
	PresetEmbed    PresetType = "embed"
	PresetText     PresetType = "text"
	PresetReply    PresetType = "reply"
	PresetWebhook  PresetType = "webhook"
	PresetDM       PresetType = "dm"
	PresetReaction PresetType = "reaction"
)

// Rule (a "trigger") binds an event type to conditions and presets.
type Rule struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenantId"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Enabled        bool           `json:"enabled"`
	EventType      event.Type     `json:"eventType"`
	Priority       int            `json:"priority"`
	Conditions     []Condition    `json:"conditions"`
	Presets        []Preset       `json:"presets"`
	ConditionLogic ConditionLogic `json:"conditionLogic"`
	RunMode        RunMode        `json:"runMode"`
	RandomCount    int            `json:"randomCount,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Condition is one predicate evaluated against the execution context.
type Condition struct {
	Type    ConditionType `json:"type"`
	Match   MatchType     `json:"matchType"`
	Value   string        `json:"value"`
	Negate  bool          `json:"negate,omitempty"`
	GroupID string        `json:"groupId,omitempty"`
}

// Group returns the condition's group key.
func (c Condition) Group() string {
	if c.GroupID == "" {
		return DefaultGroup
	}
	return c.GroupID
}

// Preset is one configured response action of a rule.
type Preset struct {
	ID       string     `json:"id"`
	Enabled  bool       `json:"enabled"`
	IsPinned bool       `json:"isPinned,omitempty"`
	Type     PresetType `json:"type"`

	// ChannelID overrides the channel of the triggering event.
	ChannelID string `json:"channelId,omitempty"`
	// Template is the message text for text, reply and dm presets.
	Template string         `json:"template,omitempty"`
	Embed    *Embed         `json:"embed,omitempty"`
	Webhook  *WebhookConfig `json:"webhook,omitempty"`
	// TargetUserID overrides the recipient of a dm preset.
	TargetUserID string `json:"targetUserId,omitempty"`
	Emoji        string `json:"emoji,omitempty"`

	CooldownSeconds    int  `json:"cooldownSeconds,omitempty"`
	RemoveAfterSeconds int  `json:"removeAfterSeconds,omitempty"`
	ReplyWithMention   bool `json:"replyWithMention,omitempty"`
}

type Embed struct {
	Title        string       `json:"title,omitempty"`
	Description  string       `json:"description,omitempty"`
	URL          string       `json:"url,omitempty"`
	Color        int          `json:"color,omitempty"`
	Footer       string       `json:"footer,omitempty"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	ThumbnailURL string       `json:"thumbnailUrl,omitempty"`
	Fields       []EmbedField `json:"fields,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// Body is a JSON document whose string values are templates.
	Body string `json:"body,omitempty"`
}

// RulePatch carries a partial update. Nil fields are left untouched.
type RulePatch struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	Enabled        *bool           `json:"enabled,omitempty"`
	EventType      *event.Type     `json:"eventType,omitempty"`
	Priority       *int            `json:"priority,omitempty"`
	Conditions     *[]Condition    `json:"conditions,omitempty"`
	Presets        *[]Preset       `json:"presets,omitempty"`
	ConditionLogic *ConditionLogic `json:"conditionLogic,omitempty"`
	RunMode        *RunMode        `json:"runMode,omitempty"`
	RandomCount    *int            `json:"randomCount,omitempty"`
}

// Apply writes the non-nil fields of p onto r.
func (p RulePatch) Apply(r *Rule) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.EventType != nil {
		r.EventType = *p.EventType
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Conditions != nil {
		r.Conditions = cloneConditions(*p.Conditions)
	}
	if p.Presets != nil {
		r.Presets = clonePresets(*p.Presets)
	}
	if p.ConditionLogic != nil {
		r.ConditionLogic = *p.ConditionLogic
	}
	if p.RunMode != nil {
		r.RunMode = *p.RunMode
	}
	if p.RandomCount != nil {
		r.RandomCount = *p.RandomCount
	}
}

// Clone returns a deep copy of r.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	c := *r
	c.Conditions = cloneConditions(r.Conditions)
	c.Presets = clonePresets(r.Presets)
	return &c
}

func cloneConditions(in []Condition) []Condition {
	if in == nil {
		return nil
	}
	out := make([]Condition, len(in))
	copy(out, in)
	return out
}

func clonePresets(in []Preset) []Preset {
	if in == nil {
		return nil
	}
	out := make([]Preset, len(in))
	for i, p := range in {
		out[i] = p
		if p.Embed != nil {
			e := *p.Embed
			if p.Embed.Fields != nil {
				e.Fields = make([]EmbedField, len(p.Embed.Fields))
				copy(e.Fields, p.Embed.Fields)
			}
			out[i].Embed = &e
		}
		if p.Webhook != nil {
			w := *p.Webhook
			if p.Webhook.Headers != nil {
				w.Headers = make(map[string]string, len(p.Webhook.Headers))
				for k, v := range p.Webhook.Headers {
					w.Headers[k] = v
				}
			}
			out[i].Webhook = &w
		}
	}
	return out
}

func cloneRules(in []*Rule) []*Rule {
	out := make([]*Rule, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
