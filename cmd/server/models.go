package main

import (
	"encoding/json"
	"time"

	"github.com/liamcoop/triggers/event"
	"github.com/liamcoop/triggers/observer"
	"github.com/liamcoop/triggers/rules"
)

// API request and response models

// PresetRequest is a preset as authored through the API. Enabled defaults
// to true when omitted.
type PresetRequest struct {
	rules.Preset
	Enabled *bool `json:"enabled,omitempty" example:"true"`
}

func (p PresetRequest) toPreset() rules.Preset {
	out := p.Preset
	out.Enabled = p.Enabled == nil || *p.Enabled
	return out
}

func toPresets(in []PresetRequest) []rules.Preset {
	out := make([]rules.Preset, len(in))
	for i, p := range in {
		out[i] = p.toPreset()
	}
	return out
}

// CreateRuleRequest represents the request body for creating a rule
type CreateRuleRequest struct {
	ID             string               `json:"id,omitempty"`
	Name           string               `json:"name" example:"ping responder" binding:"required"`
	Description    string               `json:"description,omitempty"`
	Enabled        *bool                `json:"enabled,omitempty" example:"true"`
	EventType      event.Type           `json:"eventType" example:"messageCreate" binding:"required"`
	Priority       int                  `json:"priority" example:"0"`
	Conditions     []rules.Condition    `json:"conditions"`
	Presets        []PresetRequest      `json:"presets"`
	ConditionLogic rules.ConditionLogic `json:"conditionLogic,omitempty" example:"AND"`
	RunMode        rules.RunMode        `json:"runMode,omitempty" example:"all"`
	RandomCount    int                  `json:"randomCount,omitempty" example:"1"`
}

func (req CreateRuleRequest) toRule(tenantID string) *rules.Rule {
	return &rules.Rule{
		ID:             req.ID,
		TenantID:       tenantID,
		Name:           req.Name,
		Description:    req.Description,
		Enabled:        req.Enabled == nil || *req.Enabled,
		EventType:      req.EventType,
		Priority:       req.Priority,
		Conditions:     req.Conditions,
		Presets:        toPresets(req.Presets),
		ConditionLogic: req.ConditionLogic,
		RunMode:        req.RunMode,
		RandomCount:    req.RandomCount,
	}
}

// UpdateRuleRequest represents the request body for patching a rule.
// Omitted fields are left unchanged.
type UpdateRuleRequest struct {
	Name           *string               `json:"name,omitempty"`
	Description    *string               `json:"description,omitempty"`
	Enabled        *bool                 `json:"enabled,omitempty"`
	EventType      *event.Type           `json:"eventType,omitempty"`
	Priority       *int                  `json:"priority,omitempty"`
	Conditions     *[]rules.Condition    `json:"conditions,omitempty"`
	Presets        *[]PresetRequest      `json:"presets,omitempty"`
	ConditionLogic *rules.ConditionLogic `json:"conditionLogic,omitempty"`
	RunMode        *rules.RunMode        `json:"runMode,omitempty"`
	RandomCount    *int                  `json:"randomCount,omitempty"`
}

func (req UpdateRuleRequest) toPatch() rules.RulePatch {
	patch := rules.RulePatch{
		Name:           req.Name,
		Description:    req.Description,
		Enabled:        req.Enabled,
		EventType:      req.EventType,
		Priority:       req.Priority,
		Conditions:     req.Conditions,
		ConditionLogic: req.ConditionLogic,
		RunMode:        req.RunMode,
		RandomCount:    req.RandomCount,
	}
	if req.Presets != nil {
		presets := toPresets(*req.Presets)
		patch.Presets = &presets
	}
	return patch
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// EventRequest is one platform event delivered for a tenant
type EventRequest struct {
	Type    event.Type      `json:"type" example:"messageCreate" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// ExecutionsResponse lists the most recent firings, oldest first
type ExecutionsResponse struct {
	Executions []observer.FiredEvent `json:"executions"`
}

// PlaceholdersResponse lists the template placeholders available to presets
type PlaceholdersResponse struct {
	Placeholders []string `json:"placeholders"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid rule: name is required"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string    `json:"status" example:"healthy"`
	Error       string    `json:"error,omitempty"`
	LiveViewers int       `json:"liveViewers"`
	Time        time.Time `json:"time"`
}
