// Package event defines the platform events the trigger engine reacts to and
// the per-event execution context derived from them.
package event

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of platform event a rule listens for.
type Type string

const (
	MessageCreate     Type = "messageCreate"
	MessageUpdate     Type = "messageUpdate"
	MessageDelete     Type = "messageDelete"
	MemberJoin        Type = "memberJoin"
	MemberLeave       Type = "memberLeave"
	InteractionCreate Type = "interactionCreate"
	ReactionAdd       Type = "reactionAdd"
	VoiceStateUpdate  Type = "voiceStateUpdate"
	PresenceUpdate    Type = "presenceUpdate"
)

var knownTypes = map[Type]bool{
	MessageCreate:     true,
	MessageUpdate:     true,
	MessageDelete:     true,
	MemberJoin:        true,
	MemberLeave:       true,
	InteractionCreate: true,
	ReactionAdd:       true,
	VoiceStateUpdate:  true,
	PresenceUpdate:    true,
}

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	return knownTypes[t]
}

// Types returns every known event type.
func Types() []Type {
	return []Type{
		MessageCreate, MessageUpdate, MessageDelete,
		MemberJoin, MemberLeave,
		InteractionCreate, ReactionAdd,
		VoiceStateUpdate, PresenceUpdate,
	}
}

// Event is a single platform event delivered for one tenant.
type Event struct {
	Type     Type
	TenantID string
	Payload  any
}

// User is a platform account, optionally enriched with guild membership data.
type User struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Bot         bool     `json:"bot,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

type Channel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Topic string `json:"topic,omitempty"`
}

type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type Message struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	Author      User         `json:"author"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// Mentions holds the ids of mentioned users.
	Mentions []string `json:"mentions,omitempty"`
}

// MessagePayload covers messageCreate, messageUpdate and messageDelete.
// Previous is only set for updates when the old revision is known.
type MessagePayload struct {
	Guild    Guild    `json:"guild"`
	Channel  Channel  `json:"channel"`
	Message  Message  `json:"message"`
	Previous *Message `json:"previous,omitempty"`
}

// MemberPayload covers memberJoin and memberLeave.
type MemberPayload struct {
	Guild  Guild `json:"guild"`
	Member User  `json:"member"`
}

type ReactionPayload struct {
	Guild     Guild   `json:"guild"`
	Channel   Channel `json:"channel"`
	MessageID string  `json:"messageId"`
	User      User    `json:"user"`
	Emoji     string  `json:"emoji"`
}

// VoiceStatePayload describes a member joining, leaving or moving between
// voice channels. Channel is nil when the member left voice entirely.
type VoiceStatePayload struct {
	Guild    Guild    `json:"guild"`
	Member   User     `json:"member"`
	Channel  *Channel `json:"channel,omitempty"`
	Previous *Channel `json:"previous,omitempty"`
}

type PresencePayload struct {
	Guild  Guild  `json:"guild"`
	Member User   `json:"member"`
	Status string `json:"status"`
}

type InteractionPayload struct {
	Guild   Guild             `json:"guild"`
	Channel Channel           `json:"channel"`
	User    User              `json:"user"`
	Command string            `json:"command"`
	Options map[string]string `json:"options,omitempty"`
}

// Decode unmarshals a raw JSON payload into the typed payload for t.
func Decode(t Type, raw json.RawMessage) (any, error) {
	var payload any
	switch t {
	case MessageCreate, MessageUpdate, MessageDelete:
		payload = &MessagePayload{}
	case MemberJoin, MemberLeave:
		payload = &MemberPayload{}
	case ReactionAdd:
		payload = &ReactionPayload{}
	case VoiceStateUpdate:
		payload = &VoiceStatePayload{}
	case PresenceUpdate:
		payload = &PresencePayload{}
	case InteractionCreate:
		payload = &InteractionPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload for event type %s", t)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", t, err)
	}
	return payload, nil
}
