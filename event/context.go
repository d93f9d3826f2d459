package event

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Context is the execution context built fresh for every event. Conditions
// read fields from it and templates substitute values out of it. Sections that
// do not apply to the event type are left as zero values.
type Context struct {
	TenantID  string
	EventType Type

	// User is the member the event is about: the message author, the joining
	// member, the reacting user, and so on.
	User User
	// Author is the author of the message the event refers to, when known.
	Author User

	Guild       Guild
	Channel     Channel
	Message     Message
	Attachments []Attachment
	Mentions    []string
	Voice       Channel
	Presence    string
	Now         time.Time
}

// NewContext derives the execution context for evt.
func NewContext(evt Event, now time.Time) (*Context, error) {
	c := &Context{
		TenantID:  evt.TenantID,
		EventType: evt.Type,
		Now:       now,
	}

	switch p := evt.Payload.(type) {
	case *MessagePayload:
		c.fromMessage(p)
	case MessagePayload:
		c.fromMessage(&p)
	case *MemberPayload:
		c.fromMember(p)
	case MemberPayload:
		c.fromMember(&p)
	case *ReactionPayload:
		c.fromReaction(p)
	case ReactionPayload:
		c.fromReaction(&p)
	case *VoiceStatePayload:
		c.fromVoice(p)
	case VoiceStatePayload:
		c.fromVoice(&p)
	case *PresencePayload:
		c.fromPresence(p)
	case PresencePayload:
		c.fromPresence(&p)
	case *InteractionPayload:
		c.fromInteraction(p)
	case InteractionPayload:
		c.fromInteraction(&p)
	case nil:
		return nil, fmt.Errorf("event %s has no payload", evt.Type)
	default:
		return nil, fmt.Errorf("unsupported payload %T for event %s", evt.Payload, evt.Type)
	}
	return c, nil
}

func (c *Context) fromMessage(p *MessagePayload) {
	c.Guild = p.Guild
	c.Channel = p.Channel
	c.Message = p.Message
	c.Author = p.Message.Author
	c.User = p.Message.Author
	c.Attachments = p.Message.Attachments
	c.Mentions = p.Message.Mentions
}

func (c *Context) fromMember(p *MemberPayload) {
	c.Guild = p.Guild
	c.User = p.Member
	c.Author = p.Member
}

func (c *Context) fromReaction(p *ReactionPayload) {
	c.Guild = p.Guild
	c.Channel = p.Channel
	c.User = p.User
	c.Message = Message{ID: p.MessageID}
}

func (c *Context) fromVoice(p *VoiceStatePayload) {
	c.Guild = p.Guild
	c.User = p.Member
	c.Author = p.Member
	if p.Channel != nil {
		c.Voice = *p.Channel
	}
}

func (c *Context) fromPresence(p *PresencePayload) {
	c.Guild = p.Guild
	c.User = p.Member
	c.Author = p.Member
	c.Presence = p.Status
}

func (c *Context) fromInteraction(p *InteractionPayload) {
	c.Guild = p.Guild
	c.Channel = p.Channel
	c.User = p.User
	c.Author = p.User
	c.Message = Message{Content: p.Command}
}

// WordCount counts whitespace separated words in the message content.
func (c *Context) WordCount() int {
	n := 0
	inWord := false
	for _, r := range c.Message.Content {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			inWord = false
		default:
			if !inWord {
				n++
				inWord = true
			}
		}
	}
	return n
}

// ContentLength is the message content length in characters.
func (c *Context) ContentLength() int {
	return utf8.RuneCountInString(c.Message.Content)
}

// Vars exposes the context as plain values for expression evaluation.
func (c *Context) Vars() map[string]any {
	attachments := make([]any, 0, len(c.Attachments))
	for _, a := range c.Attachments {
		attachments = append(attachments, map[string]any{
			"id":       a.ID,
			"filename": a.Filename,
			"url":      a.URL,
		})
	}
	mentions := make([]string, len(c.Mentions))
	copy(mentions, c.Mentions)

	return map[string]any{
		"eventType": string(c.EventType),
		"user":      userVars(c.User),
		"author":    userVars(c.Author),
		"guild": map[string]any{
			"id":          c.Guild.ID,
			"name":        c.Guild.Name,
			"memberCount": int64(c.Guild.MemberCount),
		},
		"channel": map[string]any{
			"id":    c.Channel.ID,
			"name":  c.Channel.Name,
			"topic": c.Channel.Topic,
		},
		"message": map[string]any{
			"id":        c.Message.ID,
			"content":   c.Message.Content,
			"length":    int64(c.ContentLength()),
			"wordCount": int64(c.WordCount()),
		},
		"attachments": attachments,
		"mentions":    mentions,
		"voice": map[string]any{
			"id":   c.Voice.ID,
			"name": c.Voice.Name,
		},
		"presence": c.Presence,
		"now":      c.Now,
	}
}

func userVars(u User) map[string]any {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return map[string]any{
		"id":          u.ID,
		"name":        u.Name,
		"displayName": u.DisplayName,
		"bot":         u.Bot,
		"roles":       roles,
	}
}
