// Package actionstest provides an in-memory actions.Platform for tests.
package actionstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/liamcoop/triggers/actions"
	"github.com/liamcoop/triggers/rules"
)

// Call is one recorded platform call.
type Call struct {
	Method          string
	ChannelID       string
	MessageID       string
	UserID          string
	Text            string
	Emoji           string
	Embed           *rules.Embed
	SuppressMention bool
	Artifact        actions.Artifact
}

// Recorder records every call and hands out sequential message ids. Set Err
// to make every call fail.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	deleted []actions.Artifact
	seq     int
	Err     error
}

func (r *Recorder) record(c Call) (actions.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return actions.Artifact{}, r.Err
	}
	r.calls = append(r.calls, c)
	return c.Artifact, nil
}

func (r *Recorder) nextID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("sent-%d", r.seq)
}

func (r *Recorder) SendEmbed(_ context.Context, channelID string, embed rules.Embed) (actions.Artifact, error) {
	id := r.nextID()
	return r.record(Call{
		Method: "SendEmbed", ChannelID: channelID, Embed: &embed,
		Artifact: actions.Artifact{Kind: actions.ArtifactMessage, ChannelID: channelID, MessageID: id},
	})
}

func (r *Recorder) SendText(_ context.Context, channelID, text string) (actions.Artifact, error) {
	id := r.nextID()
	return r.record(Call{
		Method: "SendText", ChannelID: channelID, Text: text,
		Artifact: actions.Artifact{Kind: actions.ArtifactMessage, ChannelID: channelID, MessageID: id},
	})
}

func (r *Recorder) Reply(_ context.Context, channelID, messageID, text string, suppressMention bool) (actions.Artifact, error) {
	id := r.nextID()
	return r.record(Call{
		Method: "Reply", ChannelID: channelID, MessageID: messageID, Text: text, SuppressMention: suppressMention,
		Artifact: actions.Artifact{Kind: actions.ArtifactMessage, ChannelID: channelID, MessageID: id},
	})
}

func (r *Recorder) SendDirect(_ context.Context, userID, text string) (actions.Artifact, error) {
	id := r.nextID()
	return r.record(Call{
		Method: "SendDirect", UserID: userID, Text: text,
		Artifact: actions.Artifact{Kind: actions.ArtifactDirect, ChannelID: "dm-" + userID, MessageID: id, UserID: userID},
	})
}

func (r *Recorder) AddReaction(_ context.Context, channelID, messageID, emoji string) (actions.Artifact, error) {
	return r.record(Call{
		Method: "AddReaction", ChannelID: channelID, MessageID: messageID, Emoji: emoji,
		Artifact: actions.Artifact{Kind: actions.ArtifactReaction, ChannelID: channelID, MessageID: messageID, Emoji: emoji},
	})
}

func (r *Recorder) DeleteArtifact(_ context.Context, a actions.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.deleted = append(r.deleted, a)
	return nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Deleted returns the artifacts passed to DeleteArtifact.
func (r *Recorder) Deleted() []actions.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]actions.Artifact(nil), r.deleted...)
}
