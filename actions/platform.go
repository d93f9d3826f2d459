// Package actions executes presets against the outbound platform and
// webhook channels.
package actions

import (
	"context"

	"github.com/liamcoop/triggers/rules"
)

// ArtifactKind says what a preset left behind on the platform.
type ArtifactKind string

const (
	ArtifactMessage  ArtifactKind = "message"
	ArtifactDirect   ArtifactKind = "direct"
	ArtifactReaction ArtifactKind = "reaction"
)

// Artifact references something a preset produced, so it can be removed
// later.
type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	ChannelID string       `json:"channelId,omitempty"`
	MessageID string       `json:"messageId,omitempty"`
	UserID    string       `json:"userId,omitempty"`
	Emoji     string       `json:"emoji,omitempty"`
}

// Platform is the outbound side of the chat platform.
type Platform interface {
	SendEmbed(ctx context.Context, channelID string, embed rules.Embed) (Artifact, error)
	SendText(ctx context.Context, channelID, text string) (Artifact, error)
	Reply(ctx context.Context, channelID, messageID, text string, suppressMention bool) (Artifact, error)
	SendDirect(ctx context.Context, userID, text string) (Artifact, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) (Artifact, error)
	DeleteArtifact(ctx context.Context, artifact Artifact) error
}
