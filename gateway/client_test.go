package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/triggers/actions"
	"github.com/liamcoop/triggers/rules"
)

type fakeGateway struct {
	srv      *httptest.Server
	messages []createMessage
	channels []string
	deleted  []string
	reacted  []string
	auth     string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{}
	r := chi.NewRouter()
	r.Post("/channels/{channelID}/messages", func(w http.ResponseWriter, r *http.Request) {
		g.auth = r.Header.Get("Authorization")
		var msg createMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		g.messages = append(g.messages, msg)
		g.channels = append(g.channels, chi.URLParam(r, "channelID"))
		_ = json.NewEncoder(w).Encode(createdObject{ID: "msg-1", ChannelID: chi.URLParam(r, "channelID")})
	})
	r.Post("/users/@me/channels", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(createdObject{ID: "dm-chan"})
	})
	r.Put("/channels/{channelID}/messages/{messageID}/reactions/{emoji}/@me", func(w http.ResponseWriter, r *http.Request) {
		g.reacted = append(g.reacted, chi.URLParam(r, "emoji"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/channels/{channelID}/messages/{messageID}", func(w http.ResponseWriter, r *http.Request) {
		g.deleted = append(g.deleted, chi.URLParam(r, "messageID"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/channels/missing/messages", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Unknown Channel"}`, http.StatusNotFound)
	})
	g.srv = httptest.NewServer(r)
	t.Cleanup(g.srv.Close)
	return g
}

func TestClientSendText(t *testing.T) {
	g := newFakeGateway(t)
	c := NewClient(g.srv.URL, "secret", time.Second, nil)

	a, err := c.SendText(context.Background(), "c1", "hello")

	require.NoError(t, err)
	assert.Equal(t, actions.Artifact{Kind: actions.ArtifactMessage, ChannelID: "c1", MessageID: "msg-1"}, a)
	assert.Equal(t, "Bot secret", g.auth)
	require.Len(t, g.messages, 1)
	assert.Equal(t, "hello", g.messages[0].Content)
}

func TestClientReplySuppressesMention(t *testing.T) {
	g := newFakeGateway(t)
	c := NewClient(g.srv.URL, "", time.Second, nil)

	_, err := c.Reply(context.Background(), "c1", "m9", "hi", true)

	require.NoError(t, err)
	msg := g.messages[0]
	require.NotNil(t, msg.MessageReference)
	assert.Equal(t, "m9", msg.MessageReference.MessageID)
	require.NotNil(t, msg.AllowedMentions)
	assert.False(t, msg.AllowedMentions.RepliedUser)
}

func TestClientSendEmbed(t *testing.T) {
	g := newFakeGateway(t)
	c := NewClient(g.srv.URL, "", time.Second, nil)

	_, err := c.SendEmbed(context.Background(), "c1", rules.Embed{Title: "T", Footer: "F", Fields: []rules.EmbedField{{Name: "a", Value: "b"}}})

	require.NoError(t, err)
	require.Len(t, g.messages[0].Embeds, 1)
	assert.Equal(t, "T", g.messages[0].Embeds[0].Title)
	assert.Equal(t, "F", g.messages[0].Embeds[0].Footer.Text)
}

func TestClientSendDirectOpensChannel(t *testing.T) {
	g := newFakeGateway(t)
	c := NewClient(g.srv.URL, "", time.Second, nil)

	a, err := c.SendDirect(context.Background(), "u1", "psst")

	require.NoError(t, err)
	assert.Equal(t, actions.ArtifactDirect, a.Kind)
	assert.Equal(t, "dm-chan", a.ChannelID)
	assert.Equal(t, "u1", a.UserID)
	assert.Equal(t, []string{"dm-chan"}, g.channels)
}

func TestClientReactionAndDelete(t *testing.T) {
	g := newFakeGateway(t)
	c := NewClient(g.srv.URL, "", time.Second, nil)

	a, err := c.AddReaction(context.Background(), "c1", "m1", "tada")
	require.NoError(t, err)
	assert.Equal(t, []string{"tada"}, g.reacted)

	require.NoError(t, c.DeleteArtifact(context.Background(), actions.Artifact{Kind: actions.ArtifactMessage, ChannelID: "c1", MessageID: "m7"}))
	assert.Equal(t, []string{"m7"}, g.deleted)

	assert.Equal(t, actions.ArtifactReaction, a.Kind)
	assert.Error(t, c.DeleteArtifact(context.Background(), actions.Artifact{Kind: "hologram"}))
}

func TestClientAPIError(t *testing.T) {
	g := newFakeGateway(t)
	c := NewClient(g.srv.URL, "", time.Second, nil)

	_, err := c.SendText(context.Background(), "missing", "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
