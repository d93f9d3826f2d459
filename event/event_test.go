package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeValid(t *testing.T) {
	for _, et := range Types() {
		assert.True(t, et.Valid(), et)
	}
	assert.False(t, Type("messageExplode").Valid())
	assert.False(t, Type("").Valid())
}

func TestDecodeMessage(t *testing.T) {
	raw := json.RawMessage(`{
		"guild": {"id": "g1", "name": "Gophers", "memberCount": 5},
		"channel": {"id": "c1", "name": "general"},
		"message": {"id": "m1", "content": "hi there", "author": {"id": "42", "name": "alice"},
			"attachments": [{"id": "a1", "filename": "x.png"}], "mentions": ["7"]}
	}`)

	payload, err := Decode(MessageCreate, raw)
	require.NoError(t, err)

	c, err := NewContext(Event{Type: MessageCreate, TenantID: "g1", Payload: payload}, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "42", c.Author.ID)
	assert.Equal(t, "alice", c.User.Name)
	assert.Equal(t, "c1", c.Channel.ID)
	assert.Equal(t, 5, c.Guild.MemberCount)
	assert.Len(t, c.Attachments, 1)
	assert.Equal(t, []string{"7"}, c.Mentions)
	assert.Equal(t, 2, c.WordCount())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("bogus", json.RawMessage(`{}`))
	assert.Error(t, err)

	_, err = Decode(MemberJoin, nil)
	assert.Error(t, err)

	_, err = Decode(MemberJoin, json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestNewContextPerEventType(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	member := User{ID: "u1", Name: "bob", Roles: []string{"r1"}}

	t.Run("reaction", func(t *testing.T) {
		c, err := NewContext(Event{Type: ReactionAdd, Payload: ReactionPayload{
			Channel: Channel{ID: "c1"}, MessageID: "m1", User: member, Emoji: "👍",
		}}, now)
		require.NoError(t, err)
		assert.Equal(t, "m1", c.Message.ID)
		assert.Equal(t, "u1", c.User.ID)
	})

	t.Run("voice join", func(t *testing.T) {
		c, err := NewContext(Event{Type: VoiceStateUpdate, Payload: &VoiceStatePayload{
			Member: member, Channel: &Channel{ID: "v1", Name: "Lounge"},
		}}, now)
		require.NoError(t, err)
		assert.Equal(t, "Lounge", c.Voice.Name)
	})

	t.Run("voice leave", func(t *testing.T) {
		c, err := NewContext(Event{Type: VoiceStateUpdate, Payload: &VoiceStatePayload{Member: member}}, now)
		require.NoError(t, err)
		assert.Empty(t, c.Voice.ID)
	})

	t.Run("presence", func(t *testing.T) {
		c, err := NewContext(Event{Type: PresenceUpdate, Payload: &PresencePayload{Member: member, Status: "idle"}}, now)
		require.NoError(t, err)
		assert.Equal(t, "idle", c.Presence)
		assert.Equal(t, []string{"r1"}, c.Author.Roles)
	})

	t.Run("interaction", func(t *testing.T) {
		c, err := NewContext(Event{Type: InteractionCreate, Payload: &InteractionPayload{User: member, Command: "roll"}}, now)
		require.NoError(t, err)
		assert.Equal(t, "roll", c.Message.Content)
	})

	t.Run("missing payload", func(t *testing.T) {
		_, err := NewContext(Event{Type: MemberJoin}, now)
		assert.Error(t, err)
	})

	t.Run("wrong payload", func(t *testing.T) {
		_, err := NewContext(Event{Type: MemberJoin, Payload: 42}, now)
		assert.Error(t, err)
	})
}

func TestContextMeasures(t *testing.T) {
	c := &Context{Message: Message{Content: "  héllo \t wörld\n"}}

	assert.Equal(t, 2, c.WordCount())
	assert.Equal(t, 16, c.ContentLength())
}

func TestVarsCompileAgainstEnv(t *testing.T) {
	env, err := NewCELEnv()
	require.NoError(t, err)

	ast, iss := env.Compile(`user.name == "bob" && guild.memberCount == 3 && size(mentions) == 0 && now > timestamp("2000-01-01T00:00:00Z")`)
	require.NoError(t, iss.Err())
	prg, err := env.Program(ast)
	require.NoError(t, err)

	c := &Context{
		User:  User{Name: "bob"},
		Guild: Guild{MemberCount: 3},
		Now:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	out, _, err := prg.Eval(c.Vars())
	require.NoError(t, err)
	assert.Equal(t, true, out.Value())
}
