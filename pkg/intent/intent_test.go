package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sam/pkg/action"
	"github.com/txn2/sam/pkg/turnctx"
)

type stubOracle struct {
	res     *Resolution
	err     error
	prompt  string
	actions []string
	block   bool
}

func (s *stubOracle) Resolve(ctx context.Context, prompt string, actionNames []string) (*Resolution, error) {
	s.prompt = prompt
	s.actions = actionNames
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.res, s.err
}

func newTestResolver(t *testing.T, oracle Oracle, cfg Config) *Resolver {
	t.Helper()
	catalog := action.DefaultCatalog()
	normalizer, err := action.NewNormalizer(catalog, action.DefaultAliases())
	require.NoError(t, err)
	return NewResolver(oracle, normalizer, catalog.Names(), cfg)
}

func TestBuildPrompt(t *testing.T) {
	t.Run("utterance only", func(t *testing.T) {
		assert.Equal(t, "play despacito", BuildPrompt(Request{Utterance: "play despacito"}))
	})

	t.Run("with history", func(t *testing.T) {
		got := BuildPrompt(Request{
			Utterance: "now pause",
			History: []turnctx.Entry{
				{Role: turnctx.RoleUser, Text: "play despacito"},
				{Role: turnctx.RoleAssistant, Text: "Playing Despacito"},
			},
		})
		assert.Equal(t, "Conversation so far: user: play despacito | assistant: Playing Despacito\nUser now: now pause", got)
	})

	t.Run("with pending context", func(t *testing.T) {
		got := BuildPrompt(Request{
			Utterance: "Road Trip",
			Pending: &turnctx.PendingContext{
				Action:     "add_to_playlist",
				Parameters: map[string]any{"song_name": "Hello"},
			},
		})
		assert.Equal(t, "Road Trip\nPreviously, the user wanted 'add_to_playlist' with partial details "+
			`{"song_name":"Hello"}. Use the new message to complete any missing details.`, got)
	})

	t.Run("pending without parameters", func(t *testing.T) {
		got := BuildPrompt(Request{
			Utterance: "x",
			Pending:   &turnctx.PendingContext{Action: "play_song"},
		})
		assert.Contains(t, got, "partial details {}")
	})
}

func TestSystemPrompt(t *testing.T) {
	got := SystemPrompt([]string{"pause", "resume"})
	assert.Contains(t, got, "Available actions: pause, resume")
	assert.Contains(t, got, `"actions"`)
}

func TestParseResolution(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		res, err := ParseResolution(`{"intent":"play","actions":[{"action":"play_song","parameters":{"song_name":"Hello"}}],"reply":"Playing"}`)
		require.NoError(t, err)
		require.Len(t, res.Actions, 1)
		assert.Equal(t, "play_song", res.Actions[0].Name)
		assert.Equal(t, "Hello", res.Actions[0].Parameters["song_name"])
		assert.Equal(t, "Playing", res.Reply)
		assert.Equal(t, "play", res.Intent)
	})

	t.Run("code fence", func(t *testing.T) {
		res, err := ParseResolution("```json\n{\"actions\":[],\"reply\":\"Hi\"}\n```")
		require.NoError(t, err)
		assert.Empty(t, res.Actions)
		assert.Equal(t, "Hi", res.Reply)
	})

	t.Run("numbers decode as float64", func(t *testing.T) {
		res, err := ParseResolution(`{"actions":[{"action":"set_volume","parameters":{"volume_percent":40}}]}`)
		require.NoError(t, err)
		assert.InDelta(t, 40.0, res.Actions[0].Parameters["volume_percent"], 0)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := ParseResolution("I cannot help")
		assert.ErrorIs(t, err, ErrInvalidOutput)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseResolution(`{"actions": [}`)
		assert.ErrorIs(t, err, ErrInvalidOutput)
	})
}

func TestResolverResolve(t *testing.T) {
	oracle := &stubOracle{res: &Resolution{
		Actions: []RawAction{
			{Name: "Play Song", Parameters: map[string]any{"song_name": "Hello"}},
			{Name: "next_song"},
			{Name: "dance"},
		},
		Reply: "On it",
	}}
	r := newTestResolver(t, oracle, Config{})

	got, err := r.Resolve(context.Background(), Request{Utterance: "play hello then skip"})
	require.NoError(t, err)

	assert.Equal(t, "play hello then skip", oracle.prompt)
	assert.Contains(t, oracle.actions, "play_song")
	assert.Equal(t, "On it", got.Reply)
	require.Len(t, got.Actions, 3)

	assert.Equal(t, "play_song", got.Actions[0].Canonical)
	assert.Equal(t, "Hello", got.Actions[0].Parameters["song_name"])
	assert.Equal(t, "skip_song", got.Actions[1].Canonical)
	assert.True(t, got.Actions[1].Recognized())
	assert.Equal(t, "dance", got.Actions[2].Name)
	assert.False(t, got.Actions[2].Recognized())
	assert.Same(t, oracle.res, got.Raw)
}

func TestResolverRequestActionsOverrideDefaults(t *testing.T) {
	oracle := &stubOracle{res: &Resolution{Reply: "ok"}}
	r := newTestResolver(t, oracle, Config{})

	_, err := r.Resolve(context.Background(), Request{Utterance: "x", Actions: []string{"pause_song"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"pause_song"}, oracle.actions)

	_, err = r.Resolve(context.Background(), Request{Utterance: "x", Actions: []string{}})
	require.NoError(t, err)
	assert.Empty(t, oracle.actions)
}

func TestResolverDefaultReply(t *testing.T) {
	r := newTestResolver(t, &stubOracle{res: &Resolution{}}, Config{})
	got, err := r.Resolve(context.Background(), Request{Utterance: "hmm"})
	require.NoError(t, err)
	assert.Equal(t, DefaultReply, got.Reply)
	assert.Empty(t, got.Actions)
}

func TestResolverOracleError(t *testing.T) {
	boom := errors.New("boom")
	r := newTestResolver(t, &stubOracle{err: boom}, Config{})
	_, err := r.Resolve(context.Background(), Request{Utterance: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestResolverNilResolution(t *testing.T) {
	r := newTestResolver(t, &stubOracle{}, Config{})
	_, err := r.Resolve(context.Background(), Request{Utterance: "x"})
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestResolverTimeout(t *testing.T) {
	r := newTestResolver(t, &stubOracle{block: true}, Config{Timeout: 20 * time.Millisecond})
	_, err := r.Resolve(context.Background(), Request{Utterance: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
