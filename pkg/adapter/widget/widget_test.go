package widget

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sam/pkg/action"
)

func TestExecutor(t *testing.T) {
	params := map[string]any{"song_name": "Blinding Lights"}
	out, err := Executor(action.TimingAfterTTS)(context.Background(), action.Call{
		Platform:   "soundcloud",
		Action:     "play_song",
		Parameters: params,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Command)
	assert.Equal(t, "play_song", out.Command.Type)
	assert.Equal(t, action.TimingAfterTTS, out.Command.Timing)
	assert.Equal(t, "Blinding Lights", out.Command.Params["song_name"])
	assert.Empty(t, out.Reply)

	params["song_name"] = "changed"
	assert.Equal(t, "Blinding Lights", out.Command.Params["song_name"])
}

func TestRegister(t *testing.T) {
	reg := action.NewRegistry(action.DefaultCatalog())
	require.NoError(t, Register(reg, "soundcloud"))

	for name := range Timings {
		assert.True(t, reg.Has("soundcloud", name), name)
	}
	assert.False(t, reg.Has("soundcloud", "create_playlist"))

	err := Register(reg, "soundcloud")
	assert.Error(t, err, "duplicate registration is rejected")
}

func TestRegisterSkipsUnknownActions(t *testing.T) {
	catalog, err := action.NewCatalog(action.Definition{Name: "pause_song", Capability: action.CapPlaybackControl})
	require.NoError(t, err)
	reg := action.NewRegistry(catalog)

	require.NoError(t, Register(reg, "widget"))
	assert.Equal(t, []string{"pause_song"}, reg.Actions("widget"))
}

func TestDispatchWithoutCredential(t *testing.T) {
	reg := action.NewRegistry(action.DefaultCatalog())
	require.NoError(t, Register(reg, "soundcloud", action.WithoutCredential()))
	caps := action.StaticCapabilities{"soundcloud": {action.CapSearch: true}}

	d := action.NewDispatcher(reg, caps, nil, action.DispatcherConfig{})
	res := d.Dispatch(context.Background(), action.Request{
		Platform:   "soundcloud",
		AccountID:  "acct",
		Action:     "play_song",
		Parameters: map[string]any{"song_name": "Hello"},
	})
	require.Equal(t, action.OutcomeSuccess, res.Outcome, res.Message)
	assert.Equal(t, action.TimingAfterTTS, res.Output.Command.Timing)

	res = d.Dispatch(context.Background(), action.Request{Platform: "soundcloud", Action: "pause_song"})
	assert.Equal(t, action.OutcomeFailed, res.Outcome)
	assert.Equal(t, action.KindCapability, res.Kind)
}

type stubTokens struct {
	calls int
	err   error
}

func (s *stubTokens) ResolveAccessToken(context.Context, string, string) (string, error) {
	s.calls++
	return "tok", s.err
}

func (*stubTokens) Invalidate(context.Context, string, string) error { return nil }

func TestDispatchWithCredential(t *testing.T) {
	reg := action.NewRegistry(action.DefaultCatalog())
	require.NoError(t, Register(reg, "spotify"))
	tokens := &stubTokens{}

	d := action.NewDispatcher(reg, action.DefaultCapabilities(), tokens, action.DispatcherConfig{})
	res := d.Dispatch(context.Background(), action.Request{Platform: "spotify", AccountID: "acct", Action: "pause_song"})
	require.Equal(t, action.OutcomeSuccess, res.Outcome, res.Message)
	assert.Equal(t, 1, tokens.calls)
	assert.Equal(t, action.TimingImmediate, res.Output.Command.Timing)
	assert.NotContains(t, res.Output.Command.Params, "access_token")
}
