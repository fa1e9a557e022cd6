package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params := ParseParams("song_name", "artist?")
	require.Len(t, params, 2)
	assert.Equal(t, Param{Name: "song_name"}, params[0])
	assert.Equal(t, Param{Name: "artist", Optional: true}, params[1])
}

func TestDefinition_Missing(t *testing.T) {
	def := Definition{Name: "add_to_playlist", Capability: CapPlaylistManagement, Params: ParseParams("song_name", "playlist_name", "position?")}

	tests := []struct {
		name   string
		params map[string]any
		want   []string
	}{
		{"none given", nil, []string{"song_name", "playlist_name"}},
		{"nil value", map[string]any{"song_name": nil, "playlist_name": "Road Trip"}, []string{"song_name"}},
		{"blank string", map[string]any{"song_name": "  ", "playlist_name": "Road Trip"}, []string{"song_name"}},
		{"complete", map[string]any{"song_name": "Halo", "playlist_name": "Road Trip"}, nil},
		{"zero number is present", map[string]any{"song_name": 0, "playlist_name": false}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, def.Missing(tt.params))
		})
	}
}

func TestNewCatalog_Validation(t *testing.T) {
	_, err := NewCatalog(Definition{Name: "Play", Capability: CapSearch})
	assert.Error(t, err)

	_, err = NewCatalog(Definition{Name: "play"})
	assert.Error(t, err)

	_, err = NewCatalog(Definition{Name: "play", Capability: CapSearch}, Definition{Name: "play", Capability: CapSearch})
	assert.Error(t, err)
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	def, ok := c.Lookup("play_song")
	require.True(t, ok)
	assert.Equal(t, CapSearch, def.Capability)
	assert.Equal(t, []string{"song_name"}, def.Missing(nil))

	def, ok = c.Lookup("create_playlist")
	require.True(t, ok)
	assert.Equal(t, CapPlaylistCreation, def.Capability)

	names := c.Names()
	assert.Contains(t, names, "recommend_by_mood")
	assert.IsNonDecreasing(t, names)

	for _, name := range names {
		s, _ := c.Lookup(name)
		assert.Contains(t, AllCapabilities, s.Capability, name)
	}
}

func TestCatalog_Prompt(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, "What's the name of the song?", c.Prompt("play_song", "song_name"))
	assert.Equal(t, "Please provide the range start for reorder playlist.", c.Prompt("reorder_playlist", "range_start"))
}
