// Package action defines the canonical music actions, the capability gate in
// front of them, and dispatch of resolved actions to platform executors.
package action

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Param declares one parameter of an action.
type Param struct {
	Name string

	// Optional parameters are used when present but never trigger
	// slot-filling. Declared with a trailing "?".
	Optional bool
}

// Definition declares a canonical action.
type Definition struct {
	Name       string
	Capability Capability
	Params     []Param
}

// Missing returns the required parameters absent from params, in declaration
// order. Nil values and blank strings count as absent.
func (s Definition) Missing(params map[string]any) []string {
	var missing []string
	for _, p := range s.Params {
		if p.Optional {
			continue
		}
		if IsBlank(params[p.Name]) {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// IsBlank reports whether a parameter value should be treated as not given.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// ParseParams builds parameter declarations. A trailing "?" marks a parameter
// optional-if-absent.
func ParseParams(decls ...string) []Param {
	params := make([]Param, 0, len(decls))
	for _, d := range decls {
		name, optional := strings.CutSuffix(d, "?")
		params = append(params, Param{Name: name, Optional: optional})
	}
	return params
}

// Catalog is the set of canonical actions.
type Catalog struct {
	defs    map[string]Definition
	prompts map[string]string
}

// NewCatalog builds a catalog. Names must be unique, lower case and carry a
// capability.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs:    make(map[string]Definition, len(defs)),
		prompts: maps.Clone(defaultPrompts),
	}
	for _, s := range defs {
		if s.Name == "" || s.Name != strings.ToLower(s.Name) {
			return nil, fmt.Errorf("invalid action name %q", s.Name)
		}
		if s.Capability == "" {
			return nil, fmt.Errorf("action %q has no capability", s.Name)
		}
		if _, dup := c.defs[s.Name]; dup {
			return nil, fmt.Errorf("action %q declared twice", s.Name)
		}
		c.defs[s.Name] = s
	}
	return c, nil
}

// Lookup returns the definition of a canonical action name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	s, ok := c.defs[name]
	return s, ok
}

// Names returns all canonical action names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.defs))
	for n := range c.defs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Prompt returns the question asked when param is missing for action.
func (c *Catalog) Prompt(action, param string) string {
	if p, ok := c.prompts[param]; ok {
		return p
	}
	return fmt.Sprintf("Please provide the %s for %s.", Words(param), Words(action))
}

// Words renders an identifier such as play_song as "play song".
func Words(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

var defaultPrompts = map[string]string{
	"song_name":      "What's the name of the song?",
	"playlist_name":  "What's the name of the playlist?",
	"artist":         "Which artist would you like to hear?",
	"movie_name":     "Which movie is the song from?",
	"seconds":        "Where should I skip to, in seconds?",
	"volume_percent": "What volume would you like, from 0 to 100?",
	"mood":           "What kind of mood are you in?",
}

// DefaultDefinitions returns the built-in canonical actions.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "play_song", Capability: CapSearch, Params: ParseParams("song_name", "artist?")},
		{Name: "play_song_by_artist", Capability: CapSearch, Params: ParseParams("artist", "song_name?")},
		{Name: "play_song_by_movie", Capability: CapSearch, Params: ParseParams("movie_name")},
		{Name: "play_playlist_by_name", Capability: CapSearch, Params: ParseParams("playlist_name")},
		{Name: "play_liked_songs", Capability: CapLibraryManagement},
		{Name: "get_current_song", Capability: CapRealTimeControl},
		{Name: "pause_song", Capability: CapPlaybackControl},
		{Name: "resume_song", Capability: CapPlaybackControl},
		{Name: "skip_song", Capability: CapPlaybackControl},
		{Name: "previous_song", Capability: CapPlaybackControl},
		{Name: "restart_song", Capability: CapPlaybackControl},
		{Name: "seek_time", Capability: CapPlaybackControl, Params: ParseParams("seconds")},
		{Name: "set_volume", Capability: CapPlaybackControl, Params: ParseParams("volume_percent")},
		{Name: "like_song", Capability: CapFavoritesManagement, Params: ParseParams("song_name?")},
		{Name: "remove_from_liked_songs", Capability: CapFavoritesManagement, Params: ParseParams("song_name?")},
		{Name: "create_playlist", Capability: CapPlaylistCreation, Params: ParseParams("playlist_name", "description?")},
		{Name: "delete_playlist", Capability: CapPlaylistManagement, Params: ParseParams("playlist_name")},
		{Name: "add_to_playlist", Capability: CapPlaylistManagement, Params: ParseParams("song_name", "playlist_name")},
		{Name: "remove_from_playlist", Capability: CapPlaylistManagement, Params: ParseParams("song_name", "playlist_name")},
		{Name: "reorder_playlist", Capability: CapPlaylistManagement, Params: ParseParams("playlist_name", "range_start?", "insert_before?")},
		{Name: "recommend_by_mood", Capability: CapRecommendations, Params: ParseParams("mood")},
	}
}

// DefaultCatalog returns a catalog of the built-in actions.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions()...)
	if err != nil {
		panic(err) // built-in table is static
	}
	return c
}
