package action

import (
	"fmt"
	"strings"
)

// DefaultAliases maps canonical actions to synonyms an NLU model is known to
// produce.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"play_song":               {"play_track", "play_song_by_name", "play_track_by_name", "play_music", "start_song", "play_tune", "play_audio"},
		"play_song_by_artist":     {"play_artist", "play_music_by_artist", "play_artist_name", "play_songs_from_artist"},
		"play_song_by_movie":      {"play_movie_track", "play_song_from_movie"},
		"play_playlist_by_name":   {"play_list", "play_playlist", "play_music_list", "start_playlist"},
		"play_liked_songs":        {"play_favorites", "play_saved_songs", "play_my_likes"},
		"get_current_song":        {"current_song", "now_playing", "whats_playing"},
		"pause_song":              {"pause", "stop", "pause_music", "halt_song"},
		"resume_song":             {"resume", "continue", "play_again", "unpause"},
		"skip_song":               {"next", "skip", "next_track", "skip_track"},
		"previous_song":           {"previous", "go_back", "previous_track", "back_track"},
		"restart_song":            {"restart", "replay", "start_over"},
		"seek_time":               {"seek", "fast_forward", "rewind", "skip_time"},
		"set_volume":              {"volume", "change_volume", "adjust_volume"},
		"like_song":               {"like", "favorite", "save_song"},
		"remove_from_liked_songs": {"unlike", "remove_favorite", "unsave_song"},
		"create_playlist":         {"make_playlist", "new_playlist", "create_new_list"},
		"delete_playlist":         {"remove_playlist", "delete_list", "cancel_playlist", "discard_playlist"},
		"add_to_playlist":         {"add_song_to_playlist", "append_to_playlist", "insert_song"},
		"remove_from_playlist":    {"remove_song_from_playlist", "delete_from_playlist", "take_out_song"},
		"reorder_playlist":        {"move_song_in_playlist", "change_order", "rearrange_playlist"},
		"recommend_by_mood":       {"recommend_music", "mood_playlist", "suggest_music", "mood_recommendation"},
	}
}

// Normalizer maps raw action names to canonical ones.
type Normalizer struct {
	catalog *Catalog
	aliases map[string]string // synonym -> canonical
}

// NewNormalizer builds a normalizer. Every alias target must be a canonical
// action and a synonym may map to only one canonical action.
func NewNormalizer(catalog *Catalog, aliases map[string][]string) (*Normalizer, error) {
	n := &Normalizer{catalog: catalog, aliases: make(map[string]string)}
	for canonical, synonyms := range aliases {
		if _, ok := catalog.Lookup(canonical); !ok {
			return nil, fmt.Errorf("alias target %q is not a canonical action", canonical)
		}
		for _, syn := range synonyms {
			key := cleanName(syn)
			if _, ok := catalog.Lookup(key); ok {
				return nil, fmt.Errorf("alias %q shadows a canonical action", syn)
			}
			if prev, ok := n.aliases[key]; ok && prev != canonical {
				return nil, fmt.Errorf("alias %q maps to both %q and %q", syn, prev, canonical)
			}
			n.aliases[key] = canonical
		}
	}
	return n, nil
}

// Normalize returns the canonical name for raw, matching case-insensitively
// against canonical names first and aliases second.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	key := cleanName(raw)
	if key == "" {
		return "", false
	}
	if _, ok := n.catalog.Lookup(key); ok {
		return key, true
	}
	canonical, ok := n.aliases[key]
	return canonical, ok
}

func cleanName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
