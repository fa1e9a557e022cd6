package action

import "maps"

// Capability is a named feature a platform adapter may support.
type Capability string

// Capabilities known to the engine.
const (
	CapPlaybackControl     Capability = "playback_control"
	CapPlaylistManagement  Capability = "playlist_management"
	CapLibraryManagement   Capability = "library_management"
	CapSearch              Capability = "search"
	CapRecommendations     Capability = "recommendations"
	CapRealTimeControl     Capability = "real_time_control"
	CapFavoritesManagement Capability = "favorites_management"
	CapPlaylistCreation    Capability = "playlist_creation"
	CapVoiceControl        Capability = "voice_control"
)

// AllCapabilities lists every capability in a stable order.
var AllCapabilities = []Capability{
	CapPlaybackControl, CapPlaylistManagement, CapLibraryManagement,
	CapSearch, CapRecommendations, CapRealTimeControl,
	CapFavoritesManagement, CapPlaylistCreation, CapVoiceControl,
}

// CapabilityProvider reports the static capability set of a platform.
// Implementations answer without network calls.
type CapabilityProvider interface {
	Capabilities(platform string) map[Capability]bool
}

// StaticCapabilities is a fixed platform → capability table.
type StaticCapabilities map[string]map[Capability]bool

// Capabilities returns a copy of the platform's capability set. Unknown
// platforms support nothing.
func (s StaticCapabilities) Capabilities(platform string) map[Capability]bool {
	return maps.Clone(s[platform])
}

// Supports reports whether platform declares capability.
func (s StaticCapabilities) Supports(platform string, capability Capability) bool {
	return s[platform][capability]
}

// Merge returns a copy of s with overrides applied per capability.
func (s StaticCapabilities) Merge(overrides StaticCapabilities) StaticCapabilities {
	out := make(StaticCapabilities, len(s)+len(overrides))
	for p, caps := range s {
		out[p] = maps.Clone(caps)
	}
	for p, caps := range overrides {
		if out[p] == nil {
			out[p] = make(map[Capability]bool, len(caps))
		}
		maps.Copy(out[p], caps)
	}
	return out
}

// DefaultCapabilities returns the built-in capability sets.
func DefaultCapabilities() StaticCapabilities {
	return StaticCapabilities{
		"spotify": {
			CapPlaybackControl:     true,
			CapPlaylistManagement:  true,
			CapLibraryManagement:   true,
			CapSearch:              true,
			CapRecommendations:     true,
			CapRealTimeControl:     true,
			CapFavoritesManagement: true,
			CapPlaylistCreation:    true,
		},
		"soundcloud": {
			CapPlaylistManagement:  true,
			CapLibraryManagement:   true,
			CapSearch:              true,
			CapFavoritesManagement: true,
			CapPlaylistCreation:    true,
		},
	}
}
