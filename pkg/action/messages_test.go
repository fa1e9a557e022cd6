package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		platform string
		action   string
		want     string
	}{
		{"action specific", "404", "spotify", "play_song", "I couldn't find that song. Could you try with a different name or artist?"},
		{"default with platform", "404", "spotify", "seek_time", "I couldn't find that on Spotify. Could you try with a different name?"},
		{"premium", "403", "spotify", "set_volume", "I can't control the volume. This feature might require Spotify Premium."},
		{"server", "503", "soundcloud", "play_song", "Soundcloud is temporarily unavailable. Please try again in a few moments."},
		{"device", "no_device", "spotify", "", "I can't find an active Spotify device. Please open Spotify on your phone, computer, or speaker and start playing something."},
		{"unknown code", "418", "spotify", "play_song", "I encountered an issue with Spotify. Please try again."},
		{"no platform", "500", "", "", "the music service is having some technical difficulties right now. Please try again in a moment."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TranslateError(tt.code, tt.platform, tt.action))
		})
	}
}

func TestExternalAPIError(t *testing.T) {
	err := &ExternalAPIError{Code: 401, Platform: "spotify", Action: "add_to_playlist", Err: errors.New("token expired")}
	assert.True(t, err.Unauthorized())
	assert.Equal(t, "spotify add_to_playlist failed with status 401: token expired", err.Error())
	assert.Equal(t, "I can't modify playlists because your Spotify session expired. Please reconnect your account.", err.UserMessage())
	assert.ErrorIs(t, err, err.Err)

	network := &ExternalAPIError{Platform: "spotify", Action: "play_song"}
	assert.False(t, network.Unauthorized())
	assert.Equal(t, "I'm having trouble connecting to Spotify. Please check your internet connection.", network.UserMessage())
}

func TestDeviceNotFoundError(t *testing.T) {
	assert.Equal(t, "no active spotify device", (&DeviceNotFoundError{Platform: "spotify"}).Error())
}
