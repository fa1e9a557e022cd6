package action

import (
	"strings"
)

const (
	errorNetwork  = "network"
	errorNoDevice = "no_device"
	defaultKey    = "default"
)

// errorMessages holds user-facing text by error code, then by action.
var errorMessages = map[string]map[string]string{
	"401": {
		defaultKey:        "It looks like your {platform} connection has expired. Please reconnect your account.",
		"play_song":       "I can't play that right now because your {platform} session expired. Please reconnect your account.",
		"add_to_playlist": "I can't modify playlists because your {platform} session expired. Please reconnect your account.",
	},
	"403": {
		defaultKey:              "I don't have permission to do that on {platform}. Please check your account settings.",
		"add_to_playlist":       "I don't have permission to modify that playlist. Please check if you have edit access.",
		"delete_playlist":       "I can't delete that playlist. You might not be the owner, or it might be protected.",
		"play_song":             "I can't play that content. This might require {platform} Premium or special permissions.",
		"play_playlist_by_name": "I don't have access to that playlist. It might be private or require special permissions.",
		"set_volume":            "I can't control the volume. This feature might require {platform} Premium.",
	},
	"404": {
		defaultKey:              "I couldn't find that on {platform}. Could you try with a different name?",
		"play_song":             "I couldn't find that song. Could you try with a different name or artist?",
		"play_playlist_by_name": "I couldn't find a playlist with that name. Could you check the name and try again?",
		"add_to_playlist":       "I couldn't find that playlist or song. Please check the names and try again.",
		"delete_playlist":       "I couldn't find a playlist with that name in your library.",
	},
	"429": {
		defaultKey:  "I'm making too many requests to {platform} right now. Please wait a moment and try again.",
		"play_song": "I'm sending requests too quickly. Let me take a quick break, then you can try again.",
	},
	"500": {defaultKey: "{platform} is having some technical difficulties right now. Please try again in a moment."},
	"502": {defaultKey: "{platform} seems to be having connection issues. Please try again shortly."},
	"503": {defaultKey: "{platform} is temporarily unavailable. Please try again in a few moments."},
	"504": {defaultKey: "{platform} is taking too long to respond. Please try again in a moment."},
	errorNetwork: {
		defaultKey: "I'm having trouble connecting to {platform}. Please check your internet connection.",
	},
	errorNoDevice: {
		defaultKey: "I can't find an active {platform} device. Please open {platform} on your phone, computer, or speaker and start playing something.",
	},
}

// TranslateError returns the user-facing message for an error code (an HTTP
// status such as "404", or "network" / "no_device") raised by action on
// platform.
func TranslateError(code, platform, action string) string {
	name := DisplayName(platform)
	messages, ok := errorMessages[code]
	if !ok {
		return GenericFailure(platform)
	}
	msg, ok := messages[action]
	if !ok {
		msg = messages[defaultKey]
	}
	return strings.ReplaceAll(msg, "{platform}", name)
}

// GenericFailure is the message for failures with no specific translation.
func GenericFailure(platform string) string {
	return "I encountered an issue with " + DisplayName(platform) + ". Please try again."
}

// DisplayName capitalises a platform identifier for user-facing text.
func DisplayName(platform string) string {
	if platform == "" {
		return "the music service"
	}
	return strings.ToUpper(platform[:1]) + platform[1:]
}
