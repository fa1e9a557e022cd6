// Package widget provides executors for platforms whose playback runs in an
// embedded client-side player. They perform no server-side I/O; each returns
// a Command for the client to execute.
package widget

import (
	"context"
	"fmt"
	"maps"

	"github.com/txn2/sam/pkg/action"
)

// Timings maps each supported action to when the client should run it.
// Playback starts after the reply is spoken; transport controls run at once.
var Timings = map[string]action.Timing{
	"play_song":             action.TimingAfterTTS,
	"play_song_by_artist":   action.TimingAfterTTS,
	"play_song_by_movie":    action.TimingAfterTTS,
	"play_playlist_by_name": action.TimingAfterTTS,
	"play_liked_songs":      action.TimingAfterTTS,
	"pause_song":            action.TimingImmediate,
	"resume_song":           action.TimingImmediate,
	"skip_song":             action.TimingImmediate,
	"previous_song":         action.TimingImmediate,
	"restart_song":          action.TimingImmediate,
	"seek_time":             action.TimingImmediate,
	"set_volume":            action.TimingImmediate,
}

// Executor returns an executor emitting a command with the given timing.
func Executor(timing action.Timing) action.Executor {
	return func(_ context.Context, call action.Call) (action.Output, error) {
		return action.Output{
			Command: &action.Command{
				Type:   call.Action,
				Params: maps.Clone(call.Parameters),
				Timing: timing,
			},
		}, nil
	}
}

// Register adds widget executors for platform. Actions absent from the
// registry's catalog are skipped. Platforms whose embedded player needs no
// linked account pass action.WithoutCredential(); otherwise the dispatcher
// resolves a token before each command is issued.
func Register(reg *action.Registry, platform string, opts ...action.RegisterOption) error {
	for name, timing := range Timings {
		if _, ok := reg.Catalog().Lookup(name); !ok {
			continue
		}
		if err := reg.Register(platform, name, Executor(timing), opts...); err != nil {
			return fmt.Errorf("registering widget action %s: %w", name, err)
		}
	}
	return nil
}
