// Package speech runs reply synthesis as a cancellable background task so it
// can overlap with action execution.
package speech

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds one synthesis.
const DefaultTimeout = 20 * time.Second

// ErrCanceled is returned by Wait on a task that was cancelled.
var ErrCanceled = errors.New("speech task canceled")

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text string) ([]byte, error)

// Synthesize implements Synthesizer.
func (f SynthesizerFunc) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f(ctx, text)
}

// Task is one in-flight synthesis.
type Task struct {
	text   string
	cancel context.CancelFunc
	done   chan struct{}

	audio []byte
	err   error
}

// Start begins synthesizing text in the background. The task is detached from
// ctx cancellation but keeps its values; it ends on completion, timeout or
// Cancel. A nil synth yields a task that completes immediately with no audio.
func Start(ctx context.Context, synth Synthesizer, text string, timeout time.Duration) *Task {
	t := &Task{text: text, done: make(chan struct{})}
	if synth == nil || text == "" {
		t.cancel = func() {}
		close(t.done)
		return t
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	t.cancel = cancel
	go func() {
		defer close(t.done)
		defer cancel()
		audio, err := synth.Synthesize(tctx, text)
		if err == nil && tctx.Err() != nil && !errors.Is(tctx.Err(), context.DeadlineExceeded) {
			err = ErrCanceled
		}
		t.audio, t.err = audio, err
	}()
	return t
}

// Text returns the text being synthesized.
func (t *Task) Text() string {
	return t.text
}

// Cancel stops the task without waiting for it.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
		return t.audio, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
