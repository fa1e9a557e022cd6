// Package intent turns a user utterance, with its conversation context, into
// an ordered list of canonical actions and a reply by consulting an NLU
// oracle.
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/sam/pkg/action"
	"github.com/txn2/sam/pkg/turnctx"
)

// DefaultTimeout bounds one oracle call.
const DefaultTimeout = 15 * time.Second

// DefaultReply is used when the oracle returns no reply text.
const DefaultReply = "Sorry, I'm not sure how to help with that."

// ErrInvalidOutput is returned when the oracle output cannot be parsed.
var ErrInvalidOutput = errors.New("invalid oracle output")

// RawAction is one action as returned by the oracle.
type RawAction struct {
	Name       string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Reply      string         `json:"reply,omitempty"`
}

// Resolution is the structured oracle output.
type Resolution struct {
	Intent  string      `json:"intent,omitempty"`
	Emotion string      `json:"emotion,omitempty"`
	Actions []RawAction `json:"actions"`
	Reply   string      `json:"reply"`
}

// Oracle is the NLU backend.
type Oracle interface {
	// Resolve interprets prompt, choosing actions from actionNames. It must
	// return structured output or an error.
	Resolve(ctx context.Context, prompt string, actionNames []string) (*Resolution, error)
}

// ResolvedAction is an oracle action with its canonical name attached.
type ResolvedAction struct {
	// Name is the name the oracle produced.
	Name string

	// Canonical is empty when the name matched no known action.
	Canonical string

	Parameters map[string]any
}

// Recognized reports whether the action maps to a canonical action.
func (a ResolvedAction) Recognized() bool {
	return a.Canonical != ""
}

// ResolvedIntent is the resolver's answer for one turn.
type ResolvedIntent struct {
	Actions []ResolvedAction
	Reply   string

	// Raw is the unmodified oracle output, kept for the interaction log.
	Raw *Resolution
}

// Request is the context for one resolution.
type Request struct {
	Utterance string
	History   []turnctx.Entry
	Pending   *turnctx.PendingContext

	// Actions, when non-nil, replaces the resolver's action names for this
	// resolution.
	Actions []string
}

// Config configures a Resolver.
type Config struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Resolver builds prompts, calls the oracle once and normalizes action names.
type Resolver struct {
	oracle      Oracle
	normalizer  *action.Normalizer
	actionNames []string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewResolver creates a Resolver offering actionNames to the oracle.
func NewResolver(oracle Oracle, normalizer *action.Normalizer, actionNames []string, cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		oracle:      oracle,
		normalizer:  normalizer,
		actionNames: actionNames,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}
}

// Resolve interprets one utterance. Oracle failures are returned as errors
// and are not retried.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*ResolvedIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names := r.actionNames
	if req.Actions != nil {
		names = req.Actions
	}
	res, err := r.oracle.Resolve(ctx, BuildPrompt(req), names)
	if err != nil {
		return nil, fmt.Errorf("resolving intent: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("resolving intent: %w: empty result", ErrInvalidOutput)
	}

	out := &ResolvedIntent{
		Reply:   res.Reply,
		Raw:     res,
		Actions: make([]ResolvedAction, 0, len(res.Actions)),
	}
	if out.Reply == "" {
		out.Reply = DefaultReply
	}
	for _, a := range res.Actions {
		canonical, ok := r.normalizer.Normalize(a.Name)
		if !ok {
			r.logger.Debug("unrecognized action from oracle", "action", a.Name)
		}
		out.Actions = append(out.Actions, ResolvedAction{
			Name:       a.Name,
			Canonical:  canonical,
			Parameters: a.Parameters,
		})
	}
	return out, nil
}
