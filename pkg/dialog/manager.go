// Package dialog runs conversational turns: it resolves an utterance into
// actions, fills missing parameters across turns, dispatches the actions in
// order and overlaps reply synthesis with execution.
package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/txn2/sam/pkg/action"
	"github.com/txn2/sam/pkg/intent"
	"github.com/txn2/sam/pkg/interaction"
	"github.com/txn2/sam/pkg/speech"
	"github.com/txn2/sam/pkg/turnctx"
)

// ErrInvalidRequest is returned for a turn without a session or utterance.
var ErrInvalidRequest = errors.New("invalid turn request")

// Status is the overall outcome of a turn.
type Status string

// Turn statuses.
const (
	StatusPendingInput Status = "PENDING_INPUT"
	StatusSuccess      Status = "SUCCESS"
	StatusError        Status = "ERROR"
)

// TurnRequest is one user utterance.
type TurnRequest struct {
	SessionID string
	Platform  string
	AccountID string
	Utterance string
}

// ActionResult reports what happened to one resolved action.
type ActionResult struct {
	Action  string          `json:"action"`
	Outcome action.Outcome  `json:"outcome"`
	Message string          `json:"message,omitempty"`
	Missing []string        `json:"missing,omitempty"`
	Command *action.Command `json:"command,omitempty"`
	Payload any             `json:"payload,omitempty"`
}

// TurnResponse is the answer to one turn.
type TurnResponse struct {
	SessionID string          `json:"session_id"`
	Reply     string          `json:"reply"`
	Audio     []byte          `json:"audio,omitempty"`
	Command   *action.Command `json:"command,omitempty"`
	Status    Status          `json:"status"`

	// Actions holds one entry per processed action, in order.
	Actions []ActionResult `json:"actions,omitempty"`

	// Discarded lists actions skipped after the batch stopped.
	Discarded []string `json:"discarded,omitempty"`

	ReauthRequired bool `json:"reauth_required,omitempty"`
}

// IntentResolver interprets an utterance.
type IntentResolver interface {
	Resolve(ctx context.Context, req intent.Request) (*intent.ResolvedIntent, error)
}

// Dispatcher executes canonical actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, req action.Request) action.Result
	Catalog() *action.Catalog

	// Offered lists the actions the platform can run; only these are
	// offered to the intent resolver.
	Offered(platform string) []string
}

// Config wires a Manager.
type Config struct {
	Store      turnctx.Store
	Resolver   IntentResolver
	Dispatcher Dispatcher

	// Synthesizer is optional; without it responses carry no audio.
	Synthesizer speech.Synthesizer

	// Interactions is optional.
	Interactions interaction.Logger

	// Locker is optional. Turns of a session are always serialized within
	// this Manager; a Locker extends that to every process sharing it.
	Locker SessionLocker

	HistoryLimit     int
	SynthesisTimeout time.Duration
	Logger           *slog.Logger
}

// SessionLocker serializes turns of a session across processes.
type SessionLocker interface {
	// Acquire blocks until the session is free or ctx is done.
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// Manager processes turns. It is safe for concurrent use; turns of the same
// session run one at a time. Without a Locker that holds only within one
// process, so replicas sharing a turn context store need one.
type Manager struct {
	store        turnctx.Store
	resolver     IntentResolver
	dispatcher   Dispatcher
	synth        speech.Synthesizer
	interactions interaction.Logger
	historyLimit int
	synthTimeout time.Duration
	logger       *slog.Logger
	locks        *sessionLocks
	locker       SessionLocker
	now          func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	var errs []string
	if cfg.Store == nil {
		errs = append(errs, "turn context store is required")
	}
	if cfg.Resolver == nil {
		errs = append(errs, "intent resolver is required")
	}
	if cfg.Dispatcher == nil {
		errs = append(errs, "dispatcher is required")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("dialog config: %s", strings.Join(errs, "; "))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:        cfg.Store,
		resolver:     cfg.Resolver,
		dispatcher:   cfg.Dispatcher,
		synth:        cfg.Synthesizer,
		interactions: cfg.Interactions,
		historyLimit: cfg.HistoryLimit,
		synthTimeout: cfg.SynthesisTimeout,
		logger:       cfg.Logger,
		locks:        newSessionLocks(),
		locker:       cfg.Locker,
		now:          time.Now,
	}, nil
}

// turn carries the state of one ProcessTurn call.
type turn struct {
	req      TurnRequest
	started  time.Time
	pending  *turnctx.PendingContext
	resolved *intent.ResolvedIntent
	resp     *TurnResponse

	finalAction string
	finalParams map[string]any
}

// ProcessTurn runs one turn. Action failures and missing parameters are
// reported in the response; an error is returned only when the turn could
// not be carried out, such as when the context store or the intent resolver
// fails or ctx ends.
func (m *Manager) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if req.SessionID == "" || strings.TrimSpace(req.Utterance) == "" {
		return nil, fmt.Errorf("%w: session id and utterance are required", ErrInvalidRequest)
	}

	release, err := m.locks.acquire(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("waiting for session %s: %w", req.SessionID, err)
	}
	defer release()
	if m.locker != nil {
		unlock, err := m.locker.Acquire(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("waiting for session %s: %w", req.SessionID, err)
		}
		defer unlock()
	}

	t := &turn{
		req:     req,
		started: m.now(),
		resp:    &TurnResponse{SessionID: req.SessionID, Status: StatusSuccess},
	}

	if err := m.start(ctx, t); err != nil {
		return nil, err
	}
	if err := m.resolve(ctx, t); err != nil {
		return nil, err
	}

	optimistic := speech.Start(ctx, m.synth, t.resolved.Reply, m.synthTimeout)
	t.resp.Reply = t.resolved.Reply

	if len(t.resolved.Actions) > 0 {
		if err := m.processActions(ctx, t); err != nil {
			optimistic.Cancel()
			return nil, err
		}
	}

	audio, err := m.rendezvous(ctx, optimistic, t.resp.Reply)
	if err != nil {
		return nil, err
	}
	t.resp.Audio = audio

	m.logInteraction(ctx, t)
	return t.resp, nil
}

// start consumes any pending context.
func (m *Manager) start(ctx context.Context, t *turn) error {
	pending, err := m.store.GetPendingContext(ctx, t.req.SessionID)
	if err != nil {
		return fmt.Errorf("reading pending context: %w", err)
	}
	t.pending = pending
	return nil
}

// resolve builds the prompt, calls the resolver once and records both sides
// of the exchange in history.
func (m *Manager) resolve(ctx context.Context, t *turn) error {
	history, err := m.store.GetHistory(ctx, t.req.SessionID, m.historyLimit)
	if err != nil {
		m.restorePending(ctx, t)
		return fmt.Errorf("reading history: %w", err)
	}

	resolved, err := m.resolver.Resolve(ctx, intent.Request{
		Utterance: t.req.Utterance,
		History:   history,
		Pending:   t.pending,
		Actions:   m.dispatcher.Offered(t.req.Platform),
	})
	if err != nil {
		m.restorePending(ctx, t)
		return err
	}
	t.resolved = resolved

	if err := m.store.AppendHistory(ctx, t.req.SessionID, turnctx.RoleUser, t.req.Utterance); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	if err := m.store.AppendHistory(ctx, t.req.SessionID, turnctx.RoleAssistant, resolved.Reply); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// restorePending puts back a consumed pending context when the turn fails
// before any action was considered.
func (m *Manager) restorePending(ctx context.Context, t *turn) {
	if t.pending == nil {
		return
	}
	if err := m.store.SavePendingContext(context.WithoutCancel(ctx), t.req.SessionID, *t.pending); err != nil {
		m.logger.Warn("failed to restore pending context", "session_id", t.req.SessionID, "error", err)
	}
}

// processActions dispatches resolved actions in order until one needs input
// or fails.
func (m *Manager) processActions(ctx context.Context, t *turn) error {
	var base map[string]any
	if t.pending != nil {
		base = t.pending.Parameters
	}

	for i, ra := range t.resolved.Actions {
		if !ra.Recognized() {
			m.logger.Info("dropping unrecognized action", "session_id", t.req.SessionID, "action", ra.Name)
			continue
		}

		params := mergeParams(base, ra.Parameters)
		res := m.dispatcher.Dispatch(ctx, action.Request{
			Platform:   t.req.Platform,
			AccountID:  t.req.AccountID,
			Action:     ra.Canonical,
			Parameters: params,
		})
		t.resp.Actions = append(t.resp.Actions, toActionResult(res))

		switch res.Outcome {
		case action.OutcomeNeedsInput:
			t.resp.Discarded = discarded(t.resolved.Actions[i+1:])
			return m.awaitInput(ctx, t, ra.Canonical, params, res.Missing)

		case action.OutcomeFailed:
			t.resp.Discarded = discarded(t.resolved.Actions[i+1:])
			t.resp.Status = StatusError
			t.resp.Reply = res.Message
			t.resp.ReauthRequired = res.Kind == action.KindAuthentication
			t.finalAction, t.finalParams = ra.Canonical, params
			m.logger.Warn("action failed",
				"session_id", t.req.SessionID, "platform", t.req.Platform,
				"action", ra.Canonical, "kind", res.Kind, "error", res.Err)
			return m.complete(ctx, t)

		default:
			t.finalAction, t.finalParams = ra.Canonical, params
			if res.Output.Reply != "" {
				t.resp.Reply = res.Output.Reply
			}
			if res.Output.Command != nil {
				t.resp.Command = res.Output.Command
			}
		}
	}
	return m.complete(ctx, t)
}

// awaitInput saves a pending context for one action and asks for the first
// missing parameter.
func (m *Manager) awaitInput(ctx context.Context, t *turn, name string, params map[string]any, missing []string) error {
	pc := turnctx.PendingContext{Action: name, Parameters: params, MissingParams: missing}
	if err := m.store.SavePendingContext(ctx, t.req.SessionID, pc); err != nil {
		return fmt.Errorf("saving pending context: %w", err)
	}
	t.resp.Status = StatusPendingInput
	t.resp.Reply = m.dispatcher.Catalog().Prompt(name, missing[0])
	t.finalAction, t.finalParams = name, params
	m.logger.Info("awaiting input",
		"session_id", t.req.SessionID, "action", name, "missing", missing)
	return nil
}

func (m *Manager) complete(ctx context.Context, t *turn) error {
	if err := m.store.Clear(ctx, t.req.SessionID); err != nil {
		return fmt.Errorf("clearing pending context: %w", err)
	}
	return nil
}

// rendezvous joins the optimistic synthesis. When the final reply differs
// the optimistic task is cancelled without waiting and a replacement is
// synthesized. Synthesis failures yield a text-only response.
func (m *Manager) rendezvous(ctx context.Context, optimistic *speech.Task, reply string) ([]byte, error) {
	task := optimistic
	if reply != optimistic.Text() {
		optimistic.Cancel()
		task = speech.Start(ctx, m.synth, reply, m.synthTimeout)
	}

	audio, err := task.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			task.Cancel()
			return nil, fmt.Errorf("waiting for speech: %w", ctx.Err())
		}
		m.logger.Warn("speech synthesis failed, replying with text only", "error", err)
		return nil, nil
	}
	return audio, nil
}

// logInteraction records the turn. Failures are logged and never returned.
func (m *Manager) logInteraction(ctx context.Context, t *turn) {
	if m.interactions == nil {
		return
	}

	record := interaction.NewRecord(t.req.SessionID)
	record.Timestamp = t.started.UTC()
	record.DurationMS = m.now().Sub(t.started).Milliseconds()
	record.Platform = t.req.Platform
	record.AccountID = t.req.AccountID
	record.Utterance = t.req.Utterance
	record.FinalAction = t.finalAction
	record.Parameters = interaction.SanitizeParameters(t.finalParams)
	record.Status = string(t.resp.Status)
	record.Reply = t.resp.Reply
	if t.resolved != nil && t.resolved.Raw != nil {
		if raw, err := json.Marshal(t.resolved.Raw); err == nil {
			record.NLUOutput = raw
		}
	}

	if err := m.interactions.Log(context.WithoutCancel(ctx), record); err != nil {
		m.logger.Warn("failed to log interaction", "session_id", t.req.SessionID, "error", err)
	}
}

// mergeParams overlays own onto base. Nil values in own do not erase base.
func mergeParams(base, own map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(own))
	maps.Copy(out, base)
	for k, v := range own {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

func toActionResult(res action.Result) ActionResult {
	return ActionResult{
		Action:  res.Action,
		Outcome: res.Outcome,
		Message: res.Message,
		Missing: res.Missing,
		Command: res.Output.Command,
		Payload: res.Output.Payload,
	}
}

func discarded(rest []intent.ResolvedAction) []string {
	var out []string
	for _, ra := range rest {
		name := ra.Canonical
		if name == "" {
			name = ra.Name
		}
		out = append(out, name)
	}
	return out
}
