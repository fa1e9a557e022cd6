// Package turnctx provides per-session conversational state for the dialog
// engine: a bounded, TTL-refreshed history and at most one pending action
// awaiting more input from the user.
package turnctx

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

// Default store settings.
const (
	DefaultHistoryCapacity = 10
	DefaultTTL             = time.Hour
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("turn context store closed")

// Role identifies who produced a history entry.
type Role string

// History roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one line of conversation history.
type Entry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// PendingContext is the single under-specified action a session is waiting
// to complete.
type PendingContext struct {
	// Action is the canonical action name.
	Action string `json:"action"`

	// Parameters holds the values collected so far.
	Parameters map[string]any `json:"parameters"`

	// MissingParams lists required parameters still absent, in declaration order.
	MissingParams []string `json:"missing_params"`
}

// Store defines per-session turn context persistence.
//
// Implementations must allow turns for different sessions to proceed
// concurrently without serialising on a lock shared between sessions.
type Store interface {
	// GetPendingContext returns and deletes the session's pending context.
	// Returns nil, nil when there is none.
	GetPendingContext(ctx context.Context, sessionID string) (*PendingContext, error)

	// SavePendingContext replaces any pending context and resets its TTL.
	SavePendingContext(ctx context.Context, sessionID string, pc PendingContext) error

	// Clear removes any pending context.
	Clear(ctx context.Context, sessionID string) error

	// AppendHistory appends an entry, trims the oldest entries beyond the
	// store's capacity and refreshes the history TTL.
	AppendHistory(ctx context.Context, sessionID string, role Role, text string) error

	// GetHistory returns up to limit of the most recent entries, oldest first.
	// A limit <= 0 means the store's capacity.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]Entry, error)

	// Close releases resources held by the store.
	Close() error
}

// Config holds settings shared by store implementations.
type Config struct {
	HistoryCapacity int
	TTL             time.Duration
}

// WithDefaults returns c with zero fields replaced by the package defaults.
func (c Config) WithDefaults() Config {
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	return c
}

// clonePending copies pc so callers cannot mutate stored state.
func clonePending(pc PendingContext) PendingContext {
	return PendingContext{
		Action:        pc.Action,
		Parameters:    maps.Clone(pc.Parameters),
		MissingParams: slices.Clone(pc.MissingParams),
	}
}
