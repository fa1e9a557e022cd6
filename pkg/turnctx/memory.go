package turnctx

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// sessionState holds one session's context. Each session has its own lock.
type sessionState struct {
	mu             sync.Mutex
	pending        *PendingContext
	pendingExpires time.Time
	history        []Entry
	historyExpires time.Time
	removed        bool
}

func (st *sessionState) expired(now time.Time) bool {
	return (st.pending == nil || now.After(st.pendingExpires)) &&
		(len(st.history) == 0 || now.After(st.historyExpires))
}

// MemoryStore implements Store in process memory with TTL-based expiration.
type MemoryStore struct {
	sessions sync.Map // session id -> *sessionState
	cfg      Config
	now      func() time.Time
	closed   atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source, used by tests to move past TTLs.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an in-memory turn context store.
func NewMemoryStore(cfg Config, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		cfg: cfg.WithDefaults(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock returns the session's state with its mutex held. When create is false
// and the session is unknown it returns false. States removed by Cleanup are
// never returned.
func (s *MemoryStore) lock(sessionID string, create bool) (*sessionState, bool) {
	for {
		var v any
		if create {
			v, _ = s.sessions.LoadOrStore(sessionID, &sessionState{})
		} else {
			var ok bool
			if v, ok = s.sessions.Load(sessionID); !ok {
				return nil, false
			}
		}
		st := v.(*sessionState) //nolint:errcheck,forcetypeassert // map only holds *sessionState
		st.mu.Lock()
		if !st.removed {
			return st, true
		}
		st.mu.Unlock()
	}
}

// GetPendingContext returns and removes the session's pending context.
func (s *MemoryStore) GetPendingContext(_ context.Context, sessionID string) (*PendingContext, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	st, ok := s.lock(sessionID, false)
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for none
	}
	defer st.mu.Unlock()

	pc := st.pending
	st.pending = nil
	if pc == nil || s.now().After(st.pendingExpires) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for none
	}
	return pc, nil
}

// SavePendingContext replaces the session's pending context.
func (s *MemoryStore) SavePendingContext(_ context.Context, sessionID string, pc PendingContext) error {
	if s.closed.Load() {
		return ErrClosed
	}
	st, _ := s.lock(sessionID, true)
	defer st.mu.Unlock()

	saved := clonePending(pc)
	st.pending = &saved
	st.pendingExpires = s.now().Add(s.cfg.TTL)
	return nil
}

// Clear removes any pending context for the session.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	st, ok := s.lock(sessionID, false)
	if !ok {
		return nil
	}
	defer st.mu.Unlock()

	st.pending = nil
	return nil
}

// AppendHistory appends an entry, keeping at most the configured capacity.
func (s *MemoryStore) AppendHistory(_ context.Context, sessionID string, role Role, text string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	st, _ := s.lock(sessionID, true)
	defer st.mu.Unlock()

	now := s.now()
	if now.After(st.historyExpires) {
		st.history = nil
	}
	st.history = append(st.history, Entry{Role: role, Text: text})
	if over := len(st.history) - s.cfg.HistoryCapacity; over > 0 {
		st.history = slices.Clone(st.history[over:])
	}
	st.historyExpires = now.Add(s.cfg.TTL)
	return nil
}

// GetHistory returns up to limit of the most recent entries, oldest first.
func (s *MemoryStore) GetHistory(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 || limit > s.cfg.HistoryCapacity {
		limit = s.cfg.HistoryCapacity
	}
	st, ok := s.lock(sessionID, false)
	if !ok {
		return []Entry{}, nil
	}
	defer st.mu.Unlock()

	if s.now().After(st.historyExpires) {
		st.history = nil
		return []Entry{}, nil
	}
	start := max(len(st.history)-limit, 0)
	return slices.Clone(st.history[start:]), nil
}

// Cleanup drops sessions whose pending context and history have both expired.
func (s *MemoryStore) Cleanup(_ context.Context) error {
	now := s.now()
	s.sessions.Range(func(key, value any) bool {
		st := value.(*sessionState) //nolint:errcheck,forcetypeassert // map only holds *sessionState
		st.mu.Lock()
		if st.expired(now) {
			st.removed = true
			s.sessions.CompareAndDelete(key, value)
		}
		st.mu.Unlock()
		return true
	})
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired sessions. It stops when Close is called.
func (s *MemoryStore) StartCleanupRoutine(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Cleanup(ctx)
			}
		}
	}()
}

// Close stops the cleanup routine. Later operations return ErrClosed.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
