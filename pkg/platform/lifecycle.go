package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// hook is one named component's start and stop pair. Either side may be nil.
type hook struct {
	name  string
	start func(context.Context) error
	stop  func(context.Context) error
}

// Lifecycle manages the startup and shutdown of platform components.
// Components stop in reverse registration order.
type Lifecycle struct {
	mu     sync.Mutex
	logger *slog.Logger

	hooks   []hook
	running bool
}

// NewLifecycle creates a new lifecycle manager.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{logger: logger}
}

// Append registers a component. start and stop may be nil.
func (l *Lifecycle) Append(name string, start, stop func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook{name: name, start: start, stop: stop})
}

// OnStop registers a stop-only callback.
func (l *Lifecycle) OnStop(name string, stop func(context.Context) error) {
	l.Append(name, nil, stop)
}

// Closer is something that can be closed.
type Closer interface {
	Close() error
}

// RegisterCloser registers c to be closed on shutdown.
func (l *Lifecycle) RegisterCloser(name string, c Closer) {
	l.OnStop(name, func(context.Context) error {
		return c.Close()
	})
}

// Start runs start callbacks in order and stops at the first failure.
// Resources are owned from registration, so a failed Start is followed by
// Stop like any other shutdown.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return errors.New("lifecycle already started")
	}

	for _, h := range l.hooks {
		if h.start == nil {
			continue
		}
		if err := h.start(ctx); err != nil {
			return fmt.Errorf("starting %s: %w", h.name, err)
		}
	}

	l.running = true
	return nil
}

// Stop runs every stop callback once, in reverse order, whether or not
// Start ran or succeeded. Later calls are no-ops.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for i := len(l.hooks) - 1; i >= 0; i-- {
		h := l.hooks[i]
		if h.stop == nil {
			continue
		}
		if err := h.stop(ctx); err != nil {
			l.logger.Warn("lifecycle stop callback failed", "component", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	l.hooks = nil
	l.running = false

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}

// IsStarted returns whether the lifecycle has been started.
func (l *Lifecycle) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
