package interaction

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultBufferSize is the AsyncLogger queue length.
const DefaultBufferSize = 256

const defaultWriteTimeout = 5 * time.Second

// AsyncConfig configures an AsyncLogger.
type AsyncConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// AsyncLogger queues records and writes them on a background goroutine.
// Log never blocks; when the queue is full the record is dropped with a
// warning.
type AsyncLogger struct {
	next         Logger
	queue        chan Record
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncLogger starts a writer for next.
func NewAsyncLogger(next Logger, cfg AsyncConfig) *AsyncLogger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &AsyncLogger{
		next:         next,
		queue:        make(chan Record, cfg.BufferSize),
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger,
		done:         make(chan struct{}),
	}
	go a.run()
	return a
}

// Log enqueues record. It returns nil even when the record is dropped.
func (a *AsyncLogger) Log(_ context.Context, record Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn("interaction logger closed, dropping record", "id", record.ID)
		return nil
	}

	select {
	case a.queue <- record:
	default:
		a.logger.Warn("interaction log queue full, dropping record",
			"id", record.ID, "session_id", record.SessionID)
	}
	return nil
}

func (a *AsyncLogger) run() {
	defer close(a.done)
	for record := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
		if err := a.next.Log(ctx, record); err != nil {
			a.logger.Warn("failed to write interaction log",
				"id", record.ID, "session_id", record.SessionID, "error", err)
		}
		cancel()
	}
}

// Close drains queued records and closes the underlying logger.
func (a *AsyncLogger) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

var _ Logger = (*AsyncLogger)(nil)
