package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/sam/pkg/dialog"
)

const (
	// DefaultLockTTL bounds how long a crashed holder can block a session.
	DefaultLockTTL = 2 * time.Minute

	// DefaultLockRetry is the wait between acquisition attempts.
	DefaultLockRetry = 25 * time.Millisecond
)

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// LockConfig configures a Locker.
type LockConfig struct {
	// KeyPrefix namespaces keys. Defaults to DefaultKeyPrefix.
	KeyPrefix string

	// TTL expires a lock whose holder never released it.
	TTL time.Duration

	// RetryInterval is the wait between attempts while the lock is held.
	RetryInterval time.Duration
}

// Locker serializes turns of a session across processes sharing one Redis.
// Each lock is a SET NX PX key holding a random token.
type Locker struct {
	client goredis.UniversalClient
	cfg    LockConfig
}

// NewLocker creates a Locker using client.
func NewLocker(client goredis.UniversalClient, cfg LockConfig) *Locker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLockTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultLockRetry
	}
	return &Locker{client: client, cfg: cfg}
}

func (l *Locker) lockKey(sessionID string) string {
	return l.cfg.KeyPrefix + ":session:" + sessionID + ":lock"
}

// Acquire blocks until the session lock is taken or ctx is done. The
// returned release is safe to call more than once.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := l.lockKey(sessionID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		err := l.client.SetArgs(ctx, key, token, goredis.SetArgs{Mode: "NX", TTL: l.cfg.TTL}).Err()
		if err == nil {
			break
		}
		if !errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("taking session lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The turn's context may already be done; the unlock must still run.
			_ = unlockScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
		})
	}, nil
}

var _ dialog.SessionLocker = (*Locker)(nil)
