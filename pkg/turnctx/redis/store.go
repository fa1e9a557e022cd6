// Package redis provides a Redis-backed turn context store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/sam/pkg/turnctx"
)

// DefaultKeyPrefix namespaces all keys written by the store.
const DefaultKeyPrefix = "sam"

// Config configures the Redis store.
type Config struct {
	turnctx.Config

	// KeyPrefix namespaces keys. Defaults to DefaultKeyPrefix.
	KeyPrefix string
}

// Store implements turnctx.Store on Redis. The pending context lives in a
// string key and history in a list key, each with its own expiry.
type Store struct {
	client goredis.UniversalClient
	cfg    Config
	closed atomic.Bool
}

// New creates a Redis store using client. The caller owns the client and
// closes it after the store.
func New(client goredis.UniversalClient, cfg Config) *Store {
	cfg.Config = cfg.Config.WithDefaults()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Store{client: client, cfg: cfg}
}

func (s *Store) pendingKey(sessionID string) string {
	return s.cfg.KeyPrefix + ":session:" + sessionID + ":pending"
}

func (s *Store) historyKey(sessionID string) string {
	return s.cfg.KeyPrefix + ":session:" + sessionID + ":history"
}

// GetPendingContext atomically reads and deletes the pending context.
func (s *Store) GetPendingContext(ctx context.Context, sessionID string) (*turnctx.PendingContext, error) {
	if s.closed.Load() {
		return nil, turnctx.ErrClosed
	}
	raw, err := s.client.GetDel(ctx, s.pendingKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for none
	}
	if err != nil {
		return nil, fmt.Errorf("reading pending context: %w", err)
	}

	var pc turnctx.PendingContext
	if err := json.Unmarshal(raw, &pc); err != nil {
		return nil, fmt.Errorf("decoding pending context: %w", err)
	}
	return &pc, nil
}

// SavePendingContext replaces the pending context and resets its expiry.
func (s *Store) SavePendingContext(ctx context.Context, sessionID string, pc turnctx.PendingContext) error {
	if s.closed.Load() {
		return turnctx.ErrClosed
	}
	raw, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("encoding pending context: %w", err)
	}
	if err := s.client.Set(ctx, s.pendingKey(sessionID), raw, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("saving pending context: %w", err)
	}
	return nil
}

// Clear removes the pending context.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return turnctx.ErrClosed
	}
	if err := s.client.Del(ctx, s.pendingKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clearing pending context: %w", err)
	}
	return nil
}

// AppendHistory pushes an entry, trims the list and refreshes its expiry in
// one transaction.
func (s *Store) AppendHistory(ctx context.Context, sessionID string, role turnctx.Role, text string) error {
	if s.closed.Load() {
		return turnctx.ErrClosed
	}
	raw, err := json.Marshal(turnctx.Entry{Role: role, Text: text})
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	key := s.historyKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.LTrim(ctx, key, int64(-s.cfg.HistoryCapacity), -1)
	pipe.Expire(ctx, key, s.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// GetHistory returns up to limit of the most recent entries, oldest first.
func (s *Store) GetHistory(ctx context.Context, sessionID string, limit int) ([]turnctx.Entry, error) {
	if s.closed.Load() {
		return nil, turnctx.ErrClosed
	}
	if limit <= 0 || limit > s.cfg.HistoryCapacity {
		limit = s.cfg.HistoryCapacity
	}

	items, err := s.client.LRange(ctx, s.historyKey(sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	entries := make([]turnctx.Entry, 0, len(items))
	for _, item := range items {
		var e turnctx.Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close marks the store closed. The client is left open for its owner.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// Verify interface compliance.
var _ turnctx.Store = (*Store)(nil)
