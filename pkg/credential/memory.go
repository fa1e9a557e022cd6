package credential

import (
	"context"
	"sync"
	"time"
)

type accountKey struct {
	platform  string
	accountID string
}

// MemoryRepository implements Repository in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	creds map[accountKey]Credential
	now   func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		creds: make(map[accountKey]Credential),
		now:   time.Now,
	}
}

// Get returns a copy of the stored credential.
func (r *MemoryRepository) Get(_ context.Context, platform, accountID string) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.creds[accountKey{platform, accountID}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCredential(c), nil
}

// Put stores a copy of cred.
func (r *MemoryRepository) Put(_ context.Context, cred *Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *copyCredential(*cred)
	c.UpdatedAt = r.now()
	r.creds[accountKey{cred.Platform, cred.AccountID}] = c
	return nil
}

// UpdateTokens writes refreshed token fields under a single lock.
func (r *MemoryRepository) UpdateTokens(_ context.Context, platform, accountID string, update TokenUpdate) error {
	return r.modify(platform, accountID, func(c *Credential) {
		c.AccessToken = update.AccessToken
		c.ExpiresAt = copyTime(update.ExpiresAt)
		if update.RefreshToken != "" {
			c.RefreshToken = update.RefreshToken
		}
		if update.Scope != "" {
			c.Scope = update.Scope
		}
		if update.TokenType != "" {
			c.TokenType = update.TokenType
		}
	})
}

// Revoke clears the refresh token.
func (r *MemoryRepository) Revoke(_ context.Context, platform, accountID string) error {
	return r.modify(platform, accountID, func(c *Credential) {
		c.RefreshToken = ""
	})
}

// ExpireAccessToken clears the access token expiry.
func (r *MemoryRepository) ExpireAccessToken(_ context.Context, platform, accountID string) error {
	return r.modify(platform, accountID, func(c *Credential) {
		c.ExpiresAt = nil
	})
}

// Delete removes a credential.
func (r *MemoryRepository) Delete(_ context.Context, platform, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.creds, accountKey{platform, accountID})
	return nil
}

func (r *MemoryRepository) modify(platform, accountID string, fn func(*Credential)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := accountKey{platform, accountID}
	c, ok := r.creds[key]
	if !ok {
		return ErrNotFound
	}
	fn(&c)
	c.UpdatedAt = r.now()
	r.creds[key] = c
	return nil
}

func copyCredential(c Credential) *Credential {
	c.ExpiresAt = copyTime(c.ExpiresAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Verify interface compliance.
var _ Repository = (*MemoryRepository)(nil)
