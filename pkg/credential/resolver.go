package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 10 * time.Second

// Token is the result of a refresh grant.
type Token struct {
	AccessToken string

	// ExpiresAt is zero when the provider did not report an expiry.
	ExpiresAt time.Time

	// RefreshToken is set when the provider rotated it.
	RefreshToken string

	Scope     string
	TokenType string
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Buffer is subtracted from a token's expiry before it is reused.
	Buffer time.Duration

	// RefreshTimeout bounds each refresh call.
	RefreshTimeout time.Duration

	Logger *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Resolver hands out usable access tokens, refreshing expired ones once and
// revoking accounts whose refresh fails.
type Resolver struct {
	repo Repository
	cfg  ResolverConfig

	mu         sync.RWMutex
	refreshers map[string]Refresher

	group singleflight.Group
}

// NewResolver creates a Resolver over repo.
func NewResolver(repo Repository, cfg ResolverConfig) *Resolver {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultRefreshBuffer
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{
		repo:       repo,
		cfg:        cfg,
		refreshers: make(map[string]Refresher),
	}
}

// SetRefresher registers the refresher used for platform.
func (r *Resolver) SetRefresher(platform string, ref Refresher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshers[platform] = ref
}

func (r *Resolver) refresher(platform string) (Refresher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.refreshers[platform]
	return ref, ok
}

// ResolveAccessToken returns a usable access token for the account. A stored
// token outside the refresh buffer is returned without a network call.
// Otherwise exactly one refresh is attempted; on failure the account is
// revoked and an *AuthenticationError is returned.
func (r *Resolver) ResolveAccessToken(ctx context.Context, platform, accountID string) (string, error) {
	cred, err := r.load(ctx, platform, accountID)
	if err != nil {
		return "", err
	}
	if cred.State(r.cfg.Now(), r.cfg.Buffer) == StateValid {
		return cred.AccessToken, nil
	}

	// Concurrent resolutions for one account share a single refresh.
	v, err, _ := r.group.Do(platform+"\x00"+accountID, func() (any, error) {
		return r.refresh(ctx, platform, accountID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil //nolint:errcheck,forcetypeassert // refresh returns string
}

// Invalidate marks the account's access token expired so the next
// resolution refreshes it.
func (r *Resolver) Invalidate(ctx context.Context, platform, accountID string) error {
	if err := r.repo.ExpireAccessToken(ctx, platform, accountID); err != nil {
		return fmt.Errorf("invalidating access token: %w", err)
	}
	r.cfg.Logger.Info("access token invalidated", "platform", platform, "account_id", accountID)
	return nil
}

func (r *Resolver) load(ctx context.Context, platform, accountID string) (*Credential, error) {
	cred, err := r.repo.Get(ctx, platform, accountID)
	if errors.Is(err, ErrNotFound) {
		return nil, &AuthenticationError{Platform: platform, AccountID: accountID, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	return cred, nil
}

func (r *Resolver) refresh(ctx context.Context, platform, accountID string) (string, error) {
	// Reload: another caller may have refreshed while this one waited.
	cred, err := r.load(ctx, platform, accountID)
	if err != nil {
		return "", err
	}
	now := r.cfg.Now()
	switch cred.State(now, r.cfg.Buffer) {
	case StateValid:
		return cred.AccessToken, nil
	case StateRevoked:
		return "", &AuthenticationError{Platform: platform, AccountID: accountID, Err: errors.New("no refresh token")}
	case StateExpired:
	}

	ref, ok := r.refresher(platform)
	if !ok {
		return "", fmt.Errorf("no token refresher for platform %q", platform)
	}

	// The refresh outlives a cancelled caller so a rotated token is not lost.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.RefreshTimeout)
	defer cancel()

	tok, err := ref.Refresh(rctx, cred.RefreshToken)

	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.RefreshTimeout)
	defer wcancel()

	if err != nil {
		r.cfg.Logger.Warn("token refresh failed, revoking", "credential", cred, "error", err)
		if rerr := r.repo.Revoke(wctx, platform, accountID); rerr != nil {
			r.cfg.Logger.Error("revoking credential", "credential", cred, "error", rerr)
		}
		return "", &AuthenticationError{Platform: platform, AccountID: accountID, Err: err}
	}

	update := TokenUpdate{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        tok.Scope,
		TokenType:    tok.TokenType,
	}
	if !tok.ExpiresAt.IsZero() {
		exp := tok.ExpiresAt
		update.ExpiresAt = &exp
	}
	if err := r.repo.UpdateTokens(wctx, platform, accountID, update); err != nil {
		return "", fmt.Errorf("persisting refreshed token: %w", err)
	}

	r.cfg.Logger.Debug("access token refreshed",
		"platform", platform, "account_id", accountID, "expires_at", tok.ExpiresAt,
		"rotated", tok.RefreshToken != "" && tok.RefreshToken != cred.RefreshToken)
	return tok.AccessToken, nil
}
