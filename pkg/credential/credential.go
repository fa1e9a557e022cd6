// Package credential manages per-account platform access tokens: storage,
// expiry checks, on-demand refresh and revocation when a refresh fails.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultRefreshBuffer is how long before expiry a token stops being reused.
const DefaultRefreshBuffer = 5 * time.Minute

// ErrNotFound is returned when no credential exists for an account.
var ErrNotFound = errors.New("credential not found")

// State is the lifecycle state of a credential.
type State string

// Credential states.
const (
	StateValid   State = "VALID"
	StateExpired State = "EXPIRED"
	StateRevoked State = "REVOKED"
)

// Credential is the stored token set for one platform account.
type Credential struct {
	Platform     string
	AccountID    string
	AccessToken  string
	ExpiresAt    *time.Time
	RefreshToken string
	Scope        string
	TokenType    string
	UpdatedAt    time.Time
}

// State reports the credential's state at now. A token within buffer of its
// expiry counts as expired.
func (c *Credential) State(now time.Time, buffer time.Duration) State {
	if c.AccessToken != "" && c.ExpiresAt != nil && now.Before(c.ExpiresAt.Add(-buffer)) {
		return StateValid
	}
	if c.RefreshToken == "" {
		return StateRevoked
	}
	return StateExpired
}

// LogValue implements slog.LogValuer. Token values are never emitted.
func (c *Credential) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("platform", c.Platform),
		slog.String("account_id", c.AccountID),
		slog.Bool("has_access_token", c.AccessToken != ""),
		slog.Bool("has_refresh_token", c.RefreshToken != ""),
	}
	if c.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("expires_at", *c.ExpiresAt))
	}
	return slog.GroupValue(attrs...)
}

// TokenUpdate carries the fields written after a successful refresh.
type TokenUpdate struct {
	AccessToken string
	ExpiresAt   *time.Time

	// RefreshToken replaces the stored refresh token when non-empty.
	RefreshToken string

	// Scope and TokenType replace stored values when non-empty.
	Scope     string
	TokenType string
}

// Repository persists credentials.
type Repository interface {
	// Get loads a credential. Returns ErrNotFound when absent.
	Get(ctx context.Context, platform, accountID string) (*Credential, error)

	// Put creates or replaces a credential, as when an account is linked.
	Put(ctx context.Context, cred *Credential) error

	// UpdateTokens atomically writes refreshed token fields.
	UpdateTokens(ctx context.Context, platform, accountID string, update TokenUpdate) error

	// Revoke clears the refresh token so the account needs a new grant.
	Revoke(ctx context.Context, platform, accountID string) error

	// ExpireAccessToken clears the access token expiry so the next
	// resolution refreshes.
	ExpireAccessToken(ctx context.Context, platform, accountID string) error

	// Delete removes a credential.
	Delete(ctx context.Context, platform, accountID string) error
}

// AuthenticationError reports that an account cannot be used until the user
// authenticates again.
type AuthenticationError struct {
	Platform  string
	AccountID string
	Err       error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("%s account %q: re-login required", e.Platform, e.AccountID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// UserMessage returns the text shown to the user.
func (e *AuthenticationError) UserMessage() string {
	return displayName(e.Platform) + " authentication expired. Re-login required."
}

func displayName(platform string) string {
	if platform == "" {
		return platform
	}
	return strings.ToUpper(platform[:1]) + platform[1:]
}
