// Package postgres provides PostgreSQL storage for platform credentials.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/sam/pkg/credential"
)

const tableName = "platform_accounts"

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// accountColumns lists columns returned by SELECT queries, in scan order.
var accountColumns = []string{
	"platform", "account_id", "access_token", "expires_at",
	"refresh_token", "scope", "token_type", "updated_at",
}

// Store implements credential.Repository using PostgreSQL. Token columns are
// sealed when a Sealer is configured.
type Store struct {
	db     *sql.DB
	sealer credential.Sealer
	now    func() time.Time
}

// New creates a PostgreSQL credential store. sealer may be nil, in which case
// tokens are stored as given.
func New(db *sql.DB, sealer credential.Sealer) *Store {
	return &Store{db: db, sealer: sealer, now: time.Now}
}

// Get loads a credential.
func (s *Store) Get(ctx context.Context, platform, accountID string) (*credential.Credential, error) {
	query, args, err := psq.Select(accountColumns...).
		From(tableName).
		Where(sq.Eq{"platform": platform, "account_id": accountID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building credential query: %w", err)
	}

	var (
		cred            credential.Credential
		access, refresh sql.NullString
		expiresAt       sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&cred.Platform,
		&cred.AccountID,
		&access,
		&expiresAt,
		&refresh,
		&cred.Scope,
		&cred.TokenType,
		&cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}

	if cred.AccessToken, err = s.open(access); err != nil {
		return nil, err
	}
	if cred.RefreshToken, err = s.open(refresh); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		cred.ExpiresAt = &t
	}
	return &cred, nil
}

// Put inserts or replaces a credential.
func (s *Store) Put(ctx context.Context, cred *credential.Credential) error {
	access, err := s.seal(cred.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.seal(cred.RefreshToken)
	if err != nil {
		return err
	}

	query, args, err := psq.Insert(tableName).
		Columns(accountColumns...).
		Values(cred.Platform, cred.AccountID, access, nullTime(cred.ExpiresAt),
			refresh, cred.Scope, cred.TokenType, s.now()).
		Suffix(`ON CONFLICT (platform, account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			expires_at = EXCLUDED.expires_at,
			refresh_token = EXCLUDED.refresh_token,
			scope = EXCLUDED.scope,
			token_type = EXCLUDED.token_type,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building credential upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// UpdateTokens writes refreshed token fields in a single UPDATE.
func (s *Store) UpdateTokens(ctx context.Context, platform, accountID string, update credential.TokenUpdate) error {
	access, err := s.seal(update.AccessToken)
	if err != nil {
		return err
	}

	ub := psq.Update(tableName).
		Set("access_token", access).
		Set("expires_at", nullTime(update.ExpiresAt)).
		Set("updated_at", s.now())
	if update.RefreshToken != "" {
		refresh, err := s.seal(update.RefreshToken)
		if err != nil {
			return err
		}
		ub = ub.Set("refresh_token", refresh)
	}
	if update.Scope != "" {
		ub = ub.Set("scope", update.Scope)
	}
	if update.TokenType != "" {
		ub = ub.Set("token_type", update.TokenType)
	}

	return s.execUpdate(ctx, ub, platform, accountID, "updating tokens")
}

// Revoke clears the refresh token.
func (s *Store) Revoke(ctx context.Context, platform, accountID string) error {
	ub := psq.Update(tableName).
		Set("refresh_token", nil).
		Set("updated_at", s.now())
	return s.execUpdate(ctx, ub, platform, accountID, "revoking credential")
}

// ExpireAccessToken clears the access token expiry.
func (s *Store) ExpireAccessToken(ctx context.Context, platform, accountID string) error {
	ub := psq.Update(tableName).
		Set("expires_at", nil).
		Set("updated_at", s.now())
	return s.execUpdate(ctx, ub, platform, accountID, "expiring access token")
}

// Delete removes a credential.
func (s *Store) Delete(ctx context.Context, platform, accountID string) error {
	query, args, err := psq.Delete(tableName).
		Where(sq.Eq{"platform": platform, "account_id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building credential delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

func (s *Store) execUpdate(ctx context.Context, ub sq.UpdateBuilder, platform, accountID, op string) error {
	query, args, err := ub.Where(sq.Eq{"platform": platform, "account_id": accountID}).ToSql()
	if err != nil {
		return fmt.Errorf("building %s: %w", op, err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return credential.ErrNotFound
	}
	return nil
}

// seal returns the stored form of a token; empty tokens become NULL.
func (s *Store) seal(token string) (sql.NullString, error) {
	if token == "" {
		return sql.NullString{}, nil
	}
	if s.sealer == nil {
		return sql.NullString{String: token, Valid: true}, nil
	}
	sealed, err := s.sealer.Seal(token)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("sealing token: %w", err)
	}
	return sql.NullString{String: sealed, Valid: true}, nil
}

func (s *Store) open(v sql.NullString) (string, error) {
	if !v.Valid || v.String == "" {
		return "", nil
	}
	if s.sealer == nil {
		return v.String, nil
	}
	plain, err := s.sealer.Open(v.String)
	if err != nil {
		return "", fmt.Errorf("opening token: %w", err)
	}
	return plain, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Verify interface compliance.
var _ credential.Repository = (*Store)(nil)
