// Package postgres provides PostgreSQL storage for interaction logs.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/sam/pkg/interaction"
)

const (
	defaultRetentionDays = 90
	defaultQueryCapacity = 100
	maxQueryCapacity     = 10000
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// recordColumns lists columns returned by interaction SELECT queries.
var recordColumns = []string{
	"id", "timestamp", "duration_ms", "session_id", "platform", "account_id",
	"utterance", "nlu_output", "final_action", "parameters", "status", "reply",
}

// Store implements interaction.Store using PostgreSQL.
type Store struct {
	db            *sql.DB
	retentionDays int
	cancel        context.CancelFunc
	done          chan struct{}
}

// Config configures the PostgreSQL interaction store.
type Config struct {
	RetentionDays int
}

// New creates a new PostgreSQL interaction store.
func New(db *sql.DB, cfg Config) *Store {
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Store{
		db:            db,
		retentionDays: cfg.RetentionDays,
	}
}

// Log records an interaction.
func (s *Store) Log(ctx context.Context, record interaction.Record) error {
	params, err := json.Marshal(record.Parameters)
	if err != nil {
		params = []byte("{}")
	}
	var nlu any
	if len(record.NLUOutput) > 0 {
		nlu = []byte(record.NLUOutput)
	}

	query, args, err := psq.Insert("interaction_logs").
		Columns(recordColumns...).
		Values(
			record.ID,
			record.Timestamp,
			record.DurationMS,
			record.SessionID,
			record.Platform,
			record.AccountID,
			record.Utterance,
			nlu,
			record.FinalAction,
			params,
			record.Status,
			record.Reply,
		).ToSql()
	if err != nil {
		return fmt.Errorf("building interaction insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting interaction log: %w", err)
	}
	return nil
}

// applyFilter adds filter conditions to a SELECT builder.
func applyFilter(qb sq.SelectBuilder, filter interaction.QueryFilter) sq.SelectBuilder {
	if filter.ID != "" {
		qb = qb.Where(sq.Eq{"id": filter.ID})
	}
	if filter.StartTime != nil {
		qb = qb.Where(sq.GtOrEq{"timestamp": *filter.StartTime})
	}
	if filter.EndTime != nil {
		qb = qb.Where(sq.LtOrEq{"timestamp": *filter.EndTime})
	}
	if filter.SessionID != "" {
		qb = qb.Where(sq.Eq{"session_id": filter.SessionID})
	}
	if filter.Platform != "" {
		qb = qb.Where(sq.Eq{"platform": filter.Platform})
	}
	if filter.AccountID != "" {
		qb = qb.Where(sq.Eq{"account_id": filter.AccountID})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": filter.Status})
	}
	return qb
}

// Query retrieves interaction records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter interaction.QueryFilter) ([]interaction.Record, error) {
	qb := applyFilter(psq.Select(recordColumns...).From("interaction_logs"), filter)
	qb = qb.OrderBy("timestamp DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building interaction query: %w", err)
	}

	return s.executeQuery(ctx, query, args, filter.Limit)
}

// Count returns the number of records matching the filter.
func (s *Store) Count(ctx context.Context, filter interaction.QueryFilter) (int, error) {
	qb := applyFilter(psq.Select("COUNT(*)").From("interaction_logs"), filter)

	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting interaction logs: %w", err)
	}
	return count, nil
}

func (s *Store) executeQuery(ctx context.Context, query string, args []any, limit int) ([]interaction.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying interaction logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	allocCap := defaultQueryCapacity
	if limit > 0 && limit <= maxQueryCapacity {
		allocCap = limit
	}
	records := make([]interaction.Record, 0, allocCap)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating interaction log rows: %w", err)
	}

	return records, nil
}

func scanRecord(rows *sql.Rows) (interaction.Record, error) {
	var record interaction.Record
	var nlu, params []byte
	var accountID, finalAction, reply sql.NullString

	err := rows.Scan(
		&record.ID,
		&record.Timestamp,
		&record.DurationMS,
		&record.SessionID,
		&record.Platform,
		&accountID,
		&record.Utterance,
		&nlu,
		&finalAction,
		&params,
		&record.Status,
		&reply,
	)
	if err != nil {
		return record, fmt.Errorf("scanning interaction log row: %w", err)
	}

	record.AccountID = accountID.String
	record.FinalAction = finalAction.String
	record.Reply = reply.String
	if len(nlu) > 0 {
		record.NLUOutput = json.RawMessage(nlu)
	}
	if len(params) > 0 {
		_ = json.Unmarshal(params, &record.Parameters)
	}

	return record, nil
}

// Close cancels the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Cleanup removes interaction logs older than the retention period.
func (s *Store) Cleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	query, args, err := psq.Delete("interaction_logs").Where(sq.Lt{"timestamp": cutoff}).ToSql()
	if err != nil {
		return fmt.Errorf("building cleanup query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cleaning up interaction logs: %w", err)
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically deletes
// old interaction logs. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
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

// Verify interface compliance.
var _ interaction.Store = (*Store)(nil)
