// Package interaction records one entry per conversational turn for later
// review.
package interaction

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger records interactions.
type Logger interface {
	// Log records one interaction.
	Log(ctx context.Context, record Record) error

	// Close releases resources.
	Close() error
}

// Store is a Logger that can be queried.
type Store interface {
	Logger

	// Query retrieves records matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Record, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int, error)
}

// Record is one logged turn.
type Record struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	DurationMS  int64           `json:"duration_ms"`
	SessionID   string          `json:"session_id"`
	Platform    string          `json:"platform"`
	AccountID   string          `json:"account_id,omitempty"`
	Utterance   string          `json:"utterance"`
	NLUOutput   json.RawMessage `json:"nlu_output,omitempty"`
	FinalAction string          `json:"final_action,omitempty"`
	Parameters  map[string]any  `json:"parameters,omitempty"`
	Status      string          `json:"status"`
	Reply       string          `json:"reply,omitempty"`
}

// NewRecord creates a record with a fresh id and the current time.
func NewRecord(sessionID string) Record {
	return Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
	}
}

// QueryFilter defines criteria for querying records.
type QueryFilter struct {
	ID        string
	SessionID string
	Platform  string
	AccountID string
	Status    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

var sensitiveFragments = []string{"token", "secret", "password", "key", "authorization", "credential"}

// SanitizeParameters returns a copy of params with sensitive values redacted.
func SanitizeParameters(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		if isSensitive(k) {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
