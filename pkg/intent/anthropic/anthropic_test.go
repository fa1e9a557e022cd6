package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sam/pkg/intent"
)

func message(blocks ...map[string]any) map[string]any {
	return map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-test",
		"content":       blocks,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 1, "output_tokens": 1},
	}
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

func newServer(t *testing.T, status int, body any, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOracleResolve(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, http.StatusOK, message(
		textBlock(`{"actions":[{"action":"pause_song"},`),
		textBlock(`{"action":"like_song"}],"reply":"Done"}`),
	), &seen)

	o := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "claude-test"})
	res, err := o.Resolve(context.Background(), "pause and like it", []string{"pause_song", "like_song"})
	require.NoError(t, err)

	require.Len(t, res.Actions, 2)
	assert.Equal(t, "pause_song", res.Actions[0].Name)
	assert.Equal(t, "like_song", res.Actions[1].Name)
	assert.Equal(t, "Done", res.Reply)

	assert.Equal(t, "claude-test", seen["model"])
	system, ok := seen["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	block, _ := system[0].(map[string]any)
	assert.Contains(t, block["text"], "Available actions: pause_song, like_song")
}

func TestOracleInvalidContent(t *testing.T) {
	srv := newServer(t, http.StatusOK, message(textBlock("no json here")), nil)
	o := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/"})
	_, err := o.Resolve(context.Background(), "x", nil)
	assert.ErrorIs(t, err, intent.ErrInvalidOutput)
}

func TestOracleAPIError(t *testing.T) {
	srv := newServer(t, http.StatusBadRequest, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "invalid_request_error", "message": "bad"},
	}, nil)
	o := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/"})
	_, err := o.Resolve(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic api error")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, string(DefaultModel), cfg.Model)
	assert.Equal(t, int64(DefaultMaxTokens), cfg.MaxTokens)
}

func TestOracleServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`))
	}))
	defer srv.Close()

	o := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/"})
	_, err := o.Resolve(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
