package turnctx

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	memTestTTL        = 5 * time.Minute
	memTestGoroutines = 10
	memTestIterations = 50
	memTestSess1      = "sess-1"
	memTestSess2      = "sess-2"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemoryStore(t *testing.T, clock *fakeClock) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(Config{TTL: memTestTTL, HistoryCapacity: 3}, WithClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMemoryStore_PendingReadOnce(t *testing.T) {
	store := newTestMemoryStore(t, newFakeClock())
	ctx := context.Background()

	pc := PendingContext{
		Action:        "play_song",
		Parameters:    map[string]any{"artist": "Beyonce"},
		MissingParams: []string{"song_name"},
	}
	require.NoError(t, store.SavePendingContext(ctx, memTestSess1, pc))

	got, err := store.GetPendingContext(ctx, memTestSess1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pc, *got)

	again, err := store.GetPendingContext(ctx, memTestSess1)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestMemoryStore_SaveCopiesInput(t *testing.T) {
	store := newTestMemoryStore(t, newFakeClock())
	ctx := context.Background()

	params := map[string]any{"artist": "Beyonce"}
	require.NoError(t, store.SavePendingContext(ctx, memTestSess1, PendingContext{Action: "play_song", Parameters: params}))
	params["artist"] = "changed"

	got, err := store.GetPendingContext(ctx, memTestSess1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Beyonce", got.Parameters["artist"])
}

func TestMemoryStore_SaveOverwrites(t *testing.T) {
	store := newTestMemoryStore(t, newFakeClock())
	ctx := context.Background()

	require.NoError(t, store.SavePendingContext(ctx, memTestSess1, PendingContext{Action: "play_song"}))
	require.NoError(t, store.SavePendingContext(ctx, memTestSess1, PendingContext{Action: "create_playlist"}))

	got, err := store.GetPendingContext(ctx, memTestSess1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "create_playlist", got.Action)
}

func TestMemoryStore_Clear(t *testing.T) {
	store := newTestMemoryStore(t, newFakeClock())
	ctx := context.Background()

	require.NoError(t, store.Clear(ctx, "unknown"))
	require.NoError(t, store.SavePendingContext(ctx, memTestSess1, PendingContext{Action: "play_song"}))
	require.NoError(t, store.Clear(ctx, memTestSess1))

	got, err := store.GetPendingContext(ctx, memTestSess1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_PendingExpires(t *testing.T) {
	clock := newFakeClock()
	store := newTestMemoryStore(t, clock)
	ctx := context.Background()

	require.NoError(t, store.SavePendingContext(ctx, memTestSess1, PendingContext{Action: "play_song"}))
	clock.Advance(memTestTTL + time.Second)

	got, err := store.GetPendingContext(ctx, memTestSess1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_HistoryTrimsOldest(t *testing.T) {
	store := newTestMemoryStore(t, newFakeClock())
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, store.AppendHistory(ctx, memTestSess1, RoleUser, fmt.Sprintf("msg-%d", i)))
	}

	got, err := store.GetHistory(ctx, memTestSess1, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "msg-2", got[0].Text)
	assert.Equal(t, "msg-4", got[2].Text)

	limited, err := store.GetHistory(ctx, memTestSess1, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "msg-3", limited[0].Text)
}

func TestMemoryStore_HistorySlidingTTL(t *testing.T) {
	clock := newFakeClock()
	store := newTestMemoryStore(t, clock)
	ctx := context.Background()

	require.NoError(t, store.AppendHistory(ctx, memTestSess1, RoleUser, "first"))
	clock.Advance(memTestTTL - time.Second)
	require.NoError(t, store.AppendHistory(ctx, memTestSess1, RoleAssistant, "second"))
	clock.Advance(memTestTTL - time.Second)

	got, err := store.GetHistory(ctx, memTestSess1, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	clock.Advance(2 * time.Second)
	got, err = store.GetHistory(ctx, memTestSess1, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_SessionIsolation(t *testing.T) {
	store := newTestMemoryStore(t, newFakeClock())
	ctx := context.Background()

	require.NoError(t, store.SavePendingContext(ctx, memTestSess1, PendingContext{Action: "play_song", Parameters: map[string]any{"artist": "A"}}))
	require.NoError(t, store.SavePendingContext(ctx, memTestSess2, PendingContext{Action: "play_song", Parameters: map[string]any{"artist": "B"}}))
	require.NoError(t, store.AppendHistory(ctx, memTestSess1, RoleUser, "only one"))

	h2, err := store.GetHistory(ctx, memTestSess2, 0)
	require.NoError(t, err)
	assert.Empty(t, h2)

	p1, err := store.GetPendingContext(ctx, memTestSess1)
	require.NoError(t, err)
	require.NotNil(t, p1)
	assert.Equal(t, "A", p1.Parameters["artist"])

	p2, err := store.GetPendingContext(ctx, memTestSess2)
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Equal(t, "B", p2.Parameters["artist"])
}

func TestMemoryStore_ConcurrentSessions(t *testing.T) {
	store := NewMemoryStore(Config{TTL: memTestTTL, HistoryCapacity: memTestIterations})
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := range memTestGoroutines {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", g)
			for i := range memTestIterations {
				_ = store.AppendHistory(ctx, id, RoleUser, fmt.Sprintf("%d", i))
			}
		}(g)
	}
	wg.Wait()

	for g := range memTestGoroutines {
		got, err := store.GetHistory(ctx, fmt.Sprintf("sess-%d", g), 0)
		require.NoError(t, err)
		assert.Len(t, got, memTestIterations)
	}
}

func TestMemoryStore_CleanupRemovesExpired(t *testing.T) {
	clock := newFakeClock()
	store := newTestMemoryStore(t, clock)
	ctx := context.Background()

	require.NoError(t, store.AppendHistory(ctx, memTestSess1, RoleUser, "hi"))
	clock.Advance(memTestTTL + time.Second)
	require.NoError(t, store.AppendHistory(ctx, memTestSess2, RoleUser, "hello"))

	require.NoError(t, store.Cleanup(ctx))

	_, ok := store.sessions.Load(memTestSess1)
	assert.False(t, ok)
	_, ok = store.sessions.Load(memTestSess2)
	assert.True(t, ok)
}

func TestMemoryStore_CleanupRoutineStopsOnClose(t *testing.T) {
	store := NewMemoryStore(Config{})
	store.StartCleanupRoutine(10 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, store.Close())

	_, err := store.GetHistory(context.Background(), memTestSess1, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.AppendHistory(context.Background(), memTestSess1, RoleUser, "x"), ErrClosed)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultHistoryCapacity, cfg.HistoryCapacity)
	assert.Equal(t, DefaultTTL, cfg.TTL)

	custom := Config{HistoryCapacity: 4, TTL: time.Minute}.WithDefaults()
	assert.Equal(t, 4, custom.HistoryCapacity)
	assert.Equal(t, time.Minute, custom.TTL)
}
