package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/internal/storage/sqlite"
)

func newTestManager(t *testing.T, ttl time.Duration, maxCached, window int) *Manager {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	db, err := sqlite.NewDB(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := sqlite.NewSessionStore(db, dbPath, ttl)
	return NewManager(store, ttl, maxCached, window)
}

func TestManager_RecordTurnCreatesSession(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 10, 20)
	ctx := context.Background()

	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "hello"))

	info, err := mgr.SessionInfo(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.MessageCount)
}

func TestManager_RecordTurnUpdatesCachedView(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 10, 20)
	ctx := context.Background()

	conv, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.Len())

	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "question"))
	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleAssistant, "answer"))

	window := conv.Window()
	require.Len(t, window, 2)
	assert.Equal(t, core.RoleUser, window[0].Role)
	assert.Equal(t, "answer", window[1].Content)
}

func TestManager_HydratesAfterEviction(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 1, 20)
	ctx := context.Background()

	_, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "question"))
	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleAssistant, "answer"))

	// Cache holds one entry; touching s2 evicts s1.
	_, err = mgr.GetOrCreateConversation(ctx, "s2")
	require.NoError(t, err)

	conv, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)
	window := conv.Window()
	require.Len(t, window, 2)
	assert.Equal(t, "question", window[0].Content)
	assert.Equal(t, "answer", window[1].Content)
}

func TestManager_WindowTrimsOldTurns(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 10, 2)
	ctx := context.Background()

	conv, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "one"))
	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleAssistant, "two"))
	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "three"))

	window := conv.Window()
	require.Len(t, window, 2)
	assert.Equal(t, "two", window[0].Content)
	assert.Equal(t, "three", window[1].Content)

	// Hydration honors the same window.
	mgr.Evict("s1")
	conv, err = mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)
	window = conv.Window()
	require.Len(t, window, 2)
	assert.Equal(t, "two", window[0].Content)
}

func TestManager_ExpiryCleanup(t *testing.T) {
	mgr := newTestManager(t, time.Second, 10, 20)
	ctx := context.Background()

	_, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "hello"))

	time.Sleep(1200 * time.Millisecond)

	deleted, err := mgr.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = mgr.SessionInfo(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	stats, err := mgr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveChains)
}

func TestManager_ExpiredCachedSessionRecreated(t *testing.T) {
	mgr := newTestManager(t, time.Second, 10, 20)
	ctx := context.Background()

	_, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "old question"))

	time.Sleep(1200 * time.Millisecond)

	// The cached entry is stale; the manager must drop it and start over.
	conv, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.Len())

	info, err := mgr.SessionInfo(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, info.MessageCount)
	assert.False(t, info.Expired)
}

func TestManager_ExpiredUncachedSessionNotResurrected(t *testing.T) {
	mgr := newTestManager(t, time.Second, 10, 20)
	ctx := context.Background()

	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "old question"))
	mgr.Evict("s1")

	time.Sleep(1200 * time.Millisecond)

	// Expired and gone from the cache: hydration must wipe the stale
	// history instead of refreshing the session around it.
	conv, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, conv.Window())

	info, err := mgr.SessionInfo(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, info.MessageCount)
	assert.False(t, info.Expired)
}

func TestManager_TurnLockSerializes(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 10, 20)

	end := mgr.BeginTurn("s1")

	acquired := make(chan struct{})
	go func() {
		endSecond := mgr.BeginTurn("s1")
		endSecond()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second turn acquired the session while the first held it")
	case <-time.After(100 * time.Millisecond):
	}

	end()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second turn never acquired the session after release")
	}
}

func TestManager_TurnLockSurvivesEviction(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 10, 20)
	ctx := context.Background()

	_, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)

	end := mgr.BeginTurn("s1")
	mgr.Evict("s1")

	// Eviction must not mint a fresh lock for the session.
	acquired := make(chan struct{})
	go func() {
		endSecond := mgr.BeginTurn("s1")
		endSecond()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second turn acquired the session while the first was mid-turn")
	case <-time.After(100 * time.Millisecond):
	}

	end()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second turn never acquired the session after release")
	}
}

func TestManager_TurnLocksIndependentPerSession(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 10, 20)

	end := mgr.BeginTurn("s1")
	defer end()

	acquired := make(chan struct{})
	go func() {
		endOther := mgr.BeginTurn("s2")
		endOther()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("unrelated session blocked on another session's turn")
	}
}

func TestManager_Invalidate(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 10, 20)
	ctx := context.Background()

	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "hello"))
	require.NoError(t, mgr.Invalidate(ctx, "s1"))

	_, err := mgr.SessionInfo(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Invalidating an absent session is fine.
	require.NoError(t, mgr.Invalidate(ctx, "s1"))
}

func TestManager_EvictKeepsStore(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 10, 20)
	ctx := context.Background()

	require.NoError(t, mgr.RecordTurn(ctx, "s1", core.RoleUser, "hello"))
	mgr.Evict("s1")

	info, err := mgr.SessionInfo(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.MessageCount)
}

func TestManager_Stats(t *testing.T) {
	mgr := newTestManager(t, time.Hour, 10, 20)
	ctx := context.Background()

	_, err := mgr.GetOrCreateConversation(ctx, "s1")
	require.NoError(t, err)
	_, err = mgr.GetOrCreateConversation(ctx, "s2")
	require.NoError(t, err)

	stats, err := mgr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 2, stats.ActiveChains)
}
