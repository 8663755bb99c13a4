package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/pkg/log"
)

// Stats merges store-level counters with the in-memory cache size.
type Stats struct {
	core.StoreStats
	ActiveChains int `json:"active_chains"`
}

// Manager owns session lifecycle: TTL refresh on access, expiry, and the
// bounded cache of live conversations. The store stays authoritative; the
// cache only saves re-hydration work.
type Manager struct {
	store  core.SessionRepository
	cache  *conversationCache
	ttl    time.Duration
	window int

	turnMu sync.Mutex
	turns  map[string]*turnLock
}

func NewManager(store core.SessionRepository, ttl time.Duration, maxCached, window int) *Manager {
	return &Manager{
		store:  store,
		cache:  newConversationCache(maxCached),
		ttl:    ttl,
		window: window,
		turns:  make(map[string]*turnLock),
	}
}

// turnLock serializes whole turns for one session. Refcounted so the entry
// lives as long as anyone holds or waits for it, independent of the
// conversation cache.
type turnLock struct {
	mu   sync.Mutex
	refs int
}

// BeginTurn blocks until the session's turn lock is held and returns the
// release function. The lock is keyed by session id, not by the cached
// conversation, so eviction cannot let two turns on one session interleave.
func (m *Manager) BeginTurn(sessionID string) func() {
	m.turnMu.Lock()
	l, ok := m.turns[sessionID]
	if !ok {
		l = &turnLock{}
		m.turns[sessionID] = l
	}
	l.refs++
	m.turnMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.turnMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.turns, sessionID)
		}
		m.turnMu.Unlock()
	}
}

// GetOrCreateConversation returns the live conversation for sessionID,
// hydrating it from the store when absent from the cache. A cached entry
// whose session has expired is dropped and recreated fresh.
func (m *Manager) GetOrCreateConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	logger := log.FromCtx(ctx)

	if conv, ok := m.cache.Get(sessionID); ok {
		info, err := m.store.GetSessionInfo(ctx, sessionID)
		switch {
		case err == nil && !info.Expired:
			if err := m.store.CreateOrTouch(ctx, sessionID, m.ttl); err != nil {
				return nil, err
			}
			return conv, nil
		case err == nil && info.Expired:
			// Handled below together with the uncached expired case.
			m.cache.Remove(sessionID)
		case errors.Is(err, core.ErrNotFound):
			// Session vanished underneath the cache (cleanup or explicit
			// delete); fall through and start fresh.
			m.cache.Remove(sessionID)
		default:
			return nil, err
		}
	}

	// An expired session that the sweep has not collected yet must not come
	// back with its old history; wipe it before recreating.
	info, err := m.store.GetSessionInfo(ctx, sessionID)
	switch {
	case err == nil && info.Expired:
		logger.Debug().Str("session_id", sessionID).Msg("expired session found, recreating")
		if err := m.store.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
	case err != nil && !errors.Is(err, core.ErrNotFound):
		return nil, err
	}

	if err := m.store.CreateOrTouch(ctx, sessionID, m.ttl); err != nil {
		return nil, err
	}

	messages, err := m.store.GetMessages(ctx, sessionID, m.window)
	if err != nil {
		return nil, err
	}

	conv := newConversation(sessionID, m.window, messages)
	if evicted, ok := m.cache.Put(sessionID, conv); ok {
		logger.Debug().Str("evicted", evicted).Msg("conversation cache full, evicted least recently used")
	}
	return conv, nil
}

// RecordTurn durably appends one turn half and keeps the cached view in
// sync. The session is created first, so this never fails with not-found.
func (m *Manager) RecordTurn(ctx context.Context, sessionID, role, content string) error {
	if err := m.store.CreateOrTouch(ctx, sessionID, m.ttl); err != nil {
		return err
	}
	if err := m.store.AppendMessage(ctx, sessionID, role, content); err != nil {
		return err
	}

	if conv, ok := m.cache.Get(sessionID); ok {
		conv.Append(core.Message{Role: role, Content: content, Timestamp: time.Now()})
	}
	return nil
}

// Evict drops the cached view only; persisted turns are untouched. The next
// request rebuilds the conversation from the store.
func (m *Manager) Evict(sessionID string) {
	m.cache.Remove(sessionID)
}

// Invalidate removes the session from cache and store, used for explicit
// clear requests.
func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	m.cache.Remove(sessionID)
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	log.FromCtx(ctx).Info().Str("session_id", sessionID).Msg("session cleared")
	return nil
}

// RunCleanup deletes expired sessions from the store and purges cache
// entries whose sessions are gone. Holds no lock across store calls, so
// in-flight requests on other sessions proceed undisturbed.
func (m *Manager) RunCleanup(ctx context.Context) (int, error) {
	deleted, err := m.store.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}

	for _, id := range m.cache.Keys() {
		if _, err := m.store.GetSessionInfo(ctx, id); errors.Is(err, core.ErrNotFound) {
			m.cache.Remove(id)
		}
	}
	return deleted, nil
}

func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	storeStats, err := m.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{StoreStats: storeStats, ActiveChains: m.cache.Len()}, nil
}

func (m *Manager) ListActive(ctx context.Context) ([]string, error) {
	return m.store.ListActive(ctx)
}

func (m *Manager) SessionInfo(ctx context.Context, sessionID string) (core.SessionInfo, error) {
	return m.store.GetSessionInfo(ctx, sessionID)
}
