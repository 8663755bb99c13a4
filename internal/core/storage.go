package core

import (
	"context"
	"time"
)

// SessionRepository is the durable store behind the session lifecycle
// manager. All operations are safe for concurrent use; writes to the same
// session are serialized by the underlying store.
type SessionRepository interface {
	// CreateOrTouch inserts the session if absent, otherwise refreshes
	// last_accessed and recomputes expires_at. Idempotent.
	CreateOrTouch(ctx context.Context, sessionID string, ttl time.Duration) error

	// AppendMessage inserts a message and bumps the session's counters.
	// Returns ErrNotFound if the session does not exist.
	AppendMessage(ctx context.Context, sessionID, role, content string) error

	// GetMessages returns messages in ascending timestamp order. A positive
	// limit caps the result to the most recent entries (the tail).
	GetMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// GetSessionInfo returns session metadata or ErrNotFound.
	GetSessionInfo(ctx context.Context, sessionID string) (SessionInfo, error)

	// ListActive returns ids of sessions that have not expired yet.
	ListActive(ctx context.Context) ([]string, error)

	// Delete removes the session and cascades its messages. No error if the
	// session is already absent.
	Delete(ctx context.Context, sessionID string) error

	// DeleteExpired removes every session past its expiry and returns the
	// number deleted.
	DeleteExpired(ctx context.Context) (int, error)

	// Stats returns aggregate counters for the whole store.
	Stats(ctx context.Context) (StoreStats, error)
}
