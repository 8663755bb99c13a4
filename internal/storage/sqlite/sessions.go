package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/pkg/log"
)

// SessionStore persists sessions and their messages. One SQLite write happens
// at a time (WAL + busy timeout); each operation uses its own transaction so
// no lock is held across a whole request.
type SessionStore struct {
	db     *sql.DB
	dbPath string
	ttl    time.Duration
}

// NewSessionStore wires a store around db. ttl is the refresh window applied
// when AppendMessage touches a session.
func NewSessionStore(db *sql.DB, dbPath string, ttl time.Duration) *SessionStore {
	return &SessionStore{db: db, dbPath: dbPath, ttl: ttl}
}

func (s *SessionStore) CreateOrTouch(ctx context.Context, sessionID string, ttl time.Duration) error {
	now := time.Now().Unix()
	expires := now + int64(ttl.Seconds())

	query := `
		INSERT INTO sessions (session_id, created_at, last_accessed, expires_at, message_count)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT (session_id) DO UPDATE SET
			last_accessed = excluded.last_accessed,
			expires_at = excluded.expires_at`
	if _, err := s.db.ExecContext(ctx, query, sessionID, now, now, expires); err != nil {
		return fmt.Errorf("%w: touch session: %w", core.ErrStorage, err)
	}
	return nil
}

func (s *SessionStore) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", core.ErrStorage, err)
	}
	defer tx.Rollback()

	// Refreshing the session in the same statement also proves it exists;
	// appending to an absent session is the caller's bug, not ours to hide.
	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET message_count = message_count + 1, last_accessed = ?, expires_at = ?
		WHERE session_id = ?`,
		now, now+int64(s.ttl.Seconds()), sessionID)
	if err != nil {
		return fmt.Errorf("%w: touch session: %w", core.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", core.ErrStorage, err)
	}
	if affected == 0 {
		return fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, now)
	if err != nil {
		return fmt.Errorf("%w: insert message: %w", core.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrStorage, err)
	}
	return nil
}

func (s *SessionStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	// Fetch the LAST 'limit' messages by ordering DESC, then reverse. The id
	// breaks ties between messages written within the same second.
	query := `SELECT role, content, timestamp FROM messages WHERE session_id = ? ORDER BY timestamp DESC, id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query messages: %w", core.ErrStorage, err)
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var msg core.Message
		var ts int64
		if err := rows.Scan(&msg.Role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("%w: scan message: %w", core.ErrStorage, err)
		}
		msg.Timestamp = time.Unix(ts, 0)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate messages: %w", core.ErrStorage, err)
	}

	// Back to chronological order, oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	log.FromCtx(ctx).Debug().Str("session_id", sessionID).Int("count", len(messages)).Msg("loaded session messages")
	return messages, nil
}

func (s *SessionStore) GetSessionInfo(ctx context.Context, sessionID string) (core.SessionInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, created_at, last_accessed, expires_at, message_count
		FROM sessions WHERE session_id = ?`, sessionID)

	var info core.SessionInfo
	var created, accessed, expires int64
	err := row.Scan(&info.SessionID, &created, &accessed, &expires, &info.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SessionInfo{}, fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}
	if err != nil {
		return core.SessionInfo{}, fmt.Errorf("%w: query session: %w", core.ErrStorage, err)
	}

	info.CreatedAt = time.Unix(created, 0)
	info.LastAccessed = time.Unix(accessed, 0)
	info.ExpiresAt = time.Unix(expires, 0)
	info.Expired = expires <= time.Now().Unix()
	return info, nil
}

func (s *SessionStore) ListActive(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE expires_at > ?`, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", core.ErrStorage, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan session id: %w", core.ErrStorage, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate sessions: %w", core.ErrStorage, err)
	}
	return ids, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	// Messages cascade via the foreign key; absent session is not an error.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("%w: delete session: %w", core.ErrStorage, err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired: %w", core.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %w", core.ErrStorage, err)
	}
	if affected > 0 {
		log.FromCtx(ctx).Info().Int64("count", affected).Msg("cleaned up expired sessions")
	}
	return int(affected), nil
}

func (s *SessionStore) Stats(ctx context.Context) (core.StoreStats, error) {
	now := time.Now().Unix()
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN expires_at > ? THEN 1 END),
			COALESCE(SUM(message_count), 0),
			COALESCE(AVG(CASE WHEN expires_at > ? THEN message_count END), 0)
		FROM sessions`, now, now)

	var stats core.StoreStats
	err := row.Scan(&stats.TotalSessions, &stats.ActiveSessions, &stats.TotalMessages, &stats.AvgMessagesActive)
	if err != nil {
		return core.StoreStats{}, fmt.Errorf("%w: query stats: %w", core.ErrStorage, err)
	}

	if fi, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSizeBytes = fi.Size()
	}
	return stats, nil
}
