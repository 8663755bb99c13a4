package core

import "time"

const (
	DocqaName    = "docqa"
	DocqaVersion = "0.1.0"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one half of a conversational turn, immutable once stored.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// SessionInfo is the stored metadata of one conversation thread.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	ExpiresAt    time.Time `json:"expires_at"`
	MessageCount int       `json:"message_count"`
	Expired      bool      `json:"is_expired"`
}

// StoreStats aggregates counters across the whole session store.
type StoreStats struct {
	TotalSessions     int     `json:"total_sessions"`
	ActiveSessions    int     `json:"active_sessions"`
	TotalMessages     int     `json:"total_messages"`
	AvgMessagesActive float64 `json:"avg_messages_per_session"`
	DatabaseSizeBytes int64   `json:"database_size_bytes"`
}

// Chunk is a contiguous span of extracted document text ready for indexing.
type Chunk struct {
	Text      string
	Source    string
	Index     int
	TokenSize int
}

// SourceChunk is a retrieved chunk with its similarity score, returned to
// callers as a citation.
type SourceChunk struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// CollectionInfo describes one client's document collection.
type CollectionInfo struct {
	ClientID      string `json:"client_id"`
	DocumentCount int    `json:"document_count"`
}

// CollectionStats extends CollectionInfo with existence and recency data.
// Exists is false rather than an error when the collection is absent.
type CollectionStats struct {
	ClientID      string    `json:"client_id"`
	Exists        bool      `json:"exists"`
	DocumentCount int       `json:"document_count"`
	LastModified  time.Time `json:"last_modified,omitzero"`
}
