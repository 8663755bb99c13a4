package session

import (
	"sync"

	"github.com/sandevgo/docqa/internal/core"
)

// Conversation is the live in-memory view of one session's recent turns. It
// is a cache over the store, never the source of truth; it can be rebuilt
// from persisted messages at any time.
type Conversation struct {
	sessionID string
	window    int

	mu       sync.Mutex
	messages []core.Message
}

func newConversation(sessionID string, window int, messages []core.Message) *Conversation {
	c := &Conversation{sessionID: sessionID, window: window}
	for _, msg := range messages {
		c.Append(msg)
	}
	return c
}

func (c *Conversation) SessionID() string {
	return c.sessionID
}

// Append adds a turn half, trimming the view to the configured window.
func (c *Conversation) Append(msg core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msg)
	if c.window > 0 && len(c.messages) > c.window {
		c.messages = append([]core.Message(nil), c.messages[len(c.messages)-c.window:]...)
	}
}

// Window returns a copy of the retained turns, oldest first.
func (c *Conversation) Window() []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]core.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
