package session

import (
	"container/list"
	"sync"
)

type cacheEntry struct {
	sessionID string
	conv      *Conversation
}

// conversationCache is a bounded LRU mapping session ids to live
// conversations. Lookup, insert and evict happen under one lock so a freshly
// inserted entry cannot race with its own eviction.
type conversationCache struct {
	mu    sync.Mutex
	max   int
	order *list.List // front = most recently used
	items map[string]*list.Element
}

func newConversationCache(max int) *conversationCache {
	if max < 1 {
		max = 1
	}
	return &conversationCache{
		max:   max,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached conversation and promotes it to most recently used.
func (c *conversationCache) Get(sessionID string) (*Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[sessionID]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).conv, true
}

// Put inserts conv, evicting the least-recently-used entry when full.
// Returns the evicted session id, if any.
func (c *conversationCache) Put(sessionID string, conv *Conversation) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[sessionID]; ok {
		el.Value.(*cacheEntry).conv = conv
		c.order.MoveToFront(el)
		return "", false
	}

	var evicted string
	var didEvict bool
	if c.order.Len() >= c.max {
		oldest := c.order.Back()
		if oldest != nil {
			entry := oldest.Value.(*cacheEntry)
			delete(c.items, entry.sessionID)
			c.order.Remove(oldest)
			evicted = entry.sessionID
			didEvict = true
		}
	}

	c.items[sessionID] = c.order.PushFront(&cacheEntry{sessionID: sessionID, conv: conv})
	return evicted, didEvict
}

func (c *conversationCache) Remove(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[sessionID]; ok {
		delete(c.items, sessionID)
		c.order.Remove(el)
	}
}

func (c *conversationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the cached session ids, most recently used first.
func (c *conversationCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*cacheEntry).sessionID)
	}
	return keys
}
