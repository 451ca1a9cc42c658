package auth

import (
	"sync"
	"time"

	"github.com/ivankudzin/authgate/internal/domain/model"
)

type cacheEntry struct {
	session    model.Session
	insertedAt time.Time
}

// SessionCache is the in-process hot layer in front of the durable store.
// It is a mirror, never authoritative: any entry may be evicted or rebuilt
// without loss of correctness. Safe for concurrent use.
type SessionCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
	now        func() time.Time
}

// NewSessionCache creates a cache holding at most maxEntries sessions.
// maxEntries <= 0 means unbounded. When the cache is full, inserting a new
// token evicts the oldest entry by insertion time.
func NewSessionCache(maxEntries int) *SessionCache {
	return &SessionCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached session for the token. An entry whose session has
// expired is evicted and reported as a miss.
func (c *SessionCache) Get(token string) (model.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return model.Session{}, false
	}
	if !entry.session.Live(c.now()) {
		delete(c.entries, token)
		return model.Session{}, false
	}
	return entry.session, true
}

// Put inserts or replaces the entry for the session's token. Replacement is
// atomic per entry; concurrent writers race benignly, last writer wins.
func (c *SessionCache) Put(session model.Session) {
	if session.Token == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[session.Token]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[session.Token] = cacheEntry{session: session, insertedAt: c.now()}
}

func (c *SessionCache) Remove(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
}

func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SessionCache) evictOldestLocked() {
	var (
		oldestToken string
		oldestAt    time.Time
	)
	for token, entry := range c.entries {
		if oldestToken == "" || entry.insertedAt.Before(oldestAt) {
			oldestToken = token
			oldestAt = entry.insertedAt
		}
	}
	if oldestToken != "" {
		delete(c.entries, oldestToken)
	}
}
