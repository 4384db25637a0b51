package core

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// responseCache is a content-addressed LRU cache with per-entry TTL.
// Keys bind a normalized message to the context digest and intent, so a
// hit is only possible when the question, the user's aggregates and the
// classification all match.
type responseCache struct {
	mu      sync.Mutex
	max     int
	ll      *list.List
	entries map[string]*list.Element
	now     func() time.Time
}

func newResponseCache(maxEntries int) *responseCache {
	return &responseCache{
		max:     maxEntries,
		ll:      list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

type cacheEntry struct {
	key       string
	text      string
	expiresAt time.Time
}

// cacheKey derives the content address for one (message, context, intent)
// triple. The digest is fixed-width hex and the intent contains no
// separator, so the join is unambiguous.
func cacheKey(normalizedMessage, contextDigest string, kind IntentKind) string {
	sum := sha256.Sum256([]byte(contextDigest + "|" + string(kind) + "|" + normalizedMessage))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached text for key. Expired or empty entries are
// evicted and reported as misses.
func (c *responseCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	ent := el.Value.(*cacheEntry)
	if ent.text == "" || c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		return "", false
	}
	c.ll.MoveToFront(el)
	return ent.text, true
}

// Put stores text under key for ttl, evicting the least recently used
// entry when the cache is full. Empty texts and non-positive TTLs are
// not cacheable.
func (c *responseCache) Put(key, text string, ttl time.Duration) {
	if text == "" || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*cacheEntry)
		ent.text = text
		ent.expiresAt = expires
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, text: text, expiresAt: expires})
	c.entries[key] = el
	if c.ll.Len() > c.max {
		if back := c.ll.Back(); back != nil {
			c.removeLocked(back)
		}
	}
}

func (c *responseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *responseCache) removeLocked(el *list.Element) {
	ent := el.Value.(*cacheEntry)
	delete(c.entries, ent.key)
	c.ll.Remove(el)
}
