package background

import (
	"sync"
	"time"
)

type cacheEntry struct {
	text    string
	created time.Time
}

// sheetCache remembers fetched stylesheet text per URL. Many pages of one site
// link the same sheets, and every page asks again after navigation.
type sheetCache struct {
	mu   sync.RWMutex
	now  func() time.Time
	ttl  time.Duration
	data map[string]cacheEntry
}

func newSheetCache(ttl time.Duration, now func() time.Time) *sheetCache {
	if now == nil {
		now = time.Now
	}
	return &sheetCache{
		now:  now,
		ttl:  ttl,
		data: make(map[string]cacheEntry),
	}
}

func (c *sheetCache) Store(url, text string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.data[url] = cacheEntry{text: text, created: c.now()}
	c.mu.Unlock()
}

func (c *sheetCache) Select(url string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	c.mu.RLock()
	entry, ok := c.data[url]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.created) > c.ttl {
		c.mu.Lock()
		if cur, ok := c.data[url]; ok && cur.created.Equal(entry.created) {
			delete(c.data, url)
		}
		c.mu.Unlock()
		return "", false
	}
	return entry.text, true
}
