// Package cache is the in-memory scrape cache. Scraping is idempotent over a
// stable page, so serving a recent extraction avoids burning a browser turn
// on a URL that was just visited.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/lookout/models"
)

// entry holds a cached extraction with its creation timestamp.
type entry struct {
	content   *models.ScrapedContent
	createdAt time.Time
}

// Cache is a bounded in-memory store of scraped content keyed by URL.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	defaultTTL time.Duration
}

// New creates a Cache holding at most maxEntries items. A background
// goroutine evicts entries older than defaultTTL every 5 minutes.
func New(maxEntries int, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
	}
	go c.cleanupLoop()
	return c
}

// Key derives the cache key for a URL. Trailing-slash and scheme variants
// are deliberately not normalized: a server may serve different content
// for them.
func Key(url string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(h[:])
}

// Get returns cached content younger than maxAge. maxAge is in seconds;
// zero or negative disables the lookup entirely, so callers opt into
// staleness per request.
func (c *Cache) Get(key string, maxAgeSeconds int) (*models.ScrapedContent, bool) {
	if maxAgeSeconds <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(e.createdAt) > time.Duration(maxAgeSeconds)*time.Second {
		return nil, false
	}
	return e.content, true
}

// Set stores content under key. At capacity a random entry is evicted
// (map iteration order is random in Go).
func (c *Cache) Set(key string, content *models.ScrapedContent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = &entry{content: content, createdAt: time.Now()}
}

// Len reports the current number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-c.defaultTTL)
		c.mu.Lock()
		for k, e := range c.store {
			if e.createdAt.Before(cutoff) {
				delete(c.store, k)
			}
		}
		c.mu.Unlock()
	}
}
