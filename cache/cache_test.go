package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/use-agent/lookout/models"
)

func TestCache_HitAndMiss(t *testing.T) {
	c := New(10, time.Hour)
	key := Key("https://example.com/article")

	if _, ok := c.Get(key, 60); ok {
		t.Fatal("hit on empty cache")
	}

	content := &models.ScrapedContent{URL: "https://example.com/article", Title: "Article"}
	c.Set(key, content)

	got, ok := c.Get(key, 60)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got.Title != "Article" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestCache_MaxAgeZeroDisablesLookup(t *testing.T) {
	c := New(10, time.Hour)
	key := Key("https://example.com")
	c.Set(key, &models.ScrapedContent{URL: "https://example.com"})

	if _, ok := c.Get(key, 0); ok {
		t.Error("max_age=0 must bypass the cache")
	}
	if _, ok := c.Get(key, -5); ok {
		t.Error("negative max_age must bypass the cache")
	}
}

func TestCache_ExpiredEntryMisses(t *testing.T) {
	c := New(10, time.Hour)
	key := Key("https://example.com")
	c.Set(key, &models.ScrapedContent{URL: "https://example.com"})

	// Backdate the entry past the requested max age.
	c.mu.Lock()
	c.store[key].createdAt = time.Now().Add(-2 * time.Minute)
	c.mu.Unlock()

	if _, ok := c.Get(key, 60); ok {
		t.Error("expected miss for entry older than max_age")
	}
	if _, ok := c.Get(key, 300); !ok {
		t.Error("expected hit for a generous max_age")
	}
}

func TestCache_CapacityEviction(t *testing.T) {
	c := New(3, time.Hour)
	for i := 0; i < 5; i++ {
		u := fmt.Sprintf("https://example.com/%d", i)
		c.Set(Key(u), &models.ScrapedContent{URL: u})
	}
	if c.Len() > 3 {
		t.Errorf("len = %d, want at most 3", c.Len())
	}
}

func TestKey_DistinctURLs(t *testing.T) {
	if Key("https://example.com/a") == Key("https://example.com/b") {
		t.Error("distinct URLs share a key")
	}
	if Key(" https://example.com/a ") != Key("https://example.com/a") {
		t.Error("surrounding whitespace should not change the key")
	}
}
