// internal/cache/cache.go
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/pkg/models"
)

// Cache stores recent scrape results so a request that tolerates stale
// content (MaxAge > 0) can be served without touching the browser.
type Cache interface {
	// Get retrieves a cached result no older than maxAge.
	Get(key string, maxAge time.Duration) (*models.ScrapeResult, bool)

	// Set stores a result under the key.
	Set(key string, result *models.ScrapeResult) error

	// Delete removes a cached result by key.
	Delete(key string) error

	// Clear removes all cached results.
	Clear() error

	// Close stops background maintenance.
	Close()
}

type cacheEntry struct {
	Result   *models.ScrapeResult
	StoredAt time.Time
	Key      string
}

// MemoryCache implements in-memory result caching with LRU eviction.
type MemoryCache struct {
	store      map[string]*list.Element
	lruList    *list.List
	mu         sync.Mutex
	maxEntries int
	maxTTL     time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	hits       uint64
	misses     uint64
}

// NewMemoryCache creates an LRU result cache. Entries older than maxTTL
// are dropped by a background sweep regardless of per-request MaxAge.
func NewMemoryCache(maxEntries int, maxTTL time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if maxTTL <= 0 {
		maxTTL = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	mc := &MemoryCache{
		store:      make(map[string]*list.Element),
		lruList:    list.New(),
		maxEntries: maxEntries,
		maxTTL:     maxTTL,
		ctx:        ctx,
		cancel:     cancel,
	}
	go mc.cleanupExpired()
	return mc
}

// Get retrieves a cached result if it is younger than maxAge.
func (mc *MemoryCache) Get(key string, maxAge time.Duration) (*models.ScrapeResult, bool) {
	mc.mu.Lock()
	element, exists := mc.store[key]
	if !exists {
		mc.misses++
		mc.mu.Unlock()
		return nil, false
	}

	entry := element.Value.(*cacheEntry)
	if time.Since(entry.StoredAt) > maxAge {
		mc.misses++
		mc.mu.Unlock()
		return nil, false
	}

	mc.lruList.MoveToFront(element)
	mc.hits++
	mc.mu.Unlock()

	log.Debug().Str("key", key).Msg("Cache hit")
	return entry.Result, true
}

// Set stores a result, evicting the least recently used entry when full.
func (mc *MemoryCache) Set(key string, result *models.ScrapeResult) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if element, exists := mc.store[key]; exists {
		element.Value = &cacheEntry{Result: result, StoredAt: time.Now(), Key: key}
		mc.lruList.MoveToFront(element)
		return nil
	}

	for mc.lruList.Len() >= mc.maxEntries {
		mc.evictLRU()
	}

	entry := &cacheEntry{Result: result, StoredAt: time.Now(), Key: key}
	mc.store[key] = mc.lruList.PushFront(entry)
	return nil
}

// Delete removes a cached result.
func (mc *MemoryCache) Delete(key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if element, exists := mc.store[key]; exists {
		mc.lruList.Remove(element)
		delete(mc.store, key)
	}
	return nil
}

// Clear removes all cached results.
func (mc *MemoryCache) Clear() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.store = make(map[string]*list.Element)
	mc.lruList = list.New()
	mc.hits = 0
	mc.misses = 0
	return nil
}

// Close stops the background cleanup goroutine.
func (mc *MemoryCache) Close() {
	mc.cancel()
}

// Stats returns hit/miss counters for health reporting.
func (mc *MemoryCache) Stats() (entries int, hits, misses uint64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lruList.Len(), mc.hits, mc.misses
}

func (mc *MemoryCache) evictLRU() {
	element := mc.lruList.Back()
	if element == nil {
		return
	}
	entry := element.Value.(*cacheEntry)
	mc.lruList.Remove(element)
	delete(mc.store, entry.Key)
	log.Debug().Str("key", entry.Key).Msg("Evicted from cache (LRU)")
}

func (mc *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.mu.Lock()
			now := time.Now()
			var next *list.Element
			for element := mc.lruList.Front(); element != nil; element = next {
				next = element.Next()
				entry := element.Value.(*cacheEntry)
				if now.Sub(entry.StoredAt) > mc.maxTTL {
					mc.lruList.Remove(element)
					delete(mc.store, entry.Key)
				}
			}
			mc.mu.Unlock()
		case <-mc.ctx.Done():
			return
		}
	}
}

// Key derives a cache key from the URL plus everything that shapes the
// output: rules, steps, and the auth session in use.
func Key(req *models.ScrapeRequest) string {
	h := sha256.New()
	h.Write([]byte(req.URL))
	h.Write([]byte{0})
	h.Write([]byte(req.SessionName))
	h.Write([]byte{0})
	if b, err := json.Marshal(req.Rules); err == nil {
		h.Write(b)
	}
	if b, err := json.Marshal(req.Steps); err == nil {
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}
