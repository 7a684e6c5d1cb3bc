package cache

import (
	"context"
	"sync"
	"time"

	"github.com/amirasaad/settlement/pkg/cache"
)

// MemoryQuotaCache implements QuotaCache in process. Expired entries are
// dropped lazily on read.
type MemoryQuotaCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	quota     cache.Quota
	expiresAt time.Time
}

// NewMemoryQuotaCache creates an in-memory cache whose entries live for ttl.
func NewMemoryQuotaCache(ttl time.Duration, now func() time.Time) *MemoryQuotaCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryQuotaCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *MemoryQuotaCache) Get(_ context.Context, tenantID string) (*cache.Quota, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[tenantID]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, tenantID)
		}
		c.mu.Unlock()
		return nil, nil
	}
	q := entry.quota
	return &q, nil
}

func (c *MemoryQuotaCache) Set(_ context.Context, tenantID string, q *cache.Quota) error {
	if q == nil || c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = cacheEntry{quota: *q, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryQuotaCache) Invalidate(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
	return nil
}

var _ cache.QuotaCache = (*MemoryQuotaCache)(nil)
