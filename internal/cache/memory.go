package cache

import (
	"context"
	"sync"
	"time"

	"github.com/lsat-prep/adaptive/internal/models"
)

// MemoryCache is a process-local TTL map of performance snapshots keyed by
// user id. Multiple processes each keep their own copy.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[int64]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	snapshot  models.PerformanceSnapshot
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[int64]memoryEntry),
		now:     time.Now,
	}
}

// Get returns nil, nil on a miss or an expired entry.
func (c *MemoryCache) Get(ctx context.Context, userID int64) (*models.PerformanceSnapshot, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.entries[userID]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, userID)
		}
		c.mu.Unlock()
		return nil, nil
	}

	snap := cloneSnapshot(entry.snapshot)
	return &snap, nil
}

func (c *MemoryCache) Set(ctx context.Context, snapshot *models.PerformanceSnapshot) error {
	if snapshot == nil {
		return nil
	}
	c.mu.Lock()
	c.entries[snapshot.UserID] = memoryEntry{
		snapshot:  cloneSnapshot(*snapshot),
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, userID int64) error {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cloneSnapshot(s models.PerformanceSnapshot) models.PerformanceSnapshot {
	s.CategoryPerformances = append([]models.CategoryPerformance(nil), s.CategoryPerformances...)
	s.WeakestCategories = append([]models.CategoryPerformance(nil), s.WeakestCategories...)
	s.StrongestCategories = append([]models.CategoryPerformance(nil), s.StrongestCategories...)
	return s
}
