package roster

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a resolved roster stays fresh.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	ids       []string
	expiresAt time.Time
}

// CachedClient wraps a Client with a read-through TTL cache keyed by group.
// Only successful resolutions are cached; failures always reach the caller
// and the next attempt goes back to the data service.
type CachedClient struct {
	inner  Client
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachedClient wraps inner with caching. A zero ttl falls back to
// DefaultCacheTTL.
func NewCachedClient(inner Client, ttl time.Duration, logger *slog.Logger) *CachedClient {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &CachedClient{
		inner:   inner,
		ttl:     ttl,
		logger:  logger.With("component", "roster-cache"),
		entries: make(map[string]cacheEntry),
	}
}

// Resolve returns the cached roster when fresh, otherwise asks the wrapped
// client and remembers the answer. Returned slices are copies; callers may
// reorder them freely.
func (c *CachedClient) Resolve(ctx context.Context, groupID string) ([]string, error) {
	c.mu.Lock()
	if e, ok := c.entries[groupID]; ok && time.Now().Before(e.expiresAt) {
		ids := slices.Clone(e.ids)
		c.mu.Unlock()
		c.logger.Debug("roster cache hit", "group_id", groupID)
		return ids, nil
	}
	c.mu.Unlock()

	ids, err := c.inner.Resolve(ctx, groupID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[groupID] = cacheEntry{
		ids:       slices.Clone(ids),
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()

	c.logger.Debug("roster cached", "group_id", groupID, "members", len(ids), "ttl", c.ttl)
	return ids, nil
}

// Healthy delegates to the wrapped client; health is never cached.
func (c *CachedClient) Healthy(ctx context.Context) error {
	return c.inner.Healthy(ctx)
}

// Invalidate drops the cached roster for one group, forcing the next Resolve
// to hit the data service.
func (c *CachedClient) Invalidate(groupID string) {
	c.mu.Lock()
	delete(c.entries, groupID)
	c.mu.Unlock()
}
