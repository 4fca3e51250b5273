package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/wes-support-chat/internal/cache"
	"github.com/weiawesome/wes-support-chat/internal/domain"
)

// MockIdentityCache is an in-memory cache.IdentityCache.
type MockIdentityCache struct {
	mu      sync.Mutex
	entries map[string]domain.Identity
	GetErr  error
	Sets    int
}

func NewMockIdentityCache() *MockIdentityCache {
	return &MockIdentityCache{entries: make(map[string]domain.Identity)}
}

func (c *MockIdentityCache) Get(_ context.Context, userID string) (*domain.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	id, ok := c.entries[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &id, nil
}

func (c *MockIdentityCache) Set(_ context.Context, identity *domain.Identity, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identity.ID] = *identity
	c.Sets++
	return nil
}

func (c *MockIdentityCache) Delete(_ context.Context, userIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.entries, id)
	}
	return nil
}

func (c *MockIdentityCache) Close() error { return nil }

// Has reports whether userID is cached.
func (c *MockIdentityCache) Has(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[userID]
	return ok
}

var _ cache.IdentityCache = (*MockIdentityCache)(nil)
