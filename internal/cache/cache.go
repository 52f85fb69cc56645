package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is the generic byte cache consumed by the query-embedding cache and
// the job-state mirror. Expiry is a property of the store: readers treat an
// expired entry as absent and never delete it themselves.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

type memoryCache struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

// NewMemory returns an in-process Cache over a bounded expirable LRU.
// maxTTL caps per-entry TTLs; entries passed a longer ttl still expire at
// their own deadline via the stored expiresAt.
func NewMemory(size int, maxTTL time.Duration) Cache {
	return &memoryCache{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (m *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.lru.Add(key, e)
	return nil
}
