package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryRequestCache is a bounded LRU keyed by URL. The LRU is internally
// locked, so the cache is safe for concurrent use.
type MemoryRequestCache struct {
	entries     *lru.Cache[string, Entry]
	maxLifetime int64
	now         func() time.Time
}

// NewMemoryRequestCache creates a cache holding at most size entries.
func NewMemoryRequestCache(size int, maxLifetime time.Duration, opts ...Option) (*MemoryRequestCache, error) {
	l, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &MemoryRequestCache{
		entries:     l,
		maxLifetime: lifetimeSeconds(maxLifetime),
		now:         o.now,
	}, nil
}

// Get returns the body for url unless it is missing or expired.
func (c *MemoryRequestCache) Get(_ context.Context, url string) (string, bool, error) {
	e, ok := c.entries.Get(url)
	if !ok || e.Expired(c.now().Unix(), c.maxLifetime) {
		return "", false, nil
	}
	return e.Value, true, nil
}

// Put stores body for url, replacing any previous value and timestamp.
func (c *MemoryRequestCache) Put(_ context.Context, url, body string) error {
	c.entries.Add(url, Entry{Key: url, Value: body, Timestamp: c.now().Unix()})
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryRequestCache) Len() int { return c.entries.Len() }

type metaKey struct {
	provider string
	key      string
}

// MemoryMetadataStore is a map partitioned by (provider, key).
type MemoryMetadataStore struct {
	mu     sync.RWMutex
	values map[metaKey]string
}

// NewMemoryMetadataStore returns an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{values: make(map[metaKey]string)}
}

// Get returns the stored value or def.
func (s *MemoryMetadataStore) Get(_ context.Context, provider, key, def string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[metaKey{provider, key}]; ok {
		return v, nil
	}
	return def, nil
}

// Set stores value under (provider, key).
func (s *MemoryMetadataStore) Set(_ context.Context, provider, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[metaKey{provider, key}] = value
	return nil
}
