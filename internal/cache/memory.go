package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider with per-entry TTLs. Expired
// entries are dropped lazily on read and swept opportunistically on write.
type MemoryProvider struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider constructs an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{entries: make(map[string]memoryEntry)}
}

// Get returns the cached bytes or ErrCacheMiss when absent or expired.
func (p *MemoryProvider) Get(ctx context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	entry, ok := p.entries[key]
	p.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		p.mu.Lock()
		delete(p.entries, key)
		p.mu.Unlock()
		return nil, ErrCacheMiss
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores bytes with the provided TTL; a non-positive TTL never expires.
func (p *MemoryProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	p.mu.Lock()
	p.sweepLocked()
	p.entries[key] = entry
	p.mu.Unlock()
	return nil
}

// Del removes a key; deleting an absent key is not an error.
func (p *MemoryProvider) Del(ctx context.Context, key string) error {
	p.mu.Lock()
	delete(p.entries, key)
	p.mu.Unlock()
	return nil
}

// Close drops all entries.
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	p.entries = make(map[string]memoryEntry)
	p.mu.Unlock()
	return nil
}

// sweepLocked removes expired entries. Caller holds the write lock.
func (p *MemoryProvider) sweepLocked() {
	now := time.Now()
	for key, entry := range p.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(p.entries, key)
		}
	}
}
