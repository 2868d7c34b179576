package balancecache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Backend is the key-value store the cache keeps its entries in.
// A missing key is reported as found=false, transport failures as errors.
type Backend interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryBackend is an in-process Backend on top of go-cache.
type MemoryBackend struct {
	cache *gocache.Cache
}

// NewMemoryBackend creates a MemoryBackend. A ttl <= 0 keeps entries until they are deleted.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	if ttl <= 0 {
		return &MemoryBackend{cache: gocache.New(gocache.NoExpiration, 0)}
	}

	return &MemoryBackend{cache: gocache.New(ttl, 2*ttl)}
}

// Get returns the value stored under key.
func (b *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	obj, found := b.cache.Get(key)
	if !found {
		return "", false, nil
	}

	value, ok := obj.(string)
	if !ok {
		return "", false, nil
	}

	return value, true, nil
}

// Set stores value under key with the backend's default expiration.
func (b *MemoryBackend) Set(_ context.Context, key string, value string) error {
	b.cache.Set(key, value, gocache.DefaultExpiration)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.cache.Delete(key)
	return nil
}

// ItemCount returns the number of entries, including expired ones not yet cleaned up.
func (b *MemoryBackend) ItemCount() int {
	return b.cache.ItemCount()
}

// Flush removes all entries.
func (b *MemoryBackend) Flush() {
	b.cache.Flush()
}
