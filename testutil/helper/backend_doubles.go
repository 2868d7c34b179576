package helper

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/occ-balance-simulator-go/balancecache"
)

// FaultyBackend wraps a cache backend and fails the operations whose error is set.
type FaultyBackend struct {
	Inner     balancecache.Backend
	GetErr    error
	SetErr    error
	DeleteErr error

	mu   sync.Mutex
	sets int
}

// NewFaultyBackend wraps an in-memory backend without expiration.
func NewFaultyBackend() *FaultyBackend {
	return &FaultyBackend{Inner: balancecache.NewMemoryBackend(0)}
}

// Get implements balancecache.Backend.
func (b *FaultyBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if b.GetErr != nil {
		return "", false, b.GetErr
	}

	return b.Inner.Get(ctx, key)
}

// Set implements balancecache.Backend.
func (b *FaultyBackend) Set(ctx context.Context, key string, value string) error {
	if b.SetErr != nil {
		return b.SetErr
	}

	b.mu.Lock()
	b.sets++
	b.mu.Unlock()

	return b.Inner.Set(ctx, key, value)
}

// Delete implements balancecache.Backend.
func (b *FaultyBackend) Delete(ctx context.Context, key string) error {
	if b.DeleteErr != nil {
		return b.DeleteErr
	}

	return b.Inner.Delete(ctx, key)
}

// Sets returns how many successful Set calls reached the inner backend.
func (b *FaultyBackend) Sets() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sets
}

var _ balancecache.Backend = (*FaultyBackend)(nil)
