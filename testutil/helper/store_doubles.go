package helper

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

// AccountStore is the subset of the durable store the mutation loop uses.
type AccountStore interface {
	Read(ctx context.Context, id accountstore.AccountID) (accountstore.Snapshot, error)
	ConditionalUpdate(
		ctx context.Context,
		id accountstore.AccountID,
		delta decimal.Decimal,
		expectedVersion accountstore.Version,
	) (int64, error)
}

// StoreHook wraps a store and runs hooks before its calls.
// BeforeUpdate is the place to simulate a concurrent writer that commits between read and update.
type StoreHook struct {
	Inner        AccountStore
	BeforeRead   func(call int)
	BeforeUpdate func(call int)

	reads   atomic.Int64
	updates atomic.Int64

	mu         sync.Mutex
	readLevels []accountstore.ConsistencyLevel
}

// Read implements AccountStore.
func (h *StoreHook) Read(ctx context.Context, id accountstore.AccountID) (accountstore.Snapshot, error) {
	call := int(h.reads.Add(1))

	h.mu.Lock()
	h.readLevels = append(h.readLevels, accountstore.GetConsistencyLevel(ctx))
	h.mu.Unlock()

	if h.BeforeRead != nil {
		h.BeforeRead(call)
	}

	return h.Inner.Read(ctx, id)
}

// ConditionalUpdate implements AccountStore.
func (h *StoreHook) ConditionalUpdate(
	ctx context.Context,
	id accountstore.AccountID,
	delta decimal.Decimal,
	expectedVersion accountstore.Version,
) (int64, error) {

	call := int(h.updates.Add(1))
	if h.BeforeUpdate != nil {
		h.BeforeUpdate(call)
	}

	return h.Inner.ConditionalUpdate(ctx, id, delta, expectedVersion)
}

// Reads returns how often Read was called.
func (h *StoreHook) Reads() int {
	return int(h.reads.Load())
}

// ReadConsistencyLevels returns the consistency level each Read was called with, in call order.
func (h *StoreHook) ReadConsistencyLevels() []accountstore.ConsistencyLevel {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]accountstore.ConsistencyLevel(nil), h.readLevels...)
}

// Updates returns how often ConditionalUpdate was called.
func (h *StoreHook) Updates() int {
	return int(h.updates.Load())
}

// FaultyStore returns the configured errors instead of touching a database.
// A nil error falls through to the in-memory account it holds.
type FaultyStore struct {
	ReadErr   error
	UpdateErr error

	mu       sync.Mutex
	snapshot accountstore.Snapshot
}

// NewFaultyStore creates a FaultyStore holding snapshot.
func NewFaultyStore(snapshot accountstore.Snapshot) *FaultyStore {
	return &FaultyStore{snapshot: snapshot}
}

// Read implements AccountStore.
func (s *FaultyStore) Read(_ context.Context, _ accountstore.AccountID) (accountstore.Snapshot, error) {
	if s.ReadErr != nil {
		return accountstore.Snapshot{}, s.ReadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot, nil
}

// ConditionalUpdate implements AccountStore with compare-and-set semantics on the version.
func (s *FaultyStore) ConditionalUpdate(
	_ context.Context,
	_ accountstore.AccountID,
	delta decimal.Decimal,
	expectedVersion accountstore.Version,
) (int64, error) {

	if s.UpdateErr != nil {
		return 0, s.UpdateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot.Version != expectedVersion {
		return 0, nil
	}

	s.snapshot = s.snapshot.Applied(delta)

	return 1, nil
}

// Snapshot returns the in-memory account.
func (s *FaultyStore) Snapshot() accountstore.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot
}
