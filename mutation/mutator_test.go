package mutation_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/sqlengine"
	"github.com/AntonStoeckl/occ-balance-simulator-go/balancecache"
	. "github.com/AntonStoeckl/occ-balance-simulator-go/mutation"       //nolint:revive
	. "github.com/AntonStoeckl/occ-balance-simulator-go/testutil/helper" //nolint:revive
)

const accountID accountstore.AccountID = 1

func amount(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func givenCache(t *testing.T, backend balancecache.Backend) *balancecache.Cache {
	t.Helper()

	cache, err := balancecache.NewCache(backend)
	require.NoError(t, err)

	return cache
}

func givenMutator(t *testing.T, store Store, options ...Option) *Mutator {
	t.Helper()

	mutator, err := NewMutator(store, options...)
	require.NoError(t, err)

	return mutator
}

func givenStoreWithBalance(t *testing.T, balance string) *sqlengine.Store {
	t.Helper()

	store := GivenSQLiteStore(t)
	require.NoError(t, store.SeedAccount(context.Background(), accountID, amount(balance), 0))

	return store
}

func Test_Mutate_DebitWithSufficientFunds(t *testing.T) {
	// setup
	ctx := context.Background()
	store := givenStoreWithBalance(t, "12.0")
	mutator := givenMutator(t, store, WithBackoff(&RecordingBackoff{}))

	// act
	result, err := mutator.Mutate(ctx, accountID, amount("10.0"), Debit)

	// assert
	require.NoError(t, err)
	assert.Equal(t, Applied, result.Outcome)
	assert.True(t, amount("-10").Equal(result.Delta))
	assert.True(t, amount("2").Equal(result.Snapshot.Balance))
	assert.Equal(t, accountstore.Version(1), result.Snapshot.Version)
	assert.Equal(t, 1, result.Attempts)
	assert.Zero(t, result.Conflicts)

	persisted := ReadSnapshot(t, store, accountID)
	assert.True(t, persisted.Equal(result.Snapshot))
}

func Test_Mutate_DebitWithInsufficientFunds(t *testing.T) {
	// setup
	ctx := context.Background()
	store := givenStoreWithBalance(t, "12.0")
	hook := &StoreHook{Inner: store}
	mutator := givenMutator(t, hook, WithBackoff(&RecordingBackoff{}))

	// arrange
	_, err := mutator.Mutate(ctx, accountID, amount("10.0"), Debit)
	require.NoError(t, err)

	// act
	result, err := mutator.Mutate(ctx, accountID, amount("10.0"), Debit)

	// assert
	require.NoError(t, err, "insufficient funds is an outcome, not an error")
	assert.Equal(t, InsufficientFunds, result.Outcome)
	assert.True(t, amount("2").Equal(result.Snapshot.Balance))
	assert.Equal(t, 1, hook.Updates(), "a rejected debit never reaches the conditional update")

	persisted := ReadSnapshot(t, store, accountID)
	assert.True(t, amount("2").Equal(persisted.Balance))
	assert.Equal(t, accountstore.Version(1), persisted.Version)
}

func Test_Mutate_DebitOfExactBalanceIsApplied(t *testing.T) {
	// setup
	store := givenStoreWithBalance(t, "10")
	mutator := givenMutator(t, store)

	// act
	result, err := mutator.Mutate(context.Background(), accountID, amount("10"), Debit)

	// assert
	require.NoError(t, err)
	assert.Equal(t, Applied, result.Outcome)
	assert.True(t, result.Snapshot.Balance.IsZero())
}

func Test_Mutate_CreditIsNeverCapped(t *testing.T) {
	// setup
	store := givenStoreWithBalance(t, "0")
	mutator := givenMutator(t, store)

	// act
	result, err := mutator.Mutate(context.Background(), accountID, amount("1000000"), Credit)

	// assert
	require.NoError(t, err)
	assert.Equal(t, Applied, result.Outcome)
	assert.True(t, amount("1000000").Equal(result.Snapshot.Balance))
}

func Test_Mutate_RetriesAfterLosingTheRace(t *testing.T) {
	// setup
	ctx := context.Background()
	store := givenStoreWithBalance(t, "100")
	backend := balancecache.NewMemoryBackend(0)
	cache := givenCache(t, backend)
	backoff := &RecordingBackoff{}
	hook := &StoreHook{Inner: store}
	mutator := givenMutator(t, hook, WithCache(cache), WithBackoff(backoff))

	// arrange
	hook.BeforeUpdate = func(call int) {
		if call == 1 {
			rowsAffected, err := store.ConditionalUpdate(ctx, accountID, amount("5"), 0)
			require.NoError(t, err)
			require.Equal(t, int64(1), rowsAffected)
		}
	}

	// act
	result, err := mutator.Mutate(ctx, accountID, amount("10"), Debit)

	// assert
	require.NoError(t, err)
	assert.Equal(t, Applied, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, []int{1}, backoff.Waits())
	assert.Equal(t, 2, hook.Reads(), "the loser re-reads after invalidating the cache")

	persisted := ReadSnapshot(t, store, accountID)
	assert.True(t, amount("95").Equal(persisted.Balance))
	assert.Equal(t, accountstore.Version(2), persisted.Version)
}

func Test_Mutate_CacheMissLoadsOnceAndPopulates(t *testing.T) {
	// setup
	ctx := context.Background()
	store := givenStoreWithBalance(t, "100")
	backend := balancecache.NewMemoryBackend(0)
	cache := givenCache(t, backend)
	hook := &StoreHook{Inner: store}

	// act
	snapshot, err := cache.ReadThrough(ctx, accountID, hook.Read)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, hook.Reads())

	balance, balanceFound, _ := backend.Get(ctx, cache.BalanceKey(accountID))
	version, versionFound, _ := backend.Get(ctx, cache.VersionKey(accountID))
	assert.True(t, balanceFound)
	assert.True(t, versionFound)
	assert.Equal(t, snapshot.Balance.String(), balance)
	assert.Equal(t, "0", version)
}

func Test_Mutate_CacheMatchesStoreAfterApplied(t *testing.T) {
	// setup
	ctx := context.Background()
	store := givenStoreWithBalance(t, "50")
	cache := givenCache(t, balancecache.NewMemoryBackend(0))
	hook := &StoreHook{Inner: store}
	mutator := givenMutator(t, hook, WithCache(cache))

	// act
	_, err := mutator.Mutate(ctx, accountID, amount("7.5"), Credit)
	require.NoError(t, err)
	result, err := mutator.Mutate(ctx, accountID, amount("2.5"), Debit)
	require.NoError(t, err)

	// assert
	cached, err := cache.ReadThrough(ctx, accountID, func(context.Context, accountstore.AccountID) (accountstore.Snapshot, error) {
		return accountstore.Snapshot{}, errors.New("cache should have been hit")
	})
	require.NoError(t, err)
	assert.True(t, cached.Equal(ReadSnapshot(t, store, accountID)))
	assert.True(t, cached.Equal(result.Snapshot))
	assert.Equal(t, 1, hook.Reads(), "the second mutation reads the written-through snapshot")
}

func Test_Mutate_ConcurrentActorsLoseNoUpdate(t *testing.T) {
	// setup
	ctx := context.Background()
	store := givenStoreWithBalance(t, "1000")
	cache := givenCache(t, balancecache.NewMemoryBackend(0))
	mutator := givenMutator(t, store, WithCache(cache), WithBackoff(NoBackoff{}))
	actors := 6
	mutationsPerActor := 5

	// act
	var wg sync.WaitGroup
	results := make(chan Result, actors*mutationsPerActor)

	for actor := range actors {
		wg.Add(1)
		go func() {
			defer wg.Done()

			direction := Credit
			if actor%2 == 0 {
				direction = Debit
			}

			for range mutationsPerActor {
				result, err := mutator.Mutate(ctx, accountID, amount("3"), direction)
				assert.NoError(t, err)
				results <- result
			}
		}()
	}
	wg.Wait()
	close(results)

	// assert
	netChange := decimal.Zero
	applied := 0
	for result := range results {
		require.Equal(t, Applied, result.Outcome)
		netChange = netChange.Add(result.Delta)
		applied++
	}

	persisted := ReadSnapshot(t, store, accountID)
	assert.True(t, amount("1000").Add(netChange).Equal(persisted.Balance))
	assert.Equal(t, accountstore.Version(applied), persisted.Version)
}

func Test_Mutate_InputValidation(t *testing.T) {
	// setup
	mutator := givenMutator(t, NewFaultyStore(accountstore.Snapshot{}))
	ctx := context.Background()

	// act
	_, zeroErr := mutator.Mutate(ctx, accountID, decimal.Zero, Debit)
	_, negativeErr := mutator.Mutate(ctx, accountID, amount("-1"), Credit)
	_, directionErr := mutator.Mutate(ctx, accountID, amount("1"), Direction(0))

	// assert
	assert.ErrorIs(t, zeroErr, ErrNonPositiveMagnitude)
	assert.ErrorIs(t, negativeErr, ErrNonPositiveMagnitude)
	assert.ErrorIs(t, directionErr, ErrUnknownDirection)
}

func Test_NewMutator_Errors(t *testing.T) {
	store := NewFaultyStore(accountstore.Snapshot{})

	_, nilStoreErr := NewMutator(nil)
	_, nilCacheErr := NewMutator(store, WithCache(nil))
	_, nilBackoffErr := NewMutator(store, WithBackoff(nil))

	assert.ErrorIs(t, nilStoreErr, ErrNilStore)
	assert.ErrorIs(t, nilCacheErr, ErrNilCache)
	assert.ErrorIs(t, nilBackoffErr, ErrNilBackoff)
}
