package sqlengine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/sqlengine"
	"github.com/AntonStoeckl/occ-balance-simulator-go/testutil/helper/postgreswrapper"
)

func Test_Postgres_ConditionalUpdate(t *testing.T) {
	// setup
	ctx := context.Background()
	store := postgreswrapper.CreateWrapperWithTestConfig(t).GetStore()

	// arrange
	require.NoError(t, store.SeedAccount(ctx, 1, decimal.NewFromInt(100), 0))

	// act
	applied, err := store.ConditionalUpdate(ctx, 1, decimal.RequireFromString("-10.25"), 0)
	require.NoError(t, err)
	conflicted, err := store.ConditionalUpdate(ctx, 1, decimal.NewFromInt(-10), 0)
	require.NoError(t, err)

	// assert
	assert.Equal(t, int64(1), applied)
	assert.Equal(t, int64(0), conflicted)

	snapshot, err := store.Read(ctx, 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("89.75").Equal(snapshot.Balance))
	assert.Equal(t, accountstore.Version(1), snapshot.Version)
}

func Test_Postgres_ConditionalUpdate_KeepsEveryDecimalPlace(t *testing.T) {
	// setup
	ctx := context.Background()
	store := postgreswrapper.CreateWrapperWithTestConfig(t).GetStore()
	initial := accountstore.Snapshot{Balance: decimal.RequireFromString("100"), Version: 0}
	delta := decimal.RequireFromString("0.00005")

	// arrange
	require.NoError(t, store.SeedAccount(ctx, 1, initial.Balance, initial.Version))

	// act
	applied, err := store.ConditionalUpdate(ctx, 1, delta, 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), applied)

	snapshot, err := store.Read(ctx, 1)
	require.NoError(t, err)
	assert.True(t, initial.Applied(delta).Equal(snapshot), "got %s", snapshot.Balance)
}

func Test_Postgres_ConcurrentWritersAtSameVersion(t *testing.T) {
	// setup
	ctx := context.Background()
	store := postgreswrapper.CreateWrapperWithTestConfig(t).GetStore()

	// arrange
	require.NoError(t, store.SeedAccount(ctx, 1, decimal.NewFromInt(100), 0))

	// act
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := int64(0)

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			rowsAffected, err := store.ConditionalUpdate(ctx, 1, decimal.NewFromInt(-1), 0)
			assert.NoError(t, err)

			mu.Lock()
			applied += rowsAffected
			mu.Unlock()
		}()
	}
	wg.Wait()

	// assert
	assert.Equal(t, int64(1), applied)
}

func Test_Postgres_RejectsSQLiteDialectOnPGXPool(t *testing.T) {
	// setup
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	pgxWrapper, ok := wrapper.(*postgreswrapper.PGXPoolWrapper)
	if !ok {
		t.Skip("only relevant for the pgx pool adapter")
	}

	// act
	_, err := sqlengine.NewStoreFromPGXPool(pgxWrapper.Pool(), sqlengine.WithDialect(sqlengine.DialectSQLite))

	// assert
	assert.ErrorIs(t, err, accountstore.ErrUnknownDialect)
}
