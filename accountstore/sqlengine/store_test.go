package sqlengine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/sqlengine"
	. "github.com/AntonStoeckl/occ-balance-simulator-go/testutil/helper" //nolint:revive
)

func Test_Read_ReturnsSeededSnapshot(t *testing.T) {
	// setup
	ctx := context.Background()
	store := GivenSQLiteStore(t)

	// arrange
	GivenSeededAccount(t, store, 1, 100)

	// act
	snapshot, err := store.Read(ctx, 1)

	// assert
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(snapshot.Balance))
	assert.Equal(t, accountstore.Version(0), snapshot.Version)
}

func Test_Read_UnknownAccount(t *testing.T) {
	// setup
	store := GivenSQLiteStore(t)

	// act
	_, err := store.Read(context.Background(), 42)

	// assert
	assert.ErrorIs(t, err, accountstore.ErrAccountNotFound)
}

func Test_ConditionalUpdate_AppliesAtExpectedVersion(t *testing.T) {
	// setup
	ctx := context.Background()
	store := GivenSQLiteStore(t)

	// arrange
	GivenSeededAccount(t, store, 1, 100)

	// act
	rowsAffected, err := store.ConditionalUpdate(ctx, 1, decimal.NewFromInt(-10), 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), rowsAffected)

	snapshot := ReadSnapshot(t, store, 1)
	assert.True(t, decimal.NewFromInt(90).Equal(snapshot.Balance))
	assert.Equal(t, accountstore.Version(1), snapshot.Version)
}

func Test_ConditionalUpdate_RejectsStaleVersion(t *testing.T) {
	// setup
	ctx := context.Background()
	store := GivenSQLiteStore(t)

	// arrange
	GivenSeededAccount(t, store, 1, 100)
	_, err := store.ConditionalUpdate(ctx, 1, decimal.NewFromInt(5), 0)
	require.NoError(t, err)

	// act
	rowsAffected, err := store.ConditionalUpdate(ctx, 1, decimal.NewFromInt(-10), 0)

	// assert
	require.NoError(t, err, "a version conflict is not an error")
	assert.Equal(t, int64(0), rowsAffected)

	snapshot := ReadSnapshot(t, store, 1)
	assert.True(t, decimal.NewFromInt(105).Equal(snapshot.Balance))
	assert.Equal(t, accountstore.Version(1), snapshot.Version)
}

func Test_ConditionalUpdate_UnknownAccountIsNoMatch(t *testing.T) {
	// setup
	store := GivenSQLiteStore(t)

	// act
	rowsAffected, err := store.ConditionalUpdate(context.Background(), 9, decimal.NewFromInt(1), 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(0), rowsAffected)
}

func Test_ConditionalUpdate_DoesNotGuardTheBalance(t *testing.T) {
	// setup
	ctx := context.Background()
	store := GivenSQLiteStore(t)

	// arrange
	GivenSeededAccount(t, store, 1, 5)

	// act
	rowsAffected, err := store.ConditionalUpdate(ctx, 1, decimal.NewFromInt(-10), 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), rowsAffected)
	assert.True(t, decimal.NewFromInt(-5).Equal(ReadSnapshot(t, store, 1).Balance))
}

func Test_ConditionalUpdate_KeepsDecimalPrecision(t *testing.T) {
	// setup
	ctx := context.Background()
	store := GivenSQLiteStore(t)

	// arrange
	GivenSeededAccount(t, store, 1, 0)

	// act
	_, err := store.ConditionalUpdate(ctx, 1, decimal.RequireFromString("0.1"), 0)
	require.NoError(t, err)
	_, err = store.ConditionalUpdate(ctx, 1, decimal.RequireFromString("0.2"), 1)
	require.NoError(t, err)

	// assert
	assert.Equal(t, "0.3", ReadSnapshot(t, store, 1).Balance.String())
}

func Test_ConditionalUpdate_StoredBalanceMatchesAppliedSnapshot(t *testing.T) {
	// setup
	ctx := context.Background()
	store := GivenSQLiteStore(t)
	delta := decimal.RequireFromString("0.00005")

	// arrange
	initial := GivenSeededAccount(t, store, 1, 100)

	// act
	_, err := store.ConditionalUpdate(ctx, 1, delta, initial.Version)

	// assert
	require.NoError(t, err)
	assert.True(t, initial.Applied(delta).Equal(ReadSnapshot(t, store, 1)))
}

func Test_ConditionalUpdate_ConcurrentWritersAtSameVersion(t *testing.T) {
	// setup
	ctx := context.Background()
	store := GivenSQLiteStore(t)
	writers := 8

	// arrange
	GivenSeededAccount(t, store, 1, 100)

	// act
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := int64(0)

	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			rowsAffected, err := store.ConditionalUpdate(ctx, 1, decimal.NewFromInt(1), 0)
			assert.NoError(t, err)

			mu.Lock()
			applied += rowsAffected
			mu.Unlock()
		}()
	}
	wg.Wait()

	// assert
	assert.Equal(t, int64(1), applied, "exactly one writer may win a version")

	snapshot := ReadSnapshot(t, store, 1)
	assert.True(t, decimal.NewFromInt(101).Equal(snapshot.Balance))
	assert.Equal(t, accountstore.Version(1), snapshot.Version)
}

func Test_SeedAccount_ReplacesExistingRow(t *testing.T) {
	// setup
	ctx := context.Background()
	store := GivenSQLiteStore(t)

	// arrange
	GivenSeededAccount(t, store, 1, 100)
	_, err := store.ConditionalUpdate(ctx, 1, decimal.NewFromInt(-30), 0)
	require.NoError(t, err)

	// act
	err = store.SeedAccount(ctx, 1, decimal.NewFromInt(50), 7)

	// assert
	require.NoError(t, err)
	snapshot := ReadSnapshot(t, store, 1)
	assert.True(t, decimal.NewFromInt(50).Equal(snapshot.Balance))
	assert.Equal(t, accountstore.Version(7), snapshot.Version)
}

func Test_CreateTable_IsIdempotent(t *testing.T) {
	// setup
	store := GivenSQLiteStore(t)

	// act
	err := store.CreateTable(context.Background())

	// assert
	assert.NoError(t, err)
}

func Test_Store_WithCustomTableName(t *testing.T) {
	// setup
	store := GivenSQLiteStore(t, sqlengine.WithTableName("ledger_accounts"))

	// arrange
	GivenSeededAccount(t, store, 3, 12)

	// act
	snapshot, err := store.Read(context.Background(), 3)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "ledger_accounts", store.TableName())
	assert.Equal(t, sqlengine.DialectSQLite, store.Dialect())
	assert.True(t, decimal.NewFromInt(12).Equal(snapshot.Balance))
}

func Test_Store_OnSQLX(t *testing.T) {
	// setup
	db := sqlx.NewDb(GivenSQLiteDB(t), "sqlite")
	store, err := sqlengine.NewStoreFromSQLX(db, sqlengine.WithDialect(sqlengine.DialectSQLite))
	require.NoError(t, err)
	require.NoError(t, store.CreateTable(context.Background()))

	// arrange
	GivenSeededAccount(t, store, 1, 10)

	// act
	rowsAffected, err := store.ConditionalUpdate(context.Background(), 1, decimal.NewFromInt(2), 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), rowsAffected)
	assert.True(t, decimal.NewFromInt(12).Equal(ReadSnapshot(t, store, 1).Balance))
}

func Test_Store_ReadFailsWhenDatabaseIsClosed(t *testing.T) {
	// setup
	db := GivenSQLiteDB(t)
	store, err := sqlengine.NewStoreFromSQLDB(db, sqlengine.WithDialect(sqlengine.DialectSQLite))
	require.NoError(t, err)

	// arrange
	require.NoError(t, db.Close())

	// act
	_, readErr := store.Read(context.Background(), 1)
	_, updateErr := store.ConditionalUpdate(context.Background(), 1, decimal.NewFromInt(1), 0)

	// assert
	assert.ErrorIs(t, readErr, accountstore.ErrStoreUnavailable)
	assert.ErrorIs(t, updateErr, accountstore.ErrStoreUnavailable)
}

func Test_Read_CorruptedRowIsStoreUnavailable(t *testing.T) {
	for name, tc := range map[string]struct {
		balance  string
		version  string
		expected error
	}{
		"unparsable balance":  {balance: "'not-a-number'", version: "0", expected: accountstore.ErrParsingBalanceFailed},
		"unscannable version": {balance: "'10'", version: "'abc'", expected: accountstore.ErrScanningDBRowFailed},
	} {
		t.Run(name, func(t *testing.T) {
			// setup
			db := GivenSQLiteDB(t)
			store, err := sqlengine.NewStoreFromSQLDB(db, sqlengine.WithDialect(sqlengine.DialectSQLite))
			require.NoError(t, err)
			require.NoError(t, store.CreateTable(context.Background()))

			// arrange
			_, err = db.Exec("INSERT INTO accounts (id, balance, version) VALUES (1, " + tc.balance + ", " + tc.version + ")")
			require.NoError(t, err)

			// act
			_, readErr := store.Read(context.Background(), 1)

			// assert
			assert.ErrorIs(t, readErr, accountstore.ErrStoreUnavailable)
			assert.ErrorIs(t, readErr, tc.expected)
		})
	}
}

func Test_NewStore_OptionErrors(t *testing.T) {
	db := GivenSQLiteDB(t)

	t.Run("empty table name", func(t *testing.T) {
		_, err := sqlengine.NewStoreFromSQLDB(db, sqlengine.WithTableName(""))
		assert.ErrorIs(t, err, accountstore.ErrEmptyTableName)
	})

	t.Run("unknown dialect", func(t *testing.T) {
		_, err := sqlengine.NewStoreFromSQLDB(db, sqlengine.WithDialect("oracle"))
		assert.ErrorIs(t, err, accountstore.ErrUnknownDialect)
	})

	t.Run("nil sql.DB", func(t *testing.T) {
		_, err := sqlengine.NewStoreFromSQLDB(nil)
		assert.ErrorIs(t, err, accountstore.ErrNilDatabaseConnection)
	})

	t.Run("nil sqlx.DB", func(t *testing.T) {
		_, err := sqlengine.NewStoreFromSQLX(nil)
		assert.ErrorIs(t, err, accountstore.ErrNilDatabaseConnection)
	})

	t.Run("nil pgx pool", func(t *testing.T) {
		_, err := sqlengine.NewStoreFromPGXPool(nil)
		assert.ErrorIs(t, err, accountstore.ErrNilDatabaseConnection)
	})

	t.Run("nil replica pool", func(t *testing.T) {
		_, err := sqlengine.NewStoreFromPGXPoolWithReplica(nil, nil)
		assert.ErrorIs(t, err, accountstore.ErrNilDatabaseConnection)
	})
}
