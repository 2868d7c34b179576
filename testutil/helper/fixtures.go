package helper

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/sqlengine"
	"github.com/AntonStoeckl/occ-balance-simulator-go/config"
)

// GivenSQLiteDB opens a fresh SQLite database file in a temporary directory.
// The database is closed when the test ends.
func GivenSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := config.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err, "error opening sqlite database in test setup")

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// GivenSQLiteStore creates a SQLite-backed store with its accounts table created.
func GivenSQLiteStore(t testing.TB, options ...sqlengine.Option) *sqlengine.Store {
	t.Helper()

	options = append([]sqlengine.Option{sqlengine.WithDialect(sqlengine.DialectSQLite)}, options...)

	store, err := sqlengine.NewStoreFromSQLDB(GivenSQLiteDB(t), options...)
	require.NoError(t, err, "error creating store in test setup")
	require.NoError(t, store.CreateTable(context.Background()), "error creating accounts table in test setup")

	return store
}

// GivenSeededAccount seeds the account with balance at version 0.
func GivenSeededAccount(t testing.TB, store *sqlengine.Store, id accountstore.AccountID, balance int64) accountstore.Snapshot {
	t.Helper()

	snapshot := accountstore.Snapshot{Balance: decimal.NewFromInt(balance), Version: 0}
	require.NoError(t, store.SeedAccount(context.Background(), id, snapshot.Balance, snapshot.Version),
		"error seeding account in test setup")

	return snapshot
}

// ReadSnapshot reads the current snapshot of the account and fails the test on error.
func ReadSnapshot(t testing.TB, store *sqlengine.Store, id accountstore.AccountID) accountstore.Snapshot {
	t.Helper()

	snapshot, err := store.Read(context.Background(), id)
	require.NoError(t, err, "error reading account snapshot")

	return snapshot
}
