// Package postgreswrapper creates Postgres-backed account stores for tests.
//
// The tests using it are skipped unless POSTGRES_TEST_DSN is set. ADAPTER_TYPE selects the
// database adapter: "pgx.pool" (default), "sql.db" or "sqlx.db".
package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/sqlengine"
	"github.com/AntonStoeckl/occ-balance-simulator-go/config"
)

// Adapter type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"

	maxTableSuffix = 50
)

// Wrapper abstracts over the different database adapters.
type Wrapper interface {
	GetStore() *sqlengine.Store
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing.
type PGXPoolWrapper struct {
	pool  *pgxpool.Pool
	store *sqlengine.Store
}

func (w *PGXPoolWrapper) GetStore() *sqlengine.Store {
	return w.store
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// Pool exposes the underlying pool.
func (w *PGXPoolWrapper) Pool() *pgxpool.Pool {
	return w.pool
}

// SQLDBWrapper wraps sql.DB-based testing.
type SQLDBWrapper struct {
	db    *sql.DB
	store *sqlengine.Store
}

func (w *SQLDBWrapper) GetStore() *sqlengine.Store {
	return w.store
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close()
}

// SQLXWrapper wraps sqlx.DB-based testing.
type SQLXWrapper struct {
	db    *sqlx.DB
	store *sqlengine.Store
}

func (w *SQLXWrapper) GetStore() *sqlengine.Store {
	return w.store
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close()
}

// CreateWrapperWithTestConfig creates the wrapper selected by ADAPTER_TYPE with a per-test table,
// or skips the test when no Postgres DSN is configured. The table is created before returning.
func CreateWrapperWithTestConfig(t testing.TB, options ...sqlengine.Option) Wrapper {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN is not set")
	}

	ctx := context.Background()
	tableName := fmt.Sprintf("accounts_%s", strings.ToLower(sanitize(t.Name())))
	options = append(options, sqlengine.WithTableName(tableName))

	var wrapper Wrapper

	switch adapterType := strings.ToLower(os.Getenv("ADAPTER_TYPE")); adapterType {
	case typePGXPool, "":
		pool, err := config.OpenPGXPool(ctx, dsn)
		require.NoError(t, err, "error connecting to DB pool in test setup")

		store, err := sqlengine.NewStoreFromPGXPool(pool, options...)
		require.NoError(t, err, "error creating store")

		wrapper = &PGXPoolWrapper{pool: pool, store: store}

	case typeSQLDB:
		db, err := config.OpenSQLDB(ctx, dsn)
		require.NoError(t, err, "error connecting to DB in test setup")

		store, err := sqlengine.NewStoreFromSQLDB(db, options...)
		require.NoError(t, err, "error creating store")

		wrapper = &SQLDBWrapper{db: db, store: store}

	case typeSQLXDB:
		db, err := config.OpenSQLX(ctx, dsn)
		require.NoError(t, err, "error connecting to DB in test setup")

		store, err := sqlengine.NewStoreFromSQLX(db, options...)
		require.NoError(t, err, "error creating store")

		wrapper = &SQLXWrapper{db: db, store: store}

	default:
		t.Fatalf("unsupported adapter type from env: %s", adapterType)
	}

	require.NoError(t, wrapper.GetStore().CreateTable(ctx), "error creating accounts table")
	t.Cleanup(wrapper.Close)

	return wrapper
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	if b.Len() > maxTableSuffix {
		return b.String()[b.Len()-maxTableSuffix:]
	}

	return b.String()
}
