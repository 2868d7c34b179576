// Package sqlengine provides SQL implementations of the durable account store.
//
// The store persists one row per account with a balance and a version and exposes the
// two operations the optimistic mutation protocol needs: a point read and a conditional
// update that applies a signed delta only when the persisted version still equals the
// version the caller observed.
//
// Key features:
//   - Multiple database adapter support (pgx.Pool with optional read replica, sql.DB, sqlx.DB)
//   - PostgreSQL and SQLite dialects, SQL built with goqu
//   - Version-guarded updates; a version mismatch is a normal outcome (0 rows), not an error
//   - Optional logging, contextual logging, metrics and tracing
//
// Usage examples:
//
//	// PostgreSQL via pgx
//	pool, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := sqlengine.NewStoreFromPGXPool(pool)
//
//	// SQLite via database/sql, with operational logging
//	db, _ := sql.Open("sqlite", path)
//	store, _ := sqlengine.NewStoreFromSQLDB(
//		db,
//		sqlengine.WithDialect(sqlengine.DialectSQLite),
//		sqlengine.WithLogger(slog.Default()),
//	)
//
//	snapshot, _ := store.Read(ctx, accountID)
//	applied, _ := store.ConditionalUpdate(ctx, accountID, delta, snapshot.Version)
package sqlengine
