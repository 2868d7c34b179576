// Package adapters provide database adapter implementations for the account store engines.
//
// This package implements the adapter pattern to support multiple database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, so the account store issues the same read and
// conditional update statements regardless of the connection type.
//
// The sql.DB adapter is also used for SQLite connections opened with modernc.org/sqlite.
package adapters
