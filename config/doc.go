// Package config provides the configuration of the balance simulator and the database
// connection builders for every supported adapter.
//
// Configuration is read from environment variables first and can then be overridden with
// command-line flags. The connection builders create pgx.Pool, sql.DB (lib/pq or SQLite)
// and sqlx.DB connections with tuned pool settings.
package config
