// Package helper provides testing utilities for the account store, the balance cache and the
// mutation protocol.
//
// It contains spies for the observability interfaces, SQLite-backed store fixtures, and
// test doubles that inject concurrent writers or failures into the mutation loop.
package helper
