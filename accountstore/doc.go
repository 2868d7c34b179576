// Package accountstore provides core abstractions and types for a versioned account
// balance that is mutated with optimistic concurrency control.
//
// This package defines the types shared by the store engines, the cache layer and the
// mutation protocol: the account identifier, the versioned Snapshot, the common error
// definitions, consistency routing and the dependency-free observability interfaces.
//
// The durable record is a single row per account:
//
//	accounts(id, balance, version)
//
// Every successful conditional update increments the version by exactly one, which makes
// the version usable as the optimistic-lock token:
//
//	snapshot, err := store.Read(ctx, accountID)
//	if err != nil {
//		// handle error
//	}
//
//	applied, err := store.ConditionalUpdate(ctx, accountID, delta, snapshot.Version)
//	if applied == 0 {
//		// somebody else committed first: re-read and decide again
//	}
package accountstore
