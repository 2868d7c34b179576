// Package balancecache provides the read-through cache in front of the durable account store.
//
// Every account is cached as two independent keys, one for the balance and one for the version.
// The cache is never authoritative: entries may be missing or stale, and the optimistic update
// against the durable store rejects any stale version. A pair with either key missing is a full
// miss and is reloaded through the supplied loader.
//
// Pair operations run under a mutex so one caller's balance/version pair never interleaves with
// another caller's pair, and a populate after a miss never overwrites a pair that already holds a
// higher version.
package balancecache
