// Package simulation runs a fixed number of concurrent actors against one shared account and
// aggregates what they achieved.
//
// Actor i of N debits the account when i <= N/2 and credits it otherwise. Every actor starts with
// the same magnitude, grows it by a random whole amount after each applied mutation, and stops when
// it has applied N mutations, when a debit is not covered, or when a mutation fails.
//
// Each actor owns its counters; the Runner collects the per-actor results over a channel only
// after all actors have stopped, and Aggregate turns them into a Report.
package simulation
