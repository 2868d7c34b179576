package accountstore

import "context"

// ConsistencyLevel defines which database node an account read may be served from.
type ConsistencyLevel int

const (
	// StrongConsistency requires reads from the primary database. This is the default,
	// so a snapshot read right after a committed update reflects that update.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reads from a replica database. A replica snapshot may lag
	// behind the primary; the conditional update still runs against the primary and rejects
	// a lagging version as a conflict, so the mutation protocol stays correct.
	EventualConsistency
)

// contextKey is a private type to prevent context key collisions.
type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "accountstore.consistency_level"

// WithStrongConsistency returns a context that routes account reads to the primary database.
//
// Example usage:
//
//	ctx = accountstore.WithStrongConsistency(ctx)
//	snapshot, err := store.Read(ctx, accountID)
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that allows account reads from a replica database.
//
// Example usage:
//
//	ctx = accountstore.WithEventualConsistency(ctx)
//	snapshot, err := store.Read(ctx, accountID)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context.
// If no consistency level is set, it returns StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String provides a string representation of ConsistencyLevel for logging and debugging.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
