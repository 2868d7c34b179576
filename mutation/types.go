package mutation

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

var (
	// ErrNonPositiveMagnitude is returned when a mutation magnitude is zero or negative.
	ErrNonPositiveMagnitude = errors.New("mutation magnitude must be positive")

	// ErrUnknownDirection is returned when a direction is neither Debit nor Credit.
	ErrUnknownDirection = errors.New("unknown mutation direction")

	// ErrNilStore is returned when a nil store is supplied to NewMutator.
	ErrNilStore = errors.New("store must not be nil")

	// ErrNilCache is returned when a nil cache is supplied to WithCache.
	ErrNilCache = errors.New("cache must not be nil")

	// ErrNilBackoff is returned when a nil backoff policy is supplied to WithBackoff.
	ErrNilBackoff = errors.New("backoff policy must not be nil")
)

// Direction is the sign of a mutation.
type Direction int

const (
	// Debit subtracts the magnitude and is rejected when the balance does not cover it.
	Debit Direction = iota + 1

	// Credit adds the magnitude. Credits are never capped.
	Credit
)

// String returns "debit", "credit" or "unknown".
func (d Direction) String() string {
	switch d {
	case Debit:
		return "debit"
	case Credit:
		return "credit"
	default:
		return "unknown"
	}
}

// Valid reports whether d is Debit or Credit.
func (d Direction) Valid() bool {
	return d == Debit || d == Credit
}

// Signed returns magnitude with the sign of d: negative for debits, positive for credits.
func (d Direction) Signed(magnitude decimal.Decimal) decimal.Decimal {
	if d == Debit {
		return magnitude.Neg()
	}

	return magnitude
}

// Outcome is the terminal result of a Mutate call that did not fail.
type Outcome int

const (
	// Applied means the conditional update committed the delta.
	Applied Outcome = iota + 1

	// InsufficientFunds means a debit was not covered by the observed balance; nothing was written.
	InsufficientFunds
)

// String returns "applied" or "insufficient_funds".
func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case InsufficientFunds:
		return "insufficient_funds"
	default:
		return "unknown"
	}
}

// Result describes a resolved mutation.
//
// For Applied, Delta is the committed signed delta and Snapshot the state right after the commit.
// For InsufficientFunds, Delta is the rejected signed delta and Snapshot the state the decision
// was based on.
type Result struct {
	Outcome   Outcome
	Delta     decimal.Decimal
	Snapshot  accountstore.Snapshot
	Attempts  int
	Conflicts int
}
