package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/mutation"
)

// ErrInvalidSettings is returned (joined with the reason) when Settings cannot drive a simulation.
var ErrInvalidSettings = errors.New("invalid simulation settings")

// Settings are the parameters shared by all actors of one run.
type Settings struct {
	AccountID        accountstore.AccountID
	ActorCount       int
	InitialMagnitude decimal.Decimal
	GrowthMin        float64
	GrowthMax        float64
}

// DefaultSettings returns five actors on account 1 starting at magnitude 10 and growing by 1 to 5.
func DefaultSettings() Settings {
	return Settings{
		AccountID:        1,
		ActorCount:       5,
		InitialMagnitude: decimal.NewFromInt(10),
		GrowthMin:        1,
		GrowthMax:        5,
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if s.ActorCount < 1 {
		return errors.Join(ErrInvalidSettings, fmt.Errorf("actor count must be at least 1, got %d", s.ActorCount))
	}

	if !s.InitialMagnitude.IsPositive() {
		return errors.Join(ErrInvalidSettings, fmt.Errorf("initial magnitude must be positive, got %s", s.InitialMagnitude))
	}

	if s.GrowthMin < 1 || s.GrowthMax < s.GrowthMin {
		return errors.Join(ErrInvalidSettings, fmt.Errorf("growth range must satisfy 1 <= min <= max, got [%g, %g]", s.GrowthMin, s.GrowthMax))
	}

	return nil
}

// DirectionFor returns the direction of actor index out of actorCount actors:
// Debit for index <= actorCount/2 (integer division), Credit otherwise.
func DirectionFor(index, actorCount int) mutation.Direction {
	if index <= actorCount/2 {
		return mutation.Debit
	}

	return mutation.Credit
}

// IncrementSource draws the raw magnitude growth from the half-open range [lower, upper), or
// returns lower when both bounds are equal. The actor rounds the draw up to a whole amount, so the
// growth of the default source is a whole number in [ceil(lower), ceil(upper)].
type IncrementSource interface {
	Next(lower, upper float64) float64
}

// IncrementFunc adapts a function to IncrementSource.
type IncrementFunc func(lower, upper float64) float64

// Next calls f.
func (f IncrementFunc) Next(lower, upper float64) float64 {
	return f(lower, upper)
}

// UniformIncrements draws uniformly distributed growth from math/rand/v2.
type UniformIncrements struct{}

// Next returns a uniformly distributed value in [lower, upper).
func (UniformIncrements) Next(lower, upper float64) float64 {
	return lower + rand.Float64()*(upper-lower) //nolint:gosec // not security relevant
}

// growth rounds a raw increment up to a whole amount.
func growth(raw float64) decimal.Decimal {
	return decimal.NewFromFloat(math.Ceil(raw))
}
