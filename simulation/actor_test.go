package simulation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/balancecache"
	"github.com/AntonStoeckl/occ-balance-simulator-go/mutation"
	. "github.com/AntonStoeckl/occ-balance-simulator-go/simulation"     //nolint:revive
	. "github.com/AntonStoeckl/occ-balance-simulator-go/testutil/helper" //nolint:revive
)

// fixedIncrements always grows the magnitude by ceil(raw).
func fixedIncrements(raw float64) IncrementSource {
	return IncrementFunc(func(float64, float64) float64 { return raw })
}

func givenSettings(actorCount int) Settings {
	settings := DefaultSettings()
	settings.ActorCount = actorCount

	return settings
}

func givenInMemoryMutator(t *testing.T, balance int64) (*mutation.Mutator, *FaultyStore) {
	t.Helper()

	store := NewFaultyStore(accountstore.Snapshot{Balance: decimal.NewFromInt(balance)})
	mutator, err := mutation.NewMutator(store, mutation.WithBackoff(mutation.NoBackoff{}))
	require.NoError(t, err)

	return mutator, store
}

type scriptedMutator struct {
	calls  int
	script func(call int, magnitude decimal.Decimal) (mutation.Result, error)
}

func (m *scriptedMutator) Mutate(
	_ context.Context,
	_ accountstore.AccountID,
	magnitude decimal.Decimal,
	_ mutation.Direction,
) (mutation.Result, error) {

	m.calls++

	return m.script(m.calls, magnitude)
}

func Test_DirectionFor(t *testing.T) {
	directions := make([]mutation.Direction, 0, 5)
	for index := range 5 {
		directions = append(directions, DirectionFor(index, 5))
	}

	assert.Equal(t, []mutation.Direction{
		mutation.Debit, mutation.Debit, mutation.Debit, mutation.Credit, mutation.Credit,
	}, directions)
	assert.Equal(t, mutation.Debit, DirectionFor(0, 1))
	assert.Equal(t, mutation.Credit, DirectionFor(2, 2))
}

func Test_Actor_StopsAtCompletionThreshold(t *testing.T) {
	// setup
	mutator, store := givenInMemoryMutator(t, 100)
	actor := NewActor(0, mutator, givenSettings(3), fixedIncrements(1.2), nil)

	// act
	result := actor.Run(context.Background())

	// assert
	assert.Equal(t, StopCompletionThreshold, result.StopReason)
	assert.Equal(t, 3, result.Successes)
	assert.True(t, decimal.NewFromInt(36).Equal(result.Sum), "10 + 12 + 14")
	assert.NoError(t, result.Err)
	assert.True(t, decimal.NewFromInt(64).Equal(store.Snapshot().Balance))
}

func Test_Actor_StopsOnInsufficientFunds(t *testing.T) {
	// setup
	mutator, store := givenInMemoryMutator(t, 20)
	logSpy := NewLogHandlerSpy(false)
	actor := NewActor(0, mutator, givenSettings(3), fixedIncrements(2), logSpy.Logger())

	// act
	result := actor.Run(context.Background())

	// assert
	assert.Equal(t, StopInsufficientFunds, result.StopReason)
	assert.Equal(t, 1, result.Successes)
	assert.True(t, decimal.NewFromInt(10).Equal(result.Sum))
	assert.True(t, decimal.NewFromInt(10).Equal(store.Snapshot().Balance))
	assert.True(t, logSpy.HasInfoLogWithMessage("actor stopped").
		WithAttrValue("stop_reason", "insufficient_funds").WithAttrValue("actor", "0").Assert())
}

func Test_Actor_CreditActorNeverRunsOutOfFunds(t *testing.T) {
	// setup
	mutator, store := givenInMemoryMutator(t, 0)
	actor := NewActor(2, mutator, givenSettings(3), fixedIncrements(5), nil)

	// act
	result := actor.Run(context.Background())

	// assert
	assert.Equal(t, mutation.Credit, actor.Direction())
	assert.Equal(t, StopCompletionThreshold, result.StopReason)
	assert.True(t, decimal.NewFromInt(45).Equal(store.Snapshot().Balance), "10 + 15 + 20")
}

func Test_Actor_StopsOnFailure(t *testing.T) {
	// setup
	storeErr := errors.Join(accountstore.ErrStoreUnavailable, errors.New("connection reset"))
	mutator := &scriptedMutator{script: func(call int, _ decimal.Decimal) (mutation.Result, error) {
		if call == 1 {
			return mutation.Result{Outcome: mutation.Applied, Conflicts: 2}, nil
		}

		return mutation.Result{Conflicts: 1}, storeErr
	}}
	actor := NewActor(0, mutator, givenSettings(5), fixedIncrements(1), nil)

	// act
	result := actor.Run(context.Background())

	// assert
	assert.Equal(t, StopFailure, result.StopReason)
	assert.ErrorIs(t, result.Err, accountstore.ErrStoreUnavailable)
	assert.Equal(t, 1, result.Successes)
	assert.Equal(t, 3, result.Conflicts)
	assert.Equal(t, 2, mutator.calls, "a failed actor does not retry")
}

func Test_Actor_CommittedMutationWithCacheFailureCounts(t *testing.T) {
	// setup
	cacheErr := errors.Join(balancecache.ErrCacheUnavailable, errors.New("timeout"))
	mutator := &scriptedMutator{script: func(int, decimal.Decimal) (mutation.Result, error) {
		return mutation.Result{Outcome: mutation.Applied}, cacheErr
	}}
	actor := NewActor(0, mutator, givenSettings(5), fixedIncrements(1), nil)

	// act
	result := actor.Run(context.Background())

	// assert
	assert.Equal(t, StopFailure, result.StopReason)
	assert.Equal(t, 1, result.Successes)
	assert.True(t, decimal.NewFromInt(10).Equal(result.Sum))
}

func Test_Actor_GrowthIsRoundedUp(t *testing.T) {
	// setup
	magnitudes := make([]string, 0, 3)
	mutator := &scriptedMutator{script: func(_ int, magnitude decimal.Decimal) (mutation.Result, error) {
		magnitudes = append(magnitudes, magnitude.String())
		return mutation.Result{Outcome: mutation.Applied}, nil
	}}
	actor := NewActor(0, mutator, givenSettings(3), fixedIncrements(3.01), nil)

	// act
	_ = actor.Run(context.Background())

	// assert
	assert.Equal(t, []string{"10", "14", "18"}, magnitudes)
}

func Test_StopReason_String(t *testing.T) {
	assert.Equal(t, "insufficient_funds", StopInsufficientFunds.String())
	assert.Equal(t, "completion_threshold", StopCompletionThreshold.String())
	assert.Equal(t, "failure", StopFailure.String())
	assert.Equal(t, "running", StopReason(0).String())
}
