package simulation

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/mutation"
)

const (
	logMsgActorStarted = "actor started"
	logMsgActorStopped = "actor stopped"
	logMsgActorFailed  = "actor failed"
	logAttrActor       = "actor"
	logAttrDirection   = "direction"
	logAttrMagnitude   = "magnitude"
	logAttrSuccesses   = "successes"
	logAttrSum         = "sum"
	logAttrStopReason  = "stop_reason"
	logAttrError       = "error"
	logAttrRunID       = "run_id"
)

// StopReason tells why an actor stopped.
type StopReason int

const (
	// StopInsufficientFunds means a debit was not covered by the balance.
	StopInsufficientFunds StopReason = iota + 1

	// StopCompletionThreshold means the actor applied as many mutations as there are actors.
	StopCompletionThreshold

	// StopFailure means a mutation failed with an error.
	StopFailure
)

// String returns the snake_case name of the stop reason.
func (r StopReason) String() string {
	switch r {
	case StopInsufficientFunds:
		return "insufficient_funds"
	case StopCompletionThreshold:
		return "completion_threshold"
	case StopFailure:
		return "failure"
	default:
		return "running"
	}
}

// Mutator applies one mutation, see mutation.Mutator.
type Mutator interface {
	Mutate(
		ctx context.Context,
		id accountstore.AccountID,
		magnitude decimal.Decimal,
		direction mutation.Direction,
	) (mutation.Result, error)
}

// ActorResult is the state an actor owned, handed over once it stopped.
type ActorResult struct {
	Index      int
	Direction  mutation.Direction
	Successes  int
	Sum        decimal.Decimal
	Conflicts  int
	StopReason StopReason
	Err        error
}

// Actor repeatedly mutates the shared account in a fixed direction with a growing magnitude.
type Actor struct {
	index      int
	direction  mutation.Direction
	mutator    Mutator
	settings   Settings
	increments IncrementSource
	logger     accountstore.Logger
	logArgs    []any
}

// NewActor creates actor index of settings.ActorCount actors.
// A nil increments uses UniformIncrements, a nil logger disables logging.
func NewActor(
	index int,
	mutator Mutator,
	settings Settings,
	increments IncrementSource,
	logger accountstore.Logger,
) *Actor {

	if increments == nil {
		increments = UniformIncrements{}
	}

	direction := DirectionFor(index, settings.ActorCount)

	return &Actor{
		index:      index,
		direction:  direction,
		mutator:    mutator,
		settings:   settings,
		increments: increments,
		logger:     logger,
		logArgs:    []any{logAttrActor, index, logAttrDirection, direction.String()},
	}
}

// Direction returns the direction the actor mutates in.
func (a *Actor) Direction() mutation.Direction {
	return a.direction
}

// Run mutates until the actor stops and returns what it achieved.
// A committed mutation whose cache update failed still counts as a success before the actor stops.
func (a *Actor) Run(ctx context.Context) ActorResult {
	result := ActorResult{
		Index:     a.index,
		Direction: a.direction,
		Sum:       decimal.Zero,
	}
	magnitude := a.settings.InitialMagnitude

	a.logInfo(logMsgActorStarted, logAttrMagnitude, magnitude.String())

	for {
		mutated, err := a.mutator.Mutate(ctx, a.settings.AccountID, magnitude, a.direction)
		result.Conflicts += mutated.Conflicts

		if mutated.Outcome == mutation.Applied {
			result.Successes++
			result.Sum = result.Sum.Add(magnitude)
		}

		if err != nil {
			result.StopReason = StopFailure
			result.Err = err
			a.logError(logMsgActorFailed, logAttrError, err.Error(), logAttrSuccesses, result.Successes)

			return result
		}

		if mutated.Outcome == mutation.InsufficientFunds {
			return a.stop(result, StopInsufficientFunds)
		}

		if result.Successes == a.settings.ActorCount {
			return a.stop(result, StopCompletionThreshold)
		}

		magnitude = magnitude.Add(growth(a.increments.Next(a.settings.GrowthMin, a.settings.GrowthMax)))
	}
}

func (a *Actor) stop(result ActorResult, reason StopReason) ActorResult {
	result.StopReason = reason
	a.logInfo(logMsgActorStopped,
		logAttrStopReason, reason.String(),
		logAttrSuccesses, result.Successes,
		logAttrSum, result.Sum.String(),
	)

	return result
}

// withRunID adds the run id to every log line of the actor.
func (a *Actor) withRunID(runID string) *Actor {
	a.logArgs = append(a.logArgs, logAttrRunID, runID)
	return a
}

func (a *Actor) logInfo(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Info(msg, append(append([]any{}, a.logArgs...), args...)...)
	}
}

func (a *Actor) logError(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Error(msg, append(append([]any{}, a.logArgs...), args...)...)
	}
}
