package simulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

const (
	logMsgRunStarted  = "simulation started"
	logMsgRunFinished = "simulation finished"
	logAttrActors     = "actors"
	logAttrAccountID  = "account_id"
	logAttrConflicts  = "conflicts"
	logAttrSigned     = "net_change"
	logAttrConsistent = "consistent"
)

var (
	// ErrNilMutator is returned when a nil mutator is supplied to NewRunner.
	ErrNilMutator = errors.New("mutator must not be nil")

	// ErrReadingSnapshotFailed is returned (joined with the cause) when the account state before or
	// after the run cannot be read.
	ErrReadingSnapshotFailed = errors.New("reading the account snapshot failed")
)

// Reader reads the authoritative account state, typically the durable store.
type Reader interface {
	Read(ctx context.Context, id accountstore.AccountID) (accountstore.Snapshot, error)
}

// RunnerOption defines a functional option for configuring Runner.
type RunnerOption func(*Runner) error

// WithReader makes the runner read the account before and after the run and attach both
// snapshots to the Report.
func WithReader(reader Reader) RunnerOption {
	return func(r *Runner) error {
		r.reader = reader
		return nil
	}
}

// WithIncrementSource sets the factory of the per-actor increment sources.
func WithIncrementSource(factory func(index int) IncrementSource) RunnerOption {
	return func(r *Runner) error {
		r.newIncrements = factory
		return nil
	}
}

// WithLogger sets the logger of the runner and its actors.
func WithLogger(logger accountstore.Logger) RunnerOption {
	return func(r *Runner) error {
		r.logger = logger
		return nil
	}
}

// Runner starts the actors of one simulation, waits for all of them, and aggregates their results.
type Runner struct {
	mutator       Mutator
	settings      Settings
	reader        Reader
	newIncrements func(index int) IncrementSource
	logger        accountstore.Logger
}

// NewRunner creates a Runner.
func NewRunner(mutator Mutator, settings Settings, options ...RunnerOption) (*Runner, error) {
	if mutator == nil {
		return nil, ErrNilMutator
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		mutator:  mutator,
		settings: settings,
		newIncrements: func(int) IncrementSource {
			return UniformIncrements{}
		},
	}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Run executes one simulation. Actor failures are part of the Report, not errors; Run returns an
// error only if the run id cannot be generated or the account cannot be read before or after the run.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}

	var initial accountstore.Snapshot
	if r.reader != nil {
		if initial, err = r.reader.Read(ctx, r.settings.AccountID); err != nil {
			return Report{}, errors.Join(ErrReadingSnapshotFailed, err)
		}
	}

	if r.logger != nil {
		r.logger.Info(logMsgRunStarted,
			logAttrRunID, runID.String(),
			logAttrAccountID, r.settings.AccountID,
			logAttrActors, r.settings.ActorCount,
		)
	}

	results := make(chan ActorResult, r.settings.ActorCount)

	var group errgroup.Group
	for index := range r.settings.ActorCount {
		actor := NewActor(index, r.mutator, r.settings, r.newIncrements(index), r.logger).withRunID(runID.String())

		group.Go(func() error {
			results <- actor.Run(ctx)
			return nil
		})
	}

	_ = group.Wait() // actors report failures in their results
	close(results)

	collected := make([]ActorResult, 0, r.settings.ActorCount)
	for result := range results {
		collected = append(collected, result)
	}

	report := Aggregate(collected)
	report.RunID = runID.String()
	report.AccountID = r.settings.AccountID

	if r.reader != nil {
		final, readErr := r.reader.Read(context.WithoutCancel(ctx), r.settings.AccountID)
		if readErr != nil {
			return report, errors.Join(ErrReadingSnapshotFailed, readErr)
		}

		report = report.WithSnapshots(initial, final)
	}

	if r.logger != nil {
		r.logger.Info(logMsgRunFinished,
			logAttrRunID, report.RunID,
			logAttrSuccesses, report.TotalSuccesses,
			logAttrConflicts, report.TotalConflicts,
			logAttrSigned, report.TotalSigned.String(),
			logAttrConsistent, report.Consistent(),
		)
	}

	return report, nil
}
