package mutation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/balancecache"
)

// Store is the durable account store the mutator writes to.
type Store interface {
	Read(ctx context.Context, id accountstore.AccountID) (accountstore.Snapshot, error)
	ConditionalUpdate(
		ctx context.Context,
		id accountstore.AccountID,
		delta decimal.Decimal,
		expectedVersion accountstore.Version,
	) (int64, error)
}

// Cache is the read-through cache in front of the Store.
type Cache interface {
	ReadThrough(ctx context.Context, id accountstore.AccountID, load balancecache.Loader) (accountstore.Snapshot, error)
	WriteThrough(ctx context.Context, id accountstore.AccountID, snapshot accountstore.Snapshot) error
	Invalidate(ctx context.Context, id accountstore.AccountID) error
}

// Mutator applies debits and credits to an account with optimistic concurrency control.
// It is safe for concurrent use.
type Mutator struct {
	store            Store
	cache            Cache
	backoff          BackoffPolicy
	logger           accountstore.Logger
	contextualLogger accountstore.ContextualLogger
	metricsCollector accountstore.MetricsCollector
	tracingCollector accountstore.TracingCollector
	replicaReads     bool
}

// NewMutator creates a Mutator on top of store.
func NewMutator(store Store, options ...Option) (*Mutator, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	m := &Mutator{
		store:   store,
		cache:   balancecache.Disabled{},
		backoff: FixedBackoff{Delay: DefaultConflictBackoff},
	}

	for _, option := range options {
		if err := option(m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Mutate applies magnitude in the given direction to the account and retries on version conflicts
// until the mutation is applied or rejected for insufficient funds.
//
// A debit is rejected when the balance on the primary is lower than magnitude; a cached or replica
// snapshot that does not cover the debit is confirmed against the primary first. Credits are never
// rejected.
// Store and cache failures end the loop with an error. If the cache cannot be updated after a
// committed update, the returned Result still describes the committed change and the error
// wraps balancecache.ErrCacheUnavailable.
func (m *Mutator) Mutate(
	ctx context.Context,
	id accountstore.AccountID,
	magnitude decimal.Decimal,
	direction Direction,
) (Result, error) {

	if !magnitude.IsPositive() {
		return Result{}, ErrNonPositiveMagnitude
	}

	if !direction.Valid() {
		return Result{}, ErrUnknownDirection
	}

	tracer, ctx := m.startTracing(ctx, id, magnitude, direction)
	start := time.Now()
	result := Result{Delta: direction.Signed(magnitude)}

	for {
		result.Attempts++

		snapshot, authoritative, readErr := m.read(ctx, id, result.Attempts)
		if readErr != nil {
			return result, m.fail(ctx, tracer, result, start, stageRead, readErr)
		}

		if direction == Debit && snapshot.Balance.LessThan(magnitude) && !authoritative {
			confirmed, stage, confirmErr := m.confirmFromPrimary(ctx, id, snapshot)
			if confirmErr != nil {
				return result, m.fail(ctx, tracer, result, start, stage, confirmErr)
			}

			snapshot = confirmed
		}

		if direction == Debit && snapshot.Balance.LessThan(magnitude) {
			result.Outcome = InsufficientFunds
			result.Snapshot = snapshot
			m.logInfo(ctx, logMsgInsufficientBalance,
				logAttrAccountID, id,
				logAttrNeeded, magnitude.String(),
				logAttrHas, snapshot.Balance.String(),
				logAttrVersion, snapshot.Version,
			)
			m.resolve(ctx, tracer, result, start)

			return result, nil
		}

		rowsAffected, updateErr := m.store.ConditionalUpdate(ctx, id, result.Delta, snapshot.Version)
		if updateErr != nil {
			return result, m.fail(ctx, tracer, result, start, stageUpdate, updateErr)
		}

		if rowsAffected > 0 {
			committed := snapshot.Applied(result.Delta)
			result.Outcome = Applied
			result.Snapshot = committed
			m.logApplied(ctx, id, magnitude, direction, committed)

			if writeErr := m.cache.WriteThrough(ctx, id, committed); writeErr != nil {
				return result, m.fail(ctx, tracer, result, start, stageWriteThrough, writeErr)
			}

			m.resolve(ctx, tracer, result, start)

			return result, nil
		}

		result.Conflicts++
		m.logInfo(ctx, logMsgVersionConflict,
			logAttrAccountID, id,
			logAttrDirection, direction.String(),
			logAttrExpectedVersion, snapshot.Version,
			logAttrConflicts, result.Conflicts,
		)
		accountstore.IncrementCounter(ctx, m.metricsCollector, metricConflicts, map[string]string{
			labelDirection: direction.String(),
		})

		if invalidateErr := m.cache.Invalidate(ctx, id); invalidateErr != nil {
			return result, m.fail(ctx, tracer, result, start, stageInvalidate, invalidateErr)
		}

		if waitErr := m.backoff.Wait(ctx, result.Conflicts); waitErr != nil {
			return result, m.fail(ctx, tracer, result, start, stageBackoff, waitErr)
		}
	}
}

// read returns the snapshot of the account and whether it came straight from the primary.
// Only the first attempt may read from a replica; after a conflict the primary is read.
func (m *Mutator) read(
	ctx context.Context,
	id accountstore.AccountID,
	attempt int,
) (accountstore.Snapshot, bool, error) {

	fromReplica := m.replicaReads && attempt == 1
	if fromReplica {
		ctx = accountstore.WithEventualConsistency(ctx)
	}

	loaded := false
	snapshot, err := m.cache.ReadThrough(ctx, id, func(
		loadCtx context.Context,
		loadID accountstore.AccountID,
	) (accountstore.Snapshot, error) {

		loaded = true
		return m.store.Read(loadCtx, loadID)
	})

	return snapshot, loaded && !fromReplica, err
}

// confirmFromPrimary re-reads a snapshot that does not cover a debit from the primary.
// A newer primary version is written through and replaces the observed snapshot.
func (m *Mutator) confirmFromPrimary(
	ctx context.Context,
	id accountstore.AccountID,
	observed accountstore.Snapshot,
) (accountstore.Snapshot, string, error) {

	current, err := m.store.Read(accountstore.WithStrongConsistency(ctx), id)
	if err != nil {
		return observed, stageConfirm, err
	}

	if current.Version <= observed.Version {
		return observed, "", nil
	}

	if writeErr := m.cache.WriteThrough(ctx, id, current); writeErr != nil {
		return current, stageWriteThrough, writeErr
	}

	return current, "", nil
}

func (m *Mutator) logApplied(
	ctx context.Context,
	id accountstore.AccountID,
	magnitude decimal.Decimal,
	direction Direction,
	committed accountstore.Snapshot,
) {

	msg := logMsgBalanceAdded
	if direction == Debit {
		msg = logMsgBalanceDeducted
	}

	m.logInfo(ctx, msg,
		logAttrAccountID, id,
		logAttrAmount, magnitude.String(),
		logAttrRemainingBalance, committed.Balance.String(),
		logAttrVersion, committed.Version,
	)
}
