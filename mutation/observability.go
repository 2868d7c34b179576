package mutation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/balancecache"
)

const (
	metricDuration  = "mutation_duration_seconds"
	metricAttempts  = "mutation_attempts"
	metricConflicts = "mutation_conflicts_total"
	metricOutcomes  = "mutation_outcomes_total"
	metricErrors    = "mutation_errors_total"

	labelDirection = "direction"
	labelOutcome   = "outcome"
	labelErrorType = "error_type"
	labelStage     = "stage"
	labelStatus    = "status"

	spanNameMutate     = "mutation.mutate"
	spanAttrAccountID  = "account_id"
	spanAttrMagnitude  = "magnitude"
	spanAttrDirection  = "direction"
	spanAttrOutcome    = "outcome"
	spanAttrAttempts   = "attempts"
	spanAttrConflicts  = "conflicts"
	spanAttrVersion    = "version"
	spanAttrErrorType  = "error_type"
	spanAttrDurationMS = "duration_ms"
	statusSuccess      = "success"
	statusError        = "error"
	outcomeNone        = "none"

	stageRead         = "read"
	stageConfirm      = "confirm_funds"
	stageUpdate       = "conditional_update"
	stageWriteThrough = "write_through"
	stageInvalidate   = "invalidate"
	stageBackoff      = "backoff"

	errorTypeStoreUnavailable = "store_unavailable"
	errorTypeAccountNotFound  = "account_not_found"
	errorTypeCacheUnavailable = "cache_unavailable"
	errorTypeCanceled         = "context_canceled"
	errorTypeDeadline         = "context_deadline_exceeded"
	errorTypeOther            = "other"

	logMsgBalanceDeducted     = "Balance deducted"
	logMsgBalanceAdded        = "Balance added"
	logMsgInsufficientBalance = "Insufficient balance"
	logMsgVersionConflict     = "Version conflict, retrying"
	logMsgMutationFailed      = "mutation failed"
	logAttrAccountID          = "account_id"
	logAttrAmount             = "amount"
	logAttrRemainingBalance   = "remaining_balance"
	logAttrNeeded             = "needed"
	logAttrHas                = "has"
	logAttrVersion            = "version"
	logAttrExpectedVersion    = "expected_version"
	logAttrDirection          = "direction"
	logAttrConflicts          = "conflicts"
	logAttrStage              = "stage"
	logAttrError              = "error"
)

// ErrorType maps an error returned by Mutate to a low-cardinality label.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, accountstore.ErrAccountNotFound):
		return errorTypeAccountNotFound
	case errors.Is(err, accountstore.ErrStoreUnavailable):
		return errorTypeStoreUnavailable
	case errors.Is(err, balancecache.ErrCacheUnavailable):
		return errorTypeCacheUnavailable
	case errors.Is(err, context.Canceled):
		return errorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return errorTypeDeadline
	default:
		return errorTypeOther
	}
}

func (m *Mutator) logInfo(ctx context.Context, msg string, args ...any) {
	if m.contextualLogger != nil {
		m.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if m.logger != nil {
		m.logger.Info(msg, args...)
	}
}

func (m *Mutator) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if m.contextualLogger != nil {
		m.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if m.logger != nil {
		m.logger.Error(msg, allArgs...)
	}
}

// resolve records metrics and finishes the span of a mutation that ended with an outcome.
func (m *Mutator) resolve(ctx context.Context, tracer *tracingObserver, result Result, start time.Time) {
	duration := time.Since(start)

	accountstore.RecordDuration(ctx, m.metricsCollector, metricDuration, duration, map[string]string{
		labelStatus:  statusSuccess,
		labelOutcome: result.Outcome.String(),
	})
	accountstore.RecordValue(ctx, m.metricsCollector, metricAttempts, float64(result.Attempts), map[string]string{
		labelOutcome: result.Outcome.String(),
	})
	accountstore.IncrementCounter(ctx, m.metricsCollector, metricOutcomes, map[string]string{
		labelOutcome: result.Outcome.String(),
	})

	tracer.finishSuccess(result, duration)
}

// fail logs and records a failed mutation and returns err unchanged.
func (m *Mutator) fail(
	ctx context.Context,
	tracer *tracingObserver,
	result Result,
	start time.Time,
	stage string,
	err error,
) error {

	duration := time.Since(start)
	errorType := ErrorType(err)

	m.logError(ctx, logMsgMutationFailed, err,
		logAttrStage, stage,
		logAttrConflicts, result.Conflicts,
	)

	accountstore.RecordDuration(ctx, m.metricsCollector, metricDuration, duration, map[string]string{
		labelStatus:  statusError,
		labelOutcome: outcomeNone,
	})
	accountstore.IncrementCounter(ctx, m.metricsCollector, metricErrors, map[string]string{
		labelErrorType: errorType,
		labelStage:     stage,
	})

	tracer.finishError(errorType, result, duration)

	return err
}

// === Tracing Observer Pattern ===

type tracingObserver struct {
	collector accountstore.TracingCollector
	span      accountstore.SpanContext
}

func (m *Mutator) startTracing(
	ctx context.Context,
	id accountstore.AccountID,
	magnitude decimal.Decimal,
	direction Direction,
) (*tracingObserver, context.Context) {

	if m.tracingCollector == nil {
		return &tracingObserver{}, ctx
	}

	newCtx, span := m.tracingCollector.StartSpan(ctx, spanNameMutate, map[string]string{
		spanAttrAccountID: strconv.FormatInt(id, 10),
		spanAttrMagnitude: magnitude.String(),
		spanAttrDirection: direction.String(),
	})

	return &tracingObserver{collector: m.tracingCollector, span: span}, newCtx
}

func (o *tracingObserver) finishSuccess(result Result, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusSuccess)
	o.span.AddAttribute(spanAttrDurationMS, strconv.FormatFloat(accountstore.ToMilliseconds(duration), 'f', 2, 64))

	o.collector.FinishSpan(o.span, statusSuccess, map[string]string{
		spanAttrOutcome:   result.Outcome.String(),
		spanAttrAttempts:  strconv.Itoa(result.Attempts),
		spanAttrConflicts: strconv.Itoa(result.Conflicts),
		spanAttrVersion:   strconv.FormatInt(result.Snapshot.Version, 10),
	})
}

func (o *tracingObserver) finishError(errorType string, result Result, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusError)
	o.span.AddAttribute(spanAttrErrorType, errorType)
	o.span.AddAttribute(spanAttrDurationMS, strconv.FormatFloat(accountstore.ToMilliseconds(duration), 'f', 2, 64))

	o.collector.FinishSpan(o.span, statusError, map[string]string{
		spanAttrErrorType: errorType,
		spanAttrAttempts:  strconv.Itoa(result.Attempts),
		spanAttrConflicts: strconv.Itoa(result.Conflicts),
	})
}
