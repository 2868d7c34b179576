package sqlengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

const (
	metricReadDuration      = "accountstore_read_duration_seconds"
	metricUpdateDuration    = "accountstore_update_duration_seconds"
	metricVersionConflicts  = "accountstore_version_conflicts_total"
	metricDatabaseErrors    = "accountstore_database_errors_total"
	spanNameRead            = "accountstore.read"
	spanNameUpdate          = "accountstore.conditional_update"
	spanAttrOperation       = "operation"
	spanAttrAccountID       = "account_id"
	spanAttrDelta           = "delta"
	spanAttrExpectedVersion = "expected_version"
	spanAttrVersion         = "version"
	spanAttrBalance         = "balance"
	spanAttrErrorType       = "error_type"
	spanAttrDurationMS      = "duration_ms"
	labelStatus             = "status"
	labelConflictType       = "conflict_type"
	operationRead           = "read"
	operationUpdate         = "conditional_update"
	statusSuccess           = "success"
	statusError             = "error"
	statusConflict          = "conflict"
	errorTypeBuildQuery     = "build_query"
	errorTypeNotFound       = "account_not_found"
	errorTypeDatabase       = "database"
	errorTypeScan           = "row_scan"
	errorTypeParseBalance   = "balance_parse"
	errorTypeUnknown        = "unknown"
)

// classifyError maps an error returned by the store to a low-cardinality error type label.
func classifyError(err error) string {
	switch {
	case errors.Is(err, accountstore.ErrBuildingQueryFailed):
		return errorTypeBuildQuery
	case errors.Is(err, accountstore.ErrAccountNotFound):
		return errorTypeNotFound
	case errors.Is(err, accountstore.ErrScanningDBRowFailed):
		return errorTypeScan
	case errors.Is(err, accountstore.ErrParsingBalanceFailed):
		return errorTypeParseBalance
	case errors.Is(err, accountstore.ErrStoreUnavailable):
		return errorTypeDatabase
	default:
		return errorTypeUnknown
	}
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2f", accountstore.ToMilliseconds(d))
}

// === Contextual Logging Pattern ===
// The contextual logger wins when both are configured, so every message is logged once.

// logQueryWithDurationContext logs SQL statements with execution time at debug level.
func (s *Store) logQueryWithDurationContext(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {

	s.logDebugWithContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, accountstore.ToMilliseconds(duration), logAttrQuery, sqlQuery)
}

func (s *Store) logDebugWithContext(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// logOperationWithContext logs operational information at info level.
func (s *Store) logOperationWithContext(ctx context.Context, action string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}

	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}
}

func (s *Store) logWarnWithContext(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// logErrorWithContext logs error information at error level.
func (s *Store) logErrorWithContext(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}
}

// === Tracing Observer Pattern ===
// These observers encapsulate the span lifecycle of one store operation.

type tracingObserver struct {
	s    *Store
	span accountstore.SpanContext
}

func (s *Store) startTracing(
	ctx context.Context,
	spanName string,
	attrs map[string]string,
) (*tracingObserver, context.Context) {

	if s.tracingCollector == nil {
		return &tracingObserver{s: s}, ctx
	}

	newCtx, span := s.tracingCollector.StartSpan(ctx, spanName, attrs)

	return &tracingObserver{s: s, span: span}, newCtx
}

// startReadTracing creates a new tracing observer for read operations.
func (s *Store) startReadTracing(ctx context.Context, id accountstore.AccountID) (*tracingObserver, context.Context) {
	return s.startTracing(ctx, spanNameRead, map[string]string{
		spanAttrOperation: operationRead,
		spanAttrAccountID: strconv.FormatInt(id, 10),
	})
}

// startUpdateTracing creates a new tracing observer for conditional updates.
func (s *Store) startUpdateTracing(
	ctx context.Context,
	id accountstore.AccountID,
	delta decimal.Decimal,
	expectedVersion accountstore.Version,
) (*tracingObserver, context.Context) {

	return s.startTracing(ctx, spanNameUpdate, map[string]string{
		spanAttrOperation:       operationUpdate,
		spanAttrAccountID:       strconv.FormatInt(id, 10),
		spanAttrDelta:           delta.String(),
		spanAttrExpectedVersion: strconv.FormatInt(expectedVersion, 10),
	})
}

// finishSuccess completes the span of a successful operation.
func (o *tracingObserver) finishSuccess(snapshot accountstore.Snapshot, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusSuccess)
	o.span.AddAttribute(spanAttrDurationMS, formatDuration(duration))

	attrs := map[string]string{
		spanAttrVersion: strconv.FormatInt(snapshot.Version, 10),
	}

	if !snapshot.Balance.IsZero() {
		attrs[spanAttrBalance] = snapshot.Balance.String()
	}

	o.s.tracingCollector.FinishSpan(o.span, statusSuccess, attrs)
}

// finishConflict completes the span of a conditional update that matched no row.
func (o *tracingObserver) finishConflict(duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusConflict)
	o.span.AddAttribute(spanAttrDurationMS, formatDuration(duration))
	o.s.tracingCollector.FinishSpan(o.span, statusConflict, nil)
}

// finishError completes the span with error details.
func (o *tracingObserver) finishError(errorType string, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusError)
	o.span.AddAttribute(spanAttrErrorType, errorType)

	if duration > 0 {
		o.span.AddAttribute(spanAttrDurationMS, formatDuration(duration))
	}

	o.s.tracingCollector.FinishSpan(o.span, statusError, map[string]string{spanAttrErrorType: errorType})
}

// === Metrics Observer Pattern ===
// These observers encapsulate the metrics recording of one store operation.

type metricsObserver struct {
	s              *Store
	ctx            context.Context
	operation      string
	durationMetric string
}

// startReadMetrics creates a new metrics observer for read operations.
func (s *Store) startReadMetrics(ctx context.Context) *metricsObserver {
	return &metricsObserver{s: s, ctx: ctx, operation: operationRead, durationMetric: metricReadDuration}
}

// startUpdateMetrics creates a new metrics observer for conditional updates.
func (s *Store) startUpdateMetrics(ctx context.Context) *metricsObserver {
	return &metricsObserver{s: s, ctx: ctx, operation: operationUpdate, durationMetric: metricUpdateDuration}
}

func (o *metricsObserver) recordDuration(status string, duration time.Duration) {
	accountstore.RecordDuration(o.ctx, o.s.metricsCollector, o.durationMetric, duration, map[string]string{
		spanAttrOperation: o.operation,
		labelStatus:       status,
	})
}

// recordSuccess records the metrics of a successful operation.
func (o *metricsObserver) recordSuccess(duration time.Duration) {
	o.recordDuration(statusSuccess, duration)
}

// recordConflict records the metrics of a version conflict.
func (o *metricsObserver) recordConflict(duration time.Duration) {
	o.recordDuration(statusConflict, duration)
	accountstore.IncrementCounter(o.ctx, o.s.metricsCollector, metricVersionConflicts, map[string]string{
		spanAttrOperation: o.operation,
		labelConflictType: "version",
	})
}

// recordError records the metrics of a failed operation.
func (o *metricsObserver) recordError(errorType string, duration time.Duration) {
	o.recordDuration(statusError, duration)
	accountstore.IncrementCounter(o.ctx, o.s.metricsCollector, metricDatabaseErrors, map[string]string{
		spanAttrOperation: o.operation,
		labelStatus:       statusError,
		spanAttrErrorType: errorType,
	})
}
