package sqlengine

import (
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

// Option defines a functional option for configuring Store.
type Option func(*Store) error

// WithTableName sets the accounts table name for the Store.
func WithTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return accountstore.ErrEmptyTableName
		}

		s.tableName = tableName

		return nil
	}
}

// WithDialect sets the SQL dialect. Connections opened with the pgx pool are always PostgreSQL.
func WithDialect(dialect Dialect) Option {
	return func(s *Store) error {
		if !dialect.valid() {
			return accountstore.ErrUnknownDialect
		}

		s.dialect = dialect

		return nil
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: Completed reads and updates, version conflicts (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger accountstore.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Store.
// The contextual logger receives the same messages as the Logger, with the operation context
// attached, so trace and span IDs are correlated when tracing is enabled.
func WithContextualLogger(logger accountstore.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store.
// The collector receives read/update durations, conflicts, and database errors.
func WithMetrics(collector accountstore.MetricsCollector) Option {
	return func(s *Store) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Store.
// A span is created for every read and conditional update.
func WithTracing(collector accountstore.TracingCollector) Option {
	return func(s *Store) error {
		s.tracingCollector = collector
		return nil
	}
}
