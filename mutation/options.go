package mutation

import (
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

// Option defines a functional option for configuring Mutator.
type Option func(*Mutator) error

// WithCache sets the read-through cache. Without it every read goes to the store.
func WithCache(cache Cache) Option {
	return func(m *Mutator) error {
		if cache == nil {
			return ErrNilCache
		}

		m.cache = cache

		return nil
	}
}

// WithBackoff sets the policy that decides how long to wait after a version conflict.
// The default is a FixedBackoff of DefaultConflictBackoff.
func WithBackoff(backoff BackoffPolicy) Option {
	return func(m *Mutator) error {
		if backoff == nil {
			return ErrNilBackoff
		}

		m.backoff = backoff

		return nil
	}
}

// WithReplicaReads lets the first read of every mutation go to a read replica
// (accountstore.WithEventualConsistency). The conditional update still runs on the primary, so a
// lagging replica only costs a conflict. Retries and the funds check of a debit read the primary.
func WithReplicaReads() Option {
	return func(m *Mutator) error {
		m.replicaReads = true
		return nil
	}
}

// WithLogger sets the logger for the Mutator.
//
// Info level: applied mutations, insufficient funds, version conflicts
// Error level: store and cache failures.
func WithLogger(logger accountstore.Logger) Option {
	return func(m *Mutator) error {
		m.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Mutator.
// It takes precedence over the Logger.
func WithContextualLogger(logger accountstore.ContextualLogger) Option {
	return func(m *Mutator) error {
		m.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Mutator.
func WithMetrics(collector accountstore.MetricsCollector) Option {
	return func(m *Mutator) error {
		m.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Mutator.
func WithTracing(collector accountstore.TracingCollector) Option {
	return func(m *Mutator) error {
		m.tracingCollector = collector
		return nil
	}
}
