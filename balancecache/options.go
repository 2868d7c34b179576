package balancecache

import (
	"errors"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

// ErrEmptyKeyPrefix is returned when an empty key prefix is supplied.
var ErrEmptyKeyPrefix = errors.New("empty cache key prefix supplied")

// Option defines a functional option for configuring Cache.
type Option func(*Cache) error

// WithKeyPrefix sets the prefix of the cache keys, "<prefix>:<id>:balance" and "<prefix>:<id>:version".
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) error {
		if prefix == "" {
			return ErrEmptyKeyPrefix
		}

		c.keyPrefix = prefix

		return nil
	}
}

// WithLogger sets the logger for the Cache.
//
// Debug level: hits, misses, populates and skipped populates
// Warn level: unparsable entries that are treated as misses
// Error level: backend failures.
func WithLogger(logger accountstore.Logger) Option {
	return func(c *Cache) error {
		c.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Cache.
func WithMetrics(collector accountstore.MetricsCollector) Option {
	return func(c *Cache) error {
		c.metricsCollector = collector
		return nil
	}
}
