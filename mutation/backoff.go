package mutation

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	// DefaultConflictBackoff is the fixed delay after a version conflict.
	DefaultConflictBackoff = 50 * time.Millisecond

	defaultMaxBackoff = time.Second
)

var (
	// ErrNegativeDelay is returned when a backoff delay is negative.
	ErrNegativeDelay = errors.New("backoff delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// BackoffPolicy decides how long to wait after the n-th version conflict of one mutation (n >= 1).
// Wait returns early with the context's error if ctx is done.
type BackoffPolicy interface {
	Wait(ctx context.Context, conflict int) error
}

// FixedBackoff waits the same delay after every conflict.
type FixedBackoff struct {
	Delay time.Duration
}

// NewFixedBackoff creates a FixedBackoff.
func NewFixedBackoff(delay time.Duration) (FixedBackoff, error) {
	if delay < 0 {
		return FixedBackoff{}, ErrNegativeDelay
	}

	return FixedBackoff{Delay: delay}, nil
}

// Wait sleeps for the fixed delay.
func (b FixedBackoff) Wait(ctx context.Context, _ int) error {
	return sleep(ctx, b.Delay)
}

// NoBackoff retries immediately.
type NoBackoff struct{}

// Wait returns immediately unless ctx is already done.
func (NoBackoff) Wait(ctx context.Context, _ int) error {
	return ctx.Err()
}

// ExponentialBackoff waits base * 2^(n-1) after the n-th conflict, plus up to jitter*delay,
// capped at max.
type ExponentialBackoff struct {
	base   time.Duration
	max    time.Duration
	jitter float64
	random func() float64
}

// NewExponentialBackoff creates an ExponentialBackoff. A maxDelay of 0 selects one second.
func NewExponentialBackoff(base, maxDelay time.Duration, jitter float64) (ExponentialBackoff, error) {
	if base < 0 || maxDelay < 0 {
		return ExponentialBackoff{}, ErrNegativeDelay
	}

	if jitter < 0.0 || jitter > 1.0 {
		return ExponentialBackoff{}, ErrInvalidJitterFactor
	}

	if maxDelay == 0 {
		maxDelay = defaultMaxBackoff
	}

	return ExponentialBackoff{
		base:   base,
		max:    maxDelay,
		jitter: jitter,
		random: rand.Float64,
	}, nil
}

// WithRandom returns a copy of b that draws its jitter from random, which must return values in [0,1).
func (b ExponentialBackoff) WithRandom(random func() float64) ExponentialBackoff {
	b.random = random
	return b
}

// Delay returns the delay after the given conflict.
func (b ExponentialBackoff) Delay(conflict int) time.Duration {
	if conflict < 1 {
		conflict = 1
	}

	delay := b.base
	for i := 1; i < conflict && delay < b.max; i++ {
		delay *= 2
	}

	if b.jitter > 0 && b.random != nil {
		delay += time.Duration(b.random() * float64(delay) * b.jitter)
	}

	if delay > b.max {
		delay = b.max
	}

	return delay
}

// Wait sleeps for Delay(conflict).
func (b ExponentialBackoff) Wait(ctx context.Context, conflict int) error {
	return sleep(ctx, b.Delay(conflict))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
