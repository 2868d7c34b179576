package helper

import (
	"context"
	"sync"
)

// RecordingBackoff records the conflict counters it is asked to wait for and never sleeps.
type RecordingBackoff struct {
	mu    sync.Mutex
	waits []int
	Err   error
}

// Wait implements mutation.BackoffPolicy.
func (b *RecordingBackoff) Wait(ctx context.Context, conflict int) error {
	b.mu.Lock()
	b.waits = append(b.waits, conflict)
	b.mu.Unlock()

	if b.Err != nil {
		return b.Err
	}

	return ctx.Err()
}

// Waits returns the recorded conflict counters in call order.
func (b *RecordingBackoff) Waits() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]int(nil), b.waits...)
}
