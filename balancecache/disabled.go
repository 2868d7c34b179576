package balancecache

import (
	"context"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

// Disabled is the cache used when caching is turned off: every read goes to the loader,
// writes and invalidations do nothing.
type Disabled struct{}

// ReadThrough calls load.
func (Disabled) ReadThrough(ctx context.Context, id accountstore.AccountID, load Loader) (accountstore.Snapshot, error) {
	return load(ctx, id)
}

// WriteThrough does nothing.
func (Disabled) WriteThrough(context.Context, accountstore.AccountID, accountstore.Snapshot) error {
	return nil
}

// Invalidate does nothing.
func (Disabled) Invalidate(context.Context, accountstore.AccountID) error {
	return nil
}
