package balancecache

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

const (
	defaultKeyPrefix = "account"
	fieldBalance     = "balance"
	fieldVersion     = "version"

	metricHits          = "balancecache_hits_total"
	metricMisses        = "balancecache_misses_total"
	metricInvalidations = "balancecache_invalidations_total"
	metricErrors        = "balancecache_errors_total"
	labelOperation      = "operation"

	operationReadThrough  = "read_through"
	operationPopulate     = "populate"
	operationWriteThrough = "write_through"
	operationInvalidate   = "invalidate"

	logMsgHit             = "cache hit"
	logMsgMiss            = "cache miss"
	logMsgPopulated       = "cache populated"
	logMsgPopulateSkipped = "cache populate skipped, newer version cached"
	logMsgWrittenThrough  = "cache written through"
	logMsgWriteSkipped    = "cache write-through skipped, newer version cached"
	logMsgInvalidated     = "cache invalidated"
	logMsgUnparsableEntry = "unparsable cache entry treated as miss"
	logMsgBackendFailed   = "cache backend operation failed"
	logAttrAccountID      = "account_id"
	logAttrBalance        = "balance"
	logAttrVersion        = "version"
	logAttrCachedVersion  = "cached_version"
	logAttrKey            = "key"
	logAttrValue          = "value"
	logAttrOperation      = "operation"
	logAttrError          = "error"
)

// ErrCacheUnavailable is returned (joined with the backend error) when the cache backend fails.
var ErrCacheUnavailable = errors.New("cache unavailable")

// Loader loads the authoritative snapshot of an account, typically the durable store's Read.
type Loader func(ctx context.Context, id accountstore.AccountID) (accountstore.Snapshot, error)

// Cache is a read-through cache of account snapshots stored as balance/version key pairs.
type Cache struct {
	backend          Backend
	keyPrefix        string
	mu               sync.Mutex
	logger           accountstore.Logger
	metricsCollector accountstore.MetricsCollector
}

// NewCache creates a Cache on top of backend.
func NewCache(backend Backend, options ...Option) (*Cache, error) {
	if backend == nil {
		return nil, errors.Join(ErrCacheUnavailable, errors.New("backend must not be nil"))
	}

	c := &Cache{
		backend:   backend,
		keyPrefix: defaultKeyPrefix,
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// BalanceKey returns the key of the balance field of the account.
func (c *Cache) BalanceKey(id accountstore.AccountID) string {
	return c.key(id, fieldBalance)
}

// VersionKey returns the key of the version field of the account.
func (c *Cache) VersionKey(id accountstore.AccountID) string {
	return c.key(id, fieldVersion)
}

func (c *Cache) key(id accountstore.AccountID, field string) string {
	return c.keyPrefix + ":" + strconv.FormatInt(id, 10) + ":" + field
}

// ReadThrough returns the cached snapshot if both fields are present. Otherwise, it calls load,
// populates both fields, and returns the loaded snapshot. Errors of load are returned unchanged.
func (c *Cache) ReadThrough(ctx context.Context, id accountstore.AccountID, load Loader) (accountstore.Snapshot, error) {
	c.mu.Lock()
	cached, hit, getErr := c.getPair(ctx, id)
	c.mu.Unlock()

	if getErr != nil {
		return accountstore.Snapshot{}, c.backendFailure(ctx, operationReadThrough, getErr)
	}

	if hit {
		c.debug(logMsgHit, logAttrAccountID, id, logAttrVersion, cached.Version)
		accountstore.IncrementCounter(ctx, c.metricsCollector, metricHits, nil)

		return cached, nil
	}

	c.debug(logMsgMiss, logAttrAccountID, id)
	accountstore.IncrementCounter(ctx, c.metricsCollector, metricMisses, nil)

	loaded, loadErr := load(ctx, id)
	if loadErr != nil {
		return accountstore.Snapshot{}, loadErr
	}

	if populateErr := c.populate(ctx, id, loaded); populateErr != nil {
		return accountstore.Snapshot{}, populateErr
	}

	return loaded, nil
}

// populate stores a loaded snapshot unless the cache already holds a newer version.
func (c *Cache) populate(ctx context.Context, id accountstore.AccountID, loaded accountstore.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, hit, getErr := c.getPair(ctx, id)
	if getErr != nil {
		return c.backendFailure(ctx, operationPopulate, getErr)
	}

	if hit && current.Version > loaded.Version {
		c.debug(
			logMsgPopulateSkipped,
			logAttrAccountID, id,
			logAttrVersion, loaded.Version,
			logAttrCachedVersion, current.Version,
		)

		return nil
	}

	if setErr := c.setPair(ctx, id, loaded); setErr != nil {
		return c.backendFailure(ctx, operationPopulate, setErr)
	}

	c.debug(logMsgPopulated, logAttrAccountID, id, logAttrBalance, loaded.Balance.String(), logAttrVersion, loaded.Version)

	return nil
}

// WriteThrough overwrites both fields of the account with snapshot unless the cache already holds
// a newer version. A committer that writes through late never moves the cache backwards.
func (c *Cache) WriteThrough(ctx context.Context, id accountstore.AccountID, snapshot accountstore.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, hit, getErr := c.getPair(ctx, id)
	if getErr != nil {
		return c.backendFailure(ctx, operationWriteThrough, getErr)
	}

	if hit && current.Version > snapshot.Version {
		c.debug(
			logMsgWriteSkipped,
			logAttrAccountID, id,
			logAttrVersion, snapshot.Version,
			logAttrCachedVersion, current.Version,
		)

		return nil
	}

	if setErr := c.setPair(ctx, id, snapshot); setErr != nil {
		return c.backendFailure(ctx, operationWriteThrough, setErr)
	}

	c.debug(logMsgWrittenThrough, logAttrAccountID, id, logAttrBalance, snapshot.Balance.String(), logAttrVersion, snapshot.Version)

	return nil
}

// Invalidate deletes both fields of the account.
func (c *Cache) Invalidate(ctx context.Context, id accountstore.AccountID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.Delete(ctx, c.BalanceKey(id)); err != nil {
		return c.backendFailure(ctx, operationInvalidate, err)
	}

	if err := c.backend.Delete(ctx, c.VersionKey(id)); err != nil {
		return c.backendFailure(ctx, operationInvalidate, err)
	}

	c.debug(logMsgInvalidated, logAttrAccountID, id)
	accountstore.IncrementCounter(ctx, c.metricsCollector, metricInvalidations, nil)

	return nil
}

// getPair reads both fields. Callers must hold c.mu.
func (c *Cache) getPair(ctx context.Context, id accountstore.AccountID) (accountstore.Snapshot, bool, error) {
	balanceKey := c.BalanceKey(id)
	versionKey := c.VersionKey(id)

	balanceText, balanceFound, err := c.backend.Get(ctx, balanceKey)
	if err != nil {
		return accountstore.Snapshot{}, false, err
	}

	versionText, versionFound, err := c.backend.Get(ctx, versionKey)
	if err != nil {
		return accountstore.Snapshot{}, false, err
	}

	if !balanceFound || !versionFound {
		return accountstore.Snapshot{}, false, nil
	}

	balance, parseErr := decimal.NewFromString(balanceText)
	if parseErr != nil {
		c.warn(logMsgUnparsableEntry, logAttrKey, balanceKey, logAttrValue, balanceText, logAttrError, parseErr.Error())
		return accountstore.Snapshot{}, false, nil
	}

	version, parseErr := strconv.ParseInt(versionText, 10, 64)
	if parseErr != nil {
		c.warn(logMsgUnparsableEntry, logAttrKey, versionKey, logAttrValue, versionText, logAttrError, parseErr.Error())
		return accountstore.Snapshot{}, false, nil
	}

	return accountstore.Snapshot{Balance: balance, Version: version}, true, nil
}

// setPair writes both fields. Callers must hold c.mu.
func (c *Cache) setPair(ctx context.Context, id accountstore.AccountID, snapshot accountstore.Snapshot) error {
	if err := c.backend.Set(ctx, c.BalanceKey(id), snapshot.Balance.String()); err != nil {
		return err
	}

	return c.backend.Set(ctx, c.VersionKey(id), strconv.FormatInt(snapshot.Version, 10))
}

func (c *Cache) backendFailure(ctx context.Context, operation string, err error) error {
	if c.logger != nil {
		c.logger.Error(logMsgBackendFailed, logAttrOperation, operation, logAttrError, err.Error())
	}

	accountstore.IncrementCounter(ctx, c.metricsCollector, metricErrors, map[string]string{labelOperation: operation})

	return errors.Join(ErrCacheUnavailable, err)
}

func (c *Cache) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Cache) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
