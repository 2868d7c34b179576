package accountstore

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrStoreUnavailable is returned (joined with the driver error) when the durable backend
	// cannot be reached or fails to execute a statement.
	ErrStoreUnavailable = errors.New("durable store unavailable")

	// ErrAccountNotFound is returned when the account row does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNilDatabaseConnection is returned when a nil connection is supplied to a store constructor.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when an empty accounts table name is supplied.
	ErrEmptyTableName = errors.New("empty accounts table name supplied")

	// ErrUnknownDialect is returned when a SQL dialect is not supported.
	ErrUnknownDialect = errors.New("unknown sql dialect")

	// ErrBuildingQueryFailed is returned when a SQL statement cannot be built.
	ErrBuildingQueryFailed = errors.New("building the sql statement failed")

	// ErrScanningDBRowFailed is returned, joined with ErrStoreUnavailable, when a database row cannot be scanned.
	ErrScanningDBRowFailed = errors.New("scanning the database row failed")

	// ErrParsingBalanceFailed is returned, joined with ErrStoreUnavailable, when a persisted balance is
	// not a valid decimal.
	ErrParsingBalanceFailed = errors.New("parsing the persisted balance failed")
)

// AccountID identifies an account row.
type AccountID = int64

// Version is the optimistic-lock token of an account, incremented by one on every update.
type Version = int64

// Snapshot is a point-in-time view of an account's balance and version.
type Snapshot struct {
	Balance decimal.Decimal
	Version Version
}

// Applied returns the snapshot that results from committing delta on top of s.
func (s Snapshot) Applied(delta decimal.Decimal) Snapshot {
	return Snapshot{
		Balance: s.Balance.Add(delta),
		Version: s.Version + 1,
	}
}

// Equal reports whether both snapshots hold the same balance and version.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.Version == other.Version && s.Balance.Equal(other.Balance)
}
