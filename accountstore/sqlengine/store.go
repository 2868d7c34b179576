package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/internal/adapters"
)

const (
	defaultAccountsTableName   = "accounts"
	logMsgBuildQueryFailed     = "failed to build sql statement"
	logMsgDBQueryFailed        = "database query execution failed"
	logMsgDBExecFailed         = "database statement execution failed"
	logMsgCloseRowsFailed      = "failed to close database rows"
	logMsgScanRowFailed        = "failed to scan database row"
	logMsgParseBalanceFailed   = "failed to parse persisted balance"
	logMsgRowsAffectedFailed   = "failed to get rows affected count"
	logMsgAccountNotFound      = "account not found"
	logMsgAccountRead          = "account read"
	logMsgBalanceUpdated       = "balance updated"
	logMsgVersionConflict      = "version conflict detected"
	logMsgTableCreated         = "accounts table created"
	logMsgAccountSeeded        = "account seeded"
	logMsgSQLExecuted          = "executed sql for: "
	logMsgOperation            = "accountstore operation: "
	logAttrError               = "error"
	logAttrQuery               = "query"
	logAttrAccountID           = "account_id"
	logAttrBalance             = "balance"
	logAttrDelta               = "delta"
	logAttrVersion             = "version"
	logAttrExpectedVersion     = "expected_version"
	logAttrRowsAffected        = "rows_affected"
	logAttrDurationMS          = "duration_ms"
	logAttrDialect             = "dialect"
	logAttrTable               = "table"
	logActionRead              = "read"
	logActionConditionalUpdate = "conditional_update"
	logActionReadAtVersion     = "read_at_version"
	logActionCreateTable       = "create_table"
	logActionSeed              = "seed"
)

// Store is the durable account store. It persists one balance and one version per account
// and offers a point read plus a version-guarded conditional update.
type Store struct {
	db               adapters.DBAdapter
	dialect          Dialect
	tableName        string
	logger           accountstore.Logger
	contextualLogger accountstore.ContextualLogger
	metricsCollector accountstore.MetricsCollector
	tracingCollector accountstore.TracingCollector
}

// NewStoreFromPGXPool creates a new PostgreSQL Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, accountstore.ErrNilDatabaseConnection
	}

	return newPostgresOnlyStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromPGXPoolWithReplica creates a new PostgreSQL Store using a primary and a replica pgx Pool.
// Reads go to the replica only when the context carries accountstore.WithEventualConsistency;
// conditional updates always go to the primary.
func NewStoreFromPGXPoolWithReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Store, error) {
	if primary == nil || replica == nil {
		return nil, accountstore.ErrNilDatabaseConnection
	}

	return newPostgresOnlyStore(adapters.NewPGXAdapterWithReplica(primary, replica), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
// Pass WithDialect(DialectSQLite) for a SQLite connection.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, accountstore.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, accountstore.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s := &Store{
		db:        db,
		dialect:   DialectPostgres,
		tableName: defaultAccountsTableName,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func newPostgresOnlyStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s, err := newStore(db, options...)
	if err != nil {
		return nil, err
	}

	if s.dialect != DialectPostgres {
		return nil, errors.Join(accountstore.ErrUnknownDialect, errors.New("a pgx pool only serves postgres"))
	}

	return s, nil
}

// Dialect returns the SQL dialect the store was configured with.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// TableName returns the accounts table name.
func (s *Store) TableName() string {
	return s.tableName
}

// Read returns the current balance and version of the account.
// It returns accountstore.ErrAccountNotFound if the row does not exist and wraps driver failures
// with accountstore.ErrStoreUnavailable.
func (s *Store) Read(ctx context.Context, id accountstore.AccountID) (accountstore.Snapshot, error) {
	tracer, ctx := s.startReadTracing(ctx, id)
	metrics := s.startReadMetrics(ctx)

	sqlQuery, buildQueryErr := s.buildReadQuery(id)
	if buildQueryErr != nil {
		s.logErrorWithContext(ctx, logMsgBuildQueryFailed, buildQueryErr, logAttrAccountID, id)
		metrics.recordError(errorTypeBuildQuery, 0)
		tracer.finishError(errorTypeBuildQuery, 0)

		return accountstore.Snapshot{}, buildQueryErr
	}

	snapshot, found, duration, queryErr := s.querySnapshot(ctx, sqlQuery, logActionRead)
	if queryErr != nil {
		errorType := classifyError(queryErr)
		metrics.recordError(errorType, duration)
		tracer.finishError(errorType, duration)

		return accountstore.Snapshot{}, queryErr
	}

	if !found {
		s.logOperationWithContext(ctx, logMsgAccountNotFound, logAttrAccountID, id)
		metrics.recordError(errorTypeNotFound, duration)
		tracer.finishError(errorTypeNotFound, duration)

		return accountstore.Snapshot{}, accountstore.ErrAccountNotFound
	}

	s.logDebugWithContext(
		ctx,
		logMsgOperation+logMsgAccountRead,
		logAttrAccountID, id,
		logAttrBalance, snapshot.Balance.String(),
		logAttrVersion, snapshot.Version,
		logAttrDurationMS, accountstore.ToMilliseconds(duration),
	)
	metrics.recordSuccess(duration)
	tracer.finishSuccess(snapshot, duration)

	return snapshot, nil
}

// ConditionalUpdate applies balance += delta and version += 1 if, and only if, the persisted version
// equals expectedVersion. It returns the number of rows affected: 1 if the update was applied,
// 0 on a version conflict. A conflict is not an error.
func (s *Store) ConditionalUpdate(
	ctx context.Context,
	id accountstore.AccountID,
	delta decimal.Decimal,
	expectedVersion accountstore.Version,
) (int64, error) {

	tracer, ctx := s.startUpdateTracing(ctx, id, delta, expectedVersion)
	metrics := s.startUpdateMetrics(ctx)
	start := time.Now()

	var rowsAffected int64
	var err error

	switch s.dialect {
	case DialectSQLite:
		rowsAffected, err = s.guardedWrite(ctx, id, delta, expectedVersion)
	default:
		rowsAffected, err = s.deltaUpdate(ctx, id, delta, expectedVersion)
	}

	duration := time.Since(start)

	if err != nil {
		errorType := classifyError(err)
		metrics.recordError(errorType, duration)
		tracer.finishError(errorType, duration)

		return 0, err
	}

	if rowsAffected == 0 {
		s.logOperationWithContext(
			ctx,
			logMsgVersionConflict,
			logAttrAccountID, id,
			logAttrExpectedVersion, expectedVersion,
			logAttrRowsAffected, rowsAffected,
		)
		metrics.recordConflict(duration)
		tracer.finishConflict(duration)

		return 0, nil
	}

	s.logOperationWithContext(
		ctx,
		logMsgBalanceUpdated,
		logAttrAccountID, id,
		logAttrDelta, delta.String(),
		logAttrVersion, expectedVersion+1,
		logAttrDurationMS, accountstore.ToMilliseconds(duration),
	)
	metrics.recordSuccess(duration)
	tracer.finishSuccess(accountstore.Snapshot{Version: expectedVersion + 1}, duration)

	return rowsAffected, nil
}

// deltaUpdate lets PostgreSQL apply the delta inside one version-guarded UPDATE statement.
func (s *Store) deltaUpdate(
	ctx context.Context,
	id accountstore.AccountID,
	delta decimal.Decimal,
	expectedVersion accountstore.Version,
) (int64, error) {

	sqlQuery, buildQueryErr := s.buildDeltaUpdateQuery(id, delta, expectedVersion)
	if buildQueryErr != nil {
		s.logErrorWithContext(ctx, logMsgBuildQueryFailed, buildQueryErr, logAttrAccountID, id)
		return 0, buildQueryErr
	}

	return s.executeUpdate(ctx, sqlQuery, logActionConditionalUpdate)
}

// guardedWrite reads the balance persisted at expectedVersion and writes balance+delta guarded by
// the same version. Every balance change bumps the version, so a matching guard proves that the
// balance read is still the persisted one.
func (s *Store) guardedWrite(
	ctx context.Context,
	id accountstore.AccountID,
	delta decimal.Decimal,
	expectedVersion accountstore.Version,
) (int64, error) {

	readQuery, buildReadErr := s.buildReadAtVersionQuery(id, expectedVersion)
	if buildReadErr != nil {
		s.logErrorWithContext(ctx, logMsgBuildQueryFailed, buildReadErr, logAttrAccountID, id)
		return 0, buildReadErr
	}

	observed, found, _, queryErr := s.querySnapshot(ctx, readQuery, logActionReadAtVersion)
	if queryErr != nil {
		return 0, queryErr
	}

	if !found {
		return 0, nil
	}

	writeQuery, buildWriteErr := s.buildGuardedWriteQuery(id, observed.Balance.Add(delta), expectedVersion)
	if buildWriteErr != nil {
		s.logErrorWithContext(ctx, logMsgBuildQueryFailed, buildWriteErr, logAttrAccountID, id)
		return 0, buildWriteErr
	}

	return s.executeUpdate(ctx, writeQuery, logActionConditionalUpdate)
}

// querySnapshot executes a single-row select of balance and version.
func (s *Store) querySnapshot(ctx context.Context, sqlQuery string, action string) (
	accountstore.Snapshot,
	bool,
	time.Duration,
	error,
) {

	start := time.Now()
	rows, queryErr := s.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	s.logQueryWithDurationContext(ctx, sqlQuery, action, duration)

	if queryErr != nil {
		s.logErrorWithContext(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return accountstore.Snapshot{}, false, duration, errors.Join(accountstore.ErrStoreUnavailable, queryErr)
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			s.logErrorWithContext(ctx, logMsgDBQueryFailed, rowsErr, logAttrQuery, sqlQuery)
			return accountstore.Snapshot{}, false, duration, errors.Join(accountstore.ErrStoreUnavailable, rowsErr)
		}

		return accountstore.Snapshot{}, false, duration, nil
	}

	var balanceText string
	var version int64

	if scanErr := rows.Scan(&balanceText, &version); scanErr != nil {
		s.logErrorWithContext(ctx, logMsgScanRowFailed, scanErr)
		return accountstore.Snapshot{}, false, duration,
			errors.Join(accountstore.ErrStoreUnavailable, accountstore.ErrScanningDBRowFailed, scanErr)
	}

	balance, parseErr := decimal.NewFromString(balanceText)
	if parseErr != nil {
		s.logErrorWithContext(ctx, logMsgParseBalanceFailed, parseErr, logAttrBalance, balanceText)
		return accountstore.Snapshot{}, false, duration,
			errors.Join(accountstore.ErrStoreUnavailable, accountstore.ErrParsingBalanceFailed, parseErr)
	}

	return accountstore.Snapshot{Balance: balance, Version: version}, true, duration, nil
}

// executeUpdate executes a data-modifying statement and returns the rows affected.
func (s *Store) executeUpdate(ctx context.Context, sqlQuery string, action string) (int64, error) {
	start := time.Now()
	result, execErr := s.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	s.logQueryWithDurationContext(ctx, sqlQuery, action, duration)

	if execErr != nil {
		s.logErrorWithContext(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, errors.Join(accountstore.ErrStoreUnavailable, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logErrorWithContext(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, errors.Join(accountstore.ErrStoreUnavailable, rowsAffectedErr)
	}

	return rowsAffected, nil
}

// closeRows safely closes database rows and logs any errors.
func (s *Store) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarnWithContext(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// CreateTable creates the accounts table if it does not exist yet.
func (s *Store) CreateTable(ctx context.Context) error {
	sqlQuery := s.dialect.createTableStatement(s.tableName)

	if _, err := s.executeUpdate(ctx, sqlQuery, logActionCreateTable); err != nil {
		return err
	}

	s.logOperationWithContext(ctx, logMsgTableCreated, logAttrTable, s.tableName, logAttrDialect, s.dialect.String())

	return nil
}

// SeedAccount replaces the account row with the given balance and version.
// It is a bootstrap operation and not part of the optimistic mutation protocol.
func (s *Store) SeedAccount(
	ctx context.Context,
	id accountstore.AccountID,
	balance decimal.Decimal,
	version accountstore.Version,
) error {

	deleteQuery, buildDeleteErr := s.buildDeleteQuery(id)
	if buildDeleteErr != nil {
		s.logErrorWithContext(ctx, logMsgBuildQueryFailed, buildDeleteErr, logAttrAccountID, id)
		return buildDeleteErr
	}

	insertQuery, buildInsertErr := s.buildInsertQuery(id, balance, version)
	if buildInsertErr != nil {
		s.logErrorWithContext(ctx, logMsgBuildQueryFailed, buildInsertErr, logAttrAccountID, id)
		return buildInsertErr
	}

	if _, err := s.executeUpdate(ctx, deleteQuery, logActionSeed); err != nil {
		return err
	}

	if _, err := s.executeUpdate(ctx, insertQuery, logActionSeed); err != nil {
		return err
	}

	s.logOperationWithContext(
		ctx,
		logMsgAccountSeeded,
		logAttrAccountID, id,
		logAttrBalance, balance.String(),
		logAttrVersion, version,
	)

	return nil
}
