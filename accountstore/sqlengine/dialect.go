package sqlengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

// Dialect selects the SQL flavor of the accounts table and its statements.
type Dialect string

const (
	// DialectPostgres stores the balance as NUMERIC and applies the delta inside the UPDATE.
	DialectPostgres Dialect = "postgres"

	// DialectSQLite stores the balance as TEXT and writes the new balance computed from the
	// balance persisted at the expected version.
	DialectSQLite Dialect = "sqlite3"
)

const (
	colID      = "id"
	colBalance = "balance"
	colVersion = "version"

	castNumeric    = "?::numeric"
	castText       = "?::text"
	incrementByOne = "? + 1"
	addition       = "? + ?"
)

func (d Dialect) valid() bool {
	return d == DialectPostgres || d == DialectSQLite
}

// String returns the dialect name.
func (d Dialect) String() string {
	return string(d)
}

// ParseDialect maps a configuration value to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx", "sql", "sql.db", "sqlx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %s", accountstore.ErrUnknownDialect, name)
	}
}

// builder returns the goqu dialect wrapper for d.
func (d Dialect) builder() goqu.DialectWrapper {
	return goqu.Dialect(string(d))
}

// balanceColumn returns the select expression that yields the balance as text.
func (d Dialect) balanceColumn() exp.Expression {
	if d == DialectPostgres {
		return goqu.L(castText, goqu.I(colBalance)).As(colBalance)
	}

	return goqu.C(colBalance)
}

// createTableStatement returns the idempotent DDL for the accounts table.
func (d Dialect) createTableStatement(tableName string) string {
	table := quoteIdentifier(tableName)

	if d == DialectPostgres {
		return fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
	%s BIGINT PRIMARY KEY,
	%s NUMERIC NOT NULL,
	%s BIGINT NOT NULL DEFAULT 0
)`, table, colID, colBalance, colVersion)
	}

	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
	%s INTEGER PRIMARY KEY,
	%s TEXT NOT NULL,
	%s INTEGER NOT NULL DEFAULT 0
)`, table, colID, colBalance, colVersion)
}

// buildReadQuery builds the point read for one account.
func (s *Store) buildReadQuery(id accountstore.AccountID) (string, error) {
	selectStmt := s.dialect.builder().
		From(s.tableName).
		Select(s.dialect.balanceColumn(), goqu.C(colVersion)).
		Where(goqu.C(colID).Eq(id))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(accountstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildReadAtVersionQuery builds the read of the balance persisted at exactly expectedVersion.
func (s *Store) buildReadAtVersionQuery(
	id accountstore.AccountID,
	expectedVersion accountstore.Version,
) (string, error) {

	selectStmt := s.dialect.builder().
		From(s.tableName).
		Select(s.dialect.balanceColumn(), goqu.C(colVersion)).
		Where(
			goqu.C(colID).Eq(id),
			goqu.C(colVersion).Eq(expectedVersion),
		)

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(accountstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildDeltaUpdateQuery builds the PostgreSQL statement
//
//	UPDATE accounts SET balance = balance + delta, version = version + 1 WHERE id = X AND version = V
func (s *Store) buildDeltaUpdateQuery(
	id accountstore.AccountID,
	delta decimal.Decimal,
	expectedVersion accountstore.Version,
) (string, error) {

	updateStmt := s.dialect.builder().
		Update(s.tableName).
		Set(goqu.Record{
			colBalance: goqu.L(addition, goqu.I(colBalance), goqu.L(castNumeric, delta.String())),
			colVersion: goqu.L(incrementByOne, goqu.I(colVersion)),
		}).
		Where(
			goqu.C(colID).Eq(id),
			goqu.C(colVersion).Eq(expectedVersion),
		)

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(accountstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildGuardedWriteQuery builds the statement
//
//	UPDATE accounts SET balance = newBalance, version = version + 1 WHERE id = X AND version = V
func (s *Store) buildGuardedWriteQuery(
	id accountstore.AccountID,
	newBalance decimal.Decimal,
	expectedVersion accountstore.Version,
) (string, error) {

	updateStmt := s.dialect.builder().
		Update(s.tableName).
		Set(goqu.Record{
			colBalance: newBalance.String(),
			colVersion: goqu.L(incrementByOne, goqu.I(colVersion)),
		}).
		Where(
			goqu.C(colID).Eq(id),
			goqu.C(colVersion).Eq(expectedVersion),
		)

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(accountstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s *Store) buildDeleteQuery(id accountstore.AccountID) (string, error) {
	deleteStmt := s.dialect.builder().
		Delete(s.tableName).
		Where(goqu.C(colID).Eq(id))

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(accountstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s *Store) buildInsertQuery(
	id accountstore.AccountID,
	balance decimal.Decimal,
	version accountstore.Version,
) (string, error) {

	insertStmt := s.dialect.builder().
		Insert(s.tableName).
		Rows(goqu.Record{
			colID:      id,
			colBalance: balance.String(),
			colVersion: version,
		})

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(accountstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// quoteIdentifier quotes a table name for use in DDL; both dialects accept double quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
