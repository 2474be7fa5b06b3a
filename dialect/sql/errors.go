package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/veloq"
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return veloq.IsConstraintError(err) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// ClassifyError wraps database constraint violations in a
// veloq.ConstraintError and returns other errors unchanged.
func ClassifyError(err error) error {
	if err == nil || veloq.IsConstraintError(err) {
		return err
	}
	switch {
	case IsUniqueConstraintError(err):
		return veloq.NewConstraintError("unique: "+err.Error(), err)
	case IsForeignKeyConstraintError(err):
		return veloq.NewConstraintError("foreign key: "+err.Error(), err)
	case IsCheckConstraintError(err):
		return veloq.NewConstraintError("check: "+err.Error(), err)
	}
	return err
}

// sqlServerError is implemented by SQL Server driver errors.
type sqlServerError interface {
	SQLErrorNumber() int32
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// SQL Server error numbers for constraint violations.
const (
	mssqlUniqueIndex      = 2601
	mssqlUniqueConstraint = 2627
	mssqlReferenceOrCheck = 547
)

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok && string(e.Code) == pgUniqueViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlDuplicateEntry {
		return true
	}
	if e, ok := asError[sqlServerError](err); ok {
		if n := e.SQLErrorNumber(); n == mssqlUniqueIndex || n == mssqlUniqueConstraint {
			return true
		}
	}
	// Fallback to string matching for drivers without typed errors
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL (string fallback)
		"violates unique constraint", // Postgres (string fallback)
		"UNIQUE constraint failed",   // SQLite
		"ORA-00001",                  // Oracle, Dameng
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok && string(e.Code) == pgForeignKeyViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && (e.Number == mysqlForeignKeyParent || e.Number == mysqlForeignKeyChild) {
		return true
	}
	if e, ok := asError[sqlServerError](err); ok && e.SQLErrorNumber() == mssqlReferenceOrCheck &&
		containsAny(err.Error(), "REFERENCE constraint", "FOREIGN KEY constraint") {
		return true
	}
	return containsAny(err.Error(),
		"Error 1451",                      // MySQL (Cannot delete or update a parent row)
		"Error 1452",                      // MySQL (Cannot add or update a child row)
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
		"ORA-02291",                       // Oracle, parent key not found
		"ORA-02292",                       // Oracle, child record found
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
// e.g. a value does not satisfy a check condition.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok && string(e.Code) == pgCheckViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlCheckConstraintViolate {
		return true
	}
	if e, ok := asError[sqlServerError](err); ok && e.SQLErrorNumber() == mssqlReferenceOrCheck &&
		strings.Contains(err.Error(), "CHECK constraint") {
		return true
	}
	return containsAny(err.Error(),
		"Error 3819",                // MySQL
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
		"ORA-02290",                 // Oracle
	)
}

// asError extracts an error of type T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	if errors.As(err, &target) {
		return target, true
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
