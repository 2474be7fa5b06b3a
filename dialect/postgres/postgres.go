// Package postgres configures the SQL generator for PostgreSQL.
package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
)

// Dialect is the PostgreSQL dialect. Placeholders are ordinal ($1, $2,
// ...) in both binding modes; binding by name reuses the ordinal of equal
// values.
var Dialect = &sql.Dialect{
	Name:       dialect.Postgres,
	QuoteIdent: pq.QuoteIdentifier,
	Ordinal:    true,
	True:       "TRUE",
	False:      "FALSE",
	CastTypes: map[string]string{
		"string":  "VARCHAR",
		"bool":    "BOOLEAN",
		"int8":    "SMALLINT",
		"int16":   "SMALLINT",
		"int32":   "INTEGER",
		"int64":   "BIGINT",
		"float32": "REAL",
		"float64": "DOUBLE PRECISION",
		"decimal": "NUMERIC",
		"time":    "TIMESTAMP",
		"uuid":    "UUID",
		"bytes":   "BYTEA",
	},
	Concat:         sql.ConcatPipes,
	NullFunc:       "COALESCE",
	Paging:         sql.PagingLimitOffset,
	PagingModes:    []sql.PagingMode{sql.PagingLimitOffset, sql.PagingOffsetFetch},
	Limit:          sql.LimitClause,
	LimitUnbounded: "ALL",
	ForUpdate:      " FOR UPDATE",
	Returning:      sql.ReturnReturning,
	DefaultValues:  "DEFAULT VALUES",
	NextValue:      nextValue,
	MaxParameters:  65535,
	BatchSize:      1000,
	Registry:       newRegistry(),
}

// SetMethodHandler registers h for methods named name, ahead of the
// built-in handlers.
func SetMethodHandler(name string, h sql.MethodHandler) {
	Dialect.Registry.RegisterMethod(name, h)
}

// SetPropertyHandler registers h for members named name, ahead of the
// built-in handlers.
func SetPropertyHandler(name string, h sql.PropertyHandler) {
	Dialect.Registry.RegisterProperty(name, h)
}

// ValidateDSN reports whether dsn is a valid lib/pq data source, either a
// postgres:// URL or a key=value list.
func ValidateDSN(dsn string) error {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if _, err := pq.ParseURL(dsn); err != nil {
			return fmt.Errorf("postgres: invalid data source: %w", err)
		}
		return nil
	}
	if _, err := pq.NewConnector(dsn); err != nil {
		return fmt.Errorf("postgres: invalid data source: %w", err)
	}
	return nil
}

func nextValue(schema, name string) string {
	seq := pq.QuoteIdentifier(name)
	if schema != "" {
		seq = pq.QuoteIdentifier(schema) + "." + seq
	}
	return "nextval(" + pq.QuoteLiteral(seq) + ")"
}

var dateParts = map[string]string{
	"Year":        "CAST(DATE_PART('YEAR',{0}) AS INTEGER)",
	"Month":       "CAST(DATE_PART('MONTH',{0}) AS INTEGER)",
	"Day":         "CAST(DATE_PART('DAY',{0}) AS INTEGER)",
	"Hour":        "CAST(DATE_PART('HOUR',{0}) AS INTEGER)",
	"Minute":      "CAST(DATE_PART('MINUTE',{0}) AS INTEGER)",
	"Second":      "CAST(FLOOR(DATE_PART('SECOND',{0})) AS INTEGER)",
	"Millisecond": "(CAST(FLOOR(DATE_PART('MILLISECONDS',{0})) AS INTEGER) % 1000)",
	"DayOfWeek":   "CAST(DATE_PART('DOW',{0}) AS INTEGER)",
	"Date":        "DATE_TRUNC('DAY',{0})",
	"Now":         "LOCALTIMESTAMP",
	"UTCNow":      "(NOW() AT TIME ZONE 'UTC')",
	"Today":       "CURRENT_DATE",
}

var timeMethods = map[string]string{
	"AddYears":        "({0} + ({1}) * INTERVAL '1 YEAR')",
	"AddMonths":       "({0} + ({1}) * INTERVAL '1 MONTH')",
	"AddDays":         "({0} + ({1}) * INTERVAL '1 DAY')",
	"AddHours":        "({0} + ({1}) * INTERVAL '1 HOUR')",
	"AddMinutes":      "({0} + ({1}) * INTERVAL '1 MINUTE')",
	"AddSeconds":      "({0} + ({1}) * INTERVAL '1 SECOND')",
	"AddMilliseconds": "({0} + ({1}) * INTERVAL '1 MILLISECOND')",
}

func newRegistry() *sql.Registry {
	r := sql.NewRegistry()
	sql.RegisterCommon(r)
	sql.RegisterDateParts(r, dateParts)
	sql.RegisterTimeMethods(r, timeMethods)
	sql.RegisterUnsupported(r, expr.OwnerSQL, "PostgreSQL has no DATEDIFF; subtract the times on the client", sql.DiffNames...)
	return r
}
