// Package sqlite configures the SQL generator for SQLite.
//
// Times are compared and formatted with the SQLite date functions, which
// expect the text representation written by modernc.org/sqlite.
package sqlite

import (
	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
)

// Dialect is the SQLite dialect.
var Dialect = &sql.Dialect{
	Name:          dialect.SQLite,
	QuoteIdent:    sql.DoubleQuote,
	ParamPrefix:   "@",
	SupportsNamed: true,
	True:          "1",
	False:         "0",
	CastTypes: map[string]string{
		"string":  "TEXT",
		"bool":    "INTEGER",
		"int8":    "INTEGER",
		"int16":   "INTEGER",
		"int32":   "INTEGER",
		"int64":   "INTEGER",
		"float32": "REAL",
		"float64": "REAL",
		"decimal": "NUMERIC",
		"time":    "TEXT",
		"uuid":    "TEXT",
		"bytes":   "BLOB",
	},
	Concat:         sql.ConcatPipes,
	NullFunc:       "IFNULL",
	Paging:         sql.PagingLimitOffset,
	PagingModes:    []sql.PagingMode{sql.PagingLimitOffset, sql.PagingRowNumber},
	Limit:          sql.LimitClause,
	LimitUnbounded: "-1",
	Returning:      sql.ReturnReturning,
	DefaultValues:  "DEFAULT VALUES",
	MaxParameters:  32766,
	BatchSize:      500,
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

var dateParts = map[string]string{
	"Year":        "CAST(STRFTIME('%Y',{0}) AS INTEGER)",
	"Month":       "CAST(STRFTIME('%m',{0}) AS INTEGER)",
	"Day":         "CAST(STRFTIME('%d',{0}) AS INTEGER)",
	"Hour":        "CAST(STRFTIME('%H',{0}) AS INTEGER)",
	"Minute":      "CAST(STRFTIME('%M',{0}) AS INTEGER)",
	"Second":      "CAST(STRFTIME('%S',{0}) AS INTEGER)",
	"Millisecond": "CAST(SUBSTR(STRFTIME('%f',{0}),4) AS INTEGER)",
	"DayOfWeek":   "CAST(STRFTIME('%w',{0}) AS INTEGER)",
	"Date":        "DATE({0})",
	"Now":         "DATETIME('NOW','LOCALTIME')",
	"UTCNow":      "DATETIME('NOW')",
	"Today":       "DATE('NOW','LOCALTIME')",
}

var timeMethods = map[string]string{
	"AddYears":        "DATETIME({0},CAST({1} AS TEXT) || ' YEARS')",
	"AddMonths":       "DATETIME({0},CAST({1} AS TEXT) || ' MONTHS')",
	"AddDays":         "DATETIME({0},CAST({1} AS TEXT) || ' DAYS')",
	"AddHours":        "DATETIME({0},CAST({1} AS TEXT) || ' HOURS')",
	"AddMinutes":      "DATETIME({0},CAST({1} AS TEXT) || ' MINUTES')",
	"AddSeconds":      "DATETIME({0},CAST({1} AS TEXT) || ' SECONDS')",
	"AddMilliseconds": "STRFTIME('%Y-%m-%d %H:%M:%f',{0},CAST(({1}) / 1000.0 AS TEXT) || ' SECONDS')",
}

func newRegistry() *sql.Registry {
	r := sql.NewRegistry()
	sql.RegisterCommon(r)
	r.RegisterMethod("Substring", sql.SubstringHandler("SUBSTR"))
	sql.RegisterDateParts(r, dateParts)
	sql.RegisterTimeMethods(r, timeMethods)
	sql.RegisterUnsupported(r, expr.OwnerSQL, "SQLite has no DATEDIFF", sql.DiffNames...)
	return r
}
