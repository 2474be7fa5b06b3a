// Package dameng configures the SQL generator for Dameng DM8.
//
// DM8 follows Oracle for identifiers, NULL handling and RETURNING INTO, and
// SQL Server for date arithmetic.
package dameng

import (
	"strconv"

	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
)

// Dialect is the Dameng dialect.
var Dialect = &sql.Dialect{
	Name:          dialect.Dameng,
	QuoteIdent:    sql.DoubleQuote,
	ParamPrefix:   ":",
	Positional:    func(i int) string { return ":" + strconv.Itoa(i+1) },
	SupportsNamed: true,
	True:          "1",
	False:         "0",
	CastTypes: map[string]string{
		"string":  "VARCHAR(8188)",
		"bool":    "BIT",
		"int8":    "TINYINT",
		"int16":   "SMALLINT",
		"int32":   "INT",
		"int64":   "BIGINT",
		"float32": "REAL",
		"float64": "DOUBLE",
		"decimal": "DECIMAL(38,18)",
		"time":    "TIMESTAMP",
		"bytes":   "VARBINARY",
	},
	Concat:         sql.ConcatPipes,
	NullFunc:       "NVL",
	Paging:         sql.PagingLimitOffset,
	PagingModes:    []sql.PagingMode{sql.PagingLimitOffset, sql.PagingRowNumber, sql.PagingOffsetFetch},
	Limit:          sql.LimitClause,
	LimitUnbounded: "9223372036854775807",
	ForUpdate:      " FOR UPDATE",
	Returning:      sql.ReturnInto,
	DefaultValues:  "DEFAULT VALUES",
	NextValue:      nextValue,
	MaxParameters:  65535,
	BatchSize:      1000,
	Aggregates: map[string]sql.AggregateFunc{
		expr.AggAverage: sql.AggregateTemplate("TRUNC(AVG({0}),7)"),
	},
	Registry: newRegistry(),
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

func nextValue(schema, name string) string {
	if schema == "" {
		return sql.DoubleQuote(name) + ".NEXTVAL"
	}
	return sql.DoubleQuote(schema) + "." + sql.DoubleQuote(name) + ".NEXTVAL"
}

var dateParts = map[string]string{
	"Year":        "DATEPART(YEAR,{0})",
	"Month":       "DATEPART(MONTH,{0})",
	"Day":         "DATEPART(DAY,{0})",
	"Hour":        "DATEPART(HOUR,{0})",
	"Minute":      "DATEPART(MINUTE,{0})",
	"Second":      "DATEPART(SECOND,{0})",
	"Millisecond": "DATEPART(MILLISECOND,{0})",
	"DayOfWeek":   "(DATEPART(WEEKDAY,{0}) - 1)",
	"Date":        "TRUNC({0})",
	"Now":         "SYSDATE",
	"UTCNow":      "SYS_EXTRACT_UTC(SYSTIMESTAMP)",
	"Today":       "TRUNC(SYSDATE)",
}

var timeMethods = map[string]string{
	"AddYears":        "DATEADD(YEAR,{1},{0})",
	"AddMonths":       "DATEADD(MONTH,{1},{0})",
	"AddDays":         "DATEADD(DAY,{1},{0})",
	"AddHours":        "DATEADD(HOUR,{1},{0})",
	"AddMinutes":      "DATEADD(MINUTE,{1},{0})",
	"AddSeconds":      "DATEADD(SECOND,{1},{0})",
	"AddMilliseconds": "DATEADD(MILLISECOND,{1},{0})",
}

var diffs = map[string]string{
	"DiffYears":        "DATEDIFF(YEAR,{0},{1})",
	"DiffMonths":       "DATEDIFF(MONTH,{0},{1})",
	"DiffDays":         "DATEDIFF(DAY,{0},{1})",
	"DiffHours":        "DATEDIFF(HOUR,{0},{1})",
	"DiffMinutes":      "DATEDIFF(MINUTE,{0},{1})",
	"DiffSeconds":      "DATEDIFF(SECOND,{0},{1})",
	"DiffMilliseconds": "DATEDIFF(MILLISECOND,{0},{1})",
}

func newRegistry() *sql.Registry {
	r := sql.NewRegistry()
	sql.RegisterCommon(r)
	r.RegisterMethod("Substring", sql.SubstringHandler("SUBSTR"))
	sql.RegisterDateParts(r, dateParts)
	sql.RegisterTimeMethods(r, timeMethods)
	sql.RegisterDiffs(r, diffs)
	return r
}
