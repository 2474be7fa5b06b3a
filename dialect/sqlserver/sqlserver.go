// Package sqlserver configures the SQL generator for Microsoft SQL Server.
package sqlserver

import (
	"reflect"
	"strconv"

	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
)

// Dialect is the SQL Server dialect. Skip renders with ROW_NUMBER() unless
// the options select OFFSET ... FETCH, available from SQL Server 2012.
var Dialect = &sql.Dialect{
	Name:          dialect.SQLServer,
	QuoteIdent:    sql.BracketQuote,
	ParamPrefix:   "@",
	Positional:    func(i int) string { return "@p" + strconv.Itoa(i+1) },
	SupportsNamed: true,
	True:          "CAST(1 AS BIT)",
	False:         "CAST(0 AS BIT)",
	CastTypes: map[string]string{
		"string":  "NVARCHAR(MAX)",
		"bool":    "BIT",
		"int8":    "TINYINT",
		"int16":   "SMALLINT",
		"int32":   "INT",
		"int64":   "BIGINT",
		"float32": "REAL",
		"float64": "FLOAT",
		"decimal": "DECIMAL(38,18)",
		"time":    "DATETIME2",
		"uuid":    "UNIQUEIDENTIFIER",
		"bytes":   "VARBINARY(MAX)",
	},
	Concat:            sql.ConcatPlus,
	NullFunc:          "ISNULL",
	EmptyString:       "N''",
	Paging:            sql.PagingRowNumber,
	PagingModes:       []sql.PagingMode{sql.PagingRowNumber, sql.PagingOffsetFetch},
	Limit:             sql.LimitTop,
	SyntheticOrderKey: "(SELECT 1)",
	LockHints:         true,
	Returning:         sql.ReturnOutput,
	DefaultValues:     "DEFAULT VALUES",
	NextValue:         nextValue,
	DefaultSchema:     "dbo",
	StringSize:        4000,
	MaxParameters:     2100,
	BatchSize:         1000,
	Aggregates: map[string]sql.AggregateFunc{
		expr.AggLongCount: sql.CountFunc("COUNT_BIG"),
		expr.AggAverage:   average,
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
		return "NEXT VALUE FOR " + sql.BracketQuote(name)
	}
	return "NEXT VALUE FOR " + sql.BracketQuote(schema) + "." + sql.BracketQuote(name)
}

// average casts integer operands to FLOAT; AVG of an INT column is an INT.
func average(g *sql.Generator, args []sql.Expr, _ reflect.Type) {
	if len(args) != 1 {
		g.Unsupported("aggregate Average", "expects one argument")
		return
	}
	switch sql.TypeKey(args[0].Type()) {
	case "int8", "int16", "int32", "int64", "bool":
		g.WriteString("AVG(")
		g.Cast(args[0], "float64")
		g.WriteString(")")
	default:
		g.Template("AVG({0})", args...)
	}
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
	"Date":        "CAST({0} AS DATE)",
	"Now":         "GETDATE()",
	"UTCNow":      "GETUTCDATE()",
	"Today":       "CAST(GETDATE() AS DATE)",
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
	r.RegisterMethod("Trim", sql.MethodTemplate(expr.OwnerStrings, "RTRIM(LTRIM({0}))"))
	r.RegisterProperty("Length", sql.PropertyTemplate(expr.OwnerStrings, "LEN({0})"))
	sql.RegisterDateParts(r, dateParts)
	sql.RegisterTimeMethods(r, timeMethods)
	sql.RegisterDiffs(r, diffs)
	return r
}
