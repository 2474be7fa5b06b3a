// Package oracle configures the SQL generator for Oracle Database 12c and
// later.
package oracle

import (
	"strconv"

	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
)

// Dialect is the Oracle dialect. Multi-row inserts render as INSERT ALL and
// generated values are read back through RETURNING ... INTO output
// parameters.
var Dialect = &sql.Dialect{
	Name:          dialect.Oracle,
	QuoteIdent:    sql.DoubleQuote,
	ParamPrefix:   ":",
	Positional:    func(i int) string { return ":" + strconv.Itoa(i+1) },
	SupportsNamed: true,
	True:          "1",
	False:         "0",
	CastTypes: map[string]string{
		"string":  "NVARCHAR2(2000)",
		"bool":    "NUMBER(1,0)",
		"int8":    "NUMBER(3,0)",
		"int16":   "NUMBER(5,0)",
		"int32":   "NUMBER(10,0)",
		"int64":   "NUMBER(19,0)",
		"float32": "BINARY_FLOAT",
		"float64": "BINARY_DOUBLE",
		"decimal": "NUMBER",
		"time":    "TIMESTAMP",
	},
	Concat:            sql.ConcatPipes,
	NullFunc:          "NVL",
	Paging:            sql.PagingRowNumber,
	PagingModes:       []sql.PagingMode{sql.PagingRowNumber, sql.PagingOffsetFetch},
	Limit:             sql.LimitFetchFirst,
	SyntheticOrderKey: "(SELECT 1 FROM DUAL)",
	NoTableAliasAs:    true,
	ForUpdate:         " FOR UPDATE",
	Returning:         sql.ReturnInto,
	InsertAll:         true,
	NextValue:         nextValue,
	ModFunc:           true,
	BitFunc:           true,
	MaxParameters:     65535,
	BatchSize:         1000,
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
	"Year":        "CAST(TO_CHAR({0},'YYYY') AS NUMBER)",
	"Month":       "CAST(TO_CHAR({0},'MM') AS NUMBER)",
	"Day":         "CAST(TO_CHAR({0},'DD') AS NUMBER)",
	"Hour":        "CAST(TO_CHAR({0},'HH24') AS NUMBER)",
	"Minute":      "CAST(TO_CHAR({0},'MI') AS NUMBER)",
	"Second":      "CAST(TO_CHAR({0},'SS') AS NUMBER)",
	"Millisecond": "CAST(TO_CHAR(CAST({0} AS TIMESTAMP),'FF3') AS NUMBER)",
	"DayOfWeek":   "(CAST(TO_CHAR({0},'D') AS NUMBER) - 1)",
	"Date":        "TRUNC({0})",
	"Now":         "SYSDATE",
	"UTCNow":      "SYS_EXTRACT_UTC(SYSTIMESTAMP)",
	"Today":       "TRUNC(SYSDATE)",
}

var timeMethods = map[string]string{
	"AddYears":        "ADD_MONTHS({0},({1}) * 12)",
	"AddMonths":       "ADD_MONTHS({0},{1})",
	"AddDays":         "({0} + NUMTODSINTERVAL({1},'DAY'))",
	"AddHours":        "({0} + NUMTODSINTERVAL({1},'HOUR'))",
	"AddMinutes":      "({0} + NUMTODSINTERVAL({1},'MINUTE'))",
	"AddSeconds":      "({0} + NUMTODSINTERVAL({1},'SECOND'))",
	"AddMilliseconds": "({0} + NUMTODSINTERVAL(({1}) / 1000,'SECOND'))",
}

func newRegistry() *sql.Registry {
	r := sql.NewRegistry()
	sql.RegisterCommon(r)
	r.RegisterMethod("Substring", sql.SubstringHandler("SUBSTR"))
	sql.RegisterDateParts(r, dateParts)
	sql.RegisterTimeMethods(r, timeMethods)
	sql.RegisterUnsupported(r, expr.OwnerSQL, "DATEDIFF is not supported", sql.DiffNames...)
	return r
}
