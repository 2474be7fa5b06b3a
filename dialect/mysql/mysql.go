// Package mysql configures the SQL generator for MySQL and MariaDB.
package mysql

import (
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
)

// Dialect is the MySQL dialect. The driver binds positionally, so
// Options.BindByName has no effect.
var Dialect = &sql.Dialect{
	Name:       dialect.MySQL,
	QuoteIdent: sql.BacktickQuote,
	True:       "TRUE",
	False:      "FALSE",
	CastTypes: map[string]string{
		"string":  "CHAR",
		"bool":    "SIGNED",
		"int8":    "SIGNED",
		"int16":   "SIGNED",
		"int32":   "SIGNED",
		"int64":   "SIGNED",
		"float32": "FLOAT",
		"float64": "DOUBLE",
		"decimal": "DECIMAL(65,30)",
		"time":    "DATETIME",
		"uuid":    "CHAR(36)",
		"bytes":   "BINARY",
	},
	Concat:         sql.ConcatFunc,
	NullFunc:       "IFNULL",
	Paging:         sql.PagingLimitOffset,
	PagingModes:    []sql.PagingMode{sql.PagingLimitOffset},
	Limit:          sql.LimitClause,
	LimitUnbounded: "18446744073709551615",
	ForUpdate:      " FOR UPDATE",
	Returning:      sql.ReturnLastInsertID,
	DefaultValues:  "() VALUES()",
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

// ValidateDSN reports whether dsn is a valid go-sql-driver/mysql data
// source name. parseTime is required to scan DATETIME columns into
// time.Time.
func ValidateDSN(dsn string) error {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("mysql: invalid data source: %w", err)
	}
	if !cfg.ParseTime {
		return fmt.Errorf("mysql: data source for %s must set parseTime=true", cfg.Addr)
	}
	return nil
}

var dateParts = map[string]string{
	"Year":        "YEAR({0})",
	"Month":       "MONTH({0})",
	"Day":         "DAY({0})",
	"Hour":        "HOUR({0})",
	"Minute":      "MINUTE({0})",
	"Second":      "SECOND({0})",
	"Millisecond": "(MICROSECOND({0}) DIV 1000)",
	"DayOfWeek":   "(DAYOFWEEK({0}) - 1)",
	"Date":        "DATE({0})",
	"Now":         "NOW()",
	"UTCNow":      "UTC_TIMESTAMP()",
	"Today":       "CURDATE()",
}

var timeMethods = map[string]string{
	"AddYears":        "DATE_ADD({0},INTERVAL {1} YEAR)",
	"AddMonths":       "DATE_ADD({0},INTERVAL {1} MONTH)",
	"AddDays":         "DATE_ADD({0},INTERVAL {1} DAY)",
	"AddHours":        "DATE_ADD({0},INTERVAL {1} HOUR)",
	"AddMinutes":      "DATE_ADD({0},INTERVAL {1} MINUTE)",
	"AddSeconds":      "DATE_ADD({0},INTERVAL {1} SECOND)",
	"AddMilliseconds": "DATE_ADD({0},INTERVAL ({1}) * 1000 MICROSECOND)",
}

var diffs = map[string]string{
	"DiffYears":        "TIMESTAMPDIFF(YEAR,{0},{1})",
	"DiffMonths":       "TIMESTAMPDIFF(MONTH,{0},{1})",
	"DiffDays":         "TIMESTAMPDIFF(DAY,{0},{1})",
	"DiffHours":        "TIMESTAMPDIFF(HOUR,{0},{1})",
	"DiffMinutes":      "TIMESTAMPDIFF(MINUTE,{0},{1})",
	"DiffSeconds":      "TIMESTAMPDIFF(SECOND,{0},{1})",
	"DiffMilliseconds": "(TIMESTAMPDIFF(MICROSECOND,{0},{1}) DIV 1000)",
}

func newRegistry() *sql.Registry {
	r := sql.NewRegistry()
	sql.RegisterCommon(r)
	r.RegisterProperty("Length", sql.PropertyTemplate(expr.OwnerStrings, "CHAR_LENGTH({0})"))
	sql.RegisterDateParts(r, dateParts)
	sql.RegisterTimeMethods(r, timeMethods)
	sql.RegisterDiffs(r, diffs)
	return r
}
