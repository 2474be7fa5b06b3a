package sql

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PagingMode selects how Skip is rendered.
type PagingMode int

// Paging strategies. The zero value selects the dialect default.
const (
	PagingDefault PagingMode = iota
	// PagingRowNumber numbers the rows with ROW_NUMBER() in a derived
	// table and filters on the number range.
	PagingRowNumber
	// PagingOffsetFetch uses OFFSET n ROWS FETCH NEXT m ROWS ONLY.
	PagingOffsetFetch
	// PagingLimitOffset uses LIMIT m OFFSET n.
	PagingLimitOffset
)

var pagingNames = [...]string{"default", "row_number", "offset_fetch", "limit_offset"}

// String returns the configuration name of the mode.
func (m PagingMode) String() string {
	if int(m) < len(pagingNames) {
		return pagingNames[m]
	}
	return "PagingMode(" + strconv.Itoa(int(m)) + ")"
}

// ParsePagingMode parses a configuration name.
func ParsePagingMode(s string) (PagingMode, bool) {
	for i, n := range pagingNames {
		if strings.EqualFold(n, s) {
			return PagingMode(i), true
		}
	}
	return PagingDefault, false
}

// LimitStyle selects how Take without Skip is rendered.
type LimitStyle int

// Limit styles.
const (
	// LimitTop renders SELECT TOP n.
	LimitTop LimitStyle = iota
	// LimitClause renders a trailing LIMIT n.
	LimitClause
	// LimitFetchFirst renders a trailing FETCH FIRST n ROWS ONLY.
	LimitFetchFirst
)

// ConcatStyle selects the string concatenation operator.
type ConcatStyle int

// Concatenation styles.
const (
	ConcatPlus  ConcatStyle = iota // a + b
	ConcatFunc                     // CONCAT(a, b)
	ConcatPipes                    // a || b
)

// ReturnStyle selects how generated values are read back after a write.
type ReturnStyle int

// Return styles.
const (
	ReturnNone ReturnStyle = iota
	// ReturnOutput renders OUTPUT INSERTED.col before VALUES and WHERE.
	ReturnOutput
	// ReturnReturning renders a trailing RETURNING col.
	ReturnReturning
	// ReturnLastInsertID reads the identity from sql.Result.
	ReturnLastInsertID
	// ReturnInto renders RETURNING col INTO :out with output parameters.
	ReturnInto
)

// AggregateFunc renders an aggregate function call.
type AggregateFunc func(g *Generator, args []Expr, result reflect.Type)

// Dialect configures the generator for one SQL variant.
type Dialect struct {
	// Name is the dialect name, one of the dialect package constants.
	Name string
	// QuoteIdent quotes an identifier.
	QuoteIdent func(string) string
	// ParamPrefix is written before generated parameter names, such as "@".
	ParamPrefix string
	// Ordinal renders placeholders as $1, $2, ... in both binding modes.
	Ordinal bool
	// Positional renders the placeholder of the i-th positional parameter.
	// Nil renders "?".
	Positional func(i int) string
	// SupportsNamed reports whether the driver binds sql.Named arguments.
	SupportsNamed bool
	// True and False are the boolean literals.
	True, False string
	// CastTypes maps a type key (see TypeKey) to the CAST target type.
	CastTypes map[string]string
	// Concat is the string concatenation style.
	Concat ConcatStyle
	// NullFunc is the two argument null replacement function, such as ISNULL.
	NullFunc string
	// EmptyString is the empty string literal.
	EmptyString string
	// Paging is the default paging strategy and PagingModes the supported ones.
	Paging      PagingMode
	PagingModes []PagingMode
	// Limit is the Take-only rendering and LimitUnbounded the LIMIT value
	// meaning no limit, used when Skip has no Take.
	Limit          LimitStyle
	LimitUnbounded string
	// SyntheticOrderKey orders paged queries that have no ordering.
	SyntheticOrderKey string
	// NoTableAliasAs omits AS before table aliases.
	NoTableAliasAs bool
	// LockHints renders WITH(NOLOCK) and WITH(UPDLOCK) table hints.
	// Otherwise an update lock renders ForUpdate after the statement.
	LockHints bool
	ForUpdate string
	// Returning is how generated values are read back.
	Returning ReturnStyle
	// DefaultValues is the statement tail of an insert without columns.
	DefaultValues string
	// InsertAll renders multi-row inserts as INSERT ALL ... SELECT 1 FROM DUAL.
	InsertAll bool
	// NextValue renders the next value of a sequence. Nil when the dialect
	// has no sequences.
	NextValue func(schema, name string) string
	// DefaultSchema qualifies database functions declared without schema.
	DefaultSchema string
	// StringSize is the parameter size of strings not longer than it.
	StringSize int
	// ModFunc renders modulo as MOD(a, b) and BitFunc bitwise operators
	// with BITAND.
	ModFunc bool
	BitFunc bool
	// MaxParameters is the driver limit of parameters per statement and
	// BatchSize the default row count of batched inserts.
	MaxParameters int
	BatchSize     int
	// Aggregates overrides the shared aggregate renderers by function name.
	Aggregates map[string]AggregateFunc
	// Registry holds the method and property handlers.
	Registry *Registry
}

// DefaultOptions returns the options the dialect is configured with.
func (d *Dialect) DefaultOptions() Options {
	return Options{
		BindByName:    d.SupportsNamed,
		Paging:        d.Paging,
		BatchSize:     d.BatchSize,
		MaxParameters: d.MaxParameters,
	}
}

// SupportsPaging reports whether the dialect can render the mode.
func (d *Dialect) SupportsPaging(m PagingMode) bool {
	for _, s := range d.PagingModes {
		if s == m {
			return true
		}
	}
	return false
}

// Quote quotes an identifier.
func (d *Dialect) Quote(ident string) string {
	if d.QuoteIdent != nil {
		return d.QuoteIdent(ident)
	}
	return DoubleQuote(ident)
}

// DoubleQuote quotes an identifier with double quotes.
func DoubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// BracketQuote quotes an identifier with square brackets.
func BracketQuote(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

// BacktickQuote quotes an identifier with backticks.
func BacktickQuote(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	decimalType = reflect.TypeFor[decimal.Decimal]()
	uuidType    = reflect.TypeFor[uuid.UUID]()
	bytesType   = reflect.TypeFor[[]byte]()
	stringType  = reflect.TypeFor[string]()
)

// TypeKey returns the cast map key of t: string, bool, int8, int16, int32,
// int64, float32, float64, decimal, time, uuid or bytes. It is empty for
// types without a key.
func TypeKey(t reflect.Type) string {
	t = deref(t)
	switch t {
	case nil:
		return ""
	case timeType:
		return "time"
	case decimalType:
		return "decimal"
	case uuidType:
		return "uuid"
	case bytesType:
		return "bytes"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int8, reflect.Uint8:
		return "int8"
	case reflect.Int16, reflect.Uint16:
		return "int16"
	case reflect.Int32, reflect.Uint32:
		return "int32"
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return "int64"
	case reflect.Float32:
		return "float32"
	case reflect.Float64:
		return "float64"
	}
	return ""
}

func deref(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

func isNullableType(t reflect.Type) bool {
	if t == nil {
		return true
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}
