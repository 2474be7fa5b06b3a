package expr

import "reflect"

func method(owner, name string, obj Expr, t reflect.Type, args ...any) *Call {
	c := &Call{Object: obj, Owner: owner, Method: name, typ: t}
	for _, a := range args {
		c.Args = append(c.Args, Lift(a))
	}
	return c
}

// Contains reports whether s contains sub.
func Contains(s Expr, sub any) *Call { return method(OwnerStrings, "Contains", s, TypeBool, sub) }

// StartsWith reports whether s begins with prefix.
func StartsWith(s Expr, prefix any) *Call {
	return method(OwnerStrings, "StartsWith", s, TypeBool, prefix)
}

// EndsWith reports whether s ends with suffix.
func EndsWith(s Expr, suffix any) *Call {
	return method(OwnerStrings, "EndsWith", s, TypeBool, suffix)
}

// ToUpper returns s in upper case.
func ToUpper(s Expr) *Call { return method(OwnerStrings, "ToUpper", s, TypeString) }

// ToLower returns s in lower case.
func ToLower(s Expr) *Call { return method(OwnerStrings, "ToLower", s, TypeString) }

// Trim removes leading and trailing white space.
func Trim(s Expr) *Call { return method(OwnerStrings, "Trim", s, TypeString) }

// TrimStart removes leading white space.
func TrimStart(s Expr) *Call { return method(OwnerStrings, "TrimStart", s, TypeString) }

// TrimEnd removes trailing white space.
func TrimEnd(s Expr) *Call { return method(OwnerStrings, "TrimEnd", s, TypeString) }

// Substring returns length characters of s starting at the zero-based start.
func Substring(s Expr, start, length any) *Call {
	return method(OwnerStrings, "Substring", s, TypeString, start, length)
}

// Replace replaces every old in s with repl.
func Replace(s Expr, old, repl any) *Call {
	return method(OwnerStrings, "Replace", s, TypeString, old, repl)
}

// IsNullOrEmpty reports whether s is nil or the empty string.
func IsNullOrEmpty(s Expr) *Call {
	return method(OwnerStrings, "IsNullOrEmpty", nil, TypeBool, s)
}

// Length returns the number of characters in s.
func Length(s Expr) *Member { return Prop(s, "Length") }

// ToString converts x to its string form.
func ToString(x Expr) *Call { return method(OwnerConv, "ToString", x, TypeString) }

// Parse parses the string s as a value of type t.
func Parse(t reflect.Type, s Expr) *Call { return method(OwnerConv, "Parse", nil, t, s) }

// Abs returns the absolute value of x.
func Abs(x Expr) *Call { return method(OwnerMath, "Abs", nil, x.Type(), x) }

// Now is the current local time of the database server.
func Now() *Member { return Static(OwnerTime, "Now", TypeTime) }

// UTCNow is the current UTC time of the database server.
func UTCNow() *Member { return Static(OwnerTime, "UTCNow", TypeTime) }

// Today is the current date of the database server.
func Today() *Member { return Static(OwnerTime, "Today", TypeTime) }

// Time parts.
func Year(t Expr) *Member        { return Prop(t, "Year") }
func Month(t Expr) *Member       { return Prop(t, "Month") }
func Day(t Expr) *Member         { return Prop(t, "Day") }
func Hour(t Expr) *Member        { return Prop(t, "Hour") }
func Minute(t Expr) *Member      { return Prop(t, "Minute") }
func Second(t Expr) *Member      { return Prop(t, "Second") }
func Millisecond(t Expr) *Member { return Prop(t, "Millisecond") }
func DayOfWeek(t Expr) *Member   { return Prop(t, "DayOfWeek") }
func Date(t Expr) *Member        { return Prop(t, "Date") }

func timeAdd(name string, t Expr, n any) *Call {
	return method(OwnerTime, name, t, t.Type(), n)
}

// Time arithmetic.
func AddYears(t Expr, n any) *Call        { return timeAdd("AddYears", t, n) }
func AddMonths(t Expr, n any) *Call       { return timeAdd("AddMonths", t, n) }
func AddDays(t Expr, n any) *Call         { return timeAdd("AddDays", t, n) }
func AddHours(t Expr, n any) *Call        { return timeAdd("AddHours", t, n) }
func AddMinutes(t Expr, n any) *Call      { return timeAdd("AddMinutes", t, n) }
func AddSeconds(t Expr, n any) *Call      { return timeAdd("AddSeconds", t, n) }
func AddMilliseconds(t Expr, n any) *Call { return timeAdd("AddMilliseconds", t, n) }

func diff(name string, start, end Expr) *Call {
	return method(OwnerSQL, name, nil, TypeInt, start, end)
}

// Server side date differences. They count the boundaries crossed between
// start and end in the named unit.
func DiffYears(start, end Expr) *Call        { return diff("DiffYears", start, end) }
func DiffMonths(start, end Expr) *Call       { return diff("DiffMonths", start, end) }
func DiffDays(start, end Expr) *Call         { return diff("DiffDays", start, end) }
func DiffHours(start, end Expr) *Call        { return diff("DiffHours", start, end) }
func DiffMinutes(start, end Expr) *Call      { return diff("DiffMinutes", start, end) }
func DiffSeconds(start, end Expr) *Call      { return diff("DiffSeconds", start, end) }
func DiffMilliseconds(start, end Expr) *Call { return diff("DiffMilliseconds", start, end) }

// Aggregate function names.
const (
	AggCount     = "Count"
	AggLongCount = "LongCount"
	AggSum       = "Sum"
	AggMax       = "Max"
	AggMin       = "Min"
	AggAverage   = "Average"
)

// Count counts the rows of the current group.
func Count() *Call { return method(OwnerSQL, AggCount, nil, TypeInt) }

// LongCount counts the rows of the current group as an int64.
func LongCount() *Call { return method(OwnerSQL, AggLongCount, nil, TypeInt64) }

// Sum sums x over the current group. The sum of a non-nullable type is 0
// when the group has no values.
func Sum(x Expr) *Call { return method(OwnerSQL, AggSum, nil, x.Type(), x) }

// Max returns the greatest x of the current group.
func Max(x Expr) *Call { return method(OwnerSQL, AggMax, nil, x.Type(), x) }

// Min returns the least x of the current group.
func Min(x Expr) *Call { return method(OwnerSQL, AggMin, nil, x.Type(), x) }

// Average returns the mean of x over the current group.
func Average(x Expr) *Call {
	return method(OwnerSQL, AggAverage, nil, AverageType(x.Type()), x)
}

// AverageType returns the result type of an average over values of type t.
// Integers average to float64 and nullable inputs give a nullable result.
func AverageType(t reflect.Type) reflect.Type {
	base := Deref(t)
	out := base
	if base != nil && isNumericKind(base.Kind()) && base.Kind() != reflect.Float32 && base.Kind() != reflect.Float64 {
		out = TypeFloat64
	}
	if t != nil && t.Kind() == reflect.Pointer {
		return reflect.PointerTo(out)
	}
	return out
}

// IsAggregate reports whether c is one of the sql aggregate functions.
func IsAggregate(c *Call) bool {
	if c.Owner != OwnerSQL {
		return false
	}
	switch c.Method {
	case AggCount, AggLongCount, AggSum, AggMax, AggMin, AggAverage:
		return true
	}
	return false
}

// DbFunc calls the database function schema.name. An empty schema uses the
// dialect default.
func DbFunc(schema, name string, result reflect.Type, args ...any) *Call {
	c := method(OwnerDB, name, nil, result, args...)
	c.Schema = schema
	return c
}
