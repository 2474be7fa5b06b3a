package expr

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// CanEvaluate reports whether e is a closed expression over constants and
// captured variables. It is false when e references a lambda parameter, a
// server side value such as Now, an aggregate, a database function or a
// subquery, and for a nil expression.
func CanEvaluate(e Expr) bool {
	switch e := e.(type) {
	case nil, *Parameter:
		return false
	case *Constant, *Variable:
		return true
	case *Member:
		if e.X == nil {
			return !isServerMember(e)
		}
		return CanEvaluate(e.X)
	case *Call:
		if e.Owner == OwnerSQL || e.Owner == OwnerDB {
			return false
		}
		if e.Object != nil && !CanEvaluate(e.Object) {
			return false
		}
		for _, a := range e.Args {
			if !CanEvaluate(a) {
				return false
			}
		}
		return true
	case *Binary:
		return CanEvaluate(e.Left) && CanEvaluate(e.Right)
	case *Unary:
		return CanEvaluate(e.X)
	case *Convert:
		return CanEvaluate(e.X)
	case *Conditional:
		return CanEvaluate(e.Test) && CanEvaluate(e.Then) && CanEvaluate(e.Else)
	case *New:
		for _, b := range e.Bindings {
			if !CanEvaluate(b.Value) {
				return false
			}
		}
		return true
	}
	return false
}

func isServerMember(m *Member) bool {
	if m.Owner != OwnerTime {
		return false
	}
	switch m.Name {
	case "Now", "UTCNow", "Today":
		return true
	}
	return false
}

// Evaluate computes the value of e. A nil pointer result is returned as an
// untyped nil. The caller must check CanEvaluate first: Evaluate panics on
// lambda parameters, server side values and subqueries.
func Evaluate(e Expr) any {
	v := eval(e)
	if !v.IsValid() || isNilValue(v) {
		return nil
	}
	return v.Interface()
}

func eval(e Expr) reflect.Value {
	switch e := e.(type) {
	case *Constant:
		if e.Value == nil {
			return reflect.Zero(e.typ)
		}
		return reflect.ValueOf(e.Value)
	case *Variable:
		return e.ptr.Elem()
	case *Member:
		return evalMember(e)
	case *Call:
		return evalCall(e)
	case *Binary:
		return evalBinary(e)
	case *Unary:
		x := eval(e.X)
		if isNilValue(x) {
			return reflect.Zero(Nullable(e.typ))
		}
		x = indirect(x)
		if e.Op == OpNot {
			return reflect.ValueOf(!x.Bool())
		}
		return convertValue(negate(x), e.typ)
	case *Convert:
		return convertValue(eval(e.X), e.typ)
	case *Conditional:
		if truth(eval(e.Test)) {
			return convertValue(eval(e.Then), e.Type())
		}
		return convertValue(eval(e.Else), e.Type())
	case *New:
		out := reflect.New(e.typ).Elem()
		for _, b := range e.Bindings {
			f := out.FieldByName(b.Name)
			if !f.IsValid() || !f.CanSet() {
				panic(fmt.Sprintf("expr: %s has no settable member %s", e.typ, b.Name))
			}
			f.Set(convertValue(eval(b.Value), f.Type()))
		}
		return out
	case nil:
		panic("expr: evaluate nil expression")
	}
	panic(fmt.Sprintf("expr: %T cannot be evaluated", e))
}

func evalMember(m *Member) reflect.Value {
	if m.X == nil {
		now := time.Now()
		switch m.Name {
		case "Now":
			return reflect.ValueOf(now)
		case "UTCNow":
			return reflect.ValueOf(now.UTC())
		case "Today":
			y, mo, d := now.Date()
			return reflect.ValueOf(time.Date(y, mo, d, 0, 0, 0, 0, now.Location()))
		}
		panic(fmt.Sprintf("expr: unknown static member %s.%s", m.Owner, m.Name))
	}
	if m.typ == nil {
		panic(fmt.Sprintf("expr: %v has no member %s", m.X.Type(), m.Name))
	}
	x := indirect(eval(m.X))
	if m.Index != nil {
		return x.FieldByIndex(m.Index)
	}
	if x.Kind() == reflect.String {
		return reflect.ValueOf(utf8.RuneCountInString(x.String()))
	}
	t := x.Interface().(time.Time)
	switch m.Name {
	case "Year":
		return reflect.ValueOf(t.Year())
	case "Month":
		return reflect.ValueOf(int(t.Month()))
	case "Day":
		return reflect.ValueOf(t.Day())
	case "Hour":
		return reflect.ValueOf(t.Hour())
	case "Minute":
		return reflect.ValueOf(t.Minute())
	case "Second":
		return reflect.ValueOf(t.Second())
	case "Millisecond":
		return reflect.ValueOf(t.Nanosecond() / int(time.Millisecond))
	case "DayOfWeek":
		return reflect.ValueOf(int(t.Weekday()))
	default: // Date
		y, mo, d := t.Date()
		return reflect.ValueOf(time.Date(y, mo, d, 0, 0, 0, 0, t.Location()))
	}
}

func evalCall(c *Call) reflect.Value {
	if c.Owner == OwnerSQL || c.Owner == OwnerDB {
		panic(fmt.Sprintf("expr: %s.%s runs on the database server and cannot be evaluated", c.Owner, c.Method))
	}
	args := make([]reflect.Value, len(c.Args))
	for i, a := range c.Args {
		args[i] = eval(a)
	}
	if c.Owner == OwnerFunc {
		ft := c.fn.Type()
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			pt := ft.In(min(i, ft.NumIn()-1))
			if ft.IsVariadic() && i >= ft.NumIn()-1 {
				pt = pt.Elem()
			}
			in[i] = convertValue(a, pt)
		}
		out := c.fn.Call(in)
		if len(out) == 2 && !out[1].IsNil() {
			panic(out[1].Interface())
		}
		return out[0]
	}
	var recv reflect.Value
	if c.Object != nil {
		recv = eval(c.Object)
		if isNilValue(recv) {
			panic(fmt.Sprintf("expr: %s called on a nil receiver", c.Method))
		}
		recv = indirect(recv)
	}
	switch c.Owner {
	case OwnerStrings:
		return evalStrings(c, recv, args)
	case OwnerTime:
		return evalTime(c, recv, args)
	case OwnerSlices:
		list, x := indirect(args[0]), args[1]
		for i := 0; i < list.Len(); i++ {
			if equalValues(list.Index(i), x) {
				return reflect.ValueOf(true)
			}
		}
		return reflect.ValueOf(false)
	case OwnerMath:
		x := args[0]
		if isNilValue(x) {
			return reflect.Zero(c.typ)
		}
		if compareValues(indirect(x), reflect.Zero(Deref(x.Type()))) < 0 {
			return convertValue(negate(indirect(x)), c.typ)
		}
		return convertValue(x, c.typ)
	case OwnerConv:
		if c.Method == "ToString" {
			return reflect.ValueOf(fmt.Sprint(recv.Interface()))
		}
		if isNilValue(args[0]) {
			return reflect.Zero(Nullable(c.typ))
		}
		return parseValue(indirect(args[0]).String(), c.typ)
	}
	panic(fmt.Sprintf("expr: %s.%s cannot be evaluated", c.Owner, c.Method))
}

func evalStrings(c *Call, recv reflect.Value, args []reflect.Value) reflect.Value {
	str := func(v reflect.Value) string { return indirect(v).String() }
	switch c.Method {
	case "Contains":
		return reflect.ValueOf(strings.Contains(recv.String(), str(args[0])))
	case "StartsWith":
		return reflect.ValueOf(strings.HasPrefix(recv.String(), str(args[0])))
	case "EndsWith":
		return reflect.ValueOf(strings.HasSuffix(recv.String(), str(args[0])))
	case "ToUpper":
		return reflect.ValueOf(strings.ToUpper(recv.String()))
	case "ToLower":
		return reflect.ValueOf(strings.ToLower(recv.String()))
	case "Trim":
		return reflect.ValueOf(strings.TrimSpace(recv.String()))
	case "TrimStart":
		return reflect.ValueOf(strings.TrimLeftFunc(recv.String(), unicode.IsSpace))
	case "TrimEnd":
		return reflect.ValueOf(strings.TrimRightFunc(recv.String(), unicode.IsSpace))
	case "Substring":
		runes := []rune(recv.String())
		start := int(toInt64(args[0]))
		return reflect.ValueOf(string(runes[start : start+int(toInt64(args[1]))]))
	case "Replace":
		return reflect.ValueOf(strings.ReplaceAll(recv.String(), str(args[0]), str(args[1])))
	case "IsNullOrEmpty":
		return reflect.ValueOf(isNilValue(args[0]) || indirect(args[0]).Len() == 0)
	}
	panic(fmt.Sprintf("expr: unknown string method %s", c.Method))
}

func evalTime(c *Call, recv reflect.Value, args []reflect.Value) reflect.Value {
	t := recv.Interface().(time.Time)
	n := toInt64(args[0])
	var out time.Time
	switch c.Method {
	case "AddYears":
		out = t.AddDate(int(n), 0, 0)
	case "AddMonths":
		out = t.AddDate(0, int(n), 0)
	case "AddDays":
		out = t.AddDate(0, 0, int(n))
	case "AddHours":
		out = t.Add(time.Duration(n) * time.Hour)
	case "AddMinutes":
		out = t.Add(time.Duration(n) * time.Minute)
	case "AddSeconds":
		out = t.Add(time.Duration(n) * time.Second)
	case "AddMilliseconds":
		out = t.Add(time.Duration(n) * time.Millisecond)
	default:
		panic(fmt.Sprintf("expr: unknown time method %s", c.Method))
	}
	return convertValue(reflect.ValueOf(out), c.typ)
}

func parseValue(s string, t reflect.Type) reflect.Value {
	base := Deref(t)
	if u, ok := reflect.New(base).Interface().(encoding.TextUnmarshaler); ok {
		if err := u.UnmarshalText([]byte(s)); err != nil {
			panic(err)
		}
		return convertValue(reflect.ValueOf(u).Elem(), t)
	}
	var (
		v   any
		err error
	)
	switch base.Kind() {
	case reflect.String:
		v = s
	case reflect.Bool:
		v, err = strconv.ParseBool(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err = strconv.ParseInt(s, 10, 64)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err = strconv.ParseUint(s, 10, 64)
	case reflect.Float32, reflect.Float64:
		v, err = strconv.ParseFloat(s, 64)
	default:
		panic(fmt.Sprintf("expr: cannot parse into %v", t))
	}
	if err != nil {
		panic(err)
	}
	return convertValue(reflect.ValueOf(v), t)
}

func evalBinary(b *Binary) reflect.Value {
	switch b.Op {
	case OpAnd:
		return reflect.ValueOf(truth(eval(b.Left)) && truth(eval(b.Right)))
	case OpOr:
		return reflect.ValueOf(truth(eval(b.Left)) || truth(eval(b.Right)))
	case OpCoalesce:
		if l := eval(b.Left); !isNilValue(l) {
			return convertValue(l, b.typ)
		}
		return convertValue(eval(b.Right), b.typ)
	}
	l, r := eval(b.Left), eval(b.Right)
	switch b.Op {
	case OpEqual:
		return reflect.ValueOf(equalValues(l, r))
	case OpNotEqual:
		return reflect.ValueOf(!equalValues(l, r))
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		if isNilValue(l) || isNilValue(r) {
			return reflect.ValueOf(false)
		}
		c := compareValues(indirect(l), indirect(r))
		switch b.Op {
		case OpLessThan:
			return reflect.ValueOf(c < 0)
		case OpLessThanOrEqual:
			return reflect.ValueOf(c <= 0)
		case OpGreaterThan:
			return reflect.ValueOf(c > 0)
		default:
			return reflect.ValueOf(c >= 0)
		}
	}
	if isNilValue(l) || isNilValue(r) {
		return reflect.Zero(Nullable(b.typ))
	}
	return convertValue(arithValues(b.Op, indirect(l), indirect(r)), b.typ)
}

func arithValues(op BinaryOp, l, r reflect.Value) reflect.Value {
	lk, rk := l.Kind(), r.Kind()
	switch {
	case lk == reflect.String && rk == reflect.String && op == OpAdd:
		return reflect.ValueOf(l.String() + r.String())
	case isFloatKind(lk) || isFloatKind(rk):
		a, b := toFloat64(l), toFloat64(r)
		switch op {
		case OpAdd:
			return reflect.ValueOf(a + b)
		case OpSubtract:
			return reflect.ValueOf(a - b)
		case OpMultiply:
			return reflect.ValueOf(a * b)
		case OpDivide:
			return reflect.ValueOf(a / b)
		case OpModulo:
			return reflect.ValueOf(math.Mod(a, b))
		}
	case isNumericKind(lk) && isNumericKind(rk):
		a, b := toInt64(l), toInt64(r)
		switch op {
		case OpAdd:
			return reflect.ValueOf(a + b)
		case OpSubtract:
			return reflect.ValueOf(a - b)
		case OpMultiply:
			return reflect.ValueOf(a * b)
		case OpDivide:
			return reflect.ValueOf(a / b)
		case OpModulo:
			return reflect.ValueOf(a % b)
		case OpBitAnd:
			return reflect.ValueOf(a & b)
		case OpBitOr:
			return reflect.ValueOf(a | b)
		}
	default:
		// Types such as decimal.Decimal expose arithmetic as methods.
		names := map[BinaryOp]string{OpAdd: "Add", OpSubtract: "Sub", OpMultiply: "Mul", OpDivide: "Div", OpModulo: "Mod"}
		if m := l.MethodByName(names[op]); names[op] != "" && m.IsValid() && m.Type().NumIn() == 1 && r.Type().AssignableTo(m.Type().In(0)) {
			return m.Call([]reflect.Value{r})[0]
		}
	}
	panic(fmt.Sprintf("expr: operator %s is not defined on %v and %v", op, l.Type(), r.Type()))
}

func negate(x reflect.Value) reflect.Value {
	switch {
	case isFloatKind(x.Kind()):
		return reflect.ValueOf(-x.Float())
	case isNumericKind(x.Kind()):
		return reflect.ValueOf(-toInt64(x))
	}
	if m := x.MethodByName("Neg"); m.IsValid() && m.Type().NumIn() == 0 {
		return m.Call(nil)[0]
	}
	panic(fmt.Sprintf("expr: cannot negate %v", x.Type()))
}

func equalValues(l, r reflect.Value) bool {
	ln, rn := isNilValue(l), isNilValue(r)
	if ln || rn {
		return ln && rn
	}
	l, r = indirect(l), indirect(r)
	switch {
	case isNumericKind(l.Kind()) && isNumericKind(r.Kind()):
		return compareNumbers(l, r) == 0
	case l.Kind() == reflect.String && r.Kind() == reflect.String:
		return l.String() == r.String()
	}
	if m := l.MethodByName("Equal"); m.IsValid() && m.Type().NumIn() == 1 && r.Type().AssignableTo(m.Type().In(0)) &&
		m.Type().NumOut() == 1 && m.Type().Out(0).Kind() == reflect.Bool {
		return m.Call([]reflect.Value{r})[0].Bool()
	}
	if l.Type() == r.Type() && l.Comparable() {
		return l.Equal(r)
	}
	return reflect.DeepEqual(l.Interface(), r.Interface())
}

func compareValues(l, r reflect.Value) int {
	switch {
	case isNumericKind(l.Kind()) && isNumericKind(r.Kind()):
		return compareNumbers(l, r)
	case l.Kind() == reflect.String && r.Kind() == reflect.String:
		return strings.Compare(l.String(), r.String())
	case l.Kind() == reflect.Bool && r.Kind() == reflect.Bool:
		return boolRank(l.Bool()) - boolRank(r.Bool())
	}
	for _, name := range []string{"Compare", "Cmp"} {
		if m := l.MethodByName(name); m.IsValid() && m.Type().NumIn() == 1 && r.Type().AssignableTo(m.Type().In(0)) {
			return int(m.Call([]reflect.Value{r})[0].Int())
		}
	}
	panic(fmt.Sprintf("expr: %v and %v are not ordered", l.Type(), r.Type()))
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareNumbers(l, r reflect.Value) int {
	switch {
	case isFloatKind(l.Kind()) || isFloatKind(r.Kind()):
		a, b := toFloat64(l), toFloat64(r)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case isUintKind(l.Kind()) && isUintKind(r.Kind()):
		a, b := l.Uint(), r.Uint()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	a, b := toInt64(l), toInt64(r)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isFloatKind(k reflect.Kind) bool { return k == reflect.Float32 || k == reflect.Float64 }

func isUintKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func toInt64(v reflect.Value) int64 {
	v = indirect(v)
	switch {
	case isUintKind(v.Kind()):
		return int64(v.Uint())
	case isFloatKind(v.Kind()):
		return int64(v.Float())
	}
	return v.Int()
}

func toFloat64(v reflect.Value) float64 {
	v = indirect(v)
	switch {
	case isUintKind(v.Kind()):
		return float64(v.Uint())
	case isFloatKind(v.Kind()):
		return v.Float()
	}
	return float64(v.Int())
}

func truth(v reflect.Value) bool {
	if isNilValue(v) {
		return false
	}
	return indirect(v).Bool()
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			panic("expr: nil dereference")
		}
		v = v.Elem()
	}
	return v
}

func isNilValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// convertValue converts v to t, wrapping into or unwrapping pointers as needed.
func convertValue(v reflect.Value, t reflect.Type) reflect.Value {
	if isNilValue(v) {
		return reflect.Zero(t)
	}
	if v.Type() == t {
		return v
	}
	if v.Kind() == reflect.Interface {
		return convertValue(v.Elem(), t)
	}
	if t.Kind() == reflect.Interface {
		if v.Type().Implements(t) {
			out := reflect.New(t).Elem()
			out.Set(v)
			return out
		}
		panic(fmt.Sprintf("expr: %v does not implement %v", v.Type(), t))
	}
	if t.Kind() == reflect.Pointer {
		if v.Kind() == reflect.Pointer {
			return convertValue(v.Elem(), t)
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(convertValue(v, t.Elem()))
		return p
	}
	if v.Kind() == reflect.Pointer {
		return convertValue(v.Elem(), t)
	}
	if v.Type().ConvertibleTo(t) {
		return v.Convert(t)
	}
	panic(fmt.Sprintf("expr: cannot convert %v to %v", v.Type(), t))
}
