package expr

import (
	"fmt"
	"reflect"
)

// Lift returns v as an expression. Expr values are returned unchanged and
// any other value becomes a constant.
func Lift(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return Val(v)
}

// liftPair lifts two operands, converting a raw Go value to the type of the
// other operand when both belong to the same kind family. This keeps
// Eq(p.Field("Age"), 18) typed as the column when Age is an int64.
func liftPair(l, r any) (Expr, Expr) {
	le, lok := l.(Expr)
	re, rok := r.(Expr)
	switch {
	case lok && rok:
		return le, re
	case lok:
		return le, constFor(r, le.Type())
	case rok:
		return constFor(l, re.Type()), re
	default:
		return Val(l), Val(r)
	}
}

func constFor(v any, t reflect.Type) Expr {
	if v == nil {
		return Null(Nullable(t))
	}
	rv := reflect.ValueOf(v)
	target := Deref(t)
	if target == nil || rv.Type() == target || rv.Type() == t {
		return Val(v)
	}
	if sameFamily(rv.Kind(), target.Kind()) && rv.Type().ConvertibleTo(target) {
		return TypedVal(rv.Convert(target).Interface(), target)
	}
	return Val(v)
}

func sameFamily(a, b reflect.Kind) bool {
	switch {
	case isNumericKind(a):
		return isNumericKind(b)
	case a == reflect.String:
		return b == reflect.String
	case a == reflect.Bool:
		return b == reflect.Bool
	}
	return false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// IsNumeric reports whether t (or its pointer element) is a Go numeric type.
func IsNumeric(t reflect.Type) bool {
	t = Deref(t)
	return t != nil && isNumericKind(t.Kind())
}

func compare(op BinaryOp, l, r any) *Binary {
	le, re := liftPair(l, r)
	return &Binary{Op: op, Left: le, Right: re, typ: TypeBool}
}

// Eq returns l == r. A nil operand compiles to an IS NULL test.
func Eq(l, r any) *Binary { return compare(OpEqual, l, r) }

// NE returns l != r.
func NE(l, r any) *Binary { return compare(OpNotEqual, l, r) }

// LT returns l < r.
func LT(l, r any) *Binary { return compare(OpLessThan, l, r) }

// LTE returns l <= r.
func LTE(l, r any) *Binary { return compare(OpLessThanOrEqual, l, r) }

// GT returns l > r.
func GT(l, r any) *Binary { return compare(OpGreaterThan, l, r) }

// GTE returns l >= r.
func GTE(l, r any) *Binary { return compare(OpGreaterThanOrEqual, l, r) }

// And folds the conditions with &&. Nil conditions are skipped and an
// empty list yields the constant true.
func And(conds ...Expr) Expr { return fold(OpAnd, true, conds) }

// Or folds the conditions with ||. Nil conditions are skipped and an
// empty list yields the constant false.
func Or(conds ...Expr) Expr { return fold(OpOr, false, conds) }

func fold(op BinaryOp, empty bool, conds []Expr) Expr {
	var out Expr
	for _, c := range conds {
		switch {
		case c == nil:
		case out == nil:
			out = c
		default:
			out = &Binary{Op: op, Left: out, Right: c, typ: TypeBool}
		}
	}
	if out == nil {
		return Val(empty)
	}
	return out
}

// Not returns !x.
func Not(x Expr) *Unary { return &Unary{Op: OpNot, X: x, typ: TypeBool} }

// Neg returns -x.
func Neg(x Expr) *Unary { return &Unary{Op: OpNegate, X: x, typ: x.Type()} }

func arith(op BinaryOp, l, r any) *Binary {
	le, re := liftPair(l, r)
	return &Binary{Op: op, Left: le, Right: re, typ: arithType(le.Type(), re.Type())}
}

func arithType(lt, rt reflect.Type) reflect.Type {
	switch {
	case lt == nil || lt == TypeAny:
		return rt
	case rt != nil && rt.Kind() == reflect.Pointer && lt.Kind() != reflect.Pointer:
		return reflect.PointerTo(lt)
	}
	return lt
}

// Add returns l + r. On strings it is a concatenation that yields nil when
// any operand is nil.
func Add(l, r any) *Binary { return arith(OpAdd, l, r) }

// Sub returns l - r.
func Sub(l, r any) *Binary { return arith(OpSubtract, l, r) }

// Mul returns l * r.
func Mul(l, r any) *Binary { return arith(OpMultiply, l, r) }

// Div returns l / r.
func Div(l, r any) *Binary { return arith(OpDivide, l, r) }

// Mod returns l % r.
func Mod(l, r any) *Binary { return arith(OpModulo, l, r) }

// BitAnd returns l & r.
func BitAnd(l, r any) *Binary { return arith(OpBitAnd, l, r) }

// BitOr returns l | r.
func BitOr(l, r any) *Binary { return arith(OpBitOr, l, r) }

// Concat returns the string concatenation of the parts, left to right.
func Concat(parts ...any) Expr {
	if len(parts) == 0 {
		return Val("")
	}
	out := Lift(parts[0])
	for _, p := range parts[1:] {
		out = &Binary{Op: OpAdd, Left: out, Right: Lift(p), typ: TypeString}
	}
	return out
}

// Coalesce returns x when it is not nil and alt otherwise.
func Coalesce(x Expr, alt any) *Binary {
	a, ok := alt.(Expr)
	if !ok {
		a = constFor(alt, Deref(x.Type()))
	}
	return &Binary{Op: OpCoalesce, Left: x, Right: a, typ: a.Type()}
}

// If returns the conditional test ? then : els.
func If(test Expr, then, els any) *Conditional {
	t, e := liftPair(then, els)
	return &Conditional{Test: test, Then: t, Else: e}
}

// Cast converts x to t.
func Cast(x Expr, t reflect.Type) *Convert {
	return &Convert{X: x, typ: t}
}

// IsNil returns x == nil.
func IsNil(x Expr) *Binary { return Eq(x, nil) }

// NotNil returns x != nil.
func NotNil(x Expr) *Binary { return NE(x, nil) }

// In reports whether x is one of values. Values is a slice, a constant or
// captured slice expression.
func In(x Expr, values any) *Call {
	list := Lift(values)
	if lt := Deref(list.Type()); lt == nil || (lt.Kind() != reflect.Slice && lt.Kind() != reflect.Array) {
		panic(fmt.Sprintf("expr: In expects a slice, got %v", list.Type()))
	}
	return &Call{Owner: OwnerSlices, Method: "Contains", Args: []Expr{list, x}, typ: TypeBool}
}

// InQuery reports whether x is in the single-column result of q.
func InQuery(x Expr, q QuerySource) *Call {
	return &Call{Owner: OwnerSQL, Method: "In", Args: []Expr{x, &Subquery{Source: q}}, typ: TypeBool}
}

// Exists reports whether q returns any row.
func Exists(q QuerySource) *Call {
	return &Call{Owner: OwnerSQL, Method: "Exists", Args: []Expr{&Subquery{Source: q}}, typ: TypeBool}
}

// Scalar embeds the single value returned by q.
func Scalar(q QuerySource) *Subquery {
	return &Subquery{Source: q}
}

// Invoke calls the Go function fn with the given arguments at compile time.
// The call is folded into a value when every argument can be evaluated.
func Invoke(fn any, args ...any) *Call {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.Type().NumOut() == 0 {
		panic(fmt.Sprintf("expr: Invoke expects a function with a result, got %T", fn))
	}
	c := &Call{Owner: OwnerFunc, Method: "Invoke", fn: fv, typ: fv.Type().Out(0)}
	for _, a := range args {
		c.Args = append(c.Args, Lift(a))
	}
	return c
}

// NewOf returns a struct constructor of type t.
func NewOf(t reflect.Type, bindings ...Binding) *New {
	return &New{Bindings: bindings, typ: t}
}

// NewStruct returns a constructor of the struct type T.
func NewStruct[T any](bindings ...Binding) *New {
	return NewOf(reflect.TypeFor[T](), bindings...)
}

// Bind binds the struct member name to the value v.
func Bind(name string, v any) Binding {
	return Binding{Name: name, Value: Lift(v)}
}
