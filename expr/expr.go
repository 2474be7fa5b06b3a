// Package expr provides the host expression tree used to describe query
// predicates, selectors and keys.
//
// Go has no expression trees, so lambdas are written as closures that build
// an Expr from their row parameters:
//
//	adults := func(u *expr.Parameter) expr.Expr {
//	    return expr.GTE(u.Field("Age"), 18)
//	}
//
// The query package calls such closures with parameters bound to the current
// result shape and translates the returned tree. Subtrees that do not depend
// on a row parameter (CanEvaluate) are folded into values at compile time
// with Evaluate.
package expr

import (
	"fmt"
	"reflect"
	"time"
)

// Expr is a node of the host expression tree.
type Expr interface {
	// Type returns the static Go type of the value the node produces.
	Type() reflect.Type
	node()
}

// Owners of static members and method calls.
const (
	OwnerStrings = "strings"
	OwnerTime    = "time"
	OwnerMath    = "math"
	OwnerSQL     = "sql"
	OwnerDB      = "db"
	OwnerSlices  = "slices"
	OwnerConv    = "conv"
	OwnerFunc    = "func"
)

type (
	// Parameter is a lambda parameter standing for a row of the current shape.
	Parameter struct {
		Name string
		typ  reflect.Type
	}

	// Constant is a literal value.
	Constant struct {
		Value any
		typ   reflect.Type
	}

	// Variable is a captured variable. Its value is read when the
	// expression is evaluated, not when it is built.
	Variable struct {
		Name string
		ptr  reflect.Value
	}

	// Member is a field or property access. X is nil for static members
	// such as Now.
	Member struct {
		X     Expr
		Owner string
		Name  string
		Index []int
		typ   reflect.Type
	}

	// Call is a method or function call. Object is nil for static calls.
	Call struct {
		Object Expr
		Owner  string
		Method string
		Args   []Expr
		// Schema is the database schema of a database function.
		Schema string
		fn     reflect.Value
		typ    reflect.Type
	}

	// Binary is an operator with two operands.
	Binary struct {
		Op          BinaryOp
		Left, Right Expr
		typ         reflect.Type
	}

	// Unary is an operator with one operand.
	Unary struct {
		Op  UnaryOp
		X   Expr
		typ reflect.Type
	}

	// Convert converts X to another type.
	Convert struct {
		X   Expr
		typ reflect.Type
	}

	// Conditional is the ternary Test ? Then : Else.
	Conditional struct {
		Test, Then, Else Expr
	}

	// New constructs a struct value from member bindings.
	New struct {
		Bindings []Binding
		typ      reflect.Type
	}

	// Binding binds a struct member to a value inside New.
	Binding struct {
		Name  string
		Value Expr
	}

	// Subquery embeds another query as a value, a set or an existence test.
	Subquery struct {
		Source QuerySource
	}

	// Lambda is a function body with its parameters.
	Lambda struct {
		Params []*Parameter
		Body   Expr
	}
)

// QuerySource is implemented by queries that can be embedded in an expression.
type QuerySource interface {
	// ElemType returns the element type produced by the query.
	ElemType() reflect.Type
}

// BinaryOp enumerates binary operators.
type BinaryOp int

// Binary operators.
const (
	OpAdd BinaryOp = iota + 1
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpAnd
	OpOr
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpBitAnd
	OpBitOr
	OpCoalesce
)

var binaryOpNames = map[BinaryOp]string{
	OpAdd:                "+",
	OpSubtract:           "-",
	OpMultiply:           "*",
	OpDivide:             "/",
	OpModulo:             "%",
	OpAnd:                "&&",
	OpOr:                 "||",
	OpEqual:              "==",
	OpNotEqual:           "!=",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "<=",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: ">=",
	OpBitAnd:             "&",
	OpBitOr:              "|",
	OpCoalesce:           "??",
}

// String returns the Go-like spelling of the operator.
func (o BinaryOp) String() string {
	if s, ok := binaryOpNames[o]; ok {
		return s
	}
	return fmt.Sprintf("BinaryOp(%d)", int(o))
}

// IsComparison reports whether the operator yields a bool from two values.
func (o BinaryOp) IsComparison() bool {
	return o >= OpEqual && o <= OpGreaterThanOrEqual
}

// IsLogical reports whether the operator is && or ||.
func (o BinaryOp) IsLogical() bool {
	return o == OpAnd || o == OpOr
}

// UnaryOp enumerates unary operators.
type UnaryOp int

// Unary operators.
const (
	OpNot UnaryOp = iota + 1
	OpNegate
)

func (*Parameter) node()   {}
func (*Constant) node()    {}
func (*Variable) node()    {}
func (*Member) node()      {}
func (*Call) node()        {}
func (*Binary) node()      {}
func (*Unary) node()       {}
func (*Convert) node()     {}
func (*Conditional) node() {}
func (*New) node()         {}
func (*Subquery) node()    {}
func (*Lambda) node()      {}

// Type implements Expr.
func (p *Parameter) Type() reflect.Type { return p.typ }

// Type implements Expr.
func (c *Constant) Type() reflect.Type { return c.typ }

// Type implements Expr.
func (v *Variable) Type() reflect.Type { return v.ptr.Type().Elem() }

// Type implements Expr. It is nil for members that do not exist.
func (m *Member) Type() reflect.Type { return m.typ }

// Type implements Expr.
func (c *Call) Type() reflect.Type { return c.typ }

// Type implements Expr.
func (b *Binary) Type() reflect.Type { return b.typ }

// Type implements Expr.
func (u *Unary) Type() reflect.Type { return u.typ }

// Type implements Expr.
func (c *Convert) Type() reflect.Type { return c.typ }

// Type implements Expr.
func (c *Conditional) Type() reflect.Type { return c.Then.Type() }

// Type implements Expr.
func (n *New) Type() reflect.Type { return n.typ }

// Type implements Expr.
func (s *Subquery) Type() reflect.Type { return s.Source.ElemType() }

// Type implements Expr. A lambda reports the type of its body.
func (l *Lambda) Type() reflect.Type { return l.Body.Type() }

// Common types.
var (
	TypeBool    = reflect.TypeFor[bool]()
	TypeInt     = reflect.TypeFor[int]()
	TypeInt64   = reflect.TypeFor[int64]()
	TypeFloat64 = reflect.TypeFor[float64]()
	TypeString  = reflect.TypeFor[string]()
	TypeTime    = reflect.TypeFor[time.Time]()
	TypeBytes   = reflect.TypeFor[[]byte]()
	TypeAny     = reflect.TypeFor[any]()
)

// NewParameter returns a lambda parameter of the given type.
func NewParameter(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, typ: t}
}

// Field returns the access of the named member of the row.
func (p *Parameter) Field(name string) *Member { return Prop(p, name) }

// Field returns the access of a member of this member's value.
func (m *Member) Field(name string) *Member { return Prop(m, name) }

// Val returns a constant of the dynamic type of v. A nil v is a constant
// of type any.
func Val(v any) *Constant {
	if v == nil {
		return &Constant{typ: TypeAny}
	}
	return &Constant{Value: v, typ: reflect.TypeOf(v)}
}

// TypedVal returns a constant with an explicit static type.
func TypedVal(v any, t reflect.Type) *Constant {
	return &Constant{Value: v, typ: t}
}

// Null returns a nil constant of type t.
func Null(t reflect.Type) *Constant {
	return &Constant{typ: t}
}

// Var captures the variable ptr points to. The value is read at
// evaluation time, so a compiled expression tree can be reused while the
// variable changes.
func Var(ptr any) *Variable {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		panic(fmt.Sprintf("expr: Var expects a non-nil pointer, got %T", ptr))
	}
	return &Variable{ptr: v}
}

// Value returns the current value of the captured variable.
func (v *Variable) Value() any { return v.ptr.Elem().Interface() }

// Prop returns the access of the named member of x. Struct fields resolve
// through reflection; strings and times expose built-in properties
// such as Length and Year. The returned member has a nil type when
// the member does not exist; translation reports it.
func Prop(x Expr, name string) *Member {
	m := &Member{X: x, Name: name}
	t := Deref(x.Type())
	if t == nil {
		return m
	}
	if t.Kind() == reflect.Struct && t != TypeTime {
		if sf, ok := t.FieldByName(name); ok && sf.IsExported() {
			m.Index = sf.Index
			m.typ = sf.Type
			return m
		}
	}
	if pt, ok := builtinProperty(t, name); ok {
		m.Owner = builtinOwner(t)
		m.typ = pt
	}
	return m
}

func builtinOwner(t reflect.Type) string {
	if t == TypeTime {
		return OwnerTime
	}
	return OwnerStrings
}

func builtinProperty(t reflect.Type, name string) (reflect.Type, bool) {
	switch {
	case t.Kind() == reflect.String && name == "Length":
		return TypeInt, true
	case t == TypeTime:
		switch name {
		case "Year", "Month", "Day", "Hour", "Minute", "Second", "Millisecond", "DayOfWeek":
			return TypeInt, true
		case "Date":
			return TypeTime, true
		}
	}
	return nil, false
}

// Static returns a static member such as the current time.
func Static(owner, name string, t reflect.Type) *Member {
	return &Member{Owner: owner, Name: name, typ: t}
}

// Deref returns the element type of pointer types and t otherwise.
func Deref(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

// IsNullable reports whether values of t can be nil.
func IsNullable(t reflect.Type) bool {
	if t == nil {
		return true
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// Nullable returns the nullable form of t.
func Nullable(t reflect.Type) reflect.Type {
	if IsNullable(t) {
		return t
	}
	return reflect.PointerTo(t)
}

// NewLambda builds a lambda by calling fn with one parameter per type.
func NewLambda(types []reflect.Type, fn func(...*Parameter) Expr) *Lambda {
	params := make([]*Parameter, len(types))
	for i, t := range types {
		params[i] = NewParameter(paramName(i), t)
	}
	return &Lambda{Params: params, Body: fn(params...)}
}

// Lambda1 builds a single-parameter lambda.
func Lambda1(t reflect.Type, fn func(*Parameter) Expr) *Lambda {
	p := NewParameter(paramName(0), t)
	return &Lambda{Params: []*Parameter{p}, Body: fn(p)}
}

func paramName(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return fmt.Sprintf("p%d", i)
}
