package dbexpr

import (
	"reflect"
	"strconv"
)

var (
	typeBool   = reflect.TypeFor[bool]()
	typeInt    = reflect.TypeFor[int]()
	typeString = reflect.TypeFor[string]()
	typeAny    = reflect.TypeFor[any]()
)

// Owners used by nodes the query compiler creates itself.
const (
	// OwnerSequence marks a MethodCall reading the next value of the
	// sequence named by Method in Schema.
	OwnerSequence = "sequence"
	// OwnerDB marks a call of a user database function.
	OwnerDB = "db"
)

// NewConstant returns a constant of the dynamic type of v.
func NewConstant(v any) *Constant {
	if v == nil {
		return &Constant{typ: typeAny}
	}
	return &Constant{Value: v, typ: reflect.TypeOf(v)}
}

// NewTypedConstant returns a constant of type t.
func NewTypedConstant(v any, t reflect.Type) *Constant {
	return &Constant{Value: v, typ: t}
}

// Null returns a NULL of type t.
func Null(t reflect.Type) *Constant { return &Constant{typ: t} }

// True and False are the boolean constants. One and Null are the int
// constants used by null checks.
var (
	True    = NewConstant(true)
	False   = NewConstant(false)
	One     = NewConstant(1)
	NullInt = Null(reflect.TypeFor[*int]())
)

// NewParameter returns a bound parameter.
func NewParameter(v any, t reflect.Type) *Parameter {
	return &Parameter{Value: v, typ: t}
}

// NewSizedParameter returns a bound parameter with a type hint and size.
func NewSizedParameter(v any, t reflect.Type, dbType DbType, size int) *Parameter {
	return &Parameter{Value: v, typ: t, DbType: dbType, Size: size}
}

// NewColumnAccess returns a reference to table.column.
func NewColumnAccess(table, column string, t reflect.Type) *ColumnAccess {
	return &ColumnAccess{Table: table, Column: column, typ: t}
}

// NewMemberAccess returns a property access.
func NewMemberAccess(x Expr, owner, member string, t reflect.Type) *MemberAccess {
	return &MemberAccess{X: x, Owner: owner, Member: member, typ: t}
}

// NewMethodCall returns a method call.
func NewMethodCall(object Expr, owner, method string, args []Expr, t reflect.Type) *MethodCall {
	return &MethodCall{Object: object, Owner: owner, Method: method, Args: args, typ: t}
}

// NewFunctionCall returns a call of the database function schema.name.
func NewFunctionCall(schema, name string, args []Expr, t reflect.Type) *MethodCall {
	return &MethodCall{Owner: OwnerDB, Method: name, Schema: schema, Args: args, typ: t}
}

// NextValue returns the next value of a sequence.
func NextValue(schema, sequence string, t reflect.Type) *MethodCall {
	return &MethodCall{Owner: OwnerSequence, Method: sequence, Schema: schema, typ: t}
}

// NewBinary returns a binary operation. Comparisons and logical operators
// are typed bool; the others take t.
func NewBinary(op BinaryOp, l, r Expr, t reflect.Type) *Binary {
	if op.IsComparison() || op.IsLogical() {
		t = typeBool
	}
	return &Binary{Op: op, Left: l, Right: r, typ: t}
}

// Equal returns l = r.
func Equal(l, r Expr) *Binary { return NewBinary(OpEqual, l, r, typeBool) }

// NotEqual returns l <> r.
func NotEqual(l, r Expr) *Binary { return NewBinary(OpNotEqual, l, r, typeBool) }

// Concat returns the null propagating concatenation l + r.
func Concat(l, r Expr) *Binary { return NewBinary(OpConcat, l, r, typeString) }

// And conjoins the conditions, skipping nil ones. It returns nil when no
// condition remains.
func And(conds ...Expr) Expr {
	var out Expr
	for _, c := range conds {
		switch {
		case c == nil:
		case out == nil:
			out = c
		default:
			out = NewBinary(OpAnd, out, c, typeBool)
		}
	}
	return out
}

// Or disjoins the conditions, skipping nil ones.
func Or(conds ...Expr) Expr {
	var out Expr
	for _, c := range conds {
		switch {
		case c == nil:
		case out == nil:
			out = c
		default:
			out = NewBinary(OpOr, out, c, typeBool)
		}
	}
	return out
}

// Not negates a condition.
func Not(x Expr) *Unary { return &Unary{Op: OpNot, X: x, typ: typeBool} }

// Negate returns -x.
func Negate(x Expr) *Unary { return &Unary{Op: OpNegate, X: x, typ: x.Type()} }

// NewConvert returns a cast of x to t.
func NewConvert(x Expr, t reflect.Type) *Convert { return &Convert{X: x, typ: t} }

// NewCoalesce returns COALESCE(check, replacement).
func NewCoalesce(check, replacement Expr, t reflect.Type) *Coalesce {
	return &Coalesce{Check: check, Replacement: replacement, typ: t}
}

// NewCaseWhen returns a searched CASE.
func NewCaseWhen(whens []WhenThen, els Expr, t reflect.Type) *CaseWhen {
	return &CaseWhen{Whens: whens, Else: els, typ: t}
}

// IsNull returns x IS NULL.
func IsNull(x Expr) *Binary { return Equal(x, Null(x.Type())) }

// NewAggregate returns an aggregate function call.
func NewAggregate(fn string, args []Expr, t reflect.Type) *Aggregate {
	return &Aggregate{Func: fn, Args: args, typ: t}
}

// NewSubquery embeds q with the given value type.
func NewSubquery(q *SqlQuery, t reflect.Type) *Subquery {
	return &Subquery{Query: q, typ: t}
}

// NewSqlQuery returns an empty SELECT typed t.
func NewSqlQuery(t reflect.Type) *SqlQuery {
	return &SqlQuery{typ: t}
}

// Int returns a pointer to n, for Skip and Take.
func Int(n int) *int { return &n }

func (e *Constant) Type() reflect.Type     { return e.typ }
func (e *Parameter) Type() reflect.Type    { return e.typ }
func (e *ColumnAccess) Type() reflect.Type { return e.typ }
func (*Table) Type() reflect.Type          { return nil }
func (e *MemberAccess) Type() reflect.Type { return e.typ }
func (e *MethodCall) Type() reflect.Type   { return e.typ }
func (e *Binary) Type() reflect.Type       { return e.typ }
func (e *Unary) Type() reflect.Type        { return e.typ }
func (e *Convert) Type() reflect.Type      { return e.typ }
func (e *Coalesce) Type() reflect.Type     { return e.typ }
func (e *CaseWhen) Type() reflect.Type     { return e.typ }
func (*In) Type() reflect.Type             { return typeBool }
func (*Exists) Type() reflect.Type         { return typeBool }
func (e *Aggregate) Type() reflect.Type    { return e.typ }
func (e *Subquery) Type() reflect.Type     { return e.typ }
func (*FromTable) Type() reflect.Type      { return nil }
func (*JoinTable) Type() reflect.Type      { return nil }
func (e *SqlQuery) Type() reflect.Type     { return e.typ }
func (*Insert) Type() reflect.Type         { return typeInt }
func (*Update) Type() reflect.Type         { return typeInt }
func (*Delete) Type() reflect.Type         { return typeInt }

func (e *Constant) Accept(v Visitor)     { v.VisitConstant(e) }
func (e *Parameter) Accept(v Visitor)    { v.VisitParameter(e) }
func (e *ColumnAccess) Accept(v Visitor) { v.VisitColumnAccess(e) }
func (e *Table) Accept(v Visitor)        { v.VisitTable(e) }
func (e *MemberAccess) Accept(v Visitor) { v.VisitMemberAccess(e) }
func (e *MethodCall) Accept(v Visitor)   { v.VisitMethodCall(e) }
func (e *Binary) Accept(v Visitor)       { v.VisitBinary(e) }
func (e *Unary) Accept(v Visitor)        { v.VisitUnary(e) }
func (e *Convert) Accept(v Visitor)      { v.VisitConvert(e) }
func (e *Coalesce) Accept(v Visitor)     { v.VisitCoalesce(e) }
func (e *CaseWhen) Accept(v Visitor)     { v.VisitCaseWhen(e) }
func (e *In) Accept(v Visitor)           { v.VisitIn(e) }
func (e *Exists) Accept(v Visitor)       { v.VisitExists(e) }
func (e *Aggregate) Accept(v Visitor)    { v.VisitAggregate(e) }
func (e *Subquery) Accept(v Visitor)     { v.VisitSubquery(e) }
func (e *FromTable) Accept(v Visitor)    { v.VisitFromTable(e) }
func (e *JoinTable) Accept(v Visitor)    { v.VisitJoinTable(e) }
func (e *SqlQuery) Accept(v Visitor)     { v.VisitSqlQuery(e) }
func (e *Insert) Accept(v Visitor)       { v.VisitInsert(e) }
func (e *Update) Accept(v Visitor)       { v.VisitUpdate(e) }
func (e *Delete) Accept(v Visitor)       { v.VisitDelete(e) }

// IsNullConstant reports whether e is a NULL constant.
func IsNullConstant(e Expr) bool {
	c, ok := e.(*Constant)
	return ok && isNil(c.Value)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// StripInvalidConvert removes Convert nodes whose operand already has the
// target's underlying type, such as a *int converted to int. Converts of a
// NULL constant are kept. Stripping is idempotent.
func StripInvalidConvert(e Expr) Expr {
	for {
		c, ok := e.(*Convert)
		if !ok || !isNoOpConvert(c) {
			return e
		}
		e = c.X
	}
}

func isNoOpConvert(c *Convert) bool {
	from, to := c.X.Type(), c.typ
	if from == nil || to == nil {
		return false
	}
	if from == to {
		return true
	}
	from, to = deref(from), deref(to)
	if from == to {
		return true
	}
	// A named type over the same kind, such as an enum over int32.
	return from.Kind() == to.Kind() && isIntegerKind(from.Kind()) && (from.PkgPath() != "" || to.PkgPath() != "") && from.Size() == to.Size()
}

func deref(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// AddColumn appends a column segment and returns its alias. A column that
// is already projected under any alias is reused. The alias is made
// unique among the existing aliases by appending a numeric suffix.
func (q *SqlQuery) AddColumn(body Expr, preferred string, equalFold func(a, b string) bool) string {
	if ca, ok := body.(*ColumnAccess); ok {
		for _, c := range q.Columns {
			if o, ok := c.Body.(*ColumnAccess); ok && o.Table == ca.Table && o.Column == ca.Column {
				return c.Alias
			}
		}
	}
	alias := UniqueName(preferred, func(name string) bool {
		for _, c := range q.Columns {
			if equalFold(c.Alias, name) {
				return true
			}
		}
		return false
	})
	q.Columns = append(q.Columns, &ColumnSegment{Body: body, Alias: alias})
	return alias
}

// UniqueName returns prefix when it is not taken, otherwise the first of
// prefix0, prefix1, ... that is not taken.
func UniqueName(prefix string, taken func(string) bool) string {
	if !taken(prefix) {
		return prefix
	}
	for i := 0; ; i++ {
		name := prefix + strconv.Itoa(i)
		if !taken(name) {
			return name
		}
	}
}

// Clone returns a shallow copy of q with its own slices.
func (q *SqlQuery) Clone() *SqlQuery {
	c := *q
	c.Columns = append([]*ColumnSegment(nil), q.Columns...)
	c.GroupSegments = append([]Expr(nil), q.GroupSegments...)
	c.Orderings = append([]Ordering(nil), q.Orderings...)
	return &c
}

// Aliases calls fn for every table alias in the tree, main table first.
func (f *FromTable) Aliases(fn func(string)) {
	fn(f.Table.Alias)
	walkJoins(f.Joins, fn)
}

func walkJoins(joins []*JoinTable, fn func(string)) {
	for _, j := range joins {
		fn(j.Table.Alias)
		walkJoins(j.Joins, fn)
	}
}
