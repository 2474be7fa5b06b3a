package query

import (
	"reflect"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/schema"
)

// parser translates the body of a lambda into a database expression.
// Parameters resolve through the scope to the shapes they are bound to.
type parser struct {
	c      *Compiler
	scope  ScopeParameters
	tables *AliasSet
}

func (c *Compiler) parser(m *Model) *parser {
	return &parser{c: c, scope: m.ScopeParameters, tables: m.ScopeTables}
}

// bind returns a parser with the parameters of l bound to the shapes.
func (p *parser) bind(l *expr.Lambda, shapes ...ObjectModel) (*parser, error) {
	if l == nil {
		return nil, veloq.Unsupportedf("nil lambda")
	}
	if len(l.Params) != len(shapes) {
		return nil, veloq.Unsupportedf("lambda with %d parameters where %d are expected", len(l.Params), len(shapes))
	}
	c := *p
	c.scope = p.scope.clone()
	for i, prm := range l.Params {
		c.scope[prm] = shapes[i]
	}
	return &c, nil
}

var binaryOps = map[expr.BinaryOp]dbexpr.BinaryOp{
	expr.OpAdd:                dbexpr.OpAdd,
	expr.OpSubtract:           dbexpr.OpSubtract,
	expr.OpMultiply:           dbexpr.OpMultiply,
	expr.OpDivide:             dbexpr.OpDivide,
	expr.OpModulo:             dbexpr.OpModulo,
	expr.OpAnd:                dbexpr.OpAnd,
	expr.OpOr:                 dbexpr.OpOr,
	expr.OpEqual:              dbexpr.OpEqual,
	expr.OpNotEqual:           dbexpr.OpNotEqual,
	expr.OpLessThan:           dbexpr.OpLessThan,
	expr.OpLessThanOrEqual:    dbexpr.OpLessThanOrEqual,
	expr.OpGreaterThan:        dbexpr.OpGreaterThan,
	expr.OpGreaterThanOrEqual: dbexpr.OpGreaterThanOrEqual,
	expr.OpBitAnd:             dbexpr.OpBitAnd,
	expr.OpBitOr:              dbexpr.OpBitOr,
}

// parse translates e. Closed subtrees are evaluated: literals become
// constants and everything else, captured variables included, becomes a
// bound parameter.
func (p *parser) parse(e expr.Expr) (dbexpr.Expr, error) {
	if e == nil {
		return nil, veloq.Unsupportedf("nil expression")
	}
	if _, ok := e.(*expr.Lambda); !ok && expr.CanEvaluate(e) {
		return fold(e), nil
	}
	switch e := e.(type) {
	case *expr.Parameter:
		m, ok := p.scope[e]
		if !ok {
			return nil, veloq.Unsupportedf("parameter %s is not in scope", e.Name)
		}
		return m.Expr()
	case *expr.Member:
		return p.member(e)
	case *expr.Call:
		return p.call(e)
	case *expr.Binary:
		return p.binary(e)
	case *expr.Unary:
		x, err := p.parse(e.X)
		if err != nil {
			return nil, err
		}
		if e.Op == expr.OpNot {
			return dbexpr.Not(x), nil
		}
		return dbexpr.Negate(x), nil
	case *expr.Convert:
		x, err := p.parse(e.X)
		if err != nil {
			return nil, err
		}
		return dbexpr.StripInvalidConvert(dbexpr.NewConvert(x, e.Type())), nil
	case *expr.Conditional:
		parts, err := p.parseAll([]expr.Expr{e.Test, e.Then, e.Else})
		if err != nil {
			return nil, err
		}
		return dbexpr.NewCaseWhen([]dbexpr.WhenThen{{When: parts[0], Then: parts[1]}}, parts[2], e.Type()), nil
	case *expr.Subquery:
		q, err := p.subquery(e.Source)
		if err != nil {
			return nil, err
		}
		return dbexpr.NewSubquery(q, e.Type()), nil
	case *expr.New:
		return nil, veloq.Unsupportedf("constructing %v inside a condition", e.Type())
	case *expr.Lambda:
		return nil, veloq.Unsupportedf("nested lambda")
	}
	return nil, veloq.Unsupportedf("expression %T", e)
}

func (p *parser) parseAll(es []expr.Expr) ([]dbexpr.Expr, error) {
	out := make([]dbexpr.Expr, 0, len(es))
	for _, e := range es {
		x, err := p.parse(e)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func fold(e expr.Expr) dbexpr.Expr {
	t := e.Type()
	if c, ok := e.(*expr.Constant); ok {
		return constant(c.Value, t)
	}
	v := expr.Evaluate(e)
	if v == nil {
		return dbexpr.Null(t)
	}
	return dbexpr.NewSizedParameter(v, t, schema.DbTypeOf(t), 0)
}

func constant(v any, t reflect.Type) dbexpr.Expr {
	if v == nil {
		return dbexpr.Null(t)
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return dbexpr.Null(t)
		}
		v = rv.Elem().Interface()
	}
	return dbexpr.NewTypedConstant(v, t)
}

func (p *parser) member(m *expr.Member) (dbexpr.Expr, error) {
	if m.Owner != "" {
		var x dbexpr.Expr
		if m.X != nil {
			var err error
			if x, err = p.parse(m.X); err != nil {
				return nil, err
			}
		}
		return dbexpr.NewMemberAccess(x, m.Owner, m.Name, m.Type()), nil
	}
	if m.X == nil || m.Type() == nil {
		return nil, veloq.Unsupportedf("unknown member %s", m.Name)
	}
	s, err := p.shape(m)
	if err != nil {
		return nil, err
	}
	return s.Expr()
}

func (p *parser) call(c *expr.Call) (dbexpr.Expr, error) {
	if expr.IsAggregate(c) {
		args, err := p.parseAll(c.Args)
		if err != nil {
			return nil, err
		}
		return dbexpr.NewAggregate(c.Method, args, c.Type()), nil
	}
	switch c.Owner {
	case expr.OwnerSQL:
		return p.sqlCall(c)
	case expr.OwnerSlices:
		if c.Method == "Contains" && len(c.Args) == 2 {
			return p.contains(c.Args[0], c.Args[1])
		}
	case expr.OwnerDB:
		args, err := p.parseAll(c.Args)
		if err != nil {
			return nil, err
		}
		return dbexpr.NewFunctionCall(c.Schema, c.Method, args, c.Type()), nil
	case expr.OwnerFunc:
		return nil, veloq.Unsupportedf("Go function call over row values")
	}
	var obj dbexpr.Expr
	if c.Object != nil {
		var err error
		if obj, err = p.parse(c.Object); err != nil {
			return nil, err
		}
	}
	args, err := p.parseAll(c.Args)
	if err != nil {
		return nil, err
	}
	return dbexpr.NewMethodCall(obj, c.Owner, c.Method, args, c.Type()), nil
}

func (p *parser) sqlCall(c *expr.Call) (dbexpr.Expr, error) {
	switch {
	case c.Method == "In" && len(c.Args) == 2:
		sq, ok := c.Args[1].(*expr.Subquery)
		if !ok {
			break
		}
		x, err := p.parse(c.Args[0])
		if err != nil {
			return nil, err
		}
		q, err := p.subquery(sq.Source)
		if err != nil {
			return nil, err
		}
		if len(q.Columns) != 1 {
			return nil, veloq.Unsupportedf("IN over a query of %d columns", len(q.Columns))
		}
		return &dbexpr.In{X: x, Query: q}, nil
	case c.Method == "Exists" && len(c.Args) == 1:
		sq, ok := c.Args[0].(*expr.Subquery)
		if !ok {
			break
		}
		q, err := p.subquery(sq.Source)
		if err != nil {
			return nil, err
		}
		if q.Skip == nil {
			q.Columns = []*dbexpr.ColumnSegment{{Body: dbexpr.One, Alias: "C"}}
		}
		return &dbexpr.Exists{Query: q}, nil
	}
	return nil, veloq.Unsupportedf("sql.%s", c.Method)
}

// contains translates slices.Contains(list, x) into an IN list. The list
// must be closed.
func (p *parser) contains(list, x expr.Expr) (dbexpr.Expr, error) {
	if !expr.CanEvaluate(list) {
		return nil, veloq.Unsupportedf("IN over a list built from row values")
	}
	xe, err := p.parse(x)
	if err != nil {
		return nil, err
	}
	in := &dbexpr.In{X: xe}
	rv := reflect.Indirect(reflect.ValueOf(expr.Evaluate(list)))
	if !rv.IsValid() {
		return in, nil
	}
	et := expr.Deref(list.Type()).Elem()
	for i := range rv.Len() {
		in.Values = append(in.Values, constant(rv.Index(i).Interface(), et))
	}
	return in, nil
}

func (p *parser) binary(b *expr.Binary) (dbexpr.Expr, error) {
	l, err := p.parse(b.Left)
	if err != nil {
		return nil, err
	}
	r, err := p.parse(b.Right)
	if err != nil {
		return nil, err
	}
	switch {
	case b.Op == expr.OpCoalesce:
		return dbexpr.NewCoalesce(l, r, b.Type()), nil
	case b.Op == expr.OpAdd && isString(b.Type()):
		return dbexpr.Concat(l, r), nil
	}
	op, ok := binaryOps[b.Op]
	if !ok {
		return nil, veloq.Unsupportedf("operator %v", b.Op)
	}
	return dbexpr.NewBinary(op, l, r, b.Type()), nil
}

func isString(t reflect.Type) bool {
	t = expr.Deref(t)
	return t != nil && t.Kind() == reflect.String
}

// querier is implemented by typed query wrappers.
type querier interface {
	Query() *Query
}

// subquery compiles a nested query in the scope of the parser: it shares
// the alias set and can reference the outer parameters.
func (p *parser) subquery(src expr.QuerySource) (*dbexpr.SqlQuery, error) {
	var q *Query
	switch s := src.(type) {
	case *Query:
		q = s
	case querier:
		q = s.Query()
	default:
		return nil, veloq.Unsupportedf("subquery source %T", src)
	}
	m, err := p.c.compile(q, p.tables, p.scope)
	if err != nil {
		return nil, err
	}
	sq, _, err := m.build()
	return sq, err
}
