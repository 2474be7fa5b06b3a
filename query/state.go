package query

import (
	"cmp"
	"reflect"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/schema"
)

// stateKind is the SQL shape a model is in. It decides which operations
// compose with the current SELECT and which turn it into a derived table
// first.
type stateKind int

const (
	stateRoot stateKind = iota
	stateGeneral
	stateLimited
	stateDistinct
	stateGrouped
	stateAggregate
)

// Compiler compiles queries. It is safe for concurrent use once
// configured.
type Compiler struct {
	// Schema resolves entity descriptors. Nil uses schema.Default.
	Schema *schema.Registry
	// ContextFilters returns the request filters of an entity type.
	ContextFilters func(t reflect.Type) []expr.Predicate
}

// Compiled is a compiled query.
type Compiled struct {
	Query     *dbexpr.SqlQuery
	Activator Activator
	// Tables lists the physical tables the query reads.
	Tables []*dbexpr.Table
	// Scalar reports a query ending with an aggregate.
	Scalar bool
}

func (c *Compiler) registry() *schema.Registry {
	if c.Schema != nil {
		return c.Schema
	}
	return schema.Default
}

// Compile folds the operations of q into a SELECT.
func (c *Compiler) Compile(q *Query) (*Compiled, error) {
	m, err := c.compile(q, nil, nil)
	if err != nil {
		return nil, err
	}
	sq, act, err := m.build()
	if err != nil {
		return nil, err
	}
	return &Compiled{Query: sq, Activator: act, Tables: m.TouchedTables, Scalar: m.state == stateAggregate}, nil
}

// CompileModel folds the operations of q and returns the model.
func (c *Compiler) CompileModel(q *Query) (*Model, error) {
	return c.compile(q, nil, nil)
}

func (m *Model) build() (*dbexpr.SqlQuery, Activator, error) {
	q := m.CreateSqlQuery()
	a, err := m.ResultModel.Project(q)
	if err != nil {
		return nil, nil, err
	}
	return q, a, nil
}

func (c *Compiler) compile(q *Query, tables *AliasSet, scope ScopeParameters) (*Model, error) {
	if q == nil {
		return nil, veloq.Unsupportedf("nil query")
	}
	ops := q.Ops()
	root, ok := ops[0].(Root)
	if !ok {
		return nil, veloq.Unsupportedf("query without a root")
	}
	m, err := c.root(root, tables, scope)
	if err != nil {
		return nil, err
	}
	for _, op := range ops[1:] {
		if m.state == stateAggregate {
			return nil, veloq.Unsupportedf("%T after an aggregate", op)
		}
		if m, err = c.apply(m, op); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (c *Compiler) apply(m *Model, op Op) (*Model, error) {
	switch op := op.(type) {
	case Where:
		return c.where(m, op)
	case OrderBy:
		return c.orderBy(m, op)
	case Select:
		return c.selectOp(m, op)
	case Skip:
		return c.skip(m, op.N)
	case Take:
		return c.take(m, op.N)
	case Paging:
		return c.paging(m, op)
	case Distinct:
		return c.distinct(m)
	case IgnoreAllFilters:
		n := m.Clone(true)
		n.Options.IgnoreFilters = true
		return n, nil
	case Include:
		return c.include(m, op)
	case GroupBy:
		return c.groupBy(m, op)
	case Aggregate:
		return c.aggregate(m, op)
	case Join:
		return c.join(m, op)
	}
	return nil, veloq.Unsupportedf("operation %T inside a chain", op)
}

func (c *Compiler) root(r Root, tables *AliasSet, scope ScopeParameters) (*Model, error) {
	e, err := c.registry().Of(r.Type)
	if err != nil {
		return nil, err
	}
	m := NewModel(Options{}, tables, scope)
	alias := m.GenerateUniqueTableAlias(DefaultAlias)
	table := &dbexpr.Table{Name: cmp.Or(r.Table, e.Table), Schema: cmp.Or(r.Schema, e.Schema)}
	m.FromTable = &dbexpr.FromTable{Table: dbexpr.TableSegment{Body: table, Alias: alias, Lock: r.Lock}}
	m.TouchedTables = append(m.TouchedTables, table)
	shape := NewEntityModel(e, alias, e.Type)
	m.ResultModel = shape
	if m.GlobalFilters, err = c.predicates(m, shape, e.Filters); err != nil {
		return nil, err
	}
	if c.ContextFilters != nil {
		if m.ContextFilters, err = c.predicates(m, shape, c.ContextFilters(e.Type)); err != nil {
			return nil, err
		}
	}
	m.state = stateRoot
	return m, nil
}

// predicates parses filters over the shape.
func (c *Compiler) predicates(m *Model, shape ObjectModel, preds []expr.Predicate) ([]dbexpr.Expr, error) {
	var out []dbexpr.Expr
	for _, pr := range preds {
		cond, err := c.lambda(m, expr.Lambda1(shape.Type(), pr), shape)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func (c *Compiler) lambda(m *Model, l *expr.Lambda, shapes ...ObjectModel) (dbexpr.Expr, error) {
	p, err := c.parser(m).bind(l, shapes...)
	if err != nil {
		return nil, err
	}
	return p.parse(l.Body)
}

// composable reports whether the SELECT of m can take more clauses
// without changing the meaning of its limit, distinct or grouping.
func (m *Model) composable() bool {
	return m.state == stateRoot || m.state == stateGeneral
}

// prepare returns a copy of m ready for another clause, wrapping it into a
// derived table when needed.
func (c *Compiler) prepare(m *Model) (*Model, error) {
	if !m.composable() {
		return c.wrap(m)
	}
	return m.Clone(true), nil
}

// wrap turns the SELECT of m into a derived table and returns a model
// reading from it. Orderings survive only when they decide which rows a
// skip or take keeps; they are carried out through extra columns.
func (c *Compiler) wrap(m *Model) (*Model, error) {
	if hasCollection(m.ResultModel) {
		return nil, veloq.NewTranslationError("", "included collection in a derived table", "apply Skip, Take, Distinct and grouping before Include")
	}
	limited := m.Skip != nil || m.Take != nil
	src := m
	if !limited {
		src = m.Clone(false)
	}
	q := src.CreateSqlQuery()
	n := NewModel(m.Options, m.ScopeTables, m.ScopeParameters)
	alias := n.GenerateUniqueTableAlias(DefaultAlias)
	shape, err := m.ResultModel.Derive(q, alias)
	if err != nil {
		return nil, err
	}
	if limited {
		for _, o := range m.Orderings {
			n.Orderings = append(n.Orderings, dbexpr.Ordering{Expr: deriveExpr(q, alias, o.Expr, "O"), Desc: o.Desc})
		}
	}
	n.FromTable = &dbexpr.FromTable{Table: dbexpr.TableSegment{Body: q, Alias: alias}}
	n.ResultModel = shape
	n.TouchedTables = append(n.TouchedTables, m.TouchedTables...)
	n.state = stateGeneral
	return n, nil
}

func (c *Compiler) where(m *Model, op Where) (*Model, error) {
	n, err := c.prepare(m)
	if err != nil {
		return nil, err
	}
	cond, err := c.lambda(n, op.Predicate, n.ResultModel)
	if err != nil {
		return nil, err
	}
	n.AppendCondition(cond)
	return n, nil
}

func (c *Compiler) orderBy(m *Model, op OrderBy) (*Model, error) {
	n, err := c.prepare(m)
	if err != nil {
		return nil, err
	}
	key, err := c.lambda(n, op.Key, n.ResultModel)
	if err != nil {
		return nil, err
	}
	if !op.Then {
		n.Orderings = nil
	}
	n.Orderings = append(n.Orderings, dbexpr.Ordering{Expr: key, Desc: op.Desc})
	return n, nil
}

func (c *Compiler) selectOp(m *Model, op Select) (*Model, error) {
	n, err := c.prepare(m)
	if err != nil {
		return nil, err
	}
	shape, err := c.parser(n).selectShape(op.Selector, n.ResultModel)
	if err != nil {
		return nil, err
	}
	n.ResultModel = shape
	n.state = stateGeneral
	return n, nil
}

func errCollectionLimit(op string) error {
	return veloq.NewTranslationError("", op+" after including a collection", "apply "+op+" before Include")
}

func (c *Compiler) skip(m *Model, count int) (*Model, error) {
	if count < 0 {
		return nil, veloq.Unsupportedf("negative Skip %d", count)
	}
	if hasCollection(m.ResultModel) {
		return nil, errCollectionLimit("Skip")
	}
	if count == 0 && m.Skip == nil {
		return m.Clone(true), nil
	}
	var (
		n   *Model
		err error
	)
	if m.state == stateDistinct || m.state == stateGrouped || m.Take != nil {
		n, err = c.wrap(m)
	} else {
		n = m.Clone(true)
	}
	if err != nil {
		return nil, err
	}
	if n.Skip != nil {
		count += *n.Skip
	}
	orderByKey(n)
	n.Skip = dbexpr.Int(count)
	n.state = stateLimited
	return n, nil
}

func (c *Compiler) take(m *Model, count int) (*Model, error) {
	if count < 0 {
		return nil, veloq.Unsupportedf("negative Take %d", count)
	}
	if hasCollection(m.ResultModel) {
		return nil, errCollectionLimit("Take")
	}
	var (
		n   *Model
		err error
	)
	if m.state == stateDistinct || m.state == stateGrouped {
		n, err = c.wrap(m)
	} else {
		n = m.Clone(true)
	}
	if err != nil {
		return nil, err
	}
	if n.Take == nil || count < *n.Take {
		n.Take = dbexpr.Int(count)
	}
	n.state = stateLimited
	return n, nil
}

// orderByKey orders an unordered entity shape by its primary key so that
// skipped rows and pages do not overlap.
func orderByKey(n *Model) {
	if len(n.Orderings) > 0 {
		return
	}
	if cm, ok := n.ResultModel.(*ComplexModel); ok {
		for _, k := range cm.Keys {
			n.Orderings = append(n.Orderings, dbexpr.Ordering{Expr: k})
		}
	}
}

// paging selects a page.
func (c *Compiler) paging(m *Model, op Paging) (*Model, error) {
	if op.Page < 1 || op.Size < 1 {
		return nil, veloq.NewTranslationError("", "Paging", "page and size must be positive")
	}
	if hasCollection(m.ResultModel) {
		return nil, errCollectionLimit("Paging")
	}
	n, err := c.prepare(m)
	if err != nil {
		return nil, err
	}
	orderByKey(n)
	n.Skip = dbexpr.Int((op.Page - 1) * op.Size)
	n.Take = dbexpr.Int(op.Size)
	n.state = stateLimited
	return n, nil
}

func (c *Compiler) distinct(m *Model) (*Model, error) {
	var (
		n   *Model
		err error
	)
	if m.composable() {
		n = m.Clone(false)
	} else if n, err = c.wrap(m); err != nil {
		return nil, err
	}
	n.Orderings = nil
	n.Distinct = true
	n.state = stateDistinct
	return n, nil
}

func (c *Compiler) aggregate(m *Model, op Aggregate) (*Model, error) {
	if hasCollection(m.ResultModel) {
		return nil, veloq.NewTranslationError("", "aggregate over an included collection", "")
	}
	n, err := c.prepare(m)
	if err != nil {
		return nil, err
	}
	n.Orderings = nil
	var args []dbexpr.Expr
	switch {
	case op.Selector != nil:
		arg, err := c.lambda(n, op.Selector, n.ResultModel)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	case op.Func != expr.AggCount && op.Func != expr.AggLongCount:
		arg, err := n.ResultModel.Expr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	t := aggregateType(op.Func, args)
	n.ResultModel = NewPrimitiveModel(dbexpr.NewAggregate(op.Func, args, t), t, "C")
	n.state = stateAggregate
	return n, nil
}

func aggregateType(fn string, args []dbexpr.Expr) reflect.Type {
	switch {
	case fn == expr.AggCount:
		return expr.TypeInt
	case fn == expr.AggLongCount:
		return expr.TypeInt64
	case len(args) == 0:
		return expr.TypeAny
	case fn == expr.AggAverage:
		return expr.AverageType(args[0].Type())
	}
	return args[0].Type()
}

func (c *Compiler) groupBy(m *Model, op GroupBy) (*Model, error) {
	if hasCollection(m.ResultModel) {
		return nil, veloq.NewTranslationError("", "grouping an included collection", "")
	}
	n, err := c.prepare(m)
	if err != nil {
		return nil, err
	}
	n.Orderings = nil
	p := c.parser(n)
	key, err := p.selectShape(op.Keys, n.ResultModel)
	if err != nil {
		return nil, err
	}
	segs, err := primitives(key, nil)
	if err != nil {
		return nil, err
	}
	n.GroupSegments = append(n.GroupSegments, segs...)
	elem := n.ResultModel
	if op.Having != nil {
		cond, err := c.groupLambda(n, op.Having, key, elem)
		if err != nil {
			return nil, err
		}
		n.AppendHavingCondition(cond)
	}
	for _, o := range op.Orderings {
		e, err := c.groupLambda(n, o.Key, key, elem)
		if err != nil {
			return nil, err
		}
		n.Orderings = append(n.Orderings, dbexpr.Ordering{Expr: e, Desc: o.Desc})
	}
	n.ResultModel = key
	if op.Selector != nil {
		bp, err := p.bind(op.Selector, groupShapes(op.Selector, key, elem)...)
		if err != nil {
			return nil, err
		}
		if n.ResultModel, err = bp.shape(op.Selector.Body); err != nil {
			return nil, err
		}
	}
	n.state = stateGrouped
	return n, nil
}

// groupLambda parses a lambda over a group. It takes the key and
// optionally the element.
func (c *Compiler) groupLambda(m *Model, l *expr.Lambda, key, elem ObjectModel) (dbexpr.Expr, error) {
	if l == nil {
		return nil, veloq.Unsupportedf("nil lambda")
	}
	return c.lambda(m, l, groupShapes(l, key, elem)...)
}

func groupShapes(l *expr.Lambda, key, elem ObjectModel) []ObjectModel {
	if len(l.Params) == 1 {
		return []ObjectModel{key}
	}
	return []ObjectModel{key, elem}
}
