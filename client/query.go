package client

import (
	"context"
	"fmt"
	"reflect"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/query"
)

// Query is a query whose rows are values of T. Every method returns a new
// query; the receiver is never modified.
type Query[T any] struct {
	db *DB
	q  *query.Query
}

// From starts a query over the entity type T.
//
//	adults, err := client.From[User](db).
//	    Where(func(u *expr.Parameter) expr.Expr { return expr.GTE(u.Field("Age"), 18) }).
//	    OrderBy(func(u *expr.Parameter) expr.Expr { return u.Field("Name") }).
//	    All(ctx)
func From[T any](db *DB, opts ...query.RootOption) *Query[T] {
	return &Query[T]{db: db, q: query.From(reflect.TypeFor[T](), opts...)}
}

// Query returns the operation chain of q.
func (q *Query[T]) Query() *query.Query { return q.q }

func (q *Query[T]) with(n *query.Query) *Query[T] { return &Query[T]{db: q.db, q: n} }

func (q *Query[T]) lambda(fn func(*expr.Parameter) expr.Expr) *expr.Lambda {
	return expr.Lambda1(q.q.ElemType(), fn)
}

// Where filters the rows.
func (q *Query[T]) Where(p expr.Predicate) *Query[T] { return q.with(q.q.Where(q.lambda(p))) }

// OrderBy sorts by key, replacing previous orderings.
func (q *Query[T]) OrderBy(key func(*expr.Parameter) expr.Expr) *Query[T] {
	return q.with(q.q.OrderBy(q.lambda(key)))
}

// OrderByDesc sorts by key descending, replacing previous orderings.
func (q *Query[T]) OrderByDesc(key func(*expr.Parameter) expr.Expr) *Query[T] {
	return q.with(q.q.OrderByDesc(q.lambda(key)))
}

// ThenBy adds an ordering.
func (q *Query[T]) ThenBy(key func(*expr.Parameter) expr.Expr) *Query[T] {
	return q.with(q.q.ThenBy(q.lambda(key)))
}

// ThenByDesc adds a descending ordering.
func (q *Query[T]) ThenByDesc(key func(*expr.Parameter) expr.Expr) *Query[T] {
	return q.with(q.q.ThenByDesc(q.lambda(key)))
}

// Skip drops the first n rows.
func (q *Query[T]) Skip(n int) *Query[T] { return q.with(q.q.Skip(n)) }

// Take keeps the first n rows.
func (q *Query[T]) Take(n int) *Query[T] { return q.with(q.q.Take(n)) }

// Paging selects the 1-based page of the given size.
func (q *Query[T]) Paging(page, size int) *Query[T] { return q.with(q.q.Paging(page, size)) }

// Distinct removes duplicate rows.
func (q *Query[T]) Distinct() *Query[T] { return q.with(q.q.Distinct()) }

// IgnoreAllFilters disables the global and context filters from this
// point on. Policy filters still apply.
func (q *Query[T]) IgnoreAllFilters() *Query[T] { return q.with(q.q.IgnoreAllFilters()) }

// Include loads the navigation path, such as "Orders.Items", with the rows.
func (q *Query[T]) Include(path string) *Query[T] { return q.with(q.q.Include(path)) }

// Select projects the rows of q into values of R.
func Select[T, R any](q *Query[T], sel func(*expr.Parameter) expr.Expr) *Query[R] {
	return &Query[R]{db: q.db, q: q.q.Select(q.lambda(sel))}
}

// Group describes a grouping. Having, the orderings and the selector take
// the group key and the row; aggregates over the row apply to the group.
type Group struct {
	Key     func(row *expr.Parameter) expr.Expr
	Having  func(key, row *expr.Parameter) expr.Expr
	OrderBy []GroupOrder
	// Select projects a group. Nil selects the key.
	Select func(key, row *expr.Parameter) expr.Expr
}

// GroupOrder is an ordering of a grouped query.
type GroupOrder struct {
	Key  func(key, row *expr.Parameter) expr.Expr
	Desc bool
}

// GroupBy groups the rows of q into values of R.
func GroupBy[T, R any](q *Query[T], g Group) *Query[R] {
	keys := q.lambda(g.Key)
	pair := []reflect.Type{keys.Type(), q.q.ElemType()}
	two := func(fn func(key, row *expr.Parameter) expr.Expr) *expr.Lambda {
		if fn == nil {
			return nil
		}
		return expr.NewLambda(pair, func(ps ...*expr.Parameter) expr.Expr { return fn(ps[0], ps[1]) })
	}
	op := query.GroupBy{Keys: keys, Having: two(g.Having), Selector: two(g.Select)}
	for _, o := range g.OrderBy {
		op.Orderings = append(op.Orderings, query.GroupOrdering{Key: two(o.Key), Desc: o.Desc})
	}
	return &Query[R]{db: q.db, q: q.q.GroupBy(op)}
}

// JoinSource is a query joined by Join.
type JoinSource struct {
	q    *query.Query
	typ  dbexpr.JoinType
	cond func(ps ...*expr.Parameter) expr.Expr
}

func joinWith[T any](q *Query[T], typ dbexpr.JoinType, on func(ps ...*expr.Parameter) expr.Expr) JoinSource {
	return JoinSource{q: q.q, typ: typ, cond: on}
}

// InnerJoin joins q. The condition takes one parameter per source joined
// so far, the root first, followed by one for q.
func InnerJoin[T any](q *Query[T], on func(ps ...*expr.Parameter) expr.Expr) JoinSource {
	return joinWith(q, dbexpr.InnerJoin, on)
}

// LeftJoin joins q, keeping the rows without a match.
func LeftJoin[T any](q *Query[T], on func(ps ...*expr.Parameter) expr.Expr) JoinSource {
	return joinWith(q, dbexpr.LeftJoin, on)
}

// RightJoin joins q, keeping the rows of q without a match.
func RightJoin[T any](q *Query[T], on func(ps ...*expr.Parameter) expr.Expr) JoinSource {
	return joinWith(q, dbexpr.RightJoin, on)
}

// FullJoin joins q, keeping the rows of both sides without a match.
func FullJoin[T any](q *Query[T], on func(ps ...*expr.Parameter) expr.Expr) JoinSource {
	return joinWith(q, dbexpr.FullJoin, on)
}

// Join joins the sources to q and projects every joined row into a value
// of R. The selector takes one parameter per source, q first.
func Join[T, R any](q *Query[T], sel func(ps ...*expr.Parameter) expr.Expr, joins ...JoinSource) *Query[R] {
	types := []reflect.Type{q.q.ElemType()}
	specs := make([]query.JoinSpec, len(joins))
	for i, j := range joins {
		types = append(types, j.q.ElemType())
		specs[i] = query.JoinSpec{Query: j.q, Type: j.typ, Condition: expr.NewLambda(types, j.cond)}
	}
	return &Query[R]{db: q.db, q: q.q.Join(expr.NewLambda(types, sel), specs...)}
}

// All returns the rows.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	values, err := q.db.run(ctx, q.q, "select")
	if err != nil {
		return nil, err
	}
	out := make([]T, len(values))
	for i, v := range values {
		if out[i], err = as[T](v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// First returns the first row, or a NotFoundError.
func (q *Query[T]) First(ctx context.Context) (T, error) {
	var zero T
	rows, err := q.Take(1).All(ctx)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, veloq.NewNotFoundError(q.label())
	}
	return rows[0], nil
}

// Only returns the only row. No row is a NotFoundError and more than one
// a NotSingularError.
func (q *Query[T]) Only(ctx context.Context) (T, error) {
	var zero T
	rows, err := q.Take(2).All(ctx)
	if err != nil {
		return zero, err
	}
	switch len(rows) {
	case 0:
		return zero, veloq.NewNotFoundError(q.label())
	case 1:
		return rows[0], nil
	default:
		return zero, veloq.NewNotSingularError(q.label(), len(rows))
	}
}

// Exist reports whether the query has rows.
func (q *Query[T]) Exist(ctx context.Context) (bool, error) {
	rows, err := q.Take(1).All(ctx)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Count returns the number of rows.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	return scalar[int](ctx, q.db, q.q.Aggregate(expr.AggCount, nil), "count")
}

// LongCount returns the number of rows as an int64.
func (q *Query[T]) LongCount(ctx context.Context) (int64, error) {
	return scalar[int64](ctx, q.db, q.q.Aggregate(expr.AggLongCount, nil), "count")
}

// Sum returns the sum of sel over the rows. The sum of no rows is zero.
func Sum[R, T any](ctx context.Context, q *Query[T], sel func(*expr.Parameter) expr.Expr) (R, error) {
	return scalar[R](ctx, q.db, q.q.Aggregate(expr.AggSum, q.lambda(sel)), "sum")
}

// Max returns the maximum of sel over the rows.
func Max[R, T any](ctx context.Context, q *Query[T], sel func(*expr.Parameter) expr.Expr) (R, error) {
	return scalar[R](ctx, q.db, q.q.Aggregate(expr.AggMax, q.lambda(sel)), "max")
}

// Min returns the minimum of sel over the rows.
func Min[R, T any](ctx context.Context, q *Query[T], sel func(*expr.Parameter) expr.Expr) (R, error) {
	return scalar[R](ctx, q.db, q.q.Aggregate(expr.AggMin, q.lambda(sel)), "min")
}

// Average returns the average of sel over the rows.
func Average[R, T any](ctx context.Context, q *Query[T], sel func(*expr.Parameter) expr.Expr) (R, error) {
	return scalar[R](ctx, q.db, q.q.Aggregate(expr.AggAverage, q.lambda(sel)), "average")
}

func scalar[R any](ctx context.Context, db *DB, q *query.Query, op string) (R, error) {
	var zero R
	values, err := db.run(ctx, q, op)
	if err != nil {
		return zero, err
	}
	if len(values) == 0 {
		return zero, nil
	}
	return as[R](values[0])
}

func (q *Query[T]) label() string {
	if e, err := q.db.entity(q.q.Root().Type); err == nil {
		return e.Name
	}
	return q.q.Root().Type.Name()
}

// as converts a materialized value to T, taking its address when T is a
// pointer to it.
func as[T any](v reflect.Value) (T, error) {
	var out T
	t := reflect.TypeFor[T]()
	switch {
	case v.Type().AssignableTo(t):
		reflect.ValueOf(&out).Elem().Set(v)
	case t.Kind() == reflect.Pointer && v.Type().AssignableTo(t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		reflect.ValueOf(&out).Elem().Set(p)
	case v.Type().ConvertibleTo(t):
		reflect.ValueOf(&out).Elem().Set(v.Convert(t))
	default:
		return out, fmt.Errorf("client: cannot read %s as %s", v.Type(), t)
	}
	return out, nil
}
