package query

import (
	"reflect"
	"slices"
	"strings"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
)

// Op is one operation of a query chain.
type Op interface {
	op()
}

type (
	// Root binds an entity type to its table. Table and Schema override
	// the mapping.
	Root struct {
		Type   reflect.Type
		Table  string
		Schema string
		Lock   dbexpr.LockType
	}

	// Where filters the rows.
	Where struct {
		Predicate *expr.Lambda
	}

	// OrderBy sorts the rows. Then appends to the current orderings,
	// otherwise they are replaced.
	OrderBy struct {
		Key  *expr.Lambda
		Desc bool
		Then bool
	}

	// Select projects the rows.
	Select struct {
		Selector *expr.Lambda
	}

	// Skip drops the first N rows.
	Skip struct{ N int }

	// Take keeps the first N rows.
	Take struct{ N int }

	// Paging selects the 1-based page of the given size.
	Paging struct {
		Page, Size int
	}

	// Distinct removes duplicate rows.
	Distinct struct{}

	// IgnoreAllFilters disables the global and context filters of the
	// operations that follow.
	IgnoreAllFilters struct{}

	// Include loads a navigation path, such as "Orders" or
	// "Customer.Country", with the rows.
	Include struct {
		Path string
	}

	// GroupBy groups the rows by Keys. Having, the orderings and the
	// selector take the key and the element as parameters; aggregates over
	// the element apply to the group.
	GroupBy struct {
		Keys      *expr.Lambda
		Having    *expr.Lambda
		Orderings []GroupOrdering
		Selector  *expr.Lambda
	}

	// Aggregate computes one aggregate over the rows. Selector is nil for
	// counts.
	Aggregate struct {
		Func     string
		Selector *expr.Lambda
	}

	// Join joins other queries. The selector takes one parameter per
	// source, in order.
	Join struct {
		Joins    []JoinSpec
		Selector *expr.Lambda
	}
)

// GroupOrdering is an ordering of a grouped query.
type GroupOrdering struct {
	Key  *expr.Lambda
	Desc bool
}

// JoinSpec is one joined source. Condition takes one parameter per source
// joined so far followed by one for the joined query.
type JoinSpec struct {
	Query     *Query
	Type      dbexpr.JoinType
	Condition *expr.Lambda
}

func (Root) op()             {}
func (Where) op()            {}
func (OrderBy) op()          {}
func (Select) op()           {}
func (Skip) op()             {}
func (Take) op()             {}
func (Paging) op()           {}
func (Distinct) op()         {}
func (IgnoreAllFilters) op() {}
func (Include) op()          {}
func (GroupBy) op()          {}
func (Aggregate) op()        {}
func (Join) op()             {}

// Query is an immutable chain of operations. Every method returns a new
// query sharing the chain of its receiver.
type Query struct {
	prev *Query
	op   Op
	elem reflect.Type
}

// RootOption configures the root of a query.
type RootOption func(*Root)

// WithTable reads the entity from another table.
func WithTable(name string) RootOption {
	return func(r *Root) { r.Table = name }
}

// WithSchema reads the entity from the table in another schema.
func WithSchema(name string) RootOption {
	return func(r *Root) { r.Schema = name }
}

// WithLock sets the lock hint of the root table.
func WithLock(l dbexpr.LockType) RootOption {
	return func(r *Root) { r.Lock = l }
}

// From starts a query over the entity type t.
func From(t reflect.Type, opts ...RootOption) *Query {
	t = expr.Deref(t)
	r := Root{Type: t}
	for _, opt := range opts {
		opt(&r)
	}
	return &Query{op: r, elem: t}
}

func (q *Query) then(op Op, elem reflect.Type) *Query {
	if elem == nil {
		elem = q.elem
	}
	return &Query{prev: q, op: op, elem: elem}
}

// ElemType returns the type of the rows of the query.
func (q *Query) ElemType() reflect.Type { return q.elem }

// Ops returns the operations of the chain, root first.
func (q *Query) Ops() []Op {
	var n int
	for c := q; c != nil; c = c.prev {
		n++
	}
	ops := make([]Op, n)
	for c := q; c != nil; c = c.prev {
		n--
		ops[n] = c.op
	}
	return ops
}

// Root returns the root operation of the chain.
func (q *Query) Root() Root {
	c := q
	for c.prev != nil {
		c = c.prev
	}
	r, _ := c.op.(Root)
	return r
}

// RootWhere returns q with the predicates applied to the root rows, ahead
// of every other operation. IgnoreAllFilters does not remove them.
func (q *Query) RootWhere(preds ...*expr.Lambda) *Query {
	if len(preds) == 0 {
		return q
	}
	var chain []*Query
	for c := q; c != nil; c = c.prev {
		chain = append(chain, c)
	}
	slices.Reverse(chain)
	out := chain[0]
	for _, p := range preds {
		out = out.then(Where{Predicate: p}, nil)
	}
	for _, c := range chain[1:] {
		out = &Query{prev: out, op: c.op, elem: c.elem}
	}
	return out
}

// Where filters the rows with the predicate.
func (q *Query) Where(pred *expr.Lambda) *Query { return q.then(Where{Predicate: pred}, nil) }

// OrderBy sorts by key, replacing previous orderings.
func (q *Query) OrderBy(key *expr.Lambda) *Query { return q.then(OrderBy{Key: key}, nil) }

// OrderByDesc sorts by key descending, replacing previous orderings.
func (q *Query) OrderByDesc(key *expr.Lambda) *Query {
	return q.then(OrderBy{Key: key, Desc: true}, nil)
}

// ThenBy adds an ordering.
func (q *Query) ThenBy(key *expr.Lambda) *Query { return q.then(OrderBy{Key: key, Then: true}, nil) }

// ThenByDesc adds a descending ordering.
func (q *Query) ThenByDesc(key *expr.Lambda) *Query {
	return q.then(OrderBy{Key: key, Desc: true, Then: true}, nil)
}

// Select projects the rows with the selector.
func (q *Query) Select(sel *expr.Lambda) *Query {
	return q.then(Select{Selector: sel}, sel.Type())
}

// Skip drops the first n rows.
func (q *Query) Skip(n int) *Query { return q.then(Skip{N: n}, nil) }

// Take keeps the first n rows.
func (q *Query) Take(n int) *Query { return q.then(Take{N: n}, nil) }

// Paging selects the 1-based page of the given size.
func (q *Query) Paging(page, size int) *Query {
	return q.then(Paging{Page: page, Size: size}, nil)
}

// Distinct removes duplicate rows.
func (q *Query) Distinct() *Query { return q.then(Distinct{}, nil) }

// IgnoreAllFilters disables the global and context filters from this
// point of the chain on.
func (q *Query) IgnoreAllFilters() *Query { return q.then(IgnoreAllFilters{}, nil) }

// Include loads the navigation path with the rows. The segments of path
// are separated by dots.
func (q *Query) Include(path string) *Query { return q.then(Include{Path: path}, nil) }

// GroupBy groups the rows. A nil selector selects the key.
func (q *Query) GroupBy(g GroupBy) *Query {
	elem := g.Keys.Type()
	if g.Selector != nil {
		elem = g.Selector.Type()
	}
	return q.then(g, elem)
}

// Aggregate computes fn, one of the expr aggregate names, over the rows.
func (q *Query) Aggregate(fn string, sel *expr.Lambda) *Query {
	elem := expr.TypeInt
	switch {
	case fn == expr.AggLongCount:
		elem = expr.TypeInt64
	case fn == expr.AggAverage && sel != nil:
		elem = expr.AverageType(sel.Type())
	case sel != nil:
		elem = sel.Type()
	}
	return q.then(Aggregate{Func: fn, Selector: sel}, elem)
}

// Join joins the queries of the specs and projects the sources with the
// selector.
func (q *Query) Join(sel *expr.Lambda, joins ...JoinSpec) *Query {
	return q.then(Join{Joins: joins, Selector: sel}, sel.Type())
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}
