// Package veloq holds the types shared by every layer of the query
// translation engine: operations, policies, the error taxonomy and the
// result cache contract.
//
// Queries are built with the client package, compiled by the query package
// into a database expression tree (package dbexpr) and rendered into SQL by
// a dialect generator (package dialect/sql and its per-dialect
// subpackages). Physical placement of logical tables is resolved by the
// sharding package.
package veloq

import (
	"context"
	"strings"
)

// Op represents the operation of a mutation or query.
type Op uint

// Operations.
const (
	OpQuery Op = 1 << iota
	OpInsert
	OpUpdate
	OpDelete
)

// Is reports whether o matches the given operation.
func (i Op) Is(o Op) bool { return i&o != 0 }

// String returns the names of the operations set in i.
func (i Op) String() string {
	var names []string
	for _, op := range []struct {
		op   Op
		name string
	}{
		{OpQuery, "query"},
		{OpInsert, "insert"},
		{OpUpdate, "update"},
		{OpDelete, "delete"},
	} {
		if i.Is(op.op) {
			names = append(names, op.name)
		}
	}
	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, "|")
}

// Query is the read side handed to policies before a query is compiled.
type Query interface {
	// Entity returns the name of the queried entity type.
	Entity() string
}

// Mutation is the write side handed to policies before a statement is compiled.
type Mutation interface {
	// Entity returns the name of the mutated entity type.
	Entity() string
	// Op returns the operation of the mutation.
	Op() Op
	// Field returns the value of a member of the written entity. Bulk
	// statements have no entity and report false.
	Field(name string) (any, bool)
}

// PolicyFunc adapts a pair of functions to Policy. A nil function allows.
type PolicyFunc struct {
	Query    func(context.Context, Query) error
	Mutation func(context.Context, Mutation) error
}

// EvalQuery implements Policy.
func (f PolicyFunc) EvalQuery(ctx context.Context, q Query) error {
	if f.Query == nil {
		return nil
	}
	return f.Query(ctx, q)
}

// EvalMutation implements Policy.
func (f PolicyFunc) EvalMutation(ctx context.Context, m Mutation) error {
	if f.Mutation == nil {
		return nil
	}
	return f.Mutation(ctx, m)
}

// Policy evaluates queries and mutations. A nil error allows the operation.
type Policy interface {
	EvalQuery(context.Context, Query) error
	EvalMutation(context.Context, Mutation) error
}
