package sharding

import (
	"fmt"

	"github.com/syssam/veloq/dbexpr"
)

// KeysFromCondition extracts the values cond constrains column of alias
// to. An empty alias matches any table. ok is false when cond does not
// constrain the column, such as a disjunction with an unconstrained side.
//
// Equalities and IN lists of constants or parameters constrain the
// column; a conjunction intersects the constrained sides and a
// disjunction unions them.
func KeysFromCondition(cond dbexpr.Expr, alias, column string) (keys []any, ok bool) {
	if cond == nil {
		return nil, false
	}
	switch e := cond.(type) {
	case *dbexpr.Binary:
		switch e.Op {
		case dbexpr.OpEqual:
			if isKeyColumn(e.Left, alias, column) {
				return keyValue(e.Right)
			}
			if isKeyColumn(e.Right, alias, column) {
				return keyValue(e.Left)
			}
		case dbexpr.OpAnd:
			lk, lok := KeysFromCondition(e.Left, alias, column)
			rk, rok := KeysFromCondition(e.Right, alias, column)
			switch {
			case lok && rok:
				return intersect(lk, rk), true
			case lok:
				return lk, true
			case rok:
				return rk, true
			}
		case dbexpr.OpOr:
			lk, lok := KeysFromCondition(e.Left, alias, column)
			rk, rok := KeysFromCondition(e.Right, alias, column)
			if lok && rok {
				return union(lk, rk), true
			}
		}
	case *dbexpr.In:
		if e.Query != nil || !isKeyColumn(e.X, alias, column) {
			return nil, false
		}
		var out []any
		for _, v := range e.Values {
			k, ok := keyValue(v)
			if !ok {
				return nil, false
			}
			out = union(out, k)
		}
		return out, true
	}
	return nil, false
}

func isKeyColumn(e dbexpr.Expr, alias, column string) bool {
	if c, ok := e.(*dbexpr.Convert); ok {
		e = c.X
	}
	c, ok := e.(*dbexpr.ColumnAccess)
	if !ok || foldTable(c.Column) != foldTable(column) {
		return false
	}
	return alias == "" || c.Table == alias
}

func keyValue(e dbexpr.Expr) ([]any, bool) {
	switch v := e.(type) {
	case *dbexpr.Constant:
		if v.Value == nil {
			return nil, true
		}
		return []any{v.Value}, true
	case *dbexpr.Parameter:
		if v.Value == nil {
			return nil, true
		}
		return []any{v.Value}, true
	case *dbexpr.Convert:
		return keyValue(v.X)
	}
	return nil, false
}

func keyOf(v any) string { return fmt.Sprintf("%T:%v", v, v) }

func union(a, b []any) []any {
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[keyOf(v)] = true
	}
	for _, v := range b {
		if k := keyOf(v); !seen[k] {
			seen[k] = true
			a = append(a, v)
		}
	}
	return a
}

func intersect(a, b []any) []any {
	in := make(map[string]bool, len(b))
	for _, v := range b {
		in[keyOf(v)] = true
	}
	out := make([]any, 0, len(a))
	for _, v := range a {
		if in[keyOf(v)] {
			out = append(out, v)
		}
	}
	return out
}
