package client

import (
	"bytes"
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/query"
)

// checkFanOut rejects the queries whose rows cannot be merged across
// routes: grouping, and duplicate removal below the outermost SELECT.
func checkFanOut(q *query.Query, comp *query.Compiled) error {
	for _, op := range q.Ops() {
		switch op.(type) {
		case query.GroupBy:
			return veloq.NewTranslationError("", "grouping across shards", "constrain the sharding key to one table")
		case query.Distinct:
			if !comp.Query.Distinct {
				return veloq.NewTranslationError("", "nested Distinct across shards", "apply Distinct last")
			}
		}
	}
	return nil
}

// mergeRows merges the rows read from each route as one statement would
// return them: ordered by the orderings of q, without duplicates when q
// is distinct.
func mergeRows(q *dbexpr.SqlQuery, rows [][]any) ([][]any, error) {
	if len(q.Orderings) > 0 {
		idx := make([]int, len(q.Orderings))
		for i, o := range q.Orderings {
			if idx[i] = projected(q, o.Expr); idx[i] < 0 {
				return nil, veloq.NewTranslationError("", "ordering by an unselected value across shards", "select the ordering value")
			}
		}
		var err error
		slices.SortStableFunc(rows, func(a, b []any) int {
			for i, o := range q.Orderings {
				c, cerr := compareRaw(a[idx[i]], b[idx[i]])
				if cerr != nil {
					err = cerr
					return 0
				}
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
		if err != nil {
			return nil, err
		}
	}
	if !q.Distinct {
		return rows, nil
	}
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for _, row := range rows {
		b, err := veloq.EncodeCacheValue(row)
		if err != nil {
			return nil, err
		}
		if !seen[string(b)] {
			seen[string(b)] = true
			out = append(out, row)
		}
	}
	return out, nil
}

// projected returns the index of the column of q that selects x, or -1.
func projected(q *dbexpr.SqlQuery, x dbexpr.Expr) int {
	for i, c := range q.Columns {
		if reflect.DeepEqual(c.Body, x) {
			return i
		}
	}
	return -1
}

// compareRaw orders two driver values. NULL orders first.
func compareRaw(a, b any) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}
	switch a := a.(type) {
	case int64:
		switch b := b.(type) {
		case int64:
			return cmp.Compare(a, b), nil
		case float64:
			return cmp.Compare(float64(a), b), nil
		}
	case float64:
		switch b := b.(type) {
		case float64:
			return cmp.Compare(a, b), nil
		case int64:
			return cmp.Compare(a, float64(b)), nil
		}
	case string:
		if b, ok := b.(string); ok {
			return cmp.Compare(a, b), nil
		}
	case []byte:
		if b, ok := b.([]byte); ok {
			return bytes.Compare(a, b), nil
		}
	case time.Time:
		if b, ok := b.(time.Time); ok {
			return a.Compare(b), nil
		}
	case bool:
		if b, ok := b.(bool); ok {
			switch {
			case a == b:
				return 0, nil
			case !a:
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("client: cannot order %T and %T values", a, b)
}
