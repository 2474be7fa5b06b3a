package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/privacy"
	"github.com/syssam/veloq/query"
	"github.com/syssam/veloq/schema"
	"github.com/syssam/veloq/sharding"
)

// policyQuery is the query handed to the policy. Filters it receives
// apply to the root rows.
type policyQuery struct {
	entity string
	preds  []expr.Predicate
}

func (q *policyQuery) Entity() string         { return q.entity }
func (q *policyQuery) Filter() privacy.Filter { return q }
func (q *policyQuery) Where(p expr.Predicate) { q.preds = append(q.preds, p) }

var _ privacy.Filterable = (*policyQuery)(nil)

// denied returns the policy decision unless it allows the operation.
func denied(decision error) error {
	if decision == nil || errors.Is(decision, privacy.Allow) || errors.Is(decision, privacy.Skip) {
		return nil
	}
	return decision
}

// run executes q and returns its values. op names the operation in
// errors and cache keys.
func (db *DB) run(ctx context.Context, q *query.Query, op string) ([]reflect.Value, error) {
	root := q.Root()
	e, err := db.entity(root.Type)
	if err != nil {
		return nil, err
	}
	if db.policy != nil {
		pq := &policyQuery{entity: e.Name}
		if err := denied(db.policy.EvalQuery(ctx, pq)); err != nil {
			return nil, veloq.NewPrivacyError(e.Name, "query", err)
		}
		preds := make([]*expr.Lambda, len(pq.preds))
		for i, p := range pq.preds {
			preds[i] = expr.Lambda1(e.Type, p)
		}
		q = q.RootWhere(preds...)
	}
	comp, err := db.compiler().Compile(q)
	if err != nil {
		return nil, veloq.NewQueryError(e.Name, op, err)
	}
	table := cmp.Or(root.Table, e.Table)
	routes, err := db.routeQuery(table, comp)
	if err != nil {
		return nil, veloq.NewQueryError(e.Name, op, err)
	}
	if len(routes) > 1 {
		if limited(q) {
			return nil, veloq.NewQueryError(e.Name, op, veloq.NewTranslationError(db.dialect.Name, "paging across shards", "constrain the sharding key to one table"))
		}
		if err := checkFanOut(q, comp); err != nil {
			return nil, veloq.NewQueryError(e.Name, op, err)
		}
	}
	rows, err := sharding.FanOut(ctx, routes, func(ctx context.Context, rt *sharding.RouteTable) ([][]any, error) {
		stmt := comp.Query
		if rt.Name != "" {
			stmt = sharding.Rewrite(comp.Query, table, rt).(*dbexpr.SqlQuery)
		}
		src, err := db.source(rt.DataSource)
		if err != nil {
			return nil, err
		}
		cmd, err := sql.Translate(src.dialect, db.opts, stmt)
		if err != nil {
			return nil, err
		}
		return db.cachedRows(ctx, src, table, op, len(comp.Tables) == 1, cmd)
	}, sharding.WithLimit(db.fanOut), sharding.WithFanOutLogger(db.logger))
	if err != nil {
		return nil, veloq.NewQueryError(e.Name, op, err)
	}
	if len(routes) > 1 && !comp.Scalar {
		if rows, err = mergeRows(comp.Query, rows); err != nil {
			return nil, veloq.NewQueryError(e.Name, op, err)
		}
	}
	r := query.NewReader(comp.Activator)
	for _, row := range rows {
		if err := r.Read(row); err != nil {
			return nil, veloq.NewQueryError(e.Name, op, err)
		}
	}
	values := r.Values()
	if comp.Scalar && len(routes) != 1 {
		v, err := combine(q, values)
		if err != nil {
			return nil, veloq.NewQueryError(e.Name, op, err)
		}
		values = []reflect.Value{v}
	}
	return values, nil
}

// routeQuery returns the routes of a query over table. Unsharded tables
// have one route to the default data source.
func (db *DB) routeQuery(table string, comp *query.Compiled) ([]*sharding.RouteTable, error) {
	if db.router == nil || !db.router.Sharded(table) {
		return []*sharding.RouteTable{{}}, nil
	}
	res, err := db.router.RouteCondition(table, "", routingCondition(comp.Query))
	if err != nil {
		return nil, err
	}
	return res.Tables, nil
}

// routingCondition returns the condition of q and of the derived tables
// it reads from.
func routingCondition(q *dbexpr.SqlQuery) dbexpr.Expr {
	cond := q.Condition
	if q.Table != nil {
		if sub, ok := q.Table.Table.Body.(*dbexpr.Subquery); ok {
			cond = dbexpr.And(cond, routingCondition(sub.Query))
		}
	}
	return cond
}

func limited(q *query.Query) bool {
	for _, op := range q.Ops() {
		switch op.(type) {
		case query.Skip, query.Take, query.Paging:
			return true
		}
	}
	return false
}

// cachedRows reads the rows of cmd, through the cache when the query
// reads one table outside of a transaction.
func (db *DB) cachedRows(ctx context.Context, src *source, table, op string, single bool, cmd *sql.Command) ([][]any, error) {
	if db.cache == nil || !single || src.tx {
		return db.rows(ctx, src, cmd)
	}
	key := veloq.CacheKey{Table: table, Operation: op, Command: src.name + cmd.Text, Args: cmd.Args()}.String()
	if b, err := db.cache.Get(ctx, key); err != nil {
		db.logger.WarnContext(ctx, "cache read failed", "table", table, "error", err)
	} else if b != nil {
		var rows [][]any
		if err := veloq.DecodeCacheValue(b, &rows); err == nil {
			db.logger.DebugContext(ctx, "cache hit", "table", table, "rows", len(rows))
			return rows, nil
		}
	}
	rows, err := db.rows(ctx, src, cmd)
	if err != nil {
		return nil, err
	}
	b, err := veloq.EncodeCacheValue(rows)
	if err == nil {
		err = db.cache.Set(ctx, key, b, db.cacheTTL)
	}
	if err != nil {
		db.logger.WarnContext(ctx, "cache write failed", "table", table, "error", err)
	}
	return rows, nil
}

// invalidate drops the cached queries of table.
func (db *DB) invalidate(ctx context.Context, table string) {
	if db.cache == nil {
		return
	}
	if err := db.cache.DeletePrefix(ctx, veloq.TablePrefix(table)); err != nil {
		db.logger.WarnContext(ctx, "cache invalidation failed", "table", table, "error", err)
	}
}

// rows executes cmd and returns the driver values of its rows.
func (db *DB) rows(ctx context.Context, src *source, cmd *sql.Command) ([][]any, error) {
	start := time.Now()
	rows, err := sql.QueryCommand(ctx, src.ex, cmd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	db.logger.DebugContext(ctx, "query", "sql", cmd.Text, "args", len(cmd.Params), "datasource", src.name, "rows", len(out), "duration", time.Since(start))
	return out, nil
}

// combine merges the per-shard results of an aggregate.
func combine(q *query.Query, values []reflect.Value) (reflect.Value, error) {
	var fn string
	for _, op := range q.Ops() {
		if a, ok := op.(query.Aggregate); ok {
			fn = a.Func
		}
	}
	typ := q.ElemType()
	out := reflect.New(typ).Elem()
	if len(values) == 0 {
		return out, nil
	}
	switch fn {
	case expr.AggCount, expr.AggLongCount, expr.AggSum:
		for _, v := range values {
			if err := addTo(out, v); err != nil {
				return reflect.Value{}, err
			}
		}
		return out, nil
	case expr.AggMax, expr.AggMin:
		out.Set(values[0])
		for _, v := range values[1:] {
			c, err := compare(v, out)
			if err != nil {
				return reflect.Value{}, err
			}
			if (fn == expr.AggMax && c > 0) || (fn == expr.AggMin && c < 0) {
				out.Set(v)
			}
		}
		return out, nil
	}
	return reflect.Value{}, veloq.NewTranslationError("", fn+" across shards", "query one shard")
}

// addTo adds the numeric v to dst. NULL pointers add nothing.
func addTo(dst, v reflect.Value) error {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return addTo(dst.Elem(), v.Elem())
	}
	switch {
	case dst.CanInt():
		dst.SetInt(dst.Int() + v.Int())
	case dst.CanUint():
		dst.SetUint(dst.Uint() + v.Uint())
	case dst.CanFloat():
		dst.SetFloat(dst.Float() + v.Float())
	default:
		return fmt.Errorf("client: cannot add %s values", v.Type())
	}
	return nil
}

// compare orders two aggregate values. NULL pointers order first.
func compare(a, b reflect.Value) (int, error) {
	if a.Kind() == reflect.Pointer {
		switch {
		case a.IsNil() && b.IsNil():
			return 0, nil
		case a.IsNil():
			return -1, nil
		case b.IsNil():
			return 1, nil
		}
		return compare(a.Elem(), b.Elem())
	}
	if t, ok := a.Interface().(time.Time); ok {
		return t.Compare(b.Interface().(time.Time)), nil
	}
	switch {
	case a.CanInt():
		return cmp.Compare(a.Int(), b.Int()), nil
	case a.CanUint():
		return cmp.Compare(a.Uint(), b.Uint()), nil
	case a.CanFloat():
		return cmp.Compare(a.Float(), b.Float()), nil
	case a.Kind() == reflect.String:
		return cmp.Compare(a.String(), b.String()), nil
	}
	return 0, fmt.Errorf("client: cannot compare %s values", a.Type())
}

// keyValue returns the value of the sharding column of the entity value
// v, or nil.
func keyValue(e *schema.Entity, column string, v reflect.Value) any {
	for _, p := range e.Properties {
		if strings.EqualFold(p.Column, column) {
			return p.Value(v)
		}
	}
	return nil
}
