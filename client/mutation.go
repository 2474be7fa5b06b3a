package client

import (
	"context"
	"fmt"
	"reflect"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/privacy"
	"github.com/syssam/veloq/query"
	"github.com/syssam/veloq/schema"
	"github.com/syssam/veloq/sharding"
)

// mutation is the mutation handed to the policy. Updates and deletes
// accept filters, which narrow the rows they write.
type mutation struct {
	entity *schema.Entity
	op     veloq.Op
	value  reflect.Value
	preds  []expr.Predicate
}

func (m *mutation) Entity() string { return m.entity.Name }
func (m *mutation) Op() veloq.Op   { return m.op }

func (m *mutation) Field(name string) (any, bool) {
	if !m.value.IsValid() {
		return nil, false
	}
	p, ok := m.entity.Property(name)
	if !ok {
		return nil, false
	}
	return p.Value(m.value), true
}

func (m *mutation) Where(p expr.Predicate) { m.preds = append(m.preds, p) }

type filterMutation struct{ *mutation }

func (m filterMutation) Filter() privacy.Filter { return m.mutation }

var _ privacy.Filterable = filterMutation{}

// mutate resolves the entity of t and evaluates the policy. It returns
// the condition of the policy filters.
func (db *DB) mutate(ctx context.Context, t reflect.Type, op veloq.Op, v reflect.Value) (*schema.Entity, dbexpr.Expr, error) {
	e, err := db.entity(t)
	if err != nil {
		return nil, nil, err
	}
	if db.policy == nil {
		return e, nil, nil
	}
	m := &mutation{entity: e, op: op, value: v}
	var pm veloq.Mutation = m
	if !op.Is(veloq.OpInsert) {
		pm = filterMutation{m}
	}
	if err := denied(db.policy.EvalMutation(ctx, pm)); err != nil {
		return nil, nil, veloq.NewPrivacyError(e.Name, op.String(), err)
	}
	cond, err := db.compiler().FilterCondition(e, m.preds...)
	if err != nil {
		return nil, nil, veloq.NewMutationError(e.Name, op, err)
	}
	return e, cond, nil
}

// entityValue returns the addressable entity behind the pointer v.
func entityValue(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("client: expected a non-nil pointer to an entity, got %T", v)
	}
	return rv.Elem(), nil
}

// routeEntity returns the routes of an entity statement. Unless all is
// set, the statement must resolve to a single route. Unsharded tables
// route to the default data source.
func (db *DB) routeEntity(e *schema.Entity, v reflect.Value, all bool) ([]*sharding.RouteTable, error) {
	if db.router == nil || !db.router.Sharded(e.Table) {
		return []*sharding.RouteTable{{}}, nil
	}
	rule, _ := db.router.Rule(e.Table)
	var keys []any
	if k := keyValue(e, rule.Column, v); k != nil {
		keys = append(keys, k)
	}
	res, err := db.router.Route(e.Table, keys...)
	if err != nil {
		return nil, err
	}
	if !all && len(res.Tables) != 1 {
		return nil, fmt.Errorf("client: %s routes to %d tables: %w", e.Name, len(res.Tables), sharding.ErrMissingShardingKey)
	}
	return res.Tables, nil
}

// exec executes the statement on every route and returns the affected
// row count.
func (db *DB) exec(ctx context.Context, e *schema.Entity, routes []*sharding.RouteTable, stmt dbexpr.Expr) (int64, error) {
	counts, err := sharding.FanOut(ctx, routes, func(ctx context.Context, rt *sharding.RouteTable) ([]int64, error) {
		src, s, err := db.target(e, rt, stmt)
		if err != nil {
			return nil, err
		}
		cmd, err := sql.Translate(src.dialect, db.opts, s)
		if err != nil {
			return nil, err
		}
		res, err := sql.ExecCommand(ctx, src.ex, cmd)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		db.logger.DebugContext(ctx, "exec", "sql", cmd.Text, "args", len(cmd.Params), "datasource", src.name, "rows", n)
		return []int64{n}, nil
	}, sharding.WithLimit(db.fanOut), sharding.WithFanOutLogger(db.logger))
	var total int64
	for _, n := range counts {
		total += n
	}
	if err == nil {
		db.invalidate(ctx, e.Table)
	}
	return total, err
}

// target returns the data source of a route and the statement rewritten
// for its table.
func (db *DB) target(e *schema.Entity, rt *sharding.RouteTable, stmt dbexpr.Expr) (*source, dbexpr.Expr, error) {
	src, err := db.source(rt.DataSource)
	if err != nil {
		return nil, nil, err
	}
	if rt.Name != "" {
		stmt = sharding.Rewrite(stmt, e.Table, rt)
	}
	return src, stmt, nil
}

// Insert inserts the entity v points to. Identity and sequence members
// are read back into it.
func (db *DB) Insert(ctx context.Context, v any) error {
	rv, err := entityValue(v)
	if err != nil {
		return err
	}
	e, _, err := db.mutate(ctx, rv.Type(), veloq.OpInsert, rv)
	if err != nil {
		return err
	}
	if err := db.insert(ctx, e, rv); err != nil {
		return veloq.NewMutationError(e.Name, veloq.OpInsert, err)
	}
	db.invalidate(ctx, e.Table)
	return nil
}

func (db *DB) insert(ctx context.Context, e *schema.Entity, v reflect.Value) error {
	plan, err := query.BuildInsert(e, v)
	if err != nil {
		return err
	}
	routes, err := db.routeEntity(e, v, false)
	if err != nil {
		return err
	}
	src, stmt, err := db.target(e, routes[0], plan.Insert)
	if err != nil {
		return err
	}
	cmd, err := sql.Translate(src.dialect, db.opts, stmt)
	if err != nil {
		return err
	}
	var returned []any
	switch {
	case len(cmd.Returns) == 0:
		_, err = sql.ExecCommand(ctx, src.ex, cmd)
	case cmd.ReturnStyle == sql.ReturnOutput || cmd.ReturnStyle == sql.ReturnReturning:
		var rows [][]any
		if rows, err = db.rows(ctx, src, cmd); err == nil {
			if len(rows) != 1 {
				return fmt.Errorf("client: insert returned %d rows", len(rows))
			}
			returned = rows[0]
		}
	case cmd.ReturnStyle == sql.ReturnLastInsertID:
		var res sql.Result
		if res, err = sql.ExecCommand(ctx, src.ex, cmd); err == nil {
			var id int64
			if id, err = res.LastInsertId(); err == nil {
				returned = []any{id}
			}
		}
	case cmd.ReturnStyle == sql.ReturnInto:
		if _, err = sql.ExecCommand(ctx, src.ex, cmd); err == nil {
			returned = cmd.Outputs()
		}
	default:
		_, err = sql.ExecCommand(ctx, src.ex, cmd)
	}
	if err != nil {
		return err
	}
	db.logger.DebugContext(ctx, "insert", "sql", cmd.Text, "args", len(cmd.Params), "datasource", src.name, "returns", len(returned))
	for i, val := range returned {
		if i >= len(plan.Returns) {
			break
		}
		if err := query.SetProperty(v, plan.Returns[i], val); err != nil {
			return err
		}
	}
	return nil
}

// InsertRange inserts the entities of the slice values in batches. Every
// statement is planned before the first runs. The batches of one data
// source run in an implicit transaction, so a failing batch leaves none of
// the tables of that data source written. The policy is evaluated for
// every entity. Generated members are not read back.
func (db *DB) InsertRange(ctx context.Context, values any) (int64, error) {
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice {
		return 0, fmt.Errorf("client: expected a slice of entities, got %T", values)
	}
	if rv.Len() == 0 {
		return 0, nil
	}
	e, err := db.entity(rv.Type().Elem())
	if err != nil {
		return 0, err
	}
	type bucket struct {
		route  *sharding.RouteTable
		values []reflect.Value
	}
	var buckets []*bucket
	byRoute := make(map[string]*bucket)
	for i := range rv.Len() {
		v := reflect.Indirect(rv.Index(i))
		if _, _, err := db.mutate(ctx, e.Type, veloq.OpInsert, v); err != nil {
			return 0, err
		}
		routes, err := db.routeEntity(e, v, false)
		if err != nil {
			return 0, veloq.NewMutationError(e.Name, veloq.OpInsert, err)
		}
		k := routes[0].String()
		b, ok := byRoute[k]
		if !ok {
			b = &bucket{route: routes[0]}
			byRoute[k] = b
			buckets = append(buckets, b)
		}
		b.values = append(b.values, v)
	}
	type batch struct {
		src  *source
		cmds []*sql.Command
	}
	var batches []*batch
	bySource := make(map[dialect.ExecQuerier]*batch)
	for _, b := range buckets {
		table, cols, rows, err := query.BuildInsertRange(e, b.values)
		if err != nil {
			return 0, veloq.NewMutationError(e.Name, veloq.OpInsert, err)
		}
		src, err := db.source(b.route.DataSource)
		if err != nil {
			return 0, err
		}
		if b.route.Name != "" {
			table = &dbexpr.Table{Name: b.route.Name, Schema: b.route.Schema}
		}
		cmds, err := sql.PlanInsert(src.dialect, db.opts, table, cols, rows)
		if err != nil {
			return 0, veloq.NewMutationError(e.Name, veloq.OpInsert, err)
		}
		s, ok := bySource[src.ex]
		if !ok {
			s = &batch{src: src}
			bySource[src.ex] = s
			batches = append(batches, s)
		}
		s.cmds = append(s.cmds, cmds...)
	}
	var total int64
	for _, s := range batches {
		n, err := sql.ExecBatches(ctx, s.src.ex, s.cmds, db.logger)
		if err != nil {
			return total, err
		}
		total += n
	}
	db.invalidate(ctx, e.Table)
	return total, nil
}

// Update writes every member of the entity v points to by primary key and
// returns the affected row count. A row version guards the update and is
// advanced on success; a guarded update affecting no row is a
// ConcurrencyError.
func (db *DB) Update(ctx context.Context, v any) (int64, error) {
	rv, err := entityValue(v)
	if err != nil {
		return 0, err
	}
	e, cond, err := db.mutate(ctx, rv.Type(), veloq.OpUpdate, rv)
	if err != nil {
		return 0, err
	}
	plan, err := query.BuildUpdate(e, rv)
	if err != nil {
		return 0, veloq.NewMutationError(e.Name, veloq.OpUpdate, err)
	}
	plan.Update.Condition = dbexpr.And(plan.Update.Condition, cond)
	routes, err := db.routeEntity(e, rv, true)
	if err != nil {
		return 0, veloq.NewMutationError(e.Name, veloq.OpUpdate, err)
	}
	n, err := db.exec(ctx, e, routes, plan.Update)
	if err != nil {
		return 0, veloq.NewMutationError(e.Name, veloq.OpUpdate, err)
	}
	if n == 0 && e.RowVersion != nil {
		return 0, veloq.NewConcurrencyError(e.Name, veloq.OpUpdate)
	}
	if plan.RowVersion != nil && plan.NewVersion != nil {
		if err := query.SetProperty(rv, plan.RowVersion, plan.NewVersion); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Delete deletes the entity v points to by primary key, guarded by its
// row version. A guarded delete affecting no row is a ConcurrencyError.
func (db *DB) Delete(ctx context.Context, v any) (int64, error) {
	rv, err := entityValue(v)
	if err != nil {
		return 0, err
	}
	e, cond, err := db.mutate(ctx, rv.Type(), veloq.OpDelete, rv)
	if err != nil {
		return 0, err
	}
	del, err := query.BuildDelete(e, rv)
	if err != nil {
		return 0, veloq.NewMutationError(e.Name, veloq.OpDelete, err)
	}
	del.Condition = dbexpr.And(del.Condition, cond)
	routes, err := db.routeEntity(e, rv, true)
	if err != nil {
		return 0, veloq.NewMutationError(e.Name, veloq.OpDelete, err)
	}
	n, err := db.exec(ctx, e, routes, del)
	if err != nil {
		return 0, veloq.NewMutationError(e.Name, veloq.OpDelete, err)
	}
	if n == 0 && e.RowVersion != nil {
		return 0, veloq.NewConcurrencyError(e.Name, veloq.OpDelete)
	}
	return n, nil
}

// UpdateWhere assigns the members constructed by set to the rows of T
// matching where and returns the affected row count.
//
//	n, err := client.UpdateWhere[User](ctx, db,
//	    func(u *expr.Parameter) expr.Expr { return expr.LT(u.Field("Age"), 18) },
//	    func(u *expr.Parameter) expr.Expr {
//	        return expr.NewStruct[User](expr.Bind("Minor", true))
//	    })
func UpdateWhere[T any](ctx context.Context, db *DB, where expr.Predicate, set func(*expr.Parameter) expr.Expr) (int64, error) {
	t := reflect.TypeFor[T]()
	e, cond, err := db.mutate(ctx, t, veloq.OpUpdate, reflect.Value{})
	if err != nil {
		return 0, err
	}
	u, err := db.compiler().BuildUpdateWhere(e, optLambda(e.Type, where), expr.Lambda1(e.Type, set))
	if err != nil {
		return 0, veloq.NewMutationError(e.Name, veloq.OpUpdate, err)
	}
	u.Condition = dbexpr.And(u.Condition, cond)
	return db.execWhere(ctx, e, veloq.OpUpdate, u, u.Condition)
}

// DeleteWhere deletes the rows of T matching where and returns the
// affected row count. A nil where deletes every row the filters allow.
func DeleteWhere[T any](ctx context.Context, db *DB, where expr.Predicate) (int64, error) {
	t := reflect.TypeFor[T]()
	e, cond, err := db.mutate(ctx, t, veloq.OpDelete, reflect.Value{})
	if err != nil {
		return 0, err
	}
	d, err := db.compiler().BuildDeleteWhere(e, optLambda(e.Type, where))
	if err != nil {
		return 0, veloq.NewMutationError(e.Name, veloq.OpDelete, err)
	}
	d.Condition = dbexpr.And(d.Condition, cond)
	return db.execWhere(ctx, e, veloq.OpDelete, d, d.Condition)
}

func (db *DB) execWhere(ctx context.Context, e *schema.Entity, op veloq.Op, stmt, cond dbexpr.Expr) (int64, error) {
	routes := []*sharding.RouteTable{{}}
	if db.router != nil && db.router.Sharded(e.Table) {
		res, err := db.router.RouteCondition(e.Table, "", cond)
		if err != nil {
			return 0, veloq.NewMutationError(e.Name, op, err)
		}
		routes = res.Tables
	}
	if len(routes) == 0 {
		return 0, nil
	}
	n, err := db.exec(ctx, e, routes, stmt)
	if err != nil {
		return n, veloq.NewMutationError(e.Name, op, err)
	}
	return n, nil
}

func optLambda(t reflect.Type, p expr.Predicate) *expr.Lambda {
	if p == nil {
		return nil
	}
	return expr.Lambda1(t, p)
}
