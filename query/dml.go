package query

import (
	"fmt"
	"reflect"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/schema"
)

// InsertPlan is the INSERT of one entity value.
type InsertPlan struct {
	Insert *dbexpr.Insert
	// Returns are the members read back, in the order of Insert.Returns.
	Returns []*schema.Property
}

// UpdatePlan is the UPDATE of one entity value.
type UpdatePlan struct {
	Update *dbexpr.Update
	// RowVersion is the concurrency token member, if any.
	RowVersion *schema.Property
	// NewVersion is the token value the row holds after the update. It is
	// nil when the database generates the token.
	NewVersion any
}

func tableOf(e *schema.Entity) *dbexpr.Table {
	return &dbexpr.Table{Name: e.Table, Schema: e.Schema}
}

func entityValue(e *schema.Entity, v reflect.Value) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("query: nil %s", e.Name)
		}
		v = v.Elem()
	}
	if v.Type() != e.Type {
		return reflect.Value{}, fmt.Errorf("query: %v is not %s", v.Type(), e.Name)
	}
	return v, nil
}

func valueParam(p *schema.Property, v any) *dbexpr.Parameter {
	return dbexpr.NewSizedParameter(v, p.Type, p.DbType, p.Size)
}

func isZeroValue(v any) bool {
	return v == nil || reflect.ValueOf(v).IsZero()
}

// BuildInsert returns the INSERT of the entity value v. The identity
// column is left to the database and a zero sequence member takes the
// next sequence value; both are read back. NULL members and empty
// strings of nullable members are left to the column default, but at
// least one column is always written.
func BuildInsert(e *schema.Entity, v reflect.Value) (*InsertPlan, error) {
	v, err := entityValue(e, v)
	if err != nil {
		return nil, err
	}
	plan := &InsertPlan{Insert: &dbexpr.Insert{Table: tableOf(e)}}
	var (
		row     []dbexpr.Expr
		ignored *schema.Property
	)
	returns := func(p *schema.Property) {
		plan.Insert.Returns = append(plan.Insert.Returns, p.Column)
		plan.Returns = append(plan.Returns, p)
	}
	for _, p := range e.Properties {
		if p.AutoIncrement {
			returns(p)
			continue
		}
		val := p.Value(v)
		if p.Sequence != "" && isZeroValue(val) {
			plan.Insert.Columns = append(plan.Insert.Columns, p.Column)
			row = append(row, dbexpr.NextValue(e.Schema, p.Sequence, p.Type))
			returns(p)
			continue
		}
		if val == nil {
			if !p.Nullable {
				return nil, veloq.NewNullConstraintError(e.Name, p.Name)
			}
			if ignored == nil {
				ignored = p
			}
			continue
		}
		if s, ok := val.(string); ok && s == "" && p.Nullable && !p.PrimaryKey {
			if ignored == nil {
				ignored = p
			}
			continue
		}
		plan.Insert.Columns = append(plan.Insert.Columns, p.Column)
		row = append(row, valueParam(p, val))
	}
	if len(plan.Insert.Columns) == 0 && ignored != nil {
		plan.Insert.Columns = append(plan.Insert.Columns, ignored.Column)
		row = append(row, valueParam(ignored, ignored.Value(v)))
	}
	if len(plan.Insert.Columns) > 0 {
		plan.Insert.Rows = [][]dbexpr.Expr{row}
	}
	return plan, nil
}

// BuildInsertRange returns the columns and rows of a multi-row INSERT of
// values. Every row writes every column except the identity column, so
// rows can share one statement.
func BuildInsertRange(e *schema.Entity, values []reflect.Value) (*dbexpr.Table, []string, [][]dbexpr.Expr, error) {
	var cols []string
	var props []*schema.Property
	for _, p := range e.Properties {
		if p.AutoIncrement {
			continue
		}
		cols = append(cols, p.Column)
		props = append(props, p)
	}
	rows := make([][]dbexpr.Expr, 0, len(values))
	for _, rv := range values {
		v, err := entityValue(e, rv)
		if err != nil {
			return nil, nil, nil, err
		}
		row := make([]dbexpr.Expr, 0, len(props))
		for _, p := range props {
			val := p.Value(v)
			switch {
			case p.Sequence != "" && isZeroValue(val):
				row = append(row, dbexpr.NextValue(e.Schema, p.Sequence, p.Type))
				continue
			case val == nil && !p.Nullable:
				return nil, nil, nil, veloq.NewNullConstraintError(e.Name, p.Name)
			}
			row = append(row, valueParam(p, val))
		}
		rows = append(rows, row)
	}
	return tableOf(e), cols, rows, nil
}

// keyCondition returns the conjunction of the primary key equalities of
// v.
func keyCondition(e *schema.Entity, v reflect.Value) (dbexpr.Expr, error) {
	if len(e.PrimaryKeys) == 0 {
		return nil, fmt.Errorf("query: %s: %w", e.Name, veloq.ErrNoPrimaryKey)
	}
	var cond dbexpr.Expr
	for _, p := range e.PrimaryKeys {
		val := p.Value(v)
		if val == nil {
			return nil, veloq.NewNullConstraintError(e.Name, p.Name)
		}
		cond = dbexpr.And(cond, dbexpr.Equal(dbexpr.NewColumnAccess("", p.Column, p.Type), valueParam(p, val)))
	}
	return cond, nil
}

// BuildUpdate returns the UPDATE of every writable member of v by primary
// key. A numeric row version is incremented and compared with the old
// value; a binary one is compared only.
func BuildUpdate(e *schema.Entity, v reflect.Value) (*UpdatePlan, error) {
	v, err := entityValue(e, v)
	if err != nil {
		return nil, err
	}
	cond, err := keyCondition(e, v)
	if err != nil {
		return nil, err
	}
	plan := &UpdatePlan{Update: &dbexpr.Update{Table: tableOf(e)}}
	for _, p := range e.Properties {
		if p.PrimaryKey || p.AutoIncrement || p.Sequence != "" || p.RowVersion {
			continue
		}
		val := p.Value(v)
		if val == nil && !p.Nullable {
			return nil, veloq.NewNullConstraintError(e.Name, p.Name)
		}
		plan.Update.Set = append(plan.Update.Set, dbexpr.ColumnValue{Column: p.Column, Value: valueParam(p, val)})
	}
	if rv := e.RowVersion; rv != nil {
		plan.RowVersion = rv
		old := rv.Value(v)
		col := dbexpr.NewColumnAccess("", rv.Column, rv.Type)
		if old == nil {
			cond = dbexpr.And(cond, dbexpr.IsNull(col))
		} else {
			cond = dbexpr.And(cond, dbexpr.Equal(col, valueParam(rv, old)))
		}
		if next, ok := nextVersion(old, rv.Type); ok {
			plan.NewVersion = next
			plan.Update.Set = append(plan.Update.Set, dbexpr.ColumnValue{Column: rv.Column, Value: valueParam(rv, next)})
		}
	}
	plan.Update.Condition = cond
	return plan, nil
}

// nextVersion returns old+1 for numeric versions. A NULL version starts
// at 1.
func nextVersion(old any, t reflect.Type) (any, bool) {
	base := expr.Deref(t)
	if !isNumber(base.Kind()) {
		return nil, false
	}
	next := reflect.New(base).Elem()
	if old != nil {
		ov := reflect.Indirect(reflect.ValueOf(old))
		next.Set(ov.Convert(base))
	}
	switch {
	case next.CanInt():
		next.SetInt(next.Int() + 1)
	case next.CanUint():
		next.SetUint(next.Uint() + 1)
	default:
		next.SetFloat(next.Float() + 1)
	}
	return next.Interface(), true
}

// BuildUpdateWhere returns the bulk UPDATE of the rows matching where.
// The setter is a lambda over the row constructing the entity type; its
// bindings are the assignments. Keys, identity and sequence members
// cannot be assigned.
func (c *Compiler) BuildUpdateWhere(e *schema.Entity, where, setter *expr.Lambda) (*dbexpr.Update, error) {
	if setter == nil {
		return nil, veloq.Unsupportedf("UPDATE without a setter")
	}
	n, ok := setter.Body.(*expr.New)
	if !ok {
		return nil, veloq.Unsupportedf("UPDATE setter %T, expected a struct constructor", setter.Body)
	}
	m, shape := c.dmlModel(e)
	p, err := c.parser(m).bind(setter, shape)
	if err != nil {
		return nil, err
	}
	u := &dbexpr.Update{Table: tableOf(e)}
	for _, b := range n.Bindings {
		prop, ok := e.Property(b.Name)
		switch {
		case !ok:
			return nil, veloq.NewMappingError(e.Name, b.Name, "not a mapped member")
		case prop.PrimaryKey:
			return nil, veloq.NewMappingError(e.Name, b.Name, "primary key members cannot be updated")
		case prop.AutoIncrement:
			return nil, veloq.NewMappingError(e.Name, b.Name, "identity members cannot be updated")
		case prop.Sequence != "":
			return nil, veloq.NewMappingError(e.Name, b.Name, "sequence members cannot be updated")
		}
		val, err := p.parse(b.Value)
		if err != nil {
			return nil, err
		}
		if dbexpr.IsNullConstant(val) && !prop.Nullable {
			return nil, veloq.NewNullConstraintError(e.Name, b.Name)
		}
		if pv, ok := val.(*dbexpr.Parameter); ok {
			pv.DbType, pv.Size = prop.DbType, prop.Size
		}
		u.Set = append(u.Set, dbexpr.ColumnValue{Column: prop.Column, Value: val})
	}
	if u.Condition, err = c.dmlCondition(m, shape, where); err != nil {
		return nil, err
	}
	return u, nil
}

// BuildDelete returns the DELETE of v by primary key, guarded by the row
// version when the entity has one.
func BuildDelete(e *schema.Entity, v reflect.Value) (*dbexpr.Delete, error) {
	v, err := entityValue(e, v)
	if err != nil {
		return nil, err
	}
	cond, err := keyCondition(e, v)
	if err != nil {
		return nil, err
	}
	if rv := e.RowVersion; rv != nil {
		col := dbexpr.NewColumnAccess("", rv.Column, rv.Type)
		if old := rv.Value(v); old == nil {
			cond = dbexpr.And(cond, dbexpr.IsNull(col))
		} else {
			cond = dbexpr.And(cond, dbexpr.Equal(col, valueParam(rv, old)))
		}
	}
	return &dbexpr.Delete{Table: tableOf(e), Condition: cond}, nil
}

// BuildDeleteWhere returns the bulk DELETE of the rows matching where.
func (c *Compiler) BuildDeleteWhere(e *schema.Entity, where *expr.Lambda) (*dbexpr.Delete, error) {
	m, shape := c.dmlModel(e)
	cond, err := c.dmlCondition(m, shape, where)
	if err != nil {
		return nil, err
	}
	return &dbexpr.Delete{Table: tableOf(e), Condition: cond}, nil
}

// dmlModel returns a model over the unaliased table of e: statements
// without a FROM clause reference bare columns.
func (c *Compiler) dmlModel(e *schema.Entity) (*Model, *ComplexModel) {
	m := NewModel(Options{}, nil, nil)
	shape := NewEntityModel(e, "", e.Type)
	m.ResultModel = shape
	return m, shape
}

// dmlCondition parses where. Global and context filters apply to bulk
// statements as to queries.
func (c *Compiler) dmlCondition(m *Model, shape *ComplexModel, where *expr.Lambda) (dbexpr.Expr, error) {
	var conds []dbexpr.Expr
	if c.ContextFilters != nil {
		fs, err := c.predicates(m, shape, c.ContextFilters(shape.Entity.Type))
		if err != nil {
			return nil, err
		}
		conds = append(conds, fs...)
	}
	if where != nil {
		cond, err := c.lambda(m, where, shape)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	fs, err := c.predicates(m, shape, shape.Entity.Filters)
	if err != nil {
		return nil, err
	}
	return dbexpr.And(append(conds, fs...)...), nil
}

// FilterCondition returns the conjunction of preds over the unaliased
// table of e. Global and context filters are not added.
func (c *Compiler) FilterCondition(e *schema.Entity, preds ...expr.Predicate) (dbexpr.Expr, error) {
	m, shape := c.dmlModel(e)
	conds, err := c.predicates(m, shape, preds)
	if err != nil {
		return nil, err
	}
	return dbexpr.And(conds...), nil
}
