package query

import (
	"slices"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
)

// JoinQueryResult is one joined source: the join and the shape of its
// rows. LeftKey and RightKey are the sides of the first equality of the
// join condition, or the primary keys when it has none.
type JoinQueryResult struct {
	JoinTable   *dbexpr.JoinTable
	ResultModel ObjectModel
	LeftKey     dbexpr.Expr
	RightKey    dbexpr.Expr
}

func (c *Compiler) join(m *Model, op Join) (*Model, error) {
	if len(op.Joins) == 0 {
		return nil, veloq.Unsupportedf("Join without sources")
	}
	if hasCollection(m.ResultModel) {
		return nil, veloq.NewTranslationError("", "Join after including a collection", "apply Join before Include")
	}
	n, err := c.prepare(m)
	if err != nil {
		return nil, err
	}
	sources := []ObjectModel{n.ResultModel}
	for _, spec := range op.Joins {
		r, err := c.joinQuery(n, spec, sources)
		if err != nil {
			return nil, err
		}
		n.FromTable = &dbexpr.FromTable{
			Table: n.FromTable.Table,
			Joins: append(slices.Clone(n.FromTable.Joins), r.JoinTable),
		}
		sources = nullChecked(sources, spec.Type, r)
	}
	shape, err := c.parser(n).selectShape(op.Selector, sources...)
	if err != nil {
		return nil, err
	}
	n.ResultModel = shape
	n.state = stateGeneral
	return n, nil
}

// nullChecked folds one join into the shapes of the sources: the optional
// side of an outer join materializes as zero values when its key is NULL.
func nullChecked(sources []ObjectModel, jt dbexpr.JoinType, r *JoinQueryResult) []ObjectModel {
	out := slices.Clone(sources)
	joined := r.ResultModel
	if jt == dbexpr.LeftJoin || jt == dbexpr.FullJoin {
		joined = joined.WithNullChecking(nullKey(joined, r.RightKey))
	}
	if jt == dbexpr.RightJoin || jt == dbexpr.FullJoin {
		for i, s := range out {
			out[i] = s.WithNullChecking(nullKey(s, r.LeftKey))
		}
	}
	return append(out, joined)
}

// nullKey returns the primary key of an entity shape, or the join key. An
// unmatched row of a full join may have a NULL join key of its own.
func nullKey(m ObjectModel, joinKey dbexpr.Expr) dbexpr.Expr {
	if cm, ok := m.(*ComplexModel); ok && len(cm.Keys) > 0 {
		return cm.Keys[0]
	}
	return joinKey
}

// joinQuery compiles the joined query in the scope of m. An unfiltered
// root joins its table directly, with its filters in the join condition
// when that keeps the meaning of the join; other queries join as derived
// tables.
func (c *Compiler) joinQuery(m *Model, spec JoinSpec, sources []ObjectModel) (*JoinQueryResult, error) {
	if spec.Condition == nil {
		return nil, veloq.Unsupportedf("Join without a condition")
	}
	jm, err := c.compile(spec.Query, m.ScopeTables, m.ScopeParameters)
	if err != nil {
		return nil, err
	}
	if hasCollection(jm.ResultModel) {
		return nil, veloq.NewTranslationError("", "joining a query with an included collection", "")
	}
	var filters []dbexpr.Expr
	if !jm.Options.IgnoreFilters {
		filters = append(slices.Clone(jm.ContextFilters), jm.GlobalFilters...)
	}
	direct := jm.state == stateRoot && jm.Condition == nil &&
		(spec.Type == dbexpr.InnerJoin || spec.Type == dbexpr.LeftJoin || len(filters) == 0)
	r := &JoinQueryResult{JoinTable: &dbexpr.JoinTable{JoinType: spec.Type}}
	if direct {
		r.JoinTable.Table = jm.FromTable.Table
		r.JoinTable.Joins = slices.Clone(jm.FromTable.Joins)
		r.ResultModel = jm.ResultModel
	} else {
		w, err := c.wrap(jm)
		if err != nil {
			return nil, err
		}
		r.JoinTable.Table = w.FromTable.Table
		r.ResultModel = w.ResultModel
		filters = nil
		jm = w
	}
	m.TouchedTables = append(m.TouchedTables, jm.TouchedTables...)
	shapes := append(slices.Clone(sources), r.ResultModel)
	cond, err := c.lambda(m, spec.Condition, shapes...)
	if err != nil {
		return nil, err
	}
	r.JoinTable.Condition = dbexpr.And(append([]dbexpr.Expr{cond}, filters...)...)
	r.LeftKey, r.RightKey = joinKeys(cond, r.JoinTable.Table.Alias)
	if r.RightKey == nil {
		r.RightKey = firstKey(r.ResultModel)
	}
	if r.LeftKey == nil && len(sources) > 0 {
		r.LeftKey = firstKey(sources[len(sources)-1])
	}
	return r, nil
}

// joinKeys returns the sides of the first equality of cond comparing a
// column of the joined table with something else.
func joinKeys(cond dbexpr.Expr, alias string) (left, right dbexpr.Expr) {
	b, ok := cond.(*dbexpr.Binary)
	if !ok {
		return nil, nil
	}
	switch b.Op {
	case dbexpr.OpAnd:
		if l, r := joinKeys(b.Left, alias); r != nil {
			return l, r
		}
		return joinKeys(b.Right, alias)
	case dbexpr.OpEqual:
		switch {
		case readsTable(b.Right, alias) && !readsTable(b.Left, alias):
			return b.Left, b.Right
		case readsTable(b.Left, alias) && !readsTable(b.Right, alias):
			return b.Right, b.Left
		}
	}
	return nil, nil
}

func readsTable(e dbexpr.Expr, alias string) bool {
	ca, ok := e.(*dbexpr.ColumnAccess)
	return ok && ca.Table == alias
}

// firstKey returns the first primary key of an entity shape or the first
// scalar of any other shape.
func firstKey(m ObjectModel) dbexpr.Expr {
	if cm, ok := m.(*ComplexModel); ok && len(cm.Keys) > 0 {
		return cm.Keys[0]
	}
	ps, err := primitives(m, nil)
	if err != nil || len(ps) == 0 {
		return nil
	}
	return ps[0]
}
