package query

import (
	"slices"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/schema"
)

func (c *Compiler) include(m *Model, op Include) (*Model, error) {
	n, err := c.prepare(m)
	if err != nil {
		return nil, err
	}
	owner, ok := n.ResultModel.(*ComplexModel)
	if !ok || owner.Entity == nil {
		return nil, veloq.Unsupportedf("Include %s on a projection", op.Path)
	}
	shape, err := c.includePath(n, owner, splitPath(op.Path))
	if err != nil {
		return nil, err
	}
	n.ResultModel = shape
	return n, nil
}

// includePath joins the navigations of path below owner, reusing those
// already included, and returns owner with the loaded members.
func (c *Compiler) includePath(m *Model, owner *ComplexModel, path []string) (*ComplexModel, error) {
	if owner.Entity == nil {
		return nil, veloq.Unsupportedf("Include %s on a projection", path[0])
	}
	nav, ok := owner.Entity.Navigation(path[0])
	if !ok {
		return nil, veloq.NewMappingError(owner.Entity.Name, path[0], "no such navigation")
	}
	var child *ComplexModel
	if owner.HasMember(nav.Name) {
		cur, err := owner.Member(nav.Name)
		if err != nil {
			return nil, err
		}
		switch cur := cur.(type) {
		case *ComplexModel:
			child = cur
		case *CollectionModel:
			child = cur.Elem
		}
	} else {
		var err error
		if child, err = c.joinNavigation(m, owner, nav); err != nil {
			return nil, err
		}
	}
	if len(path) > 1 {
		var err error
		if child, err = c.includePath(m, child, path[1:]); err != nil {
			return nil, err
		}
	}
	var member ObjectModel = child
	if nav.Collection {
		member = NewCollectionModel(nav.Type, child)
	}
	return owner.WithMember(nav.Name, member)
}

// joinNavigation adds the join of nav to m and returns the shape of the
// target rows. References to a nullable foreign key and collections join
// LEFT; a collection also orders by the owner key.
func (c *Compiler) joinNavigation(m *Model, owner *ComplexModel, nav *schema.Navigation) (*ComplexModel, error) {
	target, err := c.registry().Of(nav.Target)
	if err != nil {
		return nil, err
	}
	alias := m.GenerateUniqueTableAlias(DefaultAlias)
	table := &dbexpr.Table{Name: target.Table, Schema: target.Schema}
	var (
		child *ComplexModel
		cond  dbexpr.Expr
		jt    = dbexpr.InnerJoin
	)
	if nav.Collection {
		child = NewEntityModel(target, alias, nav.Type.Elem())
		fk, err := memberExpr(child, target, nav.ForeignKey)
		if err != nil {
			return nil, err
		}
		if len(owner.Keys) != 1 {
			return nil, veloq.NewMappingError(owner.Entity.Name, nav.Name, "a collection needs a single column primary key on its owner")
		}
		cond = dbexpr.Equal(fk, owner.Keys[0])
		jt = dbexpr.LeftJoin
		if len(child.Keys) > 0 {
			child = child.WithNullChecking(child.Keys[0]).(*ComplexModel)
		}
		for _, k := range owner.Keys {
			m.Orderings = append(m.Orderings, dbexpr.Ordering{Expr: k})
		}
	} else {
		child = NewEntityModel(target, alias, nav.Type)
		if len(child.Keys) != 1 {
			return nil, veloq.NewMappingError(target.Name, nav.Name, "a reference needs a single column primary key on its target")
		}
		fk, err := memberExpr(owner, owner.Entity, nav.ForeignKey)
		if err != nil {
			return nil, err
		}
		cond = dbexpr.Equal(child.Keys[0], fk)
		if p, _ := owner.Entity.Property(nav.ForeignKey); p.Nullable || owner.NullChecking != nil {
			jt = dbexpr.LeftJoin
			child = child.WithNullChecking(child.Keys[0]).(*ComplexModel)
		}
	}
	if !m.Options.IgnoreFilters {
		filters, err := c.predicates(m, child, target.Filters)
		if err != nil {
			return nil, err
		}
		cond = dbexpr.And(append([]dbexpr.Expr{cond}, filters...)...)
	}
	m.FromTable = &dbexpr.FromTable{
		Table: m.FromTable.Table,
		Joins: append(slices.Clone(m.FromTable.Joins), &dbexpr.JoinTable{
			JoinType:  jt,
			Table:     dbexpr.TableSegment{Body: table, Alias: alias},
			Condition: cond,
		}),
	}
	m.TouchedTables = append(m.TouchedTables, table)
	return child, nil
}

func memberExpr(m *ComplexModel, e *schema.Entity, name string) (dbexpr.Expr, error) {
	if _, ok := e.Property(name); !ok {
		return nil, veloq.NewMappingError(e.Name, name, "foreign key is not a mapped member")
	}
	mm, err := m.Member(name)
	if err != nil {
		return nil, err
	}
	return mm.Expr()
}
