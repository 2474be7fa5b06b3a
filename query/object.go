package query

import (
	"reflect"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/schema"
)

// ObjectModel is the shape of a result row or of a part of it. Shapes are
// values: operations that change a shape return a new one.
type ObjectModel interface {
	// Type returns the Go type the shape materializes as.
	Type() reflect.Type
	// Member returns the shape of the named member.
	Member(name string) (ObjectModel, error)
	// Expr returns the expression of a scalar shape.
	Expr() (dbexpr.Expr, error)
	// WithNullChecking returns the shape materializing as the zero value
	// when key is NULL, as for the optional side of an outer join. A shape
	// keeps the first key it is given.
	WithNullChecking(key dbexpr.Expr) ObjectModel
	// Derive projects the shape into q and returns the same shape reading
	// the columns of q through the table alias.
	Derive(q *dbexpr.SqlQuery, alias string) (ObjectModel, error)
	// Project adds the columns of the shape to q and returns the activator
	// building values from them.
	Project(q *dbexpr.SqlQuery) (Activator, error)
}

var (
	_ ObjectModel = (*PrimitiveModel)(nil)
	_ ObjectModel = (*ComplexModel)(nil)
	_ ObjectModel = (*CollectionModel)(nil)
)

// PrimitiveModel is a scalar value.
type PrimitiveModel struct {
	Body         dbexpr.Expr
	NullChecking dbexpr.Expr
	// Name is the preferred column alias of the value.
	Name string
	typ  reflect.Type
}

// NewPrimitiveModel returns the scalar shape of body.
func NewPrimitiveModel(body dbexpr.Expr, t reflect.Type, name string) *PrimitiveModel {
	if name == "" {
		name = "C"
	}
	return &PrimitiveModel{Body: body, Name: name, typ: t}
}

// Type implements ObjectModel.
func (m *PrimitiveModel) Type() reflect.Type { return m.typ }

// Member implements ObjectModel.
func (m *PrimitiveModel) Member(name string) (ObjectModel, error) {
	return nil, veloq.Unsupportedf("member %s of scalar %v", name, m.typ)
}

// Expr implements ObjectModel.
func (m *PrimitiveModel) Expr() (dbexpr.Expr, error) { return m.Body, nil }

// WithNullChecking implements ObjectModel.
func (m *PrimitiveModel) WithNullChecking(key dbexpr.Expr) ObjectModel {
	if m.NullChecking != nil || key == nil {
		return m
	}
	c := *m
	c.NullChecking = key
	return &c
}

// Derive implements ObjectModel.
func (m *PrimitiveModel) Derive(q *dbexpr.SqlQuery, alias string) (ObjectModel, error) {
	col, _ := addColumn(q, m.Body, m.Name)
	c := NewPrimitiveModel(dbexpr.NewColumnAccess(alias, col, m.Body.Type()), m.typ, col)
	if m.NullChecking != nil {
		c.NullChecking = deriveExpr(q, alias, m.NullChecking, "N")
	}
	return c, nil
}

// Project implements ObjectModel.
func (m *PrimitiveModel) Project(q *dbexpr.SqlQuery) (Activator, error) {
	_, ord := addColumn(q, m.Body, m.Name)
	a := &primitiveActivator{ordinal: ord, typ: m.typ, nullCheck: -1}
	if m.NullChecking != nil {
		_, a.nullCheck = addColumn(q, m.NullChecking, "N")
	}
	return a, nil
}

// ComplexModel is a struct shape: an entity read from a table or a
// projection built by a selector.
type ComplexModel struct {
	// Entity is set for entity shapes.
	Entity *schema.Entity
	// Keys are the primary key expressions of an entity shape.
	Keys         []dbexpr.Expr
	NullChecking dbexpr.Expr
	// Table is the alias of the table an entity shape reads.
	Table   string
	members []modelMember
	typ     reflect.Type
}

type modelMember struct {
	name  string
	index []int
	model ObjectModel
}

// NewEntityModel returns the shape of entity e read through the table
// alias. t is the entity type or a pointer to it.
func NewEntityModel(e *schema.Entity, alias string, t reflect.Type) *ComplexModel {
	if t == nil {
		t = e.Type
	}
	m := &ComplexModel{Entity: e, Table: alias, typ: t}
	for _, p := range e.Properties {
		col := dbexpr.NewColumnAccess(alias, p.Column, p.Type)
		m.members = append(m.members, modelMember{name: p.Name, index: p.Index, model: NewPrimitiveModel(col, p.Type, p.Column)})
		if p.PrimaryKey {
			m.Keys = append(m.Keys, col)
		}
	}
	return m
}

// NewComplexModel returns an empty projection shape of the struct type t.
func NewComplexModel(t reflect.Type) *ComplexModel {
	return &ComplexModel{typ: t}
}

// Type implements ObjectModel.
func (m *ComplexModel) Type() reflect.Type { return m.typ }

// Member implements ObjectModel.
func (m *ComplexModel) Member(name string) (ObjectModel, error) {
	for _, mm := range m.members {
		if mm.name == name {
			return mm.model, nil
		}
	}
	if m.Entity != nil {
		if _, ok := m.Entity.Navigation(name); ok {
			return nil, veloq.NewTranslationError("", "navigation "+m.Entity.Name+"."+name, "the navigation is not included")
		}
	}
	return nil, veloq.Unsupportedf("member %s of %v", name, m.typ)
}

// Expr implements ObjectModel.
func (m *ComplexModel) Expr() (dbexpr.Expr, error) {
	return nil, veloq.Unsupportedf("%v as a scalar value", m.typ)
}

// WithNullChecking implements ObjectModel.
func (m *ComplexModel) WithNullChecking(key dbexpr.Expr) ObjectModel {
	if m.NullChecking != nil || key == nil {
		return m
	}
	c := m.clone()
	c.NullChecking = key
	return c
}

// WithMember returns a copy of m with the member set. The field index is
// resolved on the struct type of m.
func (m *ComplexModel) WithMember(name string, model ObjectModel) (*ComplexModel, error) {
	sf, ok := expr.Deref(m.typ).FieldByName(name)
	if !ok {
		return nil, veloq.Unsupportedf("member %s of %v", name, m.typ)
	}
	c := m.clone()
	for i, mm := range c.members {
		if mm.name == name {
			c.members[i].model = model
			return c, nil
		}
	}
	c.members = append(c.members, modelMember{name: name, index: sf.Index, model: model})
	return c, nil
}

// HasMember reports whether the member is part of the shape.
func (m *ComplexModel) HasMember(name string) bool {
	for _, mm := range m.members {
		if mm.name == name {
			return true
		}
	}
	return false
}

func (m *ComplexModel) clone() *ComplexModel {
	c := *m
	c.members = append([]modelMember(nil), m.members...)
	c.Keys = append([]dbexpr.Expr(nil), m.Keys...)
	return &c
}

// Derive implements ObjectModel.
func (m *ComplexModel) Derive(q *dbexpr.SqlQuery, alias string) (ObjectModel, error) {
	c := &ComplexModel{Entity: m.Entity, Table: alias, typ: m.typ}
	for _, mm := range m.members {
		d, err := mm.model.Derive(q, alias)
		if err != nil {
			return nil, err
		}
		c.members = append(c.members, modelMember{name: mm.name, index: mm.index, model: d})
	}
	for _, k := range m.Keys {
		c.Keys = append(c.Keys, deriveExpr(q, alias, k, "K"))
	}
	if m.NullChecking != nil {
		c.NullChecking = deriveExpr(q, alias, m.NullChecking, "N")
	}
	return c, nil
}

// Project implements ObjectModel.
func (m *ComplexModel) Project(q *dbexpr.SqlQuery) (Activator, error) {
	a := &objectActivator{typ: m.typ, nullCheck: -1}
	for _, mm := range m.members {
		if cm, ok := mm.model.(*CollectionModel); ok {
			ca, err := cm.project(q)
			if err != nil {
				return nil, err
			}
			ca.index = mm.index
			a.collections = append(a.collections, ca)
			continue
		}
		ma, err := mm.model.Project(q)
		if err != nil {
			return nil, err
		}
		a.members = append(a.members, fieldActivator{index: mm.index, act: ma})
	}
	for _, k := range m.Keys {
		_, ord := addColumn(q, k, "K")
		a.keys = append(a.keys, ord)
	}
	if m.NullChecking != nil {
		_, a.nullCheck = addColumn(q, m.NullChecking, "N")
	}
	if len(a.collections) > 0 && len(a.keys) == 0 {
		return nil, veloq.Unsupportedf("included collection on %v without primary key", m.typ)
	}
	return a, nil
}

// primitives appends the scalar expressions of the shape, depth first.
func primitives(m ObjectModel, out []dbexpr.Expr) ([]dbexpr.Expr, error) {
	switch m := m.(type) {
	case *PrimitiveModel:
		return append(out, m.Body), nil
	case *ComplexModel:
		var err error
		for _, mm := range m.members {
			if out, err = primitives(mm.model, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, veloq.Unsupportedf("collection as a grouping key")
}

// hasCollection reports whether the shape contains an included collection.
func hasCollection(m ObjectModel) bool {
	switch m := m.(type) {
	case *CollectionModel:
		return true
	case *ComplexModel:
		for _, mm := range m.members {
			if hasCollection(mm.model) {
				return true
			}
		}
	}
	return false
}

// CollectionModel is an included collection navigation.
type CollectionModel struct {
	Elem *ComplexModel
	typ  reflect.Type
}

// NewCollectionModel returns the shape of a slice of elem of type t.
func NewCollectionModel(t reflect.Type, elem *ComplexModel) *CollectionModel {
	return &CollectionModel{Elem: elem, typ: t}
}

// Type implements ObjectModel.
func (m *CollectionModel) Type() reflect.Type { return m.typ }

// Member implements ObjectModel.
func (m *CollectionModel) Member(name string) (ObjectModel, error) {
	return nil, veloq.Unsupportedf("member %s of collection %v", name, m.typ)
}

// Expr implements ObjectModel.
func (m *CollectionModel) Expr() (dbexpr.Expr, error) {
	return nil, veloq.Unsupportedf("collection %v as a scalar value", m.typ)
}

// WithNullChecking implements ObjectModel. Collection elements are null
// checked on their own key.
func (m *CollectionModel) WithNullChecking(dbexpr.Expr) ObjectModel { return m }

// Derive implements ObjectModel.
func (m *CollectionModel) Derive(*dbexpr.SqlQuery, string) (ObjectModel, error) {
	return nil, veloq.NewTranslationError("", "included collection "+m.typ.String()+" in a derived table", "apply Skip, Take, Distinct and grouping before Include")
}

// Project implements ObjectModel.
func (m *CollectionModel) Project(q *dbexpr.SqlQuery) (Activator, error) {
	return m.project(q)
}

func (m *CollectionModel) project(q *dbexpr.SqlQuery) (*collectionActivator, error) {
	ea, err := m.Elem.Project(q)
	if err != nil {
		return nil, err
	}
	oa := ea.(*objectActivator)
	if len(oa.keys) == 0 {
		return nil, veloq.Unsupportedf("included collection of %v without primary key", m.Elem.typ)
	}
	return &collectionActivator{typ: m.typ, elem: oa}, nil
}

func foldEqual(a, b string) bool { return schema.FoldName(a) == schema.FoldName(b) }

// addColumn projects body into q and returns its alias and ordinal.
func addColumn(q *dbexpr.SqlQuery, body dbexpr.Expr, name string) (string, int) {
	alias := q.AddColumn(body, name, foldEqual)
	for i, c := range q.Columns {
		if c.Alias == alias {
			return alias, i
		}
	}
	return alias, len(q.Columns) - 1
}

// deriveExpr projects e into q and returns the column reading it through
// the alias.
func deriveExpr(q *dbexpr.SqlQuery, alias string, e dbexpr.Expr, name string) dbexpr.Expr {
	col, _ := addColumn(q, e, name)
	return dbexpr.NewColumnAccess(alias, col, e.Type())
}
