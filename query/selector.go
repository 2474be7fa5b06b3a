package query

import (
	"reflect"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/expr"
)

// shape resolves e to a result shape. Parameters and member paths keep
// the shapes they reference, struct constructors build projections and
// any other expression becomes a scalar.
func (p *parser) shape(e expr.Expr) (ObjectModel, error) {
	switch e := e.(type) {
	case *expr.Parameter:
		m, ok := p.scope[e]
		if !ok {
			return nil, veloq.Unsupportedf("parameter %s is not in scope", e.Name)
		}
		return m, nil
	case *expr.Member:
		if e.Owner == "" && e.X != nil && !expr.CanEvaluate(e) {
			x, err := p.shape(e.X)
			if err != nil {
				return nil, err
			}
			return x.Member(e.Name)
		}
	case *expr.New:
		return p.construct(e)
	}
	body, err := p.parse(e)
	if err != nil {
		return nil, err
	}
	return NewPrimitiveModel(body, e.Type(), ""), nil
}

// construct builds the projection shape of a struct constructor. Scalar
// members take the member name as their column alias.
func (p *parser) construct(n *expr.New) (*ComplexModel, error) {
	if t := expr.Deref(n.Type()); t == nil || t.Kind() != reflect.Struct {
		return nil, veloq.Unsupportedf("constructing %v", n.Type())
	}
	m := NewComplexModel(n.Type())
	for _, b := range n.Bindings {
		s, err := p.shape(b.Value)
		if err != nil {
			return nil, err
		}
		if pm, ok := s.(*PrimitiveModel); ok {
			c := *pm
			c.Name = b.Name
			s = &c
		}
		if m, err = m.WithMember(b.Name, s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// selectShape resolves the body of a selector over the bound shapes.
func (p *parser) selectShape(l *expr.Lambda, shapes ...ObjectModel) (ObjectModel, error) {
	bp, err := p.bind(l, shapes...)
	if err != nil {
		return nil, err
	}
	return bp.shape(l.Body)
}
