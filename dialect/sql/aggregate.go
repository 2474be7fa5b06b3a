package sql

import (
	"reflect"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
)

var sharedAggregates = map[string]AggregateFunc{
	expr.AggCount:     count("COUNT"),
	expr.AggLongCount: count("COUNT"),
	expr.AggSum:       sum,
	expr.AggMax:       AggregateTemplate("MAX({0})"),
	expr.AggMin:       AggregateTemplate("MIN({0})"),
	expr.AggAverage:   AggregateTemplate("AVG({0})"),
}

// VisitAggregate renders an aggregate with the dialect renderer, falling
// back to the shared one.
func (g *Generator) VisitAggregate(a *dbexpr.Aggregate) {
	f, ok := g.d.Aggregates[a.Func]
	if !ok {
		f, ok = sharedAggregates[a.Func]
	}
	if !ok {
		g.Unsupported("aggregate "+a.Func, "")
		return
	}
	f(g, a.Args, a.Type())
}

// AggregateTemplate returns an aggregate renderer for tmpl, see
// Generator.Template.
func AggregateTemplate(tmpl string) AggregateFunc {
	return func(g *Generator, args []Expr, _ reflect.Type) {
		g.Template(tmpl, args...)
	}
}

// CountFunc returns a renderer of fn(1), or fn(x) with an argument.
func CountFunc(fn string) AggregateFunc { return count(fn) }

func count(fn string) AggregateFunc {
	return func(g *Generator, args []Expr, _ reflect.Type) {
		g.WriteString(fn)
		g.WriteString("(")
		if len(args) == 0 {
			g.WriteString("1")
		} else {
			g.Value(args[0])
		}
		g.WriteString(")")
	}
}

// sum replaces the NULL sum of an empty group by 0 when the result type is
// not nullable.
func sum(g *Generator, args []Expr, result reflect.Type) {
	if len(args) != 1 {
		g.Unsupported("aggregate Sum", "expects one argument")
		return
	}
	if isNullableType(result) {
		g.WriteString("SUM(")
		g.Value(args[0])
		g.WriteString(")")
		return
	}
	g.WriteString(g.nullFunc())
	g.WriteString("(SUM(")
	g.Value(args[0])
	g.WriteString("),0)")
}
