package sharding

import (
	"github.com/syssam/veloq/dbexpr"
)

// Rewrite returns a copy of the statement e reading or writing rt instead
// of the logical table. Main and joined tables of a SELECT are rewritten,
// including those of derived tables. e is not modified.
func Rewrite(e dbexpr.Expr, logical string, rt *RouteTable) dbexpr.Expr {
	switch s := e.(type) {
	case *dbexpr.SqlQuery:
		return rewriteQuery(s, logical, rt)
	case *dbexpr.Insert:
		c := *s
		c.Table = retarget(s.Table, logical, rt)
		return &c
	case *dbexpr.Update:
		c := *s
		c.Table = retarget(s.Table, logical, rt)
		return &c
	case *dbexpr.Delete:
		c := *s
		c.Table = retarget(s.Table, logical, rt)
		return &c
	}
	return e
}

func retarget(t *dbexpr.Table, logical string, rt *RouteTable) *dbexpr.Table {
	if t == nil || foldTable(t.Name) != foldTable(logical) {
		return t
	}
	return &dbexpr.Table{Name: rt.Name, Schema: rt.Schema}
}

func rewriteQuery(q *dbexpr.SqlQuery, logical string, rt *RouteTable) *dbexpr.SqlQuery {
	c := q.Clone()
	if q.Table != nil {
		c.Table = &dbexpr.FromTable{
			Table: rewriteSegment(q.Table.Table, logical, rt),
			Joins: rewriteJoins(q.Table.Joins, logical, rt),
		}
	}
	return c
}

func rewriteSegment(s dbexpr.TableSegment, logical string, rt *RouteTable) dbexpr.TableSegment {
	switch b := s.Body.(type) {
	case *dbexpr.Table:
		s.Body = retarget(b, logical, rt)
	case *dbexpr.Subquery:
		s.Body = dbexpr.NewSubquery(rewriteQuery(b.Query, logical, rt), b.Type())
	}
	return s
}

func rewriteJoins(joins []*dbexpr.JoinTable, logical string, rt *RouteTable) []*dbexpr.JoinTable {
	if joins == nil {
		return nil
	}
	out := make([]*dbexpr.JoinTable, len(joins))
	for i, j := range joins {
		c := *j
		c.Table = rewriteSegment(j.Table, logical, rt)
		c.Joins = rewriteJoins(j.Joins, logical, rt)
		out[i] = &c
	}
	return out
}
