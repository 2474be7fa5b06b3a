package sql

import (
	"strconv"

	"github.com/syssam/veloq/dbexpr"
)

// VisitInsert renders an INSERT of one or more rows with the dialect's
// read back clause for Returns.
func (g *Generator) VisitInsert(i *dbexpr.Insert) {
	if len(i.Rows) > 1 && g.d.InsertAll {
		g.insertAll(i)
		return
	}
	g.setReturns(i.Returns)
	g.WriteString("INSERT INTO ")
	g.Visit(i.Table)
	if len(i.Columns) == 0 {
		if g.d.DefaultValues == "" {
			g.Unsupported("INSERT without columns", "")
			return
		}
		g.output(i.Returns)
		g.WriteString(" ")
		g.WriteString(g.d.DefaultValues)
		g.returning(i.Returns)
		return
	}
	g.WriteString("(")
	g.columnList(i.Columns)
	g.WriteString(")")
	g.output(i.Returns)
	g.WriteString(" VALUES")
	for n, row := range i.Rows {
		if n > 0 {
			g.WriteString(",")
		}
		g.WriteString("(")
		g.Args(row...)
		g.WriteString(")")
	}
	g.returning(i.Returns)
}

// insertAll renders INSERT ALL INTO t(...) VALUES(...) ... SELECT 1 FROM DUAL.
func (g *Generator) insertAll(i *dbexpr.Insert) {
	if len(i.Returns) > 0 {
		g.Unsupported("multi-row INSERT with returned columns", "")
		return
	}
	g.WriteString("INSERT ALL")
	for _, row := range i.Rows {
		g.WriteString(" INTO ")
		g.Visit(i.Table)
		g.WriteString("(")
		g.columnList(i.Columns)
		g.WriteString(") VALUES(")
		g.Args(row...)
		g.WriteString(")")
	}
	g.WriteString(" SELECT 1 FROM DUAL")
}

// VisitUpdate renders UPDATE t SET ... WHERE ....
func (g *Generator) VisitUpdate(u *dbexpr.Update) {
	if len(u.Set) == 0 {
		g.Unsupported("UPDATE without assignments", "")
		return
	}
	if len(u.Returns) > 0 && g.d.Returning == ReturnLastInsertID {
		g.Unsupported("UPDATE with returned columns", "")
		return
	}
	g.setReturns(u.Returns)
	g.WriteString("UPDATE ")
	g.Visit(u.Table)
	g.WriteString(" SET ")
	for n, s := range u.Set {
		if n > 0 {
			g.WriteString(",")
		}
		g.Quote(s.Column)
		g.WriteString("=")
		g.Value(s.Value)
	}
	g.output(u.Returns)
	if u.Condition != nil {
		g.WriteString(" WHERE ")
		g.Cond(u.Condition)
	}
	g.returning(u.Returns)
}

// VisitDelete renders DELETE FROM t WHERE ....
func (g *Generator) VisitDelete(d *dbexpr.Delete) {
	g.WriteString("DELETE FROM ")
	g.Visit(d.Table)
	if d.Condition != nil {
		g.WriteString(" WHERE ")
		g.Cond(d.Condition)
	}
}

func (g *Generator) columnList(cols []string) {
	for i, c := range cols {
		if i > 0 {
			g.WriteString(",")
		}
		g.Quote(c)
	}
}

func (g *Generator) setReturns(cols []string) {
	if len(cols) == 0 {
		return
	}
	g.returns = cols
	g.returnStyle = g.d.Returning
}

// output renders OUTPUT INSERTED.c, placed before VALUES and WHERE.
func (g *Generator) output(cols []string) {
	if len(cols) == 0 || g.d.Returning != ReturnOutput {
		return
	}
	g.WriteString(" OUTPUT ")
	for i, c := range cols {
		if i > 0 {
			g.WriteString(",")
		}
		g.WriteString("INSERTED.")
		g.Quote(c)
	}
}

// returning renders the trailing RETURNING clause.
func (g *Generator) returning(cols []string) {
	if len(cols) == 0 {
		return
	}
	switch g.d.Returning {
	case ReturnReturning:
		g.WriteString(" RETURNING ")
		g.columnList(cols)
	case ReturnInto:
		g.WriteString(" RETURNING ")
		g.columnList(cols)
		g.WriteString(" INTO ")
		for i := range cols {
			if i > 0 {
				g.WriteString(",")
			}
			idx := g.params.addOutput("R_"+strconv.Itoa(i), nil)
			g.WriteString(g.placeholder(idx))
		}
	case ReturnNone:
		g.Unsupported("returned columns", "")
	}
}
