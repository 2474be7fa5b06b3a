package sql

import (
	"strconv"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/schema"
)

// VisitSqlQuery renders a SELECT. A positive Skip renders with the paging
// strategy of the options.
func (g *Generator) VisitSqlQuery(q *dbexpr.SqlQuery) {
	g.depth++
	defer func() { g.depth-- }()
	if q.Skip == nil || *q.Skip <= 0 {
		g.selectTake(q)
		return
	}
	mode := g.opts.Paging
	if !g.d.SupportsPaging(mode) {
		g.Unsupported("paging strategy "+mode.String(), "")
		return
	}
	switch mode {
	case PagingRowNumber:
		g.pageRowNumber(q)
	case PagingOffsetFetch:
		g.pageOffsetFetch(q)
	case PagingLimitOffset:
		g.pageLimitOffset(q)
	}
}

// selectTake renders a query without Skip.
func (g *Generator) selectTake(q *dbexpr.SqlQuery) {
	var top *int
	if g.d.Limit == LimitTop {
		top = q.Take
	}
	g.selectCore(q, top, "")
	g.orderBy(q, false)
	if q.Take != nil {
		switch g.d.Limit {
		case LimitClause:
			g.WriteString(" LIMIT ")
			g.WriteString(strconv.Itoa(*q.Take))
		case LimitFetchFirst:
			g.WriteString(" FETCH FIRST ")
			g.WriteString(strconv.Itoa(*q.Take))
			g.WriteString(" ROWS ONLY")
		}
	}
	g.forUpdate(q)
}

// selectCore renders SELECT ... FROM ... WHERE ... GROUP BY ... HAVING.
// A non-empty rowNumber adds a ROW_NUMBER() column of that name.
func (g *Generator) selectCore(q *dbexpr.SqlQuery, top *int, rowNumber string) {
	g.WriteString("SELECT ")
	if q.Distinct {
		g.WriteString("DISTINCT ")
	}
	if top != nil {
		g.WriteString("TOP ")
		g.WriteString(strconv.Itoa(*top))
		g.WriteString(" ")
	}
	g.columns(q.Columns)
	if rowNumber != "" {
		g.WriteString(",ROW_NUMBER() OVER(ORDER BY ")
		g.orderings(q)
		g.WriteString(") AS ")
		g.Quote(rowNumber)
	}
	if q.Table != nil {
		g.WriteString(" FROM ")
		g.Visit(q.Table)
	}
	if q.Condition != nil {
		g.WriteString(" WHERE ")
		g.Cond(q.Condition)
	}
	if len(q.GroupSegments) > 0 {
		g.WriteString(" GROUP BY ")
		g.Args(q.GroupSegments...)
	}
	if q.Having != nil {
		g.WriteString(" HAVING ")
		g.Cond(q.Having)
	}
}

func (g *Generator) columns(cols []*dbexpr.ColumnSegment) {
	if len(cols) == 0 {
		g.WriteString("*")
		return
	}
	for i, c := range cols {
		if i > 0 {
			g.WriteString(",")
		}
		g.Value(c.Body)
		if c.Alias == "" {
			continue
		}
		if ca, ok := c.Body.(*dbexpr.ColumnAccess); ok && ca.Column == c.Alias {
			continue
		}
		g.WriteString(" AS ")
		g.Quote(c.Alias)
	}
}

// orderBy renders ORDER BY. A paged query without orderings is ordered
// by fallbackOrder.
func (g *Generator) orderBy(q *dbexpr.SqlQuery, required bool) {
	if len(q.Orderings) == 0 && !required {
		return
	}
	g.WriteString(" ORDER BY ")
	g.orderings(q)
}

func (g *Generator) orderings(q *dbexpr.SqlQuery) {
	if len(q.Orderings) == 0 {
		g.fallbackOrder(q)
		return
	}
	for i, o := range q.Orderings {
		if i > 0 {
			g.WriteString(",")
		}
		g.Value(o.Expr)
		if o.Desc {
			g.WriteString(" DESC")
		} else {
			g.WriteString(" ASC")
		}
	}
}

// fallbackOrder renders the synthetic ordering key of the dialect, or else
// the projected columns in order. A query with neither cannot be paged.
func (g *Generator) fallbackOrder(q *dbexpr.SqlQuery) {
	if g.d.SyntheticOrderKey != "" {
		g.WriteString(g.d.SyntheticOrderKey)
		return
	}
	n := 0
	for _, c := range q.Columns {
		if _, ok := c.Body.(*dbexpr.ColumnAccess); !ok {
			continue
		}
		if n > 0 {
			g.WriteString(",")
		}
		g.Value(c.Body)
		g.WriteString(" ASC")
		n++
	}
	if n == 0 {
		g.Unsupported("Skip without an ordering", "add OrderBy before Skip")
	}
}

func (g *Generator) forUpdate(q *dbexpr.SqlQuery) {
	if g.d.LockHints || g.d.ForUpdate == "" || q.Table == nil {
		return
	}
	locked := q.Table.Table.Lock == dbexpr.LockUpdLock
	walkJoinSegments(q.Table.Joins, func(seg dbexpr.TableSegment) {
		locked = locked || seg.Lock == dbexpr.LockUpdLock
	})
	if locked {
		g.WriteString(g.d.ForUpdate)
	}
}

func walkJoinSegments(joins []*dbexpr.JoinTable, fn func(dbexpr.TableSegment)) {
	for _, j := range joins {
		fn(j.Table)
		walkJoinSegments(j.Joins, fn)
	}
}

// rowNumberName returns a ROW_NUMBER_n name that no projected column uses.
func rowNumberName(cols []*dbexpr.ColumnSegment) string {
	taken := make(map[string]bool, len(cols))
	for _, c := range cols {
		taken[schema.FoldName(c.Alias)] = true
	}
	for i := 0; ; i++ {
		name := "ROW_NUMBER_" + strconv.Itoa(i)
		if !taken[schema.FoldName(name)] {
			return name
		}
	}
}

// pageRowNumber numbers the rows in a derived table and selects the
// number range.
func (g *Generator) pageRowNumber(q *dbexpr.SqlQuery) {
	if q.Distinct {
		g.Unsupported("DISTINCT with row number paging", "wrap the distinct query first")
		return
	}
	const outer = "T"
	rn := rowNumberName(q.Columns)
	g.WriteString("SELECT ")
	for i, c := range q.Columns {
		if i > 0 {
			g.WriteString(",")
		}
		g.Quote(outer)
		g.WriteString(".")
		g.Quote(c.Alias)
	}
	g.WriteString(" FROM (")
	g.selectCore(q, nil, rn)
	g.WriteString(")")
	g.alias(outer)
	g.WriteString(" WHERE ")
	g.Quote(outer)
	g.WriteString(".")
	g.Quote(rn)
	g.WriteString(" > ")
	g.WriteString(strconv.Itoa(*q.Skip))
	if q.Take != nil {
		g.WriteString(" AND ")
		g.Quote(outer)
		g.WriteString(".")
		g.Quote(rn)
		g.WriteString(" <= ")
		g.WriteString(strconv.Itoa(*q.Skip + *q.Take))
	}
	if g.depth == 1 {
		g.WriteString(" ORDER BY ")
		g.Quote(outer)
		g.WriteString(".")
		g.Quote(rn)
		g.WriteString(" ASC")
	}
}

// pageOffsetFetch renders ORDER BY ... OFFSET n ROWS FETCH NEXT m ROWS ONLY.
func (g *Generator) pageOffsetFetch(q *dbexpr.SqlQuery) {
	g.selectCore(q, nil, "")
	g.orderBy(q, true)
	g.WriteString(" OFFSET ")
	g.WriteString(strconv.Itoa(*q.Skip))
	g.WriteString(" ROWS")
	if q.Take != nil {
		g.WriteString(" FETCH NEXT ")
		g.WriteString(strconv.Itoa(*q.Take))
		g.WriteString(" ROWS ONLY")
	}
	g.forUpdate(q)
}

// pageLimitOffset renders ORDER BY ... LIMIT m OFFSET n.
func (g *Generator) pageLimitOffset(q *dbexpr.SqlQuery) {
	g.selectCore(q, nil, "")
	g.orderBy(q, true)
	switch {
	case q.Take != nil:
		g.WriteString(" LIMIT ")
		g.WriteString(strconv.Itoa(*q.Take))
	case g.d.LimitUnbounded != "":
		g.WriteString(" LIMIT ")
		g.WriteString(g.d.LimitUnbounded)
	}
	g.WriteString(" OFFSET ")
	g.WriteString(strconv.Itoa(*q.Skip))
	g.forUpdate(q)
}
