// Package dialecttest holds the statements every dialect package renders
// against its golden files.
package dialecttest

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
)

// Case is a statement rendered with fixed options.
type Case struct {
	Name string
	Expr dbexpr.Expr
	Opts sql.Options
}

var (
	typeInt     = reflect.TypeFor[int]()
	typeInt64   = reflect.TypeFor[int64]()
	typeFloat64 = reflect.TypeFor[float64]()
	typeString  = reflect.TypeFor[string]()
	typeStringP = reflect.TypeFor[*string]()
	typeTime    = reflect.TypeFor[time.Time]()
)

func col(name string, t reflect.Type) *dbexpr.ColumnAccess {
	return dbexpr.NewColumnAccess("T", name, t)
}

func users() *dbexpr.FromTable {
	return &dbexpr.FromTable{Table: dbexpr.TableSegment{Body: &dbexpr.Table{Name: "users"}, Alias: "T"}}
}

// Cases returns the shared statements.
func Cases() []Case {
	paging := dbexpr.NewSqlQuery(typeAny)
	paging.Columns = []*dbexpr.ColumnSegment{
		{Body: col("id", typeInt64), Alias: "id"},
		{Body: col("name", typeString), Alias: "name"},
	}
	paging.Table = users()
	paging.Condition = dbexpr.NewBinary(dbexpr.OpGreaterThanOrEqual, col("age", typeInt), dbexpr.NewConstant(18), nil)
	paging.Orderings = []dbexpr.Ordering{{Expr: col("id", typeInt64), Desc: true}}
	paging.Skip, paging.Take = dbexpr.Int(20), dbexpr.Int(10)

	concat := dbexpr.NewSqlQuery(typeString)
	concat.Columns = []*dbexpr.ColumnSegment{{
		Body:  dbexpr.Concat(dbexpr.Concat(col("first", typeStringP), dbexpr.NewConstant(" ")), col("last", typeString)),
		Alias: "full",
	}}
	concat.Table = users()

	created := col("created", typeTime)
	dates := dbexpr.NewSqlQuery(typeAny)
	dates.Columns = []*dbexpr.ColumnSegment{
		{Body: dbexpr.NewMemberAccess(created, expr.OwnerTime, "Year", typeInt), Alias: "y"},
		{Body: dbexpr.NewMemberAccess(created, expr.OwnerTime, "DayOfWeek", typeInt), Alias: "dow"},
	}
	dates.Table = users()
	dates.Condition = dbexpr.NewBinary(dbexpr.OpGreaterThan, created, dbexpr.NewMemberAccess(nil, expr.OwnerTime, "Now", typeTime), nil)

	insert := &dbexpr.Insert{
		Table:   &dbexpr.Table{Name: "users"},
		Columns: []string{"name", "age"},
		Rows:    [][]dbexpr.Expr{{dbexpr.NewParameter("Ada", typeString), dbexpr.NewConstant(int64(36))}},
		Returns: []string{"id"},
	}

	age := col("age", typeInt)
	agg := dbexpr.NewSqlQuery(typeAny)
	agg.Columns = []*dbexpr.ColumnSegment{
		{Body: col("name", typeString), Alias: "name"},
		{Body: dbexpr.NewAggregate(expr.AggCount, nil, typeInt), Alias: "n"},
		{Body: dbexpr.NewAggregate(expr.AggSum, []dbexpr.Expr{age}, typeInt), Alias: "total"},
		{Body: dbexpr.NewAggregate(expr.AggAverage, []dbexpr.Expr{age}, typeFloat64), Alias: "avg"},
	}
	agg.Table = users()
	agg.GroupSegments = []dbexpr.Expr{col("name", typeString)}

	return []Case{
		{Name: "paging", Expr: paging},
		{Name: "concat", Expr: concat, Opts: sql.Options{BindByName: true}},
		{Name: "date_part", Expr: dates},
		{Name: "insert_returning", Expr: insert, Opts: sql.Options{BindByName: true}},
		{Name: "aggregate", Expr: agg},
	}
}

var typeAny = reflect.TypeFor[any]()

// Render formats a command as its text followed by one line per
// parameter.
func Render(cmd *sql.Command) string {
	var b strings.Builder
	b.WriteString(cmd.Text)
	b.WriteString("\n")
	for i, p := range cmd.Params {
		name := p.Name
		if name == "" {
			name = "-"
		}
		if p.Output {
			fmt.Fprintf(&b, "[%d] %s OUT\n", i, name)
			continue
		}
		fmt.Fprintf(&b, "[%d] %s %#v\n", i, name, p.Value)
	}
	return b.String()
}

// Golden renders every case for d and compares it with
// testdata/golden/<case>.golden.
func Golden(t *testing.T, d *sql.Dialect) {
	t.Helper()
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	for _, tc := range Cases() {
		t.Run(tc.Name, func(t *testing.T) {
			cmd, err := sql.Translate(d, tc.Opts, tc.Expr)
			require.NoError(t, err)
			g.Assert(t, tc.Name, []byte(Render(cmd)))
		})
	}
}
