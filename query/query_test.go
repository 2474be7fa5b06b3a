package query_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/dialect/sqlite"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/query"
	"github.com/syssam/veloq/schema"
)

type City struct {
	ID   int64  `veloq:"id,pk"`
	Name string `veloq:"name"`
}

type User struct {
	ID     int64  `veloq:"id,pk,autoincrement"`
	Name   string `veloq:"name"`
	Age    *int   `veloq:"age"`
	CityID *int64 `veloq:"city_id"`
	City   *City
	Orders []*Order
}

type Order struct {
	ID      int64   `veloq:"id,pk,autoincrement"`
	UserID  int64   `veloq:"user_id"`
	Amount  float64 `veloq:"amount"`
	Deleted bool    `veloq:"deleted"`
}

type UserCity struct {
	User     User
	CityName string
}

type UserTotal struct {
	UserID int64
	Total  float64
}

var (
	userType  = reflect.TypeFor[User]()
	cityType  = reflect.TypeFor[City]()
	orderType = reflect.TypeFor[Order]()
)

const userColumns = `"T"."id","T"."name","T"."age","T"."city_id"`

func newCompiler(t *testing.T) *query.Compiler {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.HasQueryFilter(orderType, func(p *expr.Parameter) expr.Expr {
		return expr.Eq(p.Field("Deleted"), false)
	}))
	return &query.Compiler{Schema: reg}
}

func render(t *testing.T, c *query.Compiler, q *query.Query) (*query.Compiled, *sql.Command) {
	t.Helper()
	comp, err := c.Compile(q)
	require.NoError(t, err)
	cmd, err := sql.Translate(sqlite.Dialect, sql.Options{}, comp.Query)
	require.NoError(t, err)
	return comp, cmd
}

func userWhere(fn func(u *expr.Parameter) expr.Expr) *expr.Lambda {
	return expr.Lambda1(userType, fn)
}

func TestCompileRoot(t *testing.T) {
	c := newCompiler(t)
	comp, cmd := render(t, c, query.From(userType))
	assert.Equal(t, `SELECT `+userColumns+` FROM "users" AS "T"`, cmd.Text)
	require.Len(t, comp.Tables, 1)
	assert.Equal(t, "users", comp.Tables[0].Name)
	assert.False(t, comp.Scalar)

	t.Run("table override", func(t *testing.T) {
		_, cmd := render(t, c, query.From(userType, query.WithTable("users_2024"), query.WithSchema("archive")))
		assert.Equal(t, `SELECT `+userColumns+` FROM "archive"."users_2024" AS "T"`, cmd.Text)
	})
}

func TestCompileWhere(t *testing.T) {
	c := newCompiler(t)
	q := query.From(userType).
		Where(userWhere(func(u *expr.Parameter) expr.Expr { return expr.GT(u.Field("Age"), 18) })).
		Where(userWhere(func(u *expr.Parameter) expr.Expr { return expr.Eq(u.Field("Name"), "bob") }))
	_, cmd := render(t, c, q)
	assert.Equal(t, `SELECT `+userColumns+` FROM "users" AS "T" WHERE ("T"."age" > 18 AND "T"."name" = ?)`, cmd.Text)
	assert.Equal(t, []any{"bob"}, cmd.Args())

	t.Run("captured variable", func(t *testing.T) {
		name := "alice"
		q := query.From(userType).Where(userWhere(func(u *expr.Parameter) expr.Expr {
			return expr.Eq(u.Field("Name"), expr.Var(&name))
		}))
		_, cmd := render(t, c, q)
		assert.Equal(t, []any{"alice"}, cmd.Args())
	})

	t.Run("nil comparison", func(t *testing.T) {
		q := query.From(userType).Where(userWhere(func(u *expr.Parameter) expr.Expr { return expr.IsNil(u.Field("Age")) }))
		_, cmd := render(t, c, q)
		assert.Equal(t, `SELECT `+userColumns+` FROM "users" AS "T" WHERE "T"."age" IS NULL`, cmd.Text)
	})

	t.Run("navigation not included", func(t *testing.T) {
		q := query.From(userType).Where(userWhere(func(u *expr.Parameter) expr.Expr {
			return expr.Eq(u.Field("City").Field("Name"), "Oslo")
		}))
		_, err := c.Compile(q)
		assert.True(t, veloq.IsTranslationError(err))
	})
}

func TestCompileOrderBy(t *testing.T) {
	c := newCompiler(t)
	name := userWhere(func(u *expr.Parameter) expr.Expr { return u.Field("Name") })
	id := userWhere(func(u *expr.Parameter) expr.Expr { return u.Field("ID") })

	_, cmd := render(t, c, query.From(userType).OrderBy(name).ThenByDesc(id))
	assert.Equal(t, `SELECT `+userColumns+` FROM "users" AS "T" ORDER BY "T"."name" ASC,"T"."id" DESC`, cmd.Text)

	_, cmd = render(t, c, query.From(userType).OrderBy(name).OrderByDesc(id))
	assert.Equal(t, `SELECT `+userColumns+` FROM "users" AS "T" ORDER BY "T"."id" DESC`, cmd.Text)
}

func TestCompileSkipTake(t *testing.T) {
	c := newCompiler(t)
	name := userWhere(func(u *expr.Parameter) expr.Expr { return u.Field("Name") })

	t.Run("paging in place", func(t *testing.T) {
		_, cmd := render(t, c, query.From(userType).OrderBy(name).Skip(10).Take(5))
		assert.Equal(t, `SELECT `+userColumns+` FROM "users" AS "T" ORDER BY "T"."name" ASC LIMIT 5 OFFSET 10`, cmd.Text)
	})
	t.Run("skips add up and takes keep the minimum", func(t *testing.T) {
		comp, err := c.Compile(query.From(userType).Skip(3).Skip(4).Take(9).Take(20))
		require.NoError(t, err)
		require.NotNil(t, comp.Query.Skip)
		assert.Equal(t, 7, *comp.Query.Skip)
		assert.Equal(t, 9, *comp.Query.Take)
	})
	t.Run("skip after take wraps", func(t *testing.T) {
		comp, cmd := render(t, c, query.From(userType).Take(5).Skip(2))
		sub, ok := comp.Query.Table.Table.Body.(*dbexpr.SqlQuery)
		require.True(t, ok)
		assert.Equal(t, 5, *sub.Take)
		assert.Equal(t, "T0", comp.Query.Table.Table.Alias)
		assert.Contains(t, cmd.Text, `FROM (SELECT `+userColumns+` FROM "users" AS "T" LIMIT 5) AS "T0"`)
		assert.Contains(t, cmd.Text, `OFFSET 2`)
	})
	t.Run("where after take wraps", func(t *testing.T) {
		q := query.From(userType).OrderBy(name).Take(10).
			Where(userWhere(func(u *expr.Parameter) expr.Expr { return expr.GT(u.Field("Age"), 18) }))
		_, cmd := render(t, c, q)
		assert.Equal(t,
			`SELECT "T0"."id","T0"."name","T0"."age","T0"."city_id" FROM (SELECT `+userColumns+` FROM "users" AS "T" ORDER BY "T"."name" ASC LIMIT 10) AS "T0" WHERE "T0"."age" > 18 ORDER BY "T0"."name" ASC`,
			cmd.Text)
	})
	t.Run("skip orders entities by key", func(t *testing.T) {
		_, cmd := render(t, c, query.From(userType).Skip(2).Take(2))
		assert.Equal(t, `SELECT `+userColumns+` FROM "users" AS "T" ORDER BY "T"."id" ASC LIMIT 2 OFFSET 2`, cmd.Text)

		comp, err := c.Compile(query.From(userType).Take(2))
		require.NoError(t, err)
		assert.Empty(t, comp.Query.Orderings)
	})
	t.Run("skip orders scalars by column", func(t *testing.T) {
		_, cmd := render(t, c, query.From(userType).Select(name).Skip(1))
		assert.Contains(t, cmd.Text, `ORDER BY "T"."name" ASC`)
	})
	t.Run("skip zero", func(t *testing.T) {
		comp, err := c.Compile(query.From(userType).Skip(0))
		require.NoError(t, err)
		assert.Nil(t, comp.Query.Skip)
	})
	t.Run("negative", func(t *testing.T) {
		_, err := c.Compile(query.From(userType).Skip(-1))
		assert.True(t, veloq.IsTranslationError(err))
		_, err = c.Compile(query.From(userType).Take(-1))
		assert.True(t, veloq.IsTranslationError(err))
	})
}

func TestCompilePaging(t *testing.T) {
	c := newCompiler(t)
	_, cmd := render(t, c, query.From(userType).Paging(3, 20))
	assert.Equal(t, `SELECT `+userColumns+` FROM "users" AS "T" ORDER BY "T"."id" ASC LIMIT 20 OFFSET 40`, cmd.Text)

	for _, tt := range []struct{ page, size int }{{0, 10}, {1, 0}, {-1, -1}} {
		_, err := c.Compile(query.From(userType).Paging(tt.page, tt.size))
		assert.Error(t, err, "page %d size %d", tt.page, tt.size)
	}
}

func TestCompileSelect(t *testing.T) {
	c := newCompiler(t)

	t.Run("member", func(t *testing.T) {
		comp, cmd := render(t, c, query.From(userType).Select(userWhere(func(u *expr.Parameter) expr.Expr { return u.Field("Name") })).Distinct())
		assert.Equal(t, `SELECT DISTINCT "T"."name" FROM "users" AS "T"`, cmd.Text)
		assert.True(t, comp.Query.Distinct)
	})
	t.Run("concat with null", func(t *testing.T) {
		_, cmd := render(t, c, query.From(userType).Select(userWhere(func(u *expr.Parameter) expr.Expr {
			return expr.Concat(u.Field("Name"), expr.Null(reflect.TypeFor[*string]()))
		})))
		assert.Equal(t, `SELECT NULL AS "C" FROM "users" AS "T"`, cmd.Text)
	})
	t.Run("distinct then take wraps", func(t *testing.T) {
		comp, err := c.Compile(query.From(userType).Select(userWhere(func(u *expr.Parameter) expr.Expr { return u.Field("Name") })).Distinct().Take(3))
		require.NoError(t, err)
		assert.False(t, comp.Query.Distinct)
		sub, ok := comp.Query.Table.Table.Body.(*dbexpr.SqlQuery)
		require.True(t, ok)
		assert.True(t, sub.Distinct)
		assert.Equal(t, 3, *comp.Query.Take)
	})
	t.Run("distinct drops orderings", func(t *testing.T) {
		comp, err := c.Compile(query.From(userType).OrderBy(userWhere(func(u *expr.Parameter) expr.Expr { return u.Field("Name") })).Distinct())
		require.NoError(t, err)
		assert.Empty(t, comp.Query.Orderings)
	})
}

func TestCompileAggregate(t *testing.T) {
	c := newCompiler(t)
	comp, cmd := render(t, c, query.From(userType).
		Where(userWhere(func(u *expr.Parameter) expr.Expr { return expr.GT(u.Field("Age"), 18) })).
		Aggregate(expr.AggCount, nil))
	assert.True(t, comp.Scalar)
	assert.Contains(t, cmd.Text, "COUNT(")
	assert.Contains(t, cmd.Text, `WHERE "T"."age" > 18`)

	t.Run("max", func(t *testing.T) {
		comp, cmd := render(t, c, query.From(orderType).Aggregate(expr.AggMax, expr.Lambda1(orderType, func(o *expr.Parameter) expr.Expr {
			return o.Field("Amount")
		})))
		assert.Equal(t, reflect.TypeFor[float64](), comp.Query.Columns[0].Body.Type())
		assert.Contains(t, cmd.Text, `MAX("T"."amount")`)
	})
	t.Run("nothing after an aggregate", func(t *testing.T) {
		_, err := c.Compile(query.From(userType).Aggregate(expr.AggCount, nil).Take(1))
		assert.True(t, veloq.IsTranslationError(err))
	})
}

func TestCompileFilters(t *testing.T) {
	c := newCompiler(t)
	_, cmd := render(t, c, query.From(orderType))
	assert.Equal(t, `SELECT "T"."id","T"."user_id","T"."amount","T"."deleted" FROM "orders" AS "T" WHERE "T"."deleted" = 0`, cmd.Text)

	_, cmd = render(t, c, query.From(orderType).IgnoreAllFilters())
	assert.NotContains(t, cmd.Text, "WHERE")

	t.Run("context filters", func(t *testing.T) {
		tenant := int64(7)
		cc := *c
		cc.ContextFilters = func(t reflect.Type) []expr.Predicate {
			if t != orderType {
				return nil
			}
			return []expr.Predicate{func(p *expr.Parameter) expr.Expr { return expr.Eq(p.Field("UserID"), expr.Var(&tenant)) }}
		}
		_, cmd := render(t, &cc, query.From(orderType).Where(expr.Lambda1(orderType, func(o *expr.Parameter) expr.Expr {
			return expr.GT(o.Field("Amount"), 10.5)
		})))
		assert.Equal(t, `SELECT "T"."id","T"."user_id","T"."amount","T"."deleted" FROM "orders" AS "T" WHERE (("T"."user_id" = ? AND "T"."amount" > 10.5) AND "T"."deleted" = 0)`, cmd.Text)
		assert.Equal(t, []any{int64(7)}, cmd.Args())
	})
}

func joinUserCity(jt dbexpr.JoinType) *query.Query {
	cond := expr.NewLambda([]reflect.Type{userType, cityType}, func(ps ...*expr.Parameter) expr.Expr {
		return expr.Eq(ps[0].Field("CityID"), ps[1].Field("ID"))
	})
	sel := expr.NewLambda([]reflect.Type{userType, cityType}, func(ps ...*expr.Parameter) expr.Expr {
		return expr.NewStruct[UserCity](expr.Bind("User", ps[0]), expr.Bind("CityName", ps[1].Field("Name")))
	})
	return query.From(userType).Join(sel, query.JoinSpec{Query: query.From(cityType), Type: jt, Condition: cond})
}

func TestCompileJoin(t *testing.T) {
	c := newCompiler(t)

	t.Run("left", func(t *testing.T) {
		comp, cmd := render(t, c, joinUserCity(dbexpr.LeftJoin))
		assert.Contains(t, cmd.Text, `FROM "users" AS "T" LEFT JOIN "cities" AS "T0" ON "T"."city_id" = "T0"."id"`)
		assert.Contains(t, cmd.Text, `"T0"."name" AS "CityName"`)
		assert.Len(t, comp.Tables, 2)
	})
	t.Run("inner", func(t *testing.T) {
		_, cmd := render(t, c, joinUserCity(dbexpr.InnerJoin))
		assert.Contains(t, cmd.Text, `INNER JOIN "cities" AS "T0" ON "T"."city_id" = "T0"."id"`)
	})
	t.Run("right", func(t *testing.T) {
		_, cmd := render(t, c, joinUserCity(dbexpr.RightJoin))
		assert.Contains(t, cmd.Text, `RIGHT JOIN "cities" AS "T0"`)
	})
	t.Run("filtered query joins as a derived table", func(t *testing.T) {
		cond := expr.NewLambda([]reflect.Type{userType, orderType}, func(ps ...*expr.Parameter) expr.Expr {
			return expr.Eq(ps[0].Field("ID"), ps[1].Field("UserID"))
		})
		sel := expr.NewLambda([]reflect.Type{userType, orderType}, func(ps ...*expr.Parameter) expr.Expr {
			return ps[1].Field("Amount")
		})
		orders := query.From(orderType).Where(expr.Lambda1(orderType, func(o *expr.Parameter) expr.Expr {
			return expr.GT(o.Field("Amount"), 0.0)
		}))
		comp, cmd := render(t, c, query.From(userType).Join(sel, query.JoinSpec{Query: orders, Type: dbexpr.InnerJoin, Condition: cond}))
		require.Len(t, comp.Query.Table.Joins, 1)
		_, derived := comp.Query.Table.Joins[0].Table.Body.(*dbexpr.SqlQuery)
		assert.True(t, derived)
		assert.Contains(t, cmd.Text, `"T0"."deleted" = 0`)
	})
	t.Run("unfiltered root joins with its filters in ON", func(t *testing.T) {
		cond := expr.NewLambda([]reflect.Type{userType, orderType}, func(ps ...*expr.Parameter) expr.Expr {
			return expr.Eq(ps[0].Field("ID"), ps[1].Field("UserID"))
		})
		sel := expr.NewLambda([]reflect.Type{userType, orderType}, func(ps ...*expr.Parameter) expr.Expr {
			return ps[1].Field("Amount")
		})
		_, cmd := render(t, c, query.From(userType).Join(sel, query.JoinSpec{Query: query.From(orderType), Type: dbexpr.LeftJoin, Condition: cond}))
		assert.Contains(t, cmd.Text, `LEFT JOIN "orders" AS "T0" ON ("T"."id" = "T0"."user_id" AND "T0"."deleted" = 0)`)
	})
}

func TestCompileInclude(t *testing.T) {
	c := newCompiler(t)

	t.Run("reference", func(t *testing.T) {
		_, cmd := render(t, c, query.From(userType).Include("City"))
		assert.Contains(t, cmd.Text, `LEFT JOIN "cities" AS "T0" ON "T0"."id" = "T"."city_id"`)
		assert.Contains(t, cmd.Text, `"T0"."name" AS "name0"`)
	})
	t.Run("collection", func(t *testing.T) {
		_, cmd := render(t, c, query.From(userType).Include("Orders"))
		assert.Contains(t, cmd.Text, `LEFT JOIN "orders" AS "T0" ON ("T0"."user_id" = "T"."id" AND "T0"."deleted" = 0)`)
		assert.Contains(t, cmd.Text, `ORDER BY "T"."id" ASC`)
	})
	t.Run("collection without filters", func(t *testing.T) {
		_, cmd := render(t, c, query.From(userType).IgnoreAllFilters().Include("Orders"))
		assert.Contains(t, cmd.Text, `LEFT JOIN "orders" AS "T0" ON "T0"."user_id" = "T"."id"`)
		assert.NotContains(t, cmd.Text, "deleted\" = 0")
	})
	t.Run("included navigation is queryable", func(t *testing.T) {
		q := query.From(userType).Include("City").Where(userWhere(func(u *expr.Parameter) expr.Expr {
			return expr.Eq(u.Field("City").Field("Name"), "Oslo")
		}))
		_, cmd := render(t, c, q)
		assert.Contains(t, cmd.Text, `WHERE "T0"."name" = ?`)
	})
	t.Run("unknown navigation", func(t *testing.T) {
		_, err := c.Compile(query.From(userType).Include("Friends"))
		var me *veloq.MappingError
		assert.ErrorAs(t, err, &me)
	})
	t.Run("limit after collection", func(t *testing.T) {
		_, err := c.Compile(query.From(userType).Include("Orders").Take(1))
		assert.True(t, veloq.IsTranslationError(err))
		_, err = c.Compile(query.From(userType).Include("Orders").Paging(1, 10))
		assert.True(t, veloq.IsTranslationError(err))
	})
}

func TestCompileGroupBy(t *testing.T) {
	c := newCompiler(t)
	key := expr.Lambda1(orderType, func(o *expr.Parameter) expr.Expr { return o.Field("UserID") })
	pair := []reflect.Type{reflect.TypeFor[int64](), orderType}
	q := query.From(orderType).GroupBy(query.GroupBy{
		Keys: key,
		Having: expr.NewLambda(pair, func(ps ...*expr.Parameter) expr.Expr {
			return expr.GT(expr.Sum(ps[1].Field("Amount")), 100.0)
		}),
		Orderings: []query.GroupOrdering{{Key: expr.NewLambda(pair[:1], func(ps ...*expr.Parameter) expr.Expr { return ps[0] }), Desc: true}},
		Selector: expr.NewLambda(pair, func(ps ...*expr.Parameter) expr.Expr {
			return expr.NewStruct[UserTotal](expr.Bind("UserID", ps[0]), expr.Bind("Total", expr.Sum(ps[1].Field("Amount"))))
		}),
	})
	_, cmd := render(t, c, q)
	assert.Contains(t, cmd.Text, `GROUP BY "T"."user_id"`)
	assert.Contains(t, cmd.Text, `HAVING IFNULL(SUM("T"."amount"),0) > 100`)
	assert.Contains(t, cmd.Text, `ORDER BY "T"."user_id" DESC`)
	assert.Contains(t, cmd.Text, `AS "Total"`)

	t.Run("take after group wraps", func(t *testing.T) {
		comp, err := c.Compile(q.Take(5))
		require.NoError(t, err)
		sub, ok := comp.Query.Table.Table.Body.(*dbexpr.SqlQuery)
		require.True(t, ok)
		assert.NotEmpty(t, sub.GroupSegments)
		assert.Empty(t, comp.Query.GroupSegments)
	})
}

func TestCompileSubquery(t *testing.T) {
	c := newCompiler(t)
	orders := query.From(orderType).Select(expr.Lambda1(orderType, func(o *expr.Parameter) expr.Expr { return o.Field("UserID") }))
	q := query.From(userType).Where(userWhere(func(u *expr.Parameter) expr.Expr {
		return expr.InQuery(u.Field("ID"), orders)
	}))
	_, cmd := render(t, c, q)
	assert.Contains(t, cmd.Text, `"T"."id" IN (SELECT "T0"."user_id" FROM "orders" AS "T0" WHERE "T0"."deleted" = 0)`)

	t.Run("exists", func(t *testing.T) {
		q := query.From(userType).Where(userWhere(func(u *expr.Parameter) expr.Expr {
			return expr.Exists(query.From(cityType))
		}))
		_, cmd := render(t, c, q)
		assert.Contains(t, cmd.Text, `EXISTS (SELECT 1 AS "C" FROM "cities" AS "T0")`)
	})
	t.Run("in list", func(t *testing.T) {
		q := query.From(userType).Where(userWhere(func(u *expr.Parameter) expr.Expr {
			return expr.In(u.Field("ID"), []int64{1, 2, 3})
		}))
		_, cmd := render(t, c, q)
		assert.Contains(t, cmd.Text, `"T"."id" IN (`)
	})
}

func TestRootWhere(t *testing.T) {
	c := newCompiler(t)
	byUser := expr.Lambda1(orderType, func(o *expr.Parameter) expr.Expr { return expr.Eq(o.Field("UserID"), int64(1)) })
	q := query.From(orderType).Take(2).RootWhere(byUser)
	comp, cmd := render(t, c, q)
	_, ok := comp.Query.Table.Table.Body.(*dbexpr.Table)
	assert.True(t, ok, "the predicate precedes Take")
	assert.Contains(t, cmd.Text, `"T"."user_id" = 1`)
	assert.Contains(t, cmd.Text, "LIMIT 2")

	base := query.From(orderType)
	assert.Same(t, base, base.RootWhere())
	assert.Len(t, q.Ops(), 3)
}
