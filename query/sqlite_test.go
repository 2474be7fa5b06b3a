package query_test

import (
	stdsql "database/sql"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/dialect/sqlite"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/query"
)

func openDB(t *testing.T) *stdsql.DB {
	t.Helper()
	db, err := stdsql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range []string{
		`CREATE TABLE cities (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, age INTEGER, city_id INTEGER)`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER NOT NULL, amount REAL NOT NULL, deleted INTEGER NOT NULL DEFAULT 0)`,
		`INSERT INTO cities (id, name) VALUES (1, 'Oslo'), (2, 'Lima')`,
		`INSERT INTO users (name, age, city_id) VALUES ('a', 20, 1), ('b', NULL, 2), ('c', 31, NULL), ('d', 45, 1), ('e', 18, NULL)`,
		`INSERT INTO orders (user_id, amount, deleted) VALUES (1, 10, 0), (1, 20, 0), (1, 99, 1), (3, 5, 0)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

func fetch(t *testing.T, db *stdsql.DB, c *query.Compiler, q *query.Query) []reflect.Value {
	t.Helper()
	return fetchWith(t, db, c, q, sql.Options{})
}

func fetchWith(t *testing.T, db *stdsql.DB, c *query.Compiler, q *query.Query, opts sql.Options) []reflect.Value {
	t.Helper()
	comp, err := c.Compile(q)
	require.NoError(t, err)
	cmd, err := sql.Translate(sqlite.Dialect, opts, comp.Query)
	require.NoError(t, err)
	rows, err := db.Query(cmd.Text, cmd.Args()...)
	require.NoError(t, err, cmd.Text)
	defer rows.Close()
	cols, err := rows.Columns()
	require.NoError(t, err)
	r := query.NewReader(comp.Activator)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		require.NoError(t, r.Read(values))
	}
	require.NoError(t, rows.Err())
	return r.Values()
}

func users(vs []reflect.Value) []User {
	out := make([]User, len(vs))
	for i, v := range vs {
		out[i] = v.Interface().(User)
	}
	return out
}

func TestSQLitePaging(t *testing.T) {
	db, c := openDB(t), newCompiler(t)
	got := users(fetch(t, db, c, query.From(userType).Paging(2, 2)))
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, "d", got[1].Name)
	assert.Nil(t, got[0].CityID)
	require.NotNil(t, got[1].Age)
	assert.Equal(t, 45, *got[1].Age)

	t.Run("wrapped limit", func(t *testing.T) {
		q := query.From(userType).
			OrderByDesc(userWhere(func(u *expr.Parameter) expr.Expr { return u.Field("ID") })).
			Take(3).
			Where(userWhere(func(u *expr.Parameter) expr.Expr { return expr.GT(u.Field("Age"), 20) }))
		got := users(fetch(t, db, c, q))
		require.Len(t, got, 2)
		assert.Equal(t, []int64{4, 3}, []int64{got[0].ID, got[1].ID})
	})
}

func TestSQLitePageRoundTrip(t *testing.T) {
	db, c := openDB(t), newCompiler(t)
	tests := []struct {
		name string
		mode sql.PagingMode
		page func(n, size int) *query.Query
	}{
		{"limit offset", sql.PagingLimitOffset, func(n, size int) *query.Query { return query.From(userType).Paging(n, size) }},
		{"row number", sql.PagingRowNumber, func(n, size int) *query.Query { return query.From(userType).Paging(n, size) }},
		{"skip take limit offset", sql.PagingLimitOffset, func(n, size int) *query.Query {
			return query.From(userType).Skip((n - 1) * size).Take(size)
		}},
		{"skip take row number", sql.PagingRowNumber, func(n, size int) *query.Query {
			return query.From(userType).Skip((n - 1) * size).Take(size)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := map[int64]int{}
			var order []int64
			for n := 1; n <= 3; n++ {
				got := users(fetchWith(t, db, c, tt.page(n, 2), sql.Options{Paging: tt.mode}))
				if n < 3 {
					assert.Len(t, got, 2, "page %d", n)
				}
				for _, u := range got {
					seen[u.ID]++
					order = append(order, u.ID)
				}
			}
			assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1, 4: 1, 5: 1}, seen, "pages are disjoint and cover every row")
			assert.Equal(t, []int64{1, 2, 3, 4, 5}, order)
		})
	}
}

func TestSQLiteInclude(t *testing.T) {
	db, c := openDB(t), newCompiler(t)
	got := users(fetch(t, db, c, query.From(userType).Include("Orders").Include("City")))
	require.Len(t, got, 5)

	require.Len(t, got[0].Orders, 2)
	assert.Equal(t, 10.0, got[0].Orders[0].Amount)
	assert.Equal(t, 20.0, got[0].Orders[1].Amount)
	require.NotNil(t, got[0].City)
	assert.Equal(t, "Oslo", got[0].City.Name)

	assert.Empty(t, got[1].Orders)
	assert.Nil(t, got[2].City)
	require.Len(t, got[2].Orders, 1)
}

func TestSQLiteJoin(t *testing.T) {
	db, c := openDB(t), newCompiler(t)
	vs := fetch(t, db, c, joinUserCity(dbexpr.LeftJoin))
	require.Len(t, vs, 5)
	byName := map[string]string{}
	for _, v := range vs {
		uc := v.Interface().(UserCity)
		byName[uc.User.Name] = uc.CityName
	}
	assert.Equal(t, map[string]string{"a": "Oslo", "b": "Lima", "c": "", "d": "Oslo", "e": ""}, byName)
}

func TestSQLiteOuterJoins(t *testing.T) {
	db, c := openDB(t), newCompiler(t)
	_, err := db.Exec(`INSERT INTO cities (id, name) VALUES (3, 'Rome')`)
	require.NoError(t, err)
	type pair struct{ user, city string }
	tests := []struct {
		join dbexpr.JoinType
		want []pair
	}{
		{dbexpr.InnerJoin, []pair{{"a", "Oslo"}, {"b", "Lima"}, {"d", "Oslo"}}},
		{dbexpr.LeftJoin, []pair{{"a", "Oslo"}, {"b", "Lima"}, {"c", ""}, {"d", "Oslo"}, {"e", ""}}},
		{dbexpr.RightJoin, []pair{{"a", "Oslo"}, {"b", "Lima"}, {"d", "Oslo"}, {"", "Rome"}}},
		{dbexpr.FullJoin, []pair{{"a", "Oslo"}, {"b", "Lima"}, {"c", ""}, {"d", "Oslo"}, {"e", ""}, {"", "Rome"}}},
	}
	for _, tt := range tests {
		t.Run(tt.join.String(), func(t *testing.T) {
			var got []pair
			for _, v := range fetch(t, db, c, joinUserCity(tt.join)) {
				uc := v.Interface().(UserCity)
				if uc.User.Name == "" {
					assert.Zero(t, uc.User, "the missing side is the zero value")
				}
				got = append(got, pair{uc.User.Name, uc.CityName})
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestSQLiteAggregate(t *testing.T) {
	db, c := openDB(t), newCompiler(t)
	vs := fetch(t, db, c, query.From(orderType).Aggregate(expr.AggSum, expr.Lambda1(orderType, func(o *expr.Parameter) expr.Expr {
		return o.Field("Amount")
	})))
	require.Len(t, vs, 1)
	assert.Equal(t, 35.0, vs[0].Interface())

	vs = fetch(t, db, c, query.From(orderType).IgnoreAllFilters().Aggregate(expr.AggCount, nil))
	require.Len(t, vs, 1)
	assert.Equal(t, 4, vs[0].Interface())
}
