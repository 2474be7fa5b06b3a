package client_test

import (
	"context"
	stdsql "database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/client"
	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/privacy"
	"github.com/syssam/veloq/schema"
)

type User struct {
	ID       int64  `veloq:"id,pk,autoincrement"`
	Name     string `veloq:"name"`
	Age      *int   `veloq:"age"`
	TenantID string `veloq:"tenant_id"`
	Orders   []*Order
}

type Order struct {
	ID      int64   `veloq:"id,pk,autoincrement"`
	UserID  int64   `veloq:"user_id"`
	Amount  float64 `veloq:"amount"`
	Deleted bool    `veloq:"deleted"`
	Version int64   `veloq:"version,rowversion"`
}

type UserTotal struct {
	UserID int64
	Total  float64
}

type UserOrder struct {
	Name   string
	Amount float64
}

func sqliteDB(t *testing.T, name string, stmts ...string) *stdsql.DB {
	t.Helper()
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	db, err := stdsql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

func openDB(t *testing.T, opts ...client.Option) (*client.DB, *stdsql.DB) {
	t.Helper()
	raw := sqliteDB(t, t.Name(),
		`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, age INTEGER, tenant_id TEXT NOT NULL DEFAULT '')`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER NOT NULL, amount REAL NOT NULL, deleted INTEGER NOT NULL DEFAULT 0, version INTEGER NOT NULL DEFAULT 0)`,
		`INSERT INTO users (name, age, tenant_id) VALUES ('a', 20, 'acme'), ('b', NULL, 'acme'), ('c', 31, 'umbrella')`,
		`INSERT INTO orders (user_id, amount, deleted) VALUES (1, 10, 0), (1, 20, 0), (3, 5, 0), (1, 99, 1)`,
	)
	reg := schema.NewRegistry()
	require.NoError(t, reg.HasQueryFilter(reflect.TypeFor[Order](), func(o *expr.Parameter) expr.Expr {
		return expr.Eq(o.Field("Deleted"), false)
	}))
	db, err := client.New(sql.OpenDB(dialect.SQLite, raw), append([]client.Option{client.WithSchema(reg)}, opts...)...)
	require.NoError(t, err)
	return db, raw
}

func byName(u *expr.Parameter) expr.Expr { return u.Field("Name") }

func amount(o *expr.Parameter) expr.Expr { return o.Field("Amount") }

func names(users []User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Name
	}
	return out
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)

	adults, err := client.From[User](db).
		Where(func(u *expr.Parameter) expr.Expr { return expr.GT(u.Field("Age"), 18) }).
		OrderBy(byName).
		All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names(adults))

	last, err := client.From[User](db).OrderByDesc(func(u *expr.Parameter) expr.Expr { return u.Field("ID") }).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", last.Name)

	_, err = client.From[User](db).Where(func(u *expr.Parameter) expr.Expr { return expr.Eq(u.Field("Name"), "z") }).First(ctx)
	assert.True(t, veloq.IsNotFound(err))

	_, err = client.From[User](db).Only(ctx)
	assert.True(t, veloq.IsNotSingular(err))

	b, err := client.From[*User](db).Where(func(u *expr.Parameter) expr.Expr { return expr.Eq(u.Field("Name"), "b") }).Only(ctx)
	require.NoError(t, err)
	assert.Nil(t, b.Age)
	assert.Equal(t, "acme", b.TenantID)

	n, err := client.From[User](db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ok, err := client.From[User](db).Where(func(u *expr.Parameter) expr.Expr { return expr.Eq(u.Field("Name"), "c") }).Exist(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	page, err := client.From[User](db).OrderBy(byName).Paging(2, 2).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names(page))
}

func TestSelectAggregate(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)

	ns, err := client.Select[User, string](client.From[User](db).OrderBy(byName), byName).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ns)

	sum, err := client.Sum[float64](ctx, client.From[Order](db), amount)
	require.NoError(t, err)
	assert.Equal(t, 35.0, sum)

	maxAll, err := client.Max[float64](ctx, client.From[Order](db).IgnoreAllFilters(), amount)
	require.NoError(t, err)
	assert.Equal(t, 99.0, maxAll)

	minAmount, err := client.Min[float64](ctx, client.From[Order](db), amount)
	require.NoError(t, err)
	assert.Equal(t, 5.0, minAmount)

	avg, err := client.Average[float64](ctx, client.From[Order](db), amount)
	require.NoError(t, err)
	assert.InDelta(t, 35.0/3, avg, 1e-6)

	n, err := client.From[Order](db).LongCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	none, err := client.Sum[float64](ctx, client.From[Order](db).Where(func(o *expr.Parameter) expr.Expr {
		return expr.Eq(o.Field("UserID"), int64(2))
	}), amount)
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestGroupByJoinInclude(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)

	totals, err := client.GroupBy[Order, UserTotal](client.From[Order](db), client.Group{
		Key:     func(o *expr.Parameter) expr.Expr { return o.Field("UserID") },
		OrderBy: []client.GroupOrder{{Key: func(k, _ *expr.Parameter) expr.Expr { return k }}},
		Select: func(k, o *expr.Parameter) expr.Expr {
			return expr.NewStruct[UserTotal](expr.Bind("UserID", k), expr.Bind("Total", expr.Sum(o.Field("Amount"))))
		},
	}).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []UserTotal{{UserID: 1, Total: 30}, {UserID: 3, Total: 5}}, totals)

	joined, err := client.Join[User, UserOrder](client.From[User](db),
		func(ps ...*expr.Parameter) expr.Expr {
			return expr.NewStruct[UserOrder](expr.Bind("Name", ps[0].Field("Name")), expr.Bind("Amount", ps[1].Field("Amount")))
		},
		client.InnerJoin(client.From[Order](db), func(ps ...*expr.Parameter) expr.Expr {
			return expr.Eq(ps[0].Field("ID"), ps[1].Field("UserID"))
		}),
	).All(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []UserOrder{{"a", 10}, {"a", 20}, {"c", 5}}, joined)

	users, err := client.From[User](db).OrderBy(byName).Include("Orders").All(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Len(t, users[0].Orders, 2)
	assert.Empty(t, users[1].Orders)
	assert.Len(t, users[2].Orders, 1)
}

func TestContextFilter(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	client.HasQueryFilter[User](db, func(u *expr.Parameter) expr.Expr { return expr.Eq(u.Field("TenantID"), "acme") })

	n, err := client.From[User](db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = client.From[User](db).IgnoreAllFilters().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	affected, err := client.DeleteWhere[User](ctx, db, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected, "bulk statements are filtered")
}

func TestMutations(t *testing.T) {
	ctx := context.Background()
	db, raw := openDB(t)

	u := &User{Name: "d", TenantID: "acme"}
	require.NoError(t, db.Insert(ctx, u))
	assert.Equal(t, int64(4), u.ID)

	o := &Order{UserID: u.ID, Amount: 7}
	require.NoError(t, db.Insert(ctx, o))
	require.NotZero(t, o.ID)

	o.Amount = 8
	n, err := db.Update(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), o.Version)

	var stored float64
	require.NoError(t, raw.QueryRow(`SELECT amount FROM orders WHERE id = ?`, o.ID).Scan(&stored))
	assert.Equal(t, 8.0, stored)

	stale := *o
	stale.Version = 0
	_, err = db.Update(ctx, &stale)
	assert.True(t, veloq.IsConcurrencyError(err))
	assert.ErrorIs(t, err, veloq.ErrConcurrencyConflict)
	_, err = db.Delete(ctx, &stale)
	assert.True(t, veloq.IsConcurrencyError(err))

	n, err = db.Delete(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = client.UpdateWhere[Order](ctx, db,
		func(o *expr.Parameter) expr.Expr { return expr.Eq(o.Field("UserID"), int64(1)) },
		func(o *expr.Parameter) expr.Expr {
			return expr.NewStruct[Order](expr.Bind("Amount", expr.Mul(o.Field("Amount"), 2.0)))
		})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "the deleted order is filtered out")
	sum, err := client.Sum[float64](ctx, client.From[Order](db).Where(func(o *expr.Parameter) expr.Expr {
		return expr.Eq(o.Field("UserID"), int64(1))
	}), amount)
	require.NoError(t, err)
	assert.Equal(t, 60.0, sum)

	n, err = db.InsertRange(ctx, []Order{{UserID: 3, Amount: 1}, {UserID: 3, Amount: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = client.DeleteWhere[Order](ctx, db, func(o *expr.Parameter) expr.Expr { return expr.Eq(o.Field("UserID"), int64(3)) })
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	err = db.Insert(ctx, &User{TenantID: "acme"})
	require.NoError(t, err, "empty strings are written to non-nullable members")
	err = db.Insert(ctx, User{})
	assert.Error(t, err)
}

func TestTx(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	boom := errors.New("boom")

	err := db.Tx(ctx, func(tx *client.DB) error {
		require.NoError(t, tx.Insert(ctx, &User{Name: "x"}))
		n, err := client.From[User](tx).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.ErrorIs(t, tx.Tx(ctx, func(*client.DB) error { return nil }), veloq.ErrTxStarted)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	n, err := client.From[User](db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, db.Tx(ctx, func(tx *client.DB) error {
		return tx.Insert(ctx, &User{Name: "y"})
	}))
	n, err = client.From[User](db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	cache := veloq.NewMemoryCache()
	db, raw := openDB(t, client.WithCache(cache, time.Minute))

	n, err := client.From[User](db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, cache.Len())

	_, err = raw.Exec(`INSERT INTO users (name) VALUES ('raw')`)
	require.NoError(t, err)
	n, err = client.From[User](db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "served from the cache")

	require.NoError(t, db.Insert(ctx, &User{Name: "e"}))
	assert.Zero(t, cache.Len())
	n, err = client.From[User](db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	users, err := client.From[User](db).OrderBy(byName).All(ctx)
	require.NoError(t, err)
	cached, err := client.From[User](db).OrderBy(byName).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, users, cached)

	_, err = client.Join[User, UserOrder](client.From[User](db),
		func(ps ...*expr.Parameter) expr.Expr {
			return expr.NewStruct[UserOrder](expr.Bind("Name", ps[0].Field("Name")), expr.Bind("Amount", ps[1].Field("Amount")))
		},
		client.InnerJoin(client.From[Order](db), func(ps ...*expr.Parameter) expr.Expr {
			return expr.Eq(ps[0].Field("ID"), ps[1].Field("UserID"))
		}),
	).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len(), "joins are not cached")
}

func TestDialectOf(t *testing.T) {
	for _, name := range []string{"sqlite", "sqlite3", "mysql", "postgres", "sqlserver", "oracle", "dm"} {
		d, err := client.DialectOf(name)
		require.NoError(t, err, name)
		assert.True(t, strings.HasPrefix(name, d.Name), name)
	}
	_, err := client.DialectOf("db2")
	assert.Error(t, err)
}

func TestStatsDriver(t *testing.T) {
	ctx := context.Background()
	_, raw := openDB(t)
	stats := sql.NewStatsDriver(sql.OpenDB(dialect.SQLite, raw))
	db, err := client.New(stats, client.WithCache(veloq.NewMemoryCache(), time.Minute))
	require.NoError(t, err)

	for range 3 {
		_, err := client.From[User](db).Count(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, db.Insert(ctx, &User{Name: "f"}))
	_, err = client.From[User](db).Count(ctx)
	require.NoError(t, err)

	s := stats.QueryStats().Stats()
	assert.Equal(t, int64(3), s.TotalQueries, "two reads and the RETURNING insert")
	assert.Zero(t, s.Errors)
}

func TestPolicy(t *testing.T) {
	db, _ := openDB(t, client.WithPolicy(privacy.Policy{
		Query: privacy.QueryPolicy{privacy.TenantFilter("TenantID")},
		Mutation: privacy.MutationPolicy{
			privacy.OnMutationOperation(privacy.TenantFilter("TenantID"), veloq.OpUpdate|veloq.OpDelete),
			privacy.TenantRule("TenantID"),
		},
	}))
	acme := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1", TenantID: "acme"})
	umbrella := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "3", TenantID: "umbrella"})

	_, err := client.From[User](db).Count(context.Background())
	assert.True(t, veloq.IsPrivacyError(err))
	assert.ErrorIs(t, err, privacy.Deny)

	n, err := client.From[User](db).Count(acme)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = client.From[User](db).IgnoreAllFilters().Count(umbrella)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "policy filters are not ignored")

	err = db.Insert(acme, &User{Name: "x", TenantID: "umbrella"})
	assert.True(t, veloq.IsPrivacyError(err))
	require.NoError(t, db.Insert(acme, &User{Name: "y", TenantID: "acme"}))

	deleted, err := db.Delete(acme, &User{ID: 3, Name: "c", TenantID: "acme"})
	require.NoError(t, err)
	assert.Zero(t, deleted, "the row of another tenant is filtered out")

	deleted, err = client.DeleteWhere[User](acme, db, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	n, err = client.From[User](db).Count(umbrella)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
