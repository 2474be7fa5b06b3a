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
	"github.com/syssam/veloq/dialect/sqlserver"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/query"
	"github.com/syssam/veloq/schema"
)

type Invoice struct {
	No      int64   `veloq:"no,pk,seq=invoice_seq"`
	Memo    *string `veloq:"memo"`
	Code    string  `veloq:"code,nullable"`
	Title   string  `veloq:"title"`
	Version int64   `veloq:"version,rowversion"`
}

type Token struct {
	ID    int64  `veloq:"id,pk"`
	Stamp []byte `veloq:"stamp,rowversion"`
}

func entity(t *testing.T, v any) *schema.Entity {
	t.Helper()
	e, err := schema.NewRegistry().Of(reflect.TypeOf(v))
	require.NoError(t, err)
	return e
}

func translate(t *testing.T, d *sql.Dialect, e dbexpr.Expr) *sql.Command {
	t.Helper()
	cmd, err := sql.Translate(d, sql.Options{}, e)
	require.NoError(t, err)
	return cmd
}

func TestBuildInsert(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		age := 30
		plan, err := query.BuildInsert(entity(t, User{}), reflect.ValueOf(&User{Name: "ann", Age: &age}))
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "age"}, plan.Insert.Columns)
		assert.Equal(t, []string{"id"}, plan.Insert.Returns)
		require.Len(t, plan.Returns, 1)
		assert.Equal(t, "ID", plan.Returns[0].Name)

		cmd := translate(t, sqlite.Dialect, plan.Insert)
		assert.Equal(t, `INSERT INTO "users"("name","age") VALUES(?,?) RETURNING "id"`, cmd.Text)
		assert.Equal(t, []any{"ann", 30}, cmd.Args())

		cmd = translate(t, sqlserver.Dialect, plan.Insert)
		assert.Contains(t, cmd.Text, "OUTPUT INSERTED.[id]")
	})
	t.Run("sequence", func(t *testing.T) {
		plan, err := query.BuildInsert(entity(t, Invoice{}), reflect.ValueOf(Invoice{Title: "t"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"no", "title", "version"}, plan.Insert.Columns)
		call, ok := plan.Insert.Rows[0][0].(*dbexpr.MethodCall)
		require.True(t, ok)
		assert.Equal(t, dbexpr.OwnerSequence, call.Owner)
		assert.Equal(t, []string{"no"}, plan.Insert.Returns)
	})
	t.Run("explicit sequence value", func(t *testing.T) {
		plan, err := query.BuildInsert(entity(t, Invoice{}), reflect.ValueOf(Invoice{No: 9, Title: "t"}))
		require.NoError(t, err)
		assert.Empty(t, plan.Returns)
		p, ok := plan.Insert.Rows[0][0].(*dbexpr.Parameter)
		require.True(t, ok)
		assert.Equal(t, int64(9), p.Value)
	})
	t.Run("empty nullable string is left out", func(t *testing.T) {
		plan, err := query.BuildInsert(entity(t, Invoice{}), reflect.ValueOf(Invoice{No: 1, Code: ""}))
		require.NoError(t, err)
		assert.NotContains(t, plan.Insert.Columns, "code")
		assert.NotContains(t, plan.Insert.Columns, "memo")
	})
	t.Run("at least one column", func(t *testing.T) {
		type Note struct {
			ID   int64   `veloq:"id,pk,autoincrement"`
			Text *string `veloq:"text"`
		}
		plan, err := query.BuildInsert(entity(t, Note{}), reflect.ValueOf(Note{}))
		require.NoError(t, err)
		assert.Equal(t, []string{"text"}, plan.Insert.Columns)
		assert.True(t, dbexpr.IsNullConstant(plan.Insert.Rows[0][0]) || isNullParam(plan.Insert.Rows[0][0]))
	})
	t.Run("null constraint", func(t *testing.T) {
		type Strict struct {
			ID   int64   `veloq:"id,pk"`
			Name *string `veloq:"name,required"`
		}
		_, err := query.BuildInsert(entity(t, Strict{}), reflect.ValueOf(Strict{ID: 1}))
		var ne *veloq.NullConstraintError
		assert.ErrorAs(t, err, &ne)
	})
	t.Run("wrong type", func(t *testing.T) {
		_, err := query.BuildInsert(entity(t, User{}), reflect.ValueOf(City{}))
		assert.Error(t, err)
	})
}

func isNullParam(e dbexpr.Expr) bool {
	p, ok := e.(*dbexpr.Parameter)
	return ok && p.Value == nil
}

func TestBuildInsertRange(t *testing.T) {
	users := []reflect.Value{reflect.ValueOf(User{Name: "a"}), reflect.ValueOf(&User{Name: "b"})}
	table, cols, rows, err := query.BuildInsertRange(entity(t, User{}), users)
	require.NoError(t, err)
	assert.Equal(t, "users", table.Name)
	assert.Equal(t, []string{"name", "age", "city_id"}, cols)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Len(t, r, len(cols))
	}

	cmds, err := sql.PlanInsert(sqlite.Dialect, sql.Options{}, table, cols, rows)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, `INSERT INTO "users"("name","age","city_id") VALUES(?,NULL,NULL),(?,NULL,NULL)`, cmds[0].Text)
}

func TestBuildUpdate(t *testing.T) {
	t.Run("numeric row version", func(t *testing.T) {
		plan, err := query.BuildUpdate(entity(t, Invoice{}), reflect.ValueOf(Invoice{No: 3, Title: "x", Version: 4}))
		require.NoError(t, err)
		assert.Equal(t, int64(5), plan.NewVersion)
		cmd := translate(t, sqlite.Dialect, plan.Update)
		assert.Equal(t, `UPDATE "invoices" SET "memo"=NULL,"code"=?,"title"=?,"version"=? WHERE ("no" = ? AND "version" = ?)`, cmd.Text)
		assert.Equal(t, []any{"", "x", int64(5), int64(3), int64(4)}, cmd.Args())
	})
	t.Run("binary row version", func(t *testing.T) {
		plan, err := query.BuildUpdate(entity(t, Token{}), reflect.ValueOf(Token{ID: 1, Stamp: []byte{1}}))
		require.NoError(t, err)
		assert.Nil(t, plan.NewVersion)
		assert.NotNil(t, plan.RowVersion)
		assert.Empty(t, plan.Update.Set)
	})
	t.Run("no primary key", func(t *testing.T) {
		type Loose struct {
			Name string `veloq:"name"`
		}
		_, err := query.BuildUpdate(entity(t, Loose{}), reflect.ValueOf(Loose{}))
		assert.ErrorIs(t, err, veloq.ErrNoPrimaryKey)
	})
}

func TestBuildUpdateWhere(t *testing.T) {
	c := newCompiler(t)
	e := entity(t, User{})
	where := expr.Lambda1(userType, func(u *expr.Parameter) expr.Expr { return expr.Eq(u.Field("ID"), int64(1)) })

	t.Run("setter", func(t *testing.T) {
		setter := expr.Lambda1(userType, func(u *expr.Parameter) expr.Expr {
			return expr.NewStruct[User](
				expr.Bind("Name", expr.Concat(u.Field("Name"), "!")),
				expr.Bind("Age", expr.Null(reflect.TypeFor[*int]())),
			)
		})
		u, err := c.BuildUpdateWhere(e, where, setter)
		require.NoError(t, err)
		cmd := translate(t, sqlite.Dialect, u)
		assert.Equal(t, `UPDATE "users" SET "name"=("name" || ?),"age"=NULL WHERE "id" = 1`, cmd.Text)
	})
	for _, member := range []string{"ID", "Missing"} {
		t.Run("rejects "+member, func(t *testing.T) {
			setter := expr.Lambda1(userType, func(u *expr.Parameter) expr.Expr {
				return expr.NewStruct[User](expr.Bind(member, int64(2)))
			})
			_, err := c.BuildUpdateWhere(e, where, setter)
			var me *veloq.MappingError
			assert.ErrorAs(t, err, &me)
		})
	}
	t.Run("null on a required member", func(t *testing.T) {
		setter := expr.Lambda1(userType, func(u *expr.Parameter) expr.Expr {
			return expr.NewStruct[User](expr.Bind("Name", expr.Null(reflect.TypeFor[*string]())))
		})
		_, err := c.BuildUpdateWhere(e, where, setter)
		var ne *veloq.NullConstraintError
		assert.ErrorAs(t, err, &ne)
	})
}

func TestBuildDelete(t *testing.T) {
	d, err := query.BuildDelete(entity(t, Invoice{}), reflect.ValueOf(&Invoice{No: 2, Version: 7}))
	require.NoError(t, err)
	cmd := translate(t, sqlite.Dialect, d)
	assert.Equal(t, `DELETE FROM "invoices" WHERE ("no" = ? AND "version" = ?)`, cmd.Text)

	t.Run("where with global filters", func(t *testing.T) {
		c := newCompiler(t)
		oe, err := c.Schema.Of(orderType)
		require.NoError(t, err)
		d, err := c.BuildDeleteWhere(oe, expr.Lambda1(orderType, func(o *expr.Parameter) expr.Expr {
			return expr.LT(o.Field("Amount"), 1.0)
		}))
		require.NoError(t, err)
		cmd := translate(t, sqlite.Dialect, d)
		assert.Equal(t, `DELETE FROM "orders" WHERE ("amount" < 1 AND "deleted" = 0)`, cmd.Text)
	})
}

func TestFilterCondition(t *testing.T) {
	c := newCompiler(t)
	oe, err := c.Schema.Of(orderType)
	require.NoError(t, err)
	cond, err := c.FilterCondition(oe, func(o *expr.Parameter) expr.Expr { return expr.Eq(o.Field("UserID"), int64(3)) })
	require.NoError(t, err)
	cmd := translate(t, sqlite.Dialect, &dbexpr.Delete{Table: &dbexpr.Table{Name: "orders"}, Condition: cond})
	assert.Equal(t, `DELETE FROM "orders" WHERE "user_id" = 3`, cmd.Text, "filters are not added")

	cond, err = c.FilterCondition(oe)
	require.NoError(t, err)
	assert.Nil(t, cond)
}
