package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
)

func TestInsert(t *testing.T) {
	users := &dbexpr.Table{Name: "users"}
	rows := [][]Expr{
		{dbexpr.NewParameter("a", tString), dbexpr.NewConstant(1)},
		{dbexpr.NewParameter("b", tString), dbexpr.NewConstant(2)},
	}

	t.Run("output", func(t *testing.T) {
		cmd := translate(t, bracketDialect(), Options{BindByName: true}, &dbexpr.Insert{Table: users, Columns: []string{"name", "age"}, Rows: rows[:1], Returns: []string{"id"}})
		assert.Equal(t, "INSERT INTO [users]([name],[age]) OUTPUT INSERTED.[id] VALUES(@P_0,1)", cmd.Text)
		assert.Equal(t, []string{"id"}, cmd.Returns)
		assert.Equal(t, ReturnOutput, cmd.ReturnStyle)
	})
	t.Run("returning", func(t *testing.T) {
		cmd := translate(t, pipesDialect(), Options{}, &dbexpr.Insert{Table: users, Columns: []string{"name", "age"}, Rows: rows, Returns: []string{"id"}})
		assert.Equal(t, `INSERT INTO "users"("name","age") VALUES($1,1),($2,2) RETURNING "id"`, cmd.Text)
		assert.Equal(t, []any{"a", "b"}, cmd.Args())
	})
	t.Run("default values", func(t *testing.T) {
		cmd := translate(t, bracketDialect(), Options{}, &dbexpr.Insert{Table: users, Returns: []string{"id"}})
		assert.Equal(t, "INSERT INTO [users] OUTPUT INSERTED.[id] DEFAULT VALUES", cmd.Text)
	})
	t.Run("insert all", func(t *testing.T) {
		d := pipesDialect()
		d.InsertAll = true
		d.Ordinal = false
		d.Positional = func(i int) string { return ":" + string(rune('1'+i)) }
		cmd := translate(t, d, Options{}, &dbexpr.Insert{Table: users, Columns: []string{"name", "age"}, Rows: rows})
		assert.Equal(t, `INSERT ALL INTO "users"("name","age") VALUES(:1,1) INTO "users"("name","age") VALUES(:2,2) SELECT 1 FROM DUAL`, cmd.Text)

		_, err := Translate(d, Options{}, &dbexpr.Insert{Table: users, Columns: []string{"name", "age"}, Rows: rows, Returns: []string{"id"}})
		assert.True(t, veloq.IsTranslationError(err))
	})
	t.Run("returning into", func(t *testing.T) {
		d := pipesDialect()
		d.Ordinal = false
		d.SupportsNamed = true
		d.ParamPrefix = ":"
		d.Returning = ReturnInto
		cmd := translate(t, d, Options{BindByName: true}, &dbexpr.Insert{Table: users, Columns: []string{"name"}, Rows: rows[:1], Returns: []string{"id"}})
		assert.Equal(t, `INSERT INTO "users"("name") VALUES(:P_0) RETURNING "id" INTO :R_0`, cmd.Text)
		require.Len(t, cmd.Params, 2)
		assert.True(t, cmd.Params[1].Output)
		assert.Equal(t, []any{nil}, cmd.Outputs())
	})
	t.Run("no read back", func(t *testing.T) {
		d := pipesDialect()
		d.Returning = ReturnNone
		_, err := Translate(d, Options{}, &dbexpr.Insert{Table: users, Columns: []string{"name"}, Rows: rows[:1], Returns: []string{"id"}})
		assert.True(t, veloq.IsTranslationError(err))
	})
}

func TestUpdate(t *testing.T) {
	users := &dbexpr.Table{Name: "users", Schema: "app"}
	u := &dbexpr.Update{
		Table:     users,
		Set:       []dbexpr.ColumnValue{{Column: "name", Value: dbexpr.NewParameter("x", tString)}, {Column: "age", Value: dbexpr.NewBinary(dbexpr.OpAdd, dbexpr.NewColumnAccess("", "age", tInt), dbexpr.NewConstant(1), tInt)}},
		Condition: dbexpr.Equal(dbexpr.NewColumnAccess("", "id", tInt), dbexpr.NewConstant(7)),
	}
	cmd := translate(t, bracketDialect(), Options{BindByName: true}, u)
	assert.Equal(t, "UPDATE [app].[users] SET [name]=@P_0,[age]=([age] + 1) WHERE [id] = 7", cmd.Text)

	u.Returns = []string{"age"}
	cmd = translate(t, bracketDialect(), Options{BindByName: true}, u)
	assert.Equal(t, "UPDATE [app].[users] SET [name]=@P_0,[age]=([age] + 1) OUTPUT INSERTED.[age] WHERE [id] = 7", cmd.Text)

	_, err := Translate(questionDialect(), Options{}, u)
	assert.True(t, veloq.IsTranslationError(err))

	_, err = Translate(bracketDialect(), Options{}, &dbexpr.Update{Table: users})
	assert.True(t, veloq.IsTranslationError(err))
}

func TestDelete(t *testing.T) {
	d := &dbexpr.Delete{Table: &dbexpr.Table{Name: "users"}, Condition: dbexpr.IsNull(dbexpr.NewColumnAccess("", "deleted_at", tStringP))}
	assert.Equal(t, `DELETE FROM "users" WHERE "deleted_at" IS NULL`, translate(t, pipesDialect(), Options{}, d).Text)
	assert.Equal(t, "DELETE FROM `users`", translate(t, questionDialect(), Options{}, &dbexpr.Delete{Table: &dbexpr.Table{Name: "users"}}).Text)
}
