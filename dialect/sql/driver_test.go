package sql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/syssam/veloq/dialect"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectName(t *testing.T) {
	tests := []struct {
		driver  string
		dialect string
	}{
		{"postgres", dialect.Postgres},
		{"pgx", dialect.Postgres},
		{"mysql", dialect.MySQL},
		{"sqlite3", dialect.SQLite},
		{"sqlserver", dialect.SQLServer},
		{"mssql", dialect.SQLServer},
		{"oracle", dialect.Oracle},
		{"godror", dialect.Oracle},
		{"dm", dialect.Dameng},
		{"dameng", dialect.Dameng},
		{"custom", "custom"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			assert.Equal(t, tt.dialect, DialectName(tt.driver))
			assert.Equal(t, tt.dialect, OpenDB(tt.driver, db).Dialect())
		})
	}
}

func TestDriverQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	t.Run("args", func(t *testing.T) {
		mock.ExpectQuery(`SELECT "name" FROM "users" WHERE "id" = \$1`).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice").AddRow(nil))
		rows := &Rows{}
		require.NoError(t, drv.Query(context.Background(), `SELECT "name" FROM "users" WHERE "id" = $1`, []any{1}, rows))
		var names []NullString
		for rows.Next() {
			var s NullString
			require.NoError(t, rows.Scan(&s))
			names = append(names, s)
		}
		require.NoError(t, rows.Close())
		assert.Equal(t, []NullString{{String: "Alice", Valid: true}, {}}, names)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("database error"))
		err := drv.Query(context.Background(), "SELECT 1", []any{}, &Rows{})
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("target", func(t *testing.T) {
		var rows sql.Rows
		err := drv.Query(context.Background(), "SELECT 1", []any{}, &rows)
		assert.ErrorContains(t, err, "expect *sql.Rows")
		err = drv.Query(context.Background(), "SELECT 1", 1, &Rows{})
		assert.ErrorContains(t, err, "expect []any")
	})
}

func TestDriverExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	mock.ExpectExec(`UPDATE "users" SET "name"=\$1 WHERE "id" = \$2`).
		WithArgs("Alice", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	var res Result
	require.NoError(t, drv.Exec(context.Background(), `UPDATE "users" SET "name"=$1 WHERE "id" = $2`, []any{"Alice", 1}, &res))
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, drv.Exec(context.Background(), `DELETE FROM "users"`, []any{}, nil))

	err = drv.Exec(context.Background(), `DELETE FROM "users"`, []any{}, &Rows{})
	assert.ErrorContains(t, err, "expect *sql.Result")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Exec(context.Background(), `INSERT INTO "users" DEFAULT VALUES`, []any{}, nil))
		rows := &Rows{}
		require.NoError(t, tx.Query(context.Background(), `SELECT "id" FROM "users"`, []any{}, rows))
		require.NoError(t, rows.Close())
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("error"))
		mock.ExpectRollback()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.Error(t, tx.Exec(context.Background(), `INSERT INTO "users" DEFAULT VALUES`, []any{}, nil))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
		_, err := drv.Tx(context.Background())
		assert.ErrorContains(t, err, "dialect/sql: begin")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExecCommand(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.SQLServer, db)

	cmd := &Command{
		Text:   "UPDATE [users] SET [name]=@P_0 WHERE [id] = 1",
		Params: []*Param{{Name: "P_0", Value: "Alice"}},
		Named:  true,
	}
	mock.ExpectExec(`UPDATE \[users\]`).
		WithArgs(sql.Named("P_0", "Alice")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	res, err := ExecCommand(context.Background(), drv, cmd)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mock.ExpectExec("INSERT").WillReturnError(errors.New("pq: duplicate key value violates unique constraint \"users_pkey\""))
	_, err = ExecCommand(context.Background(), drv, &Command{Text: "INSERT INTO users DEFAULT VALUES"})
	require.Error(t, err)
	assert.True(t, IsUniqueConstraintError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryCommand(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.MySQL, db)

	mock.ExpectQuery("SELECT `T`.`id` FROM `users` AS `T` WHERE `T`.`age` > \\?").
		WithArgs(18).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	rows, err := QueryCommand(context.Background(), drv, &Command{
		Text:   "SELECT `T`.`id` FROM `users` AS `T` WHERE `T`.`age` > ?",
		Params: []*Param{{Value: 18}},
	})
	require.NoError(t, err)
	var ids []int
	for rows.Next() {
		var id int
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Close())
	assert.Equal(t, []int{1, 2}, ids)

	mock.ExpectQuery("SELECT").WillReturnError(context.Canceled)
	_, err = QueryCommand(context.Background(), drv, &Command{Text: "SELECT 1"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func BenchmarkDriver(b *testing.B) {
	db, mock, err := sqlmock.New()
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)
	cmd := &Command{Text: "SELECT 1"}

	b.Run("QueryCommand", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
			rows, err := QueryCommand(context.Background(), drv, cmd)
			if err == nil {
				rows.Close()
			}
		}
	})
}
