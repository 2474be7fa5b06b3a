package mysql

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/internal/dialecttest"
)

func TestGolden(t *testing.T) {
	dialecttest.Golden(t, Dialect)
}

func TestValidateDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		wantErr string
	}{
		{name: "valid", dsn: "app:secret@tcp(localhost:3306)/shop?parseTime=true"},
		{name: "missing parseTime", dsn: "app:secret@tcp(localhost:3306)/shop", wantErr: "parseTime"},
		{name: "malformed", dsn: "localhost:3306", wantErr: "invalid data source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDSN(tt.dsn)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NotContains(t, err.Error(), "secret")
		})
	}
}

func TestExpressions(t *testing.T) {
	tm := reflect.TypeFor[time.Time]()
	a := dbexpr.NewColumnAccess("T", "a", tm)
	b := dbexpr.NewColumnAccess("T", "b", tm)
	tests := []struct {
		name string
		e    dbexpr.Expr
		want string
	}{
		{
			name: "millisecond difference",
			e:    dbexpr.NewMethodCall(nil, expr.OwnerSQL, "DiffMilliseconds", []dbexpr.Expr{a, b}, reflect.TypeFor[int]()),
			want: "(TIMESTAMPDIFF(MICROSECOND,`T`.`a`,`T`.`b`) DIV 1000)",
		},
		{
			name: "add months",
			e:    dbexpr.NewMethodCall(a, expr.OwnerTime, "AddMonths", []dbexpr.Expr{dbexpr.NewConstant(2)}, tm),
			want: "DATE_ADD(`T`.`a`,INTERVAL 2 MONTH)",
		},
		{
			name: "utc now",
			e:    dbexpr.NewMemberAccess(nil, expr.OwnerTime, "UTCNow", tm),
			want: "UTC_TIMESTAMP()",
		},
		{
			name: "char length",
			e:    dbexpr.NewMemberAccess(dbexpr.NewColumnAccess("T", "s", reflect.TypeFor[string]()), expr.OwnerStrings, "Length", reflect.TypeFor[int]()),
			want: "CHAR_LENGTH(`T`.`s`)",
		},
		{
			name: "bool literal",
			e:    dbexpr.NewConstant(false),
			want: "FALSE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := sql.Translate(Dialect, sql.Options{}, tt.e)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd.Text)
		})
	}
}

func TestBindByNameIsPositional(t *testing.T) {
	p := dbexpr.NewParameter("x", reflect.TypeFor[string]())
	cmd, err := sql.Translate(Dialect, sql.Options{BindByName: true}, dbexpr.And(
		dbexpr.Equal(dbexpr.NewColumnAccess("T", "a", reflect.TypeFor[string]()), p),
		dbexpr.Equal(dbexpr.NewColumnAccess("T", "b", reflect.TypeFor[string]()), p),
	))
	require.NoError(t, err)
	assert.Equal(t, "(`T`.`a` = ? AND `T`.`b` = ?)", cmd.Text)
	assert.Len(t, cmd.Args(), 2)
	assert.False(t, cmd.Named)
}

func TestInsertReadsLastInsertID(t *testing.T) {
	cmd, err := sql.Translate(Dialect, sql.Options{}, &dbexpr.Insert{
		Table:   &dbexpr.Table{Name: "users"},
		Returns: []string{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `users` () VALUES()", cmd.Text)
	assert.Equal(t, sql.ReturnLastInsertID, cmd.ReturnStyle)
}
