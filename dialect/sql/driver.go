package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/syssam/veloq/dialect"
)

// driverDialects maps database/sql driver names that do not start with a
// dialect name.
var driverDialects = map[string]string{
	"mssql":  dialect.SQLServer,
	"pgx":    dialect.Postgres,
	"godror": dialect.Oracle,
	"oci8":   dialect.Oracle,
	"dameng": dialect.Dameng,
}

// DialectName returns the dialect of a database/sql driver name. Names
// such as "sqlite3" or "postgres-otel" map to the dialect they start with.
// An unknown name is returned as is.
func DialectName(driverName string) string {
	if d, ok := driverDialects[driverName]; ok {
		return d
	}
	for _, name := range dialect.Names {
		if strings.HasPrefix(driverName, name) {
			return name
		}
	}
	return driverName
}

// Driver is a dialect.Driver over a database/sql pool.
type Driver struct {
	Conn
	dialect string
}

// Open opens a pool with the database/sql driver registered under
// driverName and wraps it.
func Open(driverName, source string) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(driverName, db), nil
}

// OpenDB wraps db. driverName selects the dialect.
func OpenDB(driverName string, db *sql.DB) *Driver {
	return &Driver{Conn: Conn{db}, dialect: DialectName(driverName)}
}

// DB returns the underlying pool.
func (d *Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect implements dialect.Driver.
func (d *Driver) Dialect() string { return d.dialect }

// Tx starts a transaction with the default options.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with opts.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &Tx{Conn: Conn{tx}, Tx: tx}, nil
}

// Close closes the pool.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx is a dialect.Tx over a database/sql transaction.
type Tx struct {
	Conn
	driver.Tx
}

// ExecQuerier is the part of *sql.DB and *sql.Tx that Conn runs
// statements on.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier. args is a []any as returned by
// Command.Args.
type Conn struct {
	ExecQuerier
}

// Exec implements dialect.ExecQuerier. v is nil or a *sql.Result.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	switch v := v.(type) {
	case nil:
		if _, err := c.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *sql.Result:
		res, err := c.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements dialect.ExecQuerier. v is a *Rows.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	rows, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	vr.Rows = rows
	return nil
}

var (
	_ dialect.Driver = (*Driver)(nil)
	_ dialect.Tx     = (*Tx)(nil)
)

// ExecCommand executes a compiled command that returns no rows. Driver
// errors are classified.
func ExecCommand(ctx context.Context, ex dialect.ExecQuerier, cmd *Command) (sql.Result, error) {
	var res sql.Result
	if err := ex.Exec(ctx, cmd.Text, cmd.Args(), &res); err != nil {
		return nil, ClassifyError(err)
	}
	return res, nil
}

// QueryCommand executes a compiled command that returns rows. The caller
// closes the rows.
func QueryCommand(ctx context.Context, ex dialect.ExecQuerier, cmd *Command) (*Rows, error) {
	rows := &Rows{}
	if err := ex.Query(ctx, cmd.Text, cmd.Args(), rows); err != nil {
		return nil, ClassifyError(err)
	}
	return rows, nil
}

type (
	// Rows is the scan target of Query.
	Rows struct{ *sql.Rows }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// NullString is an alias to sql.NullString.
	NullString = sql.NullString
	// TxOptions holds the options of Driver.BeginTx.
	TxOptions = sql.TxOptions
)
