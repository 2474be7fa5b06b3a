// Package dialect names the supported SQL dialects and defines the driver
// contracts used to execute compiled commands.
//
// # Supported Dialects
//
//	dialect.SQLServer = "sqlserver"
//	dialect.MySQL     = "mysql"
//	dialect.Postgres  = "postgres"
//	dialect.SQLite    = "sqlite"
//	dialect.Oracle    = "oracle"
//	dialect.Dameng    = "dm"
//
// Each name has a generator configuration in a subpackage of dialect
// (dialect/sqlserver, dialect/mysql, ...) built on the shared generator in
// dialect/sql.
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Tx adds Commit and Rollback. Both Driver and Tx implement ExecQuerier,
// which is all the batched insert executor needs: it opens an implicit
// transaction only when it is handed a Driver.
//
// # Usage
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//	db := client.New(drv, sqlite.Dialect)
package dialect
