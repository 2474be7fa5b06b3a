// Package sql renders database expression trees into SQL commands and
// executes them through database/sql.
//
// # Generation
//
// A Dialect describes one SQL variant: identifier quoting, parameter
// placeholders, paging, string concatenation, casts and the handlers that
// translate host methods and properties. The dialect packages under
// dialect/ each expose a configured *Dialect.
//
//	cmd, err := sql.Translate(sqlserver.Dialect, sql.Options{BindByName: true}, query)
//	if err != nil {
//		return err
//	}
//	rows, err := sql.QueryCommand(ctx, drv, cmd)
//
// Constants of numeric and boolean types render inline; other values are
// bound as parameters. With BindByName, equal values share one named
// parameter. Otherwise every occurrence is bound positionally.
//
// # Paging
//
// A query with Skip renders with one of three strategies:
//
//   - PagingRowNumber numbers the rows in a derived table and filters the range
//   - PagingOffsetFetch renders OFFSET n ROWS FETCH NEXT m ROWS ONLY
//   - PagingLimitOffset renders LIMIT m OFFSET n
//
// Take without Skip renders TOP, LIMIT or FETCH FIRST as the dialect does.
//
// # Handlers
//
// Method calls and member accesses are translated by the handlers of the
// dialect Registry. The last registered handler of a name is asked first,
// so applications override the built-in translations at runtime:
//
//	sqlserver.SetMethodHandler("Soundex", sql.MethodTemplate("", "SOUNDEX({0})"))
//
// # Batches
//
// PlanInsert splits a large insert into commands bounded by the batch size
// and the parameter limit of the driver. ExecBatches runs them in an
// implicit transaction when there is more than one.
//
// # Drivers
//
// Driver, Conn and Tx wrap database/sql with the dialect.ExecQuerier
// interface. StatsDriver and DebugDriver decorate a driver with query
// statistics and logging.
package sql
