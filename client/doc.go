// Package client runs typed queries and statements against a database.
//
// A DB wraps a dialect.Driver. Queries are built with From and compiled,
// translated for the dialect of the data source and materialized into
// values of the query's row type:
//
//	db, err := client.Open(dialect.SQLite, "file:app.db")
//	if err != nil {
//	    return err
//	}
//	client.HasQueryFilter[Order](db, func(o *expr.Parameter) expr.Expr {
//	    return expr.Eq(o.Field("Deleted"), false)
//	})
//	orders, err := client.From[Order](db).
//	    Where(func(o *expr.Parameter) expr.Expr { return expr.GT(o.Field("Amount"), 100.0) }).
//	    OrderByDesc(func(o *expr.Parameter) expr.Expr { return o.Field("ID") }).
//	    Paging(1, 20).
//	    All(ctx)
//
// Insert, InsertRange, Update and Delete write entities; UpdateWhere and
// DeleteWhere write the rows matching a predicate.
//
// With WithRouter or FromConfig, statements over sharded tables are routed
// by the key values their conditions constrain. A query routed to several
// tables runs on all of them. Their rows are merged by the query ordering
// and deduplicated for Distinct; counts, sums, minimums and maximums are
// combined. Paging, grouping and averages across shards are rejected.
//
// WithPolicy evaluates a privacy policy before every statement. Filters
// added by the policy through privacy.Filter narrow the rows a query reads
// and an update or delete writes.
package client
