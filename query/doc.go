// Package query compiles chains of query operations into database
// expression trees.
//
// A Query is an immutable chain of operations rooted at an entity type:
//
//	q := query.From(reflect.TypeFor[User]()).
//	    Where(expr.Lambda1(userType, adults)).
//	    OrderBy(expr.Lambda1(userType, byName), false).
//	    Paging(2, 20)
//
// A Compiler folds the chain through the query state machine. Every
// operation consumes the current Model and returns a new one; operations
// that cannot compose with the current SQL shape, such as a projection
// after Take, first turn the shape into a derived table. The result is a
// dbexpr.SqlQuery together with an Activator describing how to build Go
// values from the projected columns.
//
// The package also builds the INSERT, UPDATE and DELETE trees of entity
// values and of predicate driven bulk statements.
package query
