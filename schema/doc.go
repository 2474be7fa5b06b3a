// Package schema describes how Go entity types map to tables.
//
// Descriptors are derived from struct tags and cached in a Registry:
//
//	type Order struct {
//	    ID         int64     `veloq:"id,pk,autoincrement"`
//	    CustomerID int64     `veloq:"customer_id"`
//	    Note       *string   `veloq:"note,size=200"`
//	    Version    int64     `veloq:"version,rowversion"`
//	    Customer   *Customer `veloq:",fk=CustomerID"`
//	    Internal   string    `veloq:"-"`
//	}
//
// Tag options:
//
//	pk             part of the primary key
//	autoincrement  generated by the database on insert
//	rowversion     optimistic concurrency token
//	seq=NAME       value taken from the named sequence on insert
//	nullable       accepts NULL even though the Go type is not a pointer
//	required       rejects NULL even though the Go type is a pointer
//	ansi           non-unicode string parameter
//	size=N         parameter size hint
//	nav            navigation to another entity
//	fk=Member      foreign key member of a navigation
//
// Untagged columns are named after the field in snake case and tables
// after the plural of the type name. A type implementing Tabler names its
// own table.
//
// Global filters registered with HasQueryFilter are applied to every query
// rooted at the entity unless the query ignores filters.
package schema
