// Package dbexpr defines the database expression tree: the relational
// intermediate representation produced by query compilation and consumed
// by the dialect SQL generators.
//
// The node set is closed. Every node implements Accept by calling the one
// Visitor method for its kind, so a generator that misses a node kind does
// not compile. Nodes are immutable once built and may be shared by
// concurrent compilations; generators never write back into them.
package dbexpr

import (
	"reflect"
)

// Expr is a node of the database expression tree.
type Expr interface {
	// Type returns the Go type of the value the node evaluates to.
	Type() reflect.Type
	// Accept calls the Visitor method of the node kind.
	Accept(Visitor)
}

// Visitor has one method per node kind.
type Visitor interface {
	VisitConstant(*Constant)
	VisitParameter(*Parameter)
	VisitColumnAccess(*ColumnAccess)
	VisitTable(*Table)
	VisitMemberAccess(*MemberAccess)
	VisitMethodCall(*MethodCall)
	VisitBinary(*Binary)
	VisitUnary(*Unary)
	VisitConvert(*Convert)
	VisitCoalesce(*Coalesce)
	VisitCaseWhen(*CaseWhen)
	VisitIn(*In)
	VisitExists(*Exists)
	VisitAggregate(*Aggregate)
	VisitSubquery(*Subquery)
	VisitFromTable(*FromTable)
	VisitJoinTable(*JoinTable)
	VisitSqlQuery(*SqlQuery)
	VisitInsert(*Insert)
	VisitUpdate(*Update)
	VisitDelete(*Delete)
}

// DbType is the database type hint of a parameter.
type DbType int

// Database type hints.
const (
	DbTypeUnspecified DbType = iota
	DbTypeString
	DbTypeAnsiString
	DbTypeBool
	DbTypeInt16
	DbTypeInt32
	DbTypeInt64
	DbTypeDecimal
	DbTypeFloat
	DbTypeDouble
	DbTypeDateTime
	DbTypeGuid
	DbTypeBinary
)

var dbTypeNames = [...]string{"Unspecified", "String", "AnsiString", "Bool", "Int16", "Int32", "Int64", "Decimal", "Float", "Double", "DateTime", "Guid", "Binary"}

// String returns the name of the type hint.
func (t DbType) String() string {
	if int(t) < len(dbTypeNames) {
		return dbTypeNames[t]
	}
	return "DbType(?)"
}

type (
	// Constant is a literal value. Generators decide whether it renders
	// inline or as a bound parameter.
	Constant struct {
		Value any
		typ   reflect.Type
	}

	// Parameter is a value that always renders as a bound parameter.
	Parameter struct {
		Value  any
		DbType DbType
		Size   int
		typ    reflect.Type
	}

	// ColumnAccess references a column of an aliased table or subquery.
	ColumnAccess struct {
		Table  string
		Column string
		typ    reflect.Type
	}

	// Table is a physical table.
	Table struct {
		Name   string
		Schema string
	}

	// MemberAccess is a property of a value, such as the length of a string
	// or the year of a date. X is nil for static members such as Now.
	MemberAccess struct {
		X      Expr
		Owner  string
		Member string
		typ    reflect.Type
	}

	// MethodCall is a host method call translated by a method handler.
	MethodCall struct {
		Object Expr
		Owner  string
		Method string
		Args   []Expr
		Schema string
		typ    reflect.Type
	}

	// Binary is an operator with two operands.
	Binary struct {
		Op          BinaryOp
		Left, Right Expr
		typ         reflect.Type
	}

	// Unary is Not or Negate.
	Unary struct {
		Op  UnaryOp
		X   Expr
		typ reflect.Type
	}

	// Convert casts X to another type.
	Convert struct {
		X   Expr
		typ reflect.Type
	}

	// Coalesce returns Check unless it is NULL, then Replacement.
	Coalesce struct {
		Check       Expr
		Replacement Expr
		typ         reflect.Type
	}

	// CaseWhen is a searched CASE expression.
	CaseWhen struct {
		Whens []WhenThen
		Else  Expr
		typ   reflect.Type
	}

	// WhenThen is one branch of a CaseWhen.
	WhenThen struct {
		When Expr
		Then Expr
	}

	// In tests X against a value list or a single column subquery.
	In struct {
		X      Expr
		Values []Expr
		Query  *SqlQuery
	}

	// Exists tests whether Query returns any row.
	Exists struct {
		Query *SqlQuery
	}

	// Aggregate is an aggregate function over the current group.
	Aggregate struct {
		Func string
		Args []Expr
		typ  reflect.Type
	}

	// Subquery embeds a query as a scalar value or as a derived table.
	Subquery struct {
		Query *SqlQuery
		typ   reflect.Type
	}

	// FromTable is the main table of a query with its join tree.
	FromTable struct {
		Table TableSegment
		Joins []*JoinTable
	}

	// JoinTable joins a table to the tree it hangs from. Joins of the
	// joined table nest below it.
	JoinTable struct {
		JoinType  JoinType
		Table     TableSegment
		Condition Expr
		Joins     []*JoinTable
	}

	// TableSegment is an aliased table or subquery with an optional lock.
	TableSegment struct {
		Body  Expr
		Alias string
		Lock  LockType
	}

	// ColumnSegment is a projected column with its alias.
	ColumnSegment struct {
		Body  Expr
		Alias string
	}

	// Ordering is one ORDER BY key.
	Ordering struct {
		Expr Expr
		Desc bool
	}

	// SqlQuery is the SELECT shape.
	SqlQuery struct {
		Columns       []*ColumnSegment
		Table         *FromTable
		Condition     Expr
		GroupSegments []Expr
		Having        Expr
		Orderings     []Ordering
		Skip          *int
		Take          *int
		Distinct      bool
		typ           reflect.Type
	}

	// ColumnValue assigns a value to a column in INSERT and UPDATE.
	ColumnValue struct {
		Column string
		Value  Expr
	}

	// Insert is an INSERT of one or more rows. Returns lists the columns
	// read back after the insert.
	Insert struct {
		Table   *Table
		Columns []string
		Rows    [][]Expr
		Returns []string
	}

	// Update is an UPDATE statement.
	Update struct {
		Table     *Table
		Set       []ColumnValue
		Condition Expr
		Returns   []string
	}

	// Delete is a DELETE statement.
	Delete struct {
		Table     *Table
		Condition Expr
	}
)

// BinaryOp enumerates binary operators.
type BinaryOp int

// Binary operators.
const (
	OpAnd BinaryOp = iota + 1
	OpOr
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpBitAnd
	OpBitOr
	// OpConcat is string concatenation with host null propagation:
	// a nil operand yields NULL.
	OpConcat
)

// IsComparison reports whether the operator compares two values.
func (o BinaryOp) IsComparison() bool { return o >= OpEqual && o <= OpGreaterThanOrEqual }

// IsLogical reports whether the operator is AND or OR.
func (o BinaryOp) IsLogical() bool { return o == OpAnd || o == OpOr }

// UnaryOp enumerates unary operators.
type UnaryOp int

// Unary operators.
const (
	OpNot UnaryOp = iota + 1
	OpNegate
)

// JoinType enumerates join kinds.
type JoinType int

// Join kinds.
const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
)

// String returns the SQL keyword of the join.
func (j JoinType) String() string {
	switch j {
	case LeftJoin:
		return "LEFT JOIN"
	case RightJoin:
		return "RIGHT JOIN"
	case FullJoin:
		return "FULL JOIN"
	}
	return "INNER JOIN"
}

// LockType enumerates table lock hints.
type LockType int

// Lock hints.
const (
	LockNone LockType = iota
	LockNoLock
	LockUpdLock
)
