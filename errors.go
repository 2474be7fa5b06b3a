package veloq

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a query that expects a row returns none.
	ErrNotFound = errors.New("veloq: entity not found")

	// ErrNotSingular is returned when a query that expects exactly one result
	// returns zero or multiple results.
	ErrNotSingular = errors.New("veloq: entity not singular")

	// ErrUnsupported is returned when an expression, operator or type has no
	// translation rule for the target dialect.
	ErrUnsupported = errors.New("veloq: unsupported construct")

	// ErrMappingViolation is returned when a write touches a member that the
	// mapping forbids writing, such as a primary key or an identity column.
	ErrMappingViolation = errors.New("veloq: mapping violation")

	// ErrNullConstraint is returned when a non-nullable member holds a nil value.
	ErrNullConstraint = errors.New("veloq: null constraint violation")

	// ErrConcurrencyConflict is returned when an update or delete guarded by a
	// row version affects no rows.
	ErrConcurrencyConflict = errors.New("veloq: concurrency conflict")

	// ErrNoPrimaryKey is returned when an operation needs a primary key and the
	// entity does not declare one.
	ErrNoPrimaryKey = errors.New("veloq: entity has no primary key")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("veloq: cannot start a transaction within a transaction")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("veloq: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError represents an error when a query expects a singular result
// but receives zero or multiple results.
type NotSingularError struct {
	label string
	count int // Number of results returned (-1 if unknown)
}

// Error returns the error string.
func (e *NotSingularError) Error() string {
	if e.count >= 0 {
		return fmt.Sprintf("veloq: %s not singular (got %d results, expected 1)", e.label, e.count)
	}
	return fmt.Sprintf("veloq: %s not singular", e.label)
}

// Is reports whether the target error matches NotSingularError.
func (e *NotSingularError) Is(err error) bool {
	return err == ErrNotSingular
}

// Count returns the number of results, or -1 if unknown.
func (e *NotSingularError) Count() int {
	return e.count
}

// NewNotSingularError returns a new NotSingularError with the result count.
func NewNotSingularError(label string, count int) *NotSingularError {
	return &NotSingularError{label: label, count: count}
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// TranslationError is returned when a construct cannot be rendered for a
// dialect. Translation never degrades to different SQL.
type TranslationError struct {
	Dialect   string // Target dialect, empty when dialect independent
	Construct string // The construct that has no translation rule
	Reason    string // Optional detail
}

// Error returns the error string.
func (e *TranslationError) Error() string {
	var sb strings.Builder
	sb.WriteString("veloq: cannot translate ")
	sb.WriteString(e.Construct)
	if e.Dialect != "" {
		sb.WriteString(" for dialect ")
		sb.WriteString(e.Dialect)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	return sb.String()
}

// Is reports whether the target error is ErrUnsupported.
func (e *TranslationError) Is(err error) bool {
	return err == ErrUnsupported
}

// NewTranslationError returns a new TranslationError.
func NewTranslationError(dialect, construct, reason string) *TranslationError {
	return &TranslationError{Dialect: dialect, Construct: construct, Reason: reason}
}

// Unsupportedf returns a dialect independent TranslationError with a formatted construct.
func Unsupportedf(format string, a ...any) *TranslationError {
	return &TranslationError{Construct: fmt.Sprintf(format, a...)}
}

// IsTranslationError returns true if the error is a TranslationError.
func IsTranslationError(err error) bool {
	if err == nil {
		return false
	}
	var e *TranslationError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupported)
}

// MappingError is returned when a write targets a member the mapping protects.
type MappingError struct {
	Entity string
	Member string
	Reason string
}

// Error returns the error string.
func (e *MappingError) Error() string {
	return fmt.Sprintf("veloq: %s.%s: %s", e.Entity, e.Member, e.Reason)
}

// Is reports whether the target error is ErrMappingViolation.
func (e *MappingError) Is(err error) bool {
	return err == ErrMappingViolation
}

// NewMappingError returns a new MappingError.
func NewMappingError(entity, member, reason string) *MappingError {
	return &MappingError{Entity: entity, Member: member, Reason: reason}
}

// IsMappingError returns true if the error is a MappingError.
func IsMappingError(err error) bool {
	if err == nil {
		return false
	}
	var e *MappingError
	return errors.As(err, &e) || errors.Is(err, ErrMappingViolation)
}

// NullConstraintError is returned when a non-nullable member holds nil.
type NullConstraintError struct {
	Entity string
	Member string
}

// Error returns the error string.
func (e *NullConstraintError) Error() string {
	return fmt.Sprintf("veloq: member %s.%s is not nullable", e.Entity, e.Member)
}

// Is reports whether the target error is ErrNullConstraint.
func (e *NullConstraintError) Is(err error) bool {
	return err == ErrNullConstraint
}

// NewNullConstraintError returns a new NullConstraintError.
func NewNullConstraintError(entity, member string) *NullConstraintError {
	return &NullConstraintError{Entity: entity, Member: member}
}

// IsNullConstraintError returns true if the error is a NullConstraintError.
func IsNullConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *NullConstraintError
	return errors.As(err, &e) || errors.Is(err, ErrNullConstraint)
}

// ConcurrencyError is returned when a statement guarded by a row version
// affected no rows.
type ConcurrencyError struct {
	Entity string
	Op     Op
}

// Error returns the error string.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("veloq: %s %s: row version changed or row no longer exists", e.Op, e.Entity)
}

// Is reports whether the target error is ErrConcurrencyConflict.
func (e *ConcurrencyError) Is(err error) bool {
	return err == ErrConcurrencyConflict
}

// NewConcurrencyError returns a new ConcurrencyError.
func NewConcurrencyError(entity string, op Op) *ConcurrencyError {
	return &ConcurrencyError{Entity: entity, Op: op}
}

// IsConcurrencyError returns true if the error is a ConcurrencyError.
func IsConcurrencyError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConcurrencyError
	return errors.As(err, &e) || errors.Is(err, ErrConcurrencyConflict)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("veloq: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
// The error that triggered the rollback is kept as the first wrapped error.
type RollbackError struct {
	Err      error // Original error that triggered rollback
	Rollback error // Error returned by the rollback itself
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("veloq: %v: rollback failed: %v", e.Err, e.Rollback)
}

// Unwrap returns both underlying errors.
func (e *RollbackError) Unwrap() []error {
	return []error{e.Err, e.Rollback}
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "veloq: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("veloq: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Operation (e.g., "select", "count", "exist")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("veloq: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("veloq: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a mutation error with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     Op     // Operation
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("veloq: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity string, op Op, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// PrivacyError represents a privacy policy violation.
type PrivacyError struct {
	Entity string // Entity type
	Op     string // Operation (query or mutation)
	Err    error  // Decision returned by the policy
}

// Error returns the error string.
func (e *PrivacyError) Error() string {
	return fmt.Sprintf("veloq: privacy denied %s on %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the policy decision.
func (e *PrivacyError) Unwrap() error {
	return e.Err
}

// NewPrivacyError returns a new PrivacyError.
func NewPrivacyError(entity, op string, err error) *PrivacyError {
	return &PrivacyError{Entity: entity, Op: op, Err: err}
}

// IsPrivacyError returns true if the error is a PrivacyError.
func IsPrivacyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PrivacyError
	return errors.As(err, &e)
}
