package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"

	"github.com/syssam/veloq/expr"
)

// ValidationError represents an entity mapping problem.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of descriptor validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err joins the validation errors, or returns nil.
func (r *ValidationResult) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// FoldName returns the case folded form of an identifier.
func FoldName(s string) string { return cases.Fold().String(s) }

// ValidateEntity validates a single entity descriptor.
func ValidateEntity(e *Entity) *ValidationResult {
	result := &ValidationResult{}
	add := func(list *[]*ValidationError, column, format string, args ...any) {
		*list = append(*list, &ValidationError{Table: e.Table, Column: column, Message: fmt.Sprintf(format, args...)})
	}

	if len(e.PrimaryKeys) == 0 {
		add(&result.Warnings, "", "entity %s has no primary key; updates and deletes are not possible", e.Name)
	}

	// Check for duplicate column names
	seen := make(map[string]bool)
	for _, p := range e.Properties {
		key := FoldName(p.Column)
		if seen[key] {
			add(&result.Errors, p.Column, "duplicate column name")
		}
		seen[key] = true
	}

	var identities int
	for _, p := range e.Properties {
		if p.AutoIncrement {
			identities++
			if !isInteger(p.Type) {
				add(&result.Errors, p.Column, "auto increment column must be an integer, got %v", p.Type)
			}
			if p.Sequence != "" {
				add(&result.Errors, p.Column, "column cannot be both auto increment and sequence %q", p.Sequence)
			}
		}
		if p.RowVersion {
			if !isInteger(p.Type) && expr.Deref(p.Type) != bytesType {
				add(&result.Errors, p.Column, "row version column must be an integer or []byte, got %v", p.Type)
			}
			if p.PrimaryKey {
				add(&result.Errors, p.Column, "row version column cannot be part of the primary key")
			}
		}
		if p.PrimaryKey && p.Nullable {
			add(&result.Warnings, p.Column, "primary key column is nullable")
		}
	}
	if identities > 1 {
		add(&result.Errors, "", "entity %s has %d auto increment columns", e.Name, identities)
	}

	for _, n := range e.Navigations {
		if n.Target.Kind() != reflect.Struct {
			add(&result.Errors, n.Name, "navigation target %v is not a struct", n.Target)
			continue
		}
		if n.Collection {
			if _, ok := n.Target.FieldByName(n.ForeignKey); !ok {
				add(&result.Errors, n.Name, "foreign key %s.%s does not exist", n.Target.Name(), n.ForeignKey)
			}
			continue
		}
		if _, ok := e.Property(n.ForeignKey); !ok {
			add(&result.Errors, n.Name, "foreign key %s does not exist", n.ForeignKey)
		}
	}
	return result
}

// Validate validates every entity of the registry.
func (r *Registry) Validate() *ValidationResult {
	result := &ValidationResult{}
	tables := make(map[string]string)
	for _, e := range r.Entities() {
		key := FoldName(e.Schema + "." + e.Table)
		if other, ok := tables[key]; ok {
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   e.Table,
				Message: fmt.Sprintf("table is mapped by both %s and %s", other, e.Name),
			})
		}
		tables[key] = e.Name
		er := ValidateEntity(e)
		result.Errors = append(result.Errors, er.Errors...)
		result.Warnings = append(result.Warnings, er.Warnings...)
	}
	return result
}

func isInteger(t reflect.Type) bool {
	t = expr.Deref(t)
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
