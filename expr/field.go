package expr

// Predicate builds a condition over the row parameter.
type Predicate func(*Parameter) Expr

// AndP returns a predicate that holds when all predicates hold.
func AndP(ps ...Predicate) Predicate {
	return func(p *Parameter) Expr {
		conds := make([]Expr, len(ps))
		for i, f := range ps {
			conds[i] = f(p)
		}
		return And(conds...)
	}
}

// OrP returns a predicate that holds when any predicate holds.
func OrP(ps ...Predicate) Predicate {
	return func(p *Parameter) Expr {
		conds := make([]Expr, len(ps))
		for i, f := range ps {
			conds[i] = f(p)
		}
		return Or(conds...)
	}
}

// NotP negates a predicate.
func NotP(f Predicate) Predicate {
	return func(p *Parameter) Expr { return Not(f(p)) }
}

// StringField is a string member that provides typed predicate methods.
//
// Usage:
//
//	var Email = expr.StringField("Email")
//	q.Where(Email.HasSuffix("@example.com"))
type StringField string

// Name returns the member name.
func (f StringField) Name() string { return string(f) }

// Of returns the member access on p.
func (f StringField) Of(p *Parameter) *Member { return p.Field(string(f)) }

// EQ returns a predicate that checks if the field equals the given value.
func (f StringField) EQ(v string) Predicate {
	return func(p *Parameter) Expr { return Eq(f.Of(p), v) }
}

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f StringField) NEQ(v string) Predicate {
	return func(p *Parameter) Expr { return NE(f.Of(p), v) }
}

// In returns a predicate that checks if the field value is in the given list.
func (f StringField) In(vs ...string) Predicate {
	return func(p *Parameter) Expr { return In(f.Of(p), vs) }
}

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f StringField) NotIn(vs ...string) Predicate {
	return func(p *Parameter) Expr { return Not(In(f.Of(p), vs)) }
}

// GT returns a predicate that checks if the field is greater than the given value.
func (f StringField) GT(v string) Predicate {
	return func(p *Parameter) Expr { return GT(f.Of(p), v) }
}

// LT returns a predicate that checks if the field is less than the given value.
func (f StringField) LT(v string) Predicate {
	return func(p *Parameter) Expr { return LT(f.Of(p), v) }
}

// Contains returns a predicate that checks if the field contains the given substring.
func (f StringField) Contains(v string) Predicate {
	return func(p *Parameter) Expr { return Contains(f.Of(p), v) }
}

// ContainsFold returns a predicate that checks if the field contains the given substring (case-insensitive).
func (f StringField) ContainsFold(v string) Predicate {
	return func(p *Parameter) Expr { return Contains(ToLower(f.Of(p)), ToLower(Val(v))) }
}

// HasPrefix returns a predicate that checks if the field has the given prefix.
func (f StringField) HasPrefix(v string) Predicate {
	return func(p *Parameter) Expr { return StartsWith(f.Of(p), v) }
}

// HasSuffix returns a predicate that checks if the field has the given suffix.
func (f StringField) HasSuffix(v string) Predicate {
	return func(p *Parameter) Expr { return EndsWith(f.Of(p), v) }
}

// EqualFold returns a predicate that checks if the field equals the given value (case-insensitive).
func (f StringField) EqualFold(v string) Predicate {
	return func(p *Parameter) Expr { return Eq(ToLower(f.Of(p)), ToLower(Val(v))) }
}

// IsNull returns a predicate that checks if the field is NULL.
func (f StringField) IsNull() Predicate {
	return func(p *Parameter) Expr { return IsNil(f.Of(p)) }
}

// NotNull returns a predicate that checks if the field is not NULL.
func (f StringField) NotNull() Predicate {
	return func(p *Parameter) Expr { return NotNil(f.Of(p)) }
}

// Number is the constraint of numeric field values.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// NumberField is a numeric member that provides typed predicate methods.
type NumberField[T Number] string

// Name returns the member name.
func (f NumberField[T]) Name() string { return string(f) }

// Of returns the member access on p.
func (f NumberField[T]) Of(p *Parameter) *Member { return p.Field(string(f)) }

// EQ returns a predicate that checks if the field equals the given value.
func (f NumberField[T]) EQ(v T) Predicate {
	return func(p *Parameter) Expr { return Eq(f.Of(p), v) }
}

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f NumberField[T]) NEQ(v T) Predicate {
	return func(p *Parameter) Expr { return NE(f.Of(p), v) }
}

// In returns a predicate that checks if the field value is in the given list.
func (f NumberField[T]) In(vs ...T) Predicate {
	return func(p *Parameter) Expr { return In(f.Of(p), vs) }
}

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f NumberField[T]) NotIn(vs ...T) Predicate {
	return func(p *Parameter) Expr { return Not(In(f.Of(p), vs)) }
}

// GT returns a predicate that checks if the field is greater than the given value.
func (f NumberField[T]) GT(v T) Predicate {
	return func(p *Parameter) Expr { return GT(f.Of(p), v) }
}

// GTE returns a predicate that checks if the field is greater than or equal to the given value.
func (f NumberField[T]) GTE(v T) Predicate {
	return func(p *Parameter) Expr { return GTE(f.Of(p), v) }
}

// LT returns a predicate that checks if the field is less than the given value.
func (f NumberField[T]) LT(v T) Predicate {
	return func(p *Parameter) Expr { return LT(f.Of(p), v) }
}

// LTE returns a predicate that checks if the field is less than or equal to the given value.
func (f NumberField[T]) LTE(v T) Predicate {
	return func(p *Parameter) Expr { return LTE(f.Of(p), v) }
}

// IsNull returns a predicate that checks if the field is NULL.
func (f NumberField[T]) IsNull() Predicate {
	return func(p *Parameter) Expr { return IsNil(f.Of(p)) }
}

// NotNull returns a predicate that checks if the field is not NULL.
func (f NumberField[T]) NotNull() Predicate {
	return func(p *Parameter) Expr { return NotNil(f.Of(p)) }
}

// BoolField is a bool member that provides typed predicate methods.
type BoolField string

// Of returns the member access on p.
func (f BoolField) Of(p *Parameter) *Member { return p.Field(string(f)) }

// EQ returns a predicate that checks if the field equals the given value.
func (f BoolField) EQ(v bool) Predicate {
	return func(p *Parameter) Expr { return Eq(f.Of(p), v) }
}

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f BoolField) NEQ(v bool) Predicate {
	return func(p *Parameter) Expr { return NE(f.Of(p), v) }
}

// TimeField is a time member that provides typed predicate methods.
type TimeField string

// Of returns the member access on p.
func (f TimeField) Of(p *Parameter) *Member { return p.Field(string(f)) }

// EQ returns a predicate that checks if the field equals the given value.
func (f TimeField) EQ(v any) Predicate {
	return func(p *Parameter) Expr { return Eq(f.Of(p), v) }
}

// GT returns a predicate that checks if the field is after the given value.
func (f TimeField) GT(v any) Predicate {
	return func(p *Parameter) Expr { return GT(f.Of(p), v) }
}

// GTE returns a predicate that checks if the field is not before the given value.
func (f TimeField) GTE(v any) Predicate {
	return func(p *Parameter) Expr { return GTE(f.Of(p), v) }
}

// LT returns a predicate that checks if the field is before the given value.
func (f TimeField) LT(v any) Predicate {
	return func(p *Parameter) Expr { return LT(f.Of(p), v) }
}

// LTE returns a predicate that checks if the field is not after the given value.
func (f TimeField) LTE(v any) Predicate {
	return func(p *Parameter) Expr { return LTE(f.Of(p), v) }
}

// IsNull returns a predicate that checks if the field is NULL.
func (f TimeField) IsNull() Predicate {
	return func(p *Parameter) Expr { return IsNil(f.Of(p)) }
}

// Field is a member of any other type, such as uuid.UUID.
type Field[T any] string

// Of returns the member access on p.
func (f Field[T]) Of(p *Parameter) *Member { return p.Field(string(f)) }

// EQ returns a predicate that checks if the field equals the given value.
func (f Field[T]) EQ(v T) Predicate {
	return func(p *Parameter) Expr { return Eq(f.Of(p), v) }
}

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f Field[T]) NEQ(v T) Predicate {
	return func(p *Parameter) Expr { return NE(f.Of(p), v) }
}

// In returns a predicate that checks if the field value is in the given list.
func (f Field[T]) In(vs ...T) Predicate {
	return func(p *Parameter) Expr { return In(f.Of(p), vs) }
}

// IsNull returns a predicate that checks if the field is NULL.
func (f Field[T]) IsNull() Predicate {
	return func(p *Parameter) Expr { return IsNil(f.Of(p)) }
}
