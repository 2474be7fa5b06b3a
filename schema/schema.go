package schema

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/inflect"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
)

// TagName is the struct tag key read by the descriptor builder.
const TagName = "veloq"

// Tabler is implemented by entity types that name their table.
type Tabler interface {
	TableName() string
}

// Entity describes the table mapping of an entity type.
type Entity struct {
	Type   reflect.Type
	Name   string
	Table  string
	Schema string
	// Properties lists the mapped columns in field order.
	Properties  []*Property
	PrimaryKeys []*Property
	// AutoIncrement is the identity column, if any.
	AutoIncrement *Property
	// RowVersion is the optimistic concurrency column, if any.
	RowVersion  *Property
	Navigations []*Navigation
	// Filters are the global filters of the entity.
	Filters []expr.Predicate

	byName map[string]*Property
}

// Property describes a mapped member.
type Property struct {
	Name          string
	Column        string
	Type          reflect.Type
	Index         []int
	PrimaryKey    bool
	AutoIncrement bool
	RowVersion    bool
	Sequence      string
	Nullable      bool
	Size          int
	DbType        dbexpr.DbType
}

// Navigation describes a member referencing other entities.
type Navigation struct {
	Name  string
	Index []int
	// Type is the type of the member.
	Type reflect.Type
	// Target is the referenced entity type.
	Target reflect.Type
	// Collection reports a slice member.
	Collection bool
	// ForeignKey is the member holding the key. It belongs to the owner for
	// references and to the target for collections.
	ForeignKey string
}

// Property returns the mapped member with the given name.
func (e *Entity) Property(name string) (*Property, bool) {
	p, ok := e.byName[name]
	return p, ok
}

// Navigation returns the navigation with the given name.
func (e *Entity) Navigation(name string) (*Navigation, bool) {
	for _, n := range e.Navigations {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Value returns the value of the member in the entity value v.
func (p *Property) Value(v reflect.Value) any {
	f, ok := fieldByIndex(v, p.Index)
	if !ok {
		return nil
	}
	if f.Kind() == reflect.Pointer && f.IsNil() {
		return nil
	}
	return f.Interface()
}

// Set stores x into the member of the addressable entity value v,
// converting between compatible numeric types.
func (p *Property) Set(v reflect.Value, x any) error {
	f := v.FieldByIndex(p.Index)
	if x == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	xv := reflect.ValueOf(x)
	target := f.Type()
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	switch {
	case xv.Type().AssignableTo(target):
	case xv.Type().ConvertibleTo(target):
		xv = xv.Convert(target)
	default:
		return fmt.Errorf("schema: cannot assign %T to %s", x, p.Name)
	}
	if f.Kind() == reflect.Pointer {
		ptr := reflect.New(target)
		ptr.Elem().Set(xv)
		xv = ptr
	}
	f.Set(xv)
	return nil
}

// IsNull reports whether the member value is NULL.
func (p *Property) IsNull(v reflect.Value) bool {
	return p.Value(v) == nil
}

func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

var (
	valuerType  = reflect.TypeFor[driver.Valuer]()
	timeType    = reflect.TypeFor[time.Time]()
	bytesType   = reflect.TypeFor[[]byte]()
	decimalType = reflect.TypeFor[decimal.Decimal]()
	uuidType    = reflect.TypeFor[uuid.UUID]()
)

// IsScalar reports whether values of t map to a single column.
func IsScalar(t reflect.Type) bool {
	t = expr.Deref(t)
	switch {
	case t == nil:
		return false
	case t == timeType, t == bytesType, t == decimalType, t == uuidType:
		return true
	case t.Implements(valuerType), reflect.PointerTo(t).Implements(valuerType):
		return true
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan, reflect.Interface:
		return false
	}
	return true
}

// DbTypeOf returns the parameter type hint for values of t.
func DbTypeOf(t reflect.Type) dbexpr.DbType {
	t = expr.Deref(t)
	switch t {
	case nil:
		return dbexpr.DbTypeUnspecified
	case timeType:
		return dbexpr.DbTypeDateTime
	case bytesType:
		return dbexpr.DbTypeBinary
	case decimalType:
		return dbexpr.DbTypeDecimal
	case uuidType:
		return dbexpr.DbTypeGuid
	}
	switch t.Kind() {
	case reflect.String:
		return dbexpr.DbTypeString
	case reflect.Bool:
		return dbexpr.DbTypeBool
	case reflect.Int8, reflect.Uint8, reflect.Int16:
		return dbexpr.DbTypeInt16
	case reflect.Int32, reflect.Uint16:
		return dbexpr.DbTypeInt32
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return dbexpr.DbTypeInt64
	case reflect.Float32:
		return dbexpr.DbTypeFloat
	case reflect.Float64:
		return dbexpr.DbTypeDouble
	}
	return dbexpr.DbTypeUnspecified
}

// ColumnName returns the default column name of a field.
func ColumnName(field string) string { return inflect.Underscore(field) }

// TableName returns the default table name of an entity type name.
func TableName(typeName string) string { return inflect.Underscore(inflect.Pluralize(typeName)) }

type tag struct {
	name          string
	skip          bool
	pk            bool
	autoincrement bool
	rowversion    bool
	nullable      bool
	required      bool
	ansi          bool
	nav           bool
	seq           string
	fk            string
	size          int
}

func parseTag(s string) (tag, error) {
	var t tag
	if s == "-" {
		t.skip = true
		return t, nil
	}
	parts := strings.Split(s, ",")
	t.name = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(p), "=")
		switch key {
		case "pk":
			t.pk = true
		case "autoincrement":
			t.autoincrement = true
		case "rowversion":
			t.rowversion = true
		case "nullable":
			t.nullable = true
		case "required":
			t.required = true
		case "ansi":
			t.ansi = true
		case "nav":
			t.nav = true
		case "seq":
			t.seq = val
		case "fk":
			t.fk = val
		case "size":
			n, err := strconv.Atoi(val)
			if err != nil {
				return t, fmt.Errorf("invalid size %q: %w", val, err)
			}
			t.size = n
		case "":
		default:
			return t, fmt.Errorf("unknown tag option %q", key)
		}
	}
	return t, nil
}

// Describe builds the descriptor of the struct type t.
func Describe(t reflect.Type) (*Entity, error) {
	t = expr.Deref(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %v is not a struct type", t)
	}
	e := &Entity{
		Type:   t,
		Name:   t.Name(),
		Table:  TableName(t.Name()),
		byName: make(map[string]*Property),
	}
	if tb, ok := reflect.New(t).Interface().(Tabler); ok {
		if name := tb.TableName(); name != "" {
			e.Table = name
		}
	}
	if err := e.addFields(t, nil); err != nil {
		return nil, fmt.Errorf("schema: %s: %w", e.Name, err)
	}
	return e, nil
}

func (e *Entity) addFields(t reflect.Type, index []int) error {
	for i := range t.NumField() {
		sf := t.Field(i)
		idx := append(append([]int(nil), index...), i)
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Tag.Get(TagName) == "" {
			if err := e.addFields(sf.Type, idx); err != nil {
				return err
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		tg, err := parseTag(sf.Tag.Get(TagName))
		if err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
		if tg.skip {
			continue
		}
		if tg.nav || !IsScalar(sf.Type) {
			e.Navigations = append(e.Navigations, e.navigation(sf, idx, tg))
			continue
		}
		p := &Property{
			Name:          sf.Name,
			Column:        tg.name,
			Type:          sf.Type,
			Index:         idx,
			PrimaryKey:    tg.pk,
			AutoIncrement: tg.autoincrement,
			RowVersion:    tg.rowversion,
			Sequence:      tg.seq,
			Nullable:      !tg.required && (tg.nullable || expr.IsNullable(sf.Type)),
			Size:          tg.size,
			DbType:        DbTypeOf(sf.Type),
		}
		if p.Column == "" {
			p.Column = ColumnName(sf.Name)
		}
		if tg.ansi && p.DbType == dbexpr.DbTypeString {
			p.DbType = dbexpr.DbTypeAnsiString
		}
		e.Properties = append(e.Properties, p)
		e.byName[p.Name] = p
		if p.PrimaryKey {
			e.PrimaryKeys = append(e.PrimaryKeys, p)
		}
		if p.AutoIncrement && e.AutoIncrement == nil {
			e.AutoIncrement = p
		}
		if p.RowVersion && e.RowVersion == nil {
			e.RowVersion = p
		}
	}
	return nil
}

func (e *Entity) navigation(sf reflect.StructField, idx []int, tg tag) *Navigation {
	n := &Navigation{Name: sf.Name, Index: idx, Type: sf.Type, ForeignKey: tg.fk}
	target := sf.Type
	if target.Kind() == reflect.Slice {
		n.Collection = true
		target = target.Elem()
	}
	n.Target = expr.Deref(target)
	if n.ForeignKey == "" {
		if n.Collection {
			n.ForeignKey = e.Name + "ID"
		} else {
			n.ForeignKey = sf.Name + "ID"
		}
	}
	return n
}
