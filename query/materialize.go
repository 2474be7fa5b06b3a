package query

import (
	"bytes"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/schema"
)

// Activator builds a Go value from one row of projected columns.
type Activator interface {
	Create(row []any) (reflect.Value, error)
}

var (
	_ Activator = (*primitiveActivator)(nil)
	_ Activator = (*objectActivator)(nil)
	_ Activator = (*collectionActivator)(nil)
)

type primitiveActivator struct {
	ordinal   int
	typ       reflect.Type
	nullCheck int
}

func (a *primitiveActivator) Create(row []any) (reflect.Value, error) {
	v := reflect.New(a.typ).Elem()
	if a.nullCheck >= 0 && row[a.nullCheck] == nil {
		return v, nil
	}
	if err := assign(v, row[a.ordinal]); err != nil {
		return reflect.Value{}, fmt.Errorf("query: column %d: %w", a.ordinal, err)
	}
	return v, nil
}

type fieldActivator struct {
	index []int
	act   Activator
}

type objectActivator struct {
	typ         reflect.Type
	members     []fieldActivator
	keys        []int
	nullCheck   int
	collections []*collectionActivator
}

// Create builds the object without its collections. A Reader fills them.
func (a *objectActivator) Create(row []any) (reflect.Value, error) {
	if a.nullCheck >= 0 && row[a.nullCheck] == nil {
		return reflect.New(a.typ).Elem(), nil
	}
	obj := reflect.New(expr.Deref(a.typ))
	for _, m := range a.members {
		v, err := m.act.Create(row)
		if err != nil {
			return reflect.Value{}, err
		}
		if err := setField(fieldAlloc(obj.Elem(), m.index), v); err != nil {
			return reflect.Value{}, err
		}
	}
	if a.typ.Kind() == reflect.Pointer {
		return obj, nil
	}
	return obj.Elem(), nil
}

// nested reports whether collections are loaded below the object.
func (a *objectActivator) nested() bool {
	if len(a.collections) > 0 {
		return true
	}
	for _, m := range a.members {
		if oa, ok := m.act.(*objectActivator); ok && oa.nested() {
			return true
		}
	}
	return false
}

// key returns the identity of the object in row, or false when every key
// column is NULL.
func (a *objectActivator) key(row []any) (string, bool) {
	var (
		b     strings.Builder
		valid bool
	)
	for i, k := range a.keys {
		if i > 0 {
			b.WriteByte('|')
		}
		if row[k] != nil {
			valid = true
		}
		fmt.Fprintf(&b, "%v", derefValue(row[k]))
	}
	return b.String(), valid
}

// fill appends the collection elements of row below the object v.
func (a *objectActivator) fill(r *Reader, v reflect.Value, row []any, prefix string) error {
	s := reflect.Indirect(v)
	if !s.IsValid() {
		return nil
	}
	for i, m := range a.members {
		oa, ok := m.act.(*objectActivator)
		if !ok || !oa.nested() {
			continue
		}
		f := fieldAlloc(s, m.index)
		if err := oa.fill(r, f, row, prefix+"."+strconv.Itoa(i)); err != nil {
			return err
		}
	}
	for i, c := range a.collections {
		k, ok := c.elem.key(row)
		if !ok {
			continue
		}
		ek := prefix + "/" + strconv.Itoa(i) + ":" + k
		slice := fieldAlloc(s, c.index)
		n, seen := r.seen[ek]
		if !seen {
			ev, err := c.elem.Create(row)
			if err != nil {
				return err
			}
			item := reflect.New(slice.Type().Elem()).Elem()
			if err := setField(item, ev); err != nil {
				return err
			}
			slice.Set(reflect.Append(slice, item))
			n = slice.Len() - 1
			r.seen[ek] = n
		}
		if c.elem.nested() {
			if err := c.elem.fill(r, slice.Index(n), row, ek); err != nil {
				return err
			}
		}
	}
	return nil
}

type collectionActivator struct {
	typ   reflect.Type
	index []int
	elem  *objectActivator
}

// Create returns a slice holding the element of row, if any.
func (a *collectionActivator) Create(row []any) (reflect.Value, error) {
	s := reflect.MakeSlice(a.typ, 0, 1)
	if _, ok := a.elem.key(row); !ok {
		return s, nil
	}
	ev, err := a.elem.Create(row)
	if err != nil {
		return reflect.Value{}, err
	}
	item := reflect.New(a.typ.Elem()).Elem()
	if err := setField(item, ev); err != nil {
		return reflect.Value{}, err
	}
	return reflect.Append(s, item), nil
}

// Reader builds the results of a query row by row. Rows of the same
// owner merge into one value when collections are included.
type Reader struct {
	act    Activator
	values []reflect.Value
	owners map[string]int
	seen   map[string]int
}

// NewReader returns a reader building values with a.
func NewReader(a Activator) *Reader {
	return &Reader{act: a, owners: make(map[string]int), seen: make(map[string]int)}
}

// Read consumes one row.
func (r *Reader) Read(row []any) error {
	oa, ok := r.act.(*objectActivator)
	if !ok || !oa.nested() {
		v, err := r.act.Create(row)
		if err != nil {
			return err
		}
		r.values = append(r.values, v)
		return nil
	}
	k, _ := oa.key(row)
	i, ok := r.owners[k]
	if !ok {
		v, err := oa.Create(row)
		if err != nil {
			return err
		}
		r.values = append(r.values, v)
		i = len(r.values) - 1
		r.owners[k] = i
	}
	return oa.fill(r, r.values[i], row, k)
}

// Values returns the values read so far.
func (r *Reader) Values() []reflect.Value { return r.values }

// fieldAlloc returns the field at index, allocating nil embedded
// pointers on the way.
func fieldAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// SetProperty stores the driver value src into the member p of the
// addressable entity value v, with the conversions of the readers.
func SetProperty(v reflect.Value, p *schema.Property, src any) error {
	if err := assign(fieldAlloc(v, p.Index), src); err != nil {
		return fmt.Errorf("query: %s: %w", p.Name, err)
	}
	return nil
}

// setField stores v into f, taking or dropping one pointer level and
// converting between compatible types.
func setField(f, v reflect.Value) error {
	ft, vt := f.Type(), v.Type()
	switch {
	case vt.AssignableTo(ft):
		f.Set(v)
	case ft.Kind() == reflect.Pointer && vt.AssignableTo(ft.Elem()):
		p := reflect.New(ft.Elem())
		p.Elem().Set(v)
		f.Set(p)
	case vt.Kind() == reflect.Pointer && vt.Elem().AssignableTo(ft):
		if !v.IsNil() {
			f.Set(v.Elem())
		}
	default:
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil
		}
		return assign(f, reflect.Indirect(v).Interface())
	}
	return nil
}

func derefValue(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return v
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	bytesType   = reflect.TypeFor[[]byte]()
	scannerType = reflect.TypeFor[sql.Scanner]()
)

// assign stores the driver value src into the settable dst. NULL stores
// the zero value.
func assign(dst reflect.Value, src any) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		if err := assign(p.Elem(), src); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}
	if b, ok := src.([]byte); ok && dst.Type() == bytesType {
		dst.SetBytes(bytes.Clone(b))
		return nil
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	switch s := src.(type) {
	case []byte:
		return assignString(dst, string(s))
	case string:
		return assignString(dst, s)
	case time.Time:
		if dst.Kind() == reflect.String {
			dst.SetString(s.Format(time.RFC3339Nano))
			return nil
		}
	}
	switch {
	case isNumber(sv.Kind()) && isNumber(dst.Kind()):
		dst.Set(sv.Convert(dst.Type()))
		return nil
	case isNumber(sv.Kind()) && dst.Kind() == reflect.Bool:
		dst.SetBool(!sv.IsZero())
		return nil
	case sv.Kind() == reflect.Bool && isNumber(dst.Kind()):
		n := 0
		if sv.Bool() {
			n = 1
		}
		dst.Set(reflect.ValueOf(n).Convert(dst.Type()))
		return nil
	case sv.Kind() == dst.Kind() && sv.Type().ConvertibleTo(dst.Type()):
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %v", src, dst.Type())
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

func assignString(dst reflect.Value, s string) error {
	switch {
	case dst.Kind() == reflect.String:
		dst.SetString(s)
		return nil
	case dst.Type() == timeType:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return fmt.Errorf("cannot parse %q as time", s)
	case dst.Type() == bytesType:
		dst.SetBytes([]byte(s))
		return nil
	}
	switch dst.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetFloat(n)
	default:
		return fmt.Errorf("cannot assign string to %v", dst.Type())
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
