package sql

import (
	"database/sql"
	"reflect"
	"strconv"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/schema"
)

// Param is a bound parameter of a command.
type Param struct {
	// Name is the parameter name without the dialect prefix, such as P_0.
	// It is empty for positional parameters.
	Name   string
	Value  any
	DbType dbexpr.DbType
	// Size is the declared size of string parameters, -1 for unbounded.
	Size int
	// Output marks a parameter the database writes, such as the target of
	// RETURNING ... INTO. Value is then a *any receiving the result.
	Output bool
}

// paramKey identifies parameters that may share one name.
type paramKey struct {
	value  any
	typ    reflect.Type
	dbType dbexpr.DbType
}

// paramCollection collects the parameters of one command. In named mode
// equal values share a parameter; in positional mode every occurrence is
// bound again.
type paramCollection struct {
	named  bool
	params []*Param
	seen   map[paramKey]int
}

func newParamCollection(named bool) *paramCollection {
	c := &paramCollection{named: named}
	if named {
		c.seen = make(map[paramKey]int)
	}
	return c
}

// add binds v and returns its index.
func (c *paramCollection) add(v any, t reflect.Type, dbType dbexpr.DbType, size int) int {
	v = normalizeValue(v)
	if dbType == dbexpr.DbTypeUnspecified {
		dbType = schema.DbTypeOf(t)
	}
	var key paramKey
	reuse := c.named && v != nil && reflect.ValueOf(v).Comparable()
	if reuse {
		key = paramKey{value: v, typ: reflect.TypeOf(v), dbType: dbType}
		if i, ok := c.seen[key]; ok {
			return i
		}
	}
	p := &Param{Value: v, DbType: dbType, Size: size}
	if c.named {
		p.Name = "P_" + strconv.Itoa(len(c.params))
	}
	c.params = append(c.params, p)
	i := len(c.params) - 1
	if reuse {
		c.seen[key] = i
	}
	return i
}

// addOutput binds an output parameter of type t.
func (c *paramCollection) addOutput(name string, t reflect.Type) int {
	p := &Param{Name: name, Value: new(any), DbType: schema.DbTypeOf(t), Output: true}
	c.params = append(c.params, p)
	return len(c.params) - 1
}

// normalizeValue dereferences pointers and converts named scalar types,
// such as enums, to their underlying kind so drivers accept them.
func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Type().PkgPath() == "" {
		return rv.Interface()
	}
	if _, ok := rv.Interface().(interface{ Value() (any, error) }); ok {
		return rv.Interface()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return rv.Interface()
}

// stringSize returns the declared size of a string parameter.
func stringSize(d *Dialect, v any) int {
	s, ok := v.(string)
	if !ok || d.StringSize == 0 {
		return 0
	}
	if len(s) <= d.StringSize {
		return d.StringSize
	}
	return -1
}

// bindArgs converts the parameters to database/sql arguments.
func bindArgs(params []*Param, named bool) []any {
	args := make([]any, len(params))
	for i, p := range params {
		var v any = p.Value
		if p.Output {
			v = sql.Out{Dest: p.Value}
		}
		if named && p.Name != "" {
			v = sql.Named(p.Name, v)
		}
		args[i] = v
	}
	return args
}
