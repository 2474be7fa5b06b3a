package sql

import (
	"reflect"
	"strconv"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
)

// RegisterCommon registers the string, conversion and math handlers
// shared by every dialect. Dialects register their variants afterwards,
// ahead of these.
func RegisterCommon(r *Registry) {
	r.RegisterMethod("Contains", like(true, true))
	r.RegisterMethod("StartsWith", like(false, true))
	r.RegisterMethod("EndsWith", like(true, false))
	r.RegisterMethod("ToUpper", MethodTemplate(expr.OwnerStrings, "UPPER({0})"))
	r.RegisterMethod("ToLower", MethodTemplate(expr.OwnerStrings, "LOWER({0})"))
	r.RegisterMethod("Trim", MethodTemplate(expr.OwnerStrings, "TRIM({0})"))
	r.RegisterMethod("TrimStart", MethodTemplate(expr.OwnerStrings, "LTRIM({0})"))
	r.RegisterMethod("TrimEnd", MethodTemplate(expr.OwnerStrings, "RTRIM({0})"))
	r.RegisterMethod("Substring", SubstringHandler("SUBSTRING"))
	r.RegisterMethod("Replace", MethodTemplate(expr.OwnerStrings, "REPLACE({0},{1},{2})"))
	r.RegisterMethod("IsNullOrEmpty", MethodFunc{Owner: expr.OwnerStrings, Fn: isNullOrEmpty})
	r.RegisterMethod("ToString", MethodFunc{Owner: expr.OwnerConv, Fn: toString})
	r.RegisterMethod("Parse", MethodFunc{Owner: expr.OwnerConv, Fn: parse})
	r.RegisterMethod("Abs", MethodTemplate(expr.OwnerMath, "ABS({0})"))
	r.RegisterProperty("Length", PropertyTemplate(expr.OwnerStrings, "LENGTH({0})"))
}

// like renders x LIKE '%' + v + '%' with the wildcards selected.
func like(prefix, suffix bool) MethodFunc {
	return MethodFunc{Owner: expr.OwnerStrings, Fn: func(c *dbexpr.MethodCall, g *Generator) {
		if c.Object == nil || len(c.Args) != 1 {
			g.Unsupported("method "+c.Method, "expects a receiver and one argument")
			return
		}
		g.Value(c.Object)
		g.WriteString(" LIKE ")
		var parts []any
		if prefix {
			parts = append(parts, "'%'")
		}
		parts = append(parts, c.Args[0])
		if suffix {
			parts = append(parts, "'%'")
		}
		g.ConcatRaw(parts...)
	}}
}

// SubstringHandler renders fn(s, start + 1, length) for the zero based
// Substring(start, length).
func SubstringHandler(fn string) MethodFunc {
	return MethodFunc{Owner: expr.OwnerStrings, Fn: func(c *dbexpr.MethodCall, g *Generator) {
		if c.Object == nil || len(c.Args) != 2 {
			g.Unsupported("method Substring", "expects a receiver and two arguments")
			return
		}
		g.WriteString(fn)
		g.WriteString("(")
		g.Value(c.Object)
		g.WriteString(",")
		g.PlusOne(c.Args[0])
		g.WriteString(",")
		g.Value(c.Args[1])
		g.WriteString(")")
	}}
}

// PlusOne renders e + 1, folding integer literals.
func (g *Generator) PlusOne(e Expr) {
	if c, ok := e.(*dbexpr.Constant); ok {
		rv := reflect.ValueOf(c.Value)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			g.WriteString(strconv.FormatInt(rv.Int()+1, 10))
			return
		}
	}
	g.WriteString("(")
	g.Value(e)
	g.WriteString(" + 1)")
}

func isNullOrEmpty(c *dbexpr.MethodCall, g *Generator) {
	if len(c.Args) != 1 {
		g.Unsupported("method IsNullOrEmpty", "expects one argument")
		return
	}
	g.WriteString("(")
	g.Value(c.Args[0])
	g.WriteString(" IS NULL OR ")
	g.Value(c.Args[0])
	g.WriteString(" = ")
	g.WriteString(g.emptyString())
	g.WriteString(")")
}

func toString(c *dbexpr.MethodCall, g *Generator) {
	if c.Object == nil {
		g.Unsupported("method ToString", "expects a receiver")
		return
	}
	if TypeKey(c.Object.Type()) == "string" {
		g.Value(c.Object)
		return
	}
	g.Cast(c.Object, "string")
}

// parse casts a string to the call's result type. Booleans compare with
// the text true.
func parse(c *dbexpr.MethodCall, g *Generator) {
	if len(c.Args) != 1 {
		g.Unsupported("method Parse", "expects one argument")
		return
	}
	key := TypeKey(c.Type())
	if key == "bool" {
		g.WriteString("LOWER(")
		g.Value(c.Args[0])
		g.WriteString(") = 'true'")
		return
	}
	if key == "" {
		g.Unsupported("method Parse", "no cast type for "+c.Type().String())
		return
	}
	g.Cast(c.Args[0], key)
}

// RegisterDateParts registers a time property template per member name,
// such as "Year": "YEAR({0})".
func RegisterDateParts(r *Registry, tmpls map[string]string) {
	for name, tmpl := range tmpls {
		r.RegisterProperty(name, PropertyTemplate(expr.OwnerTime, tmpl))
	}
}

// RegisterTimeMethods registers a time method template per method name,
// such as "AddDays": "DATEADD(DAY,{1},{0})". {0} is the time and {1} the
// amount.
func RegisterTimeMethods(r *Registry, tmpls map[string]string) {
	for name, tmpl := range tmpls {
		r.RegisterMethod(name, MethodTemplate(expr.OwnerTime, tmpl))
	}
}

// RegisterDiffs registers the server side date differences, such as
// "DiffDays": "DATEDIFF(DAY,{0},{1})". {0} is the start and {1} the end.
func RegisterDiffs(r *Registry, tmpls map[string]string) {
	for name, tmpl := range tmpls {
		r.RegisterMethod(name, MethodTemplate(expr.OwnerSQL, tmpl))
	}
}

// DiffNames lists the date difference methods.
var DiffNames = []string{"DiffYears", "DiffMonths", "DiffDays", "DiffHours", "DiffMinutes", "DiffSeconds", "DiffMilliseconds"}

// RegisterUnsupported registers handlers reporting a translation error
// with reason for the methods of owner.
func RegisterUnsupported(r *Registry, owner, reason string, methods ...string) {
	for _, name := range methods {
		r.RegisterMethod(name, MethodFunc{Owner: owner, Fn: func(c *dbexpr.MethodCall, g *Generator) {
			g.Unsupported("method "+qualified(c.Owner, c.Method), reason)
		}})
	}
}
