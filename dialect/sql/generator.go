package sql

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
)

// Expr is a database expression.
type Expr = dbexpr.Expr

// Generator renders a database expression tree into SQL text and bound
// parameters. A Generator renders one statement and is not safe for
// concurrent use; the tree it renders is never modified.
type Generator struct {
	d      *Dialect
	opts   Options
	sb     strings.Builder
	params *paramCollection
	err    error
	depth  int

	returns     []string
	returnStyle ReturnStyle
}

var _ dbexpr.Visitor = (*Generator)(nil)

// NewGenerator returns a generator for the dialect. Zero option fields take
// the dialect defaults.
func NewGenerator(d *Dialect, opts Options) *Generator {
	opts = opts.merge(d)
	return &Generator{d: d, opts: opts, params: newParamCollection(opts.BindByName)}
}

// Dialect returns the dialect of the generator.
func (g *Generator) Dialect() *Dialect { return g.d }

// Options returns the effective options.
func (g *Generator) Options() Options { return g.opts }

// WriteString appends raw SQL.
func (g *Generator) WriteString(s string) { g.sb.WriteString(s) }

// Quote appends a quoted identifier.
func (g *Generator) Quote(ident string) { g.sb.WriteString(g.d.Quote(ident)) }

// String returns the SQL written so far.
func (g *Generator) String() string { return g.sb.String() }

// Params returns the parameters bound so far.
func (g *Generator) Params() []*Param { return g.params.params }

// AddError records err. Only the first error is kept.
func (g *Generator) AddError(err error) {
	if g.err == nil && err != nil {
		g.err = err
	}
}

// Err returns the first error of the translation.
func (g *Generator) Err() error { return g.err }

// Unsupported records a translation error for construct.
func (g *Generator) Unsupported(construct, reason string) {
	g.AddError(veloq.NewTranslationError(g.d.Name, construct, reason))
}

// Command returns the compiled command.
func (g *Generator) Command() *Command {
	return &Command{
		Text:        g.sb.String(),
		Params:      g.params.params,
		Named:       g.opts.BindByName && g.d.SupportsNamed,
		Returns:     g.returns,
		ReturnStyle: g.returnStyle,
	}
}

// Visit renders e as is. A nil expression renders NULL.
func (g *Generator) Visit(e Expr) {
	if e == nil {
		g.WriteString("NULL")
		return
	}
	e.Accept(g)
}

// Value renders e where a value is expected. Predicates render as a CASE
// yielding the boolean literals.
func (g *Generator) Value(e Expr) {
	if !IsPredicate(e) {
		g.Visit(e)
		return
	}
	g.WriteString("CASE WHEN ")
	g.Visit(e)
	g.WriteString(" THEN ")
	g.WriteString(g.d.True)
	g.WriteString(" WHEN NOT (")
	g.Visit(e)
	g.WriteString(") THEN ")
	g.WriteString(g.d.False)
	g.WriteString(" ELSE NULL END")
}

// Cond renders e where a condition is expected. Boolean values compare
// with the true literal.
func (g *Generator) Cond(e Expr) {
	if IsPredicate(e) {
		g.Visit(e)
		return
	}
	if c, ok := e.(*dbexpr.Constant); ok {
		if b, ok := c.Value.(bool); ok {
			if b {
				g.WriteString("1 = 1")
			} else {
				g.WriteString("1 = 0")
			}
			return
		}
	}
	g.Value(e)
	g.WriteString(" = ")
	g.WriteString(g.d.True)
}

// IsPredicate reports whether e renders as a SQL condition rather than a
// value.
func IsPredicate(e Expr) bool {
	switch e := e.(type) {
	case *dbexpr.Binary:
		return e.Op.IsComparison() || e.Op.IsLogical()
	case *dbexpr.Unary:
		return e.Op == dbexpr.OpNot
	case *dbexpr.In, *dbexpr.Exists:
		return true
	case *dbexpr.MethodCall:
		return e.Owner != dbexpr.OwnerDB && e.Owner != dbexpr.OwnerSequence && deref(e.Type()) == reflect.TypeFor[bool]()
	}
	return false
}

// ConcatRaw renders the concatenation of the parts with the dialect
// operator. String parts are raw SQL and Expr parts are rendered as values.
func (g *Generator) ConcatRaw(parts ...any) {
	sep := " + "
	switch g.d.Concat {
	case ConcatFunc:
		g.WriteString("CONCAT(")
		sep = ", "
	case ConcatPipes:
		sep = " || "
	}
	for i, p := range parts {
		if i > 0 {
			g.WriteString(sep)
		}
		switch p := p.(type) {
		case string:
			g.WriteString(p)
		case Expr:
			g.stringOperand(p)
		}
	}
	if g.d.Concat == ConcatFunc {
		g.WriteString(")")
	}
}

// Cast renders CAST(x AS <type>) for the type key, such as "string".
func (g *Generator) Cast(x Expr, key string) {
	ct, ok := g.d.CastTypes[key]
	if !ok {
		g.Unsupported("cast to "+key, "no cast type")
		return
	}
	g.WriteString("CAST(")
	g.Value(x)
	g.WriteString(" AS ")
	g.WriteString(ct)
	g.WriteString(")")
}

// NullReplace renders the dialect null replacement of x by repl.
func (g *Generator) NullReplace(x Expr, repl string) {
	g.WriteString(g.nullFunc())
	g.WriteString("(")
	g.Value(x)
	g.WriteString(",")
	g.WriteString(repl)
	g.WriteString(")")
}

func (g *Generator) nullFunc() string {
	if g.d.NullFunc != "" {
		return g.d.NullFunc
	}
	return "COALESCE"
}

// Args renders the expressions as a comma separated value list.
func (g *Generator) Args(args ...Expr) {
	for i, a := range args {
		if i > 0 {
			g.WriteString(",")
		}
		g.Value(a)
	}
}

// Literal reports whether v renders inline and returns its SQL. NaN and
// infinities do not.
func (g *Generator) Literal(v any) (string, bool) {
	if v == nil {
		return "NULL", true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "NULL", true
		}
		rv = rv.Elem()
	}
	if d, ok := rv.Interface().(decimal.Decimal); ok {
		return d.String(), true
	}
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return g.d.True, true
		}
		return g.d.False, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, rv.Type().Bits()), true
	}
	return "", false
}

func nonFinite(v any) bool {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() || !rv.CanFloat() {
		return false
	}
	return math.IsNaN(rv.Float()) || math.IsInf(rv.Float(), 0)
}

// VisitConstant renders numbers, booleans and decimals inline. Other values
// are bound as parameters.
func (g *Generator) VisitConstant(c *dbexpr.Constant) {
	if nonFinite(c.Value) {
		g.Unsupported("constant "+strconv.FormatFloat(reflect.Indirect(reflect.ValueOf(c.Value)).Float(), 'g', -1, 64), "NaN and infinities have no SQL literal")
		return
	}
	if s, ok := g.Literal(c.Value); ok {
		g.WriteString(s)
		return
	}
	g.bind(c.Value, c.Type(), dbexpr.DbTypeUnspecified, 0)
}

// VisitParameter binds the parameter value.
func (g *Generator) VisitParameter(p *dbexpr.Parameter) {
	if normalizeValue(p.Value) == nil {
		g.WriteString("NULL")
		return
	}
	g.bind(p.Value, p.Type(), p.DbType, p.Size)
}

func (g *Generator) bind(v any, t reflect.Type, dbType dbexpr.DbType, size int) {
	if size == 0 {
		size = stringSize(g.d, normalizeValue(v))
	}
	g.WriteString(g.placeholder(g.params.add(v, t, dbType, size)))
}

func (g *Generator) placeholder(i int) string {
	switch {
	case g.d.Ordinal:
		return "$" + strconv.Itoa(i+1)
	case g.opts.BindByName:
		return g.d.ParamPrefix + g.params.params[i].Name
	case g.d.Positional != nil:
		return g.d.Positional(i)
	}
	return "?"
}

// VisitColumnAccess renders T.col, or the bare column without table.
func (g *Generator) VisitColumnAccess(c *dbexpr.ColumnAccess) {
	if c.Table != "" {
		g.Quote(c.Table)
		g.WriteString(".")
	}
	g.Quote(c.Column)
}

// VisitTable renders the qualified table name.
func (g *Generator) VisitTable(t *dbexpr.Table) {
	if t.Schema != "" {
		g.Quote(t.Schema)
		g.WriteString(".")
	}
	g.Quote(t.Name)
}

// VisitMemberAccess renders a property with the first registered handler
// that accepts it.
func (g *Generator) VisitMemberAccess(m *dbexpr.MemberAccess) {
	if g.d.Registry != nil {
		for _, h := range g.d.Registry.Properties(m.Member) {
			if h.CanProcess(m) {
				h.Process(m, g)
				return
			}
		}
	}
	g.Unsupported("member "+qualified(m.Owner, m.Member), "")
}

// VisitMethodCall renders sequence reads, database functions and methods
// translated by the registered handlers.
func (g *Generator) VisitMethodCall(c *dbexpr.MethodCall) {
	switch c.Owner {
	case dbexpr.OwnerSequence:
		if g.d.NextValue == nil {
			g.Unsupported("sequence "+c.Method, "dialect has no sequences")
			return
		}
		g.WriteString(g.d.NextValue(c.Schema, c.Method))
		return
	case dbexpr.OwnerDB:
		if schema := cmpOr(c.Schema, g.d.DefaultSchema); schema != "" {
			g.Quote(schema)
			g.WriteString(".")
		}
		g.Quote(c.Method)
		g.WriteString("(")
		g.Args(c.Args...)
		g.WriteString(")")
		return
	}
	if g.d.Registry != nil {
		for _, h := range g.d.Registry.Methods(c.Method) {
			if h.CanProcess(c) {
				h.Process(c, g)
				return
			}
		}
	}
	g.Unsupported("method "+qualified(c.Owner, c.Method), "")
}

func qualified(owner, name string) string {
	if owner == "" {
		return name
	}
	return owner + "." + name
}

func cmpOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

var binaryOps = map[dbexpr.BinaryOp]string{
	dbexpr.OpAnd:                " AND ",
	dbexpr.OpOr:                 " OR ",
	dbexpr.OpEqual:              " = ",
	dbexpr.OpNotEqual:           " <> ",
	dbexpr.OpLessThan:           " < ",
	dbexpr.OpLessThanOrEqual:    " <= ",
	dbexpr.OpGreaterThan:        " > ",
	dbexpr.OpGreaterThanOrEqual: " >= ",
	dbexpr.OpAdd:                " + ",
	dbexpr.OpSubtract:           " - ",
	dbexpr.OpMultiply:           " * ",
	dbexpr.OpDivide:             " / ",
	dbexpr.OpModulo:             " % ",
	dbexpr.OpBitAnd:             " & ",
	dbexpr.OpBitOr:              " | ",
}

// VisitBinary renders operators. Equality follows host semantics for
// NULL: nil equals nil and differs from any value.
func (g *Generator) VisitBinary(b *dbexpr.Binary) {
	switch {
	case b.Op == dbexpr.OpConcat || (b.Op == dbexpr.OpAdd && deref(b.Type()) == stringType):
		g.concat(b)
	case b.Op.IsLogical():
		g.WriteString("(")
		g.Cond(b.Left)
		g.WriteString(binaryOps[b.Op])
		g.Cond(b.Right)
		g.WriteString(")")
	case b.Op == dbexpr.OpEqual:
		g.equal(b.Left, b.Right)
	case b.Op == dbexpr.OpNotEqual:
		g.notEqual(b.Left, b.Right)
	case b.Op.IsComparison():
		g.Value(b.Left)
		g.WriteString(binaryOps[b.Op])
		g.Value(b.Right)
	case b.Op == dbexpr.OpModulo && g.d.ModFunc:
		g.WriteString("MOD(")
		g.Args(b.Left, b.Right)
		g.WriteString(")")
	case b.Op == dbexpr.OpBitAnd && g.d.BitFunc:
		g.WriteString("BITAND(")
		g.Args(b.Left, b.Right)
		g.WriteString(")")
	case b.Op == dbexpr.OpBitOr && g.d.BitFunc:
		g.WriteString("(")
		g.Value(b.Left)
		g.WriteString(" + ")
		g.Value(b.Right)
		g.WriteString(" - BITAND(")
		g.Args(b.Left, b.Right)
		g.WriteString("))")
	default:
		op, ok := binaryOps[b.Op]
		if !ok {
			g.Unsupported("binary operator "+strconv.Itoa(int(b.Op)), "")
			return
		}
		g.WriteString("(")
		g.Value(b.Left)
		g.WriteString(op)
		g.Value(b.Right)
		g.WriteString(")")
	}
}

// isNullValue reports whether e is a NULL constant or a nil parameter.
func isNullValue(e Expr) bool {
	switch e := e.(type) {
	case *dbexpr.Constant:
		return normalizeValue(e.Value) == nil
	case *dbexpr.Parameter:
		return normalizeValue(e.Value) == nil
	}
	return false
}

// isNullable reports whether e may evaluate to NULL on the server.
// Bound values are known not to be NULL.
func isNullable(e Expr) bool {
	switch e.(type) {
	case *dbexpr.Constant, *dbexpr.Parameter:
		return false
	}
	return isNullableType(e.Type())
}

func (g *Generator) isNull(x Expr, not bool) {
	g.Value(x)
	if not {
		g.WriteString(" IS NOT NULL")
	} else {
		g.WriteString(" IS NULL")
	}
}

func (g *Generator) equal(l, r Expr) {
	switch {
	case isNullValue(r):
		g.isNull(l, false)
	case isNullValue(l):
		g.isNull(r, false)
	case isNullable(l) && isNullable(r):
		g.WriteString("(")
		g.Value(l)
		g.WriteString(" = ")
		g.Value(r)
		g.WriteString(" OR (")
		g.isNull(l, false)
		g.WriteString(" AND ")
		g.isNull(r, false)
		g.WriteString("))")
	default:
		g.Value(l)
		g.WriteString(" = ")
		g.Value(r)
	}
}

func (g *Generator) notEqual(l, r Expr) {
	switch {
	case isNullValue(r):
		g.isNull(l, true)
	case isNullValue(l):
		g.isNull(r, true)
	case isNullable(l) && isNullable(r):
		g.WriteString("(")
		g.Value(l)
		g.WriteString(" <> ")
		g.Value(r)
		g.WriteString(" OR (")
		g.isNull(l, false)
		g.WriteString(" AND ")
		g.isNull(r, true)
		g.WriteString(") OR (")
		g.isNull(l, true)
		g.WriteString(" AND ")
		g.isNull(r, false)
		g.WriteString("))")
	case isNullable(l) || isNullable(r):
		nullable := l
		if !isNullable(l) {
			nullable = r
		}
		g.WriteString("(")
		g.Value(l)
		g.WriteString(" <> ")
		g.Value(r)
		g.WriteString(" OR ")
		g.isNull(nullable, false)
		g.WriteString(")")
	default:
		g.Value(l)
		g.WriteString(" <> ")
		g.Value(r)
	}
}

// concat renders a string concatenation that yields NULL when any operand
// is NULL.
func (g *Generator) concat(b *dbexpr.Binary) {
	parts := flattenConcat(b, nil)
	var nullable []Expr
	for _, p := range parts {
		if isNullValue(p) {
			g.WriteString("NULL")
			return
		}
		if isNullable(p) {
			nullable = append(nullable, p)
		}
	}
	if len(nullable) == 0 {
		g.writeConcat(parts, false)
		return
	}
	g.WriteString("CASE WHEN ")
	for i, p := range nullable {
		if i > 0 {
			g.WriteString(" OR ")
		}
		g.isNull(p, false)
	}
	g.WriteString(" THEN NULL ELSE ")
	g.writeConcat(parts, true)
	g.WriteString(" END")
}

func flattenConcat(e Expr, out []Expr) []Expr {
	if b, ok := e.(*dbexpr.Binary); ok && (b.Op == dbexpr.OpConcat || (b.Op == dbexpr.OpAdd && deref(b.Type()) == stringType)) {
		out = flattenConcat(b.Left, out)
		return flattenConcat(b.Right, out)
	}
	return append(out, e)
}

func (g *Generator) writeConcat(parts []Expr, coalesce bool) {
	open, sep, closing := "(", " + ", ")"
	switch g.d.Concat {
	case ConcatFunc:
		open, sep = "CONCAT(", ", "
	case ConcatPipes:
		sep = " || "
	}
	g.WriteString(open)
	for i, p := range parts {
		if i > 0 {
			g.WriteString(sep)
		}
		if coalesce && isNullable(p) {
			g.WriteString(g.nullFunc())
			g.WriteString("(")
			g.stringOperand(p)
			g.WriteString(",")
			g.WriteString(g.emptyString())
			g.WriteString(")")
			continue
		}
		g.stringOperand(p)
	}
	g.WriteString(closing)
}

// stringOperand renders p, cast to the string type when it is not a string.
func (g *Generator) stringOperand(p Expr) {
	if TypeKey(p.Type()) == "string" {
		g.Value(p)
		return
	}
	g.Cast(p, "string")
}

func (g *Generator) emptyString() string {
	if g.d.EmptyString != "" {
		return g.d.EmptyString
	}
	return "''"
}

// VisitUnary renders NOT and negation.
func (g *Generator) VisitUnary(u *dbexpr.Unary) {
	switch u.Op {
	case dbexpr.OpNot:
		g.WriteString("NOT (")
		g.Cond(u.X)
		g.WriteString(")")
	case dbexpr.OpNegate:
		g.WriteString("(-")
		g.Value(u.X)
		g.WriteString(")")
	default:
		g.Unsupported("unary operator "+strconv.Itoa(int(u.Op)), "")
	}
}

// VisitConvert renders a cast. Conversions between a type and its pointer
// render the operand unchanged.
func (g *Generator) VisitConvert(c *dbexpr.Convert) {
	e := dbexpr.StripInvalidConvert(c)
	c, ok := e.(*dbexpr.Convert)
	if !ok {
		g.Visit(e)
		return
	}
	to := deref(c.Type())
	if deref(c.X.Type()) == to {
		g.Visit(c.X)
		return
	}
	key := TypeKey(to)
	if _, ok := g.d.CastTypes[key]; !ok {
		g.Unsupported("conversion to "+to.String(), "")
		return
	}
	g.Cast(c.X, key)
}

// VisitCoalesce renders the null replacement function.
func (g *Generator) VisitCoalesce(c *dbexpr.Coalesce) {
	g.WriteString(g.nullFunc())
	g.WriteString("(")
	g.Args(c.Check, c.Replacement)
	g.WriteString(")")
}

// VisitCaseWhen renders a searched CASE.
func (g *Generator) VisitCaseWhen(c *dbexpr.CaseWhen) {
	g.WriteString("CASE")
	for _, w := range c.Whens {
		g.WriteString(" WHEN ")
		g.Cond(w.When)
		g.WriteString(" THEN ")
		g.Value(w.Then)
	}
	g.WriteString(" ELSE ")
	g.Value(c.Else)
	g.WriteString(" END")
}

// VisitIn renders x IN (...). An empty list is false.
func (g *Generator) VisitIn(in *dbexpr.In) {
	if in.Query != nil {
		g.Value(in.X)
		g.WriteString(" IN (")
		g.Visit(in.Query)
		g.WriteString(")")
		return
	}
	if len(in.Values) == 0 {
		g.WriteString("1 = 0")
		return
	}
	g.Value(in.X)
	g.WriteString(" IN (")
	g.Args(in.Values...)
	g.WriteString(")")
}

// VisitExists renders EXISTS (...).
func (g *Generator) VisitExists(e *dbexpr.Exists) {
	g.WriteString("EXISTS (")
	g.Visit(e.Query)
	g.WriteString(")")
}

// VisitSubquery renders the parenthesized query.
func (g *Generator) VisitSubquery(s *dbexpr.Subquery) {
	g.WriteString("(")
	g.Visit(s.Query)
	g.WriteString(")")
}

// VisitFromTable renders the main table and its joins.
func (g *Generator) VisitFromTable(f *dbexpr.FromTable) {
	g.tableSegment(f.Table)
	for _, j := range f.Joins {
		g.Visit(j)
	}
}

// VisitJoinTable renders a join and the joins nested below it.
func (g *Generator) VisitJoinTable(j *dbexpr.JoinTable) {
	g.WriteString(" ")
	g.WriteString(j.JoinType.String())
	g.WriteString(" ")
	g.tableSegment(j.Table)
	g.WriteString(" ON ")
	g.Cond(j.Condition)
	for _, n := range j.Joins {
		g.Visit(n)
	}
}

func (g *Generator) tableSegment(seg dbexpr.TableSegment) {
	switch b := seg.Body.(type) {
	case *dbexpr.SqlQuery:
		g.WriteString("(")
		g.Visit(b)
		g.WriteString(")")
	default:
		g.Visit(b)
	}
	if seg.Alias != "" {
		g.alias(seg.Alias)
	}
	if !g.d.LockHints {
		return
	}
	switch seg.Lock {
	case dbexpr.LockNoLock:
		g.WriteString(" WITH(NOLOCK)")
	case dbexpr.LockUpdLock:
		g.WriteString(" WITH(UPDLOCK)")
	}
}

func (g *Generator) alias(name string) {
	if g.d.NoTableAliasAs {
		g.WriteString(" ")
	} else {
		g.WriteString(" AS ")
	}
	g.Quote(name)
}
