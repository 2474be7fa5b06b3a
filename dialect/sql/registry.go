package sql

import (
	"maps"
	"sync"
	"sync/atomic"

	"github.com/syssam/veloq/dbexpr"
)

// MethodHandler translates method calls.
type MethodHandler interface {
	// CanProcess reports whether the handler translates the call.
	CanProcess(*dbexpr.MethodCall) bool
	// Process renders the call.
	Process(*dbexpr.MethodCall, *Generator)
}

// PropertyHandler translates member accesses.
type PropertyHandler interface {
	CanProcess(*dbexpr.MemberAccess) bool
	Process(*dbexpr.MemberAccess, *Generator)
}

type handlerTables struct {
	methods    map[string][]MethodHandler
	properties map[string][]PropertyHandler
}

// Registry holds the method and property handlers of a dialect. Lookups
// are lock free; registrations copy the tables under a mutex. The last
// registered handler of a name is consulted first.
type Registry struct {
	mu     sync.Mutex
	tables atomic.Pointer[handlerTables]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.tables.Store(&handlerTables{
		methods:    map[string][]MethodHandler{},
		properties: map[string][]PropertyHandler{},
	})
	return r
}

// RegisterMethod registers h for methods named name, ahead of the handlers
// already registered for it.
func (r *Registry) RegisterMethod(name string, h MethodHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.tables.Load()
	methods := maps.Clone(cur.methods)
	methods[name] = append([]MethodHandler{h}, cur.methods[name]...)
	r.tables.Store(&handlerTables{methods: methods, properties: cur.properties})
}

// RegisterProperty registers h for members named name, ahead of the
// handlers already registered for it.
func (r *Registry) RegisterProperty(name string, h PropertyHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.tables.Load()
	properties := maps.Clone(cur.properties)
	properties[name] = append([]PropertyHandler{h}, cur.properties[name]...)
	r.tables.Store(&handlerTables{methods: cur.methods, properties: properties})
}

// Methods returns the handlers of name in lookup order.
func (r *Registry) Methods(name string) []MethodHandler {
	return r.tables.Load().methods[name]
}

// Properties returns the handlers of name in lookup order.
func (r *Registry) Properties(name string) []PropertyHandler {
	return r.tables.Load().properties[name]
}

// Clone returns a registry with the same handlers.
func (r *Registry) Clone() *Registry {
	c := &Registry{}
	c.tables.Store(r.tables.Load())
	return c
}

// MethodFunc is a MethodHandler for calls of one owner. An empty Owner
// accepts every owner.
type MethodFunc struct {
	Owner string
	Fn    func(*dbexpr.MethodCall, *Generator)
	// Accept optionally narrows the calls handled.
	Accept func(*dbexpr.MethodCall) bool
}

// CanProcess implements MethodHandler.
func (f MethodFunc) CanProcess(c *dbexpr.MethodCall) bool {
	if f.Owner != "" && f.Owner != c.Owner {
		return false
	}
	return f.Accept == nil || f.Accept(c)
}

// Process implements MethodHandler.
func (f MethodFunc) Process(c *dbexpr.MethodCall, g *Generator) { f.Fn(c, g) }

// PropertyFunc is a PropertyHandler for members of one owner. An empty
// Owner accepts every owner.
type PropertyFunc struct {
	Owner  string
	Fn     func(*dbexpr.MemberAccess, *Generator)
	Accept func(*dbexpr.MemberAccess) bool
}

// CanProcess implements PropertyHandler.
func (f PropertyFunc) CanProcess(m *dbexpr.MemberAccess) bool {
	if f.Owner != "" && f.Owner != m.Owner {
		return false
	}
	return f.Accept == nil || f.Accept(m)
}

// Process implements PropertyHandler.
func (f PropertyFunc) Process(m *dbexpr.MemberAccess, g *Generator) { f.Fn(m, g) }

// MethodTemplate returns a handler rendering tmpl, where {0}, {1}, ...
// stand for the operands: the call object, if any, then the arguments.
func MethodTemplate(owner, tmpl string) MethodFunc {
	return MethodFunc{Owner: owner, Fn: func(c *dbexpr.MethodCall, g *Generator) {
		var ops []Expr
		if c.Object != nil {
			ops = append(ops, c.Object)
		}
		g.Template(tmpl, append(ops, c.Args...)...)
	}}
}

// PropertyTemplate returns a handler rendering tmpl with {0} standing for
// the member's value.
func PropertyTemplate(owner, tmpl string) PropertyFunc {
	return PropertyFunc{Owner: owner, Fn: func(m *dbexpr.MemberAccess, g *Generator) {
		if m.X == nil {
			g.Template(tmpl)
			return
		}
		g.Template(tmpl, m.X)
	}}
}

// Template renders tmpl with {n} replaced by the n-th operand rendered as a
// value.
func (g *Generator) Template(tmpl string, ops ...Expr) {
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] == '{' {
			j := i + 1
			for j < len(tmpl) && tmpl[j] >= '0' && tmpl[j] <= '9' {
				j++
			}
			if j > i+1 && j < len(tmpl) && tmpl[j] == '}' {
				n := 0
				for _, ch := range tmpl[i+1 : j] {
					n = n*10 + int(ch-'0')
				}
				if n >= len(ops) {
					g.Unsupported("template "+tmpl, "missing operand")
					return
				}
				g.Value(ops[n])
				i = j
				continue
			}
		}
		g.sb.WriteByte(tmpl[i])
	}
}
