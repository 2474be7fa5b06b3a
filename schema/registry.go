package schema

import (
	"reflect"
	"sync"

	"github.com/syssam/veloq/expr"
)

// Registry caches entity descriptors. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[reflect.Type]*Entity
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[reflect.Type]*Entity)}
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Option configures an entity when it is registered.
type Option func(*Entity)

// WithTable overrides the table name.
func WithTable(name string) Option {
	return func(e *Entity) { e.Table = name }
}

// WithSchema sets the database schema of the table.
func WithSchema(name string) Option {
	return func(e *Entity) { e.Schema = name }
}

// WithFilter adds a global filter.
func WithFilter(p expr.Predicate) Option {
	return func(e *Entity) { e.Filters = append(e.Filters, p) }
}

// Register describes t, applies the options and stores the descriptor,
// replacing any previous one.
func (r *Registry) Register(t reflect.Type, opts ...Option) (*Entity, error) {
	e, err := Describe(t)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(e)
	}
	r.mu.Lock()
	r.entities[e.Type] = e
	r.mu.Unlock()
	return e, nil
}

// Of returns the descriptor of t, describing it on first use.
func (r *Registry) Of(t reflect.Type) (*Entity, error) {
	t = expr.Deref(t)
	r.mu.RLock()
	e, ok := r.entities[t]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}
	e, err := Describe(t)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entities[t]; ok {
		return cur, nil
	}
	r.entities[t] = e
	return e, nil
}

// HasQueryFilter adds a global filter to the entity type t.
func (r *Registry) HasQueryFilter(t reflect.Type, p expr.Predicate) error {
	e, err := r.Of(t)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *e
	c.Filters = append(append([]expr.Predicate(nil), e.Filters...), p)
	r.entities[e.Type] = &c
	return nil
}

// Entities returns the registered descriptors.
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	return out
}

// Register registers T in the default registry.
func Register[T any](opts ...Option) (*Entity, error) {
	return Default.Register(reflect.TypeFor[T](), opts...)
}

// Of returns the descriptor of T from the default registry.
func Of[T any]() (*Entity, error) {
	return Default.Of(reflect.TypeFor[T]())
}
