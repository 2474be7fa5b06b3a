package sharding

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/cases"

	"github.com/syssam/veloq/dbexpr"
)

// MissingKeyPolicy decides the resolution of a statement without routing
// key values.
type MissingKeyPolicy int

// Missing key policies.
const (
	// Broadcast resolves to every physical table. Callers merge the
	// results of all shards.
	Broadcast MissingKeyPolicy = iota
	// Reject fails with ErrMissingShardingKey.
	Reject
)

func (p MissingKeyPolicy) String() string {
	if p == Reject {
		return "reject"
	}
	return "broadcast"
}

// ParseMissingKeyPolicy parses "broadcast" or "reject".
func ParseMissingKeyPolicy(s string) (MissingKeyPolicy, error) {
	switch cases.Fold().String(s) {
	case "", "broadcast":
		return Broadcast, nil
	case "reject":
		return Reject, nil
	}
	return 0, fmt.Errorf("sharding: unknown missing key policy %q", s)
}

// Rule shards one logical table by the values of Column.
type Rule struct {
	Table      string
	Column     string
	Algorithm  Algorithm
	MissingKey MissingKeyPolicy
}

// Resolution is the result of routing one statement.
type Resolution struct {
	Tables []*RouteTable
	// Broadcast reports a resolution to every physical table because the
	// statement had no routing key.
	Broadcast bool
}

// Router resolves logical tables. It is safe for concurrent use; Replace
// swaps the rules atomically.
type Router struct {
	mu     sync.RWMutex
	rules  map[string]*Rule
	logger *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the logger of routing decisions.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter returns a router with the given rules.
func NewRouter(rules []*Rule, opts ...RouterOption) (*Router, error) {
	r := &Router{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Replace(rules); err != nil {
		return nil, err
	}
	return r, nil
}

func foldTable(name string) string { return cases.Fold().String(name) }

// Replace swaps the rules of the router.
func (r *Router) Replace(rules []*Rule) error {
	m := make(map[string]*Rule, len(rules))
	for _, rule := range rules {
		if rule.Algorithm == nil {
			return fmt.Errorf("sharding: rule of %q has no algorithm", rule.Table)
		}
		key := foldTable(rule.Table)
		if _, ok := m[key]; ok {
			return fmt.Errorf("sharding: duplicate rule of %q", rule.Table)
		}
		m[key] = rule
	}
	r.mu.Lock()
	r.rules = m
	r.mu.Unlock()
	return nil
}

// Rule returns the rule of a logical table.
func (r *Router) Rule(table string) (*Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[foldTable(table)]
	return rule, ok
}

// Sharded reports whether the logical table has a rule.
func (r *Router) Sharded(table string) bool {
	_, ok := r.Rule(table)
	return ok
}

// Resolve returns the physical tables of a logical table for the routing
// key values, de-duplicated and ordered by data source, schema and name.
func (r *Router) Resolve(table string, keys ...any) ([]*RouteTable, error) {
	res, err := r.Route(table, keys...)
	if err != nil {
		return nil, err
	}
	return res.Tables, nil
}

// Route is Resolve reporting whether the missing key policy broadcast the
// statement.
func (r *Router) Route(table string, keys ...any) (*Resolution, error) {
	rule, ok := r.Rule(table)
	if !ok {
		return nil, fmt.Errorf("sharding: %s: %w", table, ErrUnknownTable)
	}
	if len(keys) == 0 {
		if rule.MissingKey == Reject {
			return nil, fmt.Errorf("sharding: %s.%s: %w", table, rule.Column, ErrMissingShardingKey)
		}
		tables := normalize(rule.Algorithm.Tables())
		r.logger.Debug("sharding broadcast", "table", table, "routes", len(tables))
		return &Resolution{Tables: tables, Broadcast: true}, nil
	}
	var tables []*RouteTable
	for _, k := range keys {
		ts, err := rule.Algorithm.Route(k)
		if err != nil {
			return nil, fmt.Errorf("sharding: %s: %w", table, err)
		}
		tables = append(tables, ts...)
	}
	tables = normalize(tables)
	r.logger.Debug("sharding resolved", "table", table, "keys", len(keys), "routes", len(tables))
	return &Resolution{Tables: tables}, nil
}

// RouteCondition routes a statement by the key values its condition
// constrains the rule column of alias to. A condition that constrains the
// column to no value resolves to no table.
func (r *Router) RouteCondition(table, alias string, cond dbexpr.Expr) (*Resolution, error) {
	rule, ok := r.Rule(table)
	if !ok {
		return nil, fmt.Errorf("sharding: %s: %w", table, ErrUnknownTable)
	}
	keys, ok := KeysFromCondition(cond, alias, rule.Column)
	if !ok {
		return r.Route(table)
	}
	if len(keys) == 0 {
		return &Resolution{}, nil
	}
	return r.Route(table, keys...)
}
