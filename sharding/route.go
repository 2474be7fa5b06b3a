// Package sharding maps logical tables to the physical tables and data
// sources that back them.
//
// A Router holds one Rule per sharded logical table. Resolving a table with
// routing key values yields the physical RouteTables the statement must run
// against; resolving it without keys applies the rule's MissingKeyPolicy.
// Rewrite re-targets a compiled statement to one RouteTable and FanOut runs
// the per-route statements in parallel.
package sharding

import (
	"cmp"
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	// ErrMissingShardingKey is returned when a statement on a table with the
	// Reject policy carries no routing key.
	ErrMissingShardingKey = errors.New("sharding: missing sharding key")
	// ErrUnknownTable is returned for logical tables without a rule.
	ErrUnknownTable = errors.New("sharding: unknown logical table")
	// ErrNoRoute is returned when an algorithm has no table for a key.
	ErrNoRoute = errors.New("sharding: no route for key")
)

// RouteTable is a physical table. Its identity is (DataSource, Schema,
// Name). Route tables are shared between resolutions and must not be
// modified.
type RouteTable struct {
	Name       string `json:"name"`
	Schema     string `json:"schema,omitempty"`
	DataSource string `json:"datasource,omitempty"`
}

func (t *RouteTable) String() string {
	var b strings.Builder
	if t.DataSource != "" {
		b.WriteString(t.DataSource)
		b.WriteString(":")
	}
	if t.Schema != "" {
		b.WriteString(t.Schema)
		b.WriteString(".")
	}
	b.WriteString(t.Name)
	return b.String()
}

func (t *RouteTable) identity() string {
	return t.DataSource + "\x00" + t.Schema + "\x00" + t.Name
}

func compareTables(a, b *RouteTable) int {
	return cmp.Or(
		cmp.Compare(a.DataSource, b.DataSource),
		cmp.Compare(a.Schema, b.Schema),
		cmp.Compare(a.Name, b.Name),
	)
}

// normalize de-duplicates tables by identity and orders them by data
// source, schema and name.
func normalize(tables []*RouteTable) []*RouteTable {
	seen := make(map[string]bool, len(tables))
	out := make([]*RouteTable, 0, len(tables))
	for _, t := range tables {
		if id := t.identity(); !seen[id] {
			seen[id] = true
			out = append(out, t)
		}
	}
	slices.SortFunc(out, compareTables)
	return out
}

// Algorithm places routing key values.
type Algorithm interface {
	// Route returns the tables holding rows with the given key.
	Route(key any) ([]*RouteTable, error)
	// Tables returns every physical table of the logical table.
	Tables() []*RouteTable
}

// Hash spreads keys over Count slots. Slot n is the table named by
// Pattern with "{n}" replaced by n+Base, placed on data source
// DataSources[n mod len(DataSources)]. With NotShardingTable the table
// keeps the logical name and only the data source is sharded.
type Hash struct {
	Logical          string
	Schema           string
	Pattern          string
	Count            int
	Base             int
	DataSources      []string
	NotShardingTable bool

	tables []*RouteTable
}

// NewHash validates h and precomputes its slots.
func NewHash(h Hash) (*Hash, error) {
	if h.NotShardingTable {
		if len(h.DataSources) == 0 {
			return nil, fmt.Errorf("sharding: hash of %q: no data sources", h.Logical)
		}
		h.Count = len(h.DataSources)
	}
	if h.Count <= 0 {
		return nil, fmt.Errorf("sharding: hash of %q: slot count must be positive", h.Logical)
	}
	if !h.NotShardingTable && !strings.Contains(h.Pattern, "{n}") && h.Count > 1 {
		return nil, fmt.Errorf("sharding: hash of %q: pattern %q has no {n}", h.Logical, h.Pattern)
	}
	h.DataSources = slices.Clone(h.DataSources)
	h.tables = make([]*RouteTable, h.Count)
	for n := range h.Count {
		t := &RouteTable{Name: h.Logical, Schema: h.Schema}
		if !h.NotShardingTable {
			t.Name = strings.ReplaceAll(h.Pattern, "{n}", strconv.Itoa(n+h.Base))
		}
		if len(h.DataSources) > 0 {
			t.DataSource = h.DataSources[n%len(h.DataSources)]
		}
		h.tables[n] = t
	}
	return &h, nil
}

// Route implements Algorithm.
func (h *Hash) Route(key any) ([]*RouteTable, error) {
	sum, err := HashKey(key)
	if err != nil {
		return nil, err
	}
	return []*RouteTable{h.tables[sum%uint64(len(h.tables))]}, nil
}

// Tables implements Algorithm.
func (h *Hash) Tables() []*RouteTable { return slices.Clone(h.tables) }

// HashKey returns the slot hash of a routing key. Integers hash to their
// absolute value so consecutive ids land on consecutive slots; strings,
// byte slices and UUIDs hash with FNV-1a.
func HashKey(key any) (uint64, error) {
	switch k := key.(type) {
	case nil:
		return 0, fmt.Errorf("sharding: nil routing key: %w", ErrNoRoute)
	case string:
		return fnv1a([]byte(k)), nil
	case []byte:
		return fnv1a(k), nil
	case uuid.UUID:
		return fnv1a(k[:]), nil
	case fmt.Stringer:
		return fnv1a([]byte(k.String())), nil
	}
	v := reflect.ValueOf(key)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return 0, fmt.Errorf("sharding: nil routing key: %w", ErrNoRoute)
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if n < 0 {
			return uint64(-n), nil
		}
		return uint64(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.String:
		return fnv1a([]byte(v.String())), nil
	}
	if v.Type() != reflect.TypeOf(key) {
		return HashKey(v.Interface())
	}
	return 0, fmt.Errorf("sharding: routing key of type %T cannot be hashed", key)
}

func fnv1a(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// RangeBound holds the keys in [From, To).
type RangeBound struct {
	From, To int64
	Table    *RouteTable
}

// Range places integer and time keys by ordered, non-overlapping bounds.
// Times route by their Unix seconds.
type Range struct {
	bounds []RangeBound
}

// NewRange sorts the bounds and rejects empty or overlapping ones.
func NewRange(bounds ...RangeBound) (*Range, error) {
	bounds = slices.Clone(bounds)
	slices.SortFunc(bounds, func(a, b RangeBound) int { return cmp.Compare(a.From, b.From) })
	for i, b := range bounds {
		if b.Table == nil {
			return nil, fmt.Errorf("sharding: range [%d, %d) has no table", b.From, b.To)
		}
		if b.From >= b.To {
			return nil, fmt.Errorf("sharding: range [%d, %d) is empty", b.From, b.To)
		}
		if i > 0 && bounds[i-1].To > b.From {
			return nil, fmt.Errorf("sharding: range [%d, %d) overlaps [%d, %d)", b.From, b.To, bounds[i-1].From, bounds[i-1].To)
		}
	}
	return &Range{bounds: bounds}, nil
}

// Route implements Algorithm.
func (r *Range) Route(key any) ([]*RouteTable, error) {
	n, err := rangeKey(key)
	if err != nil {
		return nil, err
	}
	i, found := slices.BinarySearchFunc(r.bounds, n, func(b RangeBound, n int64) int {
		switch {
		case n < b.From:
			return 1
		case n >= b.To:
			return -1
		}
		return 0
	})
	if !found {
		return nil, fmt.Errorf("sharding: key %d: %w", n, ErrNoRoute)
	}
	return []*RouteTable{r.bounds[i].Table}, nil
}

// Tables implements Algorithm.
func (r *Range) Tables() []*RouteTable {
	out := make([]*RouteTable, len(r.bounds))
	for i, b := range r.bounds {
		out[i] = b.Table
	}
	return out
}

func rangeKey(key any) (int64, error) {
	switch k := key.(type) {
	case time.Time:
		return k.Unix(), nil
	case *time.Time:
		if k != nil {
			return k.Unix(), nil
		}
	}
	v := reflect.ValueOf(key)
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint()), nil
	}
	return 0, fmt.Errorf("sharding: routing key of type %T has no range: %w", key, ErrNoRoute)
}

// Static maps key values to tables explicitly. Keys compare by their
// fmt.Sprint form. Default receives unmapped keys when set.
type Static struct {
	routes  map[string]*RouteTable
	tables  []*RouteTable
	Default *RouteTable
}

// NewStatic returns an empty static map.
func NewStatic() *Static {
	return &Static{routes: map[string]*RouteTable{}}
}

// Map routes the keys to t.
func (s *Static) Map(t *RouteTable, keys ...any) *Static {
	for _, k := range keys {
		s.routes[fmt.Sprint(k)] = t
	}
	s.tables = append(s.tables, t)
	return s
}

// Route implements Algorithm.
func (s *Static) Route(key any) ([]*RouteTable, error) {
	if t, ok := s.routes[fmt.Sprint(key)]; ok {
		return []*RouteTable{t}, nil
	}
	if s.Default != nil {
		return []*RouteTable{s.Default}, nil
	}
	return nil, fmt.Errorf("sharding: key %v: %w", key, ErrNoRoute)
}

// Tables implements Algorithm.
func (s *Static) Tables() []*RouteTable {
	if s.Default != nil {
		return append(slices.Clone(s.tables), s.Default)
	}
	return slices.Clone(s.tables)
}
