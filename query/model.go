package query

import (
	"maps"
	"reflect"

	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/schema"
)

// DefaultAlias is the prefix of generated table aliases.
const DefaultAlias = "T"

// Options are the per-chain switches of a model.
type Options struct {
	// IgnoreFilters disables global and context filter injection.
	IgnoreFilters bool
}

// Model accumulates the state of one query while its operations are
// folded. Models are cloned at every transition and never share lists
// with their parent.
type Model struct {
	Options         Options
	FromTable       *dbexpr.FromTable
	Condition       dbexpr.Expr
	HavingCondition dbexpr.Expr
	Orderings       []dbexpr.Ordering
	GroupSegments   []dbexpr.Expr
	// GlobalFilters are the filters of the root entity.
	GlobalFilters []dbexpr.Expr
	// ContextFilters are the filters registered for the current context.
	ContextFilters []dbexpr.Expr
	// ScopeTables holds the aliases allocated in the compilation, case
	// folded. It is shared with nested queries.
	ScopeTables *AliasSet
	// ScopeParameters binds lambda parameters to result shapes.
	ScopeParameters ScopeParameters
	// ResultModel is the shape of one result row.
	ResultModel ObjectModel
	// TouchedTables lists the physical tables the query reads.
	TouchedTables []*dbexpr.Table
	Skip          *int
	Take          *int
	Distinct      bool

	state stateKind
}

// NewModel returns an empty model using the given alias set and scope.
// A nil alias set starts a new compilation.
func NewModel(opts Options, tables *AliasSet, params ScopeParameters) *Model {
	if tables == nil {
		tables = NewAliasSet()
	}
	return &Model{Options: opts, ScopeTables: tables, ScopeParameters: params.clone()}
}

// Clone returns a copy of m. Orderings are copied only when
// includeOrderings is set.
func (m *Model) Clone(includeOrderings bool) *Model {
	c := &Model{
		Options:         m.Options,
		FromTable:       m.FromTable,
		Condition:       m.Condition,
		HavingCondition: m.HavingCondition,
		GroupSegments:   append([]dbexpr.Expr(nil), m.GroupSegments...),
		GlobalFilters:   append([]dbexpr.Expr(nil), m.GlobalFilters...),
		ContextFilters:  append([]dbexpr.Expr(nil), m.ContextFilters...),
		ScopeTables:     m.ScopeTables,
		ScopeParameters: m.ScopeParameters.clone(),
		ResultModel:     m.ResultModel,
		TouchedTables:   append([]*dbexpr.Table(nil), m.TouchedTables...),
		Skip:            m.Skip,
		Take:            m.Take,
		Distinct:        m.Distinct,
		state:           m.state,
	}
	if includeOrderings {
		c.Orderings = append([]dbexpr.Ordering(nil), m.Orderings...)
	}
	return c
}

// AppendCondition conjoins cond to the condition. A constant true is
// dropped.
func (m *Model) AppendCondition(cond dbexpr.Expr) {
	if isTrue(cond) {
		return
	}
	m.Condition = dbexpr.And(m.Condition, cond)
}

// AppendHavingCondition conjoins cond to the HAVING condition.
func (m *Model) AppendHavingCondition(cond dbexpr.Expr) {
	if isTrue(cond) {
		return
	}
	m.HavingCondition = dbexpr.And(m.HavingCondition, cond)
}

func isTrue(e dbexpr.Expr) bool {
	c, ok := e.(*dbexpr.Constant)
	if !ok {
		return false
	}
	b, ok := c.Value.(bool)
	return ok && b
}

// CreateSqlQuery returns the SELECT of the model without columns. Context
// and global filters are conjoined unless ignored.
func (m *Model) CreateSqlQuery() *dbexpr.SqlQuery {
	q := dbexpr.NewSqlQuery(m.resultType())
	q.Table = m.FromTable
	q.Condition = m.Condition
	if !m.Options.IgnoreFilters {
		conds := append(append([]dbexpr.Expr(nil), m.ContextFilters...), m.Condition)
		q.Condition = dbexpr.And(append(conds, m.GlobalFilters...)...)
	}
	q.GroupSegments = append([]dbexpr.Expr(nil), m.GroupSegments...)
	q.Having = m.HavingCondition
	q.Orderings = append([]dbexpr.Ordering(nil), m.Orderings...)
	q.Skip, q.Take, q.Distinct = m.Skip, m.Take, m.Distinct
	return q
}

func (m *Model) resultType() reflect.Type {
	if m.ResultModel == nil {
		return nil
	}
	return m.ResultModel.Type()
}

// GenerateUniqueTableAlias returns prefix, or prefix followed by the
// first free number, such that the alias is neither allocated in the
// compilation nor used in the join tree. The alias is allocated
// immediately.
func (m *Model) GenerateUniqueTableAlias(prefix string) string {
	if prefix == "" {
		prefix = DefaultAlias
	}
	inTree := make(map[string]bool)
	if m.FromTable != nil {
		m.FromTable.Aliases(func(a string) { inTree[schema.FoldName(a)] = true })
	}
	alias := dbexpr.UniqueName(prefix, func(name string) bool {
		return m.ScopeTables.Contains(name) || inTree[schema.FoldName(name)]
	})
	m.ScopeTables.Add(alias)
	return alias
}

// AliasSet is a case insensitive set of table aliases.
type AliasSet struct {
	names map[string]bool
}

// NewAliasSet returns an empty set.
func NewAliasSet() *AliasSet {
	return &AliasSet{names: make(map[string]bool)}
}

// Add adds name to the set.
func (s *AliasSet) Add(name string) { s.names[schema.FoldName(name)] = true }

// Contains reports whether name is in the set, ignoring case.
func (s *AliasSet) Contains(name string) bool { return s.names[schema.FoldName(name)] }

// Len returns the number of aliases.
func (s *AliasSet) Len() int { return len(s.names) }

// ScopeParameters binds lambda parameters to the shapes they stand for.
type ScopeParameters map[*expr.Parameter]ObjectModel

// With returns a copy of s with p bound to m.
func (s ScopeParameters) With(p *expr.Parameter, m ObjectModel) ScopeParameters {
	c := s.clone()
	c[p] = m
	return c
}

func (s ScopeParameters) clone() ScopeParameters {
	c := make(ScopeParameters, len(s)+1)
	maps.Copy(c, s)
	return c
}
