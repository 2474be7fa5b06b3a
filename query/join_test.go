package query

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloq/dbexpr"
)

func TestNullChecked(t *testing.T) {
	tString, tInt64 := reflect.TypeFor[string](), reflect.TypeFor[int64]()
	leftKey := dbexpr.NewColumnAccess("T", "city_id", reflect.TypeFor[*int64]())
	rightKey := dbexpr.NewColumnAccess("T0", "id", tInt64)
	tests := []struct {
		name         string
		join         dbexpr.JoinType
		checksSource bool
		checksJoined bool
	}{
		{"inner", dbexpr.InnerJoin, false, false},
		{"left", dbexpr.LeftJoin, false, true},
		{"right", dbexpr.RightJoin, true, false},
		{"full", dbexpr.FullJoin, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewPrimitiveModel(dbexpr.NewColumnAccess("T", "name", tString), tString, "Name")
			joined := NewPrimitiveModel(dbexpr.NewColumnAccess("T0", "name", tString), tString, "CityName")
			out := nullChecked([]ObjectModel{src}, tt.join, &JoinQueryResult{ResultModel: joined, LeftKey: leftKey, RightKey: rightKey})
			require.Len(t, out, 2)
			assert.Nil(t, src.NullChecking, "sources are not changed in place")
			assert.Nil(t, joined.NullChecking, "the joined shape is not changed in place")

			check := func(m ObjectModel) dbexpr.Expr { return m.(*PrimitiveModel).NullChecking }
			if tt.checksSource {
				assert.Same(t, leftKey, check(out[0]))
			} else {
				assert.Nil(t, check(out[0]))
			}
			if tt.checksJoined {
				assert.Same(t, rightKey, check(out[1]))
			} else {
				assert.Nil(t, check(out[1]))
			}
		})
	}

	t.Run("first key is kept", func(t *testing.T) {
		first := dbexpr.NewColumnAccess("T", "id", tInt64)
		src := NewPrimitiveModel(dbexpr.NewColumnAccess("T", "name", tString), tString, "Name").WithNullChecking(first)
		joined := NewPrimitiveModel(dbexpr.NewColumnAccess("T0", "name", tString), tString, "CityName")
		out := nullChecked([]ObjectModel{src}, dbexpr.FullJoin, &JoinQueryResult{ResultModel: joined, LeftKey: leftKey, RightKey: rightKey})
		assert.Same(t, first, out[0].(*PrimitiveModel).NullChecking)
	})
}

func TestGenerateUniqueTableAlias(t *testing.T) {
	seg := func(alias string) dbexpr.TableSegment {
		return dbexpr.TableSegment{Body: &dbexpr.Table{Name: "t"}, Alias: alias}
	}
	tests := []struct {
		name   string
		scope  []string
		tree   *dbexpr.FromTable
		prefix string
		want   string
	}{
		{
			name:   "free prefix",
			prefix: "T",
			want:   "T",
		},
		{
			name:   "allocated in the compilation",
			scope:  []string{"T", "T0"},
			prefix: "T",
			want:   "T1",
		},
		{
			name:   "used by the root table",
			tree:   &dbexpr.FromTable{Table: seg("T")},
			prefix: "T",
			want:   "T0",
		},
		{
			name: "used in nested joins",
			tree: &dbexpr.FromTable{Table: seg("T"), Joins: []*dbexpr.JoinTable{
				{Table: seg("t0"), Joins: []*dbexpr.JoinTable{{Table: seg("T1")}}},
			}},
			scope:  []string{"T2"},
			prefix: "T",
			want:   "T3",
		},
		{
			name:   "default prefix",
			tree:   &dbexpr.FromTable{Table: seg("T")},
			prefix: "",
			want:   "T0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(Options{}, nil, nil)
			for _, a := range tt.scope {
				m.ScopeTables.Add(a)
			}
			m.FromTable = tt.tree
			got := m.GenerateUniqueTableAlias(tt.prefix)
			assert.Equal(t, tt.want, got)
			assert.True(t, m.ScopeTables.Contains(got), "the alias is allocated")
			assert.NotEqual(t, got, m.GenerateUniqueTableAlias(tt.prefix))
		})
	}
}
