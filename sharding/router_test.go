package sharding_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloq/sharding"
)

func names(ts []*sharding.RouteTable) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

func orderRouter(t *testing.T, policy sharding.MissingKeyPolicy) *sharding.Router {
	t.Helper()
	h, err := sharding.NewHash(sharding.Hash{
		Logical:     "orders",
		Pattern:     "orders_{n}",
		Count:       4,
		DataSources: []string{"ds0", "ds1"},
	})
	require.NoError(t, err)
	r, err := sharding.NewRouter([]*sharding.Rule{{Table: "orders", Column: "user_id", Algorithm: h, MissingKey: policy}})
	require.NoError(t, err)
	return r
}

func TestHash(t *testing.T) {
	r := orderRouter(t, sharding.Broadcast)

	got, err := r.Resolve("orders", int64(6))
	require.NoError(t, err)
	assert.Equal(t, []string{"ds0:orders_2"}, names(got))

	got, err = r.Resolve("ORDERS", 1, 5, int32(9), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"ds0:orders_2", "ds1:orders_1"}, names(got), "deduplicated and ordered")

	again, err := r.Resolve("orders", 2, int32(9), 5, 1)
	require.NoError(t, err)
	assert.Equal(t, names(got), names(again))

	t.Run("string and uuid keys are stable", func(t *testing.T) {
		id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		a, err := r.Resolve("orders", "alice", id)
		require.NoError(t, err)
		b, err := r.Resolve("orders", id, "alice")
		require.NoError(t, err)
		assert.Equal(t, names(a), names(b))
	})
	t.Run("unhashable key", func(t *testing.T) {
		_, err := r.Resolve("orders", struct{}{})
		assert.Error(t, err)
		_, err = r.Resolve("orders", nil)
		assert.ErrorIs(t, err, sharding.ErrNoRoute)
	})
	t.Run("base and data source only", func(t *testing.T) {
		h, err := sharding.NewHash(sharding.Hash{Logical: "users", Pattern: "users_{n}", Count: 2, Base: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"users_1", "users_2"}, names(h.Tables()))

		h, err = sharding.NewHash(sharding.Hash{Logical: "users", DataSources: []string{"a", "b", "c"}, NotShardingTable: true})
		require.NoError(t, err)
		ts, err := h.Route(uint8(4))
		require.NoError(t, err)
		assert.Equal(t, []string{"b:users"}, names(ts))
	})
	t.Run("invalid", func(t *testing.T) {
		_, err := sharding.NewHash(sharding.Hash{Logical: "x", Pattern: "x", Count: 2})
		assert.Error(t, err)
		_, err = sharding.NewHash(sharding.Hash{Logical: "x", Pattern: "x_{n}"})
		assert.Error(t, err)
	})
}

func TestMissingKeyPolicy(t *testing.T) {
	res, err := orderRouter(t, sharding.Broadcast).Route("orders")
	require.NoError(t, err)
	assert.True(t, res.Broadcast)
	assert.Equal(t, []string{"ds0:orders_0", "ds0:orders_2", "ds1:orders_1", "ds1:orders_3"}, names(res.Tables))

	_, err = orderRouter(t, sharding.Reject).Route("orders")
	assert.ErrorIs(t, err, sharding.ErrMissingShardingKey)

	res, err = orderRouter(t, sharding.Reject).Route("orders", 3)
	require.NoError(t, err)
	assert.False(t, res.Broadcast)

	_, err = orderRouter(t, sharding.Broadcast).Route("users", 1)
	assert.ErrorIs(t, err, sharding.ErrUnknownTable)

	p, err := sharding.ParseMissingKeyPolicy("Reject")
	require.NoError(t, err)
	assert.Equal(t, sharding.Reject, p)
	_, err = sharding.ParseMissingKeyPolicy("maybe")
	assert.Error(t, err)
}

func TestRange(t *testing.T) {
	low := &sharding.RouteTable{Name: "logs_2023"}
	high := &sharding.RouteTable{Name: "logs_2024"}
	y2023 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	y2024 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	y2025 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	rg, err := sharding.NewRange(
		sharding.RangeBound{From: y2024, To: y2025, Table: high},
		sharding.RangeBound{From: y2023, To: y2024, Table: low},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"logs_2023", "logs_2024"}, names(rg.Tables()))

	ts, err := rg.Route(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []*sharding.RouteTable{high}, ts)

	ts, err = rg.Route(y2024 - 1)
	require.NoError(t, err)
	assert.Equal(t, []*sharding.RouteTable{low}, ts)

	_, err = rg.Route(y2025)
	assert.ErrorIs(t, err, sharding.ErrNoRoute)
	_, err = rg.Route("2024")
	assert.ErrorIs(t, err, sharding.ErrNoRoute)

	_, err = sharding.NewRange(
		sharding.RangeBound{From: 0, To: 10, Table: low},
		sharding.RangeBound{From: 5, To: 20, Table: high},
	)
	assert.Error(t, err, "overlap")
	_, err = sharding.NewRange(sharding.RangeBound{From: 3, To: 3, Table: low})
	assert.Error(t, err, "empty")
}

func TestStatic(t *testing.T) {
	cn := &sharding.RouteTable{Name: "users", DataSource: "asia"}
	us := &sharding.RouteTable{Name: "users", DataSource: "america"}
	s := sharding.NewStatic().Map(cn, "cn", "jp").Map(us, "us")

	ts, err := s.Route("jp")
	require.NoError(t, err)
	assert.Equal(t, []*sharding.RouteTable{cn}, ts)
	_, err = s.Route("fr")
	assert.ErrorIs(t, err, sharding.ErrNoRoute)

	eu := &sharding.RouteTable{Name: "users", DataSource: "europe"}
	s.Default = eu
	ts, err = s.Route("fr")
	require.NoError(t, err)
	assert.Equal(t, []*sharding.RouteTable{eu}, ts)
	assert.Len(t, s.Tables(), 3)
}

func TestReplace(t *testing.T) {
	r := orderRouter(t, sharding.Broadcast)
	s := sharding.NewStatic().Map(&sharding.RouteTable{Name: "o"}, 1)
	require.NoError(t, r.Replace([]*sharding.Rule{{Table: "orders", Column: "id", Algorithm: s}}))
	got, err := r.Resolve("orders", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"o"}, names(got))

	err = r.Replace([]*sharding.Rule{{Table: "a", Algorithm: s}, {Table: "A", Algorithm: s}})
	assert.Error(t, err)
	assert.True(t, r.Sharded("orders"), "a failed replace keeps the rules")
}
