package query

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign(t *testing.T) {
	t.Run("numbers", func(t *testing.T) {
		var n int32
		require.NoError(t, assign(reflect.ValueOf(&n).Elem(), int64(42)))
		assert.Equal(t, int32(42), n)

		var f float64
		require.NoError(t, assign(reflect.ValueOf(&f).Elem(), int64(3)))
		assert.Equal(t, 3.0, f)
	})
	t.Run("null", func(t *testing.T) {
		s := "x"
		require.NoError(t, assign(reflect.ValueOf(&s).Elem(), nil))
		assert.Empty(t, s)

		p := new(int)
		require.NoError(t, assign(reflect.ValueOf(&p).Elem(), nil))
		assert.Nil(t, p)
	})
	t.Run("pointer", func(t *testing.T) {
		var p *int64
		require.NoError(t, assign(reflect.ValueOf(&p).Elem(), int64(7)))
		require.NotNil(t, p)
		assert.Equal(t, int64(7), *p)
	})
	t.Run("bool from integer", func(t *testing.T) {
		var b bool
		require.NoError(t, assign(reflect.ValueOf(&b).Elem(), int64(1)))
		assert.True(t, b)
	})
	t.Run("text", func(t *testing.T) {
		var tm time.Time
		require.NoError(t, assign(reflect.ValueOf(&tm).Elem(), "2024-03-01 10:20:30"))
		assert.Equal(t, time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC), tm)

		var n int
		require.NoError(t, assign(reflect.ValueOf(&n).Elem(), []byte("12")))
		assert.Equal(t, 12, n)

		var s string
		require.NoError(t, assign(reflect.ValueOf(&s).Elem(), []byte("abc")))
		assert.Equal(t, "abc", s)
	})
	t.Run("bytes are copied", func(t *testing.T) {
		src := []byte{1, 2}
		var b []byte
		require.NoError(t, assign(reflect.ValueOf(&b).Elem(), src))
		src[0] = 9
		assert.Equal(t, []byte{1, 2}, b)
	})
	t.Run("scanner", func(t *testing.T) {
		var d decimal.Decimal
		require.NoError(t, assign(reflect.ValueOf(&d).Elem(), "12.50"))
		assert.True(t, d.Equal(decimal.RequireFromString("12.5")))

		var ns sql.NullString
		require.NoError(t, assign(reflect.ValueOf(&ns).Elem(), "v"))
		assert.Equal(t, sql.NullString{String: "v", Valid: true}, ns)
	})
	t.Run("mismatch", func(t *testing.T) {
		var n int
		assert.Error(t, assign(reflect.ValueOf(&n).Elem(), struct{}{}))
		assert.Error(t, assign(reflect.ValueOf(&n).Elem(), "twelve"))
	})
}

type (
	line struct {
		ID  int64
		Qty int
	}
	head struct {
		ID    int64
		Note  *string
		Lines []*line
	}
	Base struct {
		ID int64
	}
	embedded struct {
		*Base
		Extra int
	}
)

func headActivator() *objectActivator {
	return &objectActivator{
		typ:       reflect.TypeFor[head](),
		nullCheck: -1,
		keys:      []int{0},
		members: []fieldActivator{
			{index: []int{0}, act: &primitiveActivator{ordinal: 0, typ: reflect.TypeFor[int64](), nullCheck: -1}},
			{index: []int{1}, act: &primitiveActivator{ordinal: 1, typ: reflect.TypeFor[*string](), nullCheck: -1}},
		},
		collections: []*collectionActivator{{
			typ:   reflect.TypeFor[[]*line](),
			index: []int{2},
			elem: &objectActivator{
				typ:       reflect.TypeFor[*line](),
				nullCheck: 2,
				keys:      []int{2},
				members: []fieldActivator{
					{index: []int{0}, act: &primitiveActivator{ordinal: 2, typ: reflect.TypeFor[int64](), nullCheck: -1}},
					{index: []int{1}, act: &primitiveActivator{ordinal: 3, typ: reflect.TypeFor[int](), nullCheck: -1}},
				},
			},
		}},
	}
}

func TestReaderMergesCollections(t *testing.T) {
	note := "n"
	rows := [][]any{
		{int64(1), note, int64(10), int64(2)},
		{int64(1), note, int64(11), int64(3)},
		{int64(2), nil, nil, nil},
		{int64(1), note, int64(10), int64(2)},
	}
	r := NewReader(headActivator())
	for _, row := range rows {
		require.NoError(t, r.Read(row))
	}
	values := r.Values()
	require.Len(t, values, 2)

	first := values[0].Interface().(head)
	assert.Equal(t, int64(1), first.ID)
	require.NotNil(t, first.Note)
	assert.Equal(t, "n", *first.Note)
	require.Len(t, first.Lines, 2)
	assert.Equal(t, &line{ID: 10, Qty: 2}, first.Lines[0])
	assert.Equal(t, &line{ID: 11, Qty: 3}, first.Lines[1])

	second := values[1].Interface().(head)
	assert.Nil(t, second.Note)
	assert.Empty(t, second.Lines)
}

func TestObjectActivatorNullCheck(t *testing.T) {
	a := &objectActivator{
		typ:       reflect.TypeFor[*line](),
		nullCheck: 0,
		members: []fieldActivator{
			{index: []int{0}, act: &primitiveActivator{ordinal: 0, typ: reflect.TypeFor[int64](), nullCheck: -1}},
		},
	}
	v, err := a.Create([]any{nil})
	require.NoError(t, err)
	assert.True(t, v.IsNil())

	v, err = a.Create([]any{int64(4)})
	require.NoError(t, err)
	assert.Equal(t, &line{ID: 4}, v.Interface())
}

func TestFieldAllocEmbeddedPointer(t *testing.T) {
	var e embedded
	sf, ok := reflect.TypeFor[embedded]().FieldByName("ID")
	require.True(t, ok)
	f := fieldAlloc(reflect.ValueOf(&e).Elem(), sf.Index)
	f.SetInt(5)
	require.NotNil(t, e.Base)
	assert.Equal(t, int64(5), e.ID)
}
