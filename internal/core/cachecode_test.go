package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheCode_EmptyAccumulatorIsZero(t *testing.T) {
	var c CacheCode
	require.Equal(t, int32(0), c.ToCacheCode())
}

func TestCacheCode_SeedsWith23ThenFolds31(t *testing.T) {
	var c CacheCode
	c.Add(1)
	require.Equal(t, int32(23*31+1), c.ToCacheCode())

	c.Add(2)
	require.Equal(t, int32((23*31+1)*31+2), c.ToCacheCode())
}

func TestCacheCode_ToCacheCodeDoesNotReset(t *testing.T) {
	var c CacheCode
	c.Add(7)
	first := c.ToCacheCode()
	require.Equal(t, first, c.ToCacheCode())
}

func TestCacheCode_OrderSensitive(t *testing.T) {
	var ab, ba CacheCode
	ab.Add(1)
	ab.Add(2)
	ba.Add(2)
	ba.Add(1)
	require.NotEqual(t, ab.ToCacheCode(), ba.ToCacheCode())
}

// Pinned values guard against accidental changes to the fold, which would
// silently invalidate every persisted cache key.
func TestCacheCode_PinnedValues(t *testing.T) {
	var s CacheCode
	s.AddString("hello")
	require.Equal(t, int32(713+907060870), s.ToCacheCode())

	var w CacheCode
	w.Add(math.MaxInt32)
	require.Equal(t, int32(-2147482936), w.ToCacheCode())

	var b CacheCode
	b.AddBool(true)
	require.Equal(t, int32(714), b.ToCacheCode())
}

func TestCacheCode_ZeroFalseNullDistinctFromEmpty(t *testing.T) {
	var empty CacheCode

	var f CacheCode
	f.AddBool(false)

	var null CacheCode
	null.AddNullableString(nil)

	var zero CacheCode
	zero.Add(0)

	assert.NotEqual(t, empty.ToCacheCode(), f.ToCacheCode())
	assert.NotEqual(t, empty.ToCacheCode(), null.ToCacheCode())
	assert.NotEqual(t, empty.ToCacheCode(), zero.ToCacheCode())
	assert.NotEqual(t, f.ToCacheCode(), null.ToCacheCode())
}

func TestCacheCode_Int64Truncates(t *testing.T) {
	var a, b CacheCode
	a.AddInt64(1<<32 + 5)
	b.Add(5)
	require.Equal(t, b.ToCacheCode(), a.ToCacheCode())
}

func TestCacheCode_TimeUsesTicks(t *testing.T) {
	require.Equal(t, int64(621355968000000000), Ticks(time.Unix(0, 0)))

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var a, b CacheCode
	a.AddTime(ts)
	b.AddTime(ts.In(time.FixedZone("X", 3600)))
	require.Equal(t, a.ToCacheCode(), b.ToCacheCode())
}

type fixedCoder struct {
	code int32
	err  error
}

func (f fixedCoder) CacheCode(context.Context) (int32, error) { return f.code, f.err }

func TestCacheCode_AddObject(t *testing.T) {
	ctx := context.Background()

	var nested, direct CacheCode
	require.NoError(t, nested.AddObject(ctx, fixedCoder{code: 42}))
	direct.Add(42)
	require.Equal(t, direct.ToCacheCode(), nested.ToCacheCode())

	var nilObj, zero CacheCode
	require.NoError(t, nilObj.AddObject(ctx, nil))
	zero.Add(0)
	require.Equal(t, zero.ToCacheCode(), nilObj.ToCacheCode())

	boom := errors.New("boom")
	var failing CacheCode
	err := failing.AddObject(ctx, fixedCoder{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestCacheCode_AddValueMapIsKeyOrderIndependent(t *testing.T) {
	ctx := context.Background()
	var a, b CacheCode
	require.NoError(t, a.AddValue(ctx, map[string]any{"x": 1, "y": "two"}))
	require.NoError(t, b.AddValue(ctx, map[string]any{"y": "two", "x": 1}))
	require.Equal(t, a.ToCacheCode(), b.ToCacheCode())
}

func TestCacheCode_DeterministicAcrossInstances(t *testing.T) {
	build := func() int32 {
		var c CacheCode
		c.AddString("title")
		c.AddBool(true)
		c.AddInt(99)
		c.AddBytes([]byte("body"))
		return c.ToCacheCode()
	}
	first := build()
	for i := 0; i < 10; i++ {
		require.Equal(t, first, build())
	}
}
