package core

import (
	"context"
	"fmt"
	"hash/crc32"
	"sort"
	"strconv"
	"time"
)

// CacheCoder is implemented by values that can produce their own cache code.
//
// Computing a code may need to read content or consult an external store, so
// it takes a context and may fail.
type CacheCoder interface {
	CacheCode(ctx context.Context) (int32, error)
}

// CacheCode is a deterministic, order-sensitive accumulator of 32-bit codes.
//
// It plays the role of a hash combinator but never uses a random seed, so the
// resulting code is bit-identical across runs, processes and machines and can
// be persisted as part of a cache key.
//
// Codes are hints, not identifiers: distinct inputs may collide, and the
// 64-bit folds are lossy (truncated to 32 bits).
//
// The zero value is an empty accumulator ready for use.
type CacheCode struct {
	code   int32
	seeded bool
}

// ticksAtUnixEpoch is the number of 100ns ticks between 0001-01-01 and 1970-01-01.
const ticksAtUnixEpoch int64 = 621355968000000000

// Add folds a single value into the code.
//
// The first call seeds the accumulator with 23 so that a sequence starting
// with 0 differs from an empty sequence. Every value then folds as
// code*31 + v with two's-complement wrap-around.
func (c *CacheCode) Add(v int32) {
	if !c.seeded {
		c.code = 23
		c.seeded = true
	}
	c.code = c.code*31 + v
}

// AddInt folds an int, truncated to 32 bits.
func (c *CacheCode) AddInt(v int) { c.Add(int32(v)) }

// AddInt64 folds a 64-bit integer truncated to its low 32 bits.
func (c *CacheCode) AddInt64(v int64) { c.Add(int32(v)) }

// AddUint32 folds the bit pattern of v.
func (c *CacheCode) AddUint32(v uint32) { c.Add(int32(v)) }

// AddBool folds 1 for true and 2 for false. 0 is reserved for absent values.
func (c *CacheCode) AddBool(v bool) {
	if v {
		c.Add(1)
		return
	}
	c.Add(2)
}

// AddString folds the CRC-32 (IEEE) checksum of the UTF-8 bytes of s.
func (c *CacheCode) AddString(s string) {
	c.AddUint32(crc32.ChecksumIEEE([]byte(s)))
}

// AddNullableString folds 0 for a nil string, otherwise behaves like AddString.
func (c *CacheCode) AddNullableString(s *string) {
	if s == nil {
		c.Add(0)
		return
	}
	c.AddString(*s)
}

// AddBytes folds the CRC-32 (IEEE) checksum of b.
func (c *CacheCode) AddBytes(b []byte) {
	c.AddUint32(crc32.ChecksumIEEE(b))
}

// AddTime folds the tick count of t (100ns units since 0001-01-01 UTC).
func (c *CacheCode) AddTime(t time.Time) {
	c.AddInt64(Ticks(t))
}

// AddObject computes the cache code of a nested object and folds it.
// A nil object folds 0.
func (c *CacheCode) AddObject(ctx context.Context, obj CacheCoder) error {
	if obj == nil {
		c.Add(0)
		return nil
	}
	code, err := obj.CacheCode(ctx)
	if err != nil {
		return fmt.Errorf("computing nested cache code: %w", err)
	}
	c.Add(code)
	return nil
}

// AddValue folds an arbitrary metadata value by dispatching on its dynamic type.
//
// Slices fold element by element, maps fold in sorted key order. Types with no
// dedicated fold use their fmt representation.
func (c *CacheCode) AddValue(ctx context.Context, v any) error {
	switch x := v.(type) {
	case nil:
		c.Add(0)
	case CacheCoder:
		return c.AddObject(ctx, x)
	case string:
		c.AddString(x)
	case *string:
		c.AddNullableString(x)
	case []byte:
		c.AddBytes(x)
	case bool:
		c.AddBool(x)
	case int:
		c.AddInt(x)
	case int8:
		c.Add(int32(x))
	case int16:
		c.Add(int32(x))
	case int32:
		c.Add(x)
	case int64:
		c.AddInt64(x)
	case uint:
		c.AddInt64(int64(x))
	case uint8:
		c.Add(int32(x))
	case uint16:
		c.Add(int32(x))
	case uint32:
		c.AddUint32(x)
	case uint64:
		c.AddInt64(int64(x))
	case float32:
		c.AddString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		c.AddString(strconv.FormatFloat(x, 'g', -1, 64))
	case time.Time:
		c.AddTime(x)
	case time.Duration:
		c.AddInt64(int64(x))
	case []string:
		c.AddInt(len(x))
		for _, s := range x {
			c.AddString(s)
		}
	case []any:
		c.AddInt(len(x))
		for _, e := range x {
			if err := c.AddValue(ctx, e); err != nil {
				return err
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		c.AddInt(len(keys))
		for _, k := range keys {
			c.AddString(k)
			if err := c.AddValue(ctx, x[k]); err != nil {
				return err
			}
		}
	default:
		c.AddString(fmt.Sprint(x))
	}
	return nil
}

// ToCacheCode returns the current code without resetting the accumulator.
// An accumulator that received nothing returns 0.
func (c *CacheCode) ToCacheCode() int32 { return c.code }

// Ticks returns the number of 100ns intervals between 0001-01-01 UTC and t.
func Ticks(t time.Time) int64 {
	t = t.UTC()
	return ticksAtUnixEpoch + t.Unix()*10_000_000 + int64(t.Nanosecond()/100)
}
