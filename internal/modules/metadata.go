package modules

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"contentweaver/internal/core"
)

// SetMetadata sets one metadata entry on every document.
func SetMetadata(key string, value any) core.Module {
	return &setMetadata{key: key, value: value}
}

type setMetadata struct {
	key   string
	value any
}

func (*setMetadata) Name() string { return "SetMetadata" }

func (s *setMetadata) CacheCode(ctx context.Context) (int32, error) {
	var c core.CacheCode
	c.AddString(s.key)
	if err := c.AddValue(ctx, s.value); err != nil {
		return 0, err
	}
	return c.ToCacheCode(), nil
}

func (s *setMetadata) Execute(_ context.Context, _ core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	if strings.TrimSpace(s.key) == "" {
		return nil, fmt.Errorf("metadata key is required")
	}
	out := make([]*core.Document, len(inputs))
	for i, d := range inputs {
		out[i] = d.WithMetadata(s.key, s.value)
	}
	return out, nil
}

// Predicate reports whether a document is kept.
type Predicate func(ctx context.Context, doc *core.Document) (bool, error)

// FilterDocuments keeps the documents matching pred, preserving order.
func FilterDocuments(pred Predicate) core.Module {
	return &filterDocuments{pred: pred}
}

// WhereMetadata keeps documents whose metadata key equals value, compared as strings.
func WhereMetadata(key string, value any) core.Module {
	want := fmt.Sprint(value)
	return FilterDocuments(func(_ context.Context, d *core.Document) (bool, error) {
		v, ok := d.Get(key)
		return ok && fmt.Sprint(v) == want, nil
	})
}

type filterDocuments struct {
	pred Predicate
}

func (*filterDocuments) Name() string { return "FilterDocuments" }

func (f *filterDocuments) Execute(ctx context.Context, _ core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	if f.pred == nil {
		return nil, fmt.Errorf("nil predicate")
	}
	out := make([]*core.Document, 0, len(inputs))
	for _, d := range inputs {
		keep, err := f.pred(ctx, d)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, d)
		}
	}
	return out, nil
}

// Order sorts documents by a metadata key.
type Order struct {
	key        string
	descending bool
}

// OrderDocuments stably sorts documents by a metadata value. Numbers sort
// before other values and compare numerically, everything else compares as
// strings; documents without the key sort last.
func OrderDocuments(key string) *Order {
	return &Order{key: key}
}

// Descending reverses the order of documents that have the key.
func (o *Order) Descending() *Order {
	o.descending = true
	return o
}

func (*Order) Name() string { return "OrderDocuments" }

func (o *Order) CacheCode(context.Context) (int32, error) {
	var c core.CacheCode
	c.AddString(o.key)
	c.AddBool(o.descending)
	return c.ToCacheCode(), nil
}

func (o *Order) Execute(_ context.Context, _ core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	out := core.CloneDocuments(inputs)
	if out == nil {
		out = []*core.Document{}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i].Get(o.key)
		b, bok := out[j].Get(o.key)
		if !aok || !bok {
			return aok && !bok
		}
		c := compareValues(a, b)
		if o.descending {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

// compareValues orders numbers before everything else, numbers numerically
// and the rest by their string form.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	switch {
	case aok && bok:
		return cmp.Compare(af, bf)
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case float64:
		return x, !math.IsNaN(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}
