package modules

import (
	"context"
	"fmt"

	"contentweaver/internal/core"
)

// DocumentFunc transforms one document. Returning a nil slice keeps the
// document unchanged; returning an empty non-nil slice drops it.
type DocumentFunc func(ctx context.Context, doc *core.Document) ([]*core.Document, error)

// ExecuteDocument applies fn to every input document in order.
func ExecuteDocument(fn DocumentFunc) core.Module {
	return &executeDocument{fn: fn}
}

// MapDocuments applies a one-to-one transform to every document.
func MapDocuments(fn func(ctx context.Context, doc *core.Document) (*core.Document, error)) core.Module {
	return &executeDocument{fn: func(ctx context.Context, doc *core.Document) ([]*core.Document, error) {
		d, err := fn(ctx, doc)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return []*core.Document{}, nil
		}
		return []*core.Document{d}, nil
	}}
}

type executeDocument struct {
	fn DocumentFunc
}

func (*executeDocument) Name() string { return "ExecuteDocument" }

func (x *executeDocument) Execute(ctx context.Context, _ core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	if x.fn == nil {
		return nil, fmt.Errorf("nil document function")
	}
	out := make([]*core.Document, 0, len(inputs))
	for i, doc := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := x.fn(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if res == nil {
			out = append(out, doc)
			continue
		}
		out = append(out, res...)
	}
	return out, nil
}
