package modules

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"contentweaver/internal/core"
)

// ForEach runs a child chain once per input document.
type ForEach struct {
	children    []core.Module
	parallelism int
}

// ForEachDocument runs children once per input document, each run starting
// from a working set holding just that document. Outputs are concatenated in
// input order.
func ForEachDocument(children ...core.Module) *ForEach {
	return &ForEach{children: append([]core.Module(nil), children...), parallelism: 1}
}

// WithParallelism processes up to n documents at once. Output order still
// follows input order. n <= 0 means one goroutine per document.
func (f *ForEach) WithParallelism(n int) *ForEach {
	f.parallelism = n
	return f
}

func (*ForEach) Name() string { return "ForEachDocument" }

func (f *ForEach) Children() []core.Module { return f.children }

func (f *ForEach) Execute(ctx context.Context, ec core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	results := make([][]*core.Document, len(inputs))

	if f.parallelism == 1 {
		for i, doc := range inputs {
			out, err := core.ExecuteModules(ctx, ec, f.children, []*core.Document{doc})
			if err != nil {
				return nil, fmt.Errorf("document %d: %w", i, err)
			}
			results[i] = out
		}
		return flatten(results), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if f.parallelism > 0 {
		g.SetLimit(f.parallelism)
	}
	for i, doc := range inputs {
		g.Go(func() error {
			out, err := core.ExecuteModules(gctx, ec, f.children, []*core.Document{doc})
			if err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return flatten(results), nil
}

func flatten(parts [][]*core.Document) []*core.Document {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]*core.Document, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
