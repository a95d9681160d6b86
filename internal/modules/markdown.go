package modules

import (
	"bytes"
	"context"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"contentweaver/internal/core"
)

// RenderMarkdown converts markdown content to HTML with GitHub-flavored
// extensions. Metadata is kept.
func RenderMarkdown() core.Module {
	return &renderMarkdown{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)}
}

type renderMarkdown struct {
	md goldmark.Markdown
}

func (*renderMarkdown) Name() string { return "RenderMarkdown" }

func (r *renderMarkdown) Execute(ctx context.Context, _ core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	out := make([]*core.Document, 0, len(inputs))
	for i, d := range inputs {
		src, err := d.Content(ctx)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		var buf bytes.Buffer
		if err := r.md.Convert(src, &buf); err != nil {
			return nil, fmt.Errorf("document %d: rendering markdown: %w", i, err)
		}
		out = append(out, d.WithContent(buf.Bytes()))
	}
	return out, nil
}
