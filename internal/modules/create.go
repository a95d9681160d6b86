package modules

import (
	"context"

	"contentweaver/internal/core"
)

// CreateDocuments ignores its input and emits one document per content string.
func CreateDocuments(contents ...string) core.Module {
	docs := make([]*core.Document, len(contents))
	for i, c := range contents {
		docs[i] = core.NewStringDocument(c, nil)
	}
	return &createDocuments{docs: docs}
}

// EmitDocuments ignores its input and emits the given documents.
func EmitDocuments(docs ...*core.Document) core.Module {
	return &createDocuments{docs: core.CloneDocuments(docs)}
}

type createDocuments struct {
	docs []*core.Document
}

func (*createDocuments) Name() string { return "CreateDocuments" }

func (c *createDocuments) CacheCode(ctx context.Context) (int32, error) {
	return core.DocumentsCacheCode(ctx, c.docs)
}

func (c *createDocuments) Execute(context.Context, core.ExecutionContext, []*core.Document) ([]*core.Document, error) {
	out := core.CloneDocuments(c.docs)
	if out == nil {
		out = []*core.Document{}
	}
	return out, nil
}
