package modules

import (
	"context"
	"fmt"

	"contentweaver/internal/core"
)

// ReplaceDocuments replaces the working set with the output of upstream pipelines.
//
// With no names, the new working set is the output of every declared
// dependency, concatenated in declaration order. With names, it is the
// output of exactly those pipelines in argument order; a name listed twice
// contributes its documents twice. Every named pipeline must be a declared
// dependency of the executing pipeline.
func ReplaceDocuments(pipelines ...string) *Exchange {
	return &Exchange{pipelines: append([]string(nil), pipelines...)}
}

// ConcatDocuments is ReplaceDocuments that appends to the working set instead.
func ConcatDocuments(pipelines ...string) *Exchange {
	return &Exchange{pipelines: append([]string(nil), pipelines...), appendInputs: true}
}

// Exchange reads the frozen output of upstream pipelines.
type Exchange struct {
	pipelines    []string
	appendInputs bool
}

func (x *Exchange) Name() string {
	if x.appendInputs {
		return "ConcatDocuments"
	}
	return "ReplaceDocuments"
}

// ReferencedPipelines returns the explicitly named pipelines.
func (x *Exchange) ReferencedPipelines() []string {
	return append([]string(nil), x.pipelines...)
}

func (x *Exchange) Execute(_ context.Context, ec core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	if ec == nil {
		return nil, fmt.Errorf("%s requires an execution context", x.Name())
	}
	names := x.pipelines
	if len(names) == 0 {
		names = ec.Dependencies()
	}

	var out []*core.Document
	if x.appendInputs {
		out = append(out, inputs...)
	}
	for _, name := range names {
		docs, err := ec.Outputs(name)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	if out == nil {
		out = []*core.Document{}
	}
	return out, nil
}
