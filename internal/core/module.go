package core

import (
	"context"
	"fmt"
)

// ExecutionContext is the view of the running engine given to a module.
type ExecutionContext interface {
	// PipelineName is the name of the pipeline executing the module.
	PipelineName() string

	// Dependencies returns the declared dependency names of the executing
	// pipeline, in declaration order.
	Dependencies() []string

	// Outputs returns the frozen output of a completed dependency.
	//
	// Asking for a pipeline that is not a declared dependency is an error,
	// even if that pipeline happens to have completed already.
	Outputs(pipeline string) ([]*Document, error)
}

// Module is a documents-in, documents-out unit of work.
//
// Modules must not mutate their input documents. Configuration is captured
// at construction and Execute may be invoked once per pipeline run.
type Module interface {
	Execute(ctx context.Context, ec ExecutionContext, inputs []*Document) ([]*Document, error)
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(ctx context.Context, ec ExecutionContext, inputs []*Document) ([]*Document, error)

func (f ModuleFunc) Execute(ctx context.Context, ec ExecutionContext, inputs []*Document) ([]*Document, error) {
	return f(ctx, ec, inputs)
}

// ParentModule is implemented by modules that wrap a child chain.
type ParentModule interface {
	Children() []Module
}

// PipelineReferencer is implemented by modules that read the output of
// specific pipelines, so references can be validated before a run starts.
type PipelineReferencer interface {
	ReferencedPipelines() []string
}

// ModuleError identifies the failing module within a chain.
type ModuleError struct {
	Index  int
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("module %d (%s): %v", e.Index, e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// ModuleName returns a readable name for a module.
func ModuleName(m Module) string {
	if n, ok := m.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", m)
}

// ExecuteModules runs a module chain sequentially.
//
// The working set after module i is exactly the output of module i.
// Cancellation is checked before each module starts; a module is never
// interrupted mid-step by this function. On failure the partial output is
// discarded and the error identifies the failing module.
func ExecuteModules(ctx context.Context, ec ExecutionContext, modules []Module, inputs []*Document) ([]*Document, error) {
	working := inputs
	for i, m := range modules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if m == nil {
			return nil, &ModuleError{Index: i, Module: "<nil>", Err: fmt.Errorf("nil module")}
		}
		out, err := m.Execute(ctx, ec, working)
		if err != nil {
			return nil, &ModuleError{Index: i, Module: ModuleName(m), Err: err}
		}
		working = out
	}
	return working, nil
}

// WalkModules visits every module in the chain depth-first, including nested children.
func WalkModules(modules []Module, visit func(Module)) {
	for _, m := range modules {
		if m == nil {
			continue
		}
		visit(m)
		if p, ok := m.(ParentModule); ok {
			WalkModules(p.Children(), visit)
		}
	}
}
