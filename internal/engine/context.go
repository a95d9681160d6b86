package engine

import (
	"fmt"

	"go.uber.org/zap"

	"contentweaver/internal/core"
	"contentweaver/internal/dag"
	"contentweaver/internal/trace"
)

// executionContext is the core.ExecutionContext handed to a pipeline's modules.
type executionContext struct {
	engine   *Engine
	pipeline string
	deps     []string
	graph    *dag.PipelineGraph
}

func (c *executionContext) PipelineName() string { return c.pipeline }

func (c *executionContext) Dependencies() []string {
	return append([]string(nil), c.deps...)
}

// Outputs returns the frozen output of a declared dependency.
//
// Dependencies are COMPLETED before this pipeline starts, so a missing entry
// means the caller named a pipeline outside its dependency set.
func (c *executionContext) Outputs(name string) ([]*core.Document, error) {
	if !c.graph.DependsOn(c.pipeline, name) {
		return nil, fmt.Errorf("%w: %q reads %q", ErrNotDependency, c.pipeline, name)
	}
	docs, ok := c.engine.Output(name)
	if !ok {
		return nil, fmt.Errorf("output of %q is not available to %q", name, c.pipeline)
	}
	return docs, nil
}

// CacheLookup reports a document cache hit or miss made by a module.
func (c *executionContext) CacheLookup(key string, hit bool) {
	e := c.engine
	e.metrics.CacheLookup(hit)
	kind := trace.EventCacheMiss
	if hit {
		kind = trace.EventCacheHit
	}
	trace.SafeRecord(e.sink, trace.TraceEvent{Kind: kind, Pipeline: c.pipeline, Key: key})
	e.log.Debug("document cache lookup",
		zap.String("pipeline", c.pipeline),
		zap.String("key", key),
		zap.Bool("hit", hit))
}
