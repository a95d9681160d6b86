// Package engine registers pipelines and executes them as one run.
//
// An Engine validates the pipeline dependency graph (including static
// exchange references), runs every pipeline through dag.Executor as soon as
// its dependencies complete, and freezes each completed pipeline's output so
// dependents can read it through core.ExecutionContext.
package engine
