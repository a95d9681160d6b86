package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"contentweaver/internal/core"
	"contentweaver/internal/dag"
	"contentweaver/internal/logger"
	"contentweaver/internal/telemetry"
	"contentweaver/internal/trace"
)

type Option func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records pipeline, module and cache metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTraceSink records logical run events.
func WithTraceSink(s trace.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithMaxConcurrency bounds the number of pipelines running at once.
// Zero (the default) is unbounded.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

type runPhase int

const (
	phaseIdle runPhase = iota
	phaseRunning
	phaseDone
)

// Engine owns the pipelines of one execution run.
type Engine struct {
	log            logger.Logger
	metrics        *telemetry.Metrics
	sink           trace.Sink
	maxConcurrency int

	mu        sync.Mutex
	pipelines map[string]*core.Pipeline // by normalized name
	phase     runPhase
	graph     *dag.PipelineGraph
	outputs   map[string][]*core.Document // write-once per pipeline
	durations map[string]time.Duration
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:       logger.NewNoopLogger(),
		pipelines: make(map[string]*core.Pipeline),
		outputs:   make(map[string][]*core.Document),
		durations: make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add registers a pipeline. The engine keeps its own copy of the module
// chain and dependency list, so later changes to p have no effect.
func (e *Engine) Add(p *core.Pipeline) error {
	if p == nil {
		return dag.NewGraphError(dag.ErrInvalidGraph, "nil pipeline")
	}
	key := core.NormalizeName(p.Name)
	if key == "" {
		return dag.NewGraphError(dag.ErrInvalidGraph, "pipeline name is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkIdleLocked(); err != nil {
		return err
	}
	if existing, ok := e.pipelines[key]; ok {
		return dag.NewGraphError(dag.ErrDuplicatePipeline, "%q conflicts with %q", p.Name, existing.Name)
	}
	cp := &core.Pipeline{
		Name:    p.Name,
		Modules: append([]core.Module(nil), p.Modules...),
	}
	cp.WithDependencies(p.Dependencies...)
	e.pipelines[key] = cp
	return nil
}

// MustAdd is Add for static setups; it panics on error.
func (e *Engine) MustAdd(p *core.Pipeline) *Engine {
	if err := e.Add(p); err != nil {
		panic(err)
	}
	return e
}

// Pipelines returns the registered pipeline names, sorted case-insensitively.
func (e *Engine) Pipelines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.pipelines))
	for k := range e.pipelines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = e.pipelines[k].Name
	}
	return names
}

func (e *Engine) checkIdleLocked() error {
	switch e.phase {
	case phaseRunning:
		return ErrRunning
	case phaseDone:
		return ErrAlreadyExecuted
	default:
		return nil
	}
}

// Graph builds and validates the dependency graph of the registered pipelines.
//
// Besides structural errors (unknown dependencies, duplicates, cycles) it
// rejects modules that name a pipeline, through core.PipelineReferencer, that
// their pipeline does not declare as a dependency.
func (e *Engine) Graph() (*dag.PipelineGraph, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildGraphLocked()
}

func (e *Engine) buildGraphLocked() (*dag.PipelineGraph, error) {
	defs := make([]dag.NodeDef, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		defs = append(defs, dag.NodeDef{Name: p.Name, Dependencies: p.Dependencies})
	}
	// Map iteration order must not leak into error messages.
	sort.Slice(defs, func(i, j int) bool {
		return dag.NormalizeName(defs[i].Name) < dag.NormalizeName(defs[j].Name)
	})

	g, err := dag.NewPipelineGraph(defs)
	if err != nil {
		return nil, err
	}
	for _, n := range g.Nodes() {
		p := e.pipelines[n.Key]
		var refErr error
		core.WalkModules(p.Modules, func(m core.Module) {
			r, ok := m.(core.PipelineReferencer)
			if !ok || refErr != nil {
				return
			}
			for _, ref := range r.ReferencedPipelines() {
				if !g.DependsOn(p.Name, ref) {
					refErr = dag.NewGraphError(dag.ErrUndeclaredReference,
						"pipeline %q module %s reads %q without declaring it as a dependency",
						p.Name, core.ModuleName(m), ref)
					return
				}
			}
		})
		if refErr != nil {
			return nil, refErr
		}
	}
	return g, nil
}

// Validate reports the first graph error, if any, without running anything.
func (e *Engine) Validate() error {
	_, err := e.Graph()
	return err
}

// Execute runs every registered pipeline once.
//
// A graph error is returned before anything runs. Otherwise the returned
// Result describes every pipeline's terminal state; module faults are
// reported there rather than as the returned error. Cancelling ctx stops new
// pipelines from starting and stops running pipelines at their next module
// boundary.
func (e *Engine) Execute(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if err := e.checkIdleLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	g, err := e.buildGraphLocked()
	if err != nil {
		e.mu.Unlock()
		e.log.Error("pipeline graph rejected", zap.Error(err))
		return nil, err
	}
	e.phase = phaseRunning
	e.graph = g
	e.mu.Unlock()

	ex, err := dag.NewExecutor(g, &pipelineRunner{engine: e})
	if err != nil {
		e.finish()
		return nil, err
	}
	ex.Observer = &runObserver{engine: e}
	ex.MaxConcurrency = e.maxConcurrency

	e.log.Info("engine run started",
		zap.Int("pipelines", g.Len()),
		zap.String("graph_hash", g.Hash().String()),
		zap.Int("max_concurrency", e.maxConcurrency))

	gr, err := ex.Run(ctx)
	if err != nil {
		e.finish()
		return nil, fmt.Errorf("executing pipeline graph: %w", err)
	}

	res := e.buildResult(gr, ctx.Err())
	e.finish()

	e.log.Info("engine run finished",
		zap.Bool("succeeded", res.Succeeded()),
		zap.Int("completed", len(res.Outputs)),
		zap.Int("faulted", len(res.Faults)),
		zap.Int("skipped", len(res.SkipCauses)),
		zap.Int("cancelled", len(res.Cancelled)))
	return res, nil
}

func (e *Engine) finish() {
	e.mu.Lock()
	e.phase = phaseDone
	e.mu.Unlock()
}

func (e *Engine) buildResult(gr *dag.GraphResult, ctxErr error) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &Result{
		GraphHash:      gr.GraphHash,
		States:         make(map[string]dag.PipelineState, len(gr.FinalState)),
		Outputs:        make(map[string][]*core.Document),
		Faults:         make(map[string]error),
		SkipCauses:     make(map[string]string, len(gr.SkipCause)),
		Cancelled:      gr.Names(dag.StateCancelled),
		ExecutionOrder: append([]string(nil), gr.ExecutionOrder...),
		ctxErr:         ctxErr,
	}
	for name, st := range gr.FinalState {
		res.States[name] = st
		switch st {
		case dag.StateCompleted:
			res.Outputs[name] = core.CloneDocuments(e.outputs[dag.NormalizeName(name)])
		case dag.StateFaulted:
			res.Faults[name] = gr.Errors[name]
		}
	}
	for k, v := range gr.SkipCause {
		res.SkipCauses[k] = v
	}
	return res
}

// Reset returns the engine to its registered, not-yet-run state. Outputs of
// the previous run are discarded.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == phaseRunning {
		return ErrRunning
	}
	e.phase = phaseIdle
	e.graph = nil
	e.outputs = make(map[string][]*core.Document)
	e.durations = make(map[string]time.Duration)
	return nil
}

// Output returns the output of a pipeline that completed in the current run.
func (e *Engine) Output(name string) ([]*core.Document, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	docs, ok := e.outputs[dag.NormalizeName(name)]
	if !ok {
		return nil, false
	}
	return core.CloneDocuments(docs), true
}

// storeOutput freezes a pipeline's output. Each pipeline stores exactly once.
func (e *Engine) storeOutput(name string, docs []*core.Document, d time.Duration) error {
	key := dag.NormalizeName(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.outputs[key]; exists {
		return fmt.Errorf("output of pipeline %q already stored", name)
	}
	if docs == nil {
		docs = []*core.Document{}
	}
	e.outputs[key] = core.CloneDocuments(docs)
	e.durations[key] = d
	return nil
}

func (e *Engine) recordDuration(name string, d time.Duration) {
	e.mu.Lock()
	e.durations[dag.NormalizeName(name)] = d
	e.mu.Unlock()
}

func (e *Engine) pipeline(name string) (*core.Pipeline, *dag.PipelineGraph, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pipelines[dag.NormalizeName(name)]
	return p, e.graph, ok
}

// pipelineRunner adapts the engine to dag.PipelineRunner.
type pipelineRunner struct {
	engine *Engine
}

func (r *pipelineRunner) RunPipeline(ctx context.Context, name string) error {
	e := r.engine
	p, g, ok := e.pipeline(name)
	if !ok {
		return fmt.Errorf("unknown pipeline %q", name)
	}
	node, _ := g.Node(name)

	ec := &executionContext{engine: e, pipeline: p.Name, deps: node.Dependencies, graph: g}
	modules := p.Modules
	if e.metrics != nil {
		modules = make([]core.Module, len(p.Modules))
		for i, m := range p.Modules {
			modules[i] = timedModule{Module: m, metrics: e.metrics}
		}
	}

	start := time.Now()
	out, err := core.ExecuteModules(ctx, ec, modules, nil)
	elapsed := time.Since(start)
	if err != nil {
		e.recordDuration(p.Name, elapsed)
		var me *core.ModuleError
		if errors.As(err, &me) {
			return &ModuleFaultError{Pipeline: p.Name, Module: me.Module, Index: me.Index, Err: me.Err}
		}
		return fmt.Errorf("pipeline %q: %w", p.Name, err)
	}
	return e.storeOutput(p.Name, out, elapsed)
}

// timedModule records the duration of one module execution.
type timedModule struct {
	core.Module
	metrics *telemetry.Metrics
}

func (t timedModule) Name() string { return core.ModuleName(t.Module) }

func (t timedModule) Execute(ctx context.Context, ec core.ExecutionContext, in []*core.Document) ([]*core.Document, error) {
	start := time.Now()
	out, err := t.Module.Execute(ctx, ec, in)
	t.metrics.ModuleExecuted(core.ModuleName(t.Module), err, time.Since(start))
	return out, err
}
