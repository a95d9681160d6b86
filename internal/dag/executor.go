package dag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// PipelineRunner executes a single pipeline's module chain.
//
// A non-nil error faults the pipeline, unless the run context was cancelled
// and the error is a context error, in which case the pipeline is CANCELLED.
type PipelineRunner interface {
	RunPipeline(ctx context.Context, name string) error
}

// Observer receives state changes. Calls are made with the executor lock held,
// so implementations must be quick and must not call back into the Executor.
type Observer interface {
	OnPipelineStarted(name string)
	// OnPipelineTerminal is called once per pipeline. cause is set for
	// SKIPPED pipelines and names the faulted or cancelled root.
	OnPipelineTerminal(name string, state PipelineState, err error, cause string)
}

// Executor executes a PipelineGraph.
//
// All state reads/writes are synchronized by mu. Pipeline execution happens
// outside the lock on its own goroutine; the coordinator loop owns every
// transition.
type Executor struct {
	Graph    *PipelineGraph
	Runner   PipelineRunner
	Observer Observer

	// MaxConcurrency bounds the number of pipelines in flight. Zero means unbounded.
	MaxConcurrency int

	mu        sync.Mutex
	state     ExecutionState
	errs      map[string]error
	skipCause map[string]string
	started   bool
}

// NewExecutor creates an executor with all nodes initialized to PENDING.
func NewExecutor(g *PipelineGraph, runner PipelineRunner) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}
	e := &Executor{Graph: g, Runner: runner}
	e.resetLocked()
	return e, nil
}

func (e *Executor) resetLocked() {
	e.state = make(ExecutionState, len(e.Graph.nodes))
	for _, n := range e.Graph.nodes {
		e.state[n.Name] = StatePending
	}
	e.errs = make(map[string]error)
	e.skipCause = make(map[string]string)
	e.started = false
}

// Reset returns every pipeline to PENDING so the graph can be executed again.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

// State returns the current state of one pipeline, matched case-insensitively.
func (e *Executor) State(name string) (PipelineState, bool) {
	n, ok := e.Graph.Node(name)
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.state[n.Name]
	return st, ok
}

// RunSerial executes the graph one pipeline at a time in scheduler order.
func (e *Executor) RunSerial(ctx context.Context) (*GraphResult, error) {
	return e.run(ctx, 1)
}

// Run executes the graph, starting every ready pipeline as soon as its
// dependencies have completed, bounded only by MaxConcurrency.
//
// Cancellation of ctx stops dispatching; in-flight pipelines are expected to
// return at their next module boundary and every pipeline that never started
// is marked CANCELLED. Output of pipelines that already completed is kept.
func (e *Executor) Run(ctx context.Context) (*GraphResult, error) {
	return e.run(ctx, e.MaxConcurrency)
}

type pipelineDone struct {
	name string
	err  error
}

func (e *Executor) run(ctx context.Context, limit int) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, fmt.Errorf("executor already ran; call Reset to run again")
	}
	e.started = true
	e.mu.Unlock()

	order := make([]string, 0, len(e.Graph.nodes))
	doneCh := make(chan pipelineDone, len(e.Graph.nodes))
	ctxDone := ctx.Done()
	inFlight := 0

	var wg conc.WaitGroup
	defer wg.Wait()

	for {
		e.mu.Lock()
		if ctx.Err() == nil {
			for _, name := range GetReadyPipelines(e.Graph, e.state) {
				if limit > 0 && inFlight >= limit {
					break
				}
				if err := Transition(e.state, name, StatePending, StateRunning); err != nil {
					e.mu.Unlock()
					return nil, err
				}
				if e.Observer != nil {
					e.Observer.OnPipelineStarted(name)
				}
				order = append(order, name)
				inFlight++
				e.dispatch(ctx, &wg, name, doneCh)
			}
		}

		if inFlight == 0 {
			err := e.finishLocked(ctx)
			e.mu.Unlock()
			if err != nil {
				return nil, err
			}
			break
		}
		e.mu.Unlock()

		// Wait for at least one completion or context cancellation.
		select {
		case <-ctxDone:
			// Stop dispatching; keep draining in-flight pipelines.
			ctxDone = nil
		case r := <-doneCh:
			inFlight--
			if err := e.complete(ctx, r); err != nil {
				// Drain the remaining in-flight pipelines before returning.
				for ; inFlight > 0; inFlight-- {
					<-doneCh
				}
				return nil, err
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	errs := make(map[string]error, len(e.errs))
	for k, v := range e.errs {
		errs[k] = v
	}
	causes := make(map[string]string, len(e.skipCause))
	for k, v := range e.skipCause {
		causes[k] = v
	}
	return &GraphResult{
		GraphHash:      e.Graph.Hash(),
		FinalState:     e.state.Clone(),
		ExecutionOrder: order,
		Errors:         errs,
		SkipCause:      causes,
	}, nil
}

func (e *Executor) dispatch(ctx context.Context, wg *conc.WaitGroup, name string, doneCh chan<- pipelineDone) {
	wg.Go(func() {
		var err error
		var pc panics.Catcher
		pc.Try(func() { err = e.Runner.RunPipeline(ctx, name) })
		if r := pc.Recovered(); r != nil {
			err = r.AsError()
		}
		doneCh <- pipelineDone{name: name, err: err}
	})
}

// complete records the outcome of one pipeline.
func (e *Executor) complete(ctx context.Context, r pipelineDone) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cur := e.state[r.name]; cur != StateRunning {
		return fmt.Errorf("completion for %q but state is %s", r.name, cur)
	}

	if r.err == nil {
		if err := Transition(e.state, r.name, StateRunning, StateCompleted); err != nil {
			return err
		}
		if e.Observer != nil {
			e.Observer.OnPipelineTerminal(r.name, StateCompleted, nil, "")
		}
		return nil
	}

	e.errs[r.name] = r.err
	var skipped []string
	var err error
	final := StateFaulted
	if ctx.Err() != nil && isContextError(r.err) {
		final = StateCancelled
		skipped, err = CancelAndPropagate(e.Graph, e.state, r.name)
	} else {
		skipped, err = FailAndPropagate(e.Graph, e.state, r.name)
	}
	if err != nil {
		return err
	}
	if e.Observer != nil {
		e.Observer.OnPipelineTerminal(r.name, final, r.err, "")
	}
	for _, s := range skipped {
		e.skipCause[s] = r.name
		if e.Observer != nil {
			e.Observer.OnPipelineTerminal(s, StateSkipped, nil, r.name)
		}
	}
	return nil
}

// finishLocked settles pipelines that can no longer run once nothing is in flight.
func (e *Executor) finishLocked(ctx context.Context) error {
	pending := make([]string, 0)
	for name, st := range e.state {
		if st == StatePending {
			pending = append(pending, name)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if ctx.Err() == nil {
		return fmt.Errorf("no ready pipelines but graph not finished: %v", sortedCopy(pending))
	}
	sort.Strings(pending)
	for _, name := range pending {
		if err := Transition(e.state, name, StatePending, StateCancelled); err != nil {
			return err
		}
		e.errs[name] = ctx.Err()
		if e.Observer != nil {
			e.Observer.OnPipelineTerminal(name, StateCancelled, ctx.Err(), "")
		}
	}
	return nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
