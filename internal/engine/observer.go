package engine

import (
	"go.uber.org/zap"

	"contentweaver/internal/dag"
	"contentweaver/internal/trace"
)

// runObserver turns executor state changes into logs, metrics and trace events.
type runObserver struct {
	engine *Engine
}

func (o *runObserver) OnPipelineStarted(name string) {
	o.engine.log.Debug("pipeline started", zap.String("pipeline", name))
}

func (o *runObserver) OnPipelineTerminal(name string, state dag.PipelineState, err error, cause string) {
	e := o.engine
	key := dag.NormalizeName(name)

	e.mu.Lock()
	d, ran := e.durations[key]
	docs := len(e.outputs[key])
	e.mu.Unlock()

	e.metrics.PipelineFinished(string(state), ran, d)

	ev := trace.TraceEvent{Pipeline: name}
	switch state {
	case dag.StateCompleted:
		ev.Kind = trace.EventPipelineCompleted
		ev.Documents = docs
		e.log.Info("pipeline completed",
			zap.String("pipeline", name),
			zap.Int("documents", docs),
			zap.Duration("duration", d))
	case dag.StateFaulted:
		ev.Kind = trace.EventPipelineFaulted
		ev.Reason = "ModuleFault"
		e.log.Error("pipeline faulted", zap.String("pipeline", name), zap.Error(err))
	case dag.StateCancelled:
		ev.Kind = trace.EventPipelineCancelled
		ev.Reason = "Cancelled"
		if !ran {
			ev.Reason = "NotStarted"
		}
		e.log.Warn("pipeline cancelled", zap.String("pipeline", name), zap.Bool("started", ran))
	case dag.StateSkipped:
		ev.Kind = trace.EventPipelineSkipped
		ev.Reason = "UpstreamFailed"
		ev.Cause = cause
		e.log.Warn("pipeline skipped", zap.String("pipeline", name), zap.String("cause", cause))
	default:
		return
	}
	trace.SafeRecord(e.sink, ev)
}
