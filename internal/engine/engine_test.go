package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"contentweaver/internal/cache"
	"contentweaver/internal/core"
	"contentweaver/internal/dag"
	"contentweaver/internal/engine"
	"contentweaver/internal/logger"
	"contentweaver/internal/modules"
	"contentweaver/internal/telemetry"
	"contentweaver/internal/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func contents(t *testing.T, docs []*core.Document) []string {
	t.Helper()
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		s, err := d.ContentString(context.Background())
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func output(t *testing.T, res *engine.Result, name string) []string {
	t.Helper()
	docs, ok := res.Output(name)
	require.True(t, ok, "no output for %s (state %s)", name, res.States[name])
	return contents(t, docs)
}

// exchangeEngine registers Foo=[A,B,C,D], Bar=[E,F], Baz=[G,H] and a Qux
// pipeline that depends on all three and runs the given modules.
func exchangeEngine(t *testing.T, quxModules ...core.Module) *engine.Engine {
	t.Helper()
	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Foo", modules.CreateDocuments("A", "B", "C", "D"))))
	require.NoError(t, e.Add(core.NewPipeline("Bar", modules.CreateDocuments("E", "F"))))
	require.NoError(t, e.Add(core.NewPipeline("Baz", modules.CreateDocuments("G", "H"))))
	require.NoError(t, e.Add(core.NewPipeline("Qux", quxModules...).WithDependencies("Foo", "Bar", "Baz")))
	return e
}

func TestExchange_ExplicitNamesFollowArgumentOrder(t *testing.T) {
	e := exchangeEngine(t, modules.ReplaceDocuments("Baz", "Foo"))
	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, []string{"G", "H", "A", "B", "C", "D"}, output(t, res, "Qux"))
}

func TestExchange_ImplicitFormFollowsDeclarationOrder(t *testing.T) {
	e := exchangeEngine(t, modules.ReplaceDocuments())
	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C", "D", "E", "F", "G", "H"}, output(t, res, "Qux"))
}

func TestExchange_ReplacesRatherThanAppends(t *testing.T) {
	e := exchangeEngine(t, modules.CreateDocuments("mine"), modules.ReplaceDocuments("bar"))
	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"E", "F"}, output(t, res, "qux"))
}

func TestExchange_UndeclaredReferenceIsGraphError(t *testing.T) {
	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Foo", modules.CreateDocuments("A"))))
	require.NoError(t, e.Add(core.NewPipeline("Bar", modules.ForEachDocument(modules.ReplaceDocuments("Foo")))))

	var ran atomic.Bool
	require.NoError(t, e.Add(core.NewPipeline("Witness", core.ModuleFunc(func(context.Context, core.ExecutionContext, []*core.Document) ([]*core.Document, error) {
		ran.Store(true)
		return nil, nil
	}))))

	_, err := e.Execute(context.Background())
	require.ErrorIs(t, err, dag.ErrUndeclaredReference)
	var ge *dag.GraphError
	require.ErrorAs(t, err, &ge)
	require.False(t, ran.Load(), "nothing may run after a graph error")
}

func TestExchange_DynamicUndeclaredReadFaults(t *testing.T) {
	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Foo", modules.CreateDocuments("A"))))
	require.NoError(t, e.Add(core.NewPipeline("Bar",
		core.ModuleFunc(func(_ context.Context, ec core.ExecutionContext, _ []*core.Document) ([]*core.Document, error) {
			return ec.Outputs("Foo")
		}))))

	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, dag.StateFaulted, res.States["Bar"])
	require.ErrorIs(t, res.Faults["Bar"], engine.ErrNotDependency)

	var mf *engine.ModuleFaultError
	require.ErrorAs(t, res.Faults["Bar"], &mf)
	require.Equal(t, "Bar", mf.Pipeline)
	require.Equal(t, 0, mf.Index)
}

func TestEngine_GraphErrorsRejectBeforeRunning(t *testing.T) {
	cases := map[string]struct {
		build func(*engine.Engine) error
		want  error
	}{
		"cycle": {
			build: func(e *engine.Engine) error {
				if err := e.Add(core.NewPipeline("A").WithDependencies("B")); err != nil {
					return err
				}
				return e.Add(core.NewPipeline("B").WithDependencies("A"))
			},
			want: dag.ErrCycleFound,
		},
		"self": {
			build: func(e *engine.Engine) error {
				return e.Add(core.NewPipeline("A").WithDependencies("a"))
			},
			want: dag.ErrCycleFound,
		},
		"unknown dependency": {
			build: func(e *engine.Engine) error {
				return e.Add(core.NewPipeline("A").WithDependencies("Missing"))
			},
			want: dag.ErrUnknownDependency,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := engine.New()
			require.NoError(t, tc.build(e))
			require.ErrorIs(t, e.Validate(), tc.want)
			_, err := e.Execute(context.Background())
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEngine_AddRejectsDuplicatesCaseInsensitively(t *testing.T) {
	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Content")))
	err := e.Add(core.NewPipeline("CONTENT"))
	require.ErrorIs(t, err, dag.ErrDuplicatePipeline)

	require.ErrorIs(t, e.Add(nil), dag.ErrInvalidGraph)
	require.ErrorIs(t, e.Add(core.NewPipeline(" ")), dag.ErrInvalidGraph)
	require.Equal(t, []string{"Content"}, e.Pipelines())
}

func TestEngine_EmptyChainAndEmptyGraph(t *testing.T) {
	res, err := engine.New().Execute(context.Background())
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.NoError(t, res.Err())

	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Empty")))
	res, err = e.Execute(context.Background())
	require.NoError(t, err)
	out, ok := res.Output("empty")
	require.True(t, ok)
	require.Empty(t, out)
}

func TestEngine_ChainRunsSequentially(t *testing.T) {
	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Site",
		modules.CreateDocuments("b", "a"),
		modules.SetMetadata("order", 0),
		modules.ExecuteDocument(func(ctx context.Context, d *core.Document) ([]*core.Document, error) {
			s, err := d.ContentString(ctx)
			if err != nil {
				return nil, err
			}
			return []*core.Document{d.WithContent([]byte("<" + s + ">"))}, nil
		}),
	)))
	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"<b>", "<a>"}, output(t, res, "Site"))
}

func TestEngine_FaultSkipsDependentsAndKeepsRootCause(t *testing.T) {
	boom := errors.New("render failed")
	var barRan atomic.Bool

	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Foo",
		modules.CreateDocuments("A"),
		core.ModuleFunc(func(context.Context, core.ExecutionContext, []*core.Document) ([]*core.Document, error) {
			return nil, boom
		}))))
	require.NoError(t, e.Add(core.NewPipeline("Bar", core.ModuleFunc(func(context.Context, core.ExecutionContext, []*core.Document) ([]*core.Document, error) {
		barRan.Store(true)
		return nil, nil
	})).WithDependencies("Foo")))
	require.NoError(t, e.Add(core.NewPipeline("Baz", modules.ReplaceDocuments()).WithDependencies("Bar")))
	require.NoError(t, e.Add(core.NewPipeline("Independent", modules.CreateDocuments("ok"))))

	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.False(t, res.Succeeded())

	require.Equal(t, map[string]dag.PipelineState{
		"Foo":         dag.StateFaulted,
		"Bar":         dag.StateSkipped,
		"Baz":         dag.StateSkipped,
		"Independent": dag.StateCompleted,
	}, res.States)
	require.Len(t, res.Faults, 1, "skipped pipelines are not re-reported as faults")
	require.ErrorIs(t, res.Faults["Foo"], boom)
	require.Equal(t, map[string]string{"Bar": "Foo", "Baz": "Foo"}, res.SkipCauses)
	require.False(t, barRan.Load())

	_, ok := res.Output("Foo")
	require.False(t, ok, "faulted output must be absent")
	require.Equal(t, []string{"ok"}, output(t, res, "Independent"))
	require.ErrorIs(t, res.Err(), boom)

	var mf *engine.ModuleFaultError
	require.ErrorAs(t, res.Faults["Foo"], &mf)
	require.Equal(t, 1, mf.Index)
}

func TestEngine_CancellationStopsAtModuleBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var secondModuleRan atomic.Bool
	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Done", modules.CreateDocuments("kept"))))
	require.NoError(t, e.Add(core.NewPipeline("Slow",
		core.ModuleFunc(func(context.Context, core.ExecutionContext, []*core.Document) ([]*core.Document, error) {
			cancel()
			return nil, nil
		}),
		core.ModuleFunc(func(context.Context, core.ExecutionContext, []*core.Document) ([]*core.Document, error) {
			secondModuleRan.Store(true)
			return nil, nil
		}),
	).WithDependencies("Done")))
	require.NoError(t, e.Add(core.NewPipeline("After", modules.ReplaceDocuments()).WithDependencies("Slow")))

	res, err := e.Execute(ctx)
	require.NoError(t, err)
	require.False(t, secondModuleRan.Load())
	require.Equal(t, dag.StateCompleted, res.States["Done"])
	require.Equal(t, dag.StateCancelled, res.States["Slow"])
	require.Equal(t, dag.StateSkipped, res.States["After"])
	require.Equal(t, []string{"Slow"}, res.Cancelled)
	require.Empty(t, res.Faults)
	require.ErrorIs(t, res.Err(), context.Canceled)
	require.Equal(t, []string{"kept"}, output(t, res, "Done"))
}

func TestEngine_IndependentPipelinesRunConcurrently(t *testing.T) {
	// Each pipeline waits for the other to start; a serial scheduler would deadlock.
	started := map[string]chan struct{}{"Left": make(chan struct{}), "Right": make(chan struct{})}
	other := map[string]string{"Left": "Right", "Right": "Left"}

	e := engine.New()
	for _, name := range []string{"Left", "Right"} {
		name := name
		require.NoError(t, e.Add(core.NewPipeline(name,
			core.ModuleFunc(func(ctx context.Context, _ core.ExecutionContext, _ []*core.Document) ([]*core.Document, error) {
				close(started[name])
				select {
				case <-started[other[name]]:
				case <-time.After(5 * time.Second):
					return nil, errors.New("peer never started")
				}
				return []*core.Document{core.NewStringDocument(name, nil)}, nil
			}))))
	}
	require.NoError(t, e.Add(core.NewPipeline("Join", modules.ReplaceDocuments("Right", "Left")).WithDependencies("Left", "Right")))

	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, res.Succeeded(), "faults: %v", res.Faults)
	require.Equal(t, []string{"Right", "Left"}, output(t, res, "Join"))
	require.Equal(t, "Join", res.ExecutionOrder[2])
}

func TestEngine_ConcurrencyDoesNotChangeOutputs(t *testing.T) {
	build := func(opts ...engine.Option) *engine.Result {
		e := engine.New(opts...)
		for _, name := range []string{"P1", "P2", "P3", "P4"} {
			require.NoError(t, e.Add(core.NewPipeline(name,
				modules.CreateDocuments(name+"-a", name+"-b"),
				modules.ForEachDocument(modules.SetMetadata("pipeline", name)).WithParallelism(0),
			)))
		}
		require.NoError(t, e.Add(core.NewPipeline("All", modules.ReplaceDocuments()).WithDependencies("P4", "P2", "P3", "P1")))
		res, err := e.Execute(context.Background())
		require.NoError(t, err)
		return res
	}

	serial := build(engine.WithMaxConcurrency(1))
	for i := 0; i < 5; i++ {
		parallel := build()
		require.Equal(t, output(t, serial, "All"), output(t, parallel, "All"))
	}
	require.Equal(t, []string{"P4-a", "P4-b", "P2-a", "P2-b", "P3-a", "P3-b", "P1-a", "P1-b"}, output(t, serial, "All"))
}

func TestEngine_OutputsAreIsolatedFromConsumers(t *testing.T) {
	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Source", modules.CreateDocuments("A", "B"))))
	require.NoError(t, e.Add(core.NewPipeline("Consumer",
		modules.ReplaceDocuments(),
		core.ModuleFunc(func(_ context.Context, _ core.ExecutionContext, in []*core.Document) ([]*core.Document, error) {
			in[0] = core.NewStringDocument("clobbered", nil)
			return in[:1], nil
		}),
	).WithDependencies("Source")))

	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, output(t, res, "Source"))
	require.Equal(t, []string{"clobbered"}, output(t, res, "Consumer"))
}

func TestEngine_SingleRunAndReset(t *testing.T) {
	var runs int32
	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("A", core.ModuleFunc(func(context.Context, core.ExecutionContext, []*core.Document) ([]*core.Document, error) {
		atomic.AddInt32(&runs, 1)
		return nil, nil
	}))))

	_, err := e.Execute(context.Background())
	require.NoError(t, err)
	_, err = e.Execute(context.Background())
	require.ErrorIs(t, err, engine.ErrAlreadyExecuted)
	require.ErrorIs(t, e.Add(core.NewPipeline("B")), engine.ErrAlreadyExecuted)

	require.NoError(t, e.Reset())
	_, ok := e.Output("A")
	require.False(t, ok)
	_, err = e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestEngine_PanicInModuleFaultsPipeline(t *testing.T) {
	e := engine.New()
	require.NoError(t, e.Add(core.NewPipeline("Boom", core.ModuleFunc(func(context.Context, core.ExecutionContext, []*core.Document) ([]*core.Document, error) {
		panic("unexpected")
	}))))
	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, dag.StateFaulted, res.States["Boom"])
	require.ErrorContains(t, res.Faults["Boom"], "unexpected")
}

func TestEngine_ObservabilityWiring(t *testing.T) {
	zcore, logs := observer.New(zap.DebugLevel)
	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	rec := trace.NewRecorder()
	store := cache.NewMemoryStore()

	build := func() *engine.Engine {
		e := engine.New(
			engine.WithLogger(&logger.ZapLogger{Logger: zap.New(zcore)}),
			engine.WithMetrics(metrics),
			engine.WithTraceSink(rec),
		)
		require.NoError(t, e.Add(core.NewPipeline("Content",
			modules.CreateDocuments("# one", "# two"),
			modules.CacheDocuments(store, modules.RenderMarkdown()),
		)))
		require.NoError(t, e.Add(core.NewPipeline("Broken", core.ModuleFunc(func(context.Context, core.ExecutionContext, []*core.Document) ([]*core.Document, error) {
			return nil, errors.New("nope")
		}))))
		require.NoError(t, e.Add(core.NewPipeline("Downstream").WithDependencies("Broken")))
		return e
	}

	res, err := build().Execute(context.Background())
	require.NoError(t, err)
	_, err = build().Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, rec.Count(trace.EventCacheMiss))
	require.Equal(t, 1, rec.Count(trace.EventCacheHit))
	require.Equal(t, 2, rec.Count(trace.EventPipelineCompleted))
	require.Equal(t, 2, rec.Count(trace.EventPipelineFaulted))
	require.Equal(t, 2, rec.Count(trace.EventPipelineSkipped))

	tr := rec.Trace(res.GraphHash.String())
	require.NoError(t, tr.Validate())

	count, err := testutil.GatherAndCount(reg, "contentweaver_pipelines_total")
	require.NoError(t, err)
	require.Equal(t, 3, count, "one series per terminal state")

	require.NotZero(t, logs.FilterMessage("pipeline faulted").Len())
	skipped := logs.FilterMessage("pipeline skipped").All()
	require.Len(t, skipped, 2)
	require.Equal(t, "Broken", skipped[0].ContextMap()["cause"])
}
