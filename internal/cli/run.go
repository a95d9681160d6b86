package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contentweaver/internal/dag"
	"contentweaver/internal/engine"
	"contentweaver/internal/runstate"
	"contentweaver/internal/telemetry"
	"contentweaver/internal/trace"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run [project.yaml]",
		Short: "Execute every pipeline of a project",
		Long: `Loads the project file (default pipelines.yaml), validates the pipeline graph and
executes it. The exit code is 0 when every pipeline completes, 1 when any
pipeline faults or the run is cancelled, and 3 for project or graph errors.`,
		Args: maxOneArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout(), projectPath(args))
		},
	}
}

func (a *app) run(ctx context.Context, out io.Writer, path string) error {
	cfg := a.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			a.log.Warn("closing cache store", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	if cfg.Metrics.Addr != "" {
		served := make(chan error, 1)
		go func() { served <- telemetry.Serve(ctx, cfg.Metrics.Addr, reg, a.log) }()
		defer func() {
			cancel()
			if err := <-served; err != nil {
				a.log.Warn("metrics server", zap.Error(err))
			}
		}()
	}

	events := trace.NewRecorder()
	opts := []engine.Option{
		engine.WithLogger(a.log),
		engine.WithMetrics(metrics),
		engine.WithMaxConcurrency(cfg.Engine.MaxConcurrency),
	}
	if cfg.Trace.Path != "" {
		opts = append(opts, engine.WithTraceSink(events))
	}

	e, err := a.loadEngine(path, store, opts...)
	if err != nil {
		return err
	}

	runs, err := a.runRecorder()
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	g, err := e.Graph()
	if err != nil {
		if runs != nil {
			if _, rerr := runs.Reject(err); rerr != nil {
				a.log.Warn("recording rejected run", zap.Error(rerr))
			}
		}
		return withExitCode(ExitConfigError, err)
	}

	var run runstate.Run
	if runs != nil {
		run, err = runs.Begin(g.Hash().String(), e.Pipelines())
		if err != nil {
			return withExitCode(ExitInternalError, fmt.Errorf("record run: %w", err))
		}
	}

	res, err := e.Execute(ctx)
	if err != nil {
		if runs != nil {
			if _, rerr := runs.Abort(run, err); rerr != nil {
				a.log.Warn("recording aborted run", zap.Error(rerr))
			}
		}
		return err
	}

	if runs != nil {
		if run, err = runs.Finish(run, res); err != nil {
			return withExitCode(ExitInternalError, fmt.Errorf("record run: %w", err))
		}
	}
	if cfg.Trace.Path != "" {
		if err := events.Trace(g.Hash().String()).WriteFile(cfg.Trace.Path); err != nil {
			return withExitCode(ExitInternalError, fmt.Errorf("write trace: %w", err))
		}
	}

	if err := printSummary(out, res, run.RunID); err != nil {
		return withExitCode(ExitInternalError, err)
	}
	if !res.Succeeded() {
		runErr := res.Err()
		if runErr == nil {
			runErr = errors.New("run did not complete")
		}
		return withExitCode(ExitGraphFailure, runErr)
	}
	return nil
}

// printSummary writes one line per pipeline, sorted by name.
func printSummary(out io.Writer, res *engine.Result, runID string) error {
	names := make([]string, 0, len(res.States))
	for n := range res.States {
		names = append(names, n)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, n := range names {
		st := res.States[n]
		switch {
		case st == dag.StateCompleted:
			fmt.Fprintf(tw, "%s\t%s\t%d documents\n", n, st, len(res.Outputs[n]))
		case st == dag.StateSkipped && res.SkipCauses[n] != "":
			fmt.Fprintf(tw, "%s\t%s\tupstream %s\n", n, st, res.SkipCauses[n])
		default:
			fmt.Fprintf(tw, "%s\t%s\t\n", n, st)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if runID != "" {
		_, err := fmt.Fprintf(out, "run %s\n", runID)
		return err
	}
	return nil
}
