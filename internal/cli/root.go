// Package cli implements the contentweaver command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contentweaver/internal/config"
	"contentweaver/internal/logger"
)

// app is the state shared by the commands of one invocation.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log logger.Logger

	// started is set once a command has passed argument validation.
	started bool
}

func newApp() *app {
	return &app{v: config.NewViper(), log: logger.NewNoopLogger()}
}

// NewRootCommand builds the command tree. Settings come from flags,
// CONTENTWEAVER_* environment variables or contentweaver.yaml, in that order.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp())
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "contentweaver",
		Short: "Run dependent content pipelines",
		Long: `contentweaver executes a graph of named content pipelines. Each pipeline is an
ordered chain of document modules. Pipelines run as soon as their declared
dependencies complete and independent pipelines run concurrently.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(ExitInvalidInvocation, err)
	})

	config.BindFlags(a.v, root.PersistentFlags())

	root.AddCommand(newRunCommand(a))
	root.AddCommand(newValidateCommand(a))
	root.AddCommand(newGraphCommand(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.started = true
	if err := config.ApplyConfigFile(a.v, cmd.Flags()); err != nil {
		return withExitCode(ExitInvalidInvocation, err)
	}
	cfg, err := config.Read(a.v)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// Run executes the command line args (without argv[0]) and returns the
// semantic exit code. A panic yields ExitInternalError.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) (code int) {
	a := newApp()
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "internal error: %v\n", r)
			code = ExitInternalError
		}
	}()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(stderr, "Error:", err)

	var exitErr *ExitError
	if !a.started && !errors.As(err, &exitErr) {
		// Cobra rejected the invocation before any command ran.
		return ExitInvalidInvocation
	}
	return ExitCode(err)
}

func projectPath(args []string) string {
	if len(args) == 0 {
		return DefaultProjectFile
	}
	return args[0]
}

func maxOneArg(_ *cobra.Command, args []string) error {
	if len(args) > 1 {
		return invalidInvocationf("accepts at most one project file, received %d", len(args))
	}
	return nil
}
