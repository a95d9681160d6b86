package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"contentweaver/internal/cache"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [project.yaml]",
		Short: "Check a project without running it",
		Long: `Parses the project file, builds every module and validates the pipeline graph:
unknown dependencies, duplicate names, cycles and exchange modules reading
pipelines that are not declared dependencies.`,
		Args: maxOneArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.loadEngine(projectPath(args), cache.NopStore{})
			if err != nil {
				return err
			}
			if err := e.Validate(); err != nil {
				return withExitCode(ExitConfigError, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "project is valid: %d pipelines\n", len(e.Pipelines()))
			return err
		},
	}
}
