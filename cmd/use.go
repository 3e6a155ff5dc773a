package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/state"
	"github.com/pyscout/core/tui/theme"
)

// NewUseCmd creates the `use` command.
func NewUseCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "use [interpreter-path]",
		Short: "Select the Python interpreter for this project",
		Long: `Selects a Python interpreter for the current project. The choice is
stored in .pyscout/state.yml next to the code, so each project keeps its
own selection.

Without arguments, prints the currently selected interpreter.`,
		Example: `  # Select a virtual environment interpreter
  pyscout use ~/.venvs/ml/bin/python

  # Show the current selection
  pyscout use

  # Clear the selection
  pyscout use --clear`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)
			t := theme.DefaultTheme

			if clear {
				if err := state.ClearActiveEnvironment(); err != nil {
					return handler.Handle(err)
				}
				fmt.Println(t.Success.Render("✓") + " Selection cleared")
				return nil
			}

			if len(args) == 0 {
				current, err := state.ActiveEnvironment()
				if err != nil {
					return handler.Handle(err)
				}
				if current == "" {
					fmt.Println(t.Muted.Render("No interpreter selected for this project."))
					return nil
				}
				fmt.Println(current)
				return nil
			}

			// Resolve before persisting so a typo'd path is rejected with
			// a proper error instead of being stored.
			f, err := newDiscoveryFinder(cmd)
			if err != nil {
				return handler.Handle(err)
			}
			defer f.Dispose()

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			env, err := f.ResolveEnv(ctx, args[0])
			if err != nil {
				return handler.Handle(err)
			}

			if err := state.SetActiveEnvironment(env.Executable.Path); err != nil {
				return handler.Handle(err)
			}

			fmt.Printf("%s Selected %s (%s)\n",
				t.Success.Render("✓"), t.Bold.Render(env.DisplayName), env.Executable.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the selected interpreter")
	return cmd
}
