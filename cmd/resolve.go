package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/tui/theme"
)

// NewResolveCmd creates the `resolve` command.
func NewResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <executable>",
		Short: "Resolve a single Python interpreter path",
		Long: `Asks the discovery worker to fully resolve one interpreter: version,
environment kind, architecture and prefix.

Examples:
  # Resolve a system interpreter
  pyscout resolve /usr/bin/python3

  # Resolve a project virtualenv, as JSON
  pyscout resolve .venv/bin/python --json
`,
		Args: cobra.ExactArgs(1),
		RunE: runResolveE,
	}

	cmd.Flags().Duration("timeout", defaultTimeout, "Abort the resolve after this long")

	return cmd
}

func runResolveE(cmd *cobra.Command, args []string) error {
	opts := cli.GetOptions(cmd)
	handler := cli.NewErrorHandler(opts.Verbose)

	f, err := newDiscoveryFinder(cmd)
	if err != nil {
		return handler.Handle(err)
	}
	defer f.Dispose()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag(cmd))
	defer cancel()

	env, err := f.ResolveEnv(ctx, args[0])
	if err != nil {
		return handler.Handle(err)
	}

	if opts.JSONOutput {
		data, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	t := theme.DefaultTheme
	fmt.Println(t.Bold.Render(env.DisplayName))
	fmt.Printf("  Kind:       %s\n", env.Kind)
	fmt.Printf("  Type:       %s\n", env.Type)
	fmt.Printf("  Version:    %s\n", env.Version.String())
	fmt.Printf("  Location:   %s\n", env.Location)
	fmt.Printf("  Executable: %s\n", env.Executable.Path)
	if env.Arch != "" {
		fmt.Printf("  Arch:       %s\n", env.Arch)
	}
	return nil
}
