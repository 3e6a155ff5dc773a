package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/tui/theme"
)

// NewCondaInfoCmd creates the `conda-info` command.
func NewCondaInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conda-info",
		Short: "Show the worker's conda diagnostics",
		Long: `Prints a diagnostic snapshot of the worker's conda search state: whether
conda can be spawned, which condarc files were found, and the environment
directories it registers. Useful when conda environments are missing from
discovery results.`,
		RunE: runCondaInfoE,
	}

	cmd.Flags().Duration("timeout", defaultTimeout, "Abort the request after this long")

	return cmd
}

func runCondaInfoE(cmd *cobra.Command, args []string) error {
	opts := cli.GetOptions(cmd)
	handler := cli.NewErrorHandler(opts.Verbose)

	f, err := newDiscoveryFinder(cmd)
	if err != nil {
		return handler.Handle(err)
	}
	defer f.Dispose()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag(cmd))
	defer cancel()

	info, err := f.CondaInfo(ctx)
	if err != nil {
		return handler.Handle(err)
	}

	if opts.JSONOutput {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	t := theme.DefaultTheme
	if info.CanSpawnConda {
		fmt.Println(t.Success.Render("conda is spawnable"))
	} else {
		fmt.Println(t.Warning.Render("conda could not be spawned"))
	}
	printPathList("condarc files", info.CondaRcs)
	printPathList("environment directories", info.EnvDirs)
	if info.EnvironmentsTxtExists {
		fmt.Printf("environments.txt: %s\n", info.EnvironmentsTxt)
		printPathList("registered environments", info.EnvironmentsFromTxt)
	} else {
		fmt.Println(t.Muted.Render("no environments.txt registry found"))
	}
	return nil
}

func printPathList(title string, paths []string) {
	if len(paths) == 0 {
		fmt.Printf("%s: %s\n", title, theme.DefaultTheme.Muted.Render("none"))
		return
	}
	fmt.Printf("%s:\n", title)
	for _, p := range paths {
		fmt.Printf("  %s\n", p)
	}
}
