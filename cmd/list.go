package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/collection"
	"github.com/pyscout/core/finder"
	"github.com/pyscout/core/protocol"
	"github.com/pyscout/core/tui/theme"
)

// NewListCmd creates the `list` command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover and list Python environments",
		Long: `Runs a full discovery scan and prints every Python environment found:
system interpreters, virtual environments, conda environments and more.

Examples:
  # List all environments
  pyscout list

  # Only conda environments, newest Python first
  pyscout list --kind Conda --sort version

  # Restrict the scan to specific directories
  pyscout list --search /opt/pythons,/srv/envs

  # Machine-readable output
  pyscout list --json
`,
		RunE: runListE,
	}

	cmd.Flags().StringSlice("kind", nil, "Restrict the scan to specific environment kinds")
	cmd.Flags().StringSlice("search", nil, "Restrict the scan to specific root directories")
	cmd.Flags().String("sort", "discovered", "Sort order: discovered, version, or kind")
	cmd.Flags().Duration("timeout", defaultTimeout, "Abort the scan after this long")

	return cmd
}

func runListE(cmd *cobra.Command, args []string) error {
	opts := cli.GetOptions(cmd)
	handler := cli.NewErrorHandler(opts.Verbose)

	f, err := newDiscoveryFinder(cmd)
	if err != nil {
		return handler.Handle(err)
	}
	defer f.Dispose()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag(cmd))
	defer cancel()

	var progress *cli.DiscoveryProgress
	if !opts.JSONOutput && isatty.IsTerminal(os.Stderr.Fd()) {
		progress = cli.NewDiscoveryProgress(os.Stderr)
		removeChange := f.OnChange(func(collection.ChangeEvent) { progress.Found() })
		defer removeChange()
		removeProgress := f.OnProgress(func(ev finder.ProgressEvent) { progress.SetStage(string(ev.State)) })
		defer removeProgress()
	}

	kinds, _ := cmd.Flags().GetStringSlice("kind")
	searchPaths, _ := cmd.Flags().GetStringSlice("search")

	session, err := f.Refresh(ctx, protocol.RefreshParams{Kinds: kinds, SearchPaths: searchPaths})
	if err != nil {
		return handler.Handle(err)
	}
	if err := session.Wait(ctx); err != nil {
		return handler.Handle(err)
	}
	if progress != nil {
		progress.Done()
	}

	envs := f.GetEnvs()
	sortFlag, _ := cmd.Flags().GetString("sort")
	sortEnvs(envs, sortFlag)

	if opts.JSONOutput {
		data, err := json.MarshalIndent(envs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printEnvTable(envs)
	return nil
}

// sortEnvs orders environments for display. "discovered" keeps insertion
// order; "version" sorts newest interpreter first with unresolved versions
// last; "kind" groups by kind.
func sortEnvs(envs []collection.Environment, order string) {
	switch order {
	case "version":
		sort.SliceStable(envs, func(i, j int) bool {
			return envSemver(envs[j]).LessThan(envSemver(envs[i]))
		})
	case "kind":
		sort.SliceStable(envs, func(i, j int) bool {
			return envs[i].Kind < envs[j].Kind
		})
	}
}

func envSemver(env collection.Environment) *semver.Version {
	clamp := func(n int) uint64 {
		if n < 0 {
			return 0
		}
		return uint64(n)
	}
	return semver.New(clamp(env.Version.Major), clamp(env.Version.Minor), clamp(env.Version.Micro), "", "")
}

func printEnvTable(envs []collection.Environment) {
	t := theme.DefaultTheme

	if len(envs) == 0 {
		fmt.Println(t.Muted.Render("No Python environments found."))
		return
	}

	header := fmt.Sprintf("%-34s %-18s %-10s %s", "NAME", "KIND", "VERSION", "EXECUTABLE")
	fmt.Println(t.TableHeader.Render(header))

	for _, env := range envs {
		version := env.Version.String()
		if version == "" {
			version = "-"
		}
		exe := env.Executable.Path
		if exe == "" {
			exe = env.Location
		}
		row := fmt.Sprintf("%-34s %-18s %-10s %s",
			truncate(env.DisplayName, 34), string(env.Kind), version, exe)
		fmt.Println(t.TableRow.Render(row))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max-1]) + "…"
}
