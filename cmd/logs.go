package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/logging"
	"github.com/pyscout/core/tui/theme"
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display pyscout log files",
		Long: `Prints log output written under .pyscout/logs/. By default the most
recent log file is shown; use --follow to stream new lines as discovery runs.

Examples:
  # Show the latest log file
  pyscout logs

  # Follow worker output live
  pyscout logs -f --component worker

  # Last 50 lines
  pyscout logs --tail 50
`,
		RunE: runLogsE,
	}

	cmd.Flags().BoolP("follow", "f", false, "Follow log output")
	cmd.Flags().String("component", "", "Only show logs from one component (e.g. finder, worker)")
	cmd.Flags().Int("tail", 0, "Show only the last N lines")

	return cmd
}

func runLogsE(cmd *cobra.Command, args []string) error {
	opts := cli.GetOptions(cmd)
	handler := cli.NewErrorHandler(opts.Verbose)

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	component, _ := cmd.Flags().GetString("component")
	logFile, err := latestLogFile(logging.DefaultLogDir(cwd), component)
	if err != nil {
		return handler.Handle(err)
	}

	follow, _ := cmd.Flags().GetBool("follow")
	if follow {
		return followLogFile(logFile)
	}

	tailLines, _ := cmd.Flags().GetInt("tail")
	return printLogFile(logFile, tailLines)
}

// latestLogFile picks the most recently modified log file, optionally
// restricted to one component's files.
func latestLogFile(dir, component string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("no logs found under %s: %w", dir, err)
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		if component != "" && !strings.HasPrefix(entry.Name(), component+"-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no matching log files under %s", dir)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})
	return candidates[0].path, nil
}

func printLogFile(path string, tailLines int) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Println(theme.DefaultTheme.Muted.Render("==> " + path))

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if tailLines > 0 && len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func followLogFile(path string) error {
	fmt.Println(theme.DefaultTheme.Muted.Render("==> " + path))

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	for line := range t.Lines {
		if line.Err != nil {
			return line.Err
		}
		fmt.Println(line.Text)
	}
	return nil
}
