package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/collection"
	"github.com/pyscout/core/finder"
	"github.com/pyscout/core/logging"
	"github.com/pyscout/core/protocol"
	"github.com/pyscout/core/tui"
	"github.com/pyscout/core/tui/theme"
)

// NewWatchCmd creates the `watch` command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of discovered Python environments",
		Long: `Opens an interactive view that updates as environments are discovered,
created or removed. Configured environment directories are watched on disk;
creating or deleting an environment triggers a rescan automatically.

Keys: r rescan, q quit.`,
		RunE: runWatchE,
	}

	return cmd
}

// Messages delivered into the bubbletea event loop.
type (
	envChangedMsg  collection.ChangeEvent
	progressMsg    finder.ProgressEvent
	rescanDoneMsg  struct{ err error }
	fsTriggeredMsg struct{ dir string }
)

type watchModel struct {
	f       *finder.Finder
	spinner spinner.Model
	events  chan tea.Msg

	state     finder.State
	lastErr   error
	lastEvent string
	scanning  bool
	width     int
}

func newWatchModel(f *finder.Finder, events chan tea.Msg) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.DefaultTheme.Colors.Cyan)

	return watchModel{
		f:       f,
		spinner: sp,
		events:  events,
		state:   f.State(),
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.nextEvent())
}

// nextEvent pulls one message from the subscription channel.
func (m watchModel) nextEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m watchModel) rescan() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		session, err := m.f.Refresh(ctx, protocol.RefreshParams{})
		if err != nil {
			return rescanDoneMsg{err: err}
		}
		return rescanDoneMsg{err: session.Wait(ctx)}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if !m.scanning {
				m.scanning = true
				return m, m.rescan()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case envChangedMsg:
		ev := collection.ChangeEvent(msg)
		m.lastEvent = fmt.Sprintf("%s %s", ev.Kind, ev.New.DisplayName)
		return m, m.nextEvent()

	case progressMsg:
		m.state = finder.ProgressEvent(msg).State
		m.scanning = m.state == finder.StateDiscoveryStarted
		return m, m.nextEvent()

	case fsTriggeredMsg:
		m.lastEvent = fmt.Sprintf("filesystem change in %s", msg.dir)
		if !m.scanning {
			m.scanning = true
			return m, m.rescan()
		}
		return m, m.nextEvent()

	case rescanDoneMsg:
		m.scanning = false
		m.lastErr = msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m watchModel) View() string {
	t := theme.DefaultTheme
	var b strings.Builder

	header := "pyscout watch"
	if m.scanning {
		header = m.spinner.View() + " " + header + " [scanning]"
	}
	b.WriteString(t.Title.Render(header) + "\n")

	envs := m.f.GetEnvs()
	if len(envs) == 0 {
		b.WriteString(t.Muted.Render("No environments discovered yet.") + "\n")
	} else {
		b.WriteString(t.TableHeader.Render(fmt.Sprintf("%-34s %-18s %-10s", "NAME", "KIND", "VERSION")) + "\n")
		for _, env := range envs {
			version := env.Version.String()
			if version == "" {
				version = "-"
			}
			b.WriteString(t.TableRow.Render(fmt.Sprintf("%-34s %-18s %-10s",
				truncate(env.DisplayName, 34), string(env.Kind), version)) + "\n")
		}
	}

	b.WriteString("\n")
	if m.lastErr != nil {
		b.WriteString(t.Error.Render("error: "+m.lastErr.Error()) + "\n")
	}
	if m.lastEvent != "" {
		b.WriteString(t.Muted.Render("last event: "+m.lastEvent) + "\n")
	}
	b.WriteString(t.Muted.Render("r: rescan  q: quit") + "\n")
	return b.String()
}

func runWatchE(cmd *cobra.Command, args []string) error {
	opts := cli.GetOptions(cmd)
	handler := cli.NewErrorHandler(opts.Verbose)
	logger := logging.NewLogger("watch")

	tui.InitializeTUI()

	settings, err := cli.LoadSettings(cmd)
	if err != nil {
		return handler.Handle(err)
	}

	f, err := finder.New(finder.Options{Settings: settings})
	if err != nil {
		return handler.Handle(err)
	}
	defer f.Dispose()

	events := make(chan tea.Msg, 64)
	push := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
		}
	}

	removeChange := f.OnChange(func(ev collection.ChangeEvent) { push(envChangedMsg(ev)) })
	defer removeChange()
	removeProgress := f.OnProgress(func(ev finder.ProgressEvent) { push(progressMsg(ev)) })
	defer removeProgress()

	// Watch the configured environment directories so environments created
	// or deleted on disk trigger a rescan.
	watchDirs := append(append([]string(nil), settings.VenvDirs...), settings.SearchPaths...)
	if len(watchDirs) > 0 {
		watcher, err := collection.NewDirWatcher(watchDirs, 500, func(dir string) {
			push(fsTriggeredMsg{dir: dir})
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("Environment directory watching disabled")
		} else {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go watcher.Start(ctx)
		}
	}

	// Give the eager scan a moment so the first frame is not empty.
	time.Sleep(50 * time.Millisecond)

	program := tea.NewProgram(newWatchModel(f, events))
	_, err = program.Run()
	return err
}
