// Package tui holds shared terminal-UI bootstrap helpers.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// InitializeTUI prepares the terminal environment for TUI commands. It
// honors environment variables that force color output (`CLICOLOR_FORCE`,
// `COLORTERM`) so the watch view renders consistently in non-interactive
// environments, and has no effect otherwise.
func InitializeTUI() {
	if os.Getenv("CLICOLOR_FORCE") == "1" || os.Getenv("COLORTERM") == "truecolor" {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}
