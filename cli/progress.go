package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pyscout/core/tui/theme"
)

// DiscoveryProgress renders refresh progress on a terminal: the current
// discovery stage and a running count of environments found.
type DiscoveryProgress struct {
	mu    sync.Mutex
	out   io.Writer
	stage string
	found int
	start time.Time
}

// NewDiscoveryProgress creates a progress reporter writing to out.
func NewDiscoveryProgress(out io.Writer) *DiscoveryProgress {
	return &DiscoveryProgress{
		out:   out,
		stage: "starting",
		start: time.Now(),
	}
}

// SetStage updates the discovery stage shown to the user.
func (p *DiscoveryProgress) SetStage(stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
	p.render()
}

// Found increments the environment counter.
func (p *DiscoveryProgress) Found() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.found++
	p.render()
}

func (p *DiscoveryProgress) render() {
	elapsed := time.Since(p.start).Round(time.Second)
	fmt.Fprintf(p.out, "\r\033[K%s %s - %d environments [%s]",
		theme.DefaultTheme.Info.Render("Discovering"), p.stage, p.found, elapsed)
}

// Done finishes the progress line with a summary.
func (p *DiscoveryProgress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.start).Round(time.Millisecond)
	fmt.Fprintf(p.out, "\r\033[K%s %d environments in %s\n",
		theme.DefaultTheme.Success.Render("Found"), p.found, elapsed)
}
