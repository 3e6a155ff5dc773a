package command

import (
	"context"
	"io"
	"os"
	"os/exec"
)

// Executor creates exec.Cmd instances. This abstraction allows for dependency
// injection, enabling test-specific worker creation logic (e.g., substituting
// a fake discovery worker binary) without modifying production code.
type Executor interface {
	// Command creates a new exec.Cmd instance for the given command and arguments.
	Command(name string, args ...string) *exec.Cmd

	// CommandContext creates a new context-aware exec.Cmd instance.
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

// RealExecutor is the production implementation of the Executor interface,
// which uses the standard os/exec package to create commands.
type RealExecutor struct{}

// Command creates a standard exec.Cmd.
func (e *RealExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// CommandContext creates a standard context-aware exec.Cmd.
func (e *RealExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// PipedProcess is a started subprocess with all three standard streams piped,
// the way the discovery worker is hosted: stdin/stdout carry the protocol,
// stderr carries free-form log lines.
type PipedProcess struct {
	Stdin   io.WriteCloser
	Stdout  io.ReadCloser
	Stderr  io.ReadCloser
	Process *os.Process

	wait func() error
}

// Wait reaps the process after it exits. It must be called exactly once.
func (p *PipedProcess) Wait() error {
	return p.wait()
}

// StartPiped starts the named binary with the environment inherited and all
// standard streams piped. The caller owns the returned process and must reap
// it with Wait.
func StartPiped(executor Executor, name string, args ...string) (*PipedProcess, error) {
	cmd := executor.Command(name, args...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &PipedProcess{
		Stdin:   stdin,
		Stdout:  stdout,
		Stderr:  stderr,
		Process: cmd.Process,
		wait:    cmd.Wait,
	}, nil
}
