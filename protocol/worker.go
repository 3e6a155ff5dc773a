package protocol

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pyscout/core/command"
	"github.com/pyscout/core/errors"
)

// DefaultWorkerExecutable is the binary looked up on PATH when no explicit
// worker path is configured.
const DefaultWorkerExecutable = "pyscout-worker"

// Worker owns the lifecycle of exactly one external discovery worker process
// and the protocol connection over its standard streams. Worker stderr lines
// are forwarded to the log sink, never parsed as protocol data.
type Worker struct {
	conn   *Connection
	logger *logrus.Entry

	procMu  sync.Mutex
	process *os.Process

	disposeOnce sync.Once
}

// SpawnWorker starts the worker process with inherited environment variables
// and wires up the protocol connection. Spawn failure is fatal for the
// channel; the caller must not retry on the same Worker.
func SpawnWorker(executable string, exec command.Executor, logger *logrus.Entry) (*Worker, error) {
	if executable == "" {
		executable = DefaultWorkerExecutable
	}

	proc, err := command.StartPiped(exec, executable)
	if err != nil {
		return nil, errors.WorkerSpawnFailed(executable, err)
	}

	w := &Worker{
		conn:    NewConnection(proc.Stdout, proc.Stdin, logger),
		logger:  logger,
		process: proc.Process,
	}

	go w.forwardStderr(proc.Stderr)

	// Reap the process and fail the connection when it exits.
	go func() {
		err := proc.Wait()
		w.conn.Close(errors.WorkerExited(err))
	}()

	// If the connection dies first (stream error, local close), make sure
	// the process does not linger.
	go func() {
		<-w.conn.Done()
		w.kill()
	}()

	logger.WithField("executable", executable).Debug("Discovery worker started")
	return w, nil
}

// Conn returns the protocol connection to the worker.
func (w *Worker) Conn() *Connection {
	return w.conn
}

// Dispose terminates the worker if it is still alive and closes the
// connection, rejecting all pending requests. Idempotent.
func (w *Worker) Dispose() {
	w.disposeOnce.Do(func() {
		w.conn.Close(errors.ChannelClosed())
		w.kill()
	})
}

func (w *Worker) kill() {
	w.procMu.Lock()
	proc := w.process
	w.process = nil
	w.procMu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
}

func (w *Worker) forwardStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		w.logger.WithField("stream", "stderr").Debug(scanner.Text())
	}
}
