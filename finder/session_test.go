package finder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyscout/core/protocol"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// fakeWorker serves the worker side of an in-memory connection. Requests are
// acknowledged with canned responses unless a per-method hook takes over.
type fakeWorker struct {
	fr    *protocol.FrameReader
	out   io.Writer
	outMu sync.Mutex

	closeOut func()

	mu     sync.Mutex
	counts map[string]int

	// Hooks return true when they handled the request themselves.
	onRefresh func(id uint64, params json.RawMessage) bool
	onResolve func(id uint64, path string) bool
}

func newFakeWorker(t *testing.T) (*protocol.Connection, *fakeWorker) {
	t.Helper()

	clientRead, workerWrite := io.Pipe()
	workerRead, clientWrite := io.Pipe()

	conn := protocol.NewConnection(clientRead, clientWrite, testLogger())
	w := &fakeWorker{
		fr:     protocol.NewFrameReader(workerRead),
		out:    workerWrite,
		counts: make(map[string]int),
		closeOut: func() {
			workerWrite.Close()
		},
	}

	t.Cleanup(func() {
		conn.Close(nil)
		workerWrite.Close()
		clientWrite.Close()
	})

	return conn, w
}

func (w *fakeWorker) serve() {
	for {
		payload, err := w.fr.Next()
		if err != nil {
			return
		}
		var req struct {
			ID     uint64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			continue
		}

		w.mu.Lock()
		w.counts[req.Method]++
		onRefresh := w.onRefresh
		onResolve := w.onResolve
		w.mu.Unlock()

		switch req.Method {
		case protocol.MethodConfigure:
			w.respond(req.ID, `{}`)
		case protocol.MethodRefresh:
			if onRefresh != nil && onRefresh(req.ID, req.Params) {
				continue
			}
			w.respond(req.ID, `{"duration":1}`)
		case protocol.MethodResolve:
			var p protocol.ResolveParams
			_ = json.Unmarshal(req.Params, &p)
			if onResolve != nil && onResolve(req.ID, p.Executable) {
				continue
			}
			w.respond(req.ID, fmt.Sprintf(
				`{"executable":%q,"prefix":"/resolved","version":"3.11.0","kind":"VirtualEnv"}`, p.Executable))
		case protocol.MethodCondaInfo:
			w.respond(req.ID, `{"canSpawnConda":true,"condarcs":[],"envDirs":[]}`)
		}
	}
}

func (w *fakeWorker) respond(id uint64, result string) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	_ = protocol.WriteFrame(w.out, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, result)))
}

func (w *fakeWorker) notify(method, params string) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	_ = protocol.WriteFrame(w.out, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","method":%q,"params":%s}`, method, params)))
}

func (w *fakeWorker) count(method string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[method]
}

// crash closes the fake's output stream, simulating the worker dying.
func (w *fakeWorker) crash() {
	w.closeOut()
}

func newFakeClient(t *testing.T, setup func(*fakeWorker)) (*Client, *fakeWorker) {
	t.Helper()
	conn, w := newFakeWorker(t)
	if setup != nil {
		setup(w)
	}
	go w.serve()
	return NewClient(conn, testLogger()), w
}

func TestConfigureSkipsUnchangedSnapshot(t *testing.T) {
	client, w := newFakeClient(t, nil)
	ctx := context.Background()

	params := protocol.ConfigureParams{WorkspaceDirs: []string{"/home/u/proj"}}
	require.NoError(t, client.Configure(ctx, params))
	require.NoError(t, client.Configure(ctx, params))
	assert.Equal(t, 1, w.count(protocol.MethodConfigure))

	params.CondaExecutable = "/opt/conda/bin/conda"
	require.NoError(t, client.Configure(ctx, params))
	assert.Equal(t, 2, w.count(protocol.MethodConfigure))
}

func TestSessionEmitsCompleteRecordsAsIs(t *testing.T) {
	refreshID := make(chan uint64, 1)
	client, w := newFakeClient(t, func(w *fakeWorker) {
		w.onRefresh = func(id uint64, _ json.RawMessage) bool {
			refreshID <- id
			return true
		}
	})

	session := startSession(client, protocol.RefreshParams{}, testLogger())
	stream := session.Records()

	<-refreshID
	w.notify(protocol.NotifyEnvironment,
		`{"executable":"/usr/bin/python3","prefix":"/usr","version":"3.10.4","kind":"LinuxGlobal"}`)

	rec, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec.Environment)
	assert.Equal(t, "3.10.4", rec.Environment.Version)
	assert.Zero(t, w.count(protocol.MethodResolve))
}

func TestSessionCondaDirPassesThroughUnresolved(t *testing.T) {
	refreshID := make(chan uint64, 1)
	client, w := newFakeClient(t, func(w *fakeWorker) {
		w.onRefresh = func(id uint64, _ json.RawMessage) bool {
			refreshID <- id
			return true
		}
	})

	session := startSession(client, protocol.RefreshParams{}, testLogger())
	stream := session.Records()

	<-refreshID
	w.notify(protocol.NotifyEnvironment, `{"prefix":"/opt/conda/envs/bare","kind":"Conda"}`)

	rec, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec.Environment)
	assert.Empty(t, rec.Environment.Executable)
	assert.Zero(t, w.count(protocol.MethodResolve))
}

func TestSessionCompletionWaitsForSubResolves(t *testing.T) {
	refreshID := make(chan uint64, 1)
	resolveID := make(chan uint64, 1)
	client, w := newFakeClient(t, func(w *fakeWorker) {
		w.onRefresh = func(id uint64, _ json.RawMessage) bool {
			refreshID <- id
			return true
		}
		w.onResolve = func(id uint64, path string) bool {
			resolveID <- id
			return true
		}
	})

	session := startSession(client, protocol.RefreshParams{}, testLogger())
	stream := session.Records()

	// An incomplete record triggers a sub-resolve before the scan settles.
	w.notify(protocol.NotifyEnvironment, `{"executable":"/a/python","kind":"VirtualEnv"}`)
	rid := <-resolveID

	// The worker reports the scan finished while the resolve is still
	// outstanding; the session must not complete yet.
	w.respond(<-refreshID, `{"duration":3}`)
	select {
	case <-session.Done():
		t.Fatal("session completed with a resolve still outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	w.respond(rid, `{"executable":"/a/python","prefix":"/a","version":"3.9.2","kind":"VirtualEnv"}`)

	require.NoError(t, session.Wait(context.Background()))

	// The emitted record is the resolved value, not the raw one.
	rec, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec.Environment)
	assert.Equal(t, "3.9.2", rec.Environment.Version)
	assert.Equal(t, "/a", rec.Environment.Prefix)

	_, err = stream.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestSessionBroadcastStreams(t *testing.T) {
	refreshID := make(chan uint64, 1)
	client, w := newFakeClient(t, func(w *fakeWorker) {
		w.onRefresh = func(id uint64, _ json.RawMessage) bool {
			refreshID <- id
			return true
		}
	})

	session := startSession(client, protocol.RefreshParams{}, testLogger())
	a := session.Records()
	b := session.Records()

	w.notify(protocol.NotifyEnvironment,
		`{"executable":"/opt/py1/bin/python","prefix":"/opt/py1","version":"3.8.0","kind":"GlobalPaths"}`)

	ctx := context.Background()
	recA, err := a.Next(ctx)
	require.NoError(t, err)
	recB, err := b.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, recA.Environment.Executable, recB.Environment.Executable)

	// A stream opened later sees only records published after it opened.
	late := session.Records()
	w.notify(protocol.NotifyEnvironment,
		`{"executable":"/opt/py2/bin/python","prefix":"/opt/py2","version":"3.9.0","kind":"GlobalPaths"}`)

	recLate, err := late.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/opt/py2/bin/python", recLate.Environment.Executable)

	recA, err = a.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/opt/py2/bin/python", recA.Environment.Executable)

	w.respond(<-refreshID, `{"duration":3}`)
	require.NoError(t, session.Wait(ctx))

	_, err = late.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestSessionManagerRecords(t *testing.T) {
	client, w := newFakeClient(t, func(w *fakeWorker) {
		w.onRefresh = func(uint64, json.RawMessage) bool { return true }
	})

	session := startSession(client, protocol.RefreshParams{}, testLogger())
	stream := session.Records()

	w.notify(protocol.NotifyManager, `{"tool":"poetry","executable":"/usr/local/bin/poetry","version":"1.8.2"}`)

	rec, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec.Manager)
	assert.Equal(t, "poetry", rec.Manager.Tool)
}

func TestSessionDropsMisroutedRecords(t *testing.T) {
	refreshID := make(chan uint64, 1)
	client, w := newFakeClient(t, func(w *fakeWorker) {
		w.onRefresh = func(id uint64, _ json.RawMessage) bool {
			refreshID <- id
			return true
		}
	})

	session := startSession(client, protocol.RefreshParams{}, testLogger())
	stream := session.Records()

	// A manager-shaped payload on the environment channel is dropped, not
	// published as an empty environment.
	w.notify(protocol.NotifyEnvironment, `{"tool":"conda","executable":"/opt/conda/bin/conda","version":"23.1.0"}`)
	w.notify(protocol.NotifyEnvironment,
		`{"executable":"/usr/bin/python3","prefix":"/usr","version":"3.10.4","kind":"LinuxGlobal"}`)

	rec, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec.Environment)
	assert.Equal(t, "/usr/bin/python3", rec.Environment.Executable)

	w.respond(<-refreshID, `{"duration":1}`)
	require.NoError(t, session.Wait(context.Background()))
	_, err = stream.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStreamDropsRecordsAfterFinish(t *testing.T) {
	stream := newRecordStream()
	stream.finish()

	// Late records must be dropped, not appended to a closed stream.
	stream.push(protocol.RawRecord{Environment: &protocol.EnvironmentRecord{Executable: "/x/python"}})

	_, err := stream.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestSessionToleratesNotificationAfterRefreshSettles(t *testing.T) {
	// A record flushed in the same breath as the scan response can be
	// dispatched after the completion latch has fired, because the handler
	// list is copied before removal takes effect. Loop to hit the window.
	for i := 0; i < 50; i++ {
		client, _ := newFakeClient(t, func(w *fakeWorker) {
			w.onRefresh = func(id uint64, _ json.RawMessage) bool {
				w.respond(id, `{"duration":1}`)
				w.notify(protocol.NotifyEnvironment,
					`{"executable":"/usr/bin/python3","prefix":"/usr","version":"3.10.4","kind":"LinuxGlobal"}`)
				return true
			}
		})

		session := startSession(client, protocol.RefreshParams{}, testLogger())
		stream := session.Records()

		require.NoError(t, session.Wait(context.Background()))

		// The stream must terminate cleanly whether or not the record beat
		// the latch.
		ctx := context.Background()
		for {
			_, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
		}
	}
}

func TestStreamNextHonorsContext(t *testing.T) {
	client, _ := newFakeClient(t, func(w *fakeWorker) {
		w.onRefresh = func(uint64, json.RawMessage) bool { return true }
	})

	session := startSession(client, protocol.RefreshParams{}, testLogger())
	stream := session.Records()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
