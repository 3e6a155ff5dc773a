package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyscout/core/errors"
)

// testPeer is the worker side of an in-memory connection.
type testPeer struct {
	fr  *FrameReader
	out io.Writer
}

func newTestConn(t *testing.T) (*Connection, *testPeer) {
	t.Helper()

	clientRead, workerWrite := io.Pipe()
	workerRead, clientWrite := io.Pipe()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	conn := NewConnection(clientRead, clientWrite, logrus.NewEntry(logger))
	t.Cleanup(func() {
		conn.Close(nil)
		workerWrite.Close()
		clientWrite.Close()
	})

	return conn, &testPeer{fr: NewFrameReader(workerRead), out: workerWrite}
}

// next decodes the next request the client sent.
func (p *testPeer) next(t *testing.T) requestEnvelope {
	t.Helper()
	payload, err := p.fr.Next()
	require.NoError(t, err)
	var req requestEnvelope
	require.NoError(t, json.Unmarshal(payload, &req))
	return req
}

type requestEnvelope struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (p *testPeer) respond(t *testing.T, id uint64, result string) {
	t.Helper()
	payload := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, result)
	require.NoError(t, WriteFrame(p.out, []byte(payload)))
}

func (p *testPeer) respondError(t *testing.T, id uint64, code int, msg string) {
	t.Helper()
	payload := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":%d,"message":%q}}`, id, code, msg)
	require.NoError(t, WriteFrame(p.out, []byte(payload)))
}

func (p *testPeer) notify(t *testing.T, method, params string) {
	t.Helper()
	payload := fmt.Sprintf(`{"jsonrpc":"2.0","method":%q,"params":%s}`, method, params)
	require.NoError(t, WriteFrame(p.out, []byte(payload)))
}

func TestSendRequestResponse(t *testing.T) {
	conn, peer := newTestConn(t)

	go func() {
		req := peer.next(t)
		peer.respond(t, req.ID, `{"duration":42}`)
	}()

	var result RefreshResult
	err := conn.SendRequest(context.Background(), MethodRefresh, RefreshParams{}, &result)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Duration)
}

func TestSendRequestWorkerError(t *testing.T) {
	conn, peer := newTestConn(t)

	go func() {
		req := peer.next(t)
		peer.respondError(t, req.ID, -32602, "not a python executable")
	}()

	err := conn.SendRequest(context.Background(), MethodResolve, ResolveParams{Executable: "/etc/passwd"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeRequestFailed))
}

func TestSendRequestTimeout(t *testing.T) {
	conn, peer := newTestConn(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := peer.next(t)
		// Respond only after the caller gave up; the late response must be
		// dropped without disturbing the connection.
		time.Sleep(50 * time.Millisecond)
		peer.respond(t, req.ID, `{}`)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := conn.SendRequest(ctx, MethodResolve, ResolveParams{Executable: "/x"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeRequestTimeout))

	<-done

	// Connection still works after the late response.
	go func() {
		req := peer.next(t)
		peer.respond(t, req.ID, `{"duration":1}`)
	}()
	var result RefreshResult
	require.NoError(t, conn.SendRequest(context.Background(), MethodRefresh, nil, &result))
}

func TestNotificationsDispatchInOrder(t *testing.T) {
	conn, peer := newTestConn(t)

	got := make(chan string, 4)
	remove := conn.OnNotification(NotifyEnvironment, func(params json.RawMessage) {
		var rec EnvironmentRecord
		require.NoError(t, json.Unmarshal(params, &rec))
		got <- rec.Executable
	})

	peer.notify(t, NotifyEnvironment, `{"executable":"/a"}`)
	peer.notify(t, NotifyEnvironment, `{"executable":"/b"}`)

	assert.Equal(t, "/a", <-got)
	assert.Equal(t, "/b", <-got)

	// After removal no further deliveries happen.
	remove()
	peer.notify(t, NotifyEnvironment, `{"executable":"/c"}`)

	// Force a round trip so the notification above has been processed.
	go func() {
		req := peer.next(t)
		peer.respond(t, req.ID, `{}`)
	}()
	require.NoError(t, conn.SendRequest(context.Background(), MethodConfigure, nil, nil))
	assert.Empty(t, got)
}

func TestStreamFailureRejectsPending(t *testing.T) {
	clientRead, workerWrite := io.Pipe()
	workerRead, clientWrite := io.Pipe()
	go io.Copy(io.Discard, workerRead) //nolint:errcheck

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	conn := NewConnection(clientRead, clientWrite, logrus.NewEntry(logger))

	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.SendRequest(context.Background(), MethodRefresh, nil, nil)
	}()

	// Simulate the worker crashing mid-request.
	time.Sleep(10 * time.Millisecond)
	workerWrite.Close()

	err := <-errCh
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeWorkerExited))

	// Further requests fail immediately with the close reason.
	err = conn.SendRequest(context.Background(), MethodRefresh, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeWorkerExited))
}

func TestCloseIsIdempotent(t *testing.T) {
	conn, _ := newTestConn(t)
	conn.Close(nil)
	conn.Close(errors.WorkerExited(nil))
	assert.True(t, errors.Is(conn.Err(), errors.ErrCodeChannelClosed))
}
