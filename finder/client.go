// Package finder drives Python environment discovery through an external
// worker process: a typed protocol client, refresh sessions that turn the
// worker's notification stream into pull-based record sequences, and the
// Finder facade owning the worker and the environment collection.
package finder

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pyscout/core/protocol"
)

// Client is the typed facade over a worker connection for the four protocol
// operations. Configure must be called before Refresh or Resolve.
type Client struct {
	conn   *protocol.Connection
	logger *logrus.Entry

	// configureMu serializes configure requests so the snapshot comparison
	// and the request form one unit.
	configureMu   sync.Mutex
	lastConfigure *protocol.ConfigureParams
}

// NewClient wraps a worker connection.
func NewClient(conn *protocol.Connection, logger *logrus.Entry) *Client {
	return &Client{conn: conn, logger: logger}
}

// Conn returns the underlying connection.
func (c *Client) Conn() *protocol.Connection {
	return c.conn
}

// Configure sends the settings snapshot to the worker. The request is
// skipped when params is structurally equal to the last snapshot sent, so
// repeated calls with unchanged settings cost no round trip.
func (c *Client) Configure(ctx context.Context, params protocol.ConfigureParams) error {
	c.configureMu.Lock()
	defer c.configureMu.Unlock()

	if c.lastConfigure != nil && c.lastConfigure.Equal(params) {
		c.logger.Debug("Configuration unchanged, skipping configure request")
		return nil
	}

	if err := c.conn.SendRequest(ctx, protocol.MethodConfigure, params, nil); err != nil {
		return err
	}
	snapshot := params
	c.lastConfigure = &snapshot
	return nil
}

// Refresh starts a worker-side scan and blocks until the worker reports the
// scan finished. Discovered records arrive as environment and manager
// notifications while the request is outstanding.
func (c *Client) Refresh(ctx context.Context, params protocol.RefreshParams) (protocol.RefreshResult, error) {
	var result protocol.RefreshResult
	err := c.conn.SendRequest(ctx, protocol.MethodRefresh, params, &result)
	return result, err
}

// Resolve requests full resolution of a single candidate path. The worker is
// not informed of caller-side cancellation; a timeout only abandons the
// response.
func (c *Client) Resolve(ctx context.Context, path string) (*protocol.EnvironmentRecord, error) {
	var rec protocol.EnvironmentRecord
	if err := c.conn.SendRequest(ctx, protocol.MethodResolve, protocol.ResolveParams{Executable: path}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CondaInfo returns the worker's diagnostic snapshot of conda search state.
func (c *Client) CondaInfo(ctx context.Context) (*protocol.CondaInfo, error) {
	var info protocol.CondaInfo
	if err := c.conn.SendRequest(ctx, protocol.MethodCondaInfo, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
