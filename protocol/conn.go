package protocol

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/pyscout/core/errors"
)

// NotificationHandler receives the raw params of an inbound notification.
// Handlers run synchronously on the connection's read loop and must not
// block materially.
type NotificationHandler func(params json.RawMessage)

// Connection multiplexes a duplex byte stream into a request/response and
// notification protocol. A Connection is fatal-on-error: once the underlying
// stream fails or is closed, every pending request is rejected and the
// connection cannot be reused; the owner must construct a fresh channel.
type Connection struct {
	logger *logrus.Entry

	writeMu sync.Mutex
	w       io.Writer

	nextID atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan *Message

	handlersMu sync.Mutex
	nextHandle int
	handlers   map[string][]handlerEntry

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

type handlerEntry struct {
	id int
	fn NotificationHandler
}

// NewConnection starts a connection over the given streams. The read loop
// runs until r fails or Close is called.
func NewConnection(r io.Reader, w io.Writer, logger *logrus.Entry) *Connection {
	c := &Connection{
		logger:   logger,
		w:        w,
		pending:  make(map[uint64]chan *Message),
		handlers: make(map[string][]handlerEntry),
		done:     make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// SendRequest issues a request and decodes the worker's result into result
// (which may be nil to discard it). It returns when the response arrives,
// the context is done, or the connection dies. A context deadline does not
// cancel the request worker-side; a late response is silently dropped.
func (c *Connection) SendRequest(ctx context.Context, method string, params, result interface{}) error {
	select {
	case <-c.done:
		return c.closeReason()
	default:
	}

	id := c.nextID.Add(1)
	respCh := make(chan *Message, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	payload, err := json.Marshal(requestMessage{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		c.forgetPending(id)
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode request")
	}

	c.writeMu.Lock()
	writeErr := WriteFrame(c.w, payload)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.forgetPending(id)
		return errors.Wrap(writeErr, errors.ErrCodeChannelClosed, "failed to write request")
	}

	select {
	case msg := <-respCh:
		if msg.Error != nil {
			return errors.RequestFailed(method, msg.Error.Code, msg.Error.Message)
		}
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return errors.Wrap(err, errors.ErrCodeRequestFailed, "failed to decode result").
					WithDetail("method", method)
			}
		}
		return nil
	case <-ctx.Done():
		c.forgetPending(id)
		if ctx.Err() == context.DeadlineExceeded {
			return errors.RequestTimeout(method)
		}
		return ctx.Err()
	case <-c.done:
		return c.closeReason()
	}
}

// OnNotification registers a handler for every inbound notification of the
// given method. There is no replay. The returned function removes the handler.
func (c *Connection) OnNotification(method string, fn NotificationHandler) (remove func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	id := c.nextHandle
	c.nextHandle++
	c.handlers[method] = append(c.handlers[method], handlerEntry{id: id, fn: fn})

	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		entries := c.handlers[method]
		for i, e := range entries {
			if e.id == id {
				c.handlers[method] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Close shuts the connection down with the given reason (nil means an
// orderly local close). Idempotent; only the first reason is kept.
func (c *Connection) Close(reason error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		if reason == nil {
			reason = errors.ChannelClosed()
		}
		c.err = reason
		c.errMu.Unlock()

		close(c.done)

		// Reject all pending requests. Senders blocked in SendRequest are
		// released through the done channel.
		c.pendingMu.Lock()
		c.pending = make(map[uint64]chan *Message)
		c.pendingMu.Unlock()

		// No further notifications will be delivered.
		c.handlersMu.Lock()
		c.handlers = make(map[string][]handlerEntry)
		c.handlersMu.Unlock()
	})
}

// Done is closed when the connection has failed or been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns the close reason, or nil while the connection is live.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Connection) closeReason() error {
	if err := c.Err(); err != nil {
		return err
	}
	return errors.ChannelClosed()
}

func (c *Connection) forgetPending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Connection) readLoop(r io.Reader) {
	fr := NewFrameReader(r)
	for {
		payload, err := fr.Next()
		if err != nil {
			if err == io.EOF {
				c.Close(errors.WorkerExited(io.EOF))
			} else {
				c.Close(errors.Wrap(err, errors.ErrCodeMalformedFrame, "worker stream failed"))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.WithError(err).Warn("Dropping undecodable frame from worker")
			continue
		}

		switch {
		case msg.ID != nil && msg.Method == "":
			c.dispatchResponse(&msg)
		case msg.Method != "":
			c.dispatchNotification(&msg)
		default:
			c.logger.Warn("Dropping frame with neither id nor method")
		}
	}
}

func (c *Connection) dispatchResponse(msg *Message) {
	c.pendingMu.Lock()
	ch, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		// Response to a request the caller gave up on; tolerated.
		c.logger.WithField("id", *msg.ID).Trace("Dropping late response")
		return
	}
	ch <- msg
}

func (c *Connection) dispatchNotification(msg *Message) {
	c.handlersMu.Lock()
	entries := append([]handlerEntry(nil), c.handlers[msg.Method]...)
	c.handlersMu.Unlock()

	for _, e := range entries {
		e.fn(msg.Params)
	}
}
