package finder

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pyscout/core/collection"
	"github.com/pyscout/core/protocol"
)

// RecordStream is one consumer's pull-based view of a refresh session.
// Every stream observes every record published after the stream was opened,
// in arrival order; streams do not steal records from each other and there
// is no replay of records published earlier.
type RecordStream struct {
	mu   sync.Mutex
	buf  []protocol.RawRecord
	done bool
	wake chan struct{}
}

func newRecordStream() *RecordStream {
	return &RecordStream{wake: make(chan struct{})}
}

// Next returns the next record, blocking until one is available. It returns
// io.EOF once the session has completed and the buffer is drained, or the
// context error on cancellation.
func (s *RecordStream) Next(ctx context.Context) (protocol.RawRecord, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			rec := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return rec, nil
		}
		if s.done {
			s.mu.Unlock()
			return protocol.RawRecord{}, io.EOF
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return protocol.RawRecord{}, ctx.Err()
		}
	}
}

// push appends a record and wakes blocked readers. Records arriving after
// finish are dropped; the wake channel is already closed at that point.
func (s *RecordStream) push(rec protocol.RawRecord) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, rec)
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()
}

func (s *RecordStream) finish() {
	s.mu.Lock()
	if !s.done {
		s.done = true
		close(s.wake)
	}
	s.mu.Unlock()
}

// Session is one logical refresh: it owns the worker-side scan request,
// resolves underspecified records through sub-requests, and broadcasts the
// resulting records to any number of concurrent streams. The session is
// complete only when the scan request has settled and every sub-resolve
// spawned by it has settled too.
type Session struct {
	client *Client
	logger *logrus.Entry

	mu              sync.Mutex
	streams         []*RecordStream
	pendingResolves int
	refreshSettled  bool
	finished        bool
	err             error

	done chan struct{}

	removeEnv func()
	removeMgr func()
}

// startSession issues the refresh request and begins consuming notifications.
// The configure request must already have been sent.
func startSession(client *Client, params protocol.RefreshParams, logger *logrus.Entry) *Session {
	s := &Session{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	s.removeEnv = client.Conn().OnNotification(protocol.NotifyEnvironment, s.onEnvironment)
	s.removeMgr = client.Conn().OnNotification(protocol.NotifyManager, s.onManager)

	go func() {
		result, err := client.Refresh(context.Background(), params)
		if err != nil {
			logger.WithError(err).Error("Refresh request failed")
		} else {
			logger.WithField("duration_ms", result.Duration).Debug("Worker scan finished")
		}

		s.mu.Lock()
		s.refreshSettled = true
		s.err = err
		s.checkCompleteLocked()
		s.mu.Unlock()
	}()

	return s
}

// Records opens a new broadcast stream over the session. Streams opened
// after completion yield io.EOF immediately.
func (s *Session) Records() *RecordStream {
	stream := newRecordStream()

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		stream.finish()
		return stream
	}
	s.streams = append(s.streams, stream)
	s.mu.Unlock()
	return stream
}

// Wait blocks until the session completes or the context is cancelled. The
// returned error is the refresh request's failure, if any; record-level
// errors never fail the session.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the session has completed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the refresh request's error after completion.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Active reports whether the session is still in flight.
func (s *Session) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) onEnvironment(params json.RawMessage) {
	raw, err := protocol.DecodeRawRecord(params)
	if err != nil {
		s.logger.WithError(err).Error("Dropping undecodable environment notification")
		return
	}
	rec := raw.Environment
	if rec == nil {
		s.logger.Error("Dropping environment notification carrying a manager record")
		return
	}

	// A conda environment directory with no interpreter installed cannot be
	// resolved further; it passes through as-is.
	if rec.Executable == "" {
		s.publish(raw)
		return
	}

	if !needsResolve(rec) {
		s.publish(raw)
		return
	}

	s.mu.Lock()
	s.pendingResolves++
	s.mu.Unlock()

	go s.resolveAndPublish(rec.Executable)
}

func (s *Session) onManager(params json.RawMessage) {
	raw, err := protocol.DecodeRawRecord(params)
	if err != nil {
		s.logger.WithError(err).Error("Dropping undecodable manager notification")
		return
	}
	if raw.Manager == nil {
		s.logger.Error("Dropping manager notification without a tool field")
		return
	}
	s.publish(raw)
}

// needsResolve reports whether a discovered record is missing information a
// follow-up resolve request can fill in.
func needsResolve(rec *protocol.EnvironmentRecord) bool {
	if rec.Prefix == "" {
		return true
	}
	return !collection.ParseVersion(rec.Version).Resolved()
}

// resolveAndPublish runs one sub-resolve. Errors are logged and the record
// dropped; the refresh itself continues.
func (s *Session) resolveAndPublish(path string) {
	resolved, err := s.client.Resolve(context.Background(), path)
	if err != nil {
		s.logger.WithError(err).WithField("executable", path).Error("Resolve of discovered record failed, dropping it")
	} else {
		s.publish(protocol.RawRecord{Environment: resolved})
	}

	s.mu.Lock()
	s.pendingResolves--
	s.checkCompleteLocked()
	s.mu.Unlock()
}

func (s *Session) publish(rec protocol.RawRecord) {
	s.mu.Lock()
	// A notification can still be dispatched in the window between the latch
	// firing and the handler removal taking effect; it must not reach
	// finished streams.
	if s.finished {
		s.mu.Unlock()
		return
	}
	streams := append([]*RecordStream(nil), s.streams...)
	s.mu.Unlock()

	for _, stream := range streams {
		stream.push(rec)
	}
}

// checkCompleteLocked fires the completion latch once the scan request has
// settled and no sub-resolve is outstanding. A resolve that spawned while an
// earlier batch was awaited keeps the latch closed; re-checking after every
// settlement drains the count to a fixed point.
func (s *Session) checkCompleteLocked() {
	if s.finished || !s.refreshSettled || s.pendingResolves > 0 {
		return
	}
	s.finished = true

	s.removeEnv()
	s.removeMgr()
	for _, stream := range s.streams {
		stream.finish()
	}
	close(s.done)
}
