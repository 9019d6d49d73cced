// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/stevedore-project/stevedore/lib/codec"
)

// Handler services one daemon-initiated invocation. Serve owns the
// stream for the invocation's duration and must return when the
// stream or ctx ends; returning an error sends a scoped error to the
// daemon without affecting other invocations.
type Handler interface {
	Serve(ctx context.Context, stream *Stream) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, stream *Stream) error

// Serve calls f.
func (f HandlerFunc) Serve(ctx context.Context, stream *Stream) error { return f(ctx, stream) }

// UnknownMethodError reports a daemon invocation naming a method no
// registered service provides. Scoped to that invocation: the daemon
// receives an error for the invocation id and the session stays up.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("session: no service registered for method %q", e.Method)
}

// Session is one build's registered services plus, while Serve runs,
// the table of active invocations. Register all services before
// sending the build request; the session id travels on that request
// so the daemon can correlate its callback stream.
type Session struct {
	id     string
	logger *slog.Logger

	// mu guards services before Serve and the invocation table during
	// it. Invocation I/O happens outside the lock; only table and
	// registration mutations are serialized.
	mu          sync.Mutex
	services    map[string]Handler
	invocations map[uint32]*invocation
	closed      bool

	// writeMu serializes frame writes from concurrent invocation
	// workers onto the single control stream.
	writeMu sync.Mutex
	conn    io.Writer
}

// invocation is one active daemon-initiated call.
type invocation struct {
	id     uint32
	method string
	cancel context.CancelFunc

	// inbox delivers this invocation's data chunks in arrival order.
	// Only the control reader sends; only the invocation's Stream
	// receives. Closed to signal end of stream.
	inbox chan inboxItem

	// done is closed when the worker goroutine has fully finished.
	done chan struct{}
}

// inboxItem is one delivery on an invocation's inbox: a data chunk or
// a daemon-reported error.
type inboxItem struct {
	data []byte
	err  error
}

// New creates a session with a fresh random id and no services.
func New(logger *slog.Logger) (*Session, error) {
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("session: generating session id: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:          hex.EncodeToString(idBytes),
		logger:      logger,
		services:    make(map[string]Handler),
		invocations: make(map[uint32]*invocation),
	}, nil
}

// ID returns the session id carried on the build request.
func (s *Session) ID() string { return s.id }

// Register adds a service handler for a method name. Must be called
// before Serve; registering a duplicate method panics, matching the
// fail-fast convention for programming errors.
func (s *Session) Register(method string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[method]; exists {
		panic(fmt.Sprintf("session: duplicate handler for method %q", method))
	}
	s.services[method] = handler
}

// Methods returns the sorted registered method names, advertised on
// the build request.
func (s *Session) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	methods := make([]string, 0, len(s.services))
	for method := range s.services {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}

// Serve drives the control stream until it ends or ctx is cancelled.
// Invocations dispatched from the stream run concurrently; Serve
// returns only after every invocation worker has finished. On return
// the session id is invalidated: the session cannot be served again.
//
// Returns nil when the stream ended cleanly (the build finished), or
// the fatal control-stream error otherwise.
func (s *Session) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session: session %s already closed", s.id)
	}
	s.conn = conn
	s.mu.Unlock()

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Close the conn when ctx ends so the blocking read unblocks.
	go func() {
		<-serveCtx.Done()
		conn.Close()
	}()

	var fatal error
	for {
		m, err := readMessage(conn)
		if err != nil {
			if err != io.EOF && serveCtx.Err() == nil {
				fatal = err
			}
			break
		}
		if err := s.dispatch(serveCtx, m); err != nil {
			fatal = err
			break
		}
	}

	s.shutdown(cancel)
	if fatal != nil {
		s.logger.Debug("session control stream failed", "session", s.id, "error", fatal)
	}
	return fatal
}

// dispatch handles one control message. Returns an error only for
// session-fatal conditions; per-invocation failures are answered on
// the wire and swallowed.
func (s *Session) dispatch(ctx context.Context, m message) error {
	switch m.Type {
	case messageInvoke:
		var payload invokePayload
		if err := codec.Unmarshal(m.Payload, &payload); err != nil {
			return &ProtocolError{Detail: "undecodable invoke payload", Err: err}
		}
		s.startInvocation(ctx, payload)
		return nil

	case messageData:
		var payload dataPayload
		if err := codec.Unmarshal(m.Payload, &payload); err != nil {
			return &ProtocolError{Detail: "undecodable data payload", Err: err}
		}
		s.deliver(payload.ID, inboxItem{data: payload.Data})
		return nil

	case messageClose:
		var payload closePayload
		if err := codec.Unmarshal(m.Payload, &payload); err != nil {
			return &ProtocolError{Detail: "undecodable close payload", Err: err}
		}
		s.closeInbox(payload.ID)
		return nil

	case messageError:
		var payload errorPayload
		if err := codec.Unmarshal(m.Payload, &payload); err != nil {
			return &ProtocolError{Detail: "undecodable error payload", Err: err}
		}
		s.deliver(payload.ID, inboxItem{err: &RemoteError{ID: payload.ID, Message: payload.Message}})
		return nil

	default:
		return &ProtocolError{Detail: fmt.Sprintf("unknown message type 0x%02x", m.Type)}
	}
}

// RemoteError is an error the daemon reported for one invocation.
type RemoteError struct {
	ID      uint32
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("session: daemon error on invocation %d: %s", e.ID, e.Message)
}

// startInvocation looks up the handler and launches the worker. An
// unknown method or duplicate id is answered with a scoped error.
func (s *Session) startInvocation(ctx context.Context, payload invokePayload) {
	s.mu.Lock()
	handler, known := s.services[payload.Method]
	_, duplicate := s.invocations[payload.ID]
	if !known || duplicate {
		s.mu.Unlock()
		if !known {
			s.logger.Debug("invocation for unregistered method", "session", s.id, "method", payload.Method, "invocation", payload.ID)
			s.writeError(payload.ID, (&UnknownMethodError{Method: payload.Method}).Error())
		} else {
			s.writeError(payload.ID, fmt.Sprintf("invocation id %d already active", payload.ID))
		}
		return
	}

	invocationCtx, cancel := context.WithCancel(ctx)
	inv := &invocation{
		id:     payload.ID,
		method: payload.Method,
		cancel: cancel,
		inbox:  make(chan inboxItem, 16),
		done:   make(chan struct{}),
	}
	s.invocations[payload.ID] = inv
	s.mu.Unlock()

	stream := &Stream{session: s, invocation: inv, args: payload.Args}

	go func() {
		defer close(inv.done)
		defer s.finishInvocation(inv)

		err := handler.Serve(invocationCtx, stream)
		if err != nil && invocationCtx.Err() == nil {
			s.logger.Debug("invocation handler failed", "session", s.id, "method", inv.method, "invocation", inv.id, "error", err)
			s.writeError(inv.id, err.Error())
			return
		}
		s.writeClose(inv.id)
	}()
}

// finishInvocation removes the invocation from the table and releases
// its context. Runs even when the handler returned an error: the
// invocation borrows the session only until its call completes.
func (s *Session) finishInvocation(inv *invocation) {
	s.mu.Lock()
	delete(s.invocations, inv.id)
	s.mu.Unlock()
	inv.cancel()
}

// deliver routes an inbox item to the invocation that owns the id.
// Data for an unknown id is answered with a scoped error — never
// delivered to a different invocation's sink.
func (s *Session) deliver(id uint32, item inboxItem) {
	s.mu.Lock()
	inv, ok := s.invocations[id]
	s.mu.Unlock()
	if !ok {
		s.writeError(id, fmt.Sprintf("no active invocation %d", id))
		return
	}
	select {
	case inv.inbox <- item:
	case <-inv.done:
		// Worker already finished; drop.
	}
}

// closeInbox signals end of the daemon's stream for an invocation.
func (s *Session) closeInbox(id uint32) {
	s.mu.Lock()
	inv, ok := s.invocations[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case inv.inbox <- inboxItem{err: io.EOF}:
	case <-inv.done:
	}
}

// shutdown cancels all invocations, waits for their workers, and
// invalidates the session id.
func (s *Session) shutdown(cancel context.CancelFunc) {
	cancel()

	s.mu.Lock()
	active := make([]*invocation, 0, len(s.invocations))
	for _, inv := range s.invocations {
		active = append(active, inv)
	}
	s.closed = true
	s.mu.Unlock()

	for _, inv := range active {
		inv.cancel()
		<-inv.done
	}
}

// writeFramed serializes one message onto the control stream. Safe
// for concurrent use by invocation workers.
func (s *Session) writeFramed(messageType byte, payload any) error {
	m, err := encodeMessage(messageType, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session: control stream not attached")
	}
	return writeMessage(s.conn, m)
}

func (s *Session) writeError(id uint32, message string) {
	// Write failures here mean the control stream is dying; the read
	// loop will surface that.
	_ = s.writeFramed(messageError, errorPayload{ID: id, Message: message})
}

func (s *Session) writeClose(id uint32) {
	_ = s.writeFramed(messageClose, closePayload{ID: id})
}

// Stream is one invocation's ordered byte stream. Exactly one handler
// goroutine uses a Stream; it is not safe for concurrent use.
type Stream struct {
	session    *Session
	invocation *invocation
	args       codec.RawMessage
}

// Args decodes the invocation's method arguments into v. No-op when
// the daemon sent none.
func (st *Stream) Args(v any) error {
	if len(st.args) == 0 {
		return nil
	}
	if err := codec.Unmarshal(st.args, v); err != nil {
		return &ProtocolError{Detail: "undecodable invocation args", Err: err}
	}
	return nil
}

// Recv returns the next data chunk in arrival order. Returns io.EOF
// when the daemon closed its side, a *RemoteError when it failed the
// invocation, or ctx.Err() when the invocation was cancelled.
func (st *Stream) Recv(ctx context.Context) ([]byte, error) {
	select {
	case item := <-st.invocation.inbox:
		return item.data, item.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes one data chunk to the daemon.
func (st *Stream) Send(data []byte) error {
	return st.session.writeFramed(messageData, dataPayload{ID: st.invocation.id, Data: data})
}

// SendError fails this invocation on the daemon side without ending
// the session. Used by packet state machines to reject per-transfer
// protocol violations.
func (st *Stream) SendError(message string) error {
	return st.session.writeFramed(messageError, errorPayload{ID: st.invocation.id, Message: message})
}
