// Package enginetest provides an in-memory engine.Engine for tests. Every
// call is recorded in order so tests can assert on lifecycle sequencing.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agentchat/engine"
)

// Call is one recorded engine or session call.
type Call struct {
	Op        string // "create", "send", "abort" or "destroy"
	SessionID string
	Config    engine.SessionConfig // set for "create"
	Send      engine.SendOptions   // set for "send"
}

// Engine is a fake engine.Engine. Sessions emit only what the test pushes
// with Session.Emit, or what the Reply hook returns for a send.
type Engine struct {
	// Reply, when set, produces the events emitted for every Send.
	Reply func(opts engine.SendOptions) []engine.Event

	// CreateErr, when set, fails CreateSession.
	CreateErr error

	// Models is returned by ListModels; ModelsErr fails it.
	Models    []engine.ModelInfo
	ModelsErr error

	mu       sync.Mutex
	calls    []Call
	sessions []*Session
	next     int
	stopped  bool
}

func (e *Engine) record(c Call) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, c)
}

// Calls returns a copy of the recorded calls.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Ops returns the recorded operations as "op:sessionID" strings.
func (e *Engine) Ops() []string {
	calls := e.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op + ":" + c.SessionID
	}
	return ops
}

// Sessions returns every session created so far.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

// Live returns the sessions not yet destroyed.
func (e *Engine) Live() []*Session {
	var live []*Session
	for _, s := range e.Sessions() {
		if !s.Destroyed() {
			live = append(live, s)
		}
	}
	return live
}

// Stopped reports whether Stop was called.
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// CreateSession implements engine.Engine.
func (e *Engine) CreateSession(ctx context.Context, cfg engine.SessionConfig) (engine.Session, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}

	e.mu.Lock()
	e.next++
	s := &Session{
		id:     fmt.Sprintf("session-%d", e.next),
		engine: e,
		events: make(chan engine.Event, 64),
	}
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()

	e.record(Call{Op: "create", SessionID: s.id, Config: cfg})
	return s, nil
}

// ListModels implements engine.Engine.
func (e *Engine) ListModels(ctx context.Context) ([]engine.ModelInfo, error) {
	if e.ModelsErr != nil {
		return nil, e.ModelsErr
	}
	return e.Models, nil
}

// Stop implements engine.Engine.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	for _, s := range e.Live() {
		_ = s.Destroy(ctx)
	}
	return nil
}

// Session is a fake engine.Session.
type Session struct {
	id     string
	engine *Engine
	events chan engine.Event

	mu        sync.Mutex
	destroyed bool
}

// ID implements engine.Session.
func (s *Session) ID() string { return s.id }

// Events implements engine.Session.
func (s *Session) Events() <-chan engine.Event { return s.events }

// Emit pushes ev onto the event stream. It reports false once destroyed.
func (s *Session) Emit(ev engine.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	s.events <- ev
	return true
}

// Destroyed reports whether Destroy was called.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Send implements engine.Session.
func (s *Session) Send(ctx context.Context, opts engine.SendOptions) error {
	if s.Destroyed() {
		return engine.ErrSessionClosed
	}
	s.engine.record(Call{Op: "send", SessionID: s.id, Send: opts})

	if s.engine.Reply != nil {
		for _, ev := range s.engine.Reply(opts) {
			s.Emit(ev)
		}
	}
	return nil
}

// Abort implements engine.Session.
func (s *Session) Abort(ctx context.Context) error {
	if s.Destroyed() {
		return engine.ErrSessionClosed
	}
	s.engine.record(Call{Op: "abort", SessionID: s.id})
	return nil
}

// Destroy implements engine.Session.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true
	close(s.events)
	s.engine.record(Call{Op: "destroy", SessionID: s.id})
	return nil
}

var (
	_ engine.Engine  = (*Engine)(nil)
	_ engine.Session = (*Session)(nil)

	// ErrBoom is a generic failure for tests.
	ErrBoom = errors.New("boom")
)
