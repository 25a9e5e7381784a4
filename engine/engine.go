/*
Package engine defines the boundary between the chat gateway and the chat
completion engine that actually produces assistant output.

The gateway treats a session as an opaque handle: it can send a prompt,
abort the turn in flight, and destroy the session. Everything the engine
produces comes back as a typed Event on the session's event stream, never
through callbacks registered by the caller.

The production implementation (LLMEngine) runs turns through a langchaingo
llms.Model. Sessions whose agent declares tools run through a langchaingo
ReAct executor so tool invocations surface as tool events.
*/
package engine

import (
	"context"
	"errors"
)

var (
	// ErrSessionClosed is returned by operations on a destroyed session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrTurnInFlight is returned by Send while a previous turn is still
	// generating. Callers should abort or wait for EventIdle.
	ErrTurnInFlight = errors.New("a request is already in progress")

	// ErrEngineStopped is returned by CreateSession after Stop.
	ErrEngineStopped = errors.New("engine is stopped")
)

// SystemMessageModeReplace replaces the engine's default system prompt.
const SystemMessageModeReplace = "replace"

// SystemMessage overrides the engine's default system prompt.
type SystemMessage struct {
	Mode    string
	Content string
}

// SessionConfig parameterizes a new session.
type SessionConfig struct {
	// Model selects the provider model. Empty means the engine default.
	Model string

	// Streaming enables delta events while the assistant is generating.
	Streaming bool

	// SystemMessage is nil when the engine's default behavior applies.
	SystemMessage *SystemMessage

	// Tools lists tool names the session may invoke. Unknown names are
	// ignored by the engine.
	Tools []string
}

// Attachment is a file made available to the assistant for one prompt.
type Attachment struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	DisplayName string `json:"displayName"`
}

// SendOptions is a single user turn.
type SendOptions struct {
	Prompt      string
	Attachments []Attachment
}

// ModelInfo describes a model the engine can serve.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Default  bool   `json:"default,omitempty"`
}

// Session is a stateful conversation handle owned by exactly one caller.
type Session interface {
	// ID returns the engine-assigned session identifier.
	ID() string

	// Events returns the session's event stream. The channel is closed
	// once Destroy has completed.
	Events() <-chan Event

	// Send starts a turn and returns once it has been accepted. Output
	// arrives on Events, ending with EventIdle.
	Send(ctx context.Context, opts SendOptions) error

	// Abort cancels the turn in flight, if any.
	Abort(ctx context.Context) error

	// Destroy cancels any turn in flight, waits for it to stop and
	// releases the session. It is safe to call more than once.
	Destroy(ctx context.Context) error
}

// Engine creates sessions.
type Engine interface {
	CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Stop(ctx context.Context) error
}
