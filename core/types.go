/*
Package core contains the wire types of the chat gateway.

This file defines the JSON messages exchanged over the WebSocket connection
and the responses of the HTTP API. These types are the contract between the
browser (or chatctl) and the server.

Key type categories:
- Inbound commands (Command, AttachmentRef)
- Outbound messages (ServerMessage) and the engine event mapping (EncodeEvent)
- HTTP responses (UploadResponse, StatusResponse)
*/
package core

import (
	"encoding/json"

	"agentchat/engine"
)

// Inbound command types.
const (
	CommandCreateSession = "create_session"
	CommandSendMessage   = "send_message"
	CommandAbort         = "abort"
)

// Outbound message types.
const (
	MessageSessionCreated = "session_created"
	MessageDelta          = "delta"
	MessageContent        = "message"
	MessageReasoningDelta = "reasoning_delta"
	MessageReasoning      = "reasoning"
	MessageIdle           = "idle"
	MessageToolStart      = "tool_start"
	MessageToolEnd        = "tool_end"
	MessageAborted        = "aborted"
	MessageError          = "error"
)

// Command is a message sent by the client. Only the fields relevant to
// Type are set.
type Command struct {
	Type        string          `json:"type"`                  // create_session, send_message or abort
	Model       string          `json:"model,omitempty"`       // create_session: model to use
	Agent       string          `json:"agent,omitempty"`       // create_session: catalog agent ID
	Prompt      string          `json:"prompt,omitempty"`      // send_message: user text
	Attachments []AttachmentRef `json:"attachments,omitempty"` // send_message: previously uploaded files
}

// AttachmentRef points at a file returned by the upload endpoint.
type AttachmentRef struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// ServerMessage is a message sent to the client. Its JSON form carries only
// the fields defined for its Type, see MarshalJSON.
type ServerMessage struct {
	Type        string  `json:"type"`
	Content     string  `json:"content,omitempty"`     // delta, message, reasoning_delta, reasoning
	ReasoningID string  `json:"reasoningId,omitempty"` // reasoning_delta, reasoning
	Tool        string  `json:"tool,omitempty"`        // tool_start, tool_end
	Message     string  `json:"message,omitempty"`     // error
	Model       string  `json:"model,omitempty"`       // session_created
	Agent       *string `json:"agent,omitempty"`       // session_created; null when no agent applies
}

// MarshalJSON emits exactly the fields of the message's type. Content is
// always present on content messages, even when empty, and session_created
// always carries agent, null when no agent was applied.
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": m.Type}

	switch m.Type {
	case MessageDelta, MessageContent:
		out["content"] = m.Content
	case MessageReasoningDelta, MessageReasoning:
		out["content"] = m.Content
		out["reasoningId"] = m.ReasoningID
	case MessageToolStart, MessageToolEnd:
		out["tool"] = m.Tool
	case MessageError:
		out["message"] = m.Message
	case MessageSessionCreated:
		if m.Model != "" {
			out["model"] = m.Model
		}
		out["agent"] = m.Agent
	}

	return json.Marshal(out)
}

// ErrorMessage builds an error message for the client.
func ErrorMessage(text string) ServerMessage {
	return ServerMessage{Type: MessageError, Message: text}
}

// EncodeEvent maps an engine event to the message relayed to the client.
// It reports false for events that are not relayed.
func EncodeEvent(ev engine.Event) (ServerMessage, bool) {
	switch ev.Type {
	case engine.EventMessageDelta:
		return ServerMessage{Type: MessageDelta, Content: ev.Content}, true
	case engine.EventMessage:
		return ServerMessage{Type: MessageContent, Content: ev.Content}, true
	case engine.EventReasoningDelta:
		return ServerMessage{Type: MessageReasoningDelta, Content: ev.Content, ReasoningID: ev.ReasoningID}, true
	case engine.EventReasoning:
		return ServerMessage{Type: MessageReasoning, Content: ev.Content, ReasoningID: ev.ReasoningID}, true
	case engine.EventIdle:
		return ServerMessage{Type: MessageIdle}, true
	case engine.EventToolStart:
		return ServerMessage{Type: MessageToolStart, Tool: ev.ToolName}, true
	case engine.EventToolEnd:
		return ServerMessage{Type: MessageToolEnd, Tool: ev.ToolName}, true
	case engine.EventError:
		return ErrorMessage(ev.Content), true
	default:
		return ServerMessage{}, false
	}
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Path string `json:"path"` // absolute path to pass back as an attachment
	Name string `json:"name"` // original file name
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status      string        `json:"status"`
	Sessions    RegistryStats `json:"sessions"`
	Agents      int           `json:"agents"`
	ActiveTurns []string      `json:"activeTurns"`
}
