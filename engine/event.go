package engine

// EventType tags an Event.
type EventType string

const (
	EventMessageDelta   EventType = "assistant.message_delta"
	EventMessage        EventType = "assistant.message"
	EventReasoningDelta EventType = "assistant.reasoning_delta"
	EventReasoning      EventType = "assistant.reasoning"
	EventIdle           EventType = "session.idle"
	EventError          EventType = "session.error"
	EventToolStart      EventType = "tool.execution_start"
	EventToolEnd        EventType = "tool.execution_end"
)

// Event is one item on a session's event stream. Only the fields relevant
// to Type are set.
type Event struct {
	Type        EventType
	Content     string
	ReasoningID string
	ToolName    string
}
