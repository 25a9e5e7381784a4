/*
Package engine provides conversation memory for chat sessions.

Each session keeps its own ordered history of user and assistant messages.
The history is replayed to the model on every turn, bounded by the configured
context limit, so that a session behaves like a continuous conversation.
*/
package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// ChatMessage is one message in a session's history.
type ChatMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a session's conversation memory.
type History struct {
	messages []ChatMessage
	mutex    sync.RWMutex
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{messages: make([]ChatMessage, 0)}
}

// AddMessage appends a message.
//
// Parameters:
//   - role: The message sender ("user" or "assistant")
//   - content: The message text content
func (h *History) AddMessage(role, content string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.messages = append(h.messages, ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.messages)
}

// RecentMessages returns a copy of the last limit messages in order.
// A limit of zero or less returns the whole history.
func (h *History) RecentMessages(limit int) []ChatMessage {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	start := 0
	if limit > 0 && len(h.messages) > limit {
		start = len(h.messages) - limit
	}
	out := make([]ChatMessage, len(h.messages)-start)
	copy(out, h.messages[start:])
	return out
}

// MessageContents converts the recent history into langchaingo messages,
// preceded by the system prompt when one is given.
func (h *History) MessageContents(systemPrompt string, limit int) []llms.MessageContent {
	recent := h.RecentMessages(limit)
	contents := make([]llms.MessageContent, 0, len(recent)+1)
	if systemPrompt != "" {
		contents = append(contents, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	}
	for _, msg := range recent {
		switch msg.Role {
		case "user":
			contents = append(contents, llms.TextParts(schema.ChatMessageTypeHuman, msg.Content))
		case "assistant":
			contents = append(contents, llms.TextParts(schema.ChatMessageTypeAI, msg.Content))
		}
	}
	return contents
}

// ConversationContext renders recent history as plain text for prompt
// templates that take a single input string.
func (h *History) ConversationContext(limit int) string {
	messages := h.RecentMessages(limit)
	if len(messages) == 0 {
		return ""
	}

	var context strings.Builder
	context.WriteString("Previous conversation context:\n")
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			context.WriteString(fmt.Sprintf("Human: %s\n", msg.Content))
		case "assistant":
			context.WriteString(fmt.Sprintf("Assistant: %s\n", msg.Content))
		}
	}
	context.WriteString("\nCurrent conversation:\n")
	return context.String()
}
