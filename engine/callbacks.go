package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/tools"
)

// agentLogHandler logs executor progress for a tool-using turn.
type agentLogHandler struct {
	callbacks.SimpleHandler

	logger    *logrus.Entry
	truncate  int
	mu        sync.Mutex
	iteration int
}

func newAgentLogHandler(logger *logrus.Entry, truncate int) *agentLogHandler {
	return &agentLogHandler{logger: logger, truncate: truncate}
}

func (h *agentLogHandler) truncateForLog(text string) string {
	return TruncateText(text, h.truncate)
}

func (h *agentLogHandler) HandleLLMStart(ctx context.Context, prompts []string) {
	h.mu.Lock()
	h.iteration++
	iteration := h.iteration
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"iteration":   iteration,
		"promptCount": len(prompts),
	}).Debug("Agent iteration started")
}

func (h *agentLogHandler) HandleAgentAction(ctx context.Context, action schema.AgentAction) {
	h.logger.WithFields(logrus.Fields{
		"tool":      action.Tool,
		"input":     h.truncateForLog(action.ToolInput),
		"reasoning": h.truncateForLog(action.Log),
	}).Info("Agent decided on action")
}

func (h *agentLogHandler) HandleAgentFinish(ctx context.Context, finish schema.AgentFinish) {
	h.mu.Lock()
	iteration := h.iteration
	h.mu.Unlock()

	h.logger.WithField("totalIterations", iteration).Info("Agent finished")
}

func (h *agentLogHandler) HandleChainError(ctx context.Context, err error) {
	h.logger.WithError(err).Debug("Agent chain execution failed")
}

var _ callbacks.Handler = (*agentLogHandler)(nil)

// eventTool reports every call of the wrapped tool as a start/end pair on
// the session's event stream. The end event is sent even when the call
// fails or the turn is cancelled mid-call.
type eventTool struct {
	tools.Tool
	emit   func(Event)
	logger *logrus.Entry
}

func (t *eventTool) Call(ctx context.Context, input string) (string, error) {
	name := t.Name()
	t.emit(Event{Type: EventToolStart, ToolName: name})
	defer t.emit(Event{Type: EventToolEnd, ToolName: name})

	start := time.Now()
	output, err := t.Tool.Call(ctx, input)

	entry := t.logger.WithFields(logrus.Fields{
		"tool":          name,
		"executionTime": time.Since(start),
		"outputLength":  len(output),
	})
	if err != nil {
		entry.WithError(err).Warn("Tool execution failed")
	} else {
		entry.Info("Tool execution completed")
	}
	return output, err
}

// withEvents wraps each tool so its calls are reported through emit.
func withEvents(toolList []tools.Tool, emit func(Event), logger *logrus.Entry) []tools.Tool {
	wrapped := make([]tools.Tool, len(toolList))
	for i, tool := range toolList {
		wrapped[i] = &eventTool{Tool: tool, emit: emit, logger: logger}
	}
	return wrapped
}
