/*
Package engine provides model wrapping and reasoning extraction.

Some models interleave their chain of thought with the answer inside
<think>...</think> tags. The gateway relays that text as reasoning events
instead of assistant content. The thinkSplitter does this incrementally on a
stream of chunks; splitReasoning does it on a complete response.
*/
package engine

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

var (
	thinkBlock    = regexp.MustCompile(`(?is)<think>(.*?)</think>`)
	openThink     = regexp.MustCompile(`(?is)<think>(.*)`)
	multiNewlines = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// splitReasoning separates think-tagged reasoning from the answer text.
// An unclosed <think> tag swallows the rest of the response as reasoning.
func splitReasoning(response string) (reasoning, content string) {
	var thoughts []string
	for _, m := range thinkBlock.FindAllStringSubmatch(response, -1) {
		thoughts = append(thoughts, strings.TrimSpace(m[1]))
	}
	content = thinkBlock.ReplaceAllString(response, "")

	if m := openThink.FindStringSubmatch(content); m != nil {
		thoughts = append(thoughts, strings.TrimSpace(m[1]))
		content = openThink.ReplaceAllString(content, "")
	}

	content = multiNewlines.ReplaceAllString(strings.TrimSpace(content), "\n\n")
	return strings.TrimSpace(strings.Join(thoughts, "\n\n")), content
}

// TruncateText shortens text to at most limit bytes plus an ellipsis,
// cutting on a rune boundary. A non-positive limit disables truncation.
func TruncateText(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// segment is a run of streamed text classified as reasoning or content.
type segment struct {
	reasoning bool
	text      string
}

// thinkSplitter classifies streamed chunks. Tags may be split across chunk
// boundaries, so a trailing partial tag is held back until the next Write.
type thinkSplitter struct {
	inThink bool
	pending string
}

// Write consumes one chunk and returns the segments it completes.
func (t *thinkSplitter) Write(chunk string) []segment {
	buf := t.pending + chunk
	t.pending = ""

	var out []segment
	for buf != "" {
		tag := thinkOpen
		if t.inThink {
			tag = thinkClose
		}

		if idx := strings.Index(buf, tag); idx >= 0 {
			if idx > 0 {
				out = append(out, segment{reasoning: t.inThink, text: buf[:idx]})
			}
			buf = buf[idx+len(tag):]
			t.inThink = !t.inThink
			continue
		}

		keep := partialSuffix(buf, tag)
		if emit := buf[:len(buf)-keep]; emit != "" {
			out = append(out, segment{reasoning: t.inThink, text: emit})
		}
		t.pending = buf[len(buf)-keep:]
		break
	}
	return out
}

// Flush returns any held-back text once the stream has ended.
func (t *thinkSplitter) Flush() []segment {
	if t.pending == "" {
		return nil
	}
	s := segment{reasoning: t.inThink, text: t.pending}
	t.pending = ""
	return []segment{s}
}

// partialSuffix reports the length of the longest suffix of s that is a
// proper prefix of tag.
func partialSuffix(s, tag string) int {
	n := len(tag) - 1
	if len(s) < n {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}

// SessionModel binds an llms.Model to one session's model choice. When
// stripReasoning is set, think-tagged text is removed from responses so
// that the ReAct output parser only sees the answer format it expects.
type SessionModel struct {
	wrapped        llms.Model
	model          string
	stripReasoning bool
	logger         *logrus.Entry
}

// NewSessionModel wraps llm for a session.
//
// Parameters:
//   - llm: The underlying provider model
//   - model: Model name passed with every call, empty for the provider default
//   - stripReasoning: Remove think-tagged reasoning from responses
//   - logger: Logger scoped to the session
//
// Returns:
//   - *SessionModel: Wrapper implementing llms.Model
func NewSessionModel(llm llms.Model, model string, stripReasoning bool, logger *logrus.Entry) *SessionModel {
	return &SessionModel{
		wrapped:        llm,
		model:          model,
		stripReasoning: stripReasoning,
		logger:         logger,
	}
}

func (m *SessionModel) options(options []llms.CallOption) []llms.CallOption {
	if m.model == "" {
		return options
	}
	return append([]llms.CallOption{llms.WithModel(m.model)}, options...)
}

// GenerateContent implements llms.Model.
func (m *SessionModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	response, err := m.wrapped.GenerateContent(ctx, messages, m.options(options)...)
	if err != nil || !m.stripReasoning || response == nil {
		return response, err
	}

	for _, choice := range response.Choices {
		original := choice.Content
		_, choice.Content = splitReasoning(original)
		if len(original) != len(choice.Content) {
			m.logger.WithFields(logrus.Fields{
				"originalLength": len(original),
				"cleanedLength":  len(choice.Content),
			}).Debug("Stripped reasoning from model response")
		}
	}
	return response, nil
}

// Call implements llms.Model.
func (m *SessionModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	response, err := m.wrapped.Call(ctx, prompt, m.options(options)...)
	if err != nil || !m.stripReasoning {
		return response, err
	}
	_, cleaned := splitReasoning(response)
	return cleaned, nil
}

var _ llms.Model = (*SessionModel)(nil)
