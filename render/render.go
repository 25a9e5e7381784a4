// Package render keeps the client-side view of a chat connection: the
// transcript, the turn currently being streamed, reasoning blocks, running
// tools and whether a prompt may be submitted.
//
// Assistant text is markdown. Every delta re-renders the whole raw buffer of
// the turn, so the HTML of an entry is always the rendering of its complete
// text and never a concatenation of partial renders.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"

	"agentchat/core"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	// ErrBusy is returned by Submit while a request is in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrEmptyPrompt is returned by Submit for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Entry is one message of the transcript.
type Entry struct {
	Role  Role
	Raw   string   // accumulated text as received
	HTML  string   // rendering of Raw; assistant entries only
	Tools []string // tools used while this entry was current
}

// Reasoning is an accumulated reasoning block.
type Reasoning struct {
	ID      string
	Content string
}

// UpdateKind says what a message changed.
type UpdateKind int

const (
	UpdateNone UpdateKind = iota
	UpdateEntryAdded
	UpdateEntryAppended
	UpdateEntryReplaced
	UpdateReasoning
	UpdateToolStarted
	UpdateToolFinished
	UpdateTurnEnded
)

// Update describes the effect of one applied message.
type Update struct {
	Kind  UpdateKind
	Entry Entry  // the affected entry, for entry updates
	Text  string // appended text, reasoning text or tool name
}

// Renderer applies server messages to a transcript. It is safe for
// concurrent use.
type Renderer struct {
	mu          sync.Mutex
	md          goldmark.Markdown
	entries     []*Entry
	current     *Entry
	busy        bool
	reasoning   map[string]*Reasoning
	reasonOrder []string
	running     map[string]int
	attachments []core.AttachmentRef
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMarkdown replaces the default markdown converter.
func WithMarkdown(md goldmark.Markdown) Option {
	return func(r *Renderer) { r.md = md }
}

// New returns an empty Renderer. Raw HTML in assistant text is escaped.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		md:        goldmark.New(goldmark.WithExtensions(extension.GFM)),
		reasoning: make(map[string]*Reasoning),
		running:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSession clears the transcript and returns the create_session command
// to send. Any pending turn is forgotten.
func (r *Renderer) NewSession(model, agent string) core.Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	r.current = nil
	r.busy = false
	r.reasoning = make(map[string]*Reasoning)
	r.reasonOrder = nil
	r.running = make(map[string]int)

	return core.Command{Type: core.CommandCreateSession, Model: model, Agent: agent}
}

// Attach queues an uploaded file for the next prompt.
func (r *Renderer) Attach(ref core.AttachmentRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachments = append(r.attachments, ref)
}

// Submit records prompt as a user entry and returns the send_message
// command carrying it and any queued attachments. It refuses while busy.
func (r *Renderer) Submit(prompt string) (core.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return core.Command{}, ErrEmptyPrompt
	}
	if r.busy {
		return core.Command{}, ErrBusy
	}

	r.entries = append(r.entries, &Entry{Role: RoleUser, Raw: prompt})
	cmd := core.Command{Type: core.CommandSendMessage, Prompt: prompt, Attachments: r.attachments}
	r.attachments = nil
	r.busy = true
	return cmd, nil
}

// Apply updates the view with one server message. Unknown message types
// are ignored.
func (r *Renderer) Apply(msg core.ServerMessage) Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg.Type {
	case core.MessageSessionCreated:
		r.busy = false
		return r.addSystem(sessionBanner(msg))

	case core.MessageDelta:
		kind := UpdateEntryAppended
		if r.current == nil {
			r.current = &Entry{Role: RoleAssistant}
			r.entries = append(r.entries, r.current)
			kind = UpdateEntryAdded
		}
		r.current.Raw += msg.Content
		r.current.HTML = r.toHTML(r.current.Raw)
		return Update{Kind: kind, Entry: r.current.snapshot(), Text: msg.Content}

	case core.MessageContent:
		if r.current == nil {
			entry := &Entry{Role: RoleAssistant, Raw: msg.Content, HTML: r.toHTML(msg.Content)}
			r.entries = append(r.entries, entry)
			return Update{Kind: UpdateEntryAdded, Entry: entry.snapshot(), Text: msg.Content}
		}
		r.current.Raw = msg.Content
		r.current.HTML = r.toHTML(msg.Content)
		return Update{Kind: UpdateEntryReplaced, Entry: r.current.snapshot(), Text: msg.Content}

	case core.MessageReasoningDelta, core.MessageReasoning:
		block, ok := r.reasoning[msg.ReasoningID]
		if !ok {
			block = &Reasoning{ID: msg.ReasoningID}
			r.reasoning[msg.ReasoningID] = block
			r.reasonOrder = append(r.reasonOrder, msg.ReasoningID)
		}
		if msg.Type == core.MessageReasoning {
			block.Content = msg.Content
		} else {
			block.Content += msg.Content
		}
		return Update{Kind: UpdateReasoning, Text: msg.Content}

	case core.MessageToolStart:
		r.running[msg.Tool]++
		if r.current != nil {
			r.current.Tools = append(r.current.Tools, msg.Tool)
		}
		return Update{Kind: UpdateToolStarted, Text: msg.Tool}

	case core.MessageToolEnd:
		if r.running[msg.Tool] > 1 {
			r.running[msg.Tool]--
		} else {
			delete(r.running, msg.Tool)
		}
		return Update{Kind: UpdateToolFinished, Text: msg.Tool}

	case core.MessageIdle:
		r.endTurn()
		return Update{Kind: UpdateTurnEnded}

	case core.MessageAborted:
		r.endTurn()
		return r.addSystem("Response aborted")

	case core.MessageError:
		r.busy = false
		return r.addSystem("Error: " + msg.Message)
	}
	return Update{Kind: UpdateNone}
}

func (r *Renderer) endTurn() {
	r.busy = false
	r.current = nil
	r.running = make(map[string]int)
}

func (r *Renderer) addSystem(text string) Update {
	entry := &Entry{Role: RoleSystem, Raw: text}
	r.entries = append(r.entries, entry)
	return Update{Kind: UpdateEntryAdded, Entry: entry.snapshot(), Text: text}
}

// toHTML renders markdown, falling back to escaped text.
func (r *Renderer) toHTML(raw string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(raw), &buf); err != nil {
		return html.EscapeString(raw)
	}
	return buf.String()
}

func sessionBanner(msg core.ServerMessage) string {
	model := msg.Model
	if model == "" {
		model = "default model"
	}
	if msg.Agent != nil {
		return fmt.Sprintf("Session started with @%s using %s", *msg.Agent, model)
	}
	return "Session started using " + model
}

func (e *Entry) snapshot() Entry {
	out := *e
	out.Tools = append([]string(nil), e.Tools...)
	return out
}

// Busy reports whether a prompt is in flight.
func (r *Renderer) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Streaming reports whether an assistant turn is currently open.
func (r *Renderer) Streaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Entries returns a copy of the transcript.
func (r *Renderer) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.snapshot()
	}
	return out
}

// Reasoning returns the reasoning blocks in arrival order.
func (r *Renderer) Reasoning() []Reasoning {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Reasoning, 0, len(r.reasonOrder))
	for _, id := range r.reasonOrder {
		out = append(out, *r.reasoning[id])
	}
	return out
}

// RunningTools returns the names of tools that started and have not ended.
func (r *Renderer) RunningTools() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.running))
	for name := range r.running {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Transcript renders the whole conversation as an HTML fragment.
func (r *Renderer) Transcript() string {
	var b strings.Builder
	for _, e := range r.Entries() {
		fmt.Fprintf(&b, "<div class=\"message %s\">", e.Role)
		if e.Role == RoleAssistant {
			b.WriteString(e.HTML)
		} else {
			b.WriteString(html.EscapeString(e.Raw))
		}
		b.WriteString("</div>\n")
	}
	return b.String()
}
