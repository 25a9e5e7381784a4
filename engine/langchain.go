package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/tools"
)

const (
	eventBufferSize    = 256
	maxAttachmentBytes = 10 << 20
)

// ToolResolver maps the tool names declared by an agent to tools.
type ToolResolver interface {
	Resolve(names []string) (found []tools.Tool, missing []string)
}

// Options tunes an LLMEngine.
type Options struct {
	Provider          string        // provider label reported by ListModels
	DefaultModel      string        // model used when a session does not name one
	Models            []string      // models advertised by ListModels
	RequestTimeout    time.Duration // upper bound for one turn, zero for none
	ContextLimit      int           // history messages replayed per turn
	MaxIterations     int           // ReAct iterations for tool-using sessions
	LogTruncateLength int
	Tools             ToolResolver // nil disables tools
}

// LLMEngine is an Engine backed by a langchaingo model.
type LLMEngine struct {
	llm    llms.Model
	opts   Options
	turns  *TurnTracker
	logger *logrus.Logger

	mu       sync.Mutex
	stopped  bool
	sessions map[string]*llmSession
}

// NewLLMEngine creates an engine that runs every session through llm.
func NewLLMEngine(llm llms.Model, opts Options, logger *logrus.Logger) *LLMEngine {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	return &LLMEngine{
		llm:      llm,
		opts:     opts,
		turns:    NewTurnTracker(),
		logger:   logger,
		sessions: make(map[string]*llmSession),
	}
}

// CreateSession implements Engine.
func (e *LLMEngine) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Model == "" {
		cfg.Model = e.opts.DefaultModel
	}

	id := uuid.NewString()
	sessionLogger := e.logger.WithFields(logrus.Fields{
		"component": "engine",
		"sessionId": id,
		"model":     cfg.Model,
	})

	var sessionTools []tools.Tool
	if len(cfg.Tools) > 0 && e.opts.Tools != nil {
		found, missing := e.opts.Tools.Resolve(cfg.Tools)
		if len(missing) > 0 {
			sessionLogger.WithField("missing", missing).Debug("Agent declares tools that are not available")
		}
		sessionTools = found
	}

	s := &llmSession{
		id:         id,
		cfg:        cfg,
		engine:     e,
		chatModel:  NewSessionModel(e.llm, cfg.Model, false, sessionLogger),
		agentModel: NewSessionModel(e.llm, cfg.Model, true, sessionLogger),
		tools:      sessionTools,
		history:    NewHistory(),
		logger:     sessionLogger,
		events:     make(chan Event, eventBufferSize),
		closing:    make(chan struct{}),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, ErrEngineStopped
	}
	e.sessions[id] = s

	sessionLogger.WithFields(logrus.Fields{
		"streaming":     cfg.Streaming,
		"systemMessage": cfg.SystemMessage != nil,
		"toolCount":     len(sessionTools),
	}).Info("Session created")
	return s, nil
}

// ListModels implements Engine. It reports the configured model list with
// the default model first.
func (e *LLMEngine) ListModels(ctx context.Context) ([]ModelInfo, error) {
	seen := make(map[string]bool)
	var models []ModelInfo

	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		models = append(models, ModelInfo{
			ID:       id,
			Name:     id,
			Provider: e.opts.Provider,
			Default:  id == e.opts.DefaultModel,
		})
	}

	add(e.opts.DefaultModel)
	rest := append([]string(nil), e.opts.Models...)
	sort.Strings(rest)
	for _, m := range rest {
		add(m)
	}
	if models == nil {
		models = []ModelInfo{}
	}
	return models, nil
}

// Stop destroys every remaining session and refuses new ones.
func (e *LLMEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	remaining := make([]*llmSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		remaining = append(remaining, s)
	}
	e.mu.Unlock()

	var errs []error
	for _, s := range remaining {
		if err := s.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("destroy session %s: %w", s.id, err))
		}
	}

	e.logger.WithField("destroyedSessions", len(remaining)).Info("Engine stopped")
	return errors.Join(errs...)
}

// ActiveTurns returns the IDs of sessions that are generating.
func (e *LLMEngine) ActiveTurns() []string {
	return e.turns.Active()
}

// SessionCount reports live sessions.
func (e *LLMEngine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *LLMEngine) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}

type loadedAttachment struct {
	name     string
	path     string
	mimeType string
	data     []byte
}

func (a loadedAttachment) isText() bool {
	return strings.HasPrefix(a.mimeType, "text/") ||
		strings.HasPrefix(a.mimeType, "application/json") ||
		strings.HasPrefix(a.mimeType, "application/xml")
}

func (a loadedAttachment) describe() string {
	if a.isText() {
		return fmt.Sprintf("Attached file %q:\n%s", a.name, a.data)
	}
	return fmt.Sprintf("Attached file %q (%s, %d bytes) at %s", a.name, a.mimeType, len(a.data), a.path)
}

type llmSession struct {
	id         string
	cfg        SessionConfig
	engine     *LLMEngine
	chatModel  *SessionModel
	agentModel *SessionModel
	tools      []tools.Tool
	history    *History
	logger     *logrus.Entry

	events  chan Event
	closing chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	cancel    context.CancelFunc
	turnDone  chan struct{}
	destroyed chan struct{}
}

func (s *llmSession) ID() string { return s.id }

func (s *llmSession) Events() <-chan Event { return s.events }

func (s *llmSession) Send(ctx context.Context, opts SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attachments, err := loadAttachments(opts.Attachments)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.turnDone != nil {
		return ErrTurnInFlight
	}

	// The turn outlives the caller's request, so it is not derived from ctx.
	var (
		turnCtx context.Context
		cancel  context.CancelFunc
	)
	if s.engine.opts.RequestTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(context.Background(), s.engine.opts.RequestTimeout)
	} else {
		turnCtx, cancel = context.WithCancel(context.Background())
	}

	done := make(chan struct{})
	s.cancel = cancel
	s.turnDone = done
	s.engine.turns.Add(s.id, cancel)

	s.logger.WithFields(logrus.Fields{
		"promptLength": len(opts.Prompt),
		"attachments":  len(attachments),
	}).Info("Turn started")

	s.wg.Add(1)
	go s.run(turnCtx, cancel, done, opts.Prompt, attachments)
	return nil
}

func (s *llmSession) Abort(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	done := s.turnDone
	cancel := s.cancel
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	s.engine.turns.Cancel(s.id)
	cancel()

	select {
	case <-done:
		s.logger.Info("Turn aborted")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *llmSession) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed == nil {
		s.closed = true
		s.destroyed = make(chan struct{})
		if s.cancel != nil {
			s.cancel()
		}
		close(s.closing)

		destroyed := s.destroyed
		go func() {
			s.wg.Wait()
			close(s.events)
			s.engine.forget(s.id)
			close(destroyed)
		}()
		s.logger.Info("Session destroyed")
	}
	destroyed := s.destroyed
	s.mu.Unlock()

	select {
	case <-destroyed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emit delivers ev unless the session is being destroyed. Only the turn
// goroutine emits, and Destroy closes the channel after that goroutine has
// finished, so a send never races with close.
func (s *llmSession) emit(ev Event) {
	select {
	case <-s.closing:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.closing:
	}
}

func (s *llmSession) emitSegments(segments []segment, reasoningID string) {
	for _, seg := range segments {
		if seg.reasoning {
			s.emit(Event{Type: EventReasoningDelta, Content: seg.text, ReasoningID: reasoningID})
		} else {
			s.emit(Event{Type: EventMessageDelta, Content: seg.text})
		}
	}
}

func (s *llmSession) systemPrompt() string {
	if s.cfg.SystemMessage == nil {
		return ""
	}
	return s.cfg.SystemMessage.Content
}

func (s *llmSession) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, prompt string, attachments []loadedAttachment) {
	startTime := time.Now()

	defer s.wg.Done()
	defer func() {
		s.engine.turns.Remove(s.id)
		cancel()

		s.mu.Lock()
		s.cancel = nil
		s.turnDone = nil
		s.mu.Unlock()

		s.emit(Event{Type: EventIdle})
		close(done)
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Panic occurred during turn")
			s.emit(Event{Type: EventError, Content: fmt.Sprintf("execution failed due to internal error: %v", r)})
		}
	}()

	var (
		answer string
		err    error
	)
	if len(s.tools) > 0 {
		answer, err = s.runAgent(ctx, prompt, attachments)
	} else {
		answer, err = s.runChat(ctx, prompt, attachments)
	}

	turnLogger := s.logger.WithField("executionTime", time.Since(startTime))

	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			turnLogger.Info("Turn cancelled")
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			turnLogger.Warn("Turn timed out")
			s.emit(Event{Type: EventError, Content: fmt.Sprintf("request timed out after %s", s.engine.opts.RequestTimeout)})
		default:
			turnLogger.WithError(err).Error("Turn failed")
			s.emit(Event{Type: EventError, Content: err.Error()})
		}
		return
	}

	s.history.AddMessage("user", prompt)
	s.history.AddMessage("assistant", answer)

	turnLogger.WithFields(logrus.Fields{
		"responseLength": len(answer),
		"messageCount":   s.history.Len(),
	}).Info("Turn completed")
}

func (s *llmSession) runChat(ctx context.Context, prompt string, attachments []loadedAttachment) (string, error) {
	messages := s.history.MessageContents(s.systemPrompt(), s.engine.opts.ContextLimit)

	parts := []llms.ContentPart{llms.TextPart(prompt)}
	for _, a := range attachments {
		if strings.HasPrefix(a.mimeType, "image/") {
			parts = append(parts, llms.BinaryPart(a.mimeType, a.data))
		} else {
			parts = append(parts, llms.TextPart(a.describe()))
		}
	}
	messages = append(messages, llms.MessageContent{Role: schema.ChatMessageTypeHuman, Parts: parts})

	reasoningID := uuid.NewString()
	splitter := &thinkSplitter{}

	var options []llms.CallOption
	if s.cfg.Streaming {
		options = append(options, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			s.emitSegments(splitter.Write(string(chunk)), reasoningID)
			return nil
		}))
	}

	resp, err := s.chatModel.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	if s.cfg.Streaming {
		s.emitSegments(splitter.Flush(), reasoningID)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}

	reasoning, content := splitReasoning(resp.Choices[0].Content)
	if reasoning != "" {
		s.emit(Event{Type: EventReasoning, Content: reasoning, ReasoningID: reasoningID})
	}
	s.emit(Event{Type: EventMessage, Content: content})
	return content, nil
}

func (s *llmSession) runAgent(ctx context.Context, prompt string, attachments []loadedAttachment) (string, error) {
	toolList := withEvents(s.tools, s.emit, s.logger)

	executor, err := agents.Initialize(
		s.agentModel,
		toolList,
		agents.ZeroShotReactDescription,
		agents.WithPrompt(CreateToolPrompt(toolList, s.systemPrompt())),
		agents.WithMaxIterations(s.engine.opts.MaxIterations),
		agents.WithCallbacksHandler(newAgentLogHandler(s.logger, s.engine.opts.LogTruncateLength)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to initialize agent executor: %w", err)
	}

	input := prompt
	for _, a := range attachments {
		input += "\n\n" + a.describe()
	}
	if s.history.Len() > 0 {
		input = s.history.ConversationContext(s.engine.opts.ContextLimit) + "Human: " + input
	}

	result, err := chains.Run(ctx, executor, input)
	if err != nil {
		return "", err
	}

	_, content := splitReasoning(result)
	s.emit(Event{Type: EventMessage, Content: content})
	return content, nil
}

func loadAttachments(list []Attachment) ([]loadedAttachment, error) {
	loaded := make([]loadedAttachment, 0, len(list))
	for _, a := range list {
		info, err := os.Stat(a.Path)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", a.DisplayName, err)
		}
		if info.Size() > maxAttachmentBytes {
			return nil, fmt.Errorf("attachment %q exceeds %d bytes", a.DisplayName, maxAttachmentBytes)
		}
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", a.DisplayName, err)
		}
		name := a.DisplayName
		if name == "" {
			name = info.Name()
		}
		loaded = append(loaded, loadedAttachment{
			name:     name,
			path:     a.Path,
			mimeType: http.DetectContentType(data),
			data:     data,
		})
	}
	return loaded, nil
}
