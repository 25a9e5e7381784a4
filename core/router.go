package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentchat/catalog"
	"agentchat/engine"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 25 * time.Second
	destroyTimeout = 30 * time.Second

	systemPromptPreviewLength = 200
)

// ErrNoSession is returned by commands that need a session before
// create_session has succeeded.
var ErrNoSession = errors.New("no active session")

// FrameInstructions wraps agent instructions in the system message that
// locks the assistant into the agent's persona.
func FrameInstructions(instructions, assistantLabel string) string {
	return fmt.Sprintf(`<role>
%s
</role>

You are ONLY acting as the agent described above. Follow the steps and instructions precisely. Do not mention that you are %s unless specifically asked about your underlying model.`, instructions, assistantLabel)
}

// Router services the WebSocket protocol. Each connection owns at most one
// engine session; commands on a connection are handled in arrival order.
type Router struct {
	catalog  *catalog.Catalog
	engine   engine.Engine
	registry *Registry
	config   *Config
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*connState
}

// connState is everything the router knows about one connection. Only the
// connection's read loop touches session, forwarderDone and flush.
type connState struct {
	id     string
	conn   *websocket.Conn
	logger *logrus.Entry

	session       engine.Session
	forwarderDone chan struct{}
	flush         chan chan struct{}

	writeMu sync.Mutex
}

// send writes msg to the client. Safe for concurrent use.
func (c *connState) send(msg ServerMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *connState) sendError(text string) {
	if err := c.send(ErrorMessage(text)); err != nil {
		c.logger.WithError(err).Debug("Failed to deliver error message")
	}
}

func (c *connState) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// NewRouter creates a router that configures sessions from cat and creates
// them through eng.
func NewRouter(config *Config, cat *catalog.Catalog, eng engine.Engine, registry *Registry, logger *logrus.Logger) *Router {
	return &Router{
		catalog:  cat,
		engine:   eng,
		registry: registry,
		config:   config,
		logger:   logger,
		upgrader: newUpgrader(config.AllowedOrigins),
		conns:    make(map[string]*connState),
	}
}

// newUpgrader accepts same-host origins, non-browser clients and the
// configured origins. A "*" entry accepts any origin.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[strings.TrimSuffix(o, "/")] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
				return true
			}
			return originSet[origin]
		},
	}
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes.
func (r *Router) HandleWebSocket(c echo.Context) error {
	conn, err := r.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		r.logger.WithError(err).WithField("clientIP", c.RealIP()).Warn("WebSocket upgrade failed")
		return nil
	}
	r.Serve(conn)
	return nil
}

// Serve runs the read loop of an upgraded connection.
func (r *Router) Serve(conn *websocket.Conn) {
	state := &connState{
		id:   uuid.NewString(),
		conn: conn,
	}
	state.logger = r.logger.WithFields(logrus.Fields{
		"component": "router",
		"connId":    state.id,
	})

	r.mu.Lock()
	r.conns[state.id] = state
	r.mu.Unlock()

	state.logger.WithField("remoteAddr", conn.RemoteAddr().String()).Info("Client connected")
	defer r.closeConnection(state)

	if r.config.MaxMessageBytes > 0 {
		conn.SetReadLimit(r.config.MaxMessageBytes)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopKeepalive := make(chan struct{})
	defer close(stopKeepalive)
	go r.keepalive(state, stopKeepalive)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				state.logger.WithError(err).Warn("Connection closed unexpectedly")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		r.handleMessage(state, data)
	}
}

func (r *Router) keepalive(state *connState, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := state.ping(); err != nil {
				state.logger.WithError(err).Debug("Ping failed")
				return
			}
		}
	}
}

// handleMessage dispatches one inbound message. A failing or panicking
// command is reported to the client and never ends the connection.
func (r *Router) handleMessage(state *connState, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			state.logger.WithField("panic", rec).Error("Panic occurred while handling message")
			state.sendError(fmt.Sprintf("internal error: %v", rec))
		}
	}()

	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		state.logger.WithError(err).Warn("Invalid message from client")
		state.sendError("Invalid message: " + err.Error())
		return
	}

	ctx := context.Background()

	var err error
	switch cmd.Type {
	case CommandCreateSession:
		err = r.handleCreateSession(ctx, state, cmd)
	case CommandSendMessage:
		err = r.handleSendMessage(ctx, state, cmd)
	case CommandAbort:
		err = r.handleAbort(ctx, state)
	default:
		state.logger.WithField("type", cmd.Type).Warn("Unknown message type")
		state.sendError("Unknown message type: " + cmd.Type)
		return
	}

	if err != nil {
		state.logger.WithError(err).WithField("type", cmd.Type).Warn("Command failed")
		state.sendError(clientErrorText(err))
	}
}

// clientErrorText is the text shown to the user for a command error.
func clientErrorText(err error) string {
	switch {
	case errors.Is(err, ErrNoSession):
		return "No active session"
	case errors.Is(err, engine.ErrTurnInFlight):
		return "A request is already in progress"
	default:
		return err.Error()
	}
}

func (r *Router) handleCreateSession(ctx context.Context, state *connState, cmd Command) error {
	r.teardown(state)

	agentID := strings.TrimSpace(cmd.Agent)
	var agent *catalog.AgentRecord
	if agentID != "" {
		if record, ok := r.catalog.Get(agentID); ok {
			agent = &record
		} else {
			state.logger.WithFields(logrus.Fields{
				"agentId":   agentID,
				"available": r.catalog.IDs(),
			}).Warn("Agent not found, creating session without system message")
		}
	}

	model := cmd.Model
	if model == "" {
		model = r.config.DefaultModel
	}

	sessionConfig := engine.SessionConfig{
		Model:     model,
		Streaming: true,
	}
	if agent != nil {
		sessionConfig.SystemMessage = &engine.SystemMessage{
			Mode:    engine.SystemMessageModeReplace,
			Content: FrameInstructions(agent.Instructions, r.config.AssistantLabel),
		}
		sessionConfig.Tools = agent.Tools

		state.logger.WithFields(logrus.Fields{
			"agent":   agent.Name,
			"preview": engine.TruncateText(agent.Instructions, systemPromptPreviewLength),
		}).Debug("Applying agent system prompt")
	}

	session, err := r.engine.CreateSession(ctx, sessionConfig)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	done := make(chan struct{})
	flush := make(chan chan struct{})
	state.session = session
	state.forwarderDone = done
	state.flush = flush
	r.registry.Put(state.id, session)
	go r.forward(state, session, flush, done)

	var agentName *string
	if agent != nil {
		name := agent.Name
		agentName = &name
	}

	state.logger.WithFields(logrus.Fields{
		"sessionId":    session.ID(),
		"model":        model,
		"agentId":      agentID,
		"agentApplied": agentName != nil,
	}).Info("Session created")

	return state.send(ServerMessage{
		Type:  MessageSessionCreated,
		Model: cmd.Model,
		Agent: agentName,
	})
}

// session returns the live session of the connection. Sessions drained by
// shutdown are no longer live even though teardown has not run yet.
func (r *Router) session(state *connState) (engine.Session, bool) {
	if state.session == nil {
		return nil, false
	}
	session, ok := r.registry.Get(state.id)
	if !ok || session != state.session {
		return nil, false
	}
	return session, true
}

func (r *Router) handleSendMessage(ctx context.Context, state *connState, cmd Command) error {
	session, ok := r.session(state)
	if !ok {
		return ErrNoSession
	}

	opts := engine.SendOptions{Prompt: cmd.Prompt}
	for _, a := range cmd.Attachments {
		path, err := r.attachmentPath(a.Path)
		if err != nil {
			return err
		}
		opts.Attachments = append(opts.Attachments, engine.Attachment{
			Type:        "file",
			Path:        path,
			DisplayName: a.Name,
		})
	}

	state.logger.WithFields(logrus.Fields{
		"sessionId":    session.ID(),
		"promptLength": len(cmd.Prompt),
		"attachments":  len(opts.Attachments),
	}).Debug("Forwarding prompt")

	return session.Send(ctx, opts)
}

// attachmentPath confines attachments to the upload directory.
func (r *Router) attachmentPath(path string) (string, error) {
	root, err := filepath.Abs(r.config.UploadDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid attachment path %q: %w", path, err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("attachment %q is not an uploaded file", path)
	}
	return abs, nil
}

// handleAbort stops the running turn. Abort returns once the turn has
// emitted its last event, so after the forwarder has relayed everything
// queued, aborted is the final message of the turn.
func (r *Router) handleAbort(ctx context.Context, state *connState) error {
	session, ok := r.session(state)
	if !ok {
		return nil
	}
	if err := session.Abort(ctx); err != nil {
		return fmt.Errorf("failed to abort: %w", err)
	}
	r.flushEvents(state)
	state.logger.WithField("sessionId", session.ID()).Info("Turn aborted by client")
	return state.send(ServerMessage{Type: MessageAborted})
}

// flushEvents waits until the forwarder has relayed every event queued on
// the session so far.
func (r *Router) flushEvents(state *connState) {
	ack := make(chan struct{})
	select {
	case state.flush <- ack:
	case <-state.forwarderDone:
		return
	}
	select {
	case <-ack:
	case <-state.forwarderDone:
	}
}

// forward relays session events to the client until the session's event
// stream is closed by Destroy. A flush request is acknowledged once the
// stream has nothing more buffered.
func (r *Router) forward(state *connState, session engine.Session, flush <-chan chan struct{}, done chan struct{}) {
	defer close(done)

	events := session.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.relay(state, ev)
		case ack := <-flush:
			for drained := false; !drained; {
				select {
				case ev, ok := <-events:
					if !ok {
						close(ack)
						return
					}
					r.relay(state, ev)
				default:
					drained = true
				}
			}
			close(ack)
		}
	}
}

func (r *Router) relay(state *connState, ev engine.Event) {
	msg, ok := EncodeEvent(ev)
	if !ok {
		return
	}
	if err := state.send(msg); err != nil {
		state.logger.WithError(err).WithField("event", ev.Type).Debug("Failed to relay event")
	}
}

// teardown destroys the connection's session, if any. Failures are logged;
// the registry entry is always removed.
func (r *Router) teardown(state *connState) {
	defer r.registry.Remove(state.id)

	session, done := state.session, state.forwarderDone
	if session == nil {
		return
	}
	state.session = nil
	state.forwarderDone = nil
	state.flush = nil

	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()

	sessionLogger := state.logger.WithField("sessionId", session.ID())
	if err := session.Destroy(ctx); err != nil {
		sessionLogger.WithError(err).Error("Failed to destroy session")
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
		sessionLogger.Warn("Event forwarder did not stop")
	}
	sessionLogger.Info("Session destroyed")
}

func (r *Router) closeConnection(state *connState) {
	r.teardown(state)

	r.mu.Lock()
	delete(r.conns, state.id)
	r.mu.Unlock()

	_ = state.conn.Close()
	state.logger.Info("Client disconnected")
}

// ShutdownAll destroys every registered session and closes every open
// connection.
func (r *Router) ShutdownAll(ctx context.Context) {
	sessions := r.registry.Drain()
	for connID, session := range sessions {
		if err := session.Destroy(ctx); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"connId":    connID,
				"sessionId": session.ID(),
			}).Error("Failed to destroy session during shutdown")
		}
	}

	r.mu.Lock()
	conns := make([]*connState, 0, len(r.conns))
	for _, state := range r.conns {
		conns = append(conns, state)
	}
	r.mu.Unlock()

	closeFrame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, state := range conns {
		state.writeMu.Lock()
		_ = state.conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(writeWait))
		state.writeMu.Unlock()
		_ = state.conn.Close()
	}

	r.logger.WithFields(logrus.Fields{
		"sessions":    len(sessions),
		"connections": len(conns),
	}).Info("All sessions shut down")
}

// ConnectionCount returns the number of open connections.
func (r *Router) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
