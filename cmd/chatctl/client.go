package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentchat/core"
	"agentchat/render"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
)

// reconnectDelay is the pause between connection attempts.
var reconnectDelay = 3 * time.Second

// client holds one terminal chat against the gateway. The connection is
// replaced on every reconnect; the renderer survives it.
type client struct {
	wsURL    string
	httpBase string
	out      io.Writer
	renderer *render.Renderer

	connMu sync.Mutex
	conn   *websocket.Conn
	model  string
	agent  string

	streamed strings.Builder // assistant text printed for the open turn
}

func newClient(wsURL, model, agent string, out io.Writer) (*client, error) {
	base, err := httpBase(wsURL)
	if err != nil {
		return nil, err
	}
	return &client{
		wsURL:    wsURL,
		httpBase: base,
		model:    model,
		agent:    agent,
		out:      out,
		renderer: render.New(),
	}, nil
}

// httpBase derives the HTTP origin of the gateway from its WebSocket URL.
func httpBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return u.String(), nil
}

// run keeps a connection open until ctx is done. Every new connection
// starts a new session.
func (c *client) run(ctx context.Context) {
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			yellow.Fprintf(c.out, "Connection error: %v\n", err)
		} else {
			green.Fprintln(c.out, "Connected")
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			c.setConn(conn)
			if err := c.newSession(); err != nil {
				color.New(color.FgRed).Fprintf(c.out, "Error: %v\n", err)
			}
			c.readLoop(conn)
			c.setConn(nil)
			stop()
			if ctx.Err() != nil {
				return
			}
			yellow.Fprintln(c.out, "Disconnected - Reconnecting...")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *client) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var msg core.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		c.show(msg)
	}
}

func (c *client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn
}

// send writes cmd on the current connection.
func (c *client) send(cmd core.Command) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(cmd)
}

// close sends a normal closure, which ends the server side session.
func (c *client) close() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.conn.Close()
}

// show applies msg to the renderer and prints what changed.
func (c *client) show(msg core.ServerMessage) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	dim := color.New(color.Faint, color.Italic)

	update := c.renderer.Apply(msg)

	switch msg.Type {
	case core.MessageSessionCreated:
		cyan.Fprintln(c.out, update.Text)
	case core.MessageDelta:
		c.streamed.WriteString(msg.Content)
		fmt.Fprint(c.out, msg.Content)
	case core.MessageContent:
		// The final text only needs printing when streaming did not
		// already produce it.
		if update.Kind != render.UpdateEntryReplaced || c.streamed.String() != msg.Content {
			if c.streamed.Len() > 0 {
				fmt.Fprintln(c.out)
			}
			fmt.Fprint(c.out, msg.Content)
		}
		c.streamed.Reset()
		c.streamed.WriteString(msg.Content)
	case core.MessageReasoningDelta:
		dim.Fprint(c.out, msg.Content)
	case core.MessageToolStart:
		yellow.Fprintf(c.out, "\n[tool: %s]\n", msg.Tool)
	case core.MessageIdle:
		c.endTurn()
	case core.MessageAborted:
		c.endTurn()
		yellow.Fprintln(c.out, update.Text)
	case core.MessageError:
		color.New(color.FgRed).Fprintln(c.out, "\n"+update.Text)
	}
}

func (c *client) endTurn() {
	if c.streamed.Len() > 0 {
		fmt.Fprintln(c.out)
	}
	c.streamed.Reset()
}

// submit sends prompt unless a request is already in flight.
func (c *client) submit(prompt string) error {
	cmd, err := c.renderer.Submit(prompt)
	if err != nil {
		return err
	}
	return c.send(cmd)
}

func (c *client) newSession() error {
	return c.send(c.renderer.NewSession(c.profile()))
}

// profile returns the model and agent used for new sessions.
func (c *client) profile() (model, agent string) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.model, c.agent
}

func (c *client) setProfile(model, agent string) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.model, c.agent = model, agent
}

func (c *client) abort() error {
	return c.send(core.Command{Type: core.CommandAbort})
}

// attach uploads path and queues it for the next prompt.
func (c *client) attach(ctx context.Context, path string) (core.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.UploadResponse{}, err
	}
	defer f.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return core.UploadResponse{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return core.UploadResponse{}, err
	}
	if err := form.Close(); err != nil {
		return core.UploadResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpBase+"/upload", &body)
	if err != nil {
		return core.UploadResponse{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return core.UploadResponse{}, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return core.UploadResponse{}, fmt.Errorf("upload failed: %s (%d)", failure.Error, resp.StatusCode)
	}

	var uploaded core.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return core.UploadResponse{}, fmt.Errorf("decode upload response: %w", err)
	}
	c.renderer.Attach(core.AttachmentRef{Path: uploaded.Path, Name: uploaded.Name})
	return uploaded, nil
}

// agentInfo is an entry of the agents endpoint.
type agentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *client) listAgents(ctx context.Context) ([]agentInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.httpBase+"/api/agents", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch agents: %w", err)
	}
	defer resp.Body.Close()

	var agents []agentInfo
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	return agents, nil
}
