// Package mcpclient speaks newline-delimited JSON-RPC 2.0 with a child MCP
// server over its stdio. It owns the child's lifecycle, correlates responses
// with outstanding requests by id, and times requests out.
package mcpclient

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/metrics"
)

// State is the connection state of a Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Client is a session with one child MCP server. It is safe for concurrent use.
type Client struct {
	opts    Options
	log     zerolog.Logger
	pending *Table
	nextID  atomic.Int64
	state   atomic.Int32
	connect singleflight.Group

	mu         sync.Mutex
	proc       *process
	serverInfo json.RawMessage
}

// New returns a disconnected client. No process is started until Connect or
// the first call that needs one.
func New(opts Options, log zerolog.Logger) *Client {
	opts.setDefaults()
	return &Client{
		opts:    opts,
		log:     log.With().Str("component", "mcpclient").Logger(),
		pending: NewTable(opts.RequestTimeout),
	}
}

func (c *Client) State() State { return State(c.state.Load()) }

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int { return c.pending.Len() }

// ServerInfo returns the raw initialize result of the current session.
func (c *Client) ServerInfo() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Connect starts the child and performs the initialize handshake. It is a
// no-op when already connected; concurrent callers share one attempt. The
// attempt runs detached from any single caller's ctx and is bounded by the
// startup grace plus two request timeouts; a caller whose ctx ends stops
// waiting without cancelling the attempt for the others.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() == Connected {
		return nil
	}
	ch := c.connect.DoChan("connect", func() (any, error) {
		if c.State() == Connected {
			return nil, nil
		}
		dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.StartupGrace+2*c.opts.RequestTimeout)
		defer cancel()
		return nil, c.dial(dialCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) dial(ctx context.Context) error {
	c.state.Store(int32(Connecting))
	p, err := c.spawn()
	if err != nil {
		c.state.Store(int32(Disconnected))
		return err
	}

	if c.opts.StartupGrace > 0 {
		t := time.NewTimer(c.opts.StartupGrace)
		select {
		case <-t.C:
		case <-p.done:
			t.Stop()
			c.state.Store(int32(Disconnected))
			return &ProcessError{Op: "exited during startup", Err: p.exitErr}
		case <-ctx.Done():
			t.Stop()
			c.abandon(p)
			return ctx.Err()
		}
	}

	if err := c.Initialize(ctx); err != nil {
		c.abandon(p)
		return errors.Wrapf(err, "failed to initialize MCP connection")
	}
	c.log.Info().Msg("connected to FRED MCP server")

	tools, err := c.listTools(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("tools/list readiness probe failed")
		return nil
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	c.log.Info().Strs("tools", names).Msg("available MCP tools")
	return nil
}

// abandon kills p after a failed connect attempt.
func (c *Client) abandon(p *process) {
	c.mu.Lock()
	if c.proc == p {
		c.proc = nil
	}
	c.state.Store(int32(Disconnected))
	c.mu.Unlock()
	p.kill()
}

// Disconnect kills the child and fails every pending request with
// ErrDisconnected. It is a no-op when nothing is running.
func (c *Client) Disconnect() {
	c.mu.Lock()
	p := c.proc
	c.proc = nil
	c.serverInfo = nil
	c.state.Store(int32(Disconnected))
	c.mu.Unlock()
	if p == nil {
		return
	}
	p.kill()
	if n := c.pending.RejectAll(ErrDisconnected); n > 0 {
		c.log.Debug().Int("pending", n).Msg("rejected pending requests on disconnect")
	}
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		c.log.Warn().Msg("MCP server did not exit after kill")
	}
	c.log.Info().Msg("disconnected from FRED MCP server")
}

func (c *Client) current() *process {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc
}

func (c *Client) write(msg *Message) error {
	data, err := Encode(msg)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", msg.Method)
	}
	p := c.current()
	if p == nil {
		return ErrNotConnected
	}
	return p.write(data)
}

// SendRequest issues method with params and waits for the matching response.
// Nil params are sent as an empty object. Cancelling ctx abandons the request
// locally; a response arriving later is discarded.
func (c *Client) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	id := c.nextID.Add(1)
	start := time.Now()
	ch := c.pending.Register(id, method)

	if err := c.write(&Message{ID: &id, Method: method, Params: params}); err != nil {
		c.pending.Reject(id, err)
		metrics.RecordRPCRequest(method, time.Since(start), err, false)
		return nil, err
	}
	c.log.Debug().Str("method", method).Int64("id", id).Msg("sent MCP request")

	select {
	case out := <-ch:
		var te *TimeoutError
		metrics.RecordRPCRequest(method, time.Since(start), out.Err, errors.As(out.Err, &te))
		if out.Err != nil {
			return nil, out.Err
		}
		return out.Result, nil
	case <-ctx.Done():
		c.pending.Reject(id, ctx.Err())
		metrics.RecordRPCRequest(method, time.Since(start), ctx.Err(), false)
		return nil, ctx.Err()
	}
}

// SendNotification writes a message without an id. Nothing is awaited.
func (c *Client) SendNotification(method string, params any) error {
	if params == nil {
		params = map[string]any{}
	}
	if err := c.write(&Message{Method: method, Params: params}); err != nil {
		return err
	}
	c.log.Debug().Str("method", method).Msg("sent MCP notification")
	return nil
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

// Initialize performs the protocol handshake on the running child and marks
// the session connected.
func (c *Client) Initialize(ctx context.Context) error {
	res, err := c.SendRequest(ctx, "initialize", initializeParams{
		ProtocolVersion: c.opts.ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ClientInfo:      clientInfo{Name: c.opts.ClientName, Version: c.opts.ClientVersion},
	})
	if err != nil {
		return err
	}
	c.log.Debug().RawJSON("result", nonEmpty(res)).Msg("MCP initialize result")
	if err := c.SendNotification("initialized", nil); err != nil {
		return err
	}

	// liveness check, serverInfo and state change share one critical section
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil {
		return ErrDisconnected
	}
	c.serverInfo = res
	c.state.Store(int32(Connected))
	return nil
}

// ToolInfo describes one tool advertised by the server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListTools returns the server's tools, connecting first if needed.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c.listTools(ctx)
}

func (c *Client) listTools(ctx context.Context) ([]ToolInfo, error) {
	res, err := c.SendRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, errors.Wrapf(err, "invalid tools/list result")
	}
	return out.Tools, nil
}

// ContentItem is one element of a tool result.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the result of tools/call.
type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Text returns the first text element. A result flagged isError yields a
// *ToolError carrying that text.
func (r *ToolResult) Text() (string, error) {
	for _, item := range r.Content {
		if item.Type != "text" {
			continue
		}
		if r.IsError {
			return "", &ToolError{Message: item.Text}
		}
		return item.Text, nil
	}
	if r.IsError {
		return "", &ToolError{Message: "unknown error"}
	}
	return "", ErrNoTextContent
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// CallTool invokes a tool, connecting first if needed (including after a
// Disconnect).
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	c.log.Debug().Str("tool", name).Interface("args", args).Msg("calling MCP tool")
	res, err := c.SendRequest(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		c.log.Warn().Err(err).Str("tool", name).Msg("MCP tool failed")
		return nil, err
	}
	var out ToolResult
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, errors.Wrapf(err, "invalid tools/call result for %s", name)
	}
	return &out, nil
}

// dispatch routes one inbound message from p.
func (c *Client) dispatch(p *process, msg Message) {
	switch {
	case msg.IsResponse():
		id := *msg.ID
		var settled bool
		if msg.Error != nil {
			c.log.Debug().Int64("id", id).Int("code", msg.Error.Code).Str("error", msg.Error.Message).Msg("MCP error response")
			settled = c.pending.Reject(id, msg.Error)
		} else {
			settled = c.pending.Resolve(id, msg.Result)
		}
		if !settled {
			c.log.Debug().Int64("id", id).Msg("discarding response for unknown request")
		}
	case msg.ID != nil:
		c.log.Debug().Str("method", msg.Method).Msg("rejecting server-initiated request")
		reply := &Message{ID: msg.ID, Error: &RPCError{Code: -32601, Message: "Method not found"}}
		data, err := Encode(reply)
		if err == nil {
			err = p.write(data)
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to answer server request")
		}
	case msg.Method != "":
		c.log.Debug().Str("method", msg.Method).Msg("MCP server notification")
	}
}

func nonEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
