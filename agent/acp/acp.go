// Package acp serves the agent to editors over the Agent Client Protocol.
//
// Messages are newline-delimited JSON-RPC 2.0 objects on stdin and stdout.
// Only JSON-RPC is ever written to stdout; logs go to the logger.
package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vishpuri/FRED/agent"
	"github.com/vishpuri/FRED/session"
)

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonrpcError `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Server holds the editor sessions of one ACP connection.
type Server struct {
	agent         *agent.Agent
	transcriptDir string
	log           zerolog.Logger

	mu       sync.Mutex
	sessions map[string]struct{}

	writeMu sync.Mutex
	out     *bufio.Writer
}

// NewServer creates a server writing to out. transcriptDir is where
// session/load looks for saved transcripts.
func NewServer(a *agent.Agent, out io.Writer, transcriptDir string, log zerolog.Logger) *Server {
	return &Server{
		agent:         a,
		transcriptDir: transcriptDir,
		log:           log.With().Str("component", "acp").Logger(),
		sessions:      make(map[string]struct{}),
		out:           bufio.NewWriter(out),
	}
}

// Serve reads requests from in until EOF or ctx is done. Requests are
// handled one at a time in arrival order.
func (s *Server) Serve(ctx context.Context, in io.Reader) error {
	s.log.Info().Msg("starting ACP server")
	reader := bufio.NewReader(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			s.handleLine(ctx, line)
		}
		if err == io.EOF {
			s.log.Info().Msg("EOF received, exiting")
			return nil
		}
		if err != nil {
			return fmt.Errorf("ACP: read error: %w", err)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req jsonrpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Warn().Err(err).Msg("JSON parse error")
		_ = s.writeError(nil, codeParseError, "Parse error", nil)
		return
	}
	s.log.Debug().Str("method", req.Method).Interface("id", req.ID).Msg("dispatching")

	switch req.Method {
	case "initialize":
		s.handleInitialize(&req)
	case "session/new":
		s.handleSessionNew(&req)
	case "session/load":
		s.handleSessionLoad(&req)
	case "session/prompt":
		s.handleSessionPrompt(ctx, &req)
	default:
		if req.ID != nil {
			_ = s.writeError(req.ID, codeMethodNotFound, "Method not found", nil)
		}
	}
}

func (s *Server) write(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to serialize JSON-RPC message: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) writeResult(id, result any) error {
	return s.write(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id any, code int, msg string, data any) error {
	s.log.Debug().Int("code", code).Str("message", msg).Interface("data", data).Msg("error response")
	return s.write(jsonrpcResponse{JSONRPC: "2.0", ID: id, Error: &jsonrpcError{Code: code, Message: msg, Data: data}})
}

func (s *Server) notify(method string, params any) error {
	return s.write(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

func (s *Server) sendChunk(sessionID, kind, text string) error {
	return s.notify("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": kind,
			"content":       map[string]any{"type": "text", "text": text},
		},
	})
}

func (s *Server) handleInitialize(req *jsonrpcRequest) {
	_ = s.writeResult(req.ID, map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

func (s *Server) handleSessionNew(req *jsonrpcRequest) {
	sid := "sess_" + uuid.NewString()
	s.mu.Lock()
	s.sessions[sid] = struct{}{}
	s.mu.Unlock()
	s.log.Info().Str("session", sid).Msg("created session")
	_ = s.writeResult(req.ID, map[string]any{"sessionId": sid})
}

// handleSessionLoad replays a saved query transcript. Planner and analyst
// prompts are not replayed; the user's question and the final analysis are.
func (s *Server) handleSessionLoad(req *jsonrpcRequest) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.SessionID == "" {
		_ = s.writeError(req.ID, codeInvalidParams, "Invalid params", "sessionId is required")
		return
	}
	sess, err := session.Load(s.transcriptDir, p.SessionID)
	if err != nil {
		_ = s.writeError(req.ID, codeInvalidParams, "Invalid params", fmt.Sprintf("session not found: %v", err))
		return
	}
	s.mu.Lock()
	s.sessions[p.SessionID] = struct{}{}
	s.mu.Unlock()

	_ = s.sendChunk(p.SessionID, "user_message_chunk", sess.Query)
	msgs := sess.History()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			_ = s.sendChunk(p.SessionID, "agent_message_chunk", msgs[i].Content)
			break
		}
	}
	_ = s.writeResult(req.ID, json.RawMessage("null"))
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && strings.TrimSpace(b.Text) != "" {
			parts = append(parts, strings.TrimSpace(b.Text))
		}
	}
	return strings.Join(parts, "\n")
}

// handleSessionPrompt answers the prompt text as one query, streaming stage
// changes and the answer as agent_message_chunk updates.
func (s *Server) handleSessionPrompt(ctx context.Context, req *jsonrpcRequest) {
	var p struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		_ = s.writeError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	s.mu.Lock()
	_, ok := s.sessions[p.SessionID]
	s.mu.Unlock()
	if !ok {
		_ = s.writeError(req.ID, codeInvalidParams, "Invalid params", "unknown sessionId")
		return
	}
	query := extractUserText(p.Prompt)
	if query == "" {
		_ = s.writeError(req.ID, codeInvalidParams, "Invalid params", "prompt has no text")
		return
	}

	callbacks := agent.ProcessCallbacks{
		OnStateChange: func(st agent.State, detail string) {
			switch st {
			case agent.StateExecuting, agent.StateSummarizing:
				_ = s.sendChunk(p.SessionID, "agent_message_chunk", fmt.Sprintf("_%s: %s_\n", st, detail))
			}
		},
		OnWarning: func(w string) {
			s.log.Warn().Str("session", p.SessionID).Msg(w)
		},
	}
	res, err := s.agent.ProcessQuery(ctx, query, callbacks)
	if err != nil {
		_ = s.writeError(req.ID, codeInternalError, "Internal error", fmt.Sprintf("error processing query: %v", err))
		return
	}
	_ = s.sendChunk(p.SessionID, "agent_message_chunk", render(res))
	_ = s.writeResult(req.ID, map[string]any{"stopReason": "end_turn"})
}

func render(res *agent.Result) string {
	var sb strings.Builder
	sb.WriteString(res.Answer)
	if len(res.Rankings) > 0 {
		sb.WriteString("\n")
	}
	for _, r := range res.Rankings {
		fmt.Fprintf(&sb, "\n%d. %s (%s): %.1fk, %.2f%%", r.Rank, r.Sector, r.SeriesID, r.GrowthValue, r.GrowthPercent)
	}
	return sb.String()
}
