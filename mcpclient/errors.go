package mcpclient

import (
	"fmt"

	"github.com/vishpuri/FRED/errors"
)

var (
	// ErrNotConnected is returned when a request is attempted without a live child process.
	ErrNotConnected = errors.Sentinel("MCP client not connected")
	// ErrDisconnected fails requests that were pending when Disconnect was called.
	ErrDisconnected = errors.Sentinel("MCP client disconnected")
	// ErrNoTextContent means a tool result carried no text element.
	ErrNoTextContent = errors.Sentinel("tool result has no text content")
)

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("MCP Error %d: %s", e.Code, e.Message)
}

// TimeoutError reports a request that received no response before its deadline.
type TimeoutError struct {
	Method string
	ID     int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("MCP request timeout for %s (ID: %d)", e.Method, e.ID)
}

// ProcessError reports a failure of the child process: spawn failure, a broken
// pipe, or an unexpected exit.
type ProcessError struct {
	Op  string
	Err error
}

func (e *ProcessError) Error() string {
	if e.Err == nil {
		return "MCP process " + e.Op
	}
	return fmt.Sprintf("MCP process %s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ToolError carries the text of a tool result flagged isError.
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string {
	return "tool error: " + e.Message
}
