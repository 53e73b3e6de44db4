package mcpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It is re-executed as the child MCP
// server by the tests below. Behavior for tools/call depends on the tool name.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if path := os.Getenv("HELPER_STARTS"); path != "" {
		f, _ := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		fmt.Fprintln(f, os.Getpid())
		f.Close()
	}
	if os.Getenv("HELPER_MODE") == "exit" {
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "FRED MCP Server running on stdio")

	in := bufio.NewScanner(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	reply := func(id json.RawMessage, result any) {
		data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
		out.Write(append(data, '\n'))
		out.Flush()
	}
	text := func(s string) map[string]any {
		return map[string]any{"content": []map[string]any{{"type": "text", "text": s}}}
	}

	for in.Scan() {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			} `json:"params"`
		}
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			continue
		}
		switch req.Method {
		case "initialize":
			switch os.Getenv("HELPER_MODE") {
			case "badinit":
				data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32600, "message": "unsupported protocol"}})
				out.Write(append(data, '\n'))
				out.Flush()
				continue
			case "silentinit":
				continue
			case "slowinit":
				time.Sleep(300 * time.Millisecond)
			}
			reply(req.ID, map[string]any{"protocolVersion": "2024-11-05", "serverInfo": map[string]any{"name": "fred"}})
		case "tools/list":
			reply(req.ID, map[string]any{"tools": []map[string]any{{"name": "fred_search"}, {"name": "fred_get_series"}}})
		case "tools/call":
			switch req.Params.Name {
			case "hang":
			case "crash":
				os.Exit(3)
			case "fail":
				data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32602, "message": "bad args"}})
				out.Write(append(data, '\n'))
				out.Flush()
			case "tool_error":
				res := text("upstream exploded")
				res["isError"] = true
				reply(req.ID, res)
			case "empty":
				reply(req.ID, map[string]any{"content": []any{}})
			case "ping":
				out.WriteString(`{"jsonrpc":"2.0","id":9001,"method":"ping"}` + "\n")
				out.Flush()
				if !in.Scan() {
					os.Exit(4)
				}
				var resp struct {
					Error struct {
						Code int `json:"code"`
					} `json:"error"`
				}
				_ = json.Unmarshal(in.Bytes(), &resp)
				reply(req.ID, text(fmt.Sprint(resp.Error.Code)))
			case "garbage":
				out.WriteString("this is not json\n")
				out.WriteString(`{"jsonrpc":"2.0","method":"notifications/message","params":{}}` + "\n")
				data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": text("survived")})
				half := len(data) / 2
				out.Write(data[:half])
				out.Flush()
				time.Sleep(20 * time.Millisecond)
				out.Write(append(data[half:], '\n'))
				out.Flush()
			default:
				args, _ := json.Marshal(req.Params.Arguments)
				reply(req.ID, text(string(args)))
			}
		}
	}
	os.Exit(0)
}

func newHelperClient(t *testing.T, timeout time.Duration, env ...string) *Client {
	t.Helper()
	c := New(Options{
		Command:        os.Args[0],
		Args:           []string{"-test.run=TestHelperProcess", "--"},
		Env:            append([]string{"GO_WANT_HELPER_PROCESS=1"}, env...),
		StartupGrace:   10 * time.Millisecond,
		RequestTimeout: timeout,
		BannerFilter:   "FRED MCP Server",
	}, zerolog.Nop())
	t.Cleanup(c.Disconnect)
	return c
}

func TestConnectAndCallTool(t *testing.T) {
	c := newHelperClient(t, 5*time.Second)
	ctx := context.Background()
	assert.Equal(t, Disconnected, c.State())

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, Connected, c.State())
	assert.Contains(t, string(c.ServerInfo()), `"fred"`)

	res, err := c.CallTool(ctx, "fred_search", map[string]any{"search_text": "gdp"})
	require.NoError(t, err)
	txt, err := res.Text()
	require.NoError(t, err)
	assert.JSONEq(t, `{"search_text":"gdp"}`, txt)

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "fred_search", tools[0].Name)
	assert.Equal(t, 0, c.Pending())
}

func TestConcurrentConnectSpawnsOnce(t *testing.T) {
	starts := t.TempDir() + "/starts"
	c := newHelperClient(t, 5*time.Second, "HELPER_STARTS="+starts)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Connect(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, c.Connect(context.Background()))

	data, err := os.ReadFile(starts)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestRemoteErrorResponse(t *testing.T) {
	c := newHelperClient(t, 5*time.Second)
	_, err := c.CallTool(context.Background(), "fail", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.Equal(t, "MCP Error -32602: bad args", err.Error())
	assert.Equal(t, Connected, c.State())
}

func TestToolResultErrors(t *testing.T) {
	c := newHelperClient(t, 5*time.Second)
	ctx := context.Background()

	res, err := c.CallTool(ctx, "tool_error", nil)
	require.NoError(t, err)
	_, err = res.Text()
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "upstream exploded", toolErr.Message)

	res, err = c.CallTool(ctx, "empty", nil)
	require.NoError(t, err)
	_, err = res.Text()
	assert.ErrorIs(t, err, ErrNoTextContent)
}

func TestTimeoutKeepsSessionUsable(t *testing.T) {
	c := newHelperClient(t, 300*time.Millisecond)
	ctx := context.Background()

	_, err := c.CallTool(ctx, "hang", nil)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "tools/call", te.Method)
	assert.Contains(t, err.Error(), "MCP request timeout for tools/call (ID: ")

	assert.Equal(t, Connected, c.State())
	assert.Equal(t, 0, c.Pending())

	res, err := c.CallTool(ctx, "fred_get_series", map[string]any{"series_id": "UNRATE"})
	require.NoError(t, err)
	txt, err := res.Text()
	require.NoError(t, err)
	assert.Contains(t, txt, "UNRATE")
}

func TestContextCancelAbandonsRequest(t *testing.T) {
	c := newHelperClient(t, 10*time.Second)
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.CallTool(ctx, "hang", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Pending())
}

func TestServerRequestIsRefused(t *testing.T) {
	c := newHelperClient(t, 5*time.Second)
	res, err := c.CallTool(context.Background(), "ping", nil)
	require.NoError(t, err)
	txt, err := res.Text()
	require.NoError(t, err)
	assert.Equal(t, "-32601", txt)
}

func TestMalformedAndChunkedOutput(t *testing.T) {
	c := newHelperClient(t, 5*time.Second)
	res, err := c.CallTool(context.Background(), "garbage", nil)
	require.NoError(t, err)
	txt, err := res.Text()
	require.NoError(t, err)
	assert.Equal(t, "survived", txt)
}

func TestCrashRejectsPending(t *testing.T) {
	c := newHelperClient(t, 10*time.Second)
	_, err := c.CallTool(context.Background(), "crash", nil)
	var pe *ProcessError
	require.ErrorAs(t, err, &pe)
	require.Eventually(t, func() bool { return c.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, c.Pending())
}

func TestDisconnectRejectsPendingAndReconnects(t *testing.T) {
	c := newHelperClient(t, 10*time.Second)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.CallTool(ctx, "hang", nil)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	c.Disconnect()
	assert.ErrorIs(t, <-errCh, ErrDisconnected)
	assert.Equal(t, Disconnected, c.State())
	c.Disconnect()

	// the next call brings a fresh child up
	res, err := c.CallTool(ctx, "fred_search", map[string]any{"search_text": "cpi"})
	require.NoError(t, err)
	txt, err := res.Text()
	require.NoError(t, err)
	assert.Contains(t, txt, "cpi")
	assert.Equal(t, Connected, c.State())
}

func TestConnectFailures(t *testing.T) {
	c := New(Options{Command: "/nonexistent/fred-mcp"}, zerolog.Nop())
	err := c.Connect(context.Background())
	var pe *ProcessError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, Disconnected, c.State())

	exiting := newHelperClient(t, time.Second, "HELPER_MODE=exit")
	require.Error(t, exiting.Connect(context.Background()))
	assert.Equal(t, Disconnected, exiting.State())
}

func TestHandshakeFailures(t *testing.T) {
	t.Run("remote error", func(t *testing.T) {
		c := newHelperClient(t, 5*time.Second, "HELPER_MODE=badinit")
		err := c.Connect(context.Background())
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, -32600, rpcErr.Code)
		assert.Equal(t, Disconnected, c.State())
		assert.Equal(t, 0, c.Pending())
		assert.Nil(t, c.ServerInfo())
	})

	t.Run("no reply", func(t *testing.T) {
		c := newHelperClient(t, 200*time.Millisecond, "HELPER_MODE=silentinit")
		err := c.Connect(context.Background())
		var te *TimeoutError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "initialize", te.Method)
		assert.Equal(t, Disconnected, c.State())
		assert.Equal(t, 0, c.Pending())
	})
}

func TestConnectOutlivesFirstCallerContext(t *testing.T) {
	c := newHelperClient(t, 5*time.Second, "HELPER_MODE=slowinit")

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	shortErr := make(chan error, 1)
	go func() { shortErr <- c.Connect(short) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Connect(context.Background()))
	assert.ErrorIs(t, <-shortErr, context.DeadlineExceeded)
	assert.Equal(t, Connected, c.State())

	res, err := c.CallTool(context.Background(), "fred_search", map[string]any{"search_text": "gdp"})
	require.NoError(t, err)
	txt, err := res.Text()
	require.NoError(t, err)
	assert.Contains(t, txt, "gdp")
}

func TestDisconnectDuringConnectNeverLeavesConnectedWithoutProcess(t *testing.T) {
	for i := 0; i < 8; i++ {
		c := newHelperClient(t, 5*time.Second)
		done := make(chan error, 1)
		go func() { done <- c.Connect(context.Background()) }()

		time.Sleep(time.Duration(i*4) * time.Millisecond)
		c.Disconnect()
		<-done

		if c.State() == Connected {
			assert.NotNil(t, c.current(), "iteration %d", i)
			assert.NotNil(t, c.ServerInfo(), "iteration %d", i)
		}
	}
}

func TestBuildEnv(t *testing.T) {
	base := []string{"PATH=/bin", "FRED_API_KEY=secret", "HOME=/root"}
	env := buildEnv(base, []string{"HOME", "EXTRA=1", "MISSING"}, "FRED_API_KEY")
	assert.Contains(t, env, "HOME=/root")
	assert.Contains(t, env, "EXTRA=1")
	assert.Contains(t, env, "FRED_API_KEY=secret")
	for _, e := range env {
		assert.False(t, strings.HasPrefix(e, "MISSING"), "unset bare keys must be skipped")
	}
}
