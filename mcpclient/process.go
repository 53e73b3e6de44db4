package mcpclient

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vishpuri/FRED/config"
	"github.com/vishpuri/FRED/metrics"
)

// Options describes how to launch and greet the child server.
type Options struct {
	Command string
	Args    []string
	// Env entries are either KEY=VALUE or a bare KEY copied from our environment.
	Env []string
	// APIKeyEnv names the variable holding the FRED API key; it is always
	// forwarded to the child when set.
	APIKeyEnv string

	StartupGrace   time.Duration
	RequestTimeout time.Duration
	// BannerFilter suppresses stderr lines containing it.
	BannerFilter string

	ProtocolVersion string
	ClientName      string
	ClientVersion   string
}

// OptionsFromConfig maps the YAML configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	s := cfg.Server
	return Options{
		Command:         s.Command,
		Args:            s.Args,
		Env:             s.Env,
		APIKeyEnv:       cfg.FRED.APIKeyEnv,
		StartupGrace:    s.StartupGrace,
		RequestTimeout:  s.RequestTimeout,
		BannerFilter:    s.BannerFilter,
		ProtocolVersion: s.ProtocolVersion,
		ClientName:      s.ClientName,
		ClientVersion:   s.ClientVersion,
	}
}

func (o *Options) setDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.StartupGrace < 0 {
		o.StartupGrace = 0
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "FRED_API_KEY"
	}
	if o.ProtocolVersion == "" {
		o.ProtocolVersion = "2024-11-05"
	}
	if o.ClientName == "" {
		o.ClientName = "fred-query-app"
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "1.0.0"
	}
}

// process is one spawned child. A Client replaces its process on reconnect,
// so exit handling must check that the exiting process is still current.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex
	killed  atomic.Bool
	done    chan struct{}
	exitErr error
}

func (p *process) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.stdin.Write(data); err != nil {
		return &ProcessError{Op: "write", Err: err}
	}
	return nil
}

func (p *process) kill() {
	p.killed.Store(true)
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// buildEnv returns base extended with vars. Entries without '=' are looked up
// in base. The API key variable is forwarded explicitly.
func buildEnv(base, vars []string, apiKeyEnv string) []string {
	lookup := func(k string) (string, bool) {
		for i := len(base) - 1; i >= 0; i-- {
			if v, ok := strings.CutPrefix(base[i], k+"="); ok {
				return v, true
			}
		}
		return "", false
	}
	out := append([]string(nil), base...)
	for _, v := range vars {
		if strings.Contains(v, "=") {
			out = append(out, v)
			continue
		}
		if val, ok := lookup(v); ok {
			out = append(out, fmt.Sprintf("%s=%s", v, val))
		}
	}
	if val, ok := lookup(apiKeyEnv); ok && val != "" {
		out = append(out, fmt.Sprintf("%s=%s", apiKeyEnv, val))
	}
	return out
}

// spawn starts the child and its reader goroutines. The returned process is
// already installed as current.
func (c *Client) spawn() (*process, error) {
	cmd := exec.Command(c.opts.Command, c.opts.Args...)
	cmd.Env = buildEnv(os.Environ(), c.opts.Env, c.opts.APIKeyEnv)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &ProcessError{Op: "spawn", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessError{Op: "spawn", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProcessError{Op: "spawn", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{Op: "spawn", Err: err}
	}
	c.log.Info().Str("command", c.opts.Command).Int("pid", cmd.Process.Pid).Msg("started FRED MCP server")

	p := &process{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	c.mu.Lock()
	c.proc = p
	c.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		c.readStdout(p, stdout)
	}()
	go func() {
		defer readers.Done()
		c.readStderr(stderr)
	}()
	go func() {
		// Wait must not run before the pipes are drained.
		readers.Wait()
		p.exitErr = cmd.Wait()
		close(p.done)
		c.handleExit(p)
	}()
	return p, nil
}

func (c *Client) readStdout(p *process, r io.Reader) {
	framer := NewFramer(c.log)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, msg := range framer.Feed(buf[:n]) {
				c.dispatch(p, msg)
			}
		}
		if err != nil {
			if rest := framer.Buffered(); len(rest) > 0 {
				c.log.Debug().Int("bytes", len(rest)).Msg("discarding partial line at EOF")
			}
			return
		}
	}
}

func (c *Client) readStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if c.opts.BannerFilter != "" && strings.Contains(line, c.opts.BannerFilter) {
			c.log.Debug().Str("stderr", line).Msg("MCP server banner")
			continue
		}
		c.log.Warn().Str("stderr", line).Msg("MCP server error output")
	}
}

// handleExit runs once per process after it has been reaped.
func (c *Client) handleExit(p *process) {
	c.mu.Lock()
	current := c.proc == p
	if current {
		c.proc = nil
		c.state.Store(int32(Disconnected))
	}
	c.mu.Unlock()

	if p.killed.Load() {
		metrics.RecordChildExit("killed")
		c.log.Debug().Msg("MCP server stopped")
		return
	}

	reason := "exit"
	if p.exitErr != nil {
		reason = "crash"
	}
	metrics.RecordChildExit(reason)
	c.log.Warn().Err(p.exitErr).Bool("current", current).Msg("MCP server exited")
	if !current {
		return
	}
	if n := c.pending.RejectAll(&ProcessError{Op: "exited", Err: p.exitErr}); n > 0 {
		c.log.Warn().Int("pending", n).Msg("failed pending requests after MCP server exit")
	}
}
