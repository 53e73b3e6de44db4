// Command fredquery answers natural-language questions about economic data
// using an LLM and the FRED MCP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vishpuri/FRED/agent"
	"github.com/vishpuri/FRED/agent/acp"
	"github.com/vishpuri/FRED/agent/terminal"
	"github.com/vishpuri/FRED/api"
	"github.com/vishpuri/FRED/config"
	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/fred"
	"github.com/vishpuri/FRED/llm"
	"github.com/vishpuri/FRED/logx"
	"github.com/vishpuri/FRED/mcpclient"
	"github.com/vishpuri/FRED/metrics"
	"github.com/vishpuri/FRED/tools"
	"github.com/vishpuri/FRED/tools/mcp"
)

type options struct {
	httpAddr string
	acp      bool
	logLevel string
	query    string
}

func main() {
	httpFlag := flag.String("http", "", "Serve the HTTP API on this address (e.g. :3000)")
	acpFlag := flag.Bool("acp", false, "Serve the Agent Client Protocol on stdio")
	logLevelFlag := flag.String("log-level", "", "Log level: trace, debug, info, warn, error or none")
	flag.Parse()

	opts := options{
		httpAddr: *httpFlag,
		acp:      *acpFlag,
		logLevel: *logLevelFlag,
		query:    strings.Join(flag.Args(), " "),
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrapf(err, "error loading configuration")
	}
	if opts.logLevel == "" {
		opts.logLevel = cfg.LogLevel
	}
	log := logx.New(opts.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := mcpclient.New(mcpclient.OptionsFromConfig(cfg), log)
	defer session.Disconnect()
	if err := session.Connect(ctx); err != nil {
		return errors.Wrapf(err, "failed to connect to FRED MCP server")
	}
	if info := session.ServerInfo(); len(info) > 0 {
		log.Info().RawJSON("server", info).Msg("connected to FRED MCP server")
	}

	client, err := llm.New(ctx, cfg.LLMClient, cfg.Model)
	if err != nil {
		return errors.Wrapf(err, "error initializing %s client", cfg.LLMClient)
	}

	registry := fred.NewRegistry()
	a, err := agent.New(cfg, client, session, registry, log)
	if err != nil {
		return errors.Wrapf(err, "error initializing agent")
	}

	if opts.httpAddr != "" {
		return serveHTTP(ctx, cfg, opts.httpAddr, a, session, registry, log)
	}

	// Stdin reads do not observe ctx, so a signal ends the process here.
	done := make(chan struct{})
	defer close(done)
	go func() {
		<-ctx.Done()
		select {
		case <-done:
			return
		default:
		}
		log.Info().Msg("signal received, stopping FRED MCP server")
		session.Disconnect()
		os.Exit(0)
	}()

	switch {
	case opts.acp:
		srv := acp.NewServer(a, os.Stdout, "", log)
		return srv.Serve(ctx, os.Stdin)
	default:
		fmt.Println("FRED query agent is ready. Ask a question about the economy.")
		return terminal.New(a).Run(ctx, opts.query)
	}
}

func serveHTTP(ctx context.Context, cfg *config.Config, addr string, a *agent.Agent, session *mcpclient.Client, registry *fred.Registry, log zerolog.Logger) error {
	fredClient, err := fred.NewClient(fred.OptionsFromConfig(cfg), registry, log)
	if err != nil {
		return err
	}
	defer fredClient.Close()

	toolReg := tools.NewToolRegistry()
	n, err := mcp.RegisterRemoteTools(ctx, toolReg, session)
	if err != nil {
		return errors.Wrapf(err, "failed to list MCP tools")
	}
	log.Info().Int("tools", n).Msg("registered MCP tools")

	promReg := prometheus.NewRegistry()
	metrics.Register(promReg)

	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(api.Deps{
			FRED:           fredClient,
			Tools:          toolReg,
			Agent:          a,
			MCP:            session,
			Gatherer:       promReg,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
