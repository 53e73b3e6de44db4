// Command fred-mcp serves the FRED tools over MCP on stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vishpuri/FRED/config"
	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/fred"
	"github.com/vishpuri/FRED/logx"
	"github.com/vishpuri/FRED/tools/mcp"
)

func main() {
	logLevelFlag := flag.String("log-level", "", "Log level: trace, debug, info, warn, error or none")
	flag.Parse()

	if err := run(*logLevelFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error in main(): %+v\n", err)
		os.Exit(1)
	}
}

func run(logLevel string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	log := logx.New(logLevel)

	client, err := fred.NewClient(fred.OptionsFromConfig(cfg), fred.NewRegistry(), log)
	if err != nil {
		return err
	}
	defer client.Close()

	server, err := mcp.NewServer(client, cfg.FRED.SeriesTools, log)
	if err != nil {
		return errors.Wrapf(err, "failed to build MCP server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The client filters on this banner; it must stay on stderr.
	fmt.Fprintln(os.Stderr, "FRED MCP Server running on stdio")
	if err := server.Run(ctx, mcpsdk.NewStdioTransport()); err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "MCP server stopped")
	}
	log.Debug().Msg("FRED MCP server shut down")
	return nil
}
