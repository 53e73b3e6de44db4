// Package mcp exposes the FRED tools as an MCP server and wraps tools
// advertised by a remote MCP server as tools.Tool values.
package mcp

import (
	"context"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/vishpuri/FRED/fred"
	"github.com/vishpuri/FRED/tools"
)

const (
	ServerName    = "fred"
	ServerVersion = "1.0.0"
)

// NewServer builds an MCP server exposing fred_browse, fred_search,
// fred_get_series and one tool per registered series in seriesTools.
func NewServer(client *fred.Client, seriesTools []string, log zerolog.Logger) (*mcpsdk.Server, error) {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: ServerName, Version: ServerVersion}, nil)

	mcpsdk.AddTool(s, &mcpsdk.Tool{Name: tools.BrowseToolName, Description: tools.BrowseDescription},
		handler(log, tools.BrowseToolName, func(ctx context.Context, in fred.BrowseRequest) (any, error) {
			return client.Browse(ctx, &in)
		}))
	mcpsdk.AddTool(s, &mcpsdk.Tool{Name: tools.SearchToolName, Description: tools.SearchDescription},
		handler(log, tools.SearchToolName, func(ctx context.Context, in fred.SearchRequest) (any, error) {
			return client.Search(ctx, &in)
		}))
	mcpsdk.AddTool(s, &mcpsdk.Tool{Name: tools.GetSeriesToolName, Description: tools.GetSeriesDescription},
		handler(log, tools.GetSeriesToolName, func(ctx context.Context, in fred.SeriesRequest) (any, error) {
			return client.GetSeries(ctx, &in)
		}))

	for _, id := range seriesTools {
		st, err := tools.NewSeriesTool(client, id)
		if err != nil {
			return nil, err
		}
		mcpsdk.AddTool(s, &mcpsdk.Tool{Name: st.Name(), Description: st.Description()},
			handler(log, st.Name(), func(ctx context.Context, in fred.RegisteredSeriesRequest) (any, error) {
				return client.FetchRegisteredSeries(ctx, st.SeriesID(), &in)
			}))
	}
	return s, nil
}

// handler adapts a typed FRED call to a tool handler. Failures are reported
// as isError results carrying the message.
func handler[In any](log zerolog.Logger, name string, call func(context.Context, In) (any, error)) mcpsdk.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[In]) (*mcpsdk.CallToolResultFor[any], error) {
		log.Debug().Str("tool", name).Interface("args", params.Arguments).Msg("tool called")
		out, err := call(ctx, params.Arguments)
		if err == nil {
			var text string
			text, err = tools.Render(out)
			if err == nil {
				log.Debug().Str("tool", name).Msg("tool complete")
				return textResult(text, false), nil
			}
		}
		log.Warn().Err(err).Str("tool", name).Msg("tool failed")
		return textResult(err.Error(), true), nil
	}
}

func textResult(text string, isError bool) *mcpsdk.CallToolResultFor[any] {
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		IsError: isError,
	}
}

// TextOf concatenates the text content of a tool result.
func TextOf(content []mcpsdk.Content) string {
	var sb strings.Builder
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
