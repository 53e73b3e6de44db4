package mcp

import (
	"context"

	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/mcpclient"
	"github.com/vishpuri/FRED/tools"
)

// RemoteTool is a tool advertised by the MCP server behind a session.
type RemoteTool struct {
	name        string
	description string
	session     *mcpclient.Client
}

// RegisterRemoteTools lists the session's tools and registers each one.
// It returns the number of tools registered.
func RegisterRemoteTools(ctx context.Context, r *tools.ToolRegistry, session *mcpclient.Client) (int, error) {
	list, err := session.ListTools(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to list tools from MCP server")
	}
	for _, t := range list {
		r.Register(&RemoteTool{name: t.Name, description: t.Description, session: session})
	}
	return len(list), nil
}

func (t *RemoteTool) Name() string        { return t.name }
func (t *RemoteTool) Description() string { return t.description }

// Execute calls the tool through the session and returns its text payload.
func (t *RemoteTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	res, err := t.session.CallTool(ctx, t.name, args)
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.name)
	}
	return res.Text()
}
