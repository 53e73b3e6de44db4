// Package agent answers natural-language questions about economic data.
//
// A query runs in three stages. Planning asks the LLM for a JSON execution
// plan naming FRED tool calls, target series and a time range. Executing runs
// those calls through a ToolCaller (normally the MCP client talking to the
// fred-mcp child process); failed steps are skipped and any target series
// still missing is fetched directly. Summarizing computes latest values and
// year-over-year changes for each series and asks the LLM to rank and explain
// them.
//
// Front ends follow progress through ProcessCallbacks:
//
//	res, err := a.ProcessQuery(ctx, "Which sectors added the most jobs?", agent.ProcessCallbacks{
//	    OnStateChange: func(s agent.State, detail string) { ... },
//	    OnWarning:     func(w string) { ... },
//	})
//
// # Subpackages
//
// agent/terminal provides an interactive prompt. agent/acp serves queries to
// editors over the Agent Client Protocol on stdio.
package agent
