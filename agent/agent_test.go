package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishpuri/FRED/config"
	"github.com/vishpuri/FRED/llm"
	"github.com/vishpuri/FRED/mcpclient"
)

type call struct {
	name string
	args map[string]any
}

type fakeCaller struct {
	mu      sync.Mutex
	calls   []call
	respond func(name string, args map[string]any) (*mcpclient.ToolResult, error)
}

func (f *fakeCaller) CallTool(ctx context.Context, name string, args map[string]any) (*mcpclient.ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: args})
	f.mu.Unlock()
	return f.respond(name, args)
}

func (f *fakeCaller) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.name)
	}
	return out
}

func text(s string) *mcpclient.ToolResult {
	return &mcpclient.ToolResult{Content: []mcpclient.ContentItem{{Type: "text", Text: s}}}
}

func seriesPayload(id string) string {
	return fmt.Sprintf(`{"series_id":%q,"data":[
		{"date":"2023-12-01","value":100},
		{"date":"2024-06-01","value":null},
		{"date":"2024-12-01","value":105}]}`, id)
}

// seriesCaller serves every get-series call from seriesPayload.
func seriesCaller() *fakeCaller {
	return &fakeCaller{respond: func(name string, args map[string]any) (*mcpclient.ToolResult, error) {
		if name == "fred_get_series" {
			return text(seriesPayload(args["series_id"].(string))), nil
		}
		return nil, fmt.Errorf("unexpected tool %s", name)
	}}
}

const summaryReply = `{"answer":"Manufacturing grew fastest","rankings":[{"rank":1,"sector":"Manufacturing","series_id":"MANEMP","growth_value":5,"growth_percent":5}],"methodology":"year over year"}`

func newTestAgent(t *testing.T, caller ToolCaller, replies ...string) (*Agent, *llm.MockLLMClient) {
	t.Helper()
	cfg := config.Default()
	mock := &llm.MockLLMClient{Replies: replies}
	a, err := New(cfg, mock, caller, nil, zerolog.Nop())
	require.NoError(t, err)
	return a, mock
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := config.Default()
	_, err := New(cfg, nil, seriesCaller(), nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(cfg, &llm.MockLLMClient{}, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestParsePlan(t *testing.T) {
	t.Run("fenced", func(t *testing.T) {
		reply := "Here is the plan:\n```json\n{\"intent\":\"rank sectors\",\"mcp_steps\":[{\"tool\":\"fred_series\",\"params\":{\"series_id\":\"MANEMP\"}}],\"target_series\":[\"MANEMP\"],\"time_range\":{\"start\":\"2023-01-01\",\"end\":\"2024-12-31\"}}\n```"
		p, err := parsePlan(reply)
		require.NoError(t, err)
		assert.Equal(t, "rank sectors", p.Intent)
		require.Len(t, p.Steps, 1)
		assert.Equal(t, "fred_get_series", p.Steps[0].Tool)
		assert.Equal(t, []string{"MANEMP"}, p.TargetSeries)
		assert.Equal(t, "2023-01-01", p.TimeRange.Start)
	})

	t.Run("prose around object", func(t *testing.T) {
		p, err := parsePlan(`Sure. {"intent":"x","mcp_steps":[],"target_series":[],"time_range":{}} Done.`)
		require.NoError(t, err)
		assert.Empty(t, p.Steps)
		assert.Empty(t, p.TargetSeries)
	})

	for name, reply := range map[string]string{
		"not json":      "I cannot help with that",
		"no intent":     `{"mcp_steps":[]}`,
		"no steps":      `{"intent":"x"}`,
		"null steps":    `{"intent":"x","mcp_steps":null}`,
		"wrong steps":   `{"intent":"x","mcp_steps":"all"}`,
		"broken object": `{"intent":"x",`,
		"no targets":    `{"intent":"x","mcp_steps":[],"time_range":{}}`,
		"null targets":  `{"intent":"x","mcp_steps":[],"target_series":null,"time_range":{}}`,
		"no time range": `{"intent":"x","mcp_steps":[],"target_series":[]}`,
		"null range":    `{"intent":"x","mcp_steps":[],"target_series":[],"time_range":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parsePlan(reply)
			assert.ErrorIs(t, err, ErrPlanParse)
		})
	}
}

func TestStepArgsValidates(t *testing.T) {
	args, err := stepArgs(PlanStep{Tool: "fred_search", Params: map[string]any{"search_text": "jobs", "limit": 5}})
	require.NoError(t, err)
	assert.Equal(t, "jobs", args["search_text"])
	assert.EqualValues(t, 5, args["limit"])

	_, err = stepArgs(PlanStep{Tool: "fred_get_series", Params: map[string]any{"observation_start": "2024"}})
	assert.Error(t, err)

	_, err = stepArgs(PlanStep{Tool: "fred_get_series", Params: map[string]any{"series_id": 42}})
	assert.Error(t, err)

	params := map[string]any{"start_date": "2024-01-01"}
	args, err = stepArgs(PlanStep{Tool: "CPIAUCSL", Params: params})
	require.NoError(t, err)
	assert.Equal(t, params, args)
}

func TestComputeChange(t *testing.T) {
	change, pct := ComputeChange(105, 100)
	assert.InDelta(t, 5, change, 1e-9)
	assert.InDelta(t, 5, pct, 1e-9)

	change, pct = ComputeChange(5, 0)
	assert.InDelta(t, 5, change, 1e-9)
	assert.Zero(t, pct)
}

func TestSummaries(t *testing.T) {
	data := newRetrievedData()
	data.Add(&SeriesData{ID: "MANEMP", Title: "Manufacturing Employment", Raw: seriesPayload("MANEMP")})
	data.Add(&SeriesData{ID: "UPSTREAM", Title: "Upstream", Raw: `{"observations":[
		{"date":"2022-01-01","value":"200"},
		{"date":"2023-01-01","value":"."},
		{"date":"2024-01-01","value":"210"}]}`})
	data.Add(&SeriesData{ID: "EMPTY", Raw: `{"data":[{"date":"2024-01-01","value":null}]}`})

	sums := Summaries(data)
	require.Len(t, sums, 2)

	assert.Equal(t, "MANEMP", sums[0].SeriesID)
	assert.Equal(t, 105.0, sums[0].LatestValue)
	assert.Equal(t, "2024-12-01", sums[0].LatestDate)
	assert.InDelta(t, 5, sums[0].AbsoluteChange, 1e-9)
	assert.InDelta(t, 5, sums[0].PercentChange, 1e-9)

	// No observation exactly one year before the latest.
	assert.Equal(t, "UPSTREAM", sums[1].SeriesID)
	assert.Equal(t, 210.0, sums[1].LatestValue)
	assert.Zero(t, sums[1].AbsoluteChange)
	assert.Zero(t, sums[1].PercentChange)
}

func TestFormatSummary(t *testing.T) {
	line := formatSummary(SeriesSummary{
		SeriesID: "MANEMP", Title: "Manufacturing Employment",
		LatestValue: 12945, LatestDate: "2024-12-01",
		AbsoluteChange: 12.34, PercentChange: 0.0954,
	})
	assert.Equal(t, "MANEMP (Manufacturing Employment):\n  - Latest: 12,945 (2024-12-01)\n  - Annual change: +12.3k (0.10%)", line)

	line = formatSummary(SeriesSummary{SeriesID: "USGOV", Title: "Government Employment", AbsoluteChange: -3})
	assert.Contains(t, line, "Annual change: -3.0k (0.00%)")
}

func TestExecuteSearchAndDirectSteps(t *testing.T) {
	caller := &fakeCaller{respond: func(name string, args map[string]any) (*mcpclient.ToolResult, error) {
		switch name {
		case "fred_search":
			return text(`{"total_results":7,"results":[
				{"id":"A1","title":"Alpha"},{"id":"A2","title":"Beta"},{"id":"A3"},
				{"id":"A4"},{"id":"A5"},{"id":"A6"},{"id":"A7"}]}`), nil
		case "fred_get_series":
			return text(seriesPayload(args["series_id"].(string))), nil
		}
		return nil, fmt.Errorf("unexpected tool %s", name)
	}}
	a, _ := newTestAgent(t, caller)

	plan := &Plan{
		Intent: "rank",
		Steps: []PlanStep{
			{Tool: "fred_search", Params: map[string]any{"search_text": "employment"}, Purpose: "find"},
			{Tool: "fred_get_series", Params: map[string]any{"series_id": "a1"}, Purpose: "again"},
		},
		TimeRange: TimeRange{Start: "2024-01-01", End: "2024-12-31"},
	}
	data, err := a.Execute(context.Background(), plan, ProcessCallbacks{})
	require.NoError(t, err)

	require.Equal(t, 5, data.Len())
	first := data.Series()[0]
	assert.Equal(t, "A1", first.ID)
	assert.Equal(t, "Alpha", first.Title)
	assert.Equal(t, "find", first.Purpose)

	caller.mu.Lock()
	defer caller.mu.Unlock()
	require.Len(t, caller.calls, 7)
	fetch := caller.calls[1]
	assert.Equal(t, "fred_get_series", fetch.name)
	assert.Equal(t, "A1", fetch.args["series_id"])
	assert.Equal(t, 50, fetch.args["limit"])
	assert.Equal(t, "2024-01-01", fetch.args["observation_start"])
	assert.Equal(t, "2024-12-31", fetch.args["observation_end"])
}

func TestExecuteSkipsFailuresAndFillsTargets(t *testing.T) {
	caller := &fakeCaller{respond: func(name string, args map[string]any) (*mcpclient.ToolResult, error) {
		if name == "fred_search" {
			return nil, errors.New("MCP request timeout: tools/call (id: 3)")
		}
		if args["series_id"] == "USGOV" {
			return &mcpclient.ToolResult{IsError: true, Content: []mcpclient.ContentItem{{Type: "text", Text: "boom"}}}, nil
		}
		return text(seriesPayload(args["series_id"].(string))), nil
	}}
	a, _ := newTestAgent(t, caller)

	var warnings []string
	plan := &Plan{
		Intent: "rank",
		Steps: []PlanStep{
			{Tool: "fred_search", Params: map[string]any{"search_text": "jobs"}},
			{Tool: "shell_exec", Params: map[string]any{"cmd": "ls"}},
			{Tool: "fred_get_series", Params: map[string]any{"series_id": "MANEMP"}, Purpose: "planned"},
		},
		TargetSeries: []string{"MANEMP", "uslah", "USGOV"},
	}
	data, err := a.Execute(context.Background(), plan, ProcessCallbacks{
		OnWarning: func(w string) { warnings = append(warnings, w) },
	})
	require.NoError(t, err)

	series := data.Series()
	require.Len(t, series, 2)
	assert.Equal(t, "MANEMP", series[0].ID)
	assert.Equal(t, "planned", series[0].Purpose)
	assert.Equal(t, "Manufacturing Employment", series[0].Title)
	assert.Equal(t, "USLAH", series[1].ID)
	assert.Equal(t, "Leisure & Hospitality Employment", series[1].Title)
	assert.Equal(t, "Employment sector analysis", series[1].Purpose)

	assert.NotContains(t, caller.names(), "shell_exec")
	assert.Len(t, warnings, 3)
}

func TestExecuteNoData(t *testing.T) {
	caller := &fakeCaller{respond: func(string, map[string]any) (*mcpclient.ToolResult, error) {
		return nil, errors.New("disconnected")
	}}
	a, _ := newTestAgent(t, caller)
	_, err := a.Execute(context.Background(), &Plan{Intent: "x", TargetSeries: []string{"MANEMP"}}, ProcessCallbacks{})
	assert.ErrorIs(t, err, ErrNoData)
	assert.EqualError(t, err, "No data retrieved from FRED MCP server")
}

func TestProcessQuery(t *testing.T) {
	plan := `{"intent":"rank sectors","query_type":"sector_analysis","mcp_steps":[],"target_series":["MANEMP"],"time_range":{"start":"2023-01-01","end":"2024-12-31"}}`
	a, mock := newTestAgent(t, seriesCaller(), "```json\n"+plan+"\n```", summaryReply)

	var states []State
	res, err := a.ProcessQuery(context.Background(), "Which sector grew most?", ProcessCallbacks{
		OnStateChange: func(s State, _ string) { states = append(states, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, []State{StatePlanning, StateExecuting, StateSummarizing, StateDone}, states)
	assert.True(t, res.Success)
	assert.Equal(t, "Which sector grew most?", res.Query)
	assert.Equal(t, "Manufacturing grew fastest", res.Answer)
	assert.Equal(t, "llm_agent_mcp", res.Analysis.Method)
	assert.Equal(t, "year over year", res.Analysis.Methodology)
	require.Len(t, res.Rankings, 1)
	assert.Equal(t, "MANEMP", res.Rankings[0].SeriesID)
	require.Len(t, res.RawDataSummary, 1)
	assert.InDelta(t, 5, res.RawDataSummary[0].PercentChange, 1e-9)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0][1].Content, `Query: "Which sector grew most?"`)
	assert.Contains(t, calls[0][1].Content, "- MANEMP: Manufacturing Employment")
	assert.Contains(t, calls[0][0].Content, "- fred_search: Search for FRED series")
	assert.Equal(t, summarySystemPrompt, calls[1][0].Content)
	assert.Contains(t, calls[1][1].Content, "MANEMP (Manufacturing Employment):\n  - Latest: 105 (2024-12-01)\n  - Annual change: +5.0k (5.00%)")
}

func TestProcessQueryFailures(t *testing.T) {
	t.Run("plan not json", func(t *testing.T) {
		a, _ := newTestAgent(t, seriesCaller(), "no plan today")
		var states []State
		_, err := a.ProcessQuery(context.Background(), "q", ProcessCallbacks{
			OnStateChange: func(s State, _ string) { states = append(states, s) },
		})
		assert.ErrorIs(t, err, ErrPlanParse)
		assert.Equal(t, []State{StatePlanning, StateFailed}, states)
	})

	t.Run("summary not json", func(t *testing.T) {
		plan := `{"intent":"x","mcp_steps":[],"target_series":["MANEMP"],"time_range":{}}`
		a, _ := newTestAgent(t, seriesCaller(), plan, "It went up.")
		_, err := a.ProcessQuery(context.Background(), "q", ProcessCallbacks{})
		assert.ErrorIs(t, err, ErrSummaryParse)
	})

	t.Run("summary missing fields", func(t *testing.T) {
		plan := `{"intent":"x","mcp_steps":[],"target_series":["MANEMP"],"time_range":{}}`
		for _, reply := range []string{
			`{}`,
			`{"unrelated":true}`,
			`{"answer":"up","rankings":[]}`,
			`{"answer":"up","rankings":null,"methodology":"yoy"}`,
		} {
			a, _ := newTestAgent(t, seriesCaller(), plan, reply)
			var states []State
			res, err := a.ProcessQuery(context.Background(), "q", ProcessCallbacks{
				OnStateChange: func(s State, _ string) { states = append(states, s) },
			})
			assert.ErrorIs(t, err, ErrSummaryParse, reply)
			assert.Nil(t, res, reply)
			assert.Equal(t, StateFailed, states[len(states)-1], reply)
		}
	})

	t.Run("llm error", func(t *testing.T) {
		a, mock := newTestAgent(t, seriesCaller())
		mock.Err = errors.New("rate limited")
		_, err := a.ProcessQuery(context.Background(), "q", ProcessCallbacks{})
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "failed to create execution plan"))
	})
}

func TestTranscriptSaved(t *testing.T) {
	dir := t.TempDir()
	plan := `{"intent":"x","mcp_steps":[],"target_series":["MANEMP"],"time_range":{}}`
	a, _ := newTestAgent(t, seriesCaller(), plan, summaryReply)
	a.transcripts = true
	a.SetTranscriptDir(dir)

	res, err := a.ProcessQuery(context.Background(), "q", ProcessCallbacks{})
	require.NoError(t, err)
	assert.FileExists(t, dir+"/sessions/"+res.SessionID+".json")
}

func TestPresent(t *testing.T) {
	res := &Result{
		Success:  true,
		Answer:   "Manufacturing grew fastest",
		Analysis: Analysis{Method: "llm_agent_mcp", Methodology: "year over year"},
		Rankings: []Ranking{
			{Rank: 1, Sector: "Manufacturing", SeriesID: "MANEMP", GrowthValue: 5, GrowthPercent: 5},
			{Rank: 2, Sector: "Government", SeriesID: "USGOV", GrowthValue: 1.5, GrowthPercent: 0.25},
		},
		RawDataSummary: []SeriesSummary{{SeriesID: "MANEMP"}},
		Plan:           &Plan{Steps: []PlanStep{{Tool: "fred_search"}}},
		SeriesCount:    2,
	}
	out := Present(res)
	assert.True(t, out.Success)
	assert.Equal(t, "llm_agent_with_mcp", out.Analysis.Method)
	assert.Equal(t, "llm_agent_mcp", out.Analysis.Reasoning)
	assert.Equal(t, ResponseSeries{ID: "LLM_AGENT_ANALYSIS", Title: res.Answer}, out.Series)
	require.Len(t, out.Data, 2)
	assert.Equal(t, DataPoint{Date: "Result-2", Value: 1.5, Category: "Government", Metric: "0.25%", Source: "USGOV"}, out.Data[1])
	assert.Equal(t, "intelligent_analysis", out.Metadata.QueryType)
	assert.Len(t, out.Metadata.ExecutionPlan, 1)
	assert.Equal(t, DataQuality{SeriesRetrieved: 2, SeriesWithData: 1}, out.Metadata.DataQuality)
	assert.Equal(t, "year over year", out.Metadata.Findings)
}
