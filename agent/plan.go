package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vishpuri/FRED/fred"
	"github.com/vishpuri/FRED/session"
	"github.com/vishpuri/FRED/tools"
)

// PlanStep is one tool invocation requested by the planner.
type PlanStep struct {
	Tool    string         `json:"tool"`
	Params  map[string]any `json:"params"`
	Purpose string         `json:"purpose"`
}

type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Plan is the planner's answer to a query.
type Plan struct {
	Intent       string     `json:"intent"`
	QueryType    string     `json:"query_type"`
	Steps        []PlanStep `json:"mcp_steps"`
	TargetSeries []string   `json:"target_series"`
	TimeRange    TimeRange  `json:"time_range"`
}

// legacyToolNames maps tool names older prompts produced to current ones.
var legacyToolNames = map[string]string{
	"fred_series": tools.GetSeriesToolName,
}

var catalog = []struct{ name, description string }{
	{tools.SearchToolName, "Search for FRED series"},
	{tools.GetSeriesToolName, "Get time series data"},
	{tools.BrowseToolName, "Browse FRED categories"},
}

const planSystemPrompt = `You are an economic data analyst creating execution plans for FRED MCP server queries.

The FRED MCP server provides these tools:
%s`

const planUserPrompt = `Query: "%s"

For employment sector queries, target these series:
%s

Create an execution plan and answer with JSON only:

{
  "intent": "what user wants to know",
  "query_type": "sector_analysis|comparison|trend",
  "mcp_steps": [
    {
      "tool": "%s|%s",
      "params": {"search_text": "employment", "limit": 5},
      "purpose": "why this step"
    }
  ],
  "target_series": ["MANEMP", "USPBS", "USLAH"],
  "time_range": {"start": "2024-01-01", "end": "2024-12-31"}
}`

// planMessages builds the planner conversation for query.
func (a *Agent) planMessages(query string) []session.Message {
	var toolLines []string
	for _, t := range catalog {
		if ok, _ := tools.MatchAny(t.name, a.allowedTools); ok {
			toolLines = append(toolLines, fmt.Sprintf("- %s: %s", t.name, t.description))
		}
	}
	var seriesLines []string
	for _, id := range a.targetSeries {
		seriesLines = append(seriesLines, fmt.Sprintf("- %s: %s", id, a.registry.Title(id)))
	}
	return []session.Message{
		{Role: "system", Content: fmt.Sprintf(planSystemPrompt, strings.Join(toolLines, "\n"))},
		{Role: "user", Content: fmt.Sprintf(planUserPrompt, query, strings.Join(seriesLines, "\n"),
			tools.SearchToolName, tools.GetSeriesToolName)},
	}
}

// extractJSON returns the JSON object inside an LLM reply, which may be
// wrapped in a markdown fence or surrounded by prose.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	if start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

var planFields = []string{"intent", "mcp_steps", "target_series", "time_range"}

// parsePlan decodes the planner reply. Every field in planFields must be
// present and non-null; empty arrays and objects are accepted.
func parsePlan(reply string) (*Plan, error) {
	raw := extractJSON(reply)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: reply is not JSON", ErrPlanParse)
	}
	doc := gjson.Parse(raw)
	for _, field := range planFields {
		if r := doc.Get(field); !r.Exists() || r.Type == gjson.Null {
			return nil, fmt.Errorf("%w: missing %s", ErrPlanParse, field)
		}
	}
	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanParse, err)
	}
	for i := range p.Steps {
		if name, ok := legacyToolNames[p.Steps[i].Tool]; ok {
			p.Steps[i].Tool = name
		}
	}
	return &p, nil
}

// stepArgs validates the step parameters against the tool's typed request
// and returns the normalized arguments. Tools without a typed request pass
// their parameters through.
func stepArgs(step PlanStep) (map[string]any, error) {
	var req fred.Request
	switch step.Tool {
	case tools.SearchToolName:
		req = &fred.SearchRequest{}
	case tools.GetSeriesToolName:
		req = &fred.SeriesRequest{}
	case tools.BrowseToolName:
		req = &fred.BrowseRequest{}
	default:
		return step.Params, nil
	}
	data, err := json.Marshal(step.Params)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("invalid params for %s: %w", step.Tool, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	data, err = json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	return args, nil
}
