package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"

	"github.com/vishpuri/FRED/session"
)

// SeriesSummary condenses one retrieved series for the analysis prompt.
type SeriesSummary struct {
	SeriesID       string  `json:"series_id"`
	Title          string  `json:"title"`
	LatestValue    float64 `json:"latest_value"`
	LatestDate     string  `json:"latest_date"`
	AbsoluteChange float64 `json:"absolute_change"`
	PercentChange  float64 `json:"percent_change"`
	Purpose        string  `json:"purpose"`
}

type Ranking struct {
	Rank          int     `json:"rank"`
	Sector        string  `json:"sector"`
	SeriesID      string  `json:"series_id"`
	GrowthValue   float64 `json:"growth_value"`
	GrowthPercent float64 `json:"growth_percent"`
}

type Analysis struct {
	Method      string `json:"method"`
	Methodology string `json:"methodology"`
}

// Result is the answer to one query.
type Result struct {
	Success        bool            `json:"success"`
	SessionID      string          `json:"session_id"`
	Query          string          `json:"query"`
	Answer         string          `json:"answer"`
	Analysis       Analysis        `json:"analysis"`
	Rankings       []Ranking       `json:"results"`
	RawDataSummary []SeriesSummary `json:"raw_data_summary"`
	Plan           *Plan           `json:"plan,omitempty"`
	SeriesCount    int             `json:"series_count"`
}

const analysisMethod = "llm_agent_mcp"

const summarySystemPrompt = "Analyze employment sector data retrieved via FRED MCP server. Provide specific rankings and insights."

const summaryUserPrompt = `Query: "%s"

Employment Sector Data from MCP:
%s

Analyze and rank sectors by employment growth. Provide specific insights.

JSON response:
{
  "answer": "Direct answer with rankings and numbers",
  "rankings": [
    {
      "rank": 1,
      "sector": "sector name",
      "series_id": "ID",
      "growth_value": 123.4,
      "growth_percent": 2.5
    }
  ],
  "methodology": "how analysis was performed using MCP data"
}`

type observation struct {
	date  string
	value float64
}

// validObservations returns the observations with a numeric value. Payloads
// carry them under "data" (proxy shape) or "observations" (upstream shape),
// with values as numbers, numeric strings, "." or null.
func validObservations(raw string) []observation {
	doc := gjson.Parse(raw)
	list := doc.Get("data")
	if !list.IsArray() {
		list = doc.Get("observations")
	}
	var out []observation
	list.ForEach(func(_, obs gjson.Result) bool {
		v := obs.Get("value")
		var f float64
		switch v.Type {
		case gjson.Number:
			f = v.Float()
		case gjson.String:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
			if err != nil {
				return true
			}
			f = parsed
		default:
			return true
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
		out = append(out, observation{date: obs.Get("date").String(), value: f})
		return true
	})
	return out
}

func year(date string) (int, bool) {
	if len(date) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(date[:4])
	return y, err == nil
}

// ComputeChange returns the absolute and percent change from yearAgo to
// latest. A zero yearAgo has no defined percent change.
func ComputeChange(latest, yearAgo float64) (change, percent float64) {
	change = latest - yearAgo
	if yearAgo != 0 {
		percent = change / yearAgo * 100
	}
	return change, percent
}

// summarizeSeries returns nil when the series has no usable observation.
func summarizeSeries(s *SeriesData) *SeriesSummary {
	obs := validObservations(s.Raw)
	if len(obs) == 0 {
		return nil
	}
	latest := obs[len(obs)-1]
	sum := &SeriesSummary{
		SeriesID:    s.ID,
		Title:       s.Title,
		LatestValue: latest.value,
		LatestDate:  latest.date,
		Purpose:     s.Purpose,
	}
	latestYear, ok := year(latest.date)
	if !ok {
		return sum
	}
	for _, o := range obs {
		y, ok := year(o.date)
		if !ok || (y-latestYear != 1 && latestYear-y != 1) {
			continue
		}
		sum.AbsoluteChange, sum.PercentChange = ComputeChange(latest.value, o.value)
		break
	}
	return sum
}

// Summaries condenses every retrieved series that has data.
func Summaries(data *RetrievedData) []SeriesSummary {
	var out []SeriesSummary
	for _, s := range data.Series() {
		if sum := summarizeSeries(s); sum != nil {
			out = append(out, *sum)
		}
	}
	return out
}

func formatSummary(s SeriesSummary) string {
	sign := ""
	if s.AbsoluteChange > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s (%s):\n  - Latest: %s (%s)\n  - Annual change: %s%.1fk (%.2f%%)",
		s.SeriesID, s.Title, humanize.Commaf(s.LatestValue), s.LatestDate,
		sign, s.AbsoluteChange, s.PercentChange)
}

func (a *Agent) summaryMessages(query string, summaries []SeriesSummary) []session.Message {
	lines := make([]string, 0, len(summaries))
	for _, s := range summaries {
		lines = append(lines, formatSummary(s))
	}
	return []session.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: fmt.Sprintf(summaryUserPrompt, query, strings.Join(lines, "\n\n"))},
	}
}

var summaryFields = []string{"answer", "rankings", "methodology"}

// Summarize asks the LLM to analyze the retrieved data. The reply must carry
// every field in summaryFields.
func (a *Agent) Summarize(ctx context.Context, sess *session.Session, plan *Plan, data *RetrievedData) (*Result, error) {
	summaries := Summaries(data)
	reply, err := a.chat(ctx, sess, a.summaryMessages(sess.Query, summaries))
	if err != nil {
		return nil, fmt.Errorf("failed to interpret data: %w", err)
	}

	raw := extractJSON(reply)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: reply is not JSON", ErrSummaryParse)
	}
	doc := gjson.Parse(raw)
	for _, field := range summaryFields {
		if r := doc.Get(field); !r.Exists() || r.Type == gjson.Null {
			return nil, fmt.Errorf("%w: missing %s", ErrSummaryParse, field)
		}
	}
	var interp struct {
		Answer      string    `json:"answer"`
		Rankings    []Ranking `json:"rankings"`
		Methodology string    `json:"methodology"`
	}
	if err := json.Unmarshal([]byte(raw), &interp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSummaryParse, err)
	}

	if summaries == nil {
		summaries = []SeriesSummary{}
	}
	return &Result{
		Success:   true,
		SessionID: sess.ID,
		Query:     sess.Query,
		Answer:    interp.Answer,
		Analysis: Analysis{
			Method:      analysisMethod,
			Methodology: interp.Methodology,
		},
		Rankings:       interp.Rankings,
		RawDataSummary: summaries,
		Plan:           plan,
		SeriesCount:    data.Len(),
	}, nil
}
