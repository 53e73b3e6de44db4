package agent

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vishpuri/FRED/tools"
)

const (
	maxSearchMatches = 5
	observationLimit = 50
	targetPurpose    = "Employment sector analysis"
)

// SeriesData is what one tool call returned for a series.
type SeriesData struct {
	ID      string
	Title   string
	Purpose string
	Raw     string
}

// RetrievedData holds the series gathered while executing a plan, in the
// order they were first retrieved. The first result for an id wins.
type RetrievedData struct {
	order []string
	byID  map[string]*SeriesData
}

func newRetrievedData() *RetrievedData {
	return &RetrievedData{byID: make(map[string]*SeriesData)}
}

func (d *RetrievedData) Has(id string) bool {
	_, ok := d.byID[id]
	return ok
}

// Add stores s unless its id is already present and reports whether it did.
func (d *RetrievedData) Add(s *SeriesData) bool {
	if d.Has(s.ID) {
		return false
	}
	d.byID[s.ID] = s
	d.order = append(d.order, s.ID)
	return true
}

func (d *RetrievedData) Len() int { return len(d.order) }

// Series returns the stored series in retrieval order.
func (d *RetrievedData) Series() []*SeriesData {
	out := make([]*SeriesData, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	return out
}

// Execute runs the plan steps. A failed step is logged and skipped; target
// series not retrieved by any step are fetched directly afterwards.
func (a *Agent) Execute(ctx context.Context, plan *Plan, cb ProcessCallbacks) (*RetrievedData, error) {
	data := newRetrievedData()

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := tools.MatchAny(step.Tool, a.allowedTools)
		if err != nil {
			return nil, err
		}
		if !ok {
			a.log.Warn().Str("tool", step.Tool).Msg("plan step uses a tool that is not allowed")
			cb.warn("skipping step: tool %s is not allowed", step.Tool)
			continue
		}
		a.log.Info().Str("tool", step.Tool).Str("purpose", step.Purpose).Msg("executing MCP step")
		if err := a.runStep(ctx, plan, step, data); err != nil {
			a.log.Warn().Err(err).Str("tool", step.Tool).Msg("MCP step failed")
			cb.warn("step %s failed: %v", step.Tool, err)
		}
	}

	for _, id := range plan.TargetSeries {
		id = strings.ToUpper(id)
		if data.Has(id) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a.log.Info().Str("series", id).Msg("direct MCP fetch")
		raw, err := a.fetchSeries(ctx, plan, id)
		if err != nil {
			a.log.Warn().Err(err).Str("series", id).Msg("direct fetch failed")
			cb.warn("direct fetch for %s failed: %v", id, err)
			continue
		}
		data.Add(&SeriesData{ID: id, Title: a.registry.Title(id), Purpose: targetPurpose, Raw: raw})
	}

	if data.Len() == 0 {
		return nil, ErrNoData
	}
	return data, nil
}

func (a *Agent) runStep(ctx context.Context, plan *Plan, step PlanStep, data *RetrievedData) error {
	args, err := stepArgs(step)
	if err != nil {
		return err
	}
	text, err := a.call(ctx, step.Tool, args)
	if err != nil {
		return err
	}

	switch step.Tool {
	case tools.SearchToolName:
		matches := searchMatches(text)
		a.log.Info().Int("count", len(matches)).Msg("search found series")
		for _, m := range matches {
			id := strings.ToUpper(m.Get("id").String())
			if id == "" || data.Has(id) {
				continue
			}
			raw, err := a.fetchSeries(ctx, plan, id)
			if err != nil {
				a.log.Warn().Err(err).Str("series", id).Msg("search match fetch failed")
				continue
			}
			title := m.Get("title").String()
			if title == "" {
				title = a.registry.Title(id)
			}
			data.Add(&SeriesData{ID: id, Title: title, Purpose: step.Purpose, Raw: raw})
		}
	case tools.GetSeriesToolName:
		id := strings.ToUpper(args["series_id"].(string))
		data.Add(&SeriesData{ID: id, Title: a.seriesTitle(id), Purpose: step.Purpose, Raw: text})
	default:
		// Registered series tools are named after their series.
		if _, ok := a.registry.Lookup(step.Tool); ok {
			id := strings.ToUpper(step.Tool)
			data.Add(&SeriesData{ID: id, Title: a.registry.Title(id), Purpose: step.Purpose, Raw: text})
		}
	}
	return nil
}

// searchMatches returns up to maxSearchMatches series from a search result.
func searchMatches(text string) []gjson.Result {
	doc := gjson.Parse(text)
	list := doc.Get("results")
	if !list.IsArray() {
		list = doc.Get("seriess")
	}
	matches := list.Array()
	if len(matches) > maxSearchMatches {
		matches = matches[:maxSearchMatches]
	}
	return matches
}

// fetchSeries retrieves observations for id within the plan's time range.
func (a *Agent) fetchSeries(ctx context.Context, plan *Plan, id string) (string, error) {
	args := map[string]any{"series_id": id, "limit": observationLimit}
	if plan.TimeRange.Start != "" {
		args["observation_start"] = plan.TimeRange.Start
	}
	if plan.TimeRange.End != "" {
		args["observation_end"] = plan.TimeRange.End
	}
	return a.call(ctx, tools.GetSeriesToolName, args)
}

func (a *Agent) call(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := a.tools.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}
	return res.Text()
}

func (a *Agent) seriesTitle(id string) string {
	if _, ok := a.registry.Lookup(id); ok {
		return a.registry.Title(id)
	}
	return "Series " + id
}
