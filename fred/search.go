package fred

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vishpuri/FRED/errors"
)

const notesLimit = 200

type SearchResult struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Units              string `json:"units"`
	Frequency          string `json:"frequency"`
	SeasonalAdjustment string `json:"seasonal_adjustment"`
	ObservationRange   string `json:"observation_range"`
	LastUpdated        string `json:"last_updated"`
	Popularity         int    `json:"popularity"`
	Notes              string `json:"notes,omitempty"`
}

type SearchResults struct {
	TotalResults int            `json:"total_results"`
	Showing      string         `json:"showing"`
	Results      []SearchResult `json:"results"`
}

// Search finds series matching req.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResults, error) {
	res, err := c.search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Failed to search FRED series: %w", err)
	}
	return res, nil
}

func (c *Client) search(ctx context.Context, req *SearchRequest) (*SearchResults, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := c.Get(ctx, "series/search", req.Values())
	if err != nil {
		return nil, err
	}
	var resp struct {
		page
		Seriess []upstreamSeries `json:"seriess"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "invalid search response")
	}
	out := &SearchResults{
		TotalResults: resp.Count,
		Showing:      resp.showing(),
		Results:      make([]SearchResult, 0, len(resp.Seriess)),
	}
	for _, s := range resp.Seriess {
		out.Results = append(out.Results, SearchResult{
			ID:                 s.ID,
			Title:              s.Title,
			Units:              s.Units,
			Frequency:          s.Frequency,
			SeasonalAdjustment: s.SeasonalAdjustment,
			ObservationRange:   s.observationRange(),
			LastUpdated:        s.LastUpdated,
			Popularity:         s.Popularity,
			Notes:              truncate(s.Notes, notesLimit),
		})
	}
	return out, nil
}

// truncate cuts s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
