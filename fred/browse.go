package fred

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vishpuri/FRED/errors"
)

// page is the pagination envelope of list endpoints.
type page struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// showing renders the 1-based range of returned items, e.g. "1-25".
func (p page) showing() string {
	return fmt.Sprintf("%d-%d", p.Offset+1, min(p.Offset+p.Limit, p.Count))
}

type Category struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ParentID int    `json:"parent_id"`
}

type SeriesSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Units            string `json:"units"`
	Frequency        string `json:"frequency"`
	ObservationRange string `json:"observation_range"`
	LastUpdated      string `json:"last_updated"`
}

type Release struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	PressRelease bool   `json:"press_release"`
	Link         string `json:"link,omitempty"`
}

type SourceInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Link string `json:"link,omitempty"`
}

// BrowseResult holds the fields of whichever browse type was requested.
type BrowseResult struct {
	Categories    []Category      `json:"categories,omitempty"`
	CategoryID    int             `json:"category_id,omitempty"`
	ReleaseID     int             `json:"release_id,omitempty"`
	TotalSeries   *int            `json:"total_series,omitempty"`
	TotalReleases *int            `json:"total_releases,omitempty"`
	TotalSources  *int            `json:"total_sources,omitempty"`
	Showing       string          `json:"showing,omitempty"`
	Series        []SeriesSummary `json:"series,omitempty"`
	Releases      []Release       `json:"releases,omitempty"`
	Sources       []SourceInfo    `json:"sources,omitempty"`
}

var browseOps = map[BrowseType]string{
	BrowseCategories:     "browse categories",
	BrowseCategorySeries: "get category series",
	BrowseReleases:       "browse releases",
	BrowseReleaseSeries:  "get release series",
	BrowseSources:        "browse sources",
}

// Browse navigates the FRED catalog according to req.BrowseType.
func (c *Client) Browse(ctx context.Context, req *BrowseRequest) (*BrowseResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err := c.browse(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Failed to %s: %w", browseOps[req.BrowseType], err)
	}
	return res, nil
}

func (c *Client) browse(ctx context.Context, req *BrowseRequest) (*BrowseResult, error) {
	body, err := c.Get(ctx, req.Endpoint(), req.Values())
	if err != nil {
		return nil, err
	}
	switch req.BrowseType {
	case BrowseCategories:
		var resp struct {
			Categories []Category `json:"categories"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrapf(err, "invalid categories response")
		}
		if resp.Categories == nil {
			resp.Categories = []Category{}
		}
		return &BrowseResult{Categories: resp.Categories}, nil

	case BrowseCategorySeries, BrowseReleaseSeries:
		var resp struct {
			page
			Seriess []upstreamSeries `json:"seriess"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrapf(err, "invalid series list response")
		}
		out := &BrowseResult{
			TotalSeries: &resp.Count,
			Showing:     resp.showing(),
			Series:      make([]SeriesSummary, 0, len(resp.Seriess)),
		}
		if req.BrowseType == BrowseCategorySeries {
			out.CategoryID = req.CategoryID
		} else {
			out.ReleaseID = req.ReleaseID
		}
		for _, s := range resp.Seriess {
			out.Series = append(out.Series, SeriesSummary{
				ID:               s.ID,
				Title:            s.Title,
				Units:            s.Units,
				Frequency:        s.Frequency,
				ObservationRange: s.observationRange(),
				LastUpdated:      s.LastUpdated,
			})
		}
		return out, nil

	case BrowseReleases:
		var resp struct {
			page
			Releases []Release `json:"releases"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrapf(err, "invalid releases response")
		}
		if resp.Releases == nil {
			resp.Releases = []Release{}
		}
		return &BrowseResult{TotalReleases: &resp.Count, Showing: resp.showing(), Releases: resp.Releases}, nil

	case BrowseSources:
		var resp struct {
			page
			Sources []SourceInfo `json:"sources"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrapf(err, "invalid sources response")
		}
		if resp.Sources == nil {
			resp.Sources = []SourceInfo{}
		}
		return &BrowseResult{TotalSources: &resp.Count, Showing: resp.showing(), Sources: resp.Sources}, nil
	}
	return nil, invalid("browse_type", "%q is not supported", req.BrowseType)
}
