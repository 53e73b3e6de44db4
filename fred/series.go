package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vishpuri/FRED/errors"
)

// Source is attached to every series payload.
const Source = "Federal Reserve Economic Data (FRED)"

type upstreamSeries struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Units              string `json:"units"`
	Frequency          string `json:"frequency"`
	SeasonalAdjustment string `json:"seasonal_adjustment"`
	ObservationStart   string `json:"observation_start"`
	ObservationEnd     string `json:"observation_end"`
	LastUpdated        string `json:"last_updated"`
	Popularity         int    `json:"popularity"`
	Notes              string `json:"notes"`
}

func (s upstreamSeries) observationRange() string {
	return s.ObservationStart + " to " + s.ObservationEnd
}

// SeriesInfo is the metadata of one series.
type SeriesInfo struct {
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

// SeriesInfo fetches metadata for id.
func (c *Client) SeriesInfo(ctx context.Context, id string) (*SeriesInfo, error) {
	info, err := c.seriesInfo(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Failed to get series info: %w", err)
	}
	return info, nil
}

func (c *Client) seriesInfo(ctx context.Context, id string) (*SeriesInfo, error) {
	if id == "" {
		return nil, invalid("series_id", "required")
	}
	body, err := c.Get(ctx, "series", url.Values{"series_id": {id}})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Seriess []upstreamSeries `json:"seriess"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "invalid series response")
	}
	if len(resp.Seriess) == 0 {
		return nil, errors.New("Series %s not found", id)
	}
	s := resp.Seriess[0]
	return &SeriesInfo{
		ID:                 s.ID,
		Title:              s.Title,
		Units:              s.Units,
		Frequency:          s.Frequency,
		SeasonalAdjustment: s.SeasonalAdjustment,
		ObservationRange:   s.observationRange(),
		LastUpdated:        s.LastUpdated,
		Popularity:         s.Popularity,
		Notes:              s.Notes,
	}, nil
}

// Observation is one dated value. Value is nil where FRED reports ".".
type Observation struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

type observationsResponse struct {
	ObservationStart string `json:"observation_start"`
	ObservationEnd   string `json:"observation_end"`
	Count            int    `json:"count"`
	Offset           int    `json:"offset"`
	Limit            int    `json:"limit"`
	Observations     []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

func parseValue(v string) *float64 {
	if v == "." || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

// SeriesData is the reshaped observations of one series.
type SeriesData struct {
	SeriesID           string        `json:"series_id"`
	Title              string        `json:"title"`
	Units              string        `json:"units"`
	Frequency          string        `json:"frequency"`
	SeasonalAdjustment string        `json:"seasonal_adjustment"`
	ObservationRange   string        `json:"observation_range"`
	TotalObservations  int           `json:"total_observations"`
	DataOffset         int           `json:"data_offset"`
	DataLimit          int           `json:"data_limit"`
	Source             string        `json:"source"`
	Notes              string        `json:"notes,omitempty"`
	Data               []Observation `json:"data"`
}

// GetSeries fetches observations for req. Series metadata is looked up as
// well; when that lookup fails the payload falls back to generic labels.
func (c *Client) GetSeries(ctx context.Context, req *SeriesRequest) (*SeriesData, error) {
	data, err := c.getSeries(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve series data: %w", err)
	}
	return data, nil
}

func (c *Client) getSeries(ctx context.Context, req *SeriesRequest) (*SeriesData, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := c.Get(ctx, "series/observations", req.Values())
	if err != nil {
		return nil, err
	}
	var resp observationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "invalid observations response")
	}

	info, err := c.seriesInfo(ctx, req.SeriesID)
	if err != nil {
		c.log.Warn().Err(err).Str("series_id", req.SeriesID).Msg("could not fetch series info")
		info = &SeriesInfo{}
	}

	out := &SeriesData{
		SeriesID:           req.SeriesID,
		Title:              fallback(info.Title, "FRED Series: "+req.SeriesID),
		Units:              info.Units,
		Frequency:          fallback(info.Frequency, "Unknown"),
		SeasonalAdjustment: fallback(info.SeasonalAdjustment, "Unknown"),
		ObservationRange:   fallback(info.ObservationRange, resp.ObservationStart+" to "+resp.ObservationEnd),
		TotalObservations:  resp.Count,
		DataOffset:         resp.Offset,
		DataLimit:          resp.Limit,
		Source:             Source,
		Notes:              info.Notes,
		Data:               make([]Observation, 0, len(resp.Observations)),
	}
	if out.Units == "" {
		out.Units = "Value"
		if req.Units != "" {
			out.Units = "Transformed (" + req.Units + ")"
		}
	}
	for _, o := range resp.Observations {
		out.Data = append(out.Data, Observation{Date: o.Date, Value: parseValue(o.Value)})
	}
	return out, nil
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// RegisteredObservation is one value of a registered series, labelled with
// the series units.
type RegisteredObservation struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
	Units string   `json:"units"`
}

// RegisteredSeriesData is the payload of a per-series tool.
type RegisteredSeriesData struct {
	Title             string                  `json:"title"`
	Description       string                  `json:"description"`
	Source            string                  `json:"source"`
	SeriesID          string                  `json:"series_id"`
	TotalObservations int                     `json:"total_observations"`
	Data              []RegisteredObservation `json:"data"`
}

// FetchRegisteredSeries fetches observations of a series known to the
// registry and labels them with its metadata.
func (c *Client) FetchRegisteredSeries(ctx context.Context, id string, req *RegisteredSeriesRequest) (*RegisteredSeriesData, error) {
	id = strings.ToUpper(id)
	meta, ok := c.registry.Lookup(id)
	if !ok {
		return nil, errors.New("series %s is not registered", id)
	}
	if req == nil {
		req = &RegisteredSeriesRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("Failed to retrieve %s data: %w", id, err)
	}
	body, err := c.Get(ctx, "series/observations", req.series(id).Values())
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve %s data: %w", id, err)
	}
	var resp observationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("Failed to retrieve %s data: %w", id, err)
	}
	out := &RegisteredSeriesData{
		Title:             meta.Title,
		Description:       meta.Description,
		Source:            Source,
		SeriesID:          id,
		TotalObservations: resp.Count,
		Data:              make([]RegisteredObservation, 0, len(resp.Observations)),
	}
	for _, o := range resp.Observations {
		out.Data = append(out.Data, RegisteredObservation{Date: o.Date, Value: parseValue(o.Value), Units: meta.Units})
	}
	return out, nil
}
