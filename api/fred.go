package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/fred"
)

// statusFor maps a FRED client error to an HTTP status.
func statusFor(err error) int {
	switch {
	case fred.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, fred.ErrMissingAPIKey):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// queryParams reads query-string values, applying defaults for absent keys.
type queryParams struct {
	q   url.Values
	err error
}

func (p *queryParams) str(key, def string) string {
	if v := p.q.Get(key); v != "" {
		return v
	}
	return def
}

func (p *queryParams) int(key string) int {
	v := p.q.Get(key)
	if v == "" || p.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = &fred.ValidationError{Field: key, Reason: "must be an integer"}
	}
	return n
}

func (s *server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	const label = "Failed to browse FRED catalog"
	p := &queryParams{q: r.URL.Query()}
	req := &fred.BrowseRequest{
		BrowseType: fred.BrowseType(p.str("browse_type", string(fred.BrowseCategories))),
		CategoryID: p.int("category_id"),
		ReleaseID:  p.int("release_id"),
		Limit:      p.int("limit"),
		Offset:     p.int("offset"),
		OrderBy:    p.str("order_by", ""),
		SortOrder:  p.str("sort_order", "asc"),
	}
	if p.err != nil {
		writeError(w, http.StatusBadRequest, label, p.err)
		return
	}
	res, err := s.deps.FRED.Browse(r.Context(), req)
	if err != nil {
		s.log.Warn().Err(err).Msg("browse error")
		writeError(w, statusFor(err), label, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	const label = "Failed to search FRED data"
	p := &queryParams{q: r.URL.Query()}
	req := &fred.SearchRequest{
		SearchText:      p.str("search_text", ""),
		SearchType:      p.str("search_type", "full_text"),
		TagNames:        p.str("tag_names", ""),
		ExcludeTagNames: p.str("exclude_tag_names", ""),
		Limit:           p.int("limit"),
		Offset:          p.int("offset"),
		OrderBy:         p.str("order_by", "popularity"),
		SortOrder:       p.str("sort_order", "desc"),
		FilterVariable:  p.str("filter_variable", ""),
		FilterValue:     p.str("filter_value", ""),
	}
	if p.err == nil {
		p.err = req.Validate()
	}
	if p.err != nil {
		writeError(w, http.StatusBadRequest, label, p.err)
		return
	}
	res, err := s.deps.FRED.Search(r.Context(), req)
	if err != nil {
		s.log.Warn().Err(err).Msg("search error")
		writeError(w, statusFor(err), label, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleSeries(w http.ResponseWriter, r *http.Request) {
	const label = "Failed to get series data"
	p := &queryParams{q: r.URL.Query()}
	req := &fred.SeriesRequest{
		SeriesID:          chi.URLParam(r, "seriesId"),
		ObservationStart:  p.str("observation_start", ""),
		ObservationEnd:    p.str("observation_end", ""),
		Limit:             p.int("limit"),
		Offset:            p.int("offset"),
		SortOrder:         p.str("sort_order", "asc"),
		Units:             p.str("units", "lin"),
		Frequency:         p.str("frequency", ""),
		AggregationMethod: p.str("aggregation_method", "avg"),
		OutputType:        p.int("output_type"),
		VintageDates:      p.str("vintage_dates", ""),
	}
	if p.err == nil {
		p.err = req.Validate()
	}
	if p.err != nil {
		writeError(w, http.StatusBadRequest, label, p.err)
		return
	}
	res, err := s.deps.FRED.GetSeries(r.Context(), req)
	if err != nil {
		s.log.Warn().Err(err).Str("series", req.SeriesID).Msg("series data error")
		writeError(w, statusFor(err), label, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleTool runs a registered tool in-process with the JSON body as its
// arguments and returns the tool's JSON output unchanged.
func (s *server) handleTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tool, ok := s.deps.Tools.GetTool(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown tool", errors.New("tool '%s' is not registered", name))
		return
	}
	args := map[string]interface{}{}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	out, err := tool.Execute(r.Context(), args)
	if err != nil {
		s.log.Warn().Err(err).Str("tool", name).Msg("tool failed")
		writeError(w, statusFor(err), "Tool execution failed", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, out)
}
