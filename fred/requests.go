package fred

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"

	"github.com/vishpuri/FRED/errors"
)

// Request is one of BrowseRequest, SearchRequest or SeriesRequest.
type Request interface {
	Validate() error
	Values() url.Values
}

// ValidationError reports a request field outside its allowed set.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, a ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

type BrowseType string

const (
	BrowseCategories     BrowseType = "categories"
	BrowseReleases       BrowseType = "releases"
	BrowseSources        BrowseType = "sources"
	BrowseCategorySeries BrowseType = "category_series"
	BrowseReleaseSeries  BrowseType = "release_series"
)

var (
	browseTypes        = []string{"categories", "releases", "sources", "category_series", "release_series"}
	sortOrders         = []string{"asc", "desc"}
	searchTypes        = []string{"full_text", "series_id"}
	searchOrderBy      = []string{"search_rank", "series_id", "title", "units", "frequency", "seasonal_adjustment", "realtime_start", "realtime_end", "last_updated", "observation_start", "observation_end", "popularity"}
	filterVariables    = []string{"frequency", "units", "seasonal_adjustment"}
	unitTransforms     = []string{"lin", "chg", "ch1", "pch", "pc1", "pca", "cch", "cca", "log"}
	frequencies        = []string{"d", "w", "bw", "m", "q", "sa", "a", "wef", "weth", "wew", "wetu", "wem", "wesu", "wesa", "bwew", "bwem"}
	aggregationMethods = []string{"avg", "sum", "eop"}

	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

const (
	DefaultBrowseLimit = 50
	DefaultSearchLimit = 25
)

func oneOf(field, value string, allowed []string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return invalid(field, "%q is not one of %v", value, allowed)
}

func checkRange(field string, v, lo, hi int) error {
	if v == 0 {
		return nil
	}
	if v < lo || v > hi {
		return invalid(field, "%d is outside %d..%d", v, lo, hi)
	}
	return nil
}

func checkDate(field, v string) error {
	if v == "" || datePattern.MatchString(v) {
		return nil
	}
	return invalid(field, "%q is not YYYY-MM-DD", v)
}

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

func setInt(q url.Values, key string, v int) {
	if v != 0 {
		q.Set(key, strconv.Itoa(v))
	}
}

// BrowseRequest navigates categories, releases and sources. Zero numeric
// fields are unset; CategoryID 0 means the root category.
type BrowseRequest struct {
	BrowseType BrowseType `json:"browse_type" jsonschema:"Type of browsing to perform: categories, releases, sources, category_series or release_series"`
	CategoryID int        `json:"category_id,omitempty" jsonschema:"Category ID (for categories or category_series)"`
	ReleaseID  int        `json:"release_id,omitempty" jsonschema:"Release ID (for release_series)"`
	Limit      int        `json:"limit,omitempty" jsonschema:"Maximum number of results (1-1000, default 50)"`
	Offset     int        `json:"offset,omitempty" jsonschema:"Number of results to skip"`
	OrderBy    string     `json:"order_by,omitempty" jsonschema:"Field to order by"`
	SortOrder  string     `json:"sort_order,omitempty" jsonschema:"Sort order: asc or desc"`
}

func (r *BrowseRequest) Validate() error {
	if r.BrowseType == "" {
		return invalid("browse_type", "required")
	}
	if err := oneOf("browse_type", string(r.BrowseType), browseTypes); err != nil {
		return err
	}
	if r.BrowseType == BrowseCategorySeries && r.CategoryID == 0 {
		return invalid("category_id", "required for category_series")
	}
	if r.BrowseType == BrowseReleaseSeries && r.ReleaseID == 0 {
		return invalid("release_id", "required for release_series")
	}
	if r.Offset < 0 {
		return invalid("offset", "must not be negative")
	}
	if err := checkRange("limit", r.Limit, 1, 1000); err != nil {
		return err
	}
	return oneOf("sort_order", r.SortOrder, sortOrders)
}

// Endpoint returns the upstream path for the browse type.
func (r *BrowseRequest) Endpoint() string {
	switch r.BrowseType {
	case BrowseCategories:
		if r.CategoryID != 0 {
			return "category/children"
		}
		return "category"
	case BrowseCategorySeries:
		return "category/series"
	case BrowseReleaseSeries:
		return "release/series"
	default:
		return string(r.BrowseType)
	}
}

func (r *BrowseRequest) Values() url.Values {
	q := url.Values{}
	switch r.BrowseType {
	case BrowseCategories:
		setInt(q, "category_id", r.CategoryID)
		return q
	case BrowseCategorySeries:
		setInt(q, "category_id", r.CategoryID)
	case BrowseReleaseSeries:
		setInt(q, "release_id", r.ReleaseID)
	}
	limit := r.Limit
	if limit == 0 {
		limit = DefaultBrowseLimit
	}
	setInt(q, "limit", limit)
	setInt(q, "offset", r.Offset)
	setString(q, "order_by", r.OrderBy)
	setString(q, "sort_order", r.SortOrder)
	return q
}

// SearchRequest finds series by text, tags or filters.
type SearchRequest struct {
	SearchText      string `json:"search_text,omitempty" jsonschema:"Text to search for in series titles and descriptions"`
	SearchType      string `json:"search_type,omitempty" jsonschema:"Type of search to perform: full_text or series_id"`
	TagNames        string `json:"tag_names,omitempty" jsonschema:"Comma-separated list of tag names to filter by"`
	ExcludeTagNames string `json:"exclude_tag_names,omitempty" jsonschema:"Comma-separated list of tag names to exclude"`
	Limit           int    `json:"limit,omitempty" jsonschema:"Maximum number of results to return (1-1000, default 25)"`
	Offset          int    `json:"offset,omitempty" jsonschema:"Number of results to skip for pagination"`
	OrderBy         string `json:"order_by,omitempty" jsonschema:"Field to order results by, such as search_rank, popularity or last_updated"`
	SortOrder       string `json:"sort_order,omitempty" jsonschema:"Sort order for results: asc or desc"`
	FilterVariable  string `json:"filter_variable,omitempty" jsonschema:"Variable to filter by: frequency, units or seasonal_adjustment"`
	FilterValue     string `json:"filter_value,omitempty" jsonschema:"Value to filter the variable by"`
}

func (r *SearchRequest) Validate() error {
	if r.Offset < 0 {
		return invalid("offset", "must not be negative")
	}
	if err := checkRange("limit", r.Limit, 1, 1000); err != nil {
		return err
	}
	if err := oneOf("search_type", r.SearchType, searchTypes); err != nil {
		return err
	}
	if err := oneOf("order_by", r.OrderBy, searchOrderBy); err != nil {
		return err
	}
	if err := oneOf("sort_order", r.SortOrder, sortOrders); err != nil {
		return err
	}
	return oneOf("filter_variable", r.FilterVariable, filterVariables)
}

func (r *SearchRequest) Values() url.Values {
	q := url.Values{}
	setString(q, "search_text", r.SearchText)
	setString(q, "search_type", r.SearchType)
	setString(q, "tag_names", r.TagNames)
	setString(q, "exclude_tag_names", r.ExcludeTagNames)
	limit := r.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	setInt(q, "limit", limit)
	setInt(q, "offset", r.Offset)
	setString(q, "order_by", r.OrderBy)
	setString(q, "sort_order", r.SortOrder)
	setString(q, "filter_variable", r.FilterVariable)
	setString(q, "filter_value", r.FilterValue)
	return q
}

// SeriesRequest fetches observations for one series.
type SeriesRequest struct {
	SeriesID          string `json:"series_id" jsonschema:"The FRED series ID to retrieve data for (e.g. GDP, UNRATE, CPIAUCSL)"`
	ObservationStart  string `json:"observation_start,omitempty" jsonschema:"Start date for observations in YYYY-MM-DD format"`
	ObservationEnd    string `json:"observation_end,omitempty" jsonschema:"End date for observations in YYYY-MM-DD format"`
	Limit             int    `json:"limit,omitempty" jsonschema:"Maximum number of observations to return (1-100000)"`
	Offset            int    `json:"offset,omitempty" jsonschema:"Number of observations to skip"`
	SortOrder         string `json:"sort_order,omitempty" jsonschema:"Sort order of observations by date: asc or desc"`
	Units             string `json:"units,omitempty" jsonschema:"Data transformation: lin (levels), chg (change), pch (percent change), log (natural log) and others"`
	Frequency         string `json:"frequency,omitempty" jsonschema:"Frequency aggregation: d (daily), w (weekly), m (monthly), q (quarterly), a (annual) and others"`
	AggregationMethod string `json:"aggregation_method,omitempty" jsonschema:"Aggregation method: avg, sum or eop (end of period)"`
	OutputType        int    `json:"output_type,omitempty" jsonschema:"Output format 1-4: observations, by vintage, by release, initial release only"`
	VintageDates      string `json:"vintage_dates,omitempty" jsonschema:"Vintage date or dates in YYYY-MM-DD format"`
}

func (r *SeriesRequest) Validate() error {
	if r.SeriesID == "" {
		return invalid("series_id", "required")
	}
	if err := checkDate("observation_start", r.ObservationStart); err != nil {
		return err
	}
	if err := checkDate("observation_end", r.ObservationEnd); err != nil {
		return err
	}
	if r.Offset < 0 {
		return invalid("offset", "must not be negative")
	}
	if err := checkRange("limit", r.Limit, 1, 100000); err != nil {
		return err
	}
	if err := checkRange("output_type", r.OutputType, 1, 4); err != nil {
		return err
	}
	for _, c := range []struct {
		field, value string
		allowed      []string
	}{
		{"sort_order", r.SortOrder, sortOrders},
		{"units", r.Units, unitTransforms},
		{"frequency", r.Frequency, frequencies},
		{"aggregation_method", r.AggregationMethod, aggregationMethods},
	} {
		if err := oneOf(c.field, c.value, c.allowed); err != nil {
			return err
		}
	}
	return nil
}

func (r *SeriesRequest) Values() url.Values {
	q := url.Values{}
	q.Set("series_id", r.SeriesID)
	setString(q, "observation_start", r.ObservationStart)
	setString(q, "observation_end", r.ObservationEnd)
	setInt(q, "limit", r.Limit)
	setInt(q, "offset", r.Offset)
	setString(q, "sort_order", r.SortOrder)
	setString(q, "units", r.Units)
	setString(q, "frequency", r.Frequency)
	setString(q, "aggregation_method", r.AggregationMethod)
	setInt(q, "output_type", r.OutputType)
	setString(q, "vintage_dates", r.VintageDates)
	return q
}

// RegisteredSeriesRequest is the input of a per-series tool.
type RegisteredSeriesRequest struct {
	StartDate string `json:"start_date,omitempty" jsonschema:"Start date in YYYY-MM-DD format"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"End date in YYYY-MM-DD format"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of observations to return"`
	SortOrder string `json:"sort_order,omitempty" jsonschema:"Sort order of observations by date: asc or desc"`
}

func (r *RegisteredSeriesRequest) Validate() error {
	if err := checkDate("start_date", r.StartDate); err != nil {
		return err
	}
	if err := checkDate("end_date", r.EndDate); err != nil {
		return err
	}
	if r.Limit < 0 {
		return invalid("limit", "must not be negative")
	}
	return oneOf("sort_order", r.SortOrder, sortOrders)
}

func (r *RegisteredSeriesRequest) series(id string) *SeriesRequest {
	return &SeriesRequest{
		SeriesID:         id,
		ObservationStart: r.StartDate,
		ObservationEnd:   r.EndDate,
		Limit:            r.Limit,
		SortOrder:        r.SortOrder,
	}
}

// IsValidationError reports whether err came from a request Validate.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
