package fred

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{"series ok", &SeriesRequest{SeriesID: "GDP", Units: "pc1", Frequency: "q", AggregationMethod: "eop", OutputType: 1}, ""},
		{"series missing id", &SeriesRequest{}, "invalid series_id: required"},
		{"series bad date", &SeriesRequest{SeriesID: "GDP", ObservationStart: "2024/01/01"}, "invalid observation_start"},
		{"series bad units", &SeriesRequest{SeriesID: "GDP", Units: "pct"}, "invalid units"},
		{"series limit high", &SeriesRequest{SeriesID: "GDP", Limit: 100001}, "invalid limit"},
		{"series output type", &SeriesRequest{SeriesID: "GDP", OutputType: 5}, "invalid output_type"},
		{"search ok", &SearchRequest{SearchText: "gdp", OrderBy: "popularity", SortOrder: "desc"}, ""},
		{"search bad order", &SearchRequest{OrderBy: "rank"}, "invalid order_by"},
		{"search bad filter", &SearchRequest{FilterVariable: "title"}, "invalid filter_variable"},
		{"search negative offset", &SearchRequest{Offset: -1}, "invalid offset"},
		{"browse missing type", &BrowseRequest{}, "invalid browse_type: required"},
		{"browse limit", &BrowseRequest{BrowseType: BrowseSources, Limit: 1001}, "invalid limit"},
		{"browse sort", &BrowseRequest{BrowseType: BrowseReleases, SortOrder: "up"}, "invalid sort_order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestRequestValuesOmitUnset(t *testing.T) {
	q := (&SeriesRequest{SeriesID: "UNRATE", Limit: 12}).Values()
	assert.Equal(t, "UNRATE", q.Get("series_id"))
	assert.Equal(t, "12", q.Get("limit"))
	assert.False(t, q.Has("offset"))
	assert.False(t, q.Has("units"))

	q = (&SearchRequest{SearchText: "jobs"}).Values()
	assert.Equal(t, "25", q.Get("limit"))

	q = (&BrowseRequest{BrowseType: BrowseCategories}).Values()
	assert.Empty(t, q)
	assert.Equal(t, "category", (&BrowseRequest{BrowseType: BrowseCategories}).Endpoint())
	assert.Equal(t, "release/series", (&BrowseRequest{BrowseType: BrowseReleaseSeries}).Endpoint())
}
