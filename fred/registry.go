package fred

import (
	"slices"
	"strings"
)

// SeriesMetadata is the human-readable description of a known series.
type SeriesMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Units       string `json:"units"`
}

// Registry maps series ids to metadata. It is read-only once built.
type Registry struct {
	series map[string]SeriesMetadata
}

// NewRegistry returns the registry of series the tools and planner know about.
func NewRegistry() *Registry {
	return &Registry{series: map[string]SeriesMetadata{
		"CPIAUCSL": {
			Title:       "Consumer Price Index for All Urban Consumers: All Items in U.S. City Average",
			Description: "The Consumer Price Index for All Urban Consumers: All Items (CPIAUCSL) is a measure of the average monthly change in the price for goods and services paid by urban consumers between any two time periods.",
			Units:       "Index 1982-1984=100",
		},
		"RRPONTSYD": {
			Title:       "Overnight Reverse Repurchase Agreements: Treasury Securities Sold by the Federal Reserve",
			Description: "Daily amount value of RRP transactions reported by the New York Fed as part of the Temporary Open Market Operations.",
			Units:       "Billions of Dollars",
		},
		"MANEMP": employment("Manufacturing"),
		"USCONS": employment("Construction"),
		"USTPU":  employment("Trade, Transportation & Utilities"),
		"USPBS":  employment("Professional & Business Services"),
		"USLAH":  employment("Leisure & Hospitality"),
		"USEHS":  employment("Education & Health Services"),
		"USFIRE": employment("Financial Activities"),
		"USGOV":  employment("Government"),
	}}
}

func employment(sector string) SeriesMetadata {
	return SeriesMetadata{
		Title:       sector + " Employment",
		Description: "All employees in the " + sector + " sector, seasonally adjusted, from the Current Employment Statistics survey.",
		Units:       "Thousands of Persons",
	}
}

// Lookup returns the metadata for id, matched case-insensitively.
func (r *Registry) Lookup(id string) (SeriesMetadata, bool) {
	m, ok := r.series[strings.ToUpper(id)]
	return m, ok
}

// IDs returns the registered series ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.series))
	for id := range r.series {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Title returns the registered title for id, or id itself when unknown.
func (r *Registry) Title(id string) string {
	if m, ok := r.Lookup(id); ok {
		return m.Title
	}
	return id
}
