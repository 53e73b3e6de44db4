package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/fred"
)

const (
	BrowseToolName    = "fred_browse"
	SearchToolName    = "fred_search"
	GetSeriesToolName = "fred_get_series"
)

// Descriptions shared with the MCP server.
const (
	BrowseDescription    = "Browse FRED's complete catalog through categories, releases, or sources. Use browse_type 'categories' to explore the category tree, 'releases' for data releases, 'sources' for data sources, 'category_series' to get all series in a category, or 'release_series' to get all series in a release."
	SearchDescription    = "Search for FRED economic data series by keywords, tags, or filters. Returns matching series with their IDs, titles, and metadata."
	GetSeriesDescription = "Retrieve data for any FRED series by its ID. Supports data transformations, frequency changes, and date ranges."
)

// RegisterFREDTools registers the browse, search and get-series tools plus a
// dedicated tool for each id in seriesTools.
func RegisterFREDTools(r *ToolRegistry, client *fred.Client, seriesTools []string) error {
	r.Register(&BrowseTool{client: client})
	r.Register(&SearchTool{client: client})
	r.Register(&GetSeriesTool{client: client})
	for _, id := range seriesTools {
		t, err := NewSeriesTool(client, id)
		if err != nil {
			return err
		}
		r.Register(t)
	}
	return nil
}

// decodeArgs converts loosely typed arguments into a typed request.
func decodeArgs(args map[string]interface{}, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return errors.Wrapf(err, "failed to encode arguments")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Render serializes a tool payload the way every FRED tool returns it.
func Render(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode result")
	}
	return string(data), nil
}

type BrowseTool struct{ client *fred.Client }

func (t *BrowseTool) Name() string        { return BrowseToolName }
func (t *BrowseTool) Description() string { return BrowseDescription }

func (t *BrowseTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	var req fred.BrowseRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	res, err := t.client.Browse(ctx, &req)
	if err != nil {
		return "", err
	}
	return Render(res)
}

type SearchTool struct{ client *fred.Client }

func (t *SearchTool) Name() string        { return SearchToolName }
func (t *SearchTool) Description() string { return SearchDescription }

func (t *SearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	var req fred.SearchRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	res, err := t.client.Search(ctx, &req)
	if err != nil {
		return "", err
	}
	return Render(res)
}

type GetSeriesTool struct{ client *fred.Client }

func (t *GetSeriesTool) Name() string        { return GetSeriesToolName }
func (t *GetSeriesTool) Description() string { return GetSeriesDescription }

func (t *GetSeriesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	var req fred.SeriesRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	res, err := t.client.GetSeries(ctx, &req)
	if err != nil {
		return "", err
	}
	return Render(res)
}

// SeriesTool fetches one registered series.
type SeriesTool struct {
	client *fred.Client
	id     string
	meta   fred.SeriesMetadata
}

func NewSeriesTool(client *fred.Client, id string) (*SeriesTool, error) {
	id = strings.ToUpper(id)
	meta, ok := client.Registry().Lookup(id)
	if !ok {
		return nil, fmt.Errorf("series '%s' is not in the registry", id)
	}
	return &SeriesTool{client: client, id: id, meta: meta}, nil
}

func (t *SeriesTool) Name() string     { return t.id }
func (t *SeriesTool) SeriesID() string { return t.id }

func (t *SeriesTool) Description() string {
	return fmt.Sprintf("Retrieve %s data from FRED (%s)", t.meta.Title, t.meta.Units)
}

func (t *SeriesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	var req fred.RegisteredSeriesRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	return t.Fetch(ctx, &req)
}

// Fetch runs the tool with a typed request.
func (t *SeriesTool) Fetch(ctx context.Context, req *fred.RegisteredSeriesRequest) (string, error) {
	res, err := t.client.FetchRegisteredSeries(ctx, t.id, req)
	if err != nil {
		return "", err
	}
	return Render(res)
}
