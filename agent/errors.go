package agent

import "github.com/vishpuri/FRED/errors"

var (
	// ErrPlanParse is returned when the planner reply is not a usable plan.
	ErrPlanParse = errors.Sentinel("failed to parse execution plan")
	// ErrNoData is returned when no plan step produced any series data.
	ErrNoData = errors.Sentinel("No data retrieved from FRED MCP server")
	// ErrSummaryParse is returned when the summarizer reply is not usable JSON.
	ErrSummaryParse = errors.Sentinel("failed to parse analysis")
)
