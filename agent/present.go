package agent

import "fmt"

// Response is the shape returned to HTTP clients for a query.
type Response struct {
	Success  bool             `json:"success"`
	Analysis ResponseAnalysis `json:"analysis"`
	Series   ResponseSeries   `json:"series"`
	Data     []DataPoint      `json:"data"`
	Metadata ResponseMetadata `json:"metadata"`
}

type ResponseAnalysis struct {
	Understanding string `json:"understanding"`
	Method        string `json:"method"`
	Reasoning     string `json:"reasoning"`
}

type ResponseSeries struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DataPoint is one ranking laid out for charting.
type DataPoint struct {
	Date     string  `json:"date"`
	Value    float64 `json:"value"`
	Category string  `json:"category"`
	Metric   string  `json:"metric"`
	Source   string  `json:"source"`
}

type DataQuality struct {
	SeriesRetrieved int `json:"series_retrieved"`
	SeriesWithData  int `json:"series_with_data"`
}

type ResponseMetadata struct {
	QueryType     string      `json:"query_type"`
	ExecutionPlan []PlanStep  `json:"execution_plan"`
	DataQuality   DataQuality `json:"data_quality"`
	Findings      string      `json:"findings"`
}

// Present reshapes a result for the HTTP query endpoint.
func Present(r *Result) *Response {
	points := make([]DataPoint, 0, len(r.Rankings))
	for i, rk := range r.Rankings {
		points = append(points, DataPoint{
			Date:     fmt.Sprintf("Result-%d", i+1),
			Value:    rk.GrowthValue,
			Category: rk.Sector,
			Metric:   fmt.Sprintf("%.2f%%", rk.GrowthPercent),
			Source:   rk.SeriesID,
		})
	}
	steps := []PlanStep{}
	if r.Plan != nil && r.Plan.Steps != nil {
		steps = r.Plan.Steps
	}
	return &Response{
		Success: r.Success,
		Analysis: ResponseAnalysis{
			Understanding: r.Answer,
			Method:        "llm_agent_with_mcp",
			Reasoning:     r.Analysis.Method,
		},
		Series: ResponseSeries{ID: "LLM_AGENT_ANALYSIS", Title: r.Answer},
		Data:   points,
		Metadata: ResponseMetadata{
			QueryType:     "intelligent_analysis",
			ExecutionPlan: steps,
			DataQuality: DataQuality{
				SeriesRetrieved: r.SeriesCount,
				SeriesWithData:  len(r.RawDataSummary),
			},
			Findings: r.Analysis.Methodology,
		},
	}
}
