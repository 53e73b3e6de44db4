package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fred_mcp_requests_total",
			Help: "JSON-RPC requests sent to the MCP child process",
		},
		[]string{"method", "outcome"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fred_mcp_request_duration_seconds",
			Help:    "Round-trip time of JSON-RPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	framingErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fred_mcp_framing_errors_total",
			Help: "Inbound lines dropped because they were not valid JSON",
		},
	)

	childExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fred_mcp_child_exits_total",
			Help: "MCP child process exits",
		},
		[]string{"reason"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fred_upstream_requests_total",
			Help: "Requests made to the FRED REST API",
		},
		[]string{"endpoint", "outcome"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fred_upstream_cache_hits_total",
			Help: "FRED responses served from cache",
		},
		[]string{"endpoint"},
	)

	queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fred_queries_total",
			Help: "Natural-language queries processed",
		},
		[]string{"outcome"},
	)

	queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fred_query_duration_seconds",
			Help:    "End-to-end duration of natural-language queries",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(rpcRequests, rpcDuration, framingErrors, childExits,
		upstreamRequests, cacheHits, queries, queryDuration)
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// RecordRPCRequest counts a settled request. Timeouts are counted separately
// from other failures.
func RecordRPCRequest(method string, dur time.Duration, err error, timedOut bool) {
	o := outcome(err == nil)
	if timedOut {
		o = "timeout"
	}
	rpcRequests.WithLabelValues(method, o).Inc()
	rpcDuration.WithLabelValues(method).Observe(dur.Seconds())
}

func RecordFramingError() { framingErrors.Inc() }

func RecordChildExit(reason string) { childExits.WithLabelValues(reason).Inc() }

func RecordUpstreamRequest(endpoint string, ok bool) {
	upstreamRequests.WithLabelValues(endpoint, outcome(ok)).Inc()
}

func RecordCacheHit(endpoint string) { cacheHits.WithLabelValues(endpoint).Inc() }

func ObserveQuery(dur time.Duration, ok bool) {
	queries.WithLabelValues(outcome(ok)).Inc()
	queryDuration.Observe(dur.Seconds())
}
