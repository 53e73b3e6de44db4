package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	RecordRPCRequest("tools/call", 20*time.Millisecond, nil, false)
	RecordRPCRequest("tools/call", time.Second, errors.New("late"), true)
	RecordRPCRequest("tools/list", time.Millisecond, errors.New("boom"), false)
	RecordFramingError()
	RecordChildExit("crash")
	RecordUpstreamRequest("series/observations", true)
	RecordCacheHit("series/observations")
	ObserveQuery(3*time.Second, false)

	if v := testutil.ToFloat64(rpcRequests.WithLabelValues("tools/call", "success")); v != 1 {
		t.Fatalf("rpc success: %v", v)
	}
	if v := testutil.ToFloat64(rpcRequests.WithLabelValues("tools/call", "timeout")); v != 1 {
		t.Fatalf("rpc timeout: %v", v)
	}
	if v := testutil.ToFloat64(rpcRequests.WithLabelValues("tools/list", "error")); v != 1 {
		t.Fatalf("rpc error: %v", v)
	}
	if v := testutil.ToFloat64(framingErrors); v != 1 {
		t.Fatalf("framing errors: %v", v)
	}
	if v := testutil.ToFloat64(childExits.WithLabelValues("crash")); v != 1 {
		t.Fatalf("child exits: %v", v)
	}
	if v := testutil.ToFloat64(upstreamRequests.WithLabelValues("series/observations", "success")); v != 1 {
		t.Fatalf("upstream: %v", v)
	}
	if v := testutil.ToFloat64(cacheHits.WithLabelValues("series/observations")); v != 1 {
		t.Fatalf("cache hits: %v", v)
	}
	if v := testutil.ToFloat64(queries.WithLabelValues("error")); v != 1 {
		t.Fatalf("queries: %v", v)
	}
}
