package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveExecution(t *testing.T) {
	before := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("orders", "sent"))
	ObserveExecution("orders", "sent", 120*time.Millisecond)
	ObserveExecution("orders", "sent", 80*time.Millisecond)
	if got := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("orders", "sent")); got != before+2 {
		t.Fatalf("executions = %v, want %v", got, before+2)
	}
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestTotal.WithLabelValues("POST", "/v1/schedules/{id}/run", "202"))
	RecordRequest("POST", "/v1/schedules/{id}/run", 202, time.Millisecond)
	if got := testutil.ToFloat64(RequestTotal.WithLabelValues("POST", "/v1/schedules/{id}/run", "202")); got != before+1 {
		t.Fatalf("requests = %v, want %v", got, before+1)
	}
}
