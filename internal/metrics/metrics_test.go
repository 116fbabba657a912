package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	m := New("")
	m.CallStarted()
	m.CallStarted()
	m.CallEnded("completed", 42*time.Second)
	m.Response("created")
	m.Response("unexpected")
	m.BargeIn("cancel")
	m.TranscriptDropped("echo")
	m.ToolCall("check_inventory", "ok")
	m.ToolCall("check_inventory", "ok")
	m.Transition("Greeting", "RequirementCheck")
	m.SessionError("validation")

	if got := testutil.ToFloat64(m.CallsActive); got != 1 {
		t.Fatalf("active = %v", got)
	}
	if got := testutil.ToFloat64(m.CallsTotal.WithLabelValues("completed")); got != 1 {
		t.Fatalf("calls_total = %v", got)
	}
	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("check_inventory", "ok")); got != 2 {
		t.Fatalf("tool_calls = %v", got)
	}
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("Greeting", "RequirementCheck")); got != 1 {
		t.Fatalf("transitions = %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("rice_gateway")
	m.Response("done")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `rice_gateway_model_responses_total{event="done"} 1`) {
		t.Fatalf("metrics body missing counter:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CallStarted()
	m.CallEnded("ended", time.Second)
	m.ToolCall("place_order", "error")
	m.Transition("a", "b")
}
