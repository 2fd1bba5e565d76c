package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", 200, 0.1)
	m.IncRateLimited()
	m.IncAction("isolate", "completed")
	m.IncRollback("failed")
	m.IncThreat("low", "monitor")
}

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("POST", 200, 0.05)
	m.ObserveRequest("POST", 0, 0.01)
	m.IncRateLimited()
	m.IncRateLimited()
	m.IncAction("isolate", "completed")

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "200")); got != 1 {
		t.Errorf("POST/200 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "error")); got != 1 {
		t.Errorf("POST/error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RateLimitedTotal); got != 2 {
		t.Errorf("rate limited = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ActionsTotal.WithLabelValues("isolate", "completed")); got != 1 {
		t.Errorf("actions = %v, want 1", got)
	}
}

func TestMetrics_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
