package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("stayhold", prometheus.NewRegistry())

	m.Transition("verify", "ok")
	m.Transition("verify", "ok")
	m.SyncApplied("inserted", 3)
	m.SyncApplied("deleted", 0)
	m.SweepItem("failed")

	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("verify", "ok")); got != 2 {
		t.Fatalf("transitions = %v", got)
	}
	if got := testutil.ToFloat64(m.SyncBlocks.WithLabelValues("inserted")); got != 3 {
		t.Fatalf("sync inserted = %v", got)
	}
	if got := testutil.ToFloat64(m.SweepItems.WithLabelValues("failed")); got != 1 {
		t.Fatalf("sweep failed = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Transition("cancel", "ok")
	m.HoldCreated()
	m.SyncRun("ok")
	m.ObserveJob("sweep", 1)
}
