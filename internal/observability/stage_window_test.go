package observability

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageProvider, 500)
	w.Observe(StageProvider, 700)
	w.Observe(StageProvider, 900)
	w.ObserveIndicator("provider_failure")
	w.ObserveIndicator("provider_failure")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageProvider {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageProvider)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 8000 {
		t.Fatalf("TargetP95MS = %.2f, want 8000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want provider_failure x2", snap.Indicators)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newStageWindow(2)
	w.Observe(StageStoreLoad, 1)
	w.Observe(StageStoreLoad, 2)
	w.Observe(StageStoreLoad, 3)

	snap := w.Snapshot()
	if got := snap.Stages[0].Samples; got != 2 {
		t.Fatalf("Samples = %d, want 2", got)
	}
	if got := snap.Stages[0].AvgMS; got != 2.5 {
		t.Fatalf("AvgMS = %.2f, want 2.5 (oldest sample evicted)", got)
	}

	w.Reset()
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) after Reset = %d, want 0", got)
	}
}

var metricsSeq atomic.Int64

func testMetrics() *Metrics {
	return NewMetrics(fmt.Sprintf("pmpal_test_obs_%d", metricsSeq.Add(1)))
}

func TestMetricsStageSnapshot(t *testing.T) {
	m := testMetrics()
	m.ObserveProvider("mock", "", 20*time.Millisecond)
	m.ObserveStage(StageExchangeTotal, 30*time.Millisecond)

	snap := m.StageSnapshot()
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(snap.Stages))
	}
	if snap.Stages[0].Stage != StageExchangeTotal || snap.Stages[1].Stage != StageProvider {
		t.Fatalf("stages not sorted: %+v", snap.Stages)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncExchange("answer")
	m.ObserveProvider("mock", "timeout", time.Second)
	m.ObserveStage(StageProvider, time.Second)
	if got := len(m.StageSnapshot().Stages); got != 0 {
		t.Fatalf("nil metrics snapshot has %d stages", got)
	}
}
