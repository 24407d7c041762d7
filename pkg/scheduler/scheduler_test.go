package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ingest"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

// stubCollector is a scripted collector.Collector used to drive the
// scheduler's dispatch logic without a live source.
type stubCollector struct {
	source  ipstore.Source
	block   chan struct{}
	batch   collector.Batch
	stats   collector.RunStats
	err     error
	started chan struct{}
}

func (s *stubCollector) Source() ipstore.Source { return s.source }

func (s *stubCollector) Run(ctx context.Context, window collector.DateRange) (collector.Batch, collector.RunStats, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return collector.Batch{}, collector.RunStats{}, ctx.Err()
		}
	}
	return s.batch, s.stats, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTriggerRejectsSecondConcurrentRun(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	stub := &stubCollector{source: ipstore.SourceRegtech, block: block, started: started}

	sched := New([]collector.Collector{stub}, ingest.NewPipeline(nil, nil), nil, testLogger(), 2, 90)

	// Trigger returns ErrAlreadyRunning before ever reaching collection.Store,
	// so a nil store is safe here.
	sched.mu.Lock()
	st := sched.states[ipstore.SourceRegtech]
	st.inFlight = true
	sched.mu.Unlock()

	_, err := sched.Trigger(context.Background(), ipstore.SourceRegtech, collector.DateRange{
		StartDate: time.Now(), EndDate: time.Now(),
	})
	if err != ErrAlreadyRunning {
		t.Errorf("Trigger() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestTriggerUnknownSource(t *testing.T) {
	sched := New(nil, ingest.NewPipeline(nil, nil), nil, testLogger(), 2, 90)

	_, err := sched.Trigger(context.Background(), ipstore.SourceManual, collector.DateRange{})
	if err == nil {
		t.Errorf("Trigger() error = nil, want error for unregistered source")
	}
}

func TestEnableDisableDoesNotTouchInFlight(t *testing.T) {
	stub := &stubCollector{source: ipstore.SourceRegtech}
	sched := New([]collector.Collector{stub}, ingest.NewPipeline(nil, nil), nil, testLogger(), 2, 90)

	sched.mu.Lock()
	sched.states[ipstore.SourceRegtech].inFlight = true
	sched.mu.Unlock()

	sched.Enable(ipstore.SourceRegtech, false)

	snap := sched.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() = %d entries, want 1", len(snap))
	}
	if snap[0].Enabled {
		t.Errorf("Enabled = true, want false after Enable(false)")
	}
	if !snap[0].InFlight {
		t.Errorf("InFlight = false, want true (Enable must not touch in-flight jobs)")
	}
}

func TestRecordFailureSetsBackoffWindow(t *testing.T) {
	stub := &stubCollector{source: ipstore.SourceRegtech}
	sched := New([]collector.Collector{stub}, ingest.NewPipeline(nil, nil), nil, testLogger(), 2, 90)

	st := sched.states[ipstore.SourceRegtech]
	sched.recordFailure(st)

	if st.consecutiveFailures != 1 {
		t.Errorf("consecutiveFailures = %d, want 1", st.consecutiveFailures)
	}
	if !st.nextAttempt.After(time.Now()) {
		t.Errorf("nextAttempt = %v, want a time in the future", st.nextAttempt)
	}

	sched.recordSuccess(st)
	if st.consecutiveFailures != 0 {
		t.Errorf("consecutiveFailures after success = %d, want 0", st.consecutiveFailures)
	}
}
