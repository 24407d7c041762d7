package ingest

import (
	"testing"
	"time"

	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

func testWindow() Window {
	day := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	return Window{Start: day, End: day}
}

func TestGroupCandidatesFiltersInvalidIP(t *testing.T) {
	candidates := []collector.Candidate{
		{IP: "not-an-ip", ThreatLevel: ipstore.ThreatHigh, DetectionDate: testWindow().Start},
	}

	inputs, stats := groupCandidates(candidates, ipstore.SourceRegtech, testWindow(), 24*time.Hour)
	if len(inputs) != 0 {
		t.Fatalf("groupCandidates() = %d inputs, want 0", len(inputs))
	}
	if stats.SkippedInvalid != 1 {
		t.Errorf("stats.SkippedInvalid = %d, want 1", stats.SkippedInvalid)
	}
}

func TestGroupCandidatesFiltersOutOfWindowDate(t *testing.T) {
	window := testWindow()
	farOut := window.Start.AddDate(0, 0, 5)

	candidates := []collector.Candidate{
		{IP: "1.2.3.4", ThreatLevel: ipstore.ThreatLow, DetectionDate: farOut},
	}

	inputs, stats := groupCandidates(candidates, ipstore.SourceRegtech, window, 24*time.Hour)
	if len(inputs) != 0 {
		t.Fatalf("groupCandidates() = %d inputs, want 0 (date outside window ± 1 day)", len(inputs))
	}
	if stats.SkippedInvalid != 1 {
		t.Errorf("stats.SkippedInvalid = %d, want 1", stats.SkippedInvalid)
	}
}

func TestGroupCandidatesAllowsWindowPlusMinusOneDay(t *testing.T) {
	window := testWindow()
	oneDayLate := window.End.AddDate(0, 0, 1)

	candidates := []collector.Candidate{
		{IP: "1.2.3.4", ThreatLevel: ipstore.ThreatLow, DetectionDate: oneDayLate},
	}

	inputs, stats := groupCandidates(candidates, ipstore.SourceRegtech, window, 24*time.Hour)
	if len(inputs) != 1 {
		t.Fatalf("groupCandidates() = %d inputs, want 1 (date exactly one day outside window is allowed)", len(inputs))
	}
	if stats.SkippedInvalid != 0 {
		t.Errorf("stats.SkippedInvalid = %d, want 0", stats.SkippedInvalid)
	}
}

// TestGroupCandidatesTieBreak exercises P2: the final grouped record takes
// the max threat level, min first_seen (here: detection_date as the
// in-batch proxy), and the longest resulting expiry across duplicates.
func TestGroupCandidatesTieBreak(t *testing.T) {
	window := testWindow()
	earlier := window.Start
	later := window.Start.Add(6 * time.Hour)

	candidates := []collector.Candidate{
		{IP: "1.2.3.4", ThreatLevel: ipstore.ThreatLow, DetectionDate: later},
		{IP: "1.2.3.4", ThreatLevel: ipstore.ThreatCritical, DetectionDate: earlier},
	}

	inputs, stats := groupCandidates(candidates, ipstore.SourceRegtech, window, 24*time.Hour)
	if len(inputs) != 1 {
		t.Fatalf("groupCandidates() = %d inputs, want 1 (duplicate IP collapses to one row)", len(inputs))
	}
	if stats.SkippedDup != 1 {
		t.Errorf("stats.SkippedDup = %d, want 1", stats.SkippedDup)
	}

	got := inputs[0]
	if got.ThreatLevel != ipstore.ThreatCritical {
		t.Errorf("ThreatLevel = %v, want critical (max across duplicates)", got.ThreatLevel)
	}
	if !got.DetectionDate.Equal(earlier) {
		t.Errorf("DetectionDate = %v, want %v (min across duplicates)", got.DetectionDate, earlier)
	}
	if !got.ExpiresAt.Equal(later.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v (max expiry across duplicates)", got.ExpiresAt, later.Add(24*time.Hour))
	}
}

func TestGroupCandidatesFiltersInvalidThreatLevel(t *testing.T) {
	candidates := []collector.Candidate{
		{IP: "1.2.3.4", ThreatLevel: "extreme", DetectionDate: testWindow().Start},
	}

	inputs, stats := groupCandidates(candidates, ipstore.SourceRegtech, testWindow(), 24*time.Hour)
	if len(inputs) != 0 {
		t.Fatalf("groupCandidates() = %d inputs, want 0", len(inputs))
	}
	if stats.SkippedInvalid != 1 {
		t.Errorf("stats.SkippedInvalid = %d, want 1", stats.SkippedInvalid)
	}
}
