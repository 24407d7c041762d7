package secudium

import (
	"context"
	"testing"
	"time"

	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

func TestParseExport(t *testing.T) {
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	page := []byte("1.2.3.4,high\n5.6.7.8,low\nnot-an-ip,high\n")

	candidates, err := parseExport(page, date)
	if err != nil {
		t.Fatalf("parseExport() error = %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("parseExport() = %d candidates, want 2", len(candidates))
	}
	if candidates[0].ThreatLevel != ipstore.ThreatHigh {
		t.Errorf("candidates[0].ThreatLevel = %v, want high", candidates[0].ThreatLevel)
	}
	if !candidates[0].DetectionDate.Equal(date) {
		t.Errorf("candidates[0].DetectionDate = %v, want %v", candidates[0].DetectionDate, date)
	}
}

func TestRunDisabledIsNoOp(t *testing.T) {
	c := New("https://secudium.example.net", false, nil, nil)

	batch, stats, err := c.Run(context.Background(), collector.DateRange{
		StartDate: time.Now(),
		EndDate:   time.Now(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil for disabled collector", err)
	}
	if !stats.Disabled {
		t.Errorf("stats.Disabled = false, want true")
	}
	if len(batch.Candidates) != 0 {
		t.Errorf("batch.Candidates = %v, want empty", batch.Candidates)
	}
}
