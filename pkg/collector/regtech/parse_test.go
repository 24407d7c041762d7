package regtech

import (
	"testing"
	"time"
)

func TestParseCSVPage(t *testing.T) {
	fallback := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	page := []byte("1.2.3.4,high,2026-07-01\n5.6.7.8,low,2026-07-02\nnot-an-ip,high,2026-07-01\n")

	candidates, err := parseCSV(page, fallback)
	if err != nil {
		t.Fatalf("parseCSV() error = %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("parseCSV() = %d candidates, want 2 (invalid IP row skipped)", len(candidates))
	}
	if candidates[0].IP != "1.2.3.4" || candidates[0].ThreatLevel != "high" {
		t.Errorf("candidates[0] = %+v", candidates[0])
	}
	if !candidates[1].DetectionDate.Equal(time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("candidates[1].DetectionDate = %v, want 2026-07-02", candidates[1].DetectionDate)
	}
}

func TestParseHTMLTablePage(t *testing.T) {
	fallback := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	page := []byte(`<html><body><table>
		<tr><th>ip</th><th>level</th><th>date</th></tr>
		<tr><td>10.0.0.1</td><td>critical</td><td>2026-07-01</td></tr>
	</table></body></html>`)

	candidates, err := parseHTMLTable(page, fallback)
	if err != nil {
		t.Fatalf("parseHTMLTable() error = %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("parseHTMLTable() = %d candidates, want 1", len(candidates))
	}
	if candidates[0].IP != "10.0.0.1" || candidates[0].ThreatLevel != "critical" {
		t.Errorf("candidates[0] = %+v", candidates[0])
	}
}

func TestParsePageDispatchesByContent(t *testing.T) {
	fallback := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	csvCandidates, err := parsePage([]byte("1.2.3.4,low,2026-07-01\n"), fallback)
	if err != nil || len(csvCandidates) != 1 {
		t.Errorf("parsePage(csv) = %v, %v", csvCandidates, err)
	}

	htmlCandidates, err := parsePage([]byte("<table><tr><td>1.2.3.4</td></tr></table>"), fallback)
	if err != nil || len(htmlCandidates) != 1 {
		t.Errorf("parsePage(html) = %v, %v", htmlCandidates, err)
	}
}
