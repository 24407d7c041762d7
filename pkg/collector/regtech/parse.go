package regtech

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

// parsePage accepts either an HTML table export or a CSV export and returns
// the day's candidates, coercing the source's own detection-date cell
// rather than stamping wall-clock time.
func parsePage(page []byte, fallbackDate time.Time) ([]collector.Candidate, error) {
	trimmed := bytes.TrimSpace(page)
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return parseHTMLTable(page, fallbackDate)
	}
	return parseCSV(page, fallbackDate)
}

// parseHTMLTable walks <table><tr><td> nodes expecting columns
// [ip, threat_level, detection_date].
func parseHTMLTable(page []byte, fallbackDate time.Time) ([]collector.Candidate, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing html export: %w", err)
	}

	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for td := n.FirstChild; td != nil; td = td.NextSibling {
				if td.Type == html.ElementNode && td.Data == "td" {
					cells = append(cells, strings.TrimSpace(textContent(td)))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return rowsToCandidates(rows, fallbackDate)
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

// parseCSV parses a plain CSV export: ip,threat_level,detection_date.
func parseCSV(page []byte, fallbackDate time.Time) ([]collector.Candidate, error) {
	r := csv.NewReader(bytes.NewReader(page))
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing csv export: %w", err)
		}
		rows = append(rows, record)
	}

	return rowsToCandidates(rows, fallbackDate)
}

func rowsToCandidates(rows [][]string, fallbackDate time.Time) ([]collector.Candidate, error) {
	var out []collector.Candidate
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		ipText := strings.TrimSpace(row[0])
		if _, err := netip.ParseAddr(ipText); err != nil {
			continue // not a data row (e.g. a header); the ingestion pipeline still re-validates every candidate
		}

		level := ipstore.ThreatUnknown
		if len(row) > 1 && ipstore.ThreatLevel(strings.ToLower(strings.TrimSpace(row[1]))).Valid() {
			level = ipstore.ThreatLevel(strings.ToLower(strings.TrimSpace(row[1])))
		}

		date := fallbackDate
		if len(row) > 2 {
			if parsed, err := time.Parse("2006-01-02", strings.TrimSpace(row[2])); err == nil {
				date = parsed
			}
		}

		out = append(out, collector.Candidate{IP: ipText, ThreatLevel: level, DetectionDate: date})
	}
	return out, nil
}
