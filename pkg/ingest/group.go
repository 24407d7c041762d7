package ingest

import (
	"net/netip"
	"time"

	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

// groupCandidates runs the filter/canonicalise/group stages in isolation
// from the transact/commit/publish stages, so the pure logic is testable
// without a database.
func groupCandidates(candidates []collector.Candidate, source ipstore.Source, window Window, retention time.Duration) ([]ipstore.UpsertInput, UpsertStats) {
	var stats UpsertStats

	grouped := make(map[netip.Addr]ipstore.UpsertInput)
	order := make([]netip.Addr, 0, len(candidates))

	for _, c := range candidates {
		if !window.contains(c.DetectionDate) {
			stats.SkippedInvalid++
			continue
		}
		if !c.ThreatLevel.Valid() {
			stats.SkippedInvalid++
			continue
		}

		addr, err := netip.ParseAddr(c.IP)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}

		existing, ok := grouped[addr]
		if !ok {
			grouped[addr] = ipstore.UpsertInput{
				IP:            addr,
				Source:        source,
				ThreatLevel:   c.ThreatLevel,
				DetectionDate: c.DetectionDate,
				ExpiresAt:     c.DetectionDate.Add(retention),
			}
			order = append(order, addr)
			continue
		}

		stats.SkippedDup++
		merged := existing
		if severityRank(c.ThreatLevel) > severityRank(existing.ThreatLevel) {
			merged.ThreatLevel = c.ThreatLevel
		}
		if c.DetectionDate.Before(merged.DetectionDate) {
			merged.DetectionDate = c.DetectionDate
		}
		if expiry := c.DetectionDate.Add(retention); expiry.After(merged.ExpiresAt) {
			merged.ExpiresAt = expiry
		}
		grouped[addr] = merged
	}

	inputs := make([]ipstore.UpsertInput, 0, len(order))
	for _, addr := range order {
		inputs = append(inputs, grouped[addr])
	}
	return inputs, stats
}
