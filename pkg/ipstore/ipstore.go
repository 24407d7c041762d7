// Package ipstore is the canonical persistent store of blacklisted IP
// records: one row per IP, with the detection attributes and source
// attribution set described by the data model.
package ipstore

import (
	"net/netip"
	"time"
)

// Source identifies which upstream provider contributed a detection.
type Source string

const (
	SourceRegtech  Source = "REGTECH"
	SourceSecudium Source = "SECUDIUM"
	SourceManual   Source = "MANUAL"
)

// Valid reports whether s is one of the recognised sources.
func (s Source) Valid() bool {
	switch s {
	case SourceRegtech, SourceSecudium, SourceManual:
		return true
	default:
		return false
	}
}

// ThreatLevel is the severity classification carried by a detection.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
	// ThreatUnknown marks a detection whose severity could not be parsed
	// from the source feed. It must never be silently coerced to
	// ThreatLow — a blacklist feed that can't tell "low risk" from
	// "couldn't tell" is lying to its consumers.
	ThreatUnknown ThreatLevel = "unknown"
)

// Valid reports whether t is one of the recognised threat levels.
func (t ThreatLevel) Valid() bool {
	switch t {
	case ThreatLow, ThreatMedium, ThreatHigh, ThreatCritical, ThreatUnknown:
		return true
	default:
		return false
	}
}

// rank orders threat levels for the ingestion pipeline's tie-break: higher
// rank wins when the same IP is reported at two levels in one batch.
// ThreatUnknown ranks below ThreatLow so any determined severity always
// wins the tie-break over an undetermined one.
var rank = map[ThreatLevel]int{
	ThreatUnknown:  -1,
	ThreatLow:      0,
	ThreatMedium:   1,
	ThreatHigh:     2,
	ThreatCritical: 3,
}

// Rank returns t's precedence for the max-threat-level tie-break. Unknown
// levels rank below ThreatLow.
func (t ThreatLevel) Rank() int {
	if r, ok := rank[t]; ok {
		return r
	}
	return -1
}

// SourceSet is the attribution set for a record: every source that has ever
// reported this IP, stored as a Postgres text[].
type SourceSet []Source

// Contains reports whether s is already a member of the set.
func (ss SourceSet) Contains(s Source) bool {
	for _, existing := range ss {
		if existing == s {
			return true
		}
	}
	return false
}

// Union returns a new SourceSet containing every distinct source in ss and s,
// preserving ss's existing order and appending only new members.
func (ss SourceSet) Union(s Source) SourceSet {
	if ss.Contains(s) {
		return ss
	}
	out := make(SourceSet, len(ss), len(ss)+1)
	copy(out, ss)
	return append(out, s)
}

// Record is the canonical IPRecord: one row per distinct IP address.
type Record struct {
	IP            netip.Addr
	Source        SourceSet
	ThreatLevel   ThreatLevel
	DetectionDate time.Time
	FirstSeen     time.Time
	LastSeen      time.Time
	ExpiresAt     time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Stats is a grouped count used by the analytics formatter.
type Stats struct {
	Source      Source
	ThreatLevel ThreatLevel
	Day         time.Time
	Count       int
}
