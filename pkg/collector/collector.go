// Package collector defines the Source Collector contract shared by every
// upstream adapter (REGTECH, SECUDIUM): authenticate, fetch, parse, and
// report back a uniform RunStats regardless of the wire format underneath.
package collector

import (
	"context"
	"time"

	"github.com/jclee94/blacklist/pkg/ipstore"
)

// DateRange bounds a single collection run; EndDate is inclusive.
type DateRange struct {
	StartDate time.Time
	EndDate   time.Time
}

// Candidate is one detection as reported by a source, before it passes
// through the ingestion pipeline's canonicalisation and grouping.
type Candidate struct {
	IP            string
	ThreatLevel   ipstore.ThreatLevel
	DetectionDate time.Time
}

// Batch is the raw output of a single Run: every candidate the source
// reported, regardless of validity — the ingestion pipeline does the
// filtering.
type Batch struct {
	Source     ipstore.Source
	Candidates []Candidate
}

// ErrorKind enumerates the ways a collector run can come up short, carried
// in RunStats so the Scheduler can decide retry/backoff without parsing
// error strings.
type ErrorKind string

const (
	ErrorNone             ErrorKind = ""
	ErrorAuthFailed       ErrorKind = "auth_failed"
	ErrorSourceUnavailable ErrorKind = "source_unavailable"
	ErrorParseError       ErrorKind = "parse_error"
	ErrorRateLimited      ErrorKind = "rate_limited"
	ErrorPartial          ErrorKind = "partial"
)

// RunStats summarises the outcome of a single collector Run, independent of
// how many records it produced.
type RunStats struct {
	ErrorKind   ErrorKind
	ErrorDetail string
	PagesOK     int
	PagesFailed int
	Disabled    bool
}

// Collector is implemented by every source adapter.
type Collector interface {
	// Source identifies which source this collector reports detections for.
	Source() ipstore.Source
	// Run fetches and parses every detection in the given date range.
	Run(ctx context.Context, window DateRange) (Batch, RunStats, error)
}
