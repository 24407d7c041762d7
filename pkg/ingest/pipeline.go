// Package ingest implements the Ingestion Pipeline: turning a collector's
// raw Batch into committed ipstore rows via
// filter -> canonicalise -> group -> transact -> commit -> publish.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jclee94/blacklist/pkg/cache"
	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

// Window bounds the acceptable detection_date range for a batch: any
// candidate outside window ± 1 day is dropped as stale or premature.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) contains(d time.Time) bool {
	return !d.Before(w.Start.AddDate(0, 0, -1)) && !d.After(w.End.AddDate(0, 0, 1))
}

// UpsertStats summarises what a single Apply call did, feeding the owning
// CollectionRun's outcome counters.
type UpsertStats struct {
	Inserted       int
	Updated        int
	SkippedInvalid int
	SkippedDup     int
}

// Pipeline applies collector batches to the IP Store.
type Pipeline struct {
	store *ipstore.Store
	rdb   *redis.Client // nil disables invalidation publish, matching cache.Layer
}

// NewPipeline creates a Pipeline writing through store, optionally
// publishing cache invalidations via rdb.
func NewPipeline(store *ipstore.Store, rdb *redis.Client) *Pipeline {
	return &Pipeline{store: store, rdb: rdb}
}

// severityRank breaks ties when grouping duplicate IPs within one batch by
// delegating to ipstore.ThreatLevel.Rank, which needs no Store round-trip.
func severityRank(level ipstore.ThreatLevel) int {
	return level.Rank()
}

// Apply runs the full filter/canonicalise/group/transact/commit/publish
// algorithm for one collector batch and returns the outcome.
func (p *Pipeline) Apply(ctx context.Context, source ipstore.Source, candidates []collector.Candidate, window Window, retention time.Duration) (UpsertStats, error) {
	inputs, stats := groupCandidates(candidates, source, window, retention)

	inserted, updated, err := p.store.UpsertBatch(ctx, inputs)
	if err != nil {
		return stats, fmt.Errorf("applying batch for source %s: %w", source, err)
	}
	stats.Inserted = inserted
	stats.Updated = updated

	if len(inputs) > 0 {
		if err := cache.PublishInvalidation(ctx, p.rdb, uint64(time.Now().UnixNano())); err != nil {
			return stats, fmt.Errorf("publishing cache invalidation: %w", err)
		}
	}

	return stats, nil
}
