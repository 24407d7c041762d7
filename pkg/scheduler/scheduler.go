// Package scheduler runs collectors on a periodic schedule plus on-demand
// triggers, enforcing one in-flight job per source and a global concurrency
// cap, with state persisted via pkg/collection.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jclee94/blacklist/pkg/collection"
	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ingest"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

// ErrAlreadyRunning is returned by Trigger when the source already has an
// in-flight run, mapped to HTTP 409 by the control plane.
var ErrAlreadyRunning = errors.New("scheduler: source already has a run in flight")

const (
	baseBackoff  = 30 * time.Second
	maxBackoff   = 30 * time.Minute
	cancelGrace  = 30 * time.Second
	tickInterval = time.Minute
)

// sourceState tracks one source's scheduling state.
type sourceState struct {
	inFlight            bool
	consecutiveFailures int
	enabled             bool
	cancel              context.CancelFunc
	nextAttempt         time.Time
}

// Scheduler dispatches collector runs, one in flight per source, bounded by
// a global semaphore, on both a periodic ticker and on-demand triggers.
type Scheduler struct {
	collectors map[ipstore.Source]collector.Collector
	pipeline   *ingest.Pipeline
	runs       *collection.Store
	logger     *slog.Logger
	retention  time.Duration

	sem chan struct{}

	mu     sync.Mutex
	states map[ipstore.Source]*sourceState
}

// New creates a Scheduler over the given collectors. maxConcurrent bounds
// how many collector runs may be in flight across every source at once.
// retentionDays sets the expiry horizon handed to the ingestion pipeline on
// every successful run (config.Config.RetentionDays).
func New(collectors []collector.Collector, pipeline *ingest.Pipeline, runs *collection.Store, logger *slog.Logger, maxConcurrent, retentionDays int) *Scheduler {
	s := &Scheduler{
		collectors: make(map[ipstore.Source]collector.Collector, len(collectors)),
		pipeline:   pipeline,
		runs:       runs,
		logger:     logger,
		retention:  time.Duration(retentionDays) * 24 * time.Hour,
		sem:        make(chan struct{}, maxConcurrent),
		states:     make(map[ipstore.Source]*sourceState, len(collectors)),
	}
	for _, c := range collectors {
		s.collectors[c.Source()] = c
		s.states[c.Source()] = &sourceState{enabled: true}
	}
	return s
}

// Run drives a single ticker that calls tick every tickInterval for all
// sources; on-demand runs are started directly by Trigger. It blocks until
// ctx is cancelled, mirroring the teacher's ticker+select engine loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "sources", len(s.collectors))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires a scheduled run for every enabled source whose backoff window
// has elapsed. Errors are logged, never returned, matching the teacher's
// tick-never-aborts-the-loop convention.
func (s *Scheduler) tick(ctx context.Context) {
	for source := range s.collectors {
		s.mu.Lock()
		st := s.states[source]
		skip := st.inFlight || !st.enabled || time.Now().Before(st.nextAttempt)
		s.mu.Unlock()
		if skip {
			continue
		}

		now := time.Now()
		window := collector.DateRange{StartDate: now.AddDate(0, 0, -1), EndDate: now}
		if _, err := s.Trigger(ctx, source, window); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.logger.Error("scheduler: triggering scheduled run", "source", source, "error", err)
		}
	}
}

// Trigger starts a run for source over window, returning ErrAlreadyRunning
// if one is already in flight. The run executes on its own goroutine inside
// the scheduler's bounded worker pool.
func (s *Scheduler) Trigger(ctx context.Context, source ipstore.Source, window collector.DateRange) (uuid.UUID, error) {
	c, ok := s.collectors[source]
	if !ok {
		return uuid.UUID{}, fmt.Errorf("scheduler: unknown source %s", source)
	}

	s.mu.Lock()
	st := s.states[source]
	if st.inFlight {
		s.mu.Unlock()
		return uuid.UUID{}, ErrAlreadyRunning
	}
	st.inFlight = true
	s.mu.Unlock()

	run := collection.Run{
		ID:        uuid.New(),
		Source:    source,
		Status:    collection.StatusPending,
		StartDate: window.StartDate,
		EndDate:   window.EndDate,
		StartedAt: time.Now(),
	}
	run, err := s.runs.CreateRun(ctx, run)
	if err != nil {
		s.releaseInFlight(source)
		return uuid.UUID{}, fmt.Errorf("scheduler: recording run: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	st.cancel = cancel
	s.mu.Unlock()

	go s.execute(runCtx, cancel, c, run, window)

	return run.ID, nil
}

// Cancel stops an in-flight run by cancelling its context. The collector's
// own loop checks ctx.Err() between pages, and a cancelled run commits
// nothing. Nothing abandons a collector that ignores cancellation: the grace
// timer in execute only logs a warning once a run has lasted cancelGrace,
// whether or not it was cancelled.
func (s *Scheduler) Cancel(source ipstore.Source) {
	s.mu.Lock()
	st, ok := s.states[source]
	var cancel context.CancelFunc
	if ok {
		cancel = st.cancel
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Enable flips a source's scheduling flag without touching any in-flight
// job, consulted by the next tick.
func (s *Scheduler) Enable(source ipstore.Source, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[source]; ok {
		st.enabled = enabled
	}
}

// Snapshot is a non-blocking copy of one source's scheduling state, backing
// the control plane's status endpoint.
type Snapshot struct {
	Source              ipstore.Source
	InFlight            bool
	Enabled             bool
	ConsecutiveFailures int
}

// Snapshot returns a copy of every source's current state.
func (s *Scheduler) Snapshot() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Snapshot, 0, len(s.states))
	for source, st := range s.states {
		out = append(out, Snapshot{
			Source:              source,
			InFlight:            st.inFlight,
			Enabled:             st.enabled,
			ConsecutiveFailures: st.consecutiveFailures,
		})
	}
	return out
}

func (s *Scheduler) releaseInFlight(source ipstore.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[source]; ok {
		st.inFlight = false
		st.cancel = nil
	}
}

// execute runs a single collection inside the bounded worker pool, applies
// its batch through the ingestion pipeline, and persists the outcome.
func (s *Scheduler) execute(ctx context.Context, cancel context.CancelFunc, c collector.Collector, run collection.Run, window collector.DateRange) {
	defer cancel()
	defer s.releaseInFlight(run.Source)

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return
	}

	grace := time.AfterFunc(cancelGrace, func() {
		s.logger.Warn("scheduler: run exceeded cancellation grace period", "run_id", run.ID, "source", run.Source)
	})
	defer grace.Stop()

	if err := run.Transition(collection.StatusRunning); err != nil {
		s.logger.Error("scheduler: illegal run transition", "run_id", run.ID, "error", err)
		return
	}
	if err := s.runs.UpdateStatus(ctx, run); err != nil {
		s.logger.Error("scheduler: persisting run transition", "run_id", run.ID, "error", err)
	}

	batch, stats, err := c.Run(ctx, window)

	s.mu.Lock()
	st := s.states[run.Source]
	s.mu.Unlock()

	switch {
	case stats.Disabled:
		_ = run.Transition(collection.StatusDisabled)
		run.ErrorDetail = "source disabled"
	case ctx.Err() != nil:
		_ = run.Transition(collection.StatusCancelled)
		run.ErrorDetail = ctx.Err().Error()
	case err != nil:
		s.recordFailure(st)
		_ = run.Transition(collection.StatusFailed)
		run.ErrorDetail = err.Error()
	default:
		ingestWindow := ingest.Window{Start: window.StartDate, End: window.EndDate}
		upsertStats, applyErr := s.pipeline.Apply(ctx, run.Source, batch.Candidates, ingestWindow, s.retention)
		run.Inserted = upsertStats.Inserted
		run.Updated = upsertStats.Updated
		run.SkippedTotal = upsertStats.SkippedInvalid + upsertStats.SkippedDup

		switch {
		case applyErr != nil:
			// A uniqueness violation on one row rolls the batch back and
			// marks the run partial; any other DB error fails it.
			var pgErr *pgconn.PgError
			if errors.As(applyErr, &pgErr) && pgErr.Code == "23505" {
				s.recordSuccess(st)
				_ = run.Transition(collection.StatusPartial)
			} else {
				s.recordFailure(st)
				_ = run.Transition(collection.StatusFailed)
			}
			run.ErrorDetail = applyErr.Error()
		case stats.ErrorKind == collector.ErrorSourceUnavailable:
			s.recordFailure(st)
			_ = run.Transition(collection.StatusFailed)
			run.ErrorDetail = stats.ErrorDetail
		case stats.ErrorKind == collector.ErrorPartial:
			s.recordSuccess(st)
			_ = run.Transition(collection.StatusPartial)
			run.ErrorDetail = stats.ErrorDetail
		default:
			s.recordSuccess(st)
			_ = run.Transition(collection.StatusSuccess)
		}
	}

	if err := s.runs.UpdateStatus(ctx, run); err != nil {
		s.logger.Error("scheduler: persisting run outcome", "run_id", run.ID, "error", err)
	}
}

func (s *Scheduler) recordFailure(st *sourceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.consecutiveFailures++
	st.nextAttempt = time.Now().Add(collector.NextDelay(baseBackoff, st.consecutiveFailures, maxBackoff))
}

func (s *Scheduler) recordSuccess(st *sourceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.consecutiveFailures = 0
	st.nextAttempt = time.Time{}
}
