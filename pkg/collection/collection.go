// Package collection models a CollectionRun: one execution of a source
// collector, its state machine, and its Postgres-backed history.
package collection

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jclee94/blacklist/pkg/ipstore"
)

// Status is the CollectionRun lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusDisabled marks a no-op run for a source whose collection is
	// currently disabled; the Scheduler records it rather than treating
	// disablement as a failure.
	StatusDisabled Status = "disabled"
)

// terminal reports whether a status is a final state with no further
// transitions permitted.
func (s Status) terminal() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed, StatusCancelled, StatusDisabled:
		return true
	default:
		return false
	}
}

// allowedTransitions enumerates the legal state machine edges.
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusCancelled},
	StatusRunning: {StatusSuccess, StatusPartial, StatusFailed, StatusCancelled, StatusDisabled},
}

// Run is a single CollectionRun: one execution of a source collector over a
// date range.
type Run struct {
	ID            uuid.UUID
	Source        ipstore.Source
	Status        Status
	StartDate     time.Time
	EndDate       time.Time
	StartedAt     time.Time
	FinishedAt    *time.Time
	Inserted      int
	Updated       int
	SkippedTotal  int
	ErrorDetail   string
	CreatedAt     time.Time
}

// Transition moves the run to a new status, enforcing the state machine.
// Transitioning into or out of a terminal state a second time is refused.
func (r *Run) Transition(to Status) error {
	if r.Status.terminal() {
		return fmt.Errorf("collection run %s: cannot transition out of terminal status %s", r.ID, r.Status)
	}
	allowed := allowedTransitions[r.Status]
	ok := false
	for _, a := range allowed {
		if a == to {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("collection run %s: illegal transition %s -> %s", r.ID, r.Status, to)
	}
	r.Status = to
	if to.terminal() {
		now := time.Now()
		r.FinishedAt = &now
	}
	return nil
}

// LastRunSummary is the thin read used by GET /api/v2/sources/status and the
// control plane's status endpoint.
type LastRunSummary struct {
	Source     ipstore.Source
	Status     Status
	StartedAt  time.Time
	FinishedAt *time.Time
	Inserted   int
	Updated    int
}
