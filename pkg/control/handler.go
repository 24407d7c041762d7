// Package control implements the Control Plane: status/enable/disable/
// trigger/credentials endpoints, talking to the Scheduler, the run history
// store, and the Credential Vault. Mounted behind internal/auth.Middleware.
package control

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jclee94/blacklist/internal/apperr"
	"github.com/jclee94/blacklist/internal/httpserver"
	"github.com/jclee94/blacklist/internal/vault"
	"github.com/jclee94/blacklist/pkg/collection"
	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ipstore"
	"github.com/jclee94/blacklist/pkg/scheduler"
)

// Handler serves every control-plane endpoint.
type Handler struct {
	scheduler *scheduler.Scheduler
	runs      *collection.Store
	vault     *vault.Vault
}

// NewHandler creates a control plane Handler.
func NewHandler(sched *scheduler.Scheduler, runs *collection.Store, v *vault.Vault) *Handler {
	return &Handler{scheduler: sched, runs: runs, vault: v}
}

// Mount registers every control-plane route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/status", h.status)
	r.Post("/enable", h.enable)
	r.Post("/disable", h.disable)
	r.Post("/{source}/trigger", h.trigger)
	r.Post("/credentials", h.setCredentials)
	r.Get("/history", h.history)
}

type lastRun struct {
	Source     ipstore.Source `json:"source"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Inserted   int            `json:"inserted"`
	Updated    int            `json:"updated"`
}

type statusResponse struct {
	EnabledSources []ipstore.Source `json:"enabled_sources"`
	InFlight       []ipstore.Source `json:"in_flight"`
	LastRuns       []lastRun        `json:"last_runs"`
}

// status never blocks on an in-flight run: Scheduler.Snapshot is a
// mutex-guarded copy, not a query against a live collector.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	snap := h.scheduler.Snapshot()

	resp := statusResponse{
		EnabledSources: make([]ipstore.Source, 0, len(snap)),
		InFlight:       make([]ipstore.Source, 0, len(snap)),
	}
	for _, s := range snap {
		if s.Enabled {
			resp.EnabledSources = append(resp.EnabledSources, s.Source)
		}
		if s.InFlight {
			resp.InFlight = append(resp.InFlight, s.Source)
		}
	}

	summaries, err := h.runs.LastRunPerSource(r.Context())
	if err != nil {
		httpserver.RespondError(w, apperr.KindStoreUnavailable, err.Error())
		return
	}
	resp.LastRuns = make([]lastRun, 0, len(summaries))
	for _, s := range summaries {
		resp.LastRuns = append(resp.LastRuns, lastRun{
			Source:     s.Source,
			Status:     string(s.Status),
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
			Inserted:   s.Inserted,
			Updated:    s.Updated,
		})
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type sourceToggleRequest struct {
	Source ipstore.Source `json:"source" form:"source" validate:"required"`
}

func (h *Handler) enable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *Handler) disable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, enabled bool) {
	var req sourceToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Source.Valid() {
		httpserver.RespondErrorField(w, apperr.KindValidationError, "unknown source", "source")
		return
	}

	h.scheduler.Enable(req.Source, enabled)
	httpserver.Respond(w, http.StatusOK, map[string]any{"source": req.Source, "enabled": enabled})
}

type triggerRequest struct {
	StartDate string `json:"start_date" form:"start_date"`
	EndDate   string `json:"end_date" form:"end_date"`
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	source := ipstore.Source(chi.URLParam(r, "source"))
	if !source.Valid() {
		httpserver.RespondErrorField(w, apperr.KindValidationError, "unknown source", "source")
		return
	}

	var req triggerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	now := time.Now()
	window := collector.DateRange{StartDate: now.AddDate(0, 0, -1), EndDate: now}
	if req.StartDate != "" {
		d, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			httpserver.RespondErrorField(w, apperr.KindValidationError, "start_date must be YYYY-MM-DD", "start_date")
			return
		}
		window.StartDate = d
	}
	if req.EndDate != "" {
		d, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			httpserver.RespondErrorField(w, apperr.KindValidationError, "end_date must be YYYY-MM-DD", "end_date")
			return
		}
		window.EndDate = d
	}

	runID, err := h.scheduler.Trigger(r.Context(), source, window)
	if err != nil {
		if err == scheduler.ErrAlreadyRunning {
			httpserver.RespondError(w, apperr.KindAlreadyRunning, err.Error())
			return
		}
		httpserver.RespondError(w, apperr.KindSourceUnavailable, err.Error())
		return
	}

	httpserver.Respond(w, http.StatusAccepted, map[string]any{"run_id": runID, "source": source})
}

type historyEntry struct {
	RunID       string         `json:"run_id"`
	Source      ipstore.Source `json:"source"`
	Status      string         `json:"status"`
	StartDate   time.Time      `json:"start_date"`
	EndDate     time.Time      `json:"end_date"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Inserted    int            `json:"inserted"`
	Updated     int            `json:"updated"`
	Skipped     int            `json:"skipped_total"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// history serves keyset-paginated run history, optionally filtered to one
// source via ?source=, so an operator auditing a long-running deployment
// never has to pull the entire collection_runs table in one response.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	var source *ipstore.Source
	if raw := r.URL.Query().Get("source"); raw != "" {
		s := ipstore.Source(raw)
		if !s.Valid() {
			httpserver.RespondErrorField(w, apperr.KindValidationError, "unknown source", "source")
			return
		}
		source = &s
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondErrorField(w, apperr.KindValidationError, err.Error(), "after")
		return
	}

	var afterCreatedAt time.Time
	var afterID uuid.UUID
	if params.After != nil {
		afterCreatedAt = params.After.CreatedAt
		afterID = params.After.ID
	}

	runs, err := h.runs.ListRuns(r.Context(), source, afterCreatedAt, afterID, params.Limit+1)
	if err != nil {
		httpserver.RespondError(w, apperr.KindStoreUnavailable, err.Error())
		return
	}

	page := httpserver.NewCursorPage(runs, params.Limit, func(run collection.Run) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: run.CreatedAt, ID: run.ID}
	})

	entries := make([]historyEntry, 0, len(page.Items))
	for _, run := range page.Items {
		entries = append(entries, historyEntry{
			RunID: run.ID.String(), Source: run.Source, Status: string(run.Status),
			StartDate: run.StartDate, EndDate: run.EndDate, StartedAt: run.StartedAt,
			FinishedAt: run.FinishedAt, Inserted: run.Inserted, Updated: run.Updated,
			Skipped: run.SkippedTotal, ErrorDetail: run.ErrorDetail,
		})
	}

	httpserver.Respond(w, http.StatusOK, httpserver.CursorPage[historyEntry]{
		Items: entries, NextCursor: page.NextCursor, HasMore: page.HasMore,
	})
}

type setCredentialsRequest struct {
	Source   ipstore.Source `json:"source" form:"source" validate:"required"`
	Username string         `json:"username" form:"username"`
	Secret   string         `json:"secret" form:"secret" validate:"required"`
}

func (h *Handler) setCredentials(w http.ResponseWriter, r *http.Request) {
	var req setCredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Source.Valid() {
		httpserver.RespondErrorField(w, apperr.KindValidationError, "unknown source", "source")
		return
	}
	if req.Secret == "" {
		httpserver.RespondErrorField(w, apperr.KindValidationError, "this field is required", "secret")
		return
	}

	if err := h.vault.Put(req.Source, req.Username, req.Secret); err != nil {
		httpserver.RespondError(w, apperr.KindVaultCorrupt, err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"source": req.Source, "rotated_at": time.Now()})
}
