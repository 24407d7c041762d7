package control

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/jclee94/blacklist/internal/vault"
	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ingest"
	"github.com/jclee94/blacklist/pkg/ipstore"
	"github.com/jclee94/blacklist/pkg/scheduler"
)

// stubCollector satisfies collector.Collector without ever running; the
// control plane tests below never reach Run, only Enable/Snapshot, so the
// run-execution path (which needs a live collection.Store) stays untested
// here the same way pkg/scheduler's own tests avoid it.
type stubCollector struct{ source ipstore.Source }

func (s stubCollector) Source() ipstore.Source { return s.source }

func (s stubCollector) Run(ctx context.Context, window collector.DateRange) (collector.Batch, collector.RunStats, error) {
	return collector.Batch{}, collector.RunStats{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHandler(t *testing.T) *Handler {
	t.Helper()
	sched := scheduler.New(
		[]collector.Collector{stubCollector{source: ipstore.SourceRegtech}},
		ingest.NewPipeline(nil, nil),
		nil,
		testLogger(),
		2,
		90,
	)

	dir := t.TempDir()
	v, err := vault.New(filepath.Join(dir, "entries"), filepath.Join(dir, ".seed"), 0, nil)
	if err != nil {
		t.Fatalf("vault.New() error = %v", err)
	}

	return NewHandler(sched, nil, v)
}

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func TestEnableDisableRoundTrip(t *testing.T) {
	h := testHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodPost, "/disable", strings.NewReader(`{"source":"REGTECH"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("disable: status = %d, body = %s", w.Code, w.Body.String())
	}

	snap := h.scheduler.Snapshot()
	for _, s := range snap {
		if s.Source == ipstore.SourceRegtech && s.Enabled {
			t.Errorf("source %s still enabled after /disable", s.Source)
		}
	}

	req = httptest.NewRequest(http.MethodPost, "/enable", strings.NewReader(`{"source":"REGTECH"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("enable: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestEnableRejectsUnknownSource(t *testing.T) {
	h := testHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodPost, "/enable", strings.NewReader(`{"source":"BOGUS"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestEnableAcceptsFormEncodedBody(t *testing.T) {
	h := testHandler(t)
	r := router(h)

	form := url.Values{"source": {"REGTECH"}}
	req := httptest.NewRequest(http.MethodPost, "/enable", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestTriggerRejectsUnknownSource(t *testing.T) {
	h := testHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodPost, "/BOGUS/trigger", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestTriggerRejectsMalformedDate(t *testing.T) {
	h := testHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodPost, "/REGTECH/trigger", strings.NewReader(`{"start_date":"not-a-date"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d, body = %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestSetCredentialsRoundTrip(t *testing.T) {
	h := testHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodPost, "/credentials", strings.NewReader(`{"source":"REGTECH","username":"op","secret":"s3cr3t"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	cred, err := h.vault.Get(ipstore.SourceRegtech)
	if err != nil {
		t.Fatalf("vault.Get() error = %v", err)
	}
	if cred.Username != "op" || cred.Secret != "s3cr3t" {
		t.Errorf("vault.Get() = %+v, want username=op secret=s3cr3t", cred)
	}
}

func TestHistoryRejectsUnknownSource(t *testing.T) {
	h := testHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodGet, "/history?source=BOGUS", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d, body = %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestHistoryRejectsMalformedCursor(t *testing.T) {
	h := testHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodGet, "/history?after=not-a-cursor", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d, body = %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestSetCredentialsRejectsMissingSecret(t *testing.T) {
	h := testHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodPost, "/credentials", strings.NewReader(`{"source":"REGTECH","username":"op"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
