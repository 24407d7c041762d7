package serving

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jclee94/blacklist/internal/apperr"
	"github.com/jclee94/blacklist/internal/httpserver"
)

// Mount registers every read endpoint on r, per the external-interfaces
// contract: /blacklist/active, /fortigate, /v2/blacklist/enhanced,
// /v2/analytics/summary, /v2/sources/status.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/blacklist/active", h.servePlain)
	r.Get("/fortigate", h.serveFortiGate)
	r.Get("/v2/blacklist/enhanced", h.serveFortiGate)
	r.Get("/v2/analytics/summary", h.serveAnalytics)
	r.Get("/v2/sources/status", h.serveSourcesStatus)
}

func writeJSON(w http.ResponseWriter, payload []byte, err error) {
	if err != nil {
		httpserver.RespondError(w, apperr.KindStoreUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) servePlain(w http.ResponseWriter, r *http.Request) {
	payload, err := h.Plain(r.Context())
	if err != nil {
		httpserver.RespondError(w, apperr.KindStoreUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) serveFortiGate(w http.ResponseWriter, r *http.Request) {
	payload, err := h.FortiGate(r.Context())
	writeJSON(w, payload, err)
}

func (h *Handler) serveAnalytics(w http.ResponseWriter, r *http.Request) {
	payload, err := h.Analytics(r.Context(), r.URL.Query().Get("window"))
	writeJSON(w, payload, err)
}

func (h *Handler) serveSourcesStatus(w http.ResponseWriter, r *http.Request) {
	payload, err := h.SourcesStatus(r.Context())
	writeJSON(w, payload, err)
}
