package api

import (
	"net/http"
)

// SweepHandler lets operators trigger the periodic sweeps on demand.
type SweepHandler struct {
	deps Dependencies
}

// NewSweepHandler creates a new sweep handler.
func NewSweepHandler(deps Dependencies) *SweepHandler {
	return &SweepHandler{deps: deps}
}

type behaviorResponse struct {
	Updated int `json:"updated"`
}

// HandleRefill handles POST /sweeps/refill.
func (h *SweepHandler) HandleRefill(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.RunRefillSweep(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleCatchup handles POST /sweeps/catchup.
func (h *SweepHandler) HandleCatchup(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.RunCatchupSweep(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleBehavior handles POST /sweeps/behavior.
func (h *SweepHandler) HandleBehavior(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.RecomputeBehavior(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, behaviorResponse{Updated: n})
}
