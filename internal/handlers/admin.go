package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/ingest"
)

type AdminHandler struct {
	orchestrator *ingest.Orchestrator
	logger       zerolog.Logger
}

func NewAdminHandler(orchestrator *ingest.Orchestrator, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		orchestrator: orchestrator,
		logger:       logger.With().Str("handler", "admin").Logger(),
	}
}

// Refresh triggers a pipeline pass outside the schedule and reports what
// it did. A refresh already in flight yields 409 rather than a second run.
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orchestrator.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, ingest.ErrRefreshInProgress) {
			http.Error(w, "Refresh already in progress", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Msg("manual refresh failed")
		http.Error(w, "Refresh failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
