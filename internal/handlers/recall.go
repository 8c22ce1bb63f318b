package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/repository"
)

type RecallHandler struct {
	recalls repository.RecallRepository
	logger  zerolog.Logger
}

func NewRecallHandler(recalls repository.RecallRepository, logger zerolog.Logger) *RecallHandler {
	return &RecallHandler{
		recalls: recalls,
		logger:  logger.With().Str("handler", "recall").Logger(),
	}
}

// List serves the partner recall feed: newest recalls first, optionally
// narrowed by a product substring and a source. Capped at 50 rows.
func (h *RecallHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.RecallFilter{
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
		Source: models.Source(strings.TrimSpace(r.URL.Query().Get("source"))),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 32); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}

	recalls, err := h.recalls.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list recalls")
		http.Error(w, "Failed to list recalls", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recalls": recalls,
	})
}

// RemedyUpdates serves a recall's append-only remedy history. Scraper
// sources embed a slash ("misc/<site>"); callers URL-encode it.
func (h *RecallHandler) RemedyUpdates(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	src := models.Source(vars["source"])
	externalID := vars["id"]

	recall, err := h.recalls.GetBySourceExternalID(r.Context(), src, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Recall not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).
			Str("source", string(src)).
			Str("external_id", externalID).
			Msg("failed to load recall")
		http.Error(w, "Failed to load recall", http.StatusInternalServerError)
		return
	}

	updates := recall.RemedyHist
	if updates == nil {
		updates = []models.RemedyUpdate{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recall_id":      recall.ID,
		"remedy_updates": updates,
	})
}
