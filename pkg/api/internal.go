package api

import (
	"net/http"

	"github.com/verseforge/verseforge/internal/apierr"
	"github.com/verseforge/verseforge/internal/httpserver"
)

type setDailyVerseRequest struct {
	ImageID string `json:"imageId" validate:"required"`
}

// handleSetDailyVerse is the development-only override mounted at
// POST /internal/set-daily-verse when ENVIRONMENT=development (spec §6),
// used to seed a known daily verse for manual testing without waiting for
// the scheduler's 06:00 trigger.
func (h *Handler) handleSetDailyVerse(w http.ResponseWriter, r *http.Request) {
	var req setDailyVerseRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	var exists struct {
		ID string `json:"id"`
	}
	if err := h.cache.GetMetadata(ctx, req.ImageID, &exists); err != nil {
		httpserver.RespondAPIError(w, r, apierr.NotFound("image"))
		return
	}

	h.cache.SetDailyVerse(ctx, req.ImageID)
	httpserver.Respond(w, http.StatusOK, map[string]bool{"success": true})
}
