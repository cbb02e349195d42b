package api

import (
	"net/http"
	"time"

	"github.com/verseforge/verseforge/internal/apierr"
	"github.com/verseforge/verseforge/internal/httpserver"
	"github.com/verseforge/verseforge/pkg/metastore"
)

type dailyVerseResponse struct {
	ImageID        string    `json:"imageId"`
	ImageURL       string    `json:"imageUrl"`
	VerseReference string    `json:"verseReference"`
	VerseText      string    `json:"verseText"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// handleDailyVerse implements GET /api/daily-verse (spec §6): the most
// recent daily-verse image, looked up via the cached current imageId.
func (h *Handler) handleDailyVerse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	imageID, ok := h.cache.GetDailyVerse(ctx)
	if !ok {
		httpserver.RespondAPIError(w, r, apierr.NotFound("daily verse"))
		return
	}

	var img metastore.Image
	if err := h.cache.GetMetadata(ctx, imageID, &img); err != nil {
		httpserver.RespondAPIError(w, r, apierr.NotFound("daily verse"))
		return
	}

	imageURL := ""
	if img.BlobKey != nil {
		imageURL = h.storage.GetImageURL(*img.BlobKey, false, 0)
	}

	httpserver.Respond(w, http.StatusOK, dailyVerseResponse{
		ImageID:        img.ID,
		ImageURL:       imageURL,
		VerseReference: img.VerseReference,
		VerseText:      img.VerseText,
		GeneratedAt:    img.GeneratedAt,
	})
}
