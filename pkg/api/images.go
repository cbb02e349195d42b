package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verseforge/verseforge/internal/apierr"
	"github.com/verseforge/verseforge/internal/httpserver"
	"github.com/verseforge/verseforge/pkg/metastore"
	"github.com/verseforge/verseforge/pkg/storage"
)

type imageResponse struct {
	ImageID  string           `json:"imageId"`
	ImageURL string           `json:"imageUrl"`
	Metadata metastore.Image  `json:"metadata"`
}

// handleGetImage implements GET /api/images/:id (spec §6).
func (h *Handler) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var img metastore.Image
	if err := h.cache.GetMetadata(r.Context(), id, &img); err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			httpserver.RespondAPIError(w, r, apierr.NotFound("image"))
			return
		}
		httpserver.RespondAPIError(w, r, apierr.Wrap(apierr.CodeDatabaseQueryFailed, "loading image metadata", err))
		return
	}

	imageURL := ""
	if img.BlobKey != nil {
		imageURL = h.storage.GetImageURL(*img.BlobKey, false, 0)
	}

	httpserver.Respond(w, http.StatusOK, imageResponse{ImageID: img.ID, ImageURL: imageURL, Metadata: img})
}

// handleGetImageData implements GET /api/images/:id/data (spec §6): raw
// bytes with cache headers, or 304 when If-None-Match matches.
func (h *Handler) handleGetImageData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	img, obj, err := h.storage.GetImageWithMetadata(r.Context(), id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			httpserver.RespondAPIError(w, r, apierr.NotFound("image"))
			return
		}
		if apiErr, ok := apierr.As(err); ok {
			httpserver.RespondAPIError(w, r, apiErr)
			return
		}
		httpserver.RespondAPIError(w, r, apierr.Internal("loading image", err))
		return
	}
	_ = img

	if storage.CheckETagMatch(r.Header.Get("If-None-Match"), obj.ETag) {
		storage.GenerateCacheHeaders(w, obj)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	storage.GenerateCacheHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Body)
}

// handleShareImage implements GET /api/images/:id/share (spec §6): 302 to a
// WhatsApp share URL.
func (h *Handler) handleShareImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	img, err := h.meta.GetImage(r.Context(), id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			httpserver.RespondAPIError(w, r, apierr.NotFound("image"))
			return
		}
		httpserver.RespondAPIError(w, r, apierr.Wrap(apierr.CodeDatabaseQueryFailed, "loading image", err))
		return
	}

	imageURL := ""
	if img.BlobKey != nil {
		imageURL = h.storage.GetImageURL(*img.BlobKey, false, 0)
	}

	http.Redirect(w, r, buildWhatsAppShareURL(img.VerseText, img.VerseReference, imageURL), http.StatusFound)
}
