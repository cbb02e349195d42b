package api

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/verseforge/verseforge/internal/apierr"
	"github.com/verseforge/verseforge/internal/httpserver"
	"github.com/verseforge/verseforge/pkg/moderation"
)

type moderateRequest struct {
	ImageID string `json:"imageId" validate:"required"`
	Action  string `json:"action" validate:"required,oneof=approve reject"`
	Reason  string `json:"reason"`
}

type moderateResponse struct {
	Success bool `json:"success"`
}

// handleModerate implements POST /api/admin/moderate (spec §6). Requires a
// bearer token whose bcrypt hash matches the configured admin token hash.
func (h *Handler) handleModerate(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		httpserver.RespondAPIError(w, r, apierr.New(apierr.CodeUnauthorized, "missing authorization header"))
		return
	}
	token := strings.TrimPrefix(authz, "Bearer ")
	if h.adminTokenHash == "" {
		httpserver.RespondAPIError(w, r, apierr.New(apierr.CodeForbidden, "invalid admin token"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.adminTokenHash), []byte(token)); err != nil {
		httpserver.RespondAPIError(w, r, apierr.New(apierr.CodeForbidden, "invalid admin token"))
		return
	}

	var req moderateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.moderation.GetModerationStatus(r.Context(), req.ImageID); err != nil {
		if apiErr, ok := apierr.As(err); ok {
			httpserver.RespondAPIError(w, r, apiErr)
		} else {
			httpserver.RespondAPIError(w, r, apierr.Wrap(apierr.CodeDatabaseQueryFailed, "looking up image", err))
		}
		return
	}

	reviewerID := "admin"
	err := h.moderation.ModerateContent(r.Context(), moderation.ModerateAction{
		ImageID: req.ImageID,
		Action:  req.Action,
		Reason:  req.Reason,
	}, &reviewerID)
	if err != nil {
		httpserver.RespondAPIError(w, r, apierr.Wrap(apierr.CodeDatabaseQueryFailed, "applying moderation decision", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, moderateResponse{Success: true})
}
