package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/verseforge/verseforge/internal/apierr"
	"github.com/verseforge/verseforge/internal/httpserver"
	"github.com/verseforge/verseforge/pkg/modelclient"
	"github.com/verseforge/verseforge/pkg/moderation"
	"github.com/verseforge/verseforge/pkg/promptcomposer"
	"github.com/verseforge/verseforge/pkg/ratelimit"
	"github.com/verseforge/verseforge/pkg/storage"
	"github.com/verseforge/verseforge/pkg/validator"
	"github.com/verseforge/verseforge/pkg/verse"
)

type generateRequest struct {
	VerseReference string `json:"verseReference" validate:"required"`
	VerseText      string `json:"verseText"`
	StylePreset    string `json:"stylePreset"`
	CustomPrompt   string `json:"customPrompt"`
	RequestID      string `json:"requestId"`
}

type generateResponse struct {
	ImageID          string `json:"imageId"`
	ImageURL         string `json:"imageUrl"`
	WhatsappShareURL string `json:"whatsappShareUrl"`
	VerseReference   string `json:"verseReference"`
	VerseText        string `json:"verseText"`
}

// identityFor derives the RateCoordinator identity: the authenticated
// subject when present, otherwise the client IP (spec glossary "Identity").
// This service has no auth subject yet, so it always keys on IP.
func identityFor(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// handleGenerate drives the full state machine in spec §4.11: received →
// validated → rate-checked → [idempotency-hit → respond] or
// [verse-resolved → prompt-composed → model-called → moderation-gated →
// blob-put → meta-inserted → cache-populated → respond].
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := httpserver.RequestIDFromContext(r.Context())
	ctx := r.Context()

	var req generateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		h.recordTelemetry("generate", requestID, "invalid_request", start)
		return
	}

	result := h.validator.ValidateGenerationRequest(validator.GenerationRequest{
		VerseReference: req.VerseReference,
		VerseText:      req.VerseText,
		StylePreset:    req.StylePreset,
		CustomPrompt:   req.CustomPrompt,
		RequestID:      req.RequestID,
	})
	if !result.Valid {
		httpserver.RespondAPIError(w, r, mapValidationError(result.Errors))
		h.recordTelemetry("generate", requestID, "invalid_request", start)
		return
	}

	identity := identityFor(r)
	check := h.rateLimiter.Check(ctx, identity, nil, ratelimit.TierAnonymous)
	if !check.Allowed {
		retryAfter := int(time.Until(check.ResetAt).Seconds())
		httpserver.RespondAPIError(w, r, apierr.New(apierr.CodeRateLimitExceeded, "rate limit exceeded").WithRetryAfter(retryAfter))
		h.recordTelemetry("generate", requestID, "rate_limited", start)
		return
	}

	if req.RequestID != "" {
		var cached generateResponse
		if err := h.cache.GetMetadata(ctx, req.RequestID, &cached); err == nil && cached.ImageID != "" {
			httpserver.Respond(w, http.StatusOK, cached)
			h.recordTelemetry("generate", requestID, "idempotent_hit", start)
			return
		}
	}

	_, verseText, err := h.resolveVerse(ctx, req)
	if err != nil {
		httpserver.RespondAPIError(w, r, apierr.New(apierr.CodeResourceNotFound, err.Error()))
		h.recordTelemetry("generate", requestID, "verse_not_found", start)
		return
	}

	prompt := promptcomposer.Compose(promptcomposer.Verse{Reference: req.VerseReference, Text: verseText}, req.StylePreset)
	if req.CustomPrompt != "" {
		prompt = prompt + ", " + h.validator.SanitizePrompt(req.CustomPrompt)
	}

	genResult, err := h.model.Run(ctx, prompt, modelclient.RunOptions{})
	if err != nil {
		h.usage.RecordGeneration(false, "")
		if apiErr, ok := apierr.As(err); ok {
			httpserver.RespondAPIError(w, r, apiErr)
		} else {
			httpserver.RespondAPIError(w, r, apierr.Internal("invoking model", err))
		}
		h.recordTelemetry("generate", requestID, "model_failed", start)
		return
	}

	gate := h.moderation.ShouldStore(genResult.ImageBytes, moderation.Metadata{Prompt: prompt, VerseText: verseText})

	saved, err := h.storage.SaveImage(ctx, genResult.ImageBytes, storage.SaveOptions{
		UserID:           nil,
		VerseReference:   req.VerseReference,
		VerseText:        verseText,
		Prompt:           prompt,
		StylePreset:      defaultStyle(req.StylePreset),
		Tags:             nil,
		ModerationStatus: gate.ModerationStatus,
		Width:            genResult.Width,
		Height:           genResult.Height,
	})
	if err != nil {
		h.usage.RecordGeneration(false, "")
		if apiErr, ok := apierr.As(err); ok {
			httpserver.RespondAPIError(w, r, apiErr)
		} else {
			httpserver.RespondAPIError(w, r, apierr.Internal("saving image", err))
		}
		h.recordTelemetry("generate", requestID, "storage_failed", start)
		return
	}

	if !gate.ShouldStore {
		if _, err := h.moderation.FlagForReview(ctx, saved.ImageID, gate.FlagReason); err != nil {
			h.logger.Warn("flagging image for review failed", "error", err, "image_id", saved.ImageID)
		}
	}

	h.usage.RecordGeneration(true, "")

	imageURL := h.storage.GetImageURL(saved.BlobKey, false, 0)
	resp := generateResponse{
		ImageID:          saved.ImageID,
		ImageURL:         imageURL,
		WhatsappShareURL: buildWhatsAppShareURL(verseText, req.VerseReference, imageURL),
		VerseReference:   req.VerseReference,
		VerseText:        verseText,
	}

	if req.RequestID != "" {
		h.cache.SetMetadata(ctx, req.RequestID, resp)
	}

	httpserver.Respond(w, http.StatusOK, resp)
	h.recordTelemetry("generate", requestID, "success", start, "image_id", saved.ImageID)
}

func defaultStyle(style string) string {
	if style == "" {
		return "modern"
	}
	return style
}

func (h *Handler) resolveVerse(ctx context.Context, req generateRequest) (verse.Entry, string, error) {
	if req.VerseText != "" {
		return verse.Entry{Reference: req.VerseReference, Text: req.VerseText}, req.VerseText, nil
	}
	entry, err := h.verses.GetVerse(ctx, req.VerseReference)
	if err != nil {
		return verse.Entry{}, "", err
	}
	return entry, entry.Text, nil
}

func mapValidationError(errs []string) *apierr.Error {
	for _, e := range errs {
		switch e {
		case "missing_required_field":
			return apierr.New(apierr.CodeMissingRequiredField, "verseReference is required")
		case "invalid_verse_reference":
			return apierr.New(apierr.CodeInvalidVerseRef, "verseReference is not a valid reference")
		}
	}
	return apierr.New(apierr.CodeInvalidRequestFormat, "one or more fields failed validation").WithDetails(errs)
}

// buildWhatsAppShareURL implements the bit-exact format in spec §6.
func buildWhatsAppShareURL(verseText, verseReference, imageURL string) string {
	text := `"` + verseText + `" - ` + verseReference + "\n" + imageURL
	return "https://wa.me/?text=" + url.QueryEscape(text)
}
