// Package moderation implements the content-safety gate and manual review
// queue (spec §4.5). Grounded on the teacher's pkg/incident fingerprint/match
// style for the pattern check, and on pkg/alert's queue-then-resolve shape
// for flagForReview/moderateContent.
package moderation

import (
	"context"
	"errors"
	"strings"

	"github.com/verseforge/verseforge/internal/apierr"
	"github.com/verseforge/verseforge/pkg/cache"
	"github.com/verseforge/verseforge/pkg/metastore"
)

// concerningPatterns is the fixed pattern list checked against prompt+verse
// text. Kept small and explicit; the interface is shaped so a model-based
// check can be swapped in without touching callers.
var concerningPatterns = []string{
	"self-harm", "suicide", "graphic violence", "gore", "explicit",
}

// Metadata is the subset of generation metadata the safety check inspects.
type Metadata struct {
	Prompt    string
	VerseText string
}

// GateResult is the outcome of shouldStore.
type GateResult struct {
	ShouldStore      bool
	ModerationStatus string // "approved" or "rejected"
	FlagReason       string
}

// Store is the subset of metastore.Store moderation needs.
type Store interface {
	InsertModerationEntry(ctx context.Context, imageID, reason string) (metastore.ModerationEntry, error)
	ListPendingModeration(ctx context.Context, limit int) ([]metastore.ModerationEntry, error)
	ResolveModerationEntry(ctx context.Context, imageID string, decision string, reviewerID *string) error
	UpdateModerationStatus(ctx context.Context, imageID, status string) error
	GetModerationStatus(ctx context.Context, imageID string) (string, error)
}

// Moderation gates new generations and manages the manual review queue.
type Moderation struct {
	store   Store
	cache   *cache.Cache
	enabled bool
}

// New creates a Moderation gate. enabled mirrors ENABLE_CONTENT_MODERATION;
// when false, shouldStore always approves (spec §4.5).
func New(store Store, c *cache.Cache, enabled bool) *Moderation {
	return &Moderation{store: store, cache: c, enabled: enabled}
}

// ShouldStore runs the content-safety gate. Deterministic for identical
// (bytes, metadata) since it depends only on metadata text, never on the
// image bytes' pixel content.
func (m *Moderation) ShouldStore(_ []byte, metadata Metadata) GateResult {
	if !m.enabled {
		return GateResult{ShouldStore: true, ModerationStatus: "approved"}
	}

	if reason, unsafe := checkContentSafety(metadata); unsafe {
		return GateResult{ShouldStore: false, ModerationStatus: "rejected", FlagReason: reason}
	}
	return GateResult{ShouldStore: true, ModerationStatus: "approved"}
}

// checkContentSafety runs the fixed concerning-pattern check over
// prompt+verseText.
func checkContentSafety(metadata Metadata) (reason string, unsafe bool) {
	haystack := strings.ToLower(metadata.Prompt + " " + metadata.VerseText)
	for _, pattern := range concerningPatterns {
		if strings.Contains(haystack, pattern) {
			return "matched concerning pattern: " + pattern, true
		}
	}
	return "", false
}

// FlagForReview appends a moderation queue row for manual review.
func (m *Moderation) FlagForReview(ctx context.Context, imageID, reason string) (metastore.ModerationEntry, error) {
	return m.store.InsertModerationEntry(ctx, imageID, reason)
}

// GetModerationStatus returns the current moderation status for an image,
// failing resource_not_found when the image does not exist (spec §4.5).
func (m *Moderation) GetModerationStatus(ctx context.Context, imageID string) (string, error) {
	status, err := m.store.GetModerationStatus(ctx, imageID)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return "", apierr.NotFound("image")
		}
		return "", apierr.Wrap(apierr.CodeDatabaseQueryFailed, "getting moderation status", err)
	}
	return status, nil
}

// GetPendingReviews returns the oldest un-reviewed entries.
func (m *Moderation) GetPendingReviews(ctx context.Context, limit int) ([]metastore.ModerationEntry, error) {
	return m.store.ListPendingModeration(ctx, limit)
}

// ModerateAction is the admin decision for moderateContent.
type ModerateAction struct {
	ImageID string
	Action  string // "approve" or "reject"
	Reason  string
}

// MapDecisionStatus maps an admin action to the resulting image moderation
// status.
func MapDecisionStatus(action string) string {
	if action == "approve" {
		return "approved"
	}
	return "rejected"
}

// ModerateContent performs the queue close and image status update, then
// invalidates the relevant cache entry.
func (m *Moderation) ModerateContent(ctx context.Context, action ModerateAction, reviewerID *string) error {
	status := MapDecisionStatus(action.Action)

	if err := m.store.UpdateModerationStatus(ctx, action.ImageID, status); err != nil {
		return err
	}
	if err := m.store.ResolveModerationEntry(ctx, action.ImageID, action.Action, reviewerID); err != nil {
		return err
	}

	m.cache.InvalidateImage(ctx, action.ImageID)
	return nil
}
