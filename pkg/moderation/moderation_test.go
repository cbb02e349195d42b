package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/verseforge/verseforge/internal/apierr"
	"github.com/verseforge/verseforge/pkg/metastore"
)

type fakeStore struct {
	inserted   []string
	decisions  []string
	statuses   map[string]string
	resolveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: make(map[string]string)}
}

func (f *fakeStore) InsertModerationEntry(_ context.Context, imageID, reason string) (metastore.ModerationEntry, error) {
	f.inserted = append(f.inserted, imageID)
	return metastore.ModerationEntry{ImageID: imageID, FlaggedReason: reason}, nil
}

func (f *fakeStore) ListPendingModeration(_ context.Context, limit int) ([]metastore.ModerationEntry, error) {
	return nil, nil
}

func (f *fakeStore) ResolveModerationEntry(_ context.Context, imageID, decision string, reviewerID *string) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.decisions = append(f.decisions, decision)
	return nil
}

func (f *fakeStore) UpdateModerationStatus(_ context.Context, imageID, status string) error {
	f.statuses[imageID] = status
	return nil
}

func (f *fakeStore) GetModerationStatus(_ context.Context, imageID string) (string, error) {
	status, ok := f.statuses[imageID]
	if !ok {
		return "", metastore.ErrNotFound
	}
	return status, nil
}

func TestShouldStoreDisabled(t *testing.T) {
	m := New(newFakeStore(), nil, false)
	result := m.ShouldStore(nil, Metadata{Prompt: "graphic violence and gore"})
	if !result.ShouldStore || result.ModerationStatus != "approved" {
		t.Errorf("expected disabled moderation to always approve, got %+v", result)
	}
}

func TestShouldStoreFlagsConcerningContent(t *testing.T) {
	m := New(newFakeStore(), nil, true)
	result := m.ShouldStore(nil, Metadata{Prompt: "a scene with graphic violence"})
	if result.ShouldStore || result.ModerationStatus != "rejected" {
		t.Errorf("expected concerning content to be rejected, got %+v", result)
	}
	if result.FlagReason == "" {
		t.Error("expected a flag reason to be populated")
	}
}

func TestShouldStoreApprovesCleanContent(t *testing.T) {
	m := New(newFakeStore(), nil, true)
	result := m.ShouldStore(nil, Metadata{Prompt: "a peaceful sunrise over calm water", VerseText: "the lord is my shepherd"})
	if !result.ShouldStore || result.ModerationStatus != "approved" {
		t.Errorf("expected clean content to be approved, got %+v", result)
	}
}

func TestMapDecisionStatus(t *testing.T) {
	if got := MapDecisionStatus("approve"); got != "approved" {
		t.Errorf("MapDecisionStatus(approve) = %q, want approved", got)
	}
	if got := MapDecisionStatus("reject"); got != "rejected" {
		t.Errorf("MapDecisionStatus(reject) = %q, want rejected", got)
	}
}

func TestModerateContentPropagatesResolveError(t *testing.T) {
	store := newFakeStore()
	store.resolveErr = errors.New("db unavailable")
	m := New(store, nil, true)

	err := m.ModerateContent(context.Background(), ModerateAction{ImageID: "img-1", Action: "approve"}, nil)
	if err == nil {
		t.Fatal("expected error from ModerateContent when resolve fails")
	}
	if store.statuses["img-1"] != "approved" {
		t.Error("expected status to be updated before resolve is attempted")
	}
}

func TestGetModerationStatusReturnsCurrentStatus(t *testing.T) {
	store := newFakeStore()
	store.statuses["img-1"] = "approved"
	m := New(store, nil, true)

	status, err := m.GetModerationStatus(context.Background(), "img-1")
	if err != nil {
		t.Fatalf("GetModerationStatus returned error: %v", err)
	}
	if status != "approved" {
		t.Errorf("status = %q, want approved", status)
	}
}

func TestGetModerationStatusNotFound(t *testing.T) {
	m := New(newFakeStore(), nil, true)

	_, err := m.GetModerationStatus(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error for an unknown image id")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeResourceNotFound {
		t.Errorf("expected CodeResourceNotFound, got %v", err)
	}
}
