package verse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/verseforge/verseforge/pkg/metastore"
)

type fakeStore struct {
	getVerse        func(ctx context.Context, book string, chapter, verse int) (metastore.Verse, error)
	pickDailyVerse  func(ctx context.Context) (metastore.Verse, error)
	recordVerseUsed func(ctx context.Context, reference string) error
	searchVerses    func(ctx context.Context, query string) ([]metastore.Verse, error)
	recordedRefs    []string
}

func (f *fakeStore) GetVerse(ctx context.Context, book string, chapter, verse int) (metastore.Verse, error) {
	return f.getVerse(ctx, book, chapter, verse)
}

func (f *fakeStore) PickDailyVerse(ctx context.Context) (metastore.Verse, error) {
	return f.pickDailyVerse(ctx)
}

func (f *fakeStore) RecordVerseUsed(ctx context.Context, reference string) error {
	f.recordedRefs = append(f.recordedRefs, reference)
	if f.recordVerseUsed != nil {
		return f.recordVerseUsed(ctx, reference)
	}
	return nil
}

func (f *fakeStore) SearchVerses(ctx context.Context, query string) ([]metastore.Verse, error) {
	return f.searchVerses(ctx, query)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetVerseEmbeddedHit(t *testing.T) {
	r := New(nil, testLogger())

	e, err := r.GetVerse(context.Background(), "John 3:16")
	if err != nil {
		t.Fatalf("GetVerse returned error: %v", err)
	}
	if e.Reference != "John 3:16" {
		t.Errorf("Reference = %q, want John 3:16", e.Reference)
	}
}

func TestGetVerseMetaStoreFallback(t *testing.T) {
	store := &fakeStore{
		getVerse: func(ctx context.Context, book string, chapter, verse int) (metastore.Verse, error) {
			if book != "Mark" || chapter != 4 || verse != 39 {
				t.Errorf("GetVerse called with unexpected args: %s %d:%d", book, chapter, verse)
			}
			return metastore.Verse{
				Reference:   "Mark 4:39",
				Book:        "Mark",
				Chapter:     4,
				Verse:       39,
				Text:        "Peace, be still.",
				Translation: "WEB",
			}, nil
		},
	}
	r := New(store, testLogger())

	e, err := r.GetVerse(context.Background(), "Mark 4:39")
	if err != nil {
		t.Fatalf("GetVerse returned error: %v", err)
	}
	if e.Text != "Peace, be still." {
		t.Errorf("Text = %q, want %q", e.Text, "Peace, be still.")
	}
}

func TestGetVerseNotFound(t *testing.T) {
	store := &fakeStore{
		getVerse: func(ctx context.Context, book string, chapter, verse int) (metastore.Verse, error) {
			return metastore.Verse{}, errors.New("no rows")
		},
	}
	r := New(store, testLogger())

	_, err := r.GetVerse(context.Background(), "Mark 4:39")
	if err == nil || !IsNotFound(err) {
		t.Errorf("expected IsNotFound error, got %v", err)
	}
}

func TestGetVerseInvalidReference(t *testing.T) {
	r := New(nil, testLogger())

	_, err := r.GetVerse(context.Background(), "not a reference")
	if err == nil || !IsNotFound(err) {
		t.Errorf("expected IsNotFound error for an unparsable reference, got %v", err)
	}
}

func TestGetVerseNilStoreMisses(t *testing.T) {
	r := New(nil, testLogger())

	_, err := r.GetVerse(context.Background(), "Mark 4:39")
	if err == nil || !IsNotFound(err) {
		t.Errorf("expected IsNotFound when store is nil and reference is not embedded, got %v", err)
	}
}

func TestGetDailyVerseMetaStoreSuccessRecordsUse(t *testing.T) {
	store := &fakeStore{
		pickDailyVerse: func(ctx context.Context) (metastore.Verse, error) {
			return metastore.Verse{Reference: "Mark 4:39", Book: "Mark", Chapter: 4, Verse: 39, Text: "Peace, be still.", Translation: "WEB"}, nil
		},
	}
	r := New(store, testLogger())

	e, err := r.GetDailyVerse(context.Background())
	if err != nil {
		t.Fatalf("GetDailyVerse returned error: %v", err)
	}
	if e.Reference != "Mark 4:39" {
		t.Errorf("Reference = %q, want Mark 4:39", e.Reference)
	}
	if len(store.recordedRefs) != 1 || store.recordedRefs[0] != "Mark 4:39" {
		t.Errorf("expected RecordVerseUsed to be called with Mark 4:39, got %v", store.recordedRefs)
	}
}

func TestGetDailyVerseFallsBackToEmbeddedOnMetaStoreError(t *testing.T) {
	store := &fakeStore{
		pickDailyVerse: func(ctx context.Context) (metastore.Verse, error) {
			return metastore.Verse{}, errors.New("db unreachable")
		},
	}
	r := New(store, testLogger())

	e, err := r.GetDailyVerse(context.Background())
	if err != nil {
		t.Fatalf("GetDailyVerse returned error: %v", err)
	}
	if _, ok := byEmbeddedRef[strings.ToLower(e.Reference)]; !ok {
		t.Errorf("expected fallback pick to come from the embedded set, got %q", e.Reference)
	}
	if len(store.recordedRefs) != 0 {
		t.Errorf("expected no RecordVerseUsed call on fallback path, got %v", store.recordedRefs)
	}
}

func TestGetDailyVerseNilStoreUsesEmbedded(t *testing.T) {
	r := New(nil, testLogger())

	e, err := r.GetDailyVerse(context.Background())
	if err != nil {
		t.Fatalf("GetDailyVerse returned error: %v", err)
	}
	if _, ok := byEmbeddedRef[strings.ToLower(e.Reference)]; !ok {
		t.Errorf("expected pick from the embedded set, got %q", e.Reference)
	}
}

func TestSearchVersesDeduplicatesAcrossSources(t *testing.T) {
	store := &fakeStore{
		searchVerses: func(ctx context.Context, query string) ([]metastore.Verse, error) {
			return []metastore.Verse{
				{Reference: "John 3:16", Book: "John", Chapter: 3, Verse: 16, Text: "duplicate of embedded", Translation: "WEB"},
				{Reference: "John 3:17", Book: "John", Chapter: 3, Verse: 17, Text: "For God sent not his Son into the world to condemn the world", Translation: "WEB"},
			}, nil
		},
	}
	r := New(store, testLogger())

	results, err := r.SearchVerses(context.Background(), "john")
	if err != nil {
		t.Fatalf("SearchVerses returned error: %v", err)
	}

	count := 0
	for _, e := range results {
		if e.Reference == "John 3:16" {
			count++
			if e.Text == "duplicate of embedded" {
				t.Error("expected the embedded entry's text to win over the MetaStore duplicate")
			}
		}
	}
	if count != 1 {
		t.Errorf("expected John 3:16 to appear exactly once, got %d times", count)
	}

	found17 := false
	for _, e := range results {
		if e.Reference == "John 3:17" {
			found17 = true
		}
	}
	if !found17 {
		t.Error("expected MetaStore-only result John 3:17 to be present")
	}
}

func TestSearchVersesCapsAtFifty(t *testing.T) {
	rows := make([]metastore.Verse, 0, 60)
	for i := 0; i < 60; i++ {
		rows = append(rows, metastore.Verse{
			Reference:   "Generated " + itoa(i) + ":1",
			Book:        "Generated",
			Chapter:     i,
			Verse:       1,
			Text:        "filler verse text",
			Translation: "WEB",
		})
	}
	store := &fakeStore{
		searchVerses: func(ctx context.Context, query string) ([]metastore.Verse, error) {
			return rows, nil
		},
	}
	r := New(store, testLogger())

	results, err := r.SearchVerses(context.Background(), "generated")
	if err != nil {
		t.Fatalf("SearchVerses returned error: %v", err)
	}
	if len(results) != 50 {
		t.Errorf("len(results) = %d, want 50", len(results))
	}
}

func TestSearchVersesMetaStoreErrorStillReturnsEmbedded(t *testing.T) {
	store := &fakeStore{
		searchVerses: func(ctx context.Context, query string) ([]metastore.Verse, error) {
			return nil, errors.New("db unreachable")
		},
	}
	r := New(store, testLogger())

	results, err := r.SearchVerses(context.Background(), "shepherd")
	if err != nil {
		t.Fatalf("SearchVerses returned error: %v", err)
	}
	if len(results) != 1 || results[0].Reference != "Psalm 23:1" {
		t.Errorf("expected embedded match for 'shepherd', got %v", results)
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 7: "7", 42: "42", -13: "-13", 100: "100"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Errorf("itoa(%d) = %q, want %q", n, got, want)
		}
	}
}
