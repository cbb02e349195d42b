package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeSource struct {
	data map[string]json.RawMessage
	err  error
}

func (f *fakeSource) GetImageMetadata(_ context.Context, imageID string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, ok := f.data[imageID]
	if !ok {
		return nil, errors.New("not found")
	}
	return raw, nil
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(rdb, logger), mr
}

func TestGetMetadataFallsBackOnMiss(t *testing.T) {
	c, _ := newTestCache(t)
	c.SetSource(&fakeSource{data: map[string]json.RawMessage{
		"img-1": json.RawMessage(`{"id":"img-1","verseReference":"John 3:16"}`),
	}})

	var dst struct {
		ID             string `json:"id"`
		VerseReference string `json:"verseReference"`
	}
	if err := c.GetMetadata(context.Background(), "img-1", &dst); err != nil {
		t.Fatalf("GetMetadata returned error: %v", err)
	}
	if dst.ID != "img-1" || dst.VerseReference != "John 3:16" {
		t.Errorf("GetMetadata populated unexpected value: %+v", dst)
	}
}

func TestGetMetadataHydratesCacheAfterFallback(t *testing.T) {
	c, mr := newTestCache(t)
	c.SetSource(&fakeSource{data: map[string]json.RawMessage{
		"img-2": json.RawMessage(`{"id":"img-2"}`),
	}})

	var dst map[string]any
	if err := c.GetMetadata(context.Background(), "img-2", &dst); err != nil {
		t.Fatalf("GetMetadata returned error: %v", err)
	}

	if !mr.Exists(metadataKey("img-2")) {
		t.Error("expected cache to be hydrated after a fallback read")
	}
}

func TestGetMetadataCacheHit(t *testing.T) {
	c, _ := newTestCache(t)
	c.SetMetadata(context.Background(), "img-3", map[string]string{"id": "img-3"})

	var dst map[string]string
	if err := c.GetMetadata(context.Background(), "img-3", &dst); err != nil {
		t.Fatalf("GetMetadata returned error: %v", err)
	}
	if dst["id"] != "img-3" {
		t.Errorf("expected cache hit to return stored value, got %+v", dst)
	}
}

func TestInvalidateImage(t *testing.T) {
	c, mr := newTestCache(t)
	c.SetMetadata(context.Background(), "img-4", map[string]string{"id": "img-4"})
	c.InvalidateImage(context.Background(), "img-4")

	if mr.Exists(metadataKey("img-4")) {
		t.Error("expected metadata key to be removed after invalidation")
	}
}

func TestVerseRefNormalization(t *testing.T) {
	c, _ := newTestCache(t)
	c.SetVerse(context.Background(), "  John 3:16  ", map[string]string{"reference": "John 3:16"})

	var dst map[string]string
	found, err := c.GetVerse(context.Background(), "JOHN 3:16", &dst)
	if err != nil {
		t.Fatalf("GetVerse returned error: %v", err)
	}
	if !found {
		t.Error("expected verse lookup to be case/whitespace insensitive")
	}
}

func TestDailyVerseRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	c.SetDailyVerse(context.Background(), "img-daily")

	got, ok := c.GetDailyVerse(context.Background())
	if !ok || got != "img-daily" {
		t.Errorf("GetDailyVerse() = (%q, %v), want (img-daily, true)", got, ok)
	}
}

func TestConfigCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	c.SetConfig(context.Background(), "moderation-blocklist", []string{"foo", "bar"})

	var words []string
	if err := c.GetConfig(context.Background(), "moderation-blocklist", &words); err != nil {
		t.Fatalf("GetConfig returned error: %v", err)
	}
	if len(words) != 2 || words[0] != "foo" {
		t.Errorf("GetConfig returned unexpected value: %v", words)
	}

	c.ClearConfigCache(context.Background(), "moderation-blocklist")
	if err := c.GetConfig(context.Background(), "moderation-blocklist", &words); err == nil {
		t.Error("expected error after clearing config cache")
	}
}
