package cleanup

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/verseforge/verseforge/pkg/blobstore"
)

func newTestCleanup(t *testing.T, now func() time.Time, protectedTags []string) *Cleanup {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(blobstore.NewMemory(), nil, logger, 90, 30, protectedTags)
	if now != nil {
		c.now = now
	}
	return c
}

func TestIsProtectedDefaultTags(t *testing.T) {
	c := newTestCleanup(t, nil, nil)

	if !c.isProtected([]string{"daily-verse"}) {
		t.Error("expected 'daily-verse' to be protected by default")
	}
	if !c.isProtected([]string{"favorite"}) {
		t.Error("expected 'favorite' to be protected by default")
	}
	if c.isProtected([]string{"seasonal"}) {
		t.Error("expected an unlisted tag to not be protected")
	}
	if c.isProtected(nil) {
		t.Error("expected no tags to mean not protected")
	}
}

func TestIsProtectedCustomTags(t *testing.T) {
	c := newTestCleanup(t, nil, []string{"pinned"})

	if !c.isProtected([]string{"pinned"}) {
		t.Error("expected custom protected tag to be honored")
	}
	if c.isProtected([]string{"daily-verse"}) {
		t.Error("expected the default tag set to be replaced, not merged, by custom tags")
	}
}

func TestManageBackupRetentionPrunesOldBackups(t *testing.T) {
	fixedNow := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	c := newTestCleanup(t, func() time.Time { return fixedNow }, nil)

	blob := c.blob.(*blobstore.Memory)
	ctx := context.Background()

	old := fixedNow.AddDate(0, 0, -60)
	recent := fixedNow.AddDate(0, 0, -5)

	mustPut(t, blob, ctx, "backups/d1-old.json", old)
	mustPut(t, blob, ctx, "backups/d1-recent.json", recent)

	result, err := c.ManageBackupRetention(ctx)
	if err != nil {
		t.Fatalf("ManageBackupRetention returned error: %v", err)
	}

	if len(result.DeletedBackupKeys) != 1 || result.DeletedBackupKeys[0] != "backups/d1-old.json" {
		t.Errorf("expected only the backup older than 30 days to be pruned, got %v", result.DeletedBackupKeys)
	}

	if _, err := blob.Get(ctx, "backups/d1-recent.json"); err != nil {
		t.Errorf("expected recent backup to survive pruning, got error: %v", err)
	}
}

// mustPut writes an object and then backdates it, since Memory.Put always
// stamps UploadedAt with its own clock.
func mustPut(t *testing.T, blob *blobstore.Memory, ctx context.Context, key string, uploadedAt time.Time) {
	t.Helper()
	if err := blob.Put(ctx, key, strings.NewReader("{}"), "application/json", nil); err != nil {
		t.Fatalf("Put(%q) failed: %v", key, err)
	}
	blob.SetUploadedAt(key, uploadedAt)
}
