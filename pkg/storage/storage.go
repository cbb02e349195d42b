// Package storage implements the Storage facade (spec §4.6): deterministic
// image ID assignment, magic-byte format detection, blob+row persistence,
// conditional-response headers, and signed URLs. Grounded on the teacher's
// pkg/incident.Store orchestration style (one method per write path, bounded
// timeouts at the collaborator boundary) generalised from a single Postgres
// writer to a Blob+MetaStore+Cache triple.
package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/verseforge/verseforge/internal/apierr"
	"github.com/verseforge/verseforge/pkg/blobstore"
	"github.com/verseforge/verseforge/pkg/cache"
	"github.com/verseforge/verseforge/pkg/metastore"
)

// SaveOptions carries the fields saveImage needs beyond the raw bytes.
type SaveOptions struct {
	UserID           *string
	VerseReference   string
	VerseText        string
	Prompt           string
	StylePreset      string
	Tags             []string
	ModerationStatus string
	Width            int
	Height           int
}

// Saved is the result of a successful saveImage call.
type Saved struct {
	ImageID string
	BlobKey string
	Format  string
}

// Storage wires Blob, MetaStore, and Cache into the single facade the API
// layer talks to.
type Storage struct {
	blob        blobstore.Blob
	meta        *metastore.Store
	cache       *cache.Cache
	publicBase  string
	signedSecret string
	signedTTL   time.Duration
	now         func() time.Time
}

// New creates a Storage facade. now defaults to time.Now; tests may override
// it for deterministic ID assertions.
func New(blob blobstore.Blob, meta *metastore.Store, c *cache.Cache, publicBase, signedSecret string, signedTTL time.Duration) *Storage {
	return &Storage{
		blob:         blob,
		meta:         meta,
		cache:        c,
		publicBase:   publicBase,
		signedSecret: signedSecret,
		signedTTL:    signedTTL,
		now:          time.Now,
	}
}

// detectFormat inspects magic bytes per spec §4.6 step 2.
func detectFormat(data []byte) string {
	if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "webp"
	}
	if len(data) >= 8 && bytes.Equal(data[:4], []byte{0x89, 0x50, 0x4E, 0x47}) {
		return "png"
	}
	if len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}) {
		return "jpeg"
	}
	return "webp"
}

// fingerprint8 computes the 8-hex-digit hash8 fragment of the imageId scheme
// (spec §4.6 step 1).
func fingerprint8(userID, verseRef, stylePreset string, unixMillis int64) string {
	h := fnv.New32a()
	h.Write([]byte(fmt.Sprintf("%s|%s|%s|%d", userID, verseRef, stylePreset, unixMillis)))
	return fmt.Sprintf("%08x", h.Sum32())
}

func userIDOrAnonymous(userID *string) string {
	if userID == nil || *userID == "" {
		return "anonymous"
	}
	return *userID
}

// SaveImage implements saveImage(bytes, options) → imageId (spec §4.6). A
// Blob put failure surfaces storage_write_failed without touching MetaStore;
// a MetaStore insert failure after a successful put leaves the blob
// orphaned, reconciled later by Cleanup (spec open question i).
func (s *Storage) SaveImage(ctx context.Context, data []byte, opts SaveOptions) (Saved, error) {
	unixMillis := s.now().UnixMilli()
	userID := userIDOrAnonymous(opts.UserID)
	imageID := fmt.Sprintf("%d-%s", unixMillis, fingerprint8(userID, opts.VerseReference, opts.StylePreset, unixMillis))

	format := detectFormat(data)
	blobKey := fmt.Sprintf("images/%s/%s.%s", s.now().Format("2006/01"), imageID, format)

	meta := map[string]string{
		"imageId":        imageID,
		"verseReference": opts.VerseReference,
		"userId":         userID,
	}
	if err := s.blob.Put(ctx, blobKey, bytes.NewReader(data), "image/"+format, meta); err != nil {
		return Saved{}, apierr.Wrap(apierr.CodeStorageWriteFailed, "writing image blob", err)
	}

	key := blobKey
	row := metastore.Image{
		ID:               imageID,
		UserID:           opts.UserID,
		VerseReference:   opts.VerseReference,
		VerseText:        opts.VerseText,
		Prompt:           opts.Prompt,
		StylePreset:      opts.StylePreset,
		BlobKey:          &key,
		FileSize:         int64(len(data)),
		Format:           format,
		Width:            opts.Width,
		Height:           opts.Height,
		Tags:             opts.Tags,
		ModerationStatus: opts.ModerationStatus,
		GeneratedAt:      s.now(),
	}
	if row.ModerationStatus == "rejected" {
		row.BlobKey = nil
	}

	if err := s.meta.InsertImage(ctx, row); err != nil {
		return Saved{}, apierr.Wrap(apierr.CodeDatabaseQueryFailed, "inserting image metadata", err)
	}

	s.cache.SetMetadata(ctx, imageID, row)

	return Saved{ImageID: imageID, BlobKey: blobKey, Format: format}, nil
}

// GetImage looks up metadata then fetches blob bytes.
func (s *Storage) GetImage(ctx context.Context, imageID string) (metastore.Image, []byte, error) {
	img, err := s.meta.GetImage(ctx, imageID)
	if err != nil {
		return metastore.Image{}, nil, err
	}
	if img.BlobKey == nil {
		return img, nil, apierr.NotFound("image blob")
	}
	obj, err := s.blob.Get(ctx, *img.BlobKey)
	if err != nil {
		return img, nil, apierr.Wrap(apierr.CodeStorageReadFailed, "reading image blob", err)
	}
	return img, obj.Body, nil
}

// GetImageWithMetadata returns the full blob object alongside the metadata
// row, so the API layer can build conditional HTTP responses.
func (s *Storage) GetImageWithMetadata(ctx context.Context, imageID string) (metastore.Image, *blobstore.Object, error) {
	img, err := s.meta.GetImage(ctx, imageID)
	if err != nil {
		return metastore.Image{}, nil, err
	}
	if img.BlobKey == nil {
		return img, nil, apierr.NotFound("image blob")
	}
	obj, err := s.blob.Get(ctx, *img.BlobKey)
	if err != nil {
		return img, nil, apierr.Wrap(apierr.CodeStorageReadFailed, "reading image blob", err)
	}
	return img, obj, nil
}

// GetImageURL returns a public or signed URL for blobKey (spec §4.6).
func (s *Storage) GetImageURL(blobKey string, signed bool, expiresIn time.Duration) string {
	base := fmt.Sprintf("%s/%s", strings.TrimSuffix(s.publicBase, "/"), blobKey)
	if !signed {
		return base
	}
	if expiresIn <= 0 {
		expiresIn = s.signedTTL
	}
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	expires := s.now().Add(expiresIn).Unix()
	sig := signature(s.signedSecret, blobKey, expires)
	return fmt.Sprintf("%s?expires=%d&signature=%s", base, expires, sig)
}

// signature computes hash(secret|blobKey|expires) as an HMAC-SHA256 hex
// digest, verifiable by a symmetric peer and bound to both path and expiry
// (spec §4.6).
func signature(secret, blobKey string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(blobKey))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignedURL checks that a signature is valid and unexpired for
// blobKey, given the expires and signature query values.
func VerifySignedURL(secret, blobKey string, expires int64, sig string, now time.Time) bool {
	if expires <= now.Unix() {
		return false
	}
	want := signature(secret, blobKey, expires)
	return hmac.Equal([]byte(want), []byte(sig))
}

// GenerateCacheHeaders sets the conditional-response headers for a blob
// object (spec §4.6).
func GenerateCacheHeaders(w http.ResponseWriter, obj *blobstore.Object) {
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", obj.ETag)
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Vary", "Accept-Encoding")
	w.Header().Set("Last-Modified", obj.UploadedAt.UTC().Format(http.TimeFormat))
}

// CheckETagMatch reports whether If-None-Match matches etag: "*", an exact
// quoted match, or an exact unquoted match (spec §4.6).
func CheckETagMatch(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}
	trimmedEtag := strings.Trim(etag, `"`)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		c := strings.Trim(strings.TrimSpace(candidate), `"`)
		if c == trimmedEtag {
			return true
		}
	}
	return false
}

// DeleteImage removes both blob and row; a missing blob is not an error.
func (s *Storage) DeleteImage(ctx context.Context, imageID string) error {
	img, err := s.meta.GetImage(ctx, imageID)
	if err != nil {
		return err
	}
	if img.BlobKey != nil {
		if err := s.blob.Delete(ctx, *img.BlobKey); err != nil && err != blobstore.ErrNotFound {
			return apierr.Wrap(apierr.CodeStorageWriteFailed, "deleting image blob", err)
		}
	}
	if err := s.meta.DeleteImage(ctx, imageID); err != nil {
		return apierr.Wrap(apierr.CodeDatabaseQueryFailed, "deleting image row", err)
	}
	s.cache.InvalidateImage(ctx, imageID)
	return nil
}
