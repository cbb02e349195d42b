package storage

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/verseforge/verseforge/pkg/blobstore"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0, 0, 0, 0}, "png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0, 0}, "jpeg"},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00"), []byte("WEBP")...), "webp"},
		{"unknown defaults to webp", []byte{0x00, 0x01, 0x02}, "webp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectFormat(tt.data); got != tt.want {
				t.Errorf("detectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFingerprint8Deterministic(t *testing.T) {
	a := fingerprint8("user-1", "John 3:16", "classic", 1000)
	b := fingerprint8("user-1", "John 3:16", "classic", 1000)
	if a != b {
		t.Errorf("fingerprint8 is not deterministic: %q != %q", a, b)
	}
	if len(a) != 8 {
		t.Errorf("fingerprint8 length = %d, want 8", len(a))
	}

	c := fingerprint8("user-2", "John 3:16", "classic", 1000)
	if a == c {
		t.Error("fingerprint8 should differ across distinct userIDs")
	}
}

func TestUserIDOrAnonymous(t *testing.T) {
	if got := userIDOrAnonymous(nil); got != "anonymous" {
		t.Errorf("userIDOrAnonymous(nil) = %q, want anonymous", got)
	}
	uid := "user-42"
	if got := userIDOrAnonymous(&uid); got != uid {
		t.Errorf("userIDOrAnonymous(&uid) = %q, want %q", got, uid)
	}
}

func TestSignatureVerifySignedURL(t *testing.T) {
	now := time.Now()
	expires := now.Add(time.Hour).Unix()
	sig := signature("topsecret", "images/2026/07/abc.webp", expires)

	if !VerifySignedURL("topsecret", "images/2026/07/abc.webp", expires, sig, now) {
		t.Error("expected a freshly generated signature to verify")
	}
	if VerifySignedURL("topsecret", "images/2026/07/abc.webp", expires, "deadbeef", now) {
		t.Error("expected a bogus signature to fail verification")
	}
	if VerifySignedURL("topsecret", "images/2026/07/abc.webp", expires, sig, now.Add(2*time.Hour)) {
		t.Error("expected an expired signature to fail verification")
	}
}

func TestGetImageURL(t *testing.T) {
	s := New(nil, nil, nil, "https://cdn.example.com/", "topsecret", time.Hour)

	unsigned := s.GetImageURL("images/2026/07/abc.webp", false, 0)
	if unsigned != "https://cdn.example.com/images/2026/07/abc.webp" {
		t.Errorf("unsigned GetImageURL = %q", unsigned)
	}

	signed := s.GetImageURL("images/2026/07/abc.webp", true, 0)
	if signed == unsigned {
		t.Error("expected signed URL to differ from the unsigned form")
	}
}

func TestCheckETagMatch(t *testing.T) {
	tests := []struct {
		name        string
		ifNoneMatch string
		etag        string
		want        bool
	}{
		{"no header", "", `"abc123"`, false},
		{"wildcard", "*", `"abc123"`, true},
		{"exact quoted match", `"abc123"`, `"abc123"`, true},
		{"exact unquoted match", "abc123", `"abc123"`, true},
		{"mismatch", `"xyz"`, `"abc123"`, false},
		{"matches one of several", `"xyz", "abc123"`, `"abc123"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckETagMatch(tt.ifNoneMatch, tt.etag); got != tt.want {
				t.Errorf("CheckETagMatch(%q, %q) = %v, want %v", tt.ifNoneMatch, tt.etag, got, tt.want)
			}
		})
	}
}

func TestGenerateCacheHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	obj := &blobstore.Object{
		ETag:        `"abc123"`,
		ContentType: "image/webp",
		UploadedAt:  time.Now(),
	}
	GenerateCacheHeaders(w, obj)

	if w.Header().Get("ETag") != `"abc123"` {
		t.Errorf("ETag header = %q", w.Header().Get("ETag"))
	}
	if w.Header().Get("Content-Type") != "image/webp" {
		t.Errorf("Content-Type header = %q", w.Header().Get("Content-Type"))
	}
	if w.Header().Get("Cache-Control") == "" {
		t.Error("expected Cache-Control header to be set")
	}
}
