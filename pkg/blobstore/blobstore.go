// Package blobstore implements the Blob collaborator interface: opaque
// byte objects keyed by path, with an S3-compatible backend. The service
// treats Blob as a pluggable capability behind this interface (spec §1); the
// teacher repo has no analogous component, so the interface shape follows
// the spec directly and the S3 implementation is grounded on the
// aws-sdk-go-v2 usage found across the broader example pack's manifests.
package blobstore

import (
	"context"
	"io"
	"time"
)

// Object is a stored blob plus the metadata the Storage facade needs to
// build conditional HTTP responses.
type Object struct {
	Key          string
	Body         []byte
	ContentType  string
	ETag         string
	UploadedAt   time.Time
	CustomMeta   map[string]string
}

// ObjectInfo is a lightweight listing entry (no body), used by cleanup's
// backup retention sweep.
type ObjectInfo struct {
	Key        string
	UploadedAt time.Time
	SizeBytes  int64
}

// Blob is the out-of-scope collaborator interface (spec §1, §6): Put, Get,
// Delete, and List of opaque byte objects keyed by path.
type Blob interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string, meta map[string]string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ErrNotFound is returned by Get when the key does not exist. Delete of a
// missing key is not an error.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "blob not found" }
