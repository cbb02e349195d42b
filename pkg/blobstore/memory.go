package blobstore

import (
	"context"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Blob implementation used by tests for components
// that depend on Blob without exercising a real S3-compatible backend.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*Object
	now     func() time.Time
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]*Object), now: time.Now}
}

func (m *Memory) Put(_ context.Context, key string, body io.Reader, contentType string, meta map[string]string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &Object{
		Key:         key,
		Body:        data,
		ContentType: contentType,
		ETag:        `"` + etagOf(data) + `"`,
		UploadedAt:  m.now(),
		CustomMeta:  meta,
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *obj
	return &copied, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ObjectInfo
	for k, obj := range m.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, ObjectInfo{Key: k, UploadedAt: obj.UploadedAt, SizeBytes: int64(len(obj.Body))})
	}
	return out, nil
}

// SetUploadedAt backdates an existing object's UploadedAt timestamp, for
// tests exercising retention logic that depends on object age.
func (m *Memory) SetUploadedAt(key string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		obj.UploadedAt = t
	}
}

func etagOf(data []byte) string {
	h := fnv.New32a()
	h.Write(data)
	return strconv.FormatUint(uint64(h.Sum32()), 16)
}
