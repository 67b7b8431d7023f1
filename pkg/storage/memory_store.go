package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"bookportal/pkg/domain"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore keeps objects in-process. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
}

// NewMemoryStore initializes an empty bucket.
func NewMemoryStore(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "ebooks"
	}
	return &MemoryStore{bucket: bucket, objects: make(map[string]memoryObject)}
}

// List returns objects with the given prefix, sorted and capped at ListPageLimit.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]domain.StorageObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list", Key: prefix, Err: err}
	}
	m.mu.RLock()
	out := make([]domain.StorageObject, 0, len(m.objects))
	for name, obj := range m.objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, domain.StorageObject{
			Name:         name,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			LastModified: obj.modified,
		})
	}
	m.mu.RUnlock()
	sortObjects(out)
	if len(out) > ListPageLimit {
		out = out[:ListPageLimit]
	}
	return out, nil
}

// Get returns a reader over a copy of the object bytes.
func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "get", Key: key, Err: err}
	}
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, &domain.StoreError{Op: "get", Key: key, Err: domain.ErrFileNotFound}
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Put stores an object, replacing any previous one under key.
func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return &domain.StoreError{Op: "put", Key: key, Err: err}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return &domain.StoreError{Op: "put", Key: key, Err: err}
	}
	if size >= 0 && int64(len(data)) != size {
		return &domain.StoreError{Op: "put", Key: key, Err: fmt.Errorf("size mismatch: got %d bytes, want %d", len(data), size)}
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, modified: time.Now().UTC()}
	m.mu.Unlock()
	return nil
}

// Delete removes an object. Missing keys are reported as not found.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return &domain.StoreError{Op: "delete", Key: key, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return &domain.StoreError{Op: "delete", Key: key, Err: domain.ErrFileNotFound}
	}
	delete(m.objects, key)
	return nil
}

// PresignGet returns a memory:// URL; there is nothing to sign in-process.
func (m *MemoryStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", &domain.StoreError{Op: "presign", Key: key, Err: domain.ErrFileNotFound}
	}
	u := url.URL{Scheme: "memory", Host: m.bucket, Path: "/" + key}
	q := u.Query()
	q.Set("expires", time.Now().Add(expiry).UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
