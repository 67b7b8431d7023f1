package reconcile

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"bookportal/pkg/domain"
	"bookportal/pkg/storage"
	"bookportal/pkg/store"
)

// faultyCatalog wraps the in-memory catalog with injectable failures.
type faultyCatalog struct {
	*store.MemoryCatalog

	mu        sync.Mutex
	queryErr  error
	insertErr error
	updateErr map[string]error
	deleteErr map[string]error
	inserts   int
	updates   int
}

func newFaultyCatalog(seed ...domain.BookRecord) *faultyCatalog {
	return &faultyCatalog{
		MemoryCatalog: store.NewMemoryCatalog(seed...),
		updateErr:     map[string]error{},
		deleteErr:     map[string]error{},
	}
}

func (c *faultyCatalog) QueryBooks(ctx context.Context, filter store.BookFilter) ([]domain.BookRecord, error) {
	if c.queryErr != nil {
		return nil, &domain.CatalogError{Op: "query", Err: c.queryErr}
	}
	return c.MemoryCatalog.QueryBooks(ctx, filter)
}

func (c *faultyCatalog) InsertBook(ctx context.Context, b domain.BookRecord) (domain.BookRecord, error) {
	c.mu.Lock()
	c.inserts++
	c.mu.Unlock()
	if c.insertErr != nil {
		return domain.BookRecord{}, &domain.CatalogError{Op: "insert", ID: b.ID, Err: c.insertErr}
	}
	return c.MemoryCatalog.InsertBook(ctx, b)
}

func (c *faultyCatalog) UpdateBook(ctx context.Context, id string, update store.BookUpdate) error {
	c.mu.Lock()
	c.updates++
	err := c.updateErr[id]
	c.mu.Unlock()
	if err != nil {
		return &domain.CatalogError{Op: "update", ID: id, Err: err}
	}
	return c.MemoryCatalog.UpdateBook(ctx, id, update)
}

func (c *faultyCatalog) DeleteBook(ctx context.Context, id string) error {
	if err := c.deleteErr[id]; err != nil {
		return &domain.CatalogError{Op: "delete", ID: id, Err: err}
	}
	return c.MemoryCatalog.DeleteBook(ctx, id)
}

// faultyStore wraps the in-memory store, records deletes and injects failures.
type faultyStore struct {
	*storage.MemoryStore

	mu        sync.Mutex
	listErr   error
	putErr    error
	deleteErr map[string]error
	deleted   []string
	listed    []string
}

func newFaultyStore(t *testing.T, names ...string) *faultyStore {
	t.Helper()
	s := &faultyStore{MemoryStore: storage.NewMemoryStore("ebooks"), deleteErr: map[string]error{}}
	for _, name := range names {
		putObject(t, s.MemoryStore, name)
	}
	return s
}

func putObject(t *testing.T, s *storage.MemoryStore, name string) {
	t.Helper()
	data := []byte("%PDF-1.4 " + name)
	if err := s.Put(context.Background(), name, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		t.Fatalf("seed object %s: %v", name, err)
	}
}

func (s *faultyStore) List(ctx context.Context, prefix string) ([]domain.StorageObject, error) {
	s.mu.Lock()
	s.listed = append(s.listed, prefix)
	s.mu.Unlock()
	if s.listErr != nil {
		return nil, &domain.StoreError{Op: "list", Key: prefix, Err: s.listErr}
	}
	return s.MemoryStore.List(ctx, prefix)
}

func (s *faultyStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.putErr != nil {
		return &domain.StoreError{Op: "put", Key: key, Err: s.putErr}
	}
	return s.MemoryStore.Put(ctx, key, r, size, contentType)
}

func (s *faultyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, key)
	err := s.deleteErr[key]
	s.mu.Unlock()
	if err != nil {
		return &domain.StoreError{Op: "delete", Key: key, Err: err}
	}
	return s.MemoryStore.Delete(ctx, key)
}

func (s *faultyStore) names(t *testing.T) []string {
	t.Helper()
	objs, err := s.MemoryStore.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list objects: %v", err)
	}
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Name)
	}
	return out
}

func newTestEngine(t *testing.T, catalog store.Catalog, objects storage.BlobStore, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := Config{
		Catalog:     catalog,
		Objects:     objects,
		Logger:      slog.New(slog.DiscardHandler),
		CallTimeout: time.Second,
		Now:         func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func book(id, title, path string) domain.BookRecord {
	size := int64(1024)
	return domain.BookRecord{
		ID:        id,
		SubjectID: "subject-1",
		Title:     title,
		FilePath:  path,
		FileSize:  &size,
		FileType:  domain.FileTypePDF,
		IsActive:  true,
	}
}

func objects(names ...string) []domain.StorageObject {
	out := make([]domain.StorageObject, 0, len(names))
	for _, n := range names {
		out = append(out, domain.StorageObject{Name: n})
	}
	return out
}
