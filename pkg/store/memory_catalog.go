package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"bookportal/pkg/domain"
)

var errDuplicateID = errors.New("duplicate id")

// MemoryCatalog keeps book records in-process. Used for local runs and tests.
type MemoryCatalog struct {
	mu    sync.RWMutex
	books map[string]domain.BookRecord
}

// NewMemoryCatalog initializes an empty catalog, optionally seeded with records.
func NewMemoryCatalog(seed ...domain.BookRecord) *MemoryCatalog {
	m := &MemoryCatalog{books: make(map[string]domain.BookRecord, len(seed))}
	for _, b := range seed {
		m.books[b.ID] = b
	}
	return m
}

// QueryBooks returns matching records ordered by title, then id.
func (m *MemoryCatalog) QueryBooks(ctx context.Context, filter BookFilter) ([]domain.BookRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.CatalogError{Op: "query", Err: err}
	}
	m.mu.RLock()
	res := make([]domain.BookRecord, 0, len(m.books))
	for _, b := range m.books {
		if matches(b, filter) {
			res = append(res, b)
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if res[i].Title != res[j].Title {
			return res[i].Title < res[j].Title
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func matches(b domain.BookRecord, filter BookFilter) bool {
	if filter.ActiveOnly && !b.IsActive {
		return false
	}
	if filter.SubjectID != "" && b.SubjectID != filter.SubjectID {
		return false
	}
	if !filter.heuristic() {
		return true
	}
	for _, token := range filter.PathContainsAny {
		if strings.Contains(b.FilePath, token) {
			return true
		}
	}
	return filter.ZeroSize && b.FileSize != nil && *b.FileSize == 0
}

// GetBook retrieves a record by id.
func (m *MemoryCatalog) GetBook(ctx context.Context, id string) (domain.BookRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.BookRecord{}, false, &domain.CatalogError{Op: "get", ID: id, Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// InsertBook stores a new record; duplicate ids are rejected.
func (m *MemoryCatalog) InsertBook(ctx context.Context, b domain.BookRecord) (domain.BookRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.BookRecord{}, &domain.CatalogError{Op: "insert", ID: b.ID, Err: err}
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UploadedAt.IsZero() {
		b.UploadedAt = now
	}
	b.UpdatedAt = now
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; exists {
		return domain.BookRecord{}, &domain.CatalogError{Op: "insert", ID: b.ID, Err: errDuplicateID}
	}
	m.books[b.ID] = b
	return b, nil
}

// UpdateBook applies the non-nil fields of update.
func (m *MemoryCatalog) UpdateBook(ctx context.Context, id string, update BookUpdate) error {
	if err := ctx.Err(); err != nil {
		return &domain.CatalogError{Op: "update", ID: id, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return &domain.CatalogError{Op: "update", ID: id, Err: domain.ErrBookNotFound}
	}
	if update.empty() {
		return nil
	}
	if update.Title != nil {
		b.Title = *update.Title
	}
	if update.Author != nil {
		b.Author = *update.Author
	}
	if update.Description != nil {
		b.Description = *update.Description
	}
	if update.FilePath != nil {
		b.FilePath = *update.FilePath
	}
	if update.IsActive != nil {
		b.IsActive = *update.IsActive
	}
	b.UpdatedAt = time.Now().UTC()
	m.books[id] = b
	return nil
}

// DeleteBook hard-deletes a record.
func (m *MemoryCatalog) DeleteBook(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return &domain.CatalogError{Op: "delete", ID: id, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return &domain.CatalogError{Op: "delete", ID: id, Err: domain.ErrBookNotFound}
	}
	delete(m.books, id)
	return nil
}

// IncrementDownloadCount bumps the counter.
func (m *MemoryCatalog) IncrementDownloadCount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return &domain.CatalogError{Op: "increment download count", ID: id, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return &domain.CatalogError{Op: "increment download count", ID: id, Err: domain.ErrBookNotFound}
	}
	b.DownloadCount++
	m.books[id] = b
	return nil
}
