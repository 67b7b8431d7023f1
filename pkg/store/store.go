package store

import (
	"context"

	"bookportal/pkg/domain"
)

// Catalog defines persistence operations for book records.
// Implementations wrap failures in *domain.CatalogError.
type Catalog interface {
	QueryBooks(ctx context.Context, filter BookFilter) ([]domain.BookRecord, error)
	GetBook(ctx context.Context, id string) (domain.BookRecord, bool, error)
	InsertBook(ctx context.Context, b domain.BookRecord) (domain.BookRecord, error)
	UpdateBook(ctx context.Context, id string, update BookUpdate) error
	DeleteBook(ctx context.Context, id string) error
	IncrementDownloadCount(ctx context.Context, id string) error
}

// BookFilter narrows QueryBooks. Results are ordered by title, then id.
//
// When PathContainsAny or ZeroSize is set, a row matches if its path contains
// any of the tokens OR its size is zero.
type BookFilter struct {
	ActiveOnly      bool
	SubjectID       string
	PathContainsAny []string
	ZeroSize        bool
}

func (f BookFilter) heuristic() bool {
	return len(f.PathContainsAny) > 0 || f.ZeroSize
}

// BookUpdate lists fields to change; nil fields are left untouched.
type BookUpdate struct {
	Title       *string
	Author      *string
	Description *string
	FilePath    *string
	IsActive    *bool
}

func (u BookUpdate) empty() bool {
	return u.Title == nil && u.Author == nil && u.Description == nil && u.FilePath == nil && u.IsActive == nil
}
