package reconcile

import (
	"context"
	"fmt"
	"strings"

	"bookportal/pkg/domain"
	"bookportal/pkg/store"
)

// PlaceholderMarkers are the tokens that mark a path as an unfinished upload.
var PlaceholderMarkers = []string{"placeholder", "temp"}

// TempExtension marks leftover temp files in the store.
const TempExtension = ".tmp"

// IsPlaceholderObject reports whether an object name looks like an upload
// artifact. Matching is case-insensitive.
func IsPlaceholderObject(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range PlaceholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return strings.HasSuffix(lower, TempExtension)
}

// CleanupPlaceholders deletes placeholder catalog rows and then placeholder
// objects. The phases work on disjoint identifiers and neither depends on the
// other's outcome; every failure is recorded and the run continues.
func (e *Engine) CleanupPlaceholders(ctx context.Context) domain.CleanupResult {
	result := domain.CleanupResult{Errors: []string{}}
	e.cleanupRecords(ctx, &result)
	e.cleanupObjects(ctx, &result)
	e.log.Info("placeholder cleanup completed",
		"cleaned", result.Cleaned,
		"objects_removed", result.ObjectsRemoved,
		"errors", len(result.Errors),
	)
	return result
}

func (e *Engine) cleanupRecords(ctx context.Context, result *domain.CleanupResult) {
	cctx, cancel := e.call(ctx)
	books, err := e.catalog.QueryBooks(cctx, store.BookFilter{
		PathContainsAny: PlaceholderMarkers,
		ZeroSize:        true,
	})
	cancel()
	if err != nil {
		e.log.Error("fetch placeholder books failed", "err", err)
		result.Errors = append(result.Errors, "Failed to fetch placeholder books: "+errMessage(err))
		return
	}

	outcomes := make([]rowOutcome, len(books))
	e.each(ctx, len(books), func(ctx context.Context, i int) {
		cctx, cancel := e.call(ctx)
		defer cancel()
		if err := e.catalog.DeleteBook(cctx, books[i].ID); err != nil {
			e.log.Error("delete placeholder book failed", "book_id", books[i].ID, "title", books[i].Title, "err", err)
			outcomes[i] = rowOutcome{err: err}
			return
		}
		e.log.Info("placeholder book deleted", "book_id", books[i].ID, "title", books[i].Title, "path", books[i].FilePath)
		outcomes[i] = rowOutcome{done: true}
	})
	for i, out := range outcomes {
		if out.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to delete %s: %s", books[i].Title, errMessage(out.err)))
			continue
		}
		result.Cleaned++
	}
}

func (e *Engine) cleanupObjects(ctx context.Context, result *domain.CleanupResult) {
	listing, err := e.listObjects(ctx)
	if err != nil {
		e.log.Error("list objects for cleanup failed", "err", err)
		result.Errors = append(result.Errors, "Storage cleanup error: "+errMessage(err))
		return
	}
	var names []string
	for _, obj := range listing {
		if IsPlaceholderObject(obj.Name) {
			names = append(names, obj.Name)
		}
	}

	outcomes := make([]rowOutcome, len(names))
	e.each(ctx, len(names), func(ctx context.Context, i int) {
		cctx, cancel := e.call(ctx)
		defer cancel()
		if err := e.objects.Delete(cctx, names[i]); err != nil {
			e.log.Error("remove placeholder object failed", "path", names[i], "err", err)
			outcomes[i] = rowOutcome{err: err}
			return
		}
		e.log.Info("placeholder object removed", "path", names[i])
		outcomes[i] = rowOutcome{done: true}
	})
	for i, out := range outcomes {
		if out.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to remove file %s: %s", names[i], errMessage(out.err)))
			continue
		}
		result.ObjectsRemoved++
	}
}
