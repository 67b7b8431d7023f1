package reconcile

import (
	"context"
	"fmt"

	"bookportal/pkg/domain"
)

// ValidateActiveBooks checks every active record against the listing by exact
// name only. A record that Audit would call a fixable path mismatch is still
// invalid here.
//
// An error is returned only when the catalog or the store cannot be read.
func (e *Engine) ValidateActiveBooks(ctx context.Context) (domain.ValidationResult, error) {
	result := domain.ValidationResult{Issues: []string{}}
	books, err := e.activeBooks(ctx)
	if err != nil {
		e.log.Error("fetch books for validation failed", "err", err)
		return result, fmt.Errorf("fetch books: %w", err)
	}
	if len(books) == 0 {
		return result, nil
	}
	listing, err := e.listObjects(ctx)
	if err != nil {
		e.log.Error("list objects for validation failed", "err", err)
		return result, fmt.Errorf("access storage: %w", err)
	}

	names := make(map[string]struct{}, len(listing))
	for _, obj := range listing {
		names[obj.Name] = struct{}{}
	}
	for _, b := range books {
		if _, ok := names[b.FilePath]; ok {
			result.Valid++
			continue
		}
		result.Invalid++
		result.Issues = append(result.Issues, fmt.Sprintf("Book %q has missing file: %s", b.Title, b.FilePath))
	}
	e.log.Info("book validation completed", "valid", result.Valid, "invalid", result.Invalid)
	return result, nil
}
