package reconcile

import (
	"context"
	"errors"
	"fmt"

	"bookportal/pkg/domain"
	"bookportal/pkg/store"
)

var errPathChanged = errors.New("catalog path changed since audit")

type rowOutcome struct {
	done    bool
	skipped bool
	err     error
}

// Repair points each fixable mismatch at its suggested path. Entries without
// a suggested path are skipped, as are records already aligned. One failing
// row never stops the batch.
func (e *Engine) Repair(ctx context.Context, mismatches []domain.MismatchEntry) domain.RepairResult {
	outcomes := make([]rowOutcome, len(mismatches))
	e.each(ctx, len(mismatches), func(ctx context.Context, i int) {
		outcomes[i] = e.repairOne(ctx, mismatches[i])
	})

	result := domain.RepairResult{Errors: []string{}}
	skipped := 0
	for i, out := range outcomes {
		switch {
		case out.err != nil:
			result.Failed++
			msg := fmt.Sprintf("Failed to fix %s: %s", mismatches[i].Title, errMessage(out.err))
			result.Errors = append(result.Errors, msg)
		case out.done:
			result.Fixed++
		case out.skipped:
			skipped++
		}
	}
	e.log.Info("path repair completed", "fixed", result.Fixed, "failed", result.Failed, "skipped", skipped)
	return result
}

func (e *Engine) repairOne(ctx context.Context, m domain.MismatchEntry) rowOutcome {
	log := e.log.With("book_id", m.BookID, "title", m.Title)
	if !m.Exists || m.SuggestedPath == "" {
		log.Debug("skipping mismatch without suggested path", "path", m.DatabasePath)
		return rowOutcome{skipped: true}
	}

	cctx, cancel := e.call(ctx)
	current, ok, err := e.catalog.GetBook(cctx, m.BookID)
	cancel()
	if err != nil {
		log.Error("load book for repair failed", "err", err)
		return rowOutcome{err: err}
	}
	if !ok {
		return rowOutcome{err: domain.ErrBookNotFound}
	}
	if current.FilePath == m.SuggestedPath {
		log.Debug("path already aligned", "path", current.FilePath)
		return rowOutcome{skipped: true}
	}
	if current.FilePath != m.DatabasePath {
		log.Warn("path changed since audit", "path", current.FilePath, "audited_path", m.DatabasePath)
		return rowOutcome{err: errPathChanged}
	}

	suggested := m.SuggestedPath
	cctx, cancel = e.call(ctx)
	defer cancel()
	if err := e.catalog.UpdateBook(cctx, m.BookID, store.BookUpdate{FilePath: &suggested}); err != nil {
		log.Error("path repair failed", "err", err)
		return rowOutcome{err: err}
	}
	log.Info("path repaired", "path", m.DatabasePath, "suggested_path", suggested)
	return rowOutcome{done: true}
}
