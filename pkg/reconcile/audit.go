package reconcile

import (
	"context"

	"golang.org/x/sync/errgroup"

	"bookportal/pkg/domain"
)

// Audit cross-references every active record with the full object listing.
// Both fetches must succeed; otherwise an *domain.AuditError is returned and
// no report is produced.
func (e *Engine) Audit(ctx context.Context) (domain.AuditReport, error) {
	var (
		records []domain.BookRecord
		objects []domain.StorageObject
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = e.activeBooks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		objects, err = e.listObjects(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		e.log.Error("storage audit failed", "err", err)
		return domain.AuditReport{}, &domain.AuditError{Err: err}
	}

	report := Classify(records, objects, e.resolve)
	report.GeneratedAt = e.now()
	e.log.Info("storage audit completed",
		"total_books", report.Summary.TotalBooks,
		"accessible", report.Summary.AccessibleFiles,
		"path_mismatches", report.Summary.PathMismatches,
		"missing", report.Summary.MissingFiles,
		"objects", len(objects),
	)
	return report, nil
}

// Classify builds a report from already fetched records and objects.
// Every record lands in exactly one class.
func Classify(records []domain.BookRecord, objects []domain.StorageObject, resolve func(string, []domain.StorageObject) domain.Resolution) domain.AuditReport {
	if resolve == nil {
		resolve = Resolve
	}
	report := domain.AuditReport{
		Records:    records,
		Objects:    objects,
		Entries:    make([]domain.AuditEntry, 0, len(records)),
		Mismatches: []domain.MismatchEntry{},
	}
	for _, b := range records {
		res := resolve(b.FilePath, objects)
		entry := domain.AuditEntry{
			BookID:       b.ID,
			Title:        b.Title,
			DatabasePath: b.FilePath,
		}
		switch {
		case res.Exists && res.ActualPath == b.FilePath:
			entry.Class = domain.FileAccessible
			report.Summary.AccessibleFiles++
		case res.Exists:
			entry.Class = domain.FilePathMismatch
			entry.SuggestedPath = res.ActualPath
			report.Summary.PathMismatches++
		default:
			entry.Class = domain.FileMissing
			report.Summary.MissingFiles++
		}
		report.Entries = append(report.Entries, entry)
		if entry.Class != domain.FileAccessible {
			report.Mismatches = append(report.Mismatches, domain.MismatchEntry{
				BookID:        b.ID,
				Title:         b.Title,
				DatabasePath:  b.FilePath,
				SuggestedPath: entry.SuggestedPath,
				Exists:        res.Exists,
			})
		}
	}
	report.Summary.TotalBooks = len(records)
	return report
}
