package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"bookportal/internal/util"
	"bookportal/pkg/domain"
	"bookportal/pkg/reconcile"
	"bookportal/pkg/storage"
	"bookportal/pkg/store"
)

var (
	// ErrUnsupportedFileType rejects uploads that are not PDFs.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrFileTooLarge rejects uploads above the configured limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidRequest covers missing or malformed input.
	ErrInvalidRequest = errors.New("invalid request")
)

const defaultDownloadExpiry = 2 * time.Hour

// Config holds runtime configuration for the core application.
// Catalog and Objects may be injected; otherwise they are built from the
// backend settings.
type Config struct {
	Catalog store.Catalog
	Objects storage.BlobStore
	Logger  *slog.Logger

	CatalogBackend string
	DatabaseURL    string

	StorageBackend string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	S3             storage.S3Options

	MaxUploadBytes int64
	DownloadExpiry time.Duration
	CallTimeout    time.Duration
	Concurrency    int
	StrictResolve  bool
	KeyPrefix      string
}

// App is the book service core: browsing and delivery for students, upload
// for staff and the storage diagnostics used by administrators.
type App struct {
	catalog        store.Catalog
	objects        storage.BlobStore
	engine         *reconcile.Engine
	log            *slog.Logger
	maxUploadBytes int64
	downloadExpiry time.Duration
}

// UploadInput is a book submitted through the upload form.
type UploadInput struct {
	Title       string
	Author      string
	Description string
	SubjectID   string
	Filename    string
	Size        int64
	Body        io.Reader
}

// Download is a short-lived link to a book's file.
type Download struct {
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RepairReport is the repair tally plus a fresh audit summary taken after it.
type RepairReport struct {
	domain.RepairResult
	Summary *domain.AuditSummary `json:"summary,omitempty"`
}

// New constructs the application, opening backends that were not injected.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		var err error
		catalog, err = openCatalog(cfg)
		if err != nil {
			return nil, err
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = openObjects(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	engine, err := reconcile.New(reconcile.Config{
		Catalog:       catalog,
		Objects:       objects,
		Logger:        logger.With("component", "reconcile"),
		CallTimeout:   cfg.CallTimeout,
		Concurrency:   cfg.Concurrency,
		StrictResolve: cfg.StrictResolve,
		KeyPrefix:     cfg.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	expiry := cfg.DownloadExpiry
	if expiry <= 0 {
		expiry = defaultDownloadExpiry
	}
	return &App{
		catalog:        catalog,
		objects:        objects,
		engine:         engine,
		log:            logger,
		maxUploadBytes: maxUpload,
		downloadExpiry: expiry,
	}, nil
}

// MaxUploadBytes is the accepted upload size.
func (a *App) MaxUploadBytes() int64 { return a.maxUploadBytes }

// UploadBook checks that the body is a PDF within the size limit, reads its
// page count when it can, then runs the two-phase upload.
func (a *App) UploadBook(ctx context.Context, in UploadInput) (domain.BookRecord, error) {
	if in.Body == nil {
		return domain.BookRecord{}, fmt.Errorf("%w: file is required", ErrInvalidRequest)
	}
	if in.Size > a.maxUploadBytes {
		return domain.BookRecord{}, ErrFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(in.Body, a.maxUploadBytes+1))
	if err != nil {
		return domain.BookRecord{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > a.maxUploadBytes {
		return domain.BookRecord{}, ErrFileTooLarge
	}
	if !isPDF(data) {
		return domain.BookRecord{}, ErrUnsupportedFileType
	}
	pages := pageCount(data)
	if pages == 0 {
		util.LoggerFromContext(ctx).Warn("page count unavailable", "filename", in.Filename)
	}

	rec, err := a.engine.Upload(ctx, bytes.NewReader(data), int64(len(data)), reconcile.UploadMetadata{
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		SubjectID:   in.SubjectID,
		Filename:    in.Filename,
		ContentType: "application/pdf",
		PageCount:   pages,
	})
	if errors.Is(err, reconcile.ErrInvalidUpload) {
		return domain.BookRecord{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return rec, err
}

// ListBooks returns the active books of a subject ordered by title.
func (a *App) ListBooks(ctx context.Context, subjectID string) ([]domain.BookRecord, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subjectId is required", ErrInvalidRequest)
	}
	return a.catalog.QueryBooks(ctx, store.BookFilter{ActiveOnly: true, SubjectID: subjectID})
}

// GetBook returns an active book. Soft-deleted books are reported as absent.
func (a *App) GetBook(ctx context.Context, id string) (domain.BookRecord, bool, error) {
	b, ok, err := a.catalog.GetBook(ctx, id)
	if err != nil || !ok || !b.IsActive {
		return domain.BookRecord{}, false, err
	}
	return b, true, nil
}

// DownloadURL resolves where the book's file actually lives, presigns that
// key and counts the download. The counter is best-effort.
func (a *App) DownloadURL(ctx context.Context, id string) (Download, error) {
	b, ok, err := a.GetBook(ctx, id)
	if err != nil {
		return Download{}, err
	}
	if !ok {
		return Download{}, domain.ErrBookNotFound
	}
	res, err := a.engine.ResolveBook(ctx, b)
	if err != nil {
		return Download{}, err
	}
	log := util.LoggerFromContext(ctx).With("book_id", b.ID, "path", b.FilePath)
	if !res.Exists {
		log.Warn("book file missing from storage")
		return Download{}, domain.ErrFileNotFound
	}
	if res.ActualPath != b.FilePath {
		log.Info("serving book from drifted path", "actual_path", res.ActualPath)
	}
	url, err := a.objects.PresignGet(ctx, res.ActualPath, a.downloadExpiry)
	if err != nil {
		return Download{}, err
	}
	if err := a.catalog.IncrementDownloadCount(ctx, b.ID); err != nil {
		log.Warn("increment download count failed", "err", err)
	}
	return Download{
		URL:       url,
		Filename:  downloadFilename(b.Title),
		ExpiresAt: time.Now().UTC().Add(a.downloadExpiry),
	}, nil
}

// DeleteBook hides a book from students. The stored object is kept.
func (a *App) DeleteBook(ctx context.Context, id string) error {
	inactive := false
	if err := a.catalog.UpdateBook(ctx, id, store.BookUpdate{IsActive: &inactive}); err != nil {
		return err
	}
	util.LoggerFromContext(ctx).Info("book deactivated", "book_id", id)
	return nil
}

// Audit classifies every active book against the store listing.
func (a *App) Audit(ctx context.Context) (domain.AuditReport, error) {
	return a.engine.Audit(ctx)
}

// Repair applies suggested paths. With no mismatches given it audits first.
// The returned summary comes from a second audit and is omitted if that fails.
func (a *App) Repair(ctx context.Context, mismatches []domain.MismatchEntry) (RepairReport, error) {
	if mismatches == nil {
		report, err := a.engine.Audit(ctx)
		if err != nil {
			return RepairReport{}, err
		}
		mismatches = report.Mismatches
	}
	report := RepairReport{RepairResult: a.engine.Repair(ctx, mismatches)}
	after, err := a.engine.Audit(ctx)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("post-repair audit failed", "err", err)
		return report, nil
	}
	report.Summary = &after.Summary
	return report, nil
}

// Cleanup purges placeholder rows and objects.
func (a *App) Cleanup(ctx context.Context) domain.CleanupResult {
	return a.engine.CleanupPlaceholders(ctx)
}

// Validate checks active books by exact key.
func (a *App) Validate(ctx context.Context) (domain.ValidationResult, error) {
	return a.engine.ValidateActiveBooks(ctx)
}

// ResolvePath resolves a raw recorded path against the current listing.
func (a *App) ResolvePath(ctx context.Context, recordedPath string) (domain.Resolution, error) {
	recordedPath = strings.TrimSpace(recordedPath)
	if recordedPath == "" {
		return domain.Resolution{}, fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	return a.engine.ResolveBook(ctx, domain.BookRecord{FilePath: recordedPath})
}

func downloadFilename(title string) string {
	name := sanitizeFilename(title)
	if name == "" {
		name = "book"
	}
	return name + "." + domain.FileTypePDF
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_.")
}
