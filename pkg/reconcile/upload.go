package reconcile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookportal/pkg/domain"
)

// DefaultAuthor is recorded when an upload names no author.
const DefaultAuthor = "Unknown Author"

// ErrInvalidUpload is returned before any remote call for incomplete metadata.
var ErrInvalidUpload = errors.New("invalid upload")

// UploadMetadata describes a book being uploaded. Filename is only logged; it
// never becomes part of the object key.
type UploadMetadata struct {
	Title       string
	Author      string
	Description string
	SubjectID   string
	Filename    string
	ContentType string
	PageCount   int
}

// Upload writes the blob under a generated key and then inserts the record.
// If the insert fails the written object is deleted again; a failure of that
// compensating delete is logged only.
func (e *Engine) Upload(ctx context.Context, blob io.Reader, size int64, meta UploadMetadata) (domain.BookRecord, error) {
	meta.Title = strings.TrimSpace(meta.Title)
	meta.SubjectID = strings.TrimSpace(meta.SubjectID)
	if meta.Title == "" {
		return domain.BookRecord{}, fmt.Errorf("%w: title required", ErrInvalidUpload)
	}
	if meta.SubjectID == "" {
		return domain.BookRecord{}, fmt.Errorf("%w: subject required", ErrInvalidUpload)
	}
	if size < 0 {
		return domain.BookRecord{}, fmt.Errorf("%w: negative size", ErrInvalidUpload)
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}

	now := e.now()
	key := e.keyPrefix + e.newKey(now)
	if IsPlaceholderObject(key) {
		return domain.BookRecord{}, fmt.Errorf("%w: key %q would be purged by cleanup", ErrInvalidUpload, key)
	}
	log := e.log.With("path", key, "title", meta.Title, "filename", meta.Filename)

	cctx, cancel := e.call(ctx)
	err := e.objects.Put(cctx, key, blob, size, contentType)
	cancel()
	if err != nil {
		log.Error("store write failed", "err", err)
		return domain.BookRecord{}, &domain.UploadError{Stage: domain.UploadStageStoreWrite, Err: err}
	}

	author := strings.TrimSpace(meta.Author)
	if author == "" {
		author = DefaultAuthor
	}
	fileSize := size
	record := domain.BookRecord{
		ID:          uuid.NewString(),
		SubjectID:   meta.SubjectID,
		Title:       meta.Title,
		Author:      author,
		Description: strings.TrimSpace(meta.Description),
		FilePath:    key,
		FileSize:    &fileSize,
		FileType:    domain.FileTypePDF,
		PageCount:   meta.PageCount,
		IsActive:    true,
		UploadedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	cctx, cancel = e.call(ctx)
	saved, err := e.catalog.InsertBook(cctx, record)
	cancel()
	if err != nil {
		log.Error("catalog insert failed, removing stored object", "err", err)
		e.compensateDelete(ctx, key)
		return domain.BookRecord{}, &domain.UploadError{Stage: domain.UploadStageCatalogInsert, Err: err}
	}
	log.Info("book uploaded", "book_id", saved.ID, "size", size)
	return saved, nil
}

func (e *Engine) compensateDelete(ctx context.Context, key string) {
	// The caller's context may already be done; the cleanup must still run.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()
	if err := e.objects.Delete(cctx, key); err != nil {
		e.log.Error("compensating delete failed, object left orphaned", "path", key, "err", err)
		return
	}
	e.log.Info("compensating delete succeeded", "path", key)
}

// ObjectKey builds "<unix-millis>-<random>.pdf" from the upload time. Only
// PDFs are accepted, so the client's extension is never carried over; the
// random part is hex, so a generated key never contains a cleanup marker.
func ObjectKey(now time.Time) string {
	return fmt.Sprintf("%d-%s.%s", now.UnixMilli(), randomSuffix(), domain.FileTypePDF)
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano()%0xffffffff, 16)
	}
	return hex.EncodeToString(b)
}
