package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBookNotFound indicates the catalog has no record with the requested id.
	ErrBookNotFound = errors.New("book not found")
	// ErrFileNotFound indicates no object exists under any form of the recorded path.
	ErrFileNotFound = errors.New("file not found in storage")
)

// Upload stages reported by UploadError.
const (
	UploadStageStoreWrite    = "store-write"
	UploadStageCatalogInsert = "catalog-insert"
)

// StoreError reports a failed object store call.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// CatalogError reports a failed catalog call.
type CatalogError struct {
	Op  string
	ID  string
	Err error
}

func (e *CatalogError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("catalog %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// AuditError aborts an audit; no partial report is produced.
type AuditError struct {
	Err error
}

func (e *AuditError) Error() string { return "storage audit failed: " + e.Err.Error() }

func (e *AuditError) Unwrap() error { return e.Err }

// UploadError tells the caller which half of the upload failed.
type UploadError struct {
	Stage string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed at %s: %v", e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
