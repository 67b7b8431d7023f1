package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"bookportal/pkg/domain"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewMemoryStore("ebooks")
	ctx := context.Background()

	if err := s.Put(ctx, "books/a.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	body, err := s.Get(ctx, "books/a.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected body: %q", data)
	}

	if err := s.Delete(ctx, "books/a.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "books/a.pdf"); !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.Delete(ctx, "books/a.pdf"); !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestMemoryStoreRejectsSizeMismatch(t *testing.T) {
	s := NewMemoryStore("")
	err := s.Put(context.Background(), "x.pdf", strings.NewReader("abc"), 10, "application/pdf")
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "put" {
		t.Fatalf("expected put StoreError, got %v", err)
	}
	objs, _ := s.List(context.Background(), "")
	if len(objs) != 0 {
		t.Fatalf("partial object stored: %+v", objs)
	}
}

func TestMemoryStoreListSortedByPrefix(t *testing.T) {
	s := NewMemoryStore("ebooks")
	ctx := context.Background()
	for _, name := range []string{"books/c.pdf", "a.pdf", "books/b.pdf"} {
		if err := s.Put(ctx, name, strings.NewReader("x"), 1, "application/pdf"); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Name != "a.pdf" || all[2].Name != "books/c.pdf" {
		t.Fatalf("unexpected listing: %+v", all)
	}
	if all[0].Size != 1 || all[0].ContentType != "application/pdf" {
		t.Fatalf("unexpected object metadata: %+v", all[0])
	}

	books, err := s.List(ctx, "books/")
	if err != nil {
		t.Fatalf("list prefix: %v", err)
	}
	if len(books) != 2 || books[0].Name != "books/b.pdf" {
		t.Fatalf("unexpected prefixed listing: %+v", books)
	}
}

func TestMemoryStoreHonorsCanceledContext(t *testing.T) {
	s := NewMemoryStore("ebooks")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.List(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled list, got %v", err)
	}
}

func TestMemoryStorePresignGet(t *testing.T) {
	s := NewMemoryStore("ebooks")
	ctx := context.Background()
	if _, err := s.PresignGet(ctx, "missing.pdf", time.Hour); !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Put(ctx, "books/a.pdf", strings.NewReader("x"), 1, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	u, err := s.PresignGet(ctx, "books/a.pdf", time.Hour)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(u, "memory://ebooks/books/a.pdf?expires=") {
		t.Fatalf("unexpected url: %s", u)
	}
}
