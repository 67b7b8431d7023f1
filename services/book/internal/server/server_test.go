package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"bookportal/internal/admintoken"
	"bookportal/internal/ratelimit"
	"bookportal/pkg/domain"
	"bookportal/pkg/storage"
	"bookportal/pkg/store"
	"bookportal/services/book/internal/app"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	samplePDF  = "%PDF-1.4\n% sample\n%%EOF\n"
)

type testEnv struct {
	handler http.Handler
	catalog *store.MemoryCatalog
	objects *storage.MemoryStore
	signer  *admintoken.Signer
}

type listFailingStore struct {
	*storage.MemoryStore
}

func (s listFailingStore) List(ctx context.Context, prefix string) ([]domain.StorageObject, error) {
	return nil, &domain.StoreError{Op: "list", Err: errors.New("bucket offline")}
}

func newEnv(t *testing.T, downloadLimit int, objects storage.BlobStore, seed ...domain.BookRecord) testEnv {
	t.Helper()
	catalog := store.NewMemoryCatalog(seed...)
	mem := storage.NewMemoryStore("ebooks")
	if objects == nil {
		objects = mem
	}
	a, err := app.New(context.Background(), app.Config{
		Catalog:        catalog,
		Objects:        objects,
		Logger:         slog.New(slog.DiscardHandler),
		MaxUploadBytes: 1 << 16,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	verifier, err := admintoken.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	signer, err := admintoken.NewSigner(testSecret, time.Minute)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	cfg := Config{App: a, Verifier: verifier}
	if downloadLimit > 0 {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		limiter, err := ratelimit.NewFixedWindowLimiter(client, "test", downloadLimit, time.Minute)
		if err != nil {
			t.Fatalf("new limiter: %v", err)
		}
		cfg.DownloadLimiter = limiter
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return testEnv{handler: srv.Router(), catalog: catalog, objects: mem, signer: signer}
}

func (e testEnv) token(t *testing.T, role string) string {
	t.Helper()
	token, err := e.signer.Sign("ops", role)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func (e testEnv) do(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	decode(t, rec, &body)
	if body.RequestID == "" {
		t.Fatalf("error response without request id: %s", rec.Body.String())
	}
	return body.Code
}

func putObject(t *testing.T, s *storage.MemoryStore, name string) {
	t.Helper()
	if err := s.Put(context.Background(), name, strings.NewReader(samplePDF), int64(len(samplePDF)), "application/pdf"); err != nil {
		t.Fatalf("put %s: %v", name, err)
	}
}

func book(id, title, path string) domain.BookRecord {
	size := int64(len(samplePDF))
	return domain.BookRecord{ID: id, SubjectID: "math", Title: title, FilePath: path, FileSize: &size, FileType: domain.FileTypePDF, IsActive: true}
}

func TestListAndGetBooks(t *testing.T) {
	env := newEnv(t, 0, nil, book("1", "Calculus", "c.pdf"), book("2", "Algebra", "a.pdf"))

	rec := env.do(t, http.MethodGet, "/books?subjectId=math", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Items []domain.BookRecord `json:"items"`
		Count int                 `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 2 || list.Items[0].Title != "Algebra" {
		t.Fatalf("unexpected list: %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/books/1", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/books/missing", "", nil, "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "BOOK_NOT_FOUND" {
		t.Fatalf("missing book: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/books", "", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("list without subject = %d", rec.Code)
	}
}

func TestAdminEndpointsRequireAdminToken(t *testing.T) {
	env := newEnv(t, 0, nil, book("1", "Physics", "books/x.pdf"))
	putObject(t, env.objects, "x.pdf")

	rec := env.do(t, http.MethodGet, "/admin/storage/audit", "", nil, "")
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "AUTH_INVALID_TOKEN" {
		t.Fatalf("no token: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/admin/storage/audit", env.token(t, "student"), nil, "")
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != "ADMIN_FORBIDDEN" {
		t.Fatalf("student token: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/admin/storage/audit", "not-a-jwt", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/admin/storage/audit", env.token(t, admintoken.RoleAdmin), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d: %s", rec.Code, rec.Body.String())
	}
	var report domain.AuditReport
	decode(t, rec, &report)
	if report.Summary.PathMismatches != 1 || len(report.Mismatches) != 1 || report.Mismatches[0].SuggestedPath != "x.pdf" {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec = env.do(t, http.MethodPost, "/admin/storage/audit", env.token(t, admintoken.RoleAdmin), nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST audit = %d", rec.Code)
	}
}

func TestRepairEndpoint(t *testing.T) {
	env := newEnv(t, 0, nil, book("1", "Physics", "books/x.pdf"), book("2", "Chemistry", "books/y.pdf"))
	putObject(t, env.objects, "x.pdf")
	putObject(t, env.objects, "y.pdf")
	admin := env.token(t, admintoken.RoleAdmin)

	explicit := `{"mismatches":[{"bookId":"2","title":"Chemistry","databasePath":"books/y.pdf","suggestedPath":"y.pdf","exists":true}]}`
	rec := env.do(t, http.MethodPost, "/admin/storage/repair", admin, strings.NewReader(explicit), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("repair status = %d: %s", rec.Code, rec.Body.String())
	}
	var out app.RepairReport
	decode(t, rec, &out)
	if out.Fixed != 1 || out.Summary == nil || out.Summary.PathMismatches != 1 {
		t.Fatalf("explicit repair: %+v summary %+v", out.RepairResult, out.Summary)
	}

	rec = env.do(t, http.MethodPost, "/admin/storage/repair", admin, nil, "")
	out = app.RepairReport{}
	decode(t, rec, &out)
	if out.Fixed != 1 || out.Summary == nil || out.Summary.AccessibleFiles != 2 {
		t.Fatalf("audit-driven repair: %+v summary %+v", out.RepairResult, out.Summary)
	}

	rec = env.do(t, http.MethodPost, "/admin/storage/repair", admin, strings.NewReader("{"), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body = %d", rec.Code)
	}
}

func TestCleanupValidateResolveEndpoints(t *testing.T) {
	zero := int64(0)
	empty := book("2", "Empty", "y.pdf")
	empty.FileSize = &zero
	env := newEnv(t, 0, nil, book("1", "Physics", "books/x.pdf"), empty)
	putObject(t, env.objects, "x.pdf")
	putObject(t, env.objects, "upload.tmp")
	admin := env.token(t, admintoken.RoleAdmin)

	rec := env.do(t, http.MethodGet, "/admin/storage/validate", admin, nil, "")
	var validation domain.ValidationResult
	decode(t, rec, &validation)
	if validation.Valid != 0 || validation.Invalid != 2 {
		t.Fatalf("validate: %+v", validation)
	}

	rec = env.do(t, http.MethodPost, "/admin/storage/cleanup", admin, nil, "")
	var cleanup domain.CleanupResult
	decode(t, rec, &cleanup)
	if cleanup.Cleaned != 1 || cleanup.ObjectsRemoved != 1 {
		t.Fatalf("cleanup: %+v", cleanup)
	}

	rec = env.do(t, http.MethodGet, "/admin/storage/resolve?path=books/x.pdf", admin, nil, "")
	var resolved struct {
		Exists     bool   `json:"exists"`
		ActualPath string `json:"actualPath"`
	}
	decode(t, rec, &resolved)
	if !resolved.Exists || resolved.ActualPath != "x.pdf" {
		t.Fatalf("resolve: %+v", resolved)
	}
	rec = env.do(t, http.MethodGet, "/admin/storage/resolve", admin, nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("resolve without path = %d", rec.Code)
	}
}

func TestAuditFailureReturnsBadGateway(t *testing.T) {
	env := newEnv(t, 0, listFailingStore{storage.NewMemoryStore("ebooks")}, book("1", "A", "a.pdf"))
	rec := env.do(t, http.MethodGet, "/admin/storage/audit", env.token(t, admintoken.RoleAdmin), nil, "")
	if rec.Code != http.StatusBadGateway || errorCode(t, rec) != "STORAGE_AUDIT_FAILED" {
		t.Fatalf("audit failure: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDownloadEndpoint(t *testing.T) {
	env := newEnv(t, 2, nil, book("1", "Physics", "books/x.pdf"), book("2", "Lost", "lost.pdf"))
	putObject(t, env.objects, "x.pdf")

	rec := env.do(t, http.MethodGet, "/books/1/download", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d: %s", rec.Code, rec.Body.String())
	}
	var dl app.Download
	decode(t, rec, &dl)
	if !strings.HasPrefix(dl.URL, "memory://ebooks/x.pdf") || dl.Filename != "Physics.pdf" {
		t.Fatalf("unexpected download: %+v", dl)
	}

	rec = env.do(t, http.MethodGet, "/books/2/download", "", nil, "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "BOOK_FILE_MISSING" {
		t.Fatalf("missing file: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/books/1/download", "", nil, "")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("third download should be limited: %d %v", rec.Code, rec.Header())
	}
	if errorCode(t, rec) != "RATE_LIMITED" {
		t.Fatalf("unexpected code for limited request")
	}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadAndDeleteBook(t *testing.T) {
	env := newEnv(t, 0, nil)
	admin := env.token(t, admintoken.RoleAdmin)
	fields := map[string]string{"title": "Optics", "subjectId": "physics", "author": "Hecht"}

	body, ct := multipartUpload(t, fields, "optics.pdf", samplePDF)
	rec := env.do(t, http.MethodPost, "/books", "", body, ct)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous upload = %d", rec.Code)
	}

	body, ct = multipartUpload(t, fields, "optics.pdf", samplePDF)
	rec = env.do(t, http.MethodPost, "/books", admin, body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.BookRecord
	decode(t, rec, &created)
	if created.Author != "Hecht" || created.SubjectID != "physics" || !created.IsActive {
		t.Fatalf("unexpected record: %+v", created)
	}

	body, ct = multipartUpload(t, fields, "notes.docx", "PK\x03\x04")
	rec = env.do(t, http.MethodPost, "/books", admin, body, ct)
	if rec.Code != http.StatusUnsupportedMediaType || errorCode(t, rec) != "BOOK_UNSUPPORTED_FILE_TYPE" {
		t.Fatalf("non-pdf upload: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/books/"+created.ID, "", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous delete = %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/books/"+created.ID, admin, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/books/"+created.ID, "", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted book still served: %d", rec.Code)
	}
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	env := newEnv(t, 0, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing middleware headers: %v", rec.Header())
	}
}
