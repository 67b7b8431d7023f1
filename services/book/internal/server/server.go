package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"bookportal/internal/admintoken"
	"bookportal/internal/ratelimit"
	"bookportal/internal/util"
	"bookportal/pkg/domain"
	"bookportal/services/book/internal/app"
)

const (
	scopeDownload = "download"
	scopeAdmin    = "admin"

	maxJSONBody   = 4 << 20
	multipartSlop = 1 << 20
)

// Limiter throttles a scope/key pair.
type Limiter interface {
	Allow(ctx context.Context, scope, key string) (ratelimit.Decision, error)
}

// Config wires required dependencies for the HTTP server.
// Nil limiters disable throttling for their endpoints.
type Config struct {
	App             *app.App
	Verifier        *admintoken.Verifier
	DownloadLimiter Limiter
	AdminLimiter    Limiter
	TrustedProxies  *util.TrustedProxies
}

// Server exposes HTTP endpoints for the book service.
type Server struct {
	app             *app.App
	verifier        *admintoken.Verifier
	downloadLimiter Limiter
	adminLimiter    Limiter
	trusted         *util.TrustedProxies
	mux             *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server: admin token verifier is required")
	}
	s := &Server{
		app:             cfg.App,
		verifier:        cfg.Verifier,
		downloadLimiter: cfg.DownloadLimiter,
		adminLimiter:    cfg.AdminLimiter,
		trusted:         cfg.TrustedProxies,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(s.trusted, util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// books
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/", s.handleBookByID)

	// storage diagnostics
	s.mux.Handle("/admin/storage/audit", s.withAdmin(http.MethodGet, s.handleAudit))
	s.mux.Handle("/admin/storage/repair", s.withAdmin(http.MethodPost, s.handleRepair))
	s.mux.Handle("/admin/storage/cleanup", s.withAdmin(http.MethodPost, s.handleCleanup))
	s.mux.Handle("/admin/storage/validate", s.withAdmin(http.MethodGet, s.handleValidate))
	s.mux.Handle("/admin/storage/resolve", s.withAdmin(http.MethodGet, s.handleResolve))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAdmin checks the method, the admin bearer token and the admin quota.
func (s *Server) withAdmin(method string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if method != "" && r.Method != method {
			methodNotAllowed(w)
			return
		}
		token, ok := admintoken.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		claims, err := s.verifier.Verify(token)
		if errors.Is(err, admintoken.ErrForbidden) {
			writeError(w, http.StatusForbidden, "ADMIN_FORBIDDEN", "forbidden")
			return
		}
		if err != nil {
			util.LoggerFromContext(r.Context()).Warn("admin token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		if !s.allow(w, r, s.adminLimiter, scopeAdmin, claims.Subject) {
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("admin", claims.Subject))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request, limiter Limiter, scope, key string) bool {
	if limiter == nil {
		return true
	}
	decision, err := limiter.Allow(r.Context(), scope, key)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("rate limiter unavailable", "scope", scope, "err", err)
	}
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
	return false
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBooks(w, r)
	case http.MethodPost:
		s.withAdmin("", s.handleUploadBook).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /books/{id} or /books/{id}/download
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/books/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w)
		return
	}
	if len(parts) == 2 {
		if parts[1] != "download" {
			notFound(w)
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleDownloadBook(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		book, ok, err := s.app.GetBook(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if !ok {
			writeAppError(w, r, domain.ErrBookNotFound)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		s.withAdmin("", func(w http.ResponseWriter, r *http.Request) {
			if err := s.app.DeleteBook(r.Context(), id); err != nil {
				writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.app.ListBooks(r.Context(), r.URL.Query().Get("subjectId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

// handleDownloadBook returns a pre-signed URL for the key the file actually
// lives under, which may differ from the recorded path.
func (s *Server) handleDownloadBook(w http.ResponseWriter, r *http.Request, id string) {
	if !s.allow(w, r, s.downloadLimiter, scopeDownload, util.ClientIP(r, s.trusted)) {
		return
	}
	dl, err := s.app.DownloadURL(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dl)
}

func (s *Server) handleUploadBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes()+multipartSlop)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAppError(w, r, app.ErrFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "BOOK_INVALID_UPLOAD_FORM", "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BOOK_FILE_REQUIRED", "file is required (field: file)")
		return
	}
	defer file.Close()
	book, err := s.app.UploadBook(r.Context(), app.UploadInput{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Description: r.FormValue("description"),
		SubjectID:   r.FormValue("subjectId"),
		Filename:    header.Filename,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Audit(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type repairRequest struct {
	Mismatches []domain.MismatchEntry `json:"mismatches"`
}

// handleRepair accepts {"mismatches": [...]}. An empty body or a missing
// list runs a fresh audit and repairs what it finds.
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BOOK_INVALID_REQUEST", "invalid JSON body")
		return
	}
	var req repairRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "BOOK_INVALID_REQUEST", "invalid JSON body")
			return
		}
	}
	report, err := s.app.Repair(r.Context(), req.Mismatches)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Cleanup(r.Context()))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Validate(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	res, err := s.app.ResolvePath(r.Context(), path)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":       path,
		"exists":     res.Exists,
		"actualPath": res.ActualPath,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

// writeAppError maps core errors to status codes. Server-side failures are
// logged with their cause; the response carries only a stable message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		auditErr   *domain.AuditError
		uploadErr  *domain.UploadError
		storeErr   *domain.StoreError
		catalogErr *domain.CatalogError
	)
	switch {
	case errors.Is(err, domain.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "BOOK_NOT_FOUND", "book not found")
		return
	case errors.Is(err, domain.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "BOOK_FILE_MISSING", "book file not found in storage")
		return
	case errors.Is(err, app.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "BOOK_FILE_TOO_LARGE", "file too large")
		return
	case errors.Is(err, app.ErrUnsupportedFileType):
		writeError(w, http.StatusUnsupportedMediaType, "BOOK_UNSUPPORTED_FILE_TYPE", "unsupported file type: only PDF is accepted")
		return
	case errors.Is(err, app.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "BOOK_INVALID_REQUEST", err.Error())
		return
	}

	util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
	switch {
	case errors.As(err, &auditErr):
		writeError(w, http.StatusBadGateway, "STORAGE_AUDIT_FAILED", "storage audit failed")
	case errors.As(err, &uploadErr):
		writeError(w, http.StatusBadGateway, "BOOK_UPLOAD_FAILED", "upload failed at "+uploadErr.Stage)
	case errors.As(err, &storeErr):
		writeError(w, http.StatusBadGateway, "STORAGE_UNAVAILABLE", "object storage unavailable")
	case errors.As(err, &catalogErr):
		writeError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "catalog unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
	}
}
