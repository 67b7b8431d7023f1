// Package reconcile keeps the book catalog and the blob store in
// correspondence: it audits drift, repairs recorded paths, runs the
// two-phase upload and purges placeholder artifacts.
//
// The catalog and the store are independently committed systems. Nothing in
// this package holds a lock across them; callers re-run Audit to observe the
// effect of any mutation instead of trusting returned tallies.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bookportal/pkg/domain"
	"bookportal/pkg/storage"
	"bookportal/pkg/store"
)

// DefaultCallTimeout bounds each remote call made by the engine.
const DefaultCallTimeout = 10 * time.Second

// Config wires the engine's collaborators and tuning knobs.
type Config struct {
	Catalog store.Catalog
	Objects storage.BlobStore
	Logger  *slog.Logger

	// CallTimeout bounds every catalog/store call. A timeout fails that row.
	CallTimeout time.Duration
	// Concurrency > 1 runs repair and cleanup rows in parallel. Results keep
	// catalog order either way.
	Concurrency int
	// StrictResolve disables the terminal-segment fallback of Resolve.
	StrictResolve bool
	// KeyPrefix is prepended to generated upload keys. It must not contain a
	// cleanup marker.
	KeyPrefix string
	// NewKey overrides upload key generation.
	NewKey func(now time.Time) string
	// Now overrides the clock.
	Now func() time.Time
}

// Engine runs reconciliation operations against a catalog and a blob store.
type Engine struct {
	catalog store.Catalog
	objects storage.BlobStore
	log     *slog.Logger

	callTimeout time.Duration
	concurrency int
	resolve     func(string, []domain.StorageObject) domain.Resolution
	strict      bool
	keyPrefix   string
	newKey      func(time.Time) string
	now         func() time.Time
}

// New constructs an engine. Catalog and Objects are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("reconcile: catalog is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("reconcile: object store is required")
	}
	if err := CheckKeyPrefix(cfg.KeyPrefix); err != nil {
		return nil, err
	}
	e := &Engine{
		catalog:     cfg.Catalog,
		objects:     cfg.Objects,
		log:         cfg.Logger,
		callTimeout: cfg.CallTimeout,
		concurrency: cfg.Concurrency,
		resolve:     Resolve,
		keyPrefix:   cfg.KeyPrefix,
		newKey:      cfg.NewKey,
		now:         cfg.Now,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.callTimeout <= 0 {
		e.callTimeout = DefaultCallTimeout
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	if cfg.StrictResolve {
		e.resolve = ResolveStrict
		e.strict = true
	}
	if e.newKey == nil {
		e.newKey = ObjectKey
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e, nil
}

// CheckKeyPrefix rejects an upload key prefix that CleanupPlaceholders would
// treat as a placeholder, since every upload under it would be purged.
func CheckKeyPrefix(prefix string) error {
	if IsPlaceholderObject(prefix) {
		return fmt.Errorf("reconcile: upload key prefix %q contains a cleanup marker", prefix)
	}
	return nil
}

// Resolve exposes the engine's configured resolver for ad-hoc checks.
func (e *Engine) Resolve(recordedPath string, listing []domain.StorageObject) domain.Resolution {
	return e.resolve(recordedPath, listing)
}

// ResolveBook resolves the deliverable key of one record. Each candidate key
// is looked up with its own prefix listing, so a bucket larger than one
// listing page cannot hide an exact match. Only when no candidate exists
// exactly, and the resolver is not strict, is the terminal-segment fallback
// tried against the bucket listing. A listing failure is returned as an
// error, never as "missing".
func (e *Engine) ResolveBook(ctx context.Context, b domain.BookRecord) (domain.Resolution, error) {
	candidates := append([]string{b.FilePath}, AlternativesOf(b.FilePath)...)
	var narrowed []domain.StorageObject
	for _, c := range candidates {
		if c == "" {
			continue
		}
		objs, err := e.listPrefix(ctx, c)
		if err != nil {
			return domain.Resolution{}, err
		}
		narrowed = append(narrowed, objs...)
	}
	if res, ok := resolveExact(candidates, narrowed); ok {
		return res, nil
	}
	if e.strict {
		return domain.Resolution{}, nil
	}
	listing, err := e.listObjects(ctx)
	if err != nil {
		return domain.Resolution{}, err
	}
	return e.resolve(b.FilePath, listing), nil
}

func (e *Engine) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.callTimeout)
}

func (e *Engine) listObjects(ctx context.Context) ([]domain.StorageObject, error) {
	return e.listPrefix(ctx, "")
}

func (e *Engine) listPrefix(ctx context.Context, prefix string) ([]domain.StorageObject, error) {
	cctx, cancel := e.call(ctx)
	defer cancel()
	return e.objects.List(cctx, prefix)
}

func (e *Engine) activeBooks(ctx context.Context) ([]domain.BookRecord, error) {
	cctx, cancel := e.call(ctx)
	defer cancel()
	return e.catalog.QueryBooks(cctx, store.BookFilter{ActiveOnly: true})
}

// each calls fn for every index in [0, n). With concurrency above one the
// calls overlap, bounded by the limit; fn must only write its own slot.
func (e *Engine) each(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if e.concurrency <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			fn(ctx, i)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func errMessage(err error) string {
	if err == nil {
		return "Unknown error"
	}
	return err.Error()
}
