package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bookportal/pkg/domain"
)

const migrateLockID int64 = 51873204

// GormCatalog implements Catalog using GORM + Postgres.
type GormCatalog struct {
	db *gorm.DB
}

// NewGormCatalog opens the DB and runs auto-migrations under an advisory lock.
func NewGormCatalog(dsn string) (*GormCatalog, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormCatalog{db: db}, nil
}

// NewGormCatalogFromDB wraps an already opened connection without migrating.
func NewGormCatalogFromDB(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// QueryBooks returns records matching filter ordered by title.
func (s *GormCatalog) QueryBooks(ctx context.Context, filter BookFilter) ([]domain.BookRecord, error) {
	tx := s.db.WithContext(ctx).Model(&BookModel{})
	if filter.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	if filter.SubjectID != "" {
		tx = tx.Where("subject_id = ?", filter.SubjectID)
	}
	if filter.heuristic() {
		clauses := make([]string, 0, len(filter.PathContainsAny)+1)
		args := make([]any, 0, len(filter.PathContainsAny))
		for _, token := range filter.PathContainsAny {
			clauses = append(clauses, "file_path LIKE ?")
			args = append(args, "%"+token+"%")
		}
		if filter.ZeroSize {
			clauses = append(clauses, "file_size = 0")
		}
		tx = tx.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}
	var models []BookModel
	if err := tx.Order("title ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, &domain.CatalogError{Op: "query", Err: err}
	}
	res := make([]domain.BookRecord, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// GetBook retrieves a record by id.
func (s *GormCatalog) GetBook(ctx context.Context, id string) (domain.BookRecord, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BookRecord{}, false, nil
		}
		return domain.BookRecord{}, false, &domain.CatalogError{Op: "get", ID: id, Err: err}
	}
	return bookFromModel(model), true, nil
}

// InsertBook creates a new record.
func (s *GormCatalog) InsertBook(ctx context.Context, b domain.BookRecord) (domain.BookRecord, error) {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UploadedAt.IsZero() {
		b.UploadedAt = now
	}
	b.UpdatedAt = now
	model := bookToModel(b)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.BookRecord{}, &domain.CatalogError{Op: "insert", ID: b.ID, Err: err}
	}
	return bookFromModel(model), nil
}

// UpdateBook applies the non-nil fields of update.
func (s *GormCatalog) UpdateBook(ctx context.Context, id string, update BookUpdate) error {
	if update.empty() {
		return nil
	}
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if update.Title != nil {
		fields["title"] = *update.Title
	}
	if update.Author != nil {
		fields["author"] = *update.Author
	}
	if update.Description != nil {
		fields["description"] = *update.Description
	}
	if update.FilePath != nil {
		fields["file_path"] = *update.FilePath
	}
	if update.IsActive != nil {
		fields["is_active"] = *update.IsActive
	}
	res := s.db.WithContext(ctx).Model(&BookModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return &domain.CatalogError{Op: "update", ID: id, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &domain.CatalogError{Op: "update", ID: id, Err: domain.ErrBookNotFound}
	}
	return nil
}

// DeleteBook hard-deletes a record.
func (s *GormCatalog) DeleteBook(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&BookModel{}, "id = ?", id)
	if res.Error != nil {
		return &domain.CatalogError{Op: "delete", ID: id, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &domain.CatalogError{Op: "delete", ID: id, Err: domain.ErrBookNotFound}
	}
	return nil
}

// IncrementDownloadCount bumps the counter in place.
func (s *GormCatalog) IncrementDownloadCount(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&BookModel{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1"))
	if res.Error != nil {
		return &domain.CatalogError{Op: "increment download count", ID: id, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &domain.CatalogError{Op: "increment download count", ID: id, Err: domain.ErrBookNotFound}
	}
	return nil
}
