package store

import (
	"time"

	"bookportal/pkg/domain"
)

// BookModel is the GORM model for the ebooks table.
type BookModel struct {
	ID            string `gorm:"primaryKey"`
	SubjectID     string `gorm:"not null;index"`
	Title         string `gorm:"not null;index"`
	Author        string
	Description   string `gorm:"type:text"`
	FilePath      string `gorm:"not null;index"`
	FileSize      *int64
	FileType      string `gorm:"not null;default:pdf"`
	PageCount     int
	DownloadCount int64     `gorm:"not null;default:0"`
	IsActive      bool      `gorm:"not null;index"`
	UploadedAt    time.Time `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName keeps the table name stable across model renames.
func (BookModel) TableName() string { return "ebooks" }

func bookToModel(b domain.BookRecord) BookModel {
	return BookModel{
		ID:            b.ID,
		SubjectID:     b.SubjectID,
		Title:         b.Title,
		Author:        b.Author,
		Description:   b.Description,
		FilePath:      b.FilePath,
		FileSize:      b.FileSize,
		FileType:      b.FileType,
		PageCount:     b.PageCount,
		DownloadCount: b.DownloadCount,
		IsActive:      b.IsActive,
		UploadedAt:    b.UploadedAt,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.BookRecord {
	return domain.BookRecord{
		ID:            m.ID,
		SubjectID:     m.SubjectID,
		Title:         m.Title,
		Author:        m.Author,
		Description:   m.Description,
		FilePath:      m.FilePath,
		FileSize:      m.FileSize,
		FileType:      m.FileType,
		PageCount:     m.PageCount,
		DownloadCount: m.DownloadCount,
		IsActive:      m.IsActive,
		UploadedAt:    m.UploadedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
