package domain

import "time"

// FileTypePDF is the only file type accepted by the portal.
const FileTypePDF = "pdf"

// FileClass classifies one catalog record against the object listing.
type FileClass string

const (
	FileAccessible   FileClass = "accessible"
	FilePathMismatch FileClass = "path-mismatch"
	FileMissing      FileClass = "missing"
)

// BookRecord is a catalog row describing one uploaded book.
// FilePath is the catalog's belief about the object key holding the bytes.
type BookRecord struct {
	ID            string    `json:"id"`
	SubjectID     string    `json:"subjectId"`
	Title         string    `json:"title"`
	Author        string    `json:"author,omitempty"`
	Description   string    `json:"description,omitempty"`
	FilePath      string    `json:"filePath"`
	FileSize      *int64    `json:"fileSize,omitempty"`
	FileType      string    `json:"fileType"`
	PageCount     int       `json:"pageCount,omitempty"`
	DownloadCount int64     `json:"downloadCount"`
	IsActive      bool      `json:"isActive"`
	UploadedAt    time.Time `json:"uploadedAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// StorageObject is an object as it actually exists in the bucket.
type StorageObject struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// Resolution is the outcome of looking up a recorded path in a listing.
type Resolution struct {
	Exists     bool   `json:"exists"`
	ActualPath string `json:"actualPath,omitempty"`
}

// AuditEntry is the classification of a single catalog record.
type AuditEntry struct {
	BookID        string    `json:"bookId"`
	Title         string    `json:"title"`
	DatabasePath  string    `json:"databasePath"`
	Class         FileClass `json:"class"`
	SuggestedPath string    `json:"suggestedPath,omitempty"`
}

// MismatchEntry is an audit entry that was not accessible under its recorded path.
type MismatchEntry struct {
	BookID        string `json:"bookId"`
	Title         string `json:"title"`
	DatabasePath  string `json:"databasePath"`
	SuggestedPath string `json:"suggestedPath,omitempty"`
	Exists        bool   `json:"exists"`
}

// AuditSummary holds aggregate counts. The three class counts always sum to TotalBooks.
type AuditSummary struct {
	TotalBooks      int `json:"totalBooks"`
	AccessibleFiles int `json:"accessibleFiles"`
	PathMismatches  int `json:"pathMismatches"`
	MissingFiles    int `json:"missingFiles"`
}

// AuditReport is regenerated on every audit run and never cached.
type AuditReport struct {
	Records     []BookRecord    `json:"databaseFiles"`
	Objects     []StorageObject `json:"storageFiles"`
	Entries     []AuditEntry    `json:"entries"`
	Mismatches  []MismatchEntry `json:"mismatches"`
	Summary     AuditSummary    `json:"summary"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// RepairResult tallies a repair batch.
type RepairResult struct {
	Fixed  int      `json:"fixed"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

// CleanupResult tallies a placeholder cleanup run.
type CleanupResult struct {
	Cleaned        int      `json:"cleaned"`
	ObjectsRemoved int      `json:"objectsRemoved"`
	Errors         []string `json:"errors"`
}

// ValidationResult is the read-only health check outcome.
type ValidationResult struct {
	Valid   int      `json:"valid"`
	Invalid int      `json:"invalid"`
	Issues  []string `json:"issues"`
}
