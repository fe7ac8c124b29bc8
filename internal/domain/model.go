package domain

import "time"

// AcceptedMIMEType is the only document type the library ingests.
const AcceptedMIMEType = "application/pdf"

// FileCandidate is a file the user picked for ingestion.
type FileCandidate struct {
	Path     string
	Name     string
	Size     int64
	MIMEType string
	Pages    int
}

// UploadStatus is the lifecycle state of an UploadTask.
type UploadStatus int

const (
	UploadIdle UploadStatus = iota
	UploadSelected
	UploadUploading
	UploadSucceeded
	UploadFailed
)

func (s UploadStatus) String() string {
	switch s {
	case UploadSelected:
		return "selected"
	case UploadUploading:
		return "uploading"
	case UploadSucceeded:
		return "succeeded"
	case UploadFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Terminal reports whether the status ends an upload attempt.
func (s UploadStatus) Terminal() bool {
	return s == UploadSucceeded || s == UploadFailed
}

// UploadResult is what the backend reports after ingesting a document.
type UploadResult struct {
	PaperID     string
	EmbeddingID string
	Chunks      int
	FileName    string
	Summary     string
}

// UploadTask is one ingestion attempt. Result is set only when Succeeded,
// Error only when Failed.
type UploadTask struct {
	Generation int
	File       *FileCandidate
	Status     UploadStatus
	Progress   int
	Result     *UploadResult
	Error      string
}

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation points from an assistant answer to a source excerpt.
type Citation struct {
	Index    int
	SourceID string
	Snippet  string
}

// ChatTurn is one message in a transcript.
type ChatTurn struct {
	Role      Role
	Content   string
	Citations []Citation
	// Pending marks the transient indicator turn; it never enters a transcript.
	Pending bool
}

// LibraryEntry is a read-only projection of a stored paper.
type LibraryEntry struct {
	ID        string
	Title     string
	Year      int
	Authors   string
	Source    string
	CreatedAt time.Time
	Tags      []string
}

// RankedItem is one label/value row of an analytics chart.
type RankedItem struct {
	Label string
	Value int
}

// AnalyticsSnapshot is a full copy of the server aggregates. Pointer fields
// are nil when the server omitted them.
type AnalyticsSnapshot struct {
	TopKeyword      string
	NewestPaper     string
	MostQueried     string
	LibrarySize     *int
	EmbeddingsCount *int
	ChatCount       *int
	LastImport      string
	Topics          []RankedItem
	Sources         []RankedItem
}
