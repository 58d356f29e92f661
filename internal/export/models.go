// Package export implements the export job pipeline: job creation, the
// status lifecycle, background artifact generation, download metadata, and
// the expiry sweep that reclaims disk space from stale artifacts.
package export

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an export job.
type Status string

// Export job status values.
const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusExpired    Status = "EXPIRED"
)

// transitions is the closed set of legal status transitions.
// PENDING/PROCESSING can be cancelled (→ FAILED), FAILED can be retried
// (→ PENDING), and only COMPLETED jobs expire.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusExpired},
	StatusFailed:     {StatusPending},
	StatusExpired:    {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status is terminal. COMPLETED is terminal for
// caching purposes even though the sweep may still move it to EXPIRED.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// ParseStatus validates a status string. Returns false for unknown values.
func ParseStatus(s string) (Status, bool) {
	status := Status(s)
	_, ok := transitions[status]
	return status, ok
}

// Format represents the requested artifact format.
type Format string

// Export format values.
const (
	FormatCSV  Format = "CSV"
	FormatXLSX Format = "XLSX"
	FormatPDF  Format = "PDF"
	FormatJSON Format = "JSON"
)

// ParseFormat validates a format string. Returns false for unknown values.
func ParseFormat(s string) (Format, bool) {
	switch format := Format(s); format {
	case FormatCSV, FormatXLSX, FormatPDF, FormatJSON:
		return format, true
	default:
		return "", false
	}
}

// formatMeta maps a format to its MIME type and file extension.
// Formats without an entry (including PDF, which has no built-in producer)
// fall back to application/octet-stream with a .dat extension.
var formatMeta = map[Format]struct {
	mime string
	ext  string
}{
	FormatCSV:  {"text/csv", "csv"},
	FormatJSON: {"application/json", "json"},
	FormatXLSX: {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"},
}

// MIMEType returns the MIME type for the format.
func (f Format) MIMEType() string {
	if m, ok := formatMeta[f]; ok {
		return m.mime
	}
	return "application/octet-stream"
}

// Extension returns the file extension (without dot) for the format.
func (f Format) Extension() string {
	if m, ok := formatMeta[f]; ok {
		return m.ext
	}
	return "dat"
}

// CancelledMessage is the error recorded on a job when the requester
// cancels it.
const CancelledMessage = "Cancelled by user"

// Job represents a single export request and its lifecycle state.
type Job struct {
	// ID is the unique job identifier (format: exp_XXXX).
	ID string `json:"id"`

	// ReportID links the export to an originating report, if any.
	ReportID *string `json:"reportId,omitempty"`

	// Name is the display name; the download filename is derived from it.
	Name string `json:"name"`

	// Format is the requested artifact format. Immutable after creation.
	Format Format `json:"format"`

	// Status drives all transition logic.
	Status Status `json:"status"`

	// Parameters are passed to the artifact producer verbatim.
	Parameters map[string]any `json:"parameters,omitempty"`

	// RequestedBy is the identity of the caller that created the job.
	// Set once at creation, used for ownership checks.
	RequestedBy string `json:"requestedBy"`

	// FilePath is the on-disk artifact location. Set only on completion.
	FilePath *string `json:"filePath,omitempty"`

	// FileSize is the artifact size in bytes. Set only on completion.
	FileSize *int64 `json:"fileSize,omitempty"`

	// RowCount is the number of rows in the artifact, never exceeding the
	// configured maximum. Set only on completion.
	RowCount *int `json:"rowCount,omitempty"`

	// Error holds the failure or cancellation message.
	Error *string `json:"error,omitempty"`

	// Attempt is a generation counter, bumped on every retry. Completion
	// and failure writes carry the attempt they started with and are
	// rejected if the job has moved on since.
	Attempt int `json:"attempt"`

	// ExpiresAt is computed once at creation and never recomputed on retry.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// StartedAt is when the job entered PROCESSING.
	StartedAt *time.Time `json:"startedAt,omitempty"`

	// CompletedAt is when the job entered a terminal state.
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewJobID generates a new export job identifier.
func NewJobID() string {
	return "exp_" + uuid.New().String()[:22]
}

// DownloadFilename derives the download filename from the job's display
// name: whitespace collapsed to single underscores, plus the format's
// extension. Falls back to the job ID when the name sanitizes to nothing.
func (j *Job) DownloadFilename() string {
	name := strings.Join(strings.Fields(j.Name), "_")
	if name == "" {
		name = j.ID
	}
	return name + "." + j.Format.Extension()
}

// OwnedBy reports whether the job may be accessed by the given requester.
// An empty requester is an unrestricted caller.
func (j *Job) OwnedBy(requestedBy string) bool {
	return requestedBy == "" || j.RequestedBy == requestedBy
}

// Result carries the outcome of a successful artifact generation.
type Result struct {
	FilePath string
	FileSize int64
	RowCount int
}

// Filter narrows job listings.
type Filter struct {
	Status      *Status
	Format      *Format
	RequestedBy string
}
