package models

// ExportCreateRequest is the payload for creating an export job.
type ExportCreateRequest struct {
	// ReportID optionally links the export to a saved report.
	ReportID *string `json:"reportId,omitempty" validate:"omitempty,max=40"`

	// Name is the display name; the download filename derives from it.
	Name string `json:"name" validate:"required,max=120"`

	// Format is the requested artifact format.
	Format string `json:"format" validate:"required,oneof=CSV XLSX PDF JSON"`

	// Parameters are passed through to the artifact producer.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ExportJob is the API representation of an export job.
type ExportJob struct {
	ID          string         `json:"id"`
	ReportID    *string        `json:"reportId,omitempty"`
	Name        string         `json:"name"`
	Format      string         `json:"format"`
	Status      string         `json:"status"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	RequestedBy string         `json:"requestedBy"`
	FileSize    *int64         `json:"fileSize,omitempty"`
	RowCount    *int           `json:"rowCount,omitempty"`
	Error       *string        `json:"error,omitempty"`
	Attempt     int            `json:"attempt"`
	ExpiresAt   *Timestamp     `json:"expiresAt,omitempty"`
	StartedAt   *Timestamp     `json:"startedAt,omitempty"`
	CompletedAt *Timestamp     `json:"completedAt,omitempty"`
	CreatedAt   Timestamp      `json:"createdAt"`
	UpdatedAt   Timestamp      `json:"updatedAt"`
}

// PagedExports is a page of export jobs.
type PagedExports struct {
	Items []ExportJob       `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
