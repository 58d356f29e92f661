package models

// ReportCreateRequest is the payload for creating a report.
type ReportCreateRequest struct {
	Name        string         `json:"name" validate:"required,max=120"`
	Description *string        `json:"description,omitempty" validate:"omitempty,max=500"`
	Query       map[string]any `json:"query,omitempty"`
}

// ReportUpdateRequest is the payload for updating a report. Absent fields
// are unchanged.
type ReportUpdateRequest struct {
	Name        *string        `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string        `json:"description,omitempty" validate:"omitempty,max=500"`
	Query       map[string]any `json:"query,omitempty"`
}

// Report is the API representation of a saved report.
type Report struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"ownerId"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Query       map[string]any `json:"query,omitempty"`
	CreatedAt   Timestamp      `json:"createdAt"`
	UpdatedAt   Timestamp      `json:"updatedAt"`
}

// PagedReports is a page of reports.
type PagedReports struct {
	Items []Report          `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
