// Package report manages saved report definitions. A report captures a
// reusable query; export jobs reference a report as their origin.
package report

import (
	"time"

	"github.com/google/uuid"
)

// Report is a saved report definition.
type Report struct {
	// ID is the unique report identifier (format: rpt_XXXX).
	ID string `json:"id"`

	// OwnerID is the identity of the user who created the report.
	OwnerID string `json:"ownerId"`

	// Name is the display name.
	Name string `json:"name"`

	// Description is an optional free-text summary.
	Description *string `json:"description,omitempty"`

	// Query holds the report's default parameters. Exports created from the
	// report start from these.
	Query map[string]any `json:"query,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewReportID generates a new report identifier.
func NewReportID() string {
	return "rpt_" + uuid.New().String()[:22]
}

// OwnedBy reports whether the report may be accessed by the given caller.
// An empty caller is an unrestricted caller.
func (r *Report) OwnedBy(ownerID string) bool {
	return ownerID == "" || r.OwnerID == ownerID
}
