package export_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulseboard/pulseboard/internal/export"
)

func TestCanTransition(t *testing.T) {
	all := []export.Status{
		export.StatusPending,
		export.StatusProcessing,
		export.StatusCompleted,
		export.StatusFailed,
		export.StatusExpired,
	}

	legal := map[export.Status][]export.Status{
		export.StatusPending:    {export.StatusProcessing, export.StatusFailed},
		export.StatusProcessing: {export.StatusCompleted, export.StatusFailed},
		export.StatusCompleted:  {export.StatusExpired},
		export.StatusFailed:     {export.StatusPending},
		export.StatusExpired:    {},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range legal[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, export.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, export.StatusPending.IsTerminal())
	assert.False(t, export.StatusProcessing.IsTerminal())
	assert.True(t, export.StatusCompleted.IsTerminal())
	assert.True(t, export.StatusFailed.IsTerminal())
	assert.True(t, export.StatusExpired.IsTerminal())
}

func TestParseStatus(t *testing.T) {
	status, ok := export.ParseStatus("PROCESSING")
	assert.True(t, ok)
	assert.Equal(t, export.StatusProcessing, status)

	_, ok = export.ParseStatus("processing")
	assert.False(t, ok)

	_, ok = export.ParseStatus("SLEEPING")
	assert.False(t, ok)
}

func TestParseFormat(t *testing.T) {
	format, ok := export.ParseFormat("XLSX")
	assert.True(t, ok)
	assert.Equal(t, export.FormatXLSX, format)

	_, ok = export.ParseFormat("xlsx")
	assert.False(t, ok)

	_, ok = export.ParseFormat("TSV")
	assert.False(t, ok)
}

func TestFormat_MIMETypeAndExtension(t *testing.T) {
	tests := []struct {
		format export.Format
		mime   string
		ext    string
	}{
		{export.FormatCSV, "text/csv", "csv"},
		{export.FormatJSON, "application/json", "json"},
		{export.FormatXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"},
		{export.FormatPDF, "application/octet-stream", "dat"},
		{export.Format("UNKNOWN"), "application/octet-stream", "dat"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			assert.Equal(t, tt.mime, tt.format.MIMEType())
			assert.Equal(t, tt.ext, tt.format.Extension())
		})
	}
}

func TestJob_DownloadFilename(t *testing.T) {
	tests := []struct {
		name     string
		jobName  string
		format   export.Format
		expected string
	}{
		{"simple", "Monthly Report", export.FormatCSV, "Monthly_Report.csv"},
		{"extra whitespace", "  Q3   Revenue \t Summary ", export.FormatXLSX, "Q3_Revenue_Summary.xlsx"},
		{"single word", "events", export.FormatJSON, "events.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &export.Job{ID: "exp_abc", Name: tt.jobName, Format: tt.format}
			assert.Equal(t, tt.expected, job.DownloadFilename())
		})
	}

	t.Run("blank name falls back to job ID", func(t *testing.T) {
		job := &export.Job{ID: "exp_abc", Name: "   ", Format: export.FormatCSV}
		assert.Equal(t, "exp_abc.csv", job.DownloadFilename())
	})
}

func TestJob_OwnedBy(t *testing.T) {
	job := &export.Job{RequestedBy: "user-1"}

	assert.True(t, job.OwnedBy("user-1"))
	assert.False(t, job.OwnedBy("user-2"))
	assert.True(t, job.OwnedBy(""), "empty requester is unrestricted")
}

func TestNewJobID(t *testing.T) {
	id := export.NewJobID()

	assert.True(t, strings.HasPrefix(id, "exp_"))
	assert.Len(t, id, 26)

	other := export.NewJobID()
	assert.NotEqual(t, id, other)
}
