// Package producer generates export artifacts from tabular data sources.
package producer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pulseboard/pulseboard/internal/export"
)

// Dataset is a tabular result: a header row and data rows.
type Dataset struct {
	Columns []string
	Rows    [][]any
}

// Source supplies the data behind an export. Implementations must return at
// most maxRows rows and respect ctx cancellation.
type Source interface {
	Query(ctx context.Context, params map[string]any, maxRows int) (*Dataset, error)
}

// Generator serializes rows from a Source into the requested format.
type Generator struct {
	source Source
	logger zerolog.Logger
}

// NewGenerator creates a new artifact generator.
func NewGenerator(source Source, logger zerolog.Logger) *Generator {
	return &Generator{
		source: source,
		logger: logger.With().Str("component", "export_producer").Logger(),
	}
}

// Produce queries the source and serializes the result. Unsupported formats
// are an error, which fails the job.
func (g *Generator) Produce(ctx context.Context, format export.Format, params map[string]any, maxRows int) (*export.Artifact, error) {
	ds, err := g.source.Query(ctx, params, maxRows)
	if err != nil {
		return nil, fmt.Errorf("query source: %w", err)
	}
	if maxRows > 0 && len(ds.Rows) > maxRows {
		ds.Rows = ds.Rows[:maxRows]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var content []byte
	switch format {
	case export.FormatCSV:
		content, err = writeCSV(ds)
	case export.FormatJSON:
		content, err = writeJSON(ds)
	case export.FormatXLSX:
		content, err = writeXLSX(ds)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", format, err)
	}

	g.logger.Debug().
		Str("format", string(format)).
		Int("rows", len(ds.Rows)).
		Int("bytes", len(content)).
		Msg("Artifact generated")

	return &export.Artifact{Rows: len(ds.Rows), Content: content}, nil
}

// Ensure Generator implements the producer contract.
var _ export.Producer = (*Generator)(nil)
