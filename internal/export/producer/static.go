package producer

import "context"

// StaticSource serves a fixed dataset. Used in tests and local development
// where no events store is available.
type StaticSource struct {
	Columns []string
	Rows    [][]any

	// Err, when set, is returned from every query.
	Err error
}

// Query returns the fixed dataset, capped at maxRows.
func (s *StaticSource) Query(ctx context.Context, _ map[string]any, maxRows int) (*Dataset, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := s.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return &Dataset{Columns: s.Columns, Rows: rows}, nil
}

// Ensure StaticSource implements Source.
var _ Source = (*StaticSource)(nil)
