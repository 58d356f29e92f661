package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads analytics events from Postgres. Job parameters narrow
// the window: "from" and "to" are RFC 3339 timestamps, "event" filters by
// event name.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a new Postgres-backed event source.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Query runs the filtered event query, capped at maxRows.
func (s *PostgresSource) Query(ctx context.Context, params map[string]any, maxRows int) (*Dataset, error) {
	where := ` WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if from, err := paramTime(params, "from"); err != nil {
		return nil, err
	} else if from != nil {
		where += ` AND occurred_at >= ` + arg(*from)
	}
	if to, err := paramTime(params, "to"); err != nil {
		return nil, err
	} else if to != nil {
		where += ` AND occurred_at < ` + arg(*to)
	}
	if name, ok := params["event"].(string); ok && name != "" {
		where += ` AND name = ` + arg(name)
	}

	query := `SELECT occurred_at, name, user_id, properties FROM events` + where +
		` ORDER BY occurred_at`
	if maxRows > 0 {
		query += ` LIMIT ` + arg(maxRows)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ds := &Dataset{Columns: []string{"occurred_at", "name", "user_id", "properties"}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		ds.Rows = append(ds.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ds, nil
}

// paramTime parses an optional RFC 3339 timestamp parameter.
func paramTime(params map[string]any, key string) (*time.Time, error) {
	raw, ok := params[key]
	if !ok {
		return nil, nil
	}
	str, ok := raw.(string)
	if !ok || str == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", key, err)
	}
	return &t, nil
}

// Ensure PostgresSource implements Source.
var _ Source = (*PostgresSource)(nil)
