package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL report repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const reportColumns = `id, owner_id, name, description, query, created_at, updated_at`

// Create persists a new report.
func (r *PostgresRepository) Create(ctx context.Context, report *Report) error {
	query := `
		INSERT INTO reports (id, owner_id, name, description, query, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	queryJSON, err := json.Marshal(report.Query)
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		report.ID,
		report.OwnerID,
		report.Name,
		report.Description,
		queryJSON,
		report.CreatedAt,
		report.UpdatedAt,
	)
	return err
}

// GetByID retrieves a report by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	report, err := scanReport(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return report, nil
}

// List retrieves a page of reports for an owner, newest first.
func (r *PostgresRepository) List(ctx context.Context, ownerID string, limit, offset int) ([]*Report, int, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if ownerID != "" {
		where += ` AND owner_id = ` + arg(ownerID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + reportColumns + ` FROM reports` + where +
		` ORDER BY created_at DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// Update persists changes to an existing report.
func (r *PostgresRepository) Update(ctx context.Context, report *Report) error {
	query := `
		UPDATE reports
		SET name = $2, description = $3, query = $4, updated_at = $5
		WHERE id = $1
	`

	queryJSON, err := json.Marshal(report.Query)
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query,
		report.ID,
		report.Name,
		report.Description,
		queryJSON,
		report.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a report by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(row pgx.Row) (*Report, error) {
	var (
		report     Report
		queryBytes []byte
	)

	err := row.Scan(
		&report.ID,
		&report.OwnerID,
		&report.Name,
		&report.Description,
		&queryBytes,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(queryBytes) > 0 {
		if err := json.Unmarshal(queryBytes, &report.Query); err != nil {
			return nil, fmt.Errorf("unmarshal query: %w", err)
		}
	}
	return &report, nil
}

// Ensure PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)
