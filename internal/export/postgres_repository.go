package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL export job repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const jobColumns = `
	id, report_id, name, format, status, parameters, requested_by,
	file_path, file_size, row_count, error, attempt,
	expires_at, started_at, completed_at, created_at, updated_at
`

// Create persists a new job record.
func (r *PostgresRepository) Create(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO export_jobs (
			id, report_id, name, format, status, parameters, requested_by,
			attempt, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.ReportID,
		job.Name,
		string(job.Format),
		string(job.Status),
		params,
		job.RequestedBy,
		job.Attempt,
		job.ExpiresAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// GetByID retrieves a job by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List retrieves jobs matching the filter, newest first, with the total
// match count.
func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int) ([]*Job, int, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != nil {
		where += ` AND status = ` + arg(string(*f.Status))
	}
	if f.Format != nil {
		where += ` AND format = ` + arg(string(*f.Format))
	}
	if f.RequestedBy != "" {
		where += ` AND requested_by = ` + arg(f.RequestedBy)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM export_jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + jobColumns + ` FROM export_jobs` + where +
		` ORDER BY created_at DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// MarkProcessing transitions PENDING → PROCESSING.
func (r *PostgresRepository) MarkProcessing(ctx context.Context, id string, attempt int) error {
	query := `
		UPDATE export_jobs
		SET status = 'PROCESSING', started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PENDING' AND attempt = $2
	`
	return r.transition(ctx, query, id, attempt)
}

// MarkCompleted transitions PROCESSING → COMPLETED with the artifact result.
// The attempt guard rejects completions from attempts the job has moved past.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string, attempt int, res Result) error {
	query := `
		UPDATE export_jobs
		SET status = 'COMPLETED', file_path = $3, file_size = $4, row_count = $5,
		    error = NULL, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING' AND attempt = $2
	`
	return r.transition(ctx, query, id, attempt, res.FilePath, res.FileSize, res.RowCount)
}

// MarkFailed transitions PROCESSING → FAILED.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, attempt int, msg string) error {
	query := `
		UPDATE export_jobs
		SET status = 'FAILED', error = $3, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING' AND attempt = $2
	`
	return r.transition(ctx, query, id, attempt, msg)
}

// Cancel transitions PENDING or PROCESSING → FAILED.
func (r *PostgresRepository) Cancel(ctx context.Context, id string, msg string) error {
	query := `
		UPDATE export_jobs
		SET status = 'FAILED', error = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`
	return r.transition(ctx, query, id, msg)
}

// MarkExpired transitions COMPLETED → EXPIRED and clears the file path.
func (r *PostgresRepository) MarkExpired(ctx context.Context, id string) error {
	query := `
		UPDATE export_jobs
		SET status = 'EXPIRED', file_path = NULL, updated_at = now()
		WHERE id = $1 AND status = 'COMPLETED'
	`
	return r.transition(ctx, query, id)
}

// ResetForRetry transitions FAILED → PENDING and bumps the attempt
// generation. The expiry clock is not reset.
func (r *PostgresRepository) ResetForRetry(ctx context.Context, id string) error {
	query := `
		UPDATE export_jobs
		SET status = 'PENDING', error = NULL, file_path = NULL, file_size = NULL,
		    row_count = NULL, started_at = NULL, completed_at = NULL,
		    attempt = attempt + 1, updated_at = now()
		WHERE id = $1 AND status = 'FAILED'
	`
	return r.transition(ctx, query, id)
}

// transition runs a conditional single-record update. Zero rows affected
// means the job either does not exist or is not in a legal source status.
func (r *PostgresRepository) transition(ctx context.Context, query string, id string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

// FindExpired returns COMPLETED jobs whose expiry is before now.
func (r *PostgresRepository) FindExpired(ctx context.Context, now time.Time) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs
		WHERE status = 'COMPLETED' AND expires_at < $1`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

// FindPending returns jobs in PENDING.
func (r *PostgresRepository) FindPending(ctx context.Context) ([]*Job, error) {
	return r.findByStatus(ctx, StatusPending)
}

// FindProcessing returns jobs in PROCESSING.
func (r *PostgresRepository) FindProcessing(ctx context.Context) ([]*Job, error) {
	return r.findByStatus(ctx, StatusProcessing)
}

func (r *PostgresRepository) findByStatus(ctx context.Context, status Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs WHERE status = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job        Job
		format     string
		status     string
		paramBytes []byte
	)

	err := row.Scan(
		&job.ID,
		&job.ReportID,
		&job.Name,
		&format,
		&status,
		&paramBytes,
		&job.RequestedBy,
		&job.FilePath,
		&job.FileSize,
		&job.RowCount,
		&job.Error,
		&job.Attempt,
		&job.ExpiresAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Format = Format(format)
	job.Status = Status(status)
	if len(paramBytes) > 0 {
		if err := json.Unmarshal(paramBytes, &job.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	return &job, nil
}

// Ensure PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)
