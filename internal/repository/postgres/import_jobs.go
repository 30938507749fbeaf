// Package postgres holds the SQL-backed repositories. Persistence is
// optional for the dashboard: a nil *sql.DB disables history entirely.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportJob is one recorded bulk import run
type ImportJob struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    string    `json:"project_id"`
	Filename     string    `json:"filename"`
	Status       string    `json:"status"`
	TotalRows    int       `json:"total_rows"`
	CreatedRows  int       `json:"created_rows"`
	FailedRows   int       `json:"failed_rows"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Import job terminal states
const (
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// ImportJobRepo persists import run history to PostgreSQL
type ImportJobRepo struct{ db *sql.DB }

// NewImportJobRepo creates a Postgres-backed import job repository
func NewImportJobRepo(db *sql.DB) *ImportJobRepo { return &ImportJobRepo{db: db} }

// EnsureSchema creates the history table if it does not exist yet.
func (r *ImportJobRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS import_jobs (
			id UUID PRIMARY KEY,
			project_id VARCHAR(100) NOT NULL,
			filename VARCHAR(500),
			status VARCHAR(50) NOT NULL,
			total_rows INT DEFAULT 0,
			created_rows INT DEFAULT 0,
			failed_rows INT DEFAULT 0,
			error_message TEXT,
			started_at TIMESTAMP WITH TIME ZONE,
			finished_at TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure import_jobs table: %w", err)
	}
	return nil
}

// Record inserts one finished import run
func (r *ImportJobRepo) Record(ctx context.Context, job ImportJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_jobs
			(id, project_id, filename, status, total_rows, created_rows,
			 failed_rows, error_message, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, job.ID, job.ProjectID, job.Filename, job.Status, job.TotalRows,
		job.CreatedRows, job.FailedRows, job.ErrorMessage, job.StartedAt, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("record import job: %w", err)
	}
	return nil
}

// ListRecent returns up to limit most recent import runs for a project.
// An empty projectID lists runs across all projects.
func (r *ImportJobRepo) ListRecent(ctx context.Context, projectID string, limit int) ([]ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT id, project_id, filename, status, total_rows, created_rows,
		       failed_rows, COALESCE(error_message,''), started_at, finished_at
		FROM import_jobs`
	args := []interface{}{}
	if projectID != "" {
		q += ` WHERE project_id = $1`
		args = append(args, projectID)
	}
	q += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ImportJob
	for rows.Next() {
		var j ImportJob
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Filename, &j.Status,
			&j.TotalRows, &j.CreatedRows, &j.FailedRows, &j.ErrorMessage,
			&j.StartedAt, &j.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan import job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
