package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smartdoc/internal/apperr"
)

type Repository interface {
	// Save records a failure, merging it into an existing entry for the same
	// document and stage.
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context, f Filter) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	DeleteByDoc(ctx context.Context, docID string) (int64, error)
	Count(ctx context.Context) (int, error)
}

const jobColumns = `id, doc_id, handler, payload, error, retries, created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	payload := string(job.Payload)
	if payload == "" {
		payload = "{}"
	}
	query := `INSERT INTO failed_jobs (doc_id, handler, payload, error)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (doc_id, handler) DO UPDATE
		SET payload = EXCLUDED.payload, error = EXCLUDED.error,
			retries = failed_jobs.retries + 1, updated_at = NOW()
		RETURNING id, retries, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, job.DocID, job.Handler, payload, job.Error).
		Scan(&job.ID, &job.Retries, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save failed job %s/%s: %w", job.DocID, job.Handler, err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if f.DocID != "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM failed_jobs WHERE doc_id = $1 ORDER BY updated_at DESC LIMIT $2`,
			f.DocID, f.limit())
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM failed_jobs ORDER BY updated_at DESC LIMIT $1`,
			f.limit())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM failed_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: job %s", apperr.ErrNotFound, id)
	}
	return nil
}

// DeleteByDoc drops every entry of docID and reports how many went.
func (r *PostgresRepo) DeleteByDoc(ctx context.Context, docID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		j       Job
		payload []byte
	)
	if err := s.Scan(&j.ID, &j.DocID, &j.Handler, &payload, &j.Error, &j.Retries, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Payload = payload
	return &j, nil
}
