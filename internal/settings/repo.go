package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const settingsColumns = `gemini_api_key, vector_weight, lexical_weight, noise_ceiling, strict_distance, min_score, top_k, context_size, updated_at`

// Get reads the singleton row, recreating it with defaults if an operator
// deleted it.
func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s, err := r.get(ctx)
	if !errors.Is(err, sql.ErrNoRows) {
		return s, err
	}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return nil, fmt.Errorf("restore settings row: %w", err)
	}
	return r.get(ctx)
}

func (r *PostgresRepo) get(ctx context.Context) (*Settings, error) {
	s := &Settings{ID: 1}
	err := r.db.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM settings WHERE id = 1`).Scan(
		&s.GeminiAPIKey, &s.VectorWeight, &s.LexicalWeight, &s.NoiseCeiling,
		&s.StrictDistance, &s.MinScore, &s.TopK, &s.ContextSize, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Update writes every field of s and refreshes s.UpdatedAt.
func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `UPDATE settings SET
		gemini_api_key = $1, vector_weight = $2, lexical_weight = $3, noise_ceiling = $4,
		strict_distance = $5, min_score = $6, top_k = $7, context_size = $8, updated_at = NOW()
		WHERE id = 1
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		s.GeminiAPIKey, s.VectorWeight, s.LexicalWeight, s.NoiseCeiling,
		s.StrictDistance, s.MinScore, s.TopK, s.ContextSize,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update settings: row missing")
	}
	return err
}
