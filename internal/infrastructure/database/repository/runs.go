package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"flowattr-lab/internal/domain/models"
)

// RunRepository keeps attribution run summaries
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new run repository
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// RecordRun stores a finished run
func (r *RunRepository) RecordRun(ctx context.Context, s *models.RunSummary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	query := `
		INSERT INTO attribution_runs (
			id, status, window_start, window_end, started_at, completed_at,
			duration_ms, edges, labeled, ambiguous, error, summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			edges = EXCLUDED.edges,
			labeled = EXCLUDED.labeled,
			ambiguous = EXCLUDED.ambiguous,
			error = EXCLUDED.error,
			summary = EXCLUDED.summary`

	_, err = r.pool.Exec(ctx, query,
		s.ID, string(s.Status), s.Window.Start, s.Window.End, s.StartedAt, timeToTimestamptzPtr(&s.CompletedAt),
		s.DurationMS, s.Edges, s.Seeded+s.Labeled, s.Ambiguous, textOrNull(s.Error), body,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `SELECT summary FROM attribution_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunSummary
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s := &models.RunSummary{}
		if err := json.Unmarshal(body, s); err != nil {
			return nil, fmt.Errorf("failed to decode run summary: %w", err)
		}
		runs = append(runs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}
