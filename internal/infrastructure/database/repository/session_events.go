package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowattr-lab/internal/domain/models"
)

// SessionEventRepository reads VPN connect and disconnect events
type SessionEventRepository struct {
	pool *pgxpool.Pool
}

// NewSessionEventRepository creates a new session event repository
func NewSessionEventRepository(pool *pgxpool.Pool) *SessionEventRepository {
	return &SessionEventRepository{pool: pool}
}

// SessionEvents returns the events of actor in world, oldest first
func (r *SessionEventRepository) SessionEvents(ctx context.Context, world, actor string, window models.Timeframe) ([]models.SessionEvent, error) {
	start, end := windowBounds(window)
	query := `
		SELECT actor, event_type, event_time, world
		FROM session_events
		WHERE world = $1 AND actor = $2 AND event_time >= $3 AND event_time < $4
		ORDER BY event_time, id`

	rows, err := r.pool.Query(ctx, query, world, actor, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	var events []models.SessionEvent
	for rows.Next() {
		var e models.SessionEvent
		if err := rows.Scan(&e.Actor, &e.Type, &e.Timestamp, &e.World); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session events: %w", err)
	}

	return events, nil
}

// ConnectedActors returns the actors with an event inside window
func (r *SessionEventRepository) ConnectedActors(ctx context.Context, world string, window models.Timeframe) ([]string, error) {
	start, end := windowBounds(window)
	query := `
		SELECT DISTINCT actor
		FROM session_events
		WHERE world = $1 AND event_time >= $2 AND event_time < $3
		ORDER BY actor`

	rows, err := r.pool.Query(ctx, query, world, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query connected actors: %w", err)
	}

	actors, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan connected actors: %w", err)
	}
	return actors, nil
}

// Insert stores session events
func (r *SessionEventRepository) Insert(ctx context.Context, events []models.SessionEvent) error {
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(
			`INSERT INTO session_events (world, actor, event_type, event_time) VALUES ($1, $2, $3, $4)`,
			e.World, e.Actor, string(e.Type), e.Timestamp,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert session events: %w", err)
	}
	return nil
}
