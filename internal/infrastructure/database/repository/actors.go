package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowattr-lab/internal/domain/models"
)

// ActorRepository handles actor persistence
type ActorRepository struct {
	pool *pgxpool.Pool
}

// NewActorRepository creates a new actor repository
func NewActorRepository(pool *pgxpool.Pool) *ActorRepository {
	return &ActorRepository{pool: pool}
}

// GetActor retrieves an actor by name. It returns nil, nil when absent.
func (r *ActorRepository) GetActor(ctx context.Context, name string) (*models.Actor, error) {
	query := `SELECT name, actor_id, world, vpn_ip FROM actors WHERE name = $1`

	a := &models.Actor{}
	err := r.pool.QueryRow(ctx, query, name).Scan(&a.Name, &a.ID, &a.World, &a.VPNIP)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}

	return a, nil
}

// ListActors retrieves every actor ordered by name
func (r *ActorRepository) ListActors(ctx context.Context) ([]*models.Actor, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, actor_id, world, vpn_ip FROM actors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list actors: %w", err)
	}
	defer rows.Close()

	var actors []*models.Actor
	for rows.Next() {
		a := &models.Actor{}
		if err := rows.Scan(&a.Name, &a.ID, &a.World, &a.VPNIP); err != nil {
			return nil, fmt.Errorf("failed to scan actor: %w", err)
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate actors: %w", err)
	}

	return actors, nil
}

// Upsert creates or updates an actor
func (r *ActorRepository) Upsert(ctx context.Context, a *models.Actor) error {
	if err := models.ValidateStruct(a); err != nil {
		return fmt.Errorf("invalid actor: %w", err)
	}

	query := `
		INSERT INTO actors (name, actor_id, world, vpn_ip, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE SET
			actor_id = EXCLUDED.actor_id,
			world = EXCLUDED.world,
			vpn_ip = EXCLUDED.vpn_ip,
			updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, a.Name, a.ID, a.World, a.VPNIP); err != nil {
		return fmt.Errorf("failed to upsert actor: %w", err)
	}
	return nil
}
