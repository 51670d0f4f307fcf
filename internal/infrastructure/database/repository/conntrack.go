package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowattr-lab/internal/domain/models"
)

// ConntrackRepository reads connections tracked by the VPN gateway agent
type ConntrackRepository struct {
	pool *pgxpool.Pool
}

// NewConntrackRepository creates a new conntrack repository
func NewConntrackRepository(pool *pgxpool.Pool) *ConntrackRepository {
	return &ConntrackRepository{pool: pool}
}

// Pivots returns the connections the actor opened through root to another
// host, oldest first
func (r *ConntrackRepository) Pivots(ctx context.Context, gateway, actorIP, root string, window models.Timeframe) ([]models.PivotRecord, error) {
	start, end := windowBounds(window)
	query := `
		SELECT actor_ip, destination_ip, target_ip, event_time, transport, source_port, destination_port
		FROM conntrack_events
		WHERE agent_hostname = $1 AND actor_ip = $2 AND destination_ip = $3 AND target_ip <> $3
		  AND event_time >= $4 AND event_time < $5
		ORDER BY event_time, id`

	rows, err := r.pool.Query(ctx, query, gateway, actorIP, root, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query pivots: %w", err)
	}
	defer rows.Close()

	var pivots []models.PivotRecord
	for rows.Next() {
		var p models.PivotRecord
		var sport, dport pgtype.Int4
		if err := rows.Scan(&p.ActorIP, &p.Destination, &p.Target, &p.Timestamp, &p.Transport, &sport, &dport); err != nil {
			return nil, fmt.Errorf("failed to scan pivot: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		p.SourcePort = int4ToPort(sport)
		p.DestinationPort = int4ToPort(dport)
		pivots = append(pivots, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pivots: %w", err)
	}

	return pivots, nil
}

// TargetHosts returns the distinct targets the actor reached through root
func (r *ConntrackRepository) TargetHosts(ctx context.Context, gateway, actorIP, root string, window models.Timeframe) ([]string, error) {
	start, end := windowBounds(window)
	query := `
		SELECT target_ip
		FROM conntrack_events
		WHERE agent_hostname = $1 AND actor_ip = $2 AND destination_ip = $3 AND target_ip <> $3
		  AND event_time >= $4 AND event_time < $5
		GROUP BY target_ip
		ORDER BY MIN(event_time), target_ip`

	rows, err := r.pool.Query(ctx, query, gateway, actorIP, root, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query target hosts: %w", err)
	}

	targets, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan target hosts: %w", err)
	}
	return targets, nil
}

// Insert stores tracked connections observed at gateway
func (r *ConntrackRepository) Insert(ctx context.Context, gateway string, pivots []models.PivotRecord) error {
	batch := &pgx.Batch{}
	for _, p := range pivots {
		batch.Queue(`
			INSERT INTO conntrack_events (
				agent_hostname, actor_ip, destination_ip, target_ip, transport,
				source_port, destination_port, event_time
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			gateway, p.ActorIP, p.Destination, p.Target, p.Transport,
			portToInt4(p.SourcePort), portToInt4(p.DestinationPort), p.Timestamp,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert conntrack events: %w", err)
	}
	return nil
}
