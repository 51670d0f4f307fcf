package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"flowattr-lab/internal/domain/models"
)

// FilebeatStore reads OpenVPN connect and disconnect events. The OpenVPN
// common name is the actor name.
type FilebeatStore struct {
	db *sql.DB
}

// NewFilebeatStore creates a session event store over a filebeat export
func NewFilebeatStore(db *sql.DB) *FilebeatStore {
	return &FilebeatStore{db: db}
}

// SessionEvents returns the events of actor in world, oldest first
func (s *FilebeatStore) SessionEvents(ctx context.Context, world, actor string, window models.Timeframe) ([]models.SessionEvent, error) {
	start, end := windowArgs(window)
	query := `
		SELECT timestamp, world, openvpn__event, openvpn__common_name
		FROM FILEBEAT
		WHERE world = ? AND openvpn__common_name = ?
		  AND julianday(timestamp) >= julianday(?) AND julianday(timestamp) < julianday(?)
		ORDER BY julianday(timestamp), rowid`

	rows, err := s.db.QueryContext(ctx, query, world, actor, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query filebeat events: %w", err)
	}
	defer rows.Close()

	var events []models.SessionEvent
	for rows.Next() {
		var (
			e         models.SessionEvent
			timestamp string
			eventType string
		)
		if err := rows.Scan(&timestamp, &e.World, &eventType, &e.Actor); err != nil {
			return nil, fmt.Errorf("failed to scan filebeat row: %w", err)
		}
		if e.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		e.Type = models.SessionEventType(eventType)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate filebeat rows: %w", err)
	}

	return events, nil
}

// ConnectedActors returns the actors with an event inside window
func (s *FilebeatStore) ConnectedActors(ctx context.Context, world string, window models.Timeframe) ([]string, error) {
	start, end := windowArgs(window)
	query := `
		SELECT DISTINCT openvpn__common_name
		FROM FILEBEAT
		WHERE world = ? AND julianday(timestamp) >= julianday(?) AND julianday(timestamp) < julianday(?)
		ORDER BY openvpn__common_name`

	rows, err := s.db.QueryContext(ctx, query, world, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query filebeat actors: %w", err)
	}
	defer rows.Close()

	var actors []string
	for rows.Next() {
		var actor string
		if err := rows.Scan(&actor); err != nil {
			return nil, fmt.Errorf("failed to scan filebeat actor: %w", err)
		}
		actors = append(actors, actor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate filebeat actors: %w", err)
	}

	return actors, nil
}
