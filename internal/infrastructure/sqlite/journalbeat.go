package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"flowattr-lab/internal/domain/models"
)

// JournalbeatStore reads conntrack events logged by the VPN gateway. In a
// conntrack entry src1 is the actor, dst2 the host the actor entered through
// and dst1 the host it reached.
type JournalbeatStore struct {
	db *sql.DB
}

// NewJournalbeatStore creates a conntrack store over a journalbeat export
func NewJournalbeatStore(db *sql.DB) *JournalbeatStore {
	return &JournalbeatStore{db: db}
}

const journalbeatFilter = `
	FROM JOURNALBEAT
	WHERE agent__hostname = ? AND conntrack__src1 = ?
	  AND conntrack__dst2 = ? AND conntrack__dst1 != ?
	  AND julianday(event__start) >= julianday(?) AND julianday(event__start) <= julianday(?)`

// Pivots returns the connections the actor opened through root
func (s *JournalbeatStore) Pivots(ctx context.Context, gateway, actorIP, root string, window models.Timeframe) ([]models.PivotRecord, error) {
	start, end := windowArgs(window)
	query := `SELECT conntrack__dst2, conntrack__dst1, conntrack__timestamp, conntrack__trans_proto,
		conntrack__sport1, conntrack__dport1` + journalbeatFilter + `
		ORDER BY julianday(event__start), rowid`

	rows, err := s.db.QueryContext(ctx, query, gateway, actorIP, root, root, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query journalbeat pivots: %w", err)
	}
	defer rows.Close()

	var pivots []models.PivotRecord
	for rows.Next() {
		var (
			p            = models.PivotRecord{ActorIP: actorIP}
			timestamp    string
			transport    sql.NullString
			sport, dport sql.NullString
		)
		if err := rows.Scan(&p.Destination, &p.Target, &timestamp, &transport, &sport, &dport); err != nil {
			return nil, fmt.Errorf("failed to scan journalbeat row: %w", err)
		}
		if p.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		p.Transport = nullText(transport)
		p.SourcePort = nullPort(sport)
		p.DestinationPort = nullPort(dport)
		pivots = append(pivots, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journalbeat rows: %w", err)
	}

	return pivots, nil
}

// TargetHosts returns the distinct hosts the actor reached through root
func (s *JournalbeatStore) TargetHosts(ctx context.Context, gateway, actorIP, root string, window models.Timeframe) ([]string, error) {
	start, end := windowArgs(window)
	query := `SELECT conntrack__dst1` + journalbeatFilter + `
		GROUP BY conntrack__dst1
		ORDER BY MIN(julianday(event__start)), conntrack__dst1`

	rows, err := s.db.QueryContext(ctx, query, gateway, actorIP, root, root, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query journalbeat targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan journalbeat target: %w", err)
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journalbeat targets: %w", err)
	}

	return targets, nil
}
