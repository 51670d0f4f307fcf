package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"flowattr-lab/internal/domain/models"
)

const packetbeatSelect = `
	SELECT event__start, event__end, source__ip, source__port,
	       destination__ip, destination__port, network__transport
	FROM PACKETBEAT
	WHERE julianday(event__start) >= julianday(?) AND julianday(event__start) < julianday(?)
	  AND (event__end IS NULL OR julianday(event__end) <= julianday(?))`

// PacketbeatStore reads flow records from a packetbeat export
type PacketbeatStore struct {
	db *sql.DB
}

// NewPacketbeatStore creates a flow record store over a packetbeat export
func NewPacketbeatStore(db *sql.DB) *PacketbeatStore {
	return &PacketbeatStore{db: db}
}

// Name identifies the store
func (s *PacketbeatStore) Name() string {
	return "packetbeat"
}

// RecordsInWindow returns every record inside window ordered by start
func (s *PacketbeatStore) RecordsInWindow(ctx context.Context, window models.Timeframe) ([]models.FlowRecord, error) {
	start, end := windowArgs(window)
	return s.query(ctx, packetbeatSelect+` ORDER BY julianday(event__start), rowid`, start, end, end)
}

// RecordsBetween returns the records from source to destination inside
// window ordered by start
func (s *PacketbeatStore) RecordsBetween(ctx context.Context, source, destination string, window models.Timeframe) ([]models.FlowRecord, error) {
	start, end := windowArgs(window)
	return s.query(ctx, packetbeatSelect+`
		AND source__ip = ? AND destination__ip = ?
		ORDER BY julianday(event__start), rowid`, start, end, end, source, destination)
}

func (s *PacketbeatStore) query(ctx context.Context, query string, args ...any) ([]models.FlowRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query packetbeat: %w", err)
	}
	defer rows.Close()

	var records []models.FlowRecord
	for rows.Next() {
		var (
			rec          models.FlowRecord
			start        string
			end          sql.NullString
			sport, dport sql.NullString
			transport    sql.NullString
		)
		if err := rows.Scan(&start, &end, &rec.SourceIP, &sport, &rec.DestinationIP, &dport, &transport); err != nil {
			return nil, fmt.Errorf("failed to scan packetbeat row: %w", err)
		}

		if rec.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if e := nullText(end); e != "" {
			t, err := parseTime(e)
			if err != nil {
				return nil, err
			}
			// unparseable DATETIME values come back as the zero time
			if !t.IsZero() {
				rec.End = &t
			}
		}
		rec.SourcePort = nullPort(sport)
		rec.DestinationPort = nullPort(dport)
		rec.Transport = nullText(transport)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate packetbeat rows: %w", err)
	}

	return records, nil
}
