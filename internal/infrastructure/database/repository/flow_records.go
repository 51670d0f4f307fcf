package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowattr-lab/internal/domain/models"
)

const flowRecordColumns = `
	source_ip, source_port, destination_ip, destination_port, transport,
	event_start, event_end, observer_hostname, observer_ips, observer_geo_name,
	process_name, process_executable, user_agent`

// a record lies inside a window when it starts inside it and, if finished,
// ends no later than the window end
const flowRecordInWindow = `
	event_start >= $1 AND event_start < $2
	AND (event_end IS NULL OR event_end <= $2)`

// FlowRecordRepository reads and writes raw connection events
type FlowRecordRepository struct {
	pool *pgxpool.Pool
}

// NewFlowRecordRepository creates a new flow record repository
func NewFlowRecordRepository(pool *pgxpool.Pool) *FlowRecordRepository {
	return &FlowRecordRepository{pool: pool}
}

// Name identifies the store
func (r *FlowRecordRepository) Name() string {
	return "postgres"
}

// RecordsInWindow returns every record inside window ordered by start
func (r *FlowRecordRepository) RecordsInWindow(ctx context.Context, window models.Timeframe) ([]models.FlowRecord, error) {
	start, end := windowBounds(window)
	query := `SELECT ` + flowRecordColumns + `
		FROM flow_records
		WHERE ` + flowRecordInWindow + `
		ORDER BY event_start, id`

	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query flow records: %w", err)
	}
	return scanFlowRecords(rows)
}

// RecordsBetween returns the records from source to destination inside
// window ordered by start
func (r *FlowRecordRepository) RecordsBetween(ctx context.Context, source, destination string, window models.Timeframe) ([]models.FlowRecord, error) {
	start, end := windowBounds(window)
	query := `SELECT ` + flowRecordColumns + `
		FROM flow_records
		WHERE ` + flowRecordInWindow + `
		AND source_ip = $3 AND destination_ip = $4
		ORDER BY event_start, id`

	rows, err := r.pool.Query(ctx, query, start, end, source, destination)
	if err != nil {
		return nil, fmt.Errorf("failed to query flow records %s -> %s: %w", source, destination, err)
	}
	return scanFlowRecords(rows)
}

// InsertBatch stores records with a single COPY
func (r *FlowRecordRepository) InsertBatch(ctx context.Context, records []models.FlowRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	columns := []string{
		"source_ip", "source_port", "destination_ip", "destination_port", "transport",
		"event_start", "event_end", "observer_hostname", "observer_ips", "observer_geo_name",
		"process_name", "process_executable", "user_agent",
	}
	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{"flow_records"}, columns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			rec := &records[i]
			ips := rec.ObserverIPs
			if ips == nil {
				ips = []string{}
			}
			transport := rec.Transport
			if transport == "" {
				transport = "unknown"
			}
			return []any{
				rec.SourceIP, portToInt4(rec.SourcePort), rec.DestinationIP, portToInt4(rec.DestinationPort), transport,
				rec.Start, timeToTimestamptzPtr(rec.End), textOrNull(rec.ObserverHostname), ips, textOrNull(rec.ObserverGeoName),
				textOrNull(rec.ProcessName), textOrNull(rec.ProcessExecutable), textOrNull(rec.UserAgent),
			}, nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("failed to copy flow records: %w", err)
	}
	return n, nil
}

func scanFlowRecords(rows pgx.Rows) ([]models.FlowRecord, error) {
	defer rows.Close()

	var records []models.FlowRecord
	for rows.Next() {
		var rec models.FlowRecord
		var sport, dport pgtype.Int4
		var end pgtype.Timestamptz
		var observer, geo, process, executable, userAgent pgtype.Text
		if err := rows.Scan(
			&rec.SourceIP, &sport, &rec.DestinationIP, &dport, &rec.Transport,
			&rec.Start, &end, &observer, &rec.ObserverIPs, &geo,
			&process, &executable, &userAgent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flow record: %w", err)
		}
		rec.SourcePort = int4ToPort(sport)
		rec.DestinationPort = int4ToPort(dport)
		rec.Start = rec.Start.UTC()
		rec.End = timestamptzToTimePtr(end)
		rec.ObserverHostname = nullTextToString(observer)
		rec.ObserverGeoName = nullTextToString(geo)
		rec.ProcessName = nullTextToString(process)
		rec.ProcessExecutable = nullTextToString(executable)
		rec.UserAgent = nullTextToString(userAgent)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow records: %w", err)
	}

	return records, nil
}
