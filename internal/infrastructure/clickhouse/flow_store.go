package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/pkg/logger"
)

const selectColumns = `
	SrcIP, SrcPort, DstIP, DstPort, Transport, StartTime, EndTime,
	ObserverHostname, ObserverIPs, ObserverGeoName,
	ProcessName, ProcessExecutable, UserAgent`

// FlowStore reads flow records from ClickHouse
type FlowStore struct {
	conn   driver.Conn
	table  string
	logger *logger.Logger
}

// NewFlowStore creates a flow store over an open connection
func NewFlowStore(conn driver.Conn, table string, log *logger.Logger) *FlowStore {
	return &FlowStore{
		conn:   conn,
		table:  table,
		logger: log.WithComponent("clickhouse"),
	}
}

// Name identifies the store
func (s *FlowStore) Name() string {
	return "clickhouse"
}

// RecordsInWindow returns every record inside window ordered by start
func (s *FlowStore) RecordsInWindow(ctx context.Context, window models.Timeframe) ([]models.FlowRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE StartTime >= ? AND StartTime < ? AND (EndTime IS NULL OR EndTime <= ?)
		ORDER BY StartTime`, selectColumns, s.table)

	return s.query(ctx, query, window.Start, window.End, window.End)
}

// RecordsBetween returns the records from source to destination inside
// window ordered by start
func (s *FlowStore) RecordsBetween(ctx context.Context, source, destination string, window models.Timeframe) ([]models.FlowRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE SrcIP = ? AND DstIP = ?
		  AND StartTime >= ? AND StartTime < ? AND (EndTime IS NULL OR EndTime <= ?)
		ORDER BY StartTime`, selectColumns, s.table)

	return s.query(ctx, query, source, destination, window.Start, window.End, window.End)
}

func (s *FlowStore) query(ctx context.Context, query string, args ...any) ([]models.FlowRecord, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var records []models.FlowRecord
	for rows.Next() {
		var (
			rec          models.FlowRecord
			sport, dport *uint16
			end          *time.Time
		)
		if err := rows.Scan(
			&rec.SourceIP, &sport, &rec.DestinationIP, &dport, &rec.Transport, &rec.Start, &end,
			&rec.ObserverHostname, &rec.ObserverIPs, &rec.ObserverGeoName,
			&rec.ProcessName, &rec.ProcessExecutable, &rec.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flow record: %w", err)
		}
		rec.SourcePort = uint16ToPort(sport)
		rec.DestinationPort = uint16ToPort(dport)
		rec.Start = rec.Start.UTC()
		if end != nil {
			t := end.UTC()
			rec.End = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow records: %w", err)
	}

	s.logger.Debug().Int("records", len(records)).Msg("flow records read")
	return records, nil
}
