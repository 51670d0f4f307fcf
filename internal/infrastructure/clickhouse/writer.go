package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/pkg/logger"
)

// Writer appends flow records to ClickHouse in batches
type Writer struct {
	conn      driver.Conn
	table     string
	batchSize int
	logger    *logger.Logger
}

// NewWriter creates a batch writer. A non-positive batchSize sends every
// Write as one batch.
func NewWriter(conn driver.Conn, table string, batchSize int, log *logger.Logger) *Writer {
	return &Writer{
		conn:      conn,
		table:     table,
		batchSize: batchSize,
		logger:    log.WithComponent("clickhouse-writer"),
	}
}

// Write inserts records and returns how many were sent
func (w *Writer) Write(ctx context.Context, records []models.FlowRecord) (int, error) {
	size := w.batchSize
	if size <= 0 {
		size = len(records)
	}

	sent := 0
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		if err := w.send(ctx, records[start:end]); err != nil {
			return sent, err
		}
		sent += end - start
	}

	if sent > 0 {
		w.logger.Info().Int("records", sent).Str("table", w.table).Msg("flow records written")
	}
	return sent, nil
}

func (w *Writer) send(ctx context.Context, records []models.FlowRecord) error {
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for i := range records {
		rec := &records[i]
		ips := rec.ObserverIPs
		if ips == nil {
			ips = []string{}
		}
		transport := rec.Transport
		if transport == "" {
			transport = "unknown"
		}
		if err := batch.Append(
			rec.SourceIP,
			portToUInt16(rec.SourcePort),
			rec.DestinationIP,
			portToUInt16(rec.DestinationPort),
			transport,
			rec.Start,
			rec.End,
			rec.ObserverHostname,
			ips,
			rec.ObserverGeoName,
			rec.ProcessName,
			rec.ProcessExecutable,
			rec.UserAgent,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append flow record to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
