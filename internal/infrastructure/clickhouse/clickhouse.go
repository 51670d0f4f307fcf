// Package clickhouse stores flow records in a ClickHouse MergeTree table.
package clickhouse

import (
	"context"
	"fmt"
	"regexp"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"flowattr-lab/internal/config"
)

const defaultTable = "flow_records"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    SrcIP             String,
    SrcPort           Nullable(UInt16),
    DstIP             String,
    DstPort           Nullable(UInt16),
    Transport         LowCardinality(String),
    StartTime         DateTime64(3, 'UTC'),
    EndTime           Nullable(DateTime64(3, 'UTC')),
    ObserverHostname  String,
    ObserverIPs       Array(String),
    ObserverGeoName   String,
    ProcessName       String,
    ProcessExecutable String,
    UserAgent         String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartTime)
ORDER BY (SrcIP, DstIP, StartTime)
`

// Connect opens a ClickHouse connection and makes sure the flow table exists.
// It returns the connection and the validated table name.
func Connect(ctx context.Context, cfg config.ClickHouseConfig) (driver.Conn, string, error) {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, "", fmt.Errorf("invalid clickhouse table name %q", table)
	}

	conn, err := ch.Open(&ch.Options{
		Addr: []string{cfg.Addr()},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &ch.Compression{
			Method: ch.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	if err := conn.Exec(ctx, fmt.Sprintf(createTableStatement, table)); err != nil {
		return nil, "", fmt.Errorf("failed to create table: %w", err)
	}

	return conn, table, nil
}

func portToUInt16(p *int) *uint16 {
	if p == nil {
		return nil
	}
	v := uint16(*p)
	return &v
}

func uint16ToPort(p *uint16) *int {
	if p == nil {
		return nil
	}
	v := int(*p)
	return &v
}
