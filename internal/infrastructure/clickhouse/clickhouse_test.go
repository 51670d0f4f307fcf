package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowattr-lab/internal/config"
)

func TestConnect_RejectsTableName(t *testing.T) {
	for _, table := range []string{"flows; DROP TABLE x", "1flows", "a.b.c", "flows records"} {
		t.Run(table, func(t *testing.T) {
			_, _, err := Connect(context.Background(), config.ClickHouseConfig{Host: "localhost", Port: 9000, Table: table})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid clickhouse table name")
		})
	}
}

func TestTableNamePattern(t *testing.T) {
	assert.True(t, tableName.MatchString("flow_records"))
	assert.True(t, tableName.MatchString("netflow.flow_records"))
	assert.False(t, tableName.MatchString(""))
}

func TestPortConversion(t *testing.T) {
	assert.Nil(t, portToUInt16(nil))
	assert.Nil(t, uint16ToPort(nil))

	p := 8443
	back := uint16ToPort(portToUInt16(&p))
	require.NotNil(t, back)
	assert.Equal(t, 8443, *back)
}
