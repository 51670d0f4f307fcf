package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/domain/models"
)

func chainPart(src, dst string, sec, dport int) attribution.FlowPart {
	return attribution.FlowPart{
		Source:          src,
		Destination:     dst,
		Start:           at(sec),
		Transport:       attribution.TransportTCP,
		SourcePort:      attribution.Port(40000),
		DestinationPort: attribution.Port(dport),
	}
}

func TestBuildSummary(t *testing.T) {
	chains := [][]attribution.FlowPart{
		{chainPart("172.16.0.10", "10.0.0.2", 20, 22), chainPart("10.0.0.2", "10.0.0.3", 25, 443)},
		{chainPart("172.16.0.10", "10.0.0.2", 10, 22), chainPart("10.0.0.2", "10.0.0.3", 15, 31337)},
		{chainPart("172.16.0.10", "10.0.0.2", 30, 80)},
	}

	summary := BuildSummary("172.16.0.10", chains, []int{22, 80, 443})

	assert.Equal(t, []models.SummaryNode{
		{ID: "172.16.0.10", Count: 3},
		{ID: "10.0.0.2", Count: 5},
		{ID: "10.0.0.3", Count: 2},
	}, summary.Nodes)

	require.Len(t, summary.Edges, 2)
	entry := summary.Edges[0]
	assert.Equal(t, "172.16.0.10", entry.Source)
	assert.Equal(t, "10.0.0.2", entry.Destination)
	assert.Equal(t, 3, entry.Count)
	assert.Equal(t, at(10), entry.Date)
	assert.Equal(t, []int{22, 80}, entry.Ports)
	assert.Equal(t, "172.16.0.10", entry.Attr)

	hop := summary.Edges[1]
	assert.Equal(t, 2, hop.Count)
	assert.Equal(t, at(15), hop.Date)
	assert.Equal(t, []int{443}, hop.Ports)
}

func TestBuildSummary_NoServicePorts(t *testing.T) {
	chains := [][]attribution.FlowPart{{chainPart("a", "b", 0, 31337)}}

	summary := BuildSummary("a", chains, nil)

	require.Len(t, summary.Edges, 1)
	assert.NotNil(t, summary.Edges[0].Ports)
	assert.Empty(t, summary.Edges[0].Ports)
}

func TestBuildSummary_Empty(t *testing.T) {
	summary := BuildSummary("a", nil, []int{22})

	assert.Empty(t, summary.Nodes)
	assert.Empty(t, summary.Edges)
}
