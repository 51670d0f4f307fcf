package attribution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2022, 10, 4, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func newGraph(hosts ...string) *Graph {
	g := NewGraph()
	for _, h := range hosts {
		g.AddHost(h, "")
	}
	return g
}

func mustEdge(t *testing.T, g *Graph, src, dst string, tr Transport, sport, dport int, start time.Time) *FlowEdge {
	t.Helper()
	e, err := g.AddFlowEdge(src, dst, tr, Port(sport), Port(dport), start, nil)
	require.NoError(t, err)
	return e
}

func TestAddHost_Idempotent(t *testing.T) {
	g := NewGraph()

	h1 := g.AddHost("10.0.0.2", "")
	h2 := g.AddHost("10.0.0.2", "vpn")
	h3 := g.AddHost("10.0.0.2", "other")

	assert.Same(t, h1, h2)
	assert.Same(t, h1, h3)
	assert.Equal(t, "vpn", h1.Hostname, "hostname is only set while unset")
	assert.Equal(t, 1, g.HostCount())
}

func TestAddFlowEdge_UnknownHost(t *testing.T) {
	g := newGraph("A")

	_, err := g.AddFlowEdge("A", "B", TransportTCP, Port(1), Port(2), t0, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEdge))

	var invalid *InvalidEdgeError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"B"}, invalid.Missing)
	assert.Equal(t, 0, g.EdgeCount())
}

func TestAddFlowEdge_ParallelEdges(t *testing.T) {
	g := newGraph("A", "B")

	e1 := mustEdge(t, g, "A", "B", TransportTCP, 1, 2, at(0))
	e2 := mustEdge(t, g, "A", "B", TransportTCP, 1, 2, at(0))

	assert.NotEqual(t, e1.ID, e2.ID)
	assert.Equal(t, Unattributed, e1.Label)
	assert.Equal(t, 1, e1.Count)
	assert.Len(t, g.EdgesFrom("A"), 2)
	assert.Len(t, g.EdgesTo("B"), 2)
}

func TestAddFlowEdge_CopiesPorts(t *testing.T) {
	g := newGraph("A", "B")
	sport := 1234

	e, err := g.AddFlowEdge("A", "B", TransportTCP, &sport, nil, t0, nil)
	require.NoError(t, err)
	sport = 9

	assert.Equal(t, 1234, *e.SourcePort)
	assert.Nil(t, e.DestinationPort)
}

func TestEdgesFrom_InsertionOrder(t *testing.T) {
	g := newGraph("A", "B", "C")
	e1 := mustEdge(t, g, "A", "C", TransportTCP, 1, 1, at(0))
	e2 := mustEdge(t, g, "A", "B", TransportUDP, 2, 2, at(0))
	e3 := mustEdge(t, g, "A", "C", TransportTCP, 3, 3, at(0))

	from := g.EdgesFrom("A")
	require.Len(t, from, 3)
	assert.Equal(t, []EdgeID{e1.ID, e2.ID, e3.ID}, []EdgeID{from[0].ID, from[1].ID, from[2].ID})
	assert.Equal(t, []string{"C", "B"}, g.Successors("A"))
}

func TestRemoveEdge(t *testing.T) {
	g := newGraph("A", "B")
	e1 := mustEdge(t, g, "A", "B", TransportTCP, 1, 2, at(0))
	e2 := mustEdge(t, g, "A", "B", TransportTCP, 3, 4, at(0))

	require.NoError(t, g.RemoveEdge(e1.ID))
	assert.Nil(t, g.Edge(e1.ID))
	assert.Equal(t, []*FlowEdge{e2}, g.EdgesFrom("A"))
	assert.Equal(t, []*FlowEdge{e2}, g.EdgesTo("B"))

	assert.ErrorIs(t, g.RemoveEdge(e1.ID), ErrEdgeNotFound)
}

func TestRemoveHost(t *testing.T) {
	g := newGraph("A", "B", "C")
	mustEdge(t, g, "A", "B", TransportTCP, 1, 2, at(0))
	mustEdge(t, g, "B", "C", TransportTCP, 1, 2, at(1))
	keep := mustEdge(t, g, "A", "C", TransportTCP, 1, 2, at(2))

	require.NoError(t, g.RemoveHost("B"))

	assert.False(t, g.HasHost("B"))
	assert.Equal(t, []*FlowEdge{keep}, g.Edges())
	assert.Equal(t, []string{"A", "C"}, hostIDs(g))
	assert.ErrorIs(t, g.RemoveHost("B"), ErrHostNotFound)
}

func TestMergeInto(t *testing.T) {
	g := newGraph("A", "B")
	target := mustEdge(t, g, "A", "B", TransportTCP, 10, 80, at(5))
	s1 := mustEdge(t, g, "A", "B", TransportTCP, 11, 443, at(1))
	end := at(30)
	s2, err := g.AddFlowEdge("A", "B", TransportTCP, nil, Port(22), at(3), &end)
	require.NoError(t, err)

	require.NoError(t, g.MergeInto(target.ID, []EdgeID{s1.ID, s2.ID}))

	assert.Equal(t, 3, target.Count)
	assert.Nil(t, target.SourcePort)
	assert.Equal(t, []int{10, 11}, target.SourcePorts)
	assert.Equal(t, []int{80, 443, 22}, target.DestinationPorts)
	assert.Equal(t, at(1), target.Start)
	require.NotNil(t, target.End)
	assert.Equal(t, end, *target.End)
	assert.Equal(t, 1, g.EdgeCount())
}

func TestMergeInto_AttributedPanics(t *testing.T) {
	g := newGraph("A", "B")
	target := mustEdge(t, g, "A", "B", TransportTCP, 1, 2, at(0))
	labeled := mustEdge(t, g, "A", "B", TransportTCP, 1, 2, at(1))
	labeled.Label = "w1-s2"

	assert.Panics(t, func() { _ = g.MergeInto(target.ID, []EdgeID{labeled.ID}) })
}

func TestMergeInto_OtherPairPanics(t *testing.T) {
	g := newGraph("A", "B", "C")
	target := mustEdge(t, g, "A", "B", TransportTCP, 1, 2, at(0))
	sibling := mustEdge(t, g, "A", "B", TransportTCP, 3, 4, at(1))
	other := mustEdge(t, g, "A", "C", TransportTCP, 1, 2, at(2))

	assert.Panics(t, func() { _ = g.MergeInto(target.ID, []EdgeID{sibling.ID, other.ID}) })

	// target untouched when any source is rejected
	require.NotNil(t, target.SourcePort)
	assert.Equal(t, 1, *target.SourcePort)
	require.NotNil(t, target.DestinationPort)
	assert.Equal(t, 2, *target.DestinationPort)
	assert.Empty(t, target.SourcePorts)
	assert.Empty(t, target.DestinationPorts)
	assert.Equal(t, 1, target.Count)
	assert.Equal(t, 3, g.EdgeCount())
}

func TestMergeInto_DistinctPorts(t *testing.T) {
	g := newGraph("A", "B")
	target := mustEdge(t, g, "A", "B", TransportTCP, 5000, 22, at(0))
	s1 := mustEdge(t, g, "A", "B", TransportTCP, 5001, 22, at(1))
	s2 := mustEdge(t, g, "A", "B", TransportTCP, 5000, 80, at(2))

	require.NoError(t, g.MergeInto(target.ID, []EdgeID{s1.ID, s2.ID, s1.ID}))

	assert.Equal(t, []int{5000, 5001}, target.SourcePorts)
	assert.Equal(t, []int{22, 80}, target.DestinationPorts)
	assert.Equal(t, 3, target.Count)
	assert.Equal(t, 1, g.EdgeCount())
}

func TestMergeInto_UnknownEdge(t *testing.T) {
	g := newGraph("A", "B")
	target := mustEdge(t, g, "A", "B", TransportTCP, 1, 2, at(0))

	assert.ErrorIs(t, g.MergeInto(target.ID, []EdgeID{99}), ErrEdgeNotFound)
	assert.ErrorIs(t, g.MergeInto(99, nil), ErrEdgeNotFound)
}

func TestClone_Independent(t *testing.T) {
	g := newGraph("A", "B")
	e := mustEdge(t, g, "A", "B", TransportTCP, 1, 2, at(0))

	c := g.Clone()
	c.Edge(e.ID).Label = "w1-s1"
	*c.Edge(e.ID).SourcePort = 7

	assert.Equal(t, Unattributed, e.Label)
	assert.Equal(t, 1, *e.SourcePort)
	assert.Equal(t, g.EdgeCount(), c.EdgeCount())

	next := mustEdge(t, c, "A", "B", TransportTCP, 1, 2, at(0))
	assert.Greater(t, next.ID, e.ID, "clones keep allocating fresh IDs")
}

func TestAbsorb(t *testing.T) {
	a := newGraph("A", "B")
	mustEdge(t, a, "A", "B", TransportTCP, 1, 2, at(0))

	b := NewGraph()
	b.AddHost("B", "bee")
	b.AddHost("C", "")
	e := mustEdge(t, b, "B", "C", TransportUDP, 5, 53, at(1))
	e.Label = "w1-s4"

	a.Absorb(b)

	assert.Equal(t, 3, a.HostCount())
	assert.Equal(t, "bee", a.Host("B").Hostname)
	require.Len(t, a.EdgesFrom("B"), 1)
	assert.Equal(t, "w1-s4", a.EdgesFrom("B")[0].Label)
	assert.Equal(t, 2, a.EdgeCount())
}

func TestRestoreEdge(t *testing.T) {
	g := newGraph("A", "B")
	end := at(9)
	e, err := g.RestoreEdge(FlowEdge{
		ID:               42,
		Source:           "A",
		Destination:      "B",
		Transport:        TransportTCP,
		SourcePorts:      []int{1, 2},
		DestinationPorts: []int{22},
		Start:            at(1),
		End:              &end,
		Label:            "w1-s5",
		Count:            3,
	})
	require.NoError(t, err)
	assert.Equal(t, EdgeID(1), e.ID)
	assert.True(t, e.Aggregate())
	assert.Equal(t, "w1-s5", e.Label)
	assert.Equal(t, 3, e.Count)

	plain, err := g.RestoreEdge(FlowEdge{Source: "B", Destination: "A", Transport: TransportUDP, Start: at(2)})
	require.NoError(t, err)
	assert.Equal(t, Unattributed, plain.Label)
	assert.Equal(t, 1, plain.Count)

	_, err = g.RestoreEdge(FlowEdge{Source: "A", Destination: "Z"})
	assert.ErrorIs(t, err, ErrInvalidEdge)
}

func TestParseTransport(t *testing.T) {
	tests := map[string]Transport{
		"tcp":       TransportTCP,
		" UDP ":     TransportUDP,
		"icmp":      TransportICMP,
		"ipv6-icmp": TransportUnknown,
		"":          TransportUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseTransport(in), in)
	}
}

func hostIDs(g *Graph) []string {
	var ids []string
	for _, h := range g.Hosts() {
		ids = append(ids, h.ID)
	}
	return ids
}
