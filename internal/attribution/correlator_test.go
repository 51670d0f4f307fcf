package attribution

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edge(tr Transport, sport, dport *int) *FlowEdge {
	return &FlowEdge{Transport: tr, SourcePort: sport, DestinationPort: dport}
}

func TestCorrelator_Matches(t *testing.T) {
	tests := []struct {
		name   string
		policy MatchPolicy
		in     *FlowEdge
		out    *FlowEdge
		want   bool
	}{
		{"strict same ports", MatchStrict, edge(TransportTCP, Port(4000), Port(22)), edge(TransportTCP, Port(4000), Port(22)), true},
		{"strict other sport", MatchStrict, edge(TransportTCP, Port(4000), Port(22)), edge(TransportTCP, Port(4001), Port(22)), false},
		{"strict other transport", MatchStrict, edge(TransportTCP, Port(53), Port(53)), edge(TransportUDP, Port(53), Port(53)), false},
		{"strict nil equals nil", MatchStrict, edge(TransportICMP, nil, nil), edge(TransportICMP, nil, nil), true},
		{"strict nil differs from port", MatchStrict, edge(TransportTCP, nil, Port(22)), edge(TransportTCP, Port(0), Port(22)), false},
		{"dport ignores sport", MatchTransportDestPort, edge(TransportTCP, Port(4000), Port(22)), edge(TransportTCP, Port(61000), Port(22)), true},
		{"dport other dport", MatchTransportDestPort, edge(TransportTCP, Port(4000), Port(22)), edge(TransportTCP, Port(4000), Port(80)), false},
		{"transport only", MatchTransport, edge(TransportUDP, Port(1), Port(2)), edge(TransportUDP, Port(3), Port(4)), true},
		{"transport only other transport", MatchTransport, edge(TransportUDP, Port(1), Port(2)), edge(TransportTCP, Port(1), Port(2)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCorrelator(tt.policy)
			assert.Equal(t, tt.want, c.Matches(tt.in, tt.out))
		})
	}
}

func TestCorrelator_MatchEdges(t *testing.T) {
	g := newGraph("S", "P", "T", "U")
	in1 := mustEdge(t, g, "S", "P", TransportTCP, 4000, 22, at(0))
	in2 := mustEdge(t, g, "U", "P", TransportTCP, 5000, 80, at(1))
	out1 := mustEdge(t, g, "P", "T", TransportTCP, 4000, 22, at(2))
	mustEdge(t, g, "P", "T", TransportUDP, 4000, 22, at(3))
	out3 := mustEdge(t, g, "P", "U", TransportTCP, 5000, 80, at(4))

	pairs := NewCorrelator(MatchStrict).MatchEdges(g, "P")

	require.Len(t, pairs, 2)
	assert.Equal(t, EdgePair{In: in1, Out: out1}, pairs[0])
	assert.Equal(t, EdgePair{In: in2, Out: out3}, pairs[1])
}

func TestCorrelator_MatchEdges_NoInOrOut(t *testing.T) {
	g := newGraph("S", "P")
	mustEdge(t, g, "S", "P", TransportTCP, 1, 2, at(0))

	c := NewCorrelator(MatchStrict)
	assert.Nil(t, c.MatchEdges(g, "S"))
	assert.Nil(t, c.MatchEdges(g, "P"))
	assert.Nil(t, c.MatchEdges(g, "missing"))
}

func TestCorrelator_MatchEdges_SelfLoop(t *testing.T) {
	g := newGraph("P")
	loop := mustEdge(t, g, "P", "P", TransportTCP, 1, 2, at(0))

	assert.Empty(t, NewCorrelator(MatchStrict).MatchEdges(g, "P"))
	assert.Equal(t, Unattributed, loop.Label)
}

func TestParseMatchPolicy(t *testing.T) {
	p, err := ParseMatchPolicy("")
	require.NoError(t, err)
	assert.Equal(t, MatchStrict, p)

	p, err = ParseMatchPolicy("transport_dport")
	require.NoError(t, err)
	assert.Equal(t, MatchTransportDestPort, p)

	_, err = ParseMatchPolicy("fuzzy")
	assert.Error(t, err)
}

func TestCorrelator_Symmetric(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	transports := []Transport{TransportTCP, TransportUDP}
	toEdge := func(v int) *FlowEdge {
		var sport, dport *int
		if v%3 != 0 {
			sport = Port(v % 3)
		}
		if (v/3)%3 != 0 {
			dport = Port((v / 3) % 3)
		}
		return edge(transports[(v/9)%2], sport, dport)
	}

	for _, policy := range []MatchPolicy{MatchStrict, MatchTransportDestPort, MatchTransport} {
		c := NewCorrelator(policy)
		properties.Property(string(policy)+" is symmetric", prop.ForAll(
			func(a, b int) bool {
				ea, eb := toEdge(a), toEdge(b)
				return c.Matches(ea, eb) == c.Matches(eb, ea)
			},
			gen.IntRange(0, 17),
			gen.IntRange(0, 17),
		))
	}

	properties.TestingRun(t)
}
