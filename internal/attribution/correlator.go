package attribution

import "fmt"

// MatchPolicy decides which attributes two edges must share to be treated as
// the same relayed connection
type MatchPolicy string

const (
	// MatchStrict requires equal transport, source port and destination port.
	// It assumes no port rewriting between hops.
	MatchStrict MatchPolicy = "strict"
	// MatchTransportDestPort tolerates source port rewriting (NAT)
	MatchTransportDestPort MatchPolicy = "transport_dport"
	// MatchTransport only requires equal transport
	MatchTransport MatchPolicy = "transport"
)

// ParseMatchPolicy validates a configured policy name. An empty name selects
// the strict policy.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch p := MatchPolicy(s); p {
	case "":
		return MatchStrict, nil
	case MatchStrict, MatchTransportDestPort, MatchTransport:
		return p, nil
	default:
		return "", fmt.Errorf("unknown match policy %q", s)
	}
}

// EdgePair is an inbound edge and the outbound edge that continues it
type EdgePair struct {
	In  *FlowEdge
	Out *FlowEdge
}

// Correlator matches inbound and outbound edges at a node
type Correlator struct {
	policy MatchPolicy
}

// NewCorrelator creates a correlator for the given policy
func NewCorrelator(policy MatchPolicy) *Correlator {
	if policy == "" {
		policy = MatchStrict
	}
	return &Correlator{policy: policy}
}

// Policy returns the active match policy
func (c *Correlator) Policy() MatchPolicy {
	return c.policy
}

// Matches reports whether out continues in. No temporal constraint applies
// here. Missing ports only match missing ports.
func (c *Correlator) Matches(in, out *FlowEdge) bool {
	if in.Transport != out.Transport {
		return false
	}
	switch c.policy {
	case MatchTransport:
		return true
	case MatchTransportDestPort:
		return portsEqual(in.DestinationPort, out.DestinationPort)
	default:
		return portsEqual(in.SourcePort, out.SourcePort) &&
			portsEqual(in.DestinationPort, out.DestinationPort)
	}
}

// MatchEdges returns every (inbound, outbound) pair at node that Matches
// accepts, ordered by inbound then outbound insertion order. An edge is never
// paired with itself. A node without inbound or outbound edges yields nothing.
func (c *Correlator) MatchEdges(g *Graph, node string) []EdgePair {
	in := g.EdgesTo(node)
	out := g.EdgesFrom(node)
	if len(in) == 0 || len(out) == 0 {
		return nil
	}

	var pairs []EdgePair
	for _, ei := range in {
		for _, eo := range out {
			if ei.ID == eo.ID {
				continue
			}
			if c.Matches(ei, eo) {
				pairs = append(pairs, EdgePair{In: ei, Out: eo})
			}
		}
	}
	return pairs
}

func portsEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
