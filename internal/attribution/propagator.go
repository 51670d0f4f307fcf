package attribution

import "strings"

// PropagationStats describes one propagation run
type PropagationStats struct {
	// Seeded edges were labeled directly from their origin source host
	Seeded int `json:"seeded"`
	// Labeled edges received a label by propagation
	Labeled int `json:"labeled"`
	// Iterations is the number of breadth-first frontier rounds
	Iterations int `json:"iterations"`
	// Visits counts edges used as a propagation source. Never above the edge count.
	Visits int `json:"visits"`
	// Ambiguous counts edges that a different label also reached after the
	// edge was claimed, each edge once. The first writer keeps the edge.
	Ambiguous int `json:"ambiguous"`
}

// Propagator spreads attribution labels from origin edges along correlated
// edges until nothing changes
type Propagator struct {
	correlator *Correlator
}

// NewPropagator creates a propagator using the correlator for matching
func NewPropagator(c *Correlator) *Propagator {
	if c == nil {
		c = NewCorrelator(MatchStrict)
	}
	return &Propagator{correlator: c}
}

// PropagateLabels runs a strict-policy propagation
func PropagateLabels(g *Graph, originPrefixes []string) PropagationStats {
	return NewPropagator(nil).Propagate(g, originPrefixes)
}

// Propagate seeds every unattributed edge whose source host ID starts with
// one of originPrefixes with that host ID, then walks breadth-first: each
// labeled edge is visited once, and every unattributed outbound edge at its
// destination that the correlator matches takes its label and joins the next
// frontier. The run ends at the first round that labels nothing.
//
// Labels are never overwritten, so rerunning on an unchanged graph changes
// nothing.
func (p *Propagator) Propagate(g *Graph, originPrefixes []string) PropagationStats {
	return p.run(g, func(host string) bool { return hasAnyPrefix(host, originPrefixes) })
}

func (p *Propagator) run(g *Graph, isOrigin func(host string) bool) PropagationStats {
	var stats PropagationStats

	for _, e := range g.Edges() {
		if !e.Attributed() && isOrigin(e.Source) {
			e.Label = e.Source
			stats.Seeded++
		}
	}

	// edges labeled before this run (seeds, imported labels) form the first frontier
	var frontier []*FlowEdge
	for _, e := range g.Edges() {
		if e.Attributed() {
			frontier = append(frontier, e)
		}
	}

	visited := make(map[EdgeID]struct{}, len(frontier))
	contested := make(map[EdgeID]struct{})
	for len(frontier) > 0 {
		stats.Iterations++
		var next []*FlowEdge

		for _, in := range frontier {
			if _, ok := visited[in.ID]; ok {
				continue
			}
			visited[in.ID] = struct{}{}
			stats.Visits++

			for _, out := range g.EdgesFrom(in.Destination) {
				if out.ID == in.ID || !p.correlator.Matches(in, out) {
					continue
				}
				if out.Attributed() {
					if out.Label != in.Label {
						contested[out.ID] = struct{}{}
					}
					continue
				}
				out.Label = in.Label
				stats.Labeled++
				next = append(next, out)
			}
		}
		frontier = next
	}

	stats.Ambiguous = len(contested)
	return stats
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
