package attribution

type mergeKey struct {
	source      string
	destination string
	transport   Transport
}

// MergeUnattributedEdges collapses unattributed parallel edges sharing host
// pair and transport into one aggregate edge holding the distinct ports seen and the
// summed count, then deletes the originals. Attributed edges are left alone.
// It returns how many original edges were merged.
func MergeUnattributedEdges(g *Graph) int {
	var (
		order  []mergeKey
		groups = make(map[mergeKey][]*FlowEdge)
	)
	for _, e := range g.Edges() {
		if e.Attributed() {
			continue
		}
		k := mergeKey{source: e.Source, destination: e.Destination, transport: e.Transport}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	merged := 0
	for _, k := range order {
		edges := groups[k]
		if len(edges) < 2 {
			continue
		}

		aggregate := &FlowEdge{
			Source:      k.source,
			Destination: k.destination,
			Transport:   k.transport,
			Label:       Unattributed,
		}
		g.insert(aggregate)

		ids := make([]EdgeID, len(edges))
		for i, e := range edges {
			ids[i] = e.ID
		}
		if err := g.MergeInto(aggregate.ID, ids); err != nil {
			// every id was just read from the graph
			panic(err)
		}
		merged += len(edges)
	}
	return merged
}
