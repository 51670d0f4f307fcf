package services

import (
	"slices"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/domain/models"
)

// BuildSummary condenses reconstructed chains into a summary graph: how many
// chain parts touch each host, and per host pair the earliest start, the
// number of parts and the well-known service ports they targeted.
func BuildSummary(actorIP string, chains [][]attribution.FlowPart, servicePorts []int) models.SummaryGraph {
	type pair struct{ src, dst string }

	var (
		summary   models.SummaryGraph
		nodeIndex = make(map[string]int)
		edgeIndex = make(map[pair]int)
	)

	countNode := func(id string) {
		if i, ok := nodeIndex[id]; ok {
			summary.Nodes[i].Count++
			return
		}
		nodeIndex[id] = len(summary.Nodes)
		summary.Nodes = append(summary.Nodes, models.SummaryNode{ID: id, Count: 1})
	}

	for _, chain := range chains {
		for _, part := range chain {
			countNode(part.Source)
			countNode(part.Destination)

			service := part.DestinationPort != nil && slices.Contains(servicePorts, *part.DestinationPort)

			k := pair{part.Source, part.Destination}
			i, ok := edgeIndex[k]
			if !ok {
				edge := models.SummaryEdge{
					Source:      part.Source,
					Destination: part.Destination,
					Ports:       []int{},
					Date:        part.Start,
					Count:       1,
					Attr:        actorIP,
				}
				if service {
					edge.Ports = append(edge.Ports, *part.DestinationPort)
				}
				edgeIndex[k] = len(summary.Edges)
				summary.Edges = append(summary.Edges, edge)
				continue
			}

			edge := &summary.Edges[i]
			edge.Count++
			if part.Start.Before(edge.Date) {
				edge.Date = part.Start
			}
			if service && !slices.Contains(edge.Ports, *part.DestinationPort) {
				edge.Ports = append(edge.Ports, *part.DestinationPort)
			}
		}
	}

	return summary
}
