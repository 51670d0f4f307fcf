package attribution

import (
	"fmt"
	"time"
)

// FlowPart is one segment of a reconstructed flow
type FlowPart struct {
	Source          string     `json:"source"`
	Destination     string     `json:"destination"`
	Start           time.Time  `json:"start"`
	End             *time.Time `json:"end,omitempty"`
	Transport       Transport  `json:"transport"`
	SourcePort      *int       `json:"source_port,omitempty"`
	DestinationPort *int       `json:"destination_port,omitempty"`
	Process         string     `json:"process,omitempty"`
}

func (p FlowPart) String() string {
	return fmt.Sprintf("%s:%s -> %s:%s/%s@%s", p.Source, portString(p.SourcePort),
		p.Destination, portString(p.DestinationPort), p.Transport, p.Start.Format(time.RFC3339Nano))
}

// ReconstructChain anchors a chain on pivot and picks one candidate per hop.
// A candidate qualifies when it shares the pivot's transport and port pair
// and starts strictly after the previously chosen part; the earliest
// qualifying start wins, ties going to the first in input order.
//
// It returns the chain (pivot first, one part per hop) and the index picked
// in each hop, or nil, nil when any hop has no qualifying candidate. A partial
// chain is never returned.
func ReconstructChain(pivot FlowPart, hops [][]FlowPart) ([]FlowPart, []int) {
	chain := make([]FlowPart, 0, len(hops)+1)
	picked := make([]int, 0, len(hops))
	chain = append(chain, pivot)

	prev := pivot
	for _, candidates := range hops {
		best := -1
		for i, c := range candidates {
			if c.Transport != pivot.Transport ||
				!portsEqual(c.SourcePort, pivot.SourcePort) ||
				!portsEqual(c.DestinationPort, pivot.DestinationPort) ||
				!c.Start.After(prev.Start) {
				continue
			}
			if best < 0 || c.Start.Before(candidates[best].Start) {
				best = i
			}
		}
		if best < 0 {
			return nil, nil
		}
		chain = append(chain, candidates[best])
		picked = append(picked, best)
		prev = candidates[best]
	}

	return chain, picked
}
