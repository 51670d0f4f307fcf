package attribution

// PruneToLargestComponent removes every host outside the largest weakly
// connected component, with its edges. Among equally large components the
// one holding the earliest inserted host survives. It returns the number of
// hosts removed.
func PruneToLargestComponent(g *Graph) int {
	component := make(map[string]int, g.HostCount())
	var sizes []int

	for _, h := range g.Hosts() {
		if _, ok := component[h.ID]; ok {
			continue
		}
		id := len(sizes)
		sizes = append(sizes, 0)

		queue := []string{h.ID}
		component[h.ID] = id
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			sizes[id]++
			for _, n := range g.neighbours(cur) {
				if _, ok := component[n]; !ok {
					component[n] = id
					queue = append(queue, n)
				}
			}
		}
	}
	if len(sizes) < 2 {
		return 0
	}

	largest := 0
	for id, size := range sizes {
		if size > sizes[largest] {
			largest = id
		}
	}

	removed := 0
	for _, h := range g.Hosts() {
		if component[h.ID] != largest {
			_ = g.RemoveHost(h.ID)
			removed++
		}
	}
	return removed
}

func (g *Graph) neighbours(host string) []string {
	var ns []string
	for _, id := range g.out[host] {
		ns = append(ns, g.edges[id].Destination)
	}
	for _, id := range g.in[host] {
		ns = append(ns, g.edges[id].Source)
	}
	return ns
}
