package attribution

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// OriginAudit is the outcome of propagating every origin host in isolation
type OriginAudit struct {
	// Claimed maps each origin host to the number of edges it labels on its own
	Claimed map[string]int `json:"claimed"`
	// Conflicts maps edges reachable from more than one origin to the
	// origins that would claim them, sorted
	Conflicts map[EdgeID][]string `json:"conflicts"`
}

// OriginHosts returns the distinct edge sources matching one of the
// prefixes, in edge creation order
func OriginHosts(g *Graph, prefixes []string) []string {
	var origins []string
	for _, e := range g.Edges() {
		if hasAnyPrefix(e.Source, prefixes) && !slices.Contains(origins, e.Source) {
			origins = append(origins, e.Source)
		}
	}
	return origins
}

// AuditOrigins propagates each origin host matching prefixes on its own clone
// of g in parallel, each run with its own visited set, and reports edges that
// several origins would claim. g itself is not modified. Existing labels are
// cleared on the clones so every origin starts from the same unlabeled graph.
func AuditOrigins(ctx context.Context, g *Graph, c *Correlator, prefixes []string, workers int) (*OriginAudit, error) {
	if workers <= 0 {
		workers = 1
	}

	base := g.Clone()
	for _, e := range base.edges {
		e.Label = Unattributed
	}

	origins := OriginHosts(base, prefixes)

	var (
		mu     sync.Mutex
		claims = make(map[EdgeID][]string)
		audit  = &OriginAudit{
			Claimed:   make(map[string]int, len(origins)),
			Conflicts: make(map[EdgeID][]string),
		}
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, origin := range origins {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			clone := base.Clone()
			NewPropagator(c).run(clone, func(host string) bool { return host == origin })

			mu.Lock()
			defer mu.Unlock()
			for id, label := range clone.Labels() {
				if label == Unattributed {
					continue
				}
				audit.Claimed[origin]++
				if !slices.Contains(claims[id], label) {
					claims[id] = append(claims[id], label)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for id, labels := range claims {
		if len(labels) > 1 {
			slices.Sort(labels)
			audit.Conflicts[id] = labels
		}
	}
	return audit, nil
}
