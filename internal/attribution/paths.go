package attribution

import (
	"net/netip"
	"slices"
	"strings"
)

// PathOptions bounds and filters path enumeration
type PathOptions struct {
	// Exclude prunes a successor from expansion. The end host is never pruned.
	Exclude func(host string) bool
	// MaxLength caps the number of hosts in a path. Zero means unbounded.
	MaxLength int
	// MaxPaths stops enumeration once that many paths were found. Zero means unbounded.
	MaxPaths int
}

// FindAllPaths returns every simple directed path from start to end, in
// depth-first order following successor insertion order. It returns nothing
// when start is not in the graph. The search is exponential in fan-out;
// topology graphs are shallow, and MaxLength/MaxPaths cap the worst case.
func FindAllPaths(g *Graph, start, end string, opts PathOptions) [][]string {
	if !g.HasHost(start) {
		return nil
	}

	var (
		paths   [][]string
		path    = []string{start}
		onPath  = map[string]bool{start: true}
		stopped bool
	)

	var walk func(host string)
	walk = func(host string) {
		if host == end {
			paths = append(paths, slices.Clone(path))
			if opts.MaxPaths > 0 && len(paths) >= opts.MaxPaths {
				stopped = true
			}
			return
		}
		if opts.MaxLength > 0 && len(path) >= opts.MaxLength {
			return
		}
		for _, next := range g.Successors(host) {
			if stopped {
				return
			}
			if onPath[next] {
				continue
			}
			if next != end && opts.Exclude != nil && opts.Exclude(next) {
				continue
			}
			path = append(path, next)
			onPath[next] = true
			walk(next)
			onPath[next] = false
			path = path[:len(path)-1]
		}
	}
	walk(start)

	return paths
}

// ExcludeHostPrefixes excludes hosts whose ID starts with one of the prefixes
func ExcludeHostPrefixes(prefixes ...string) func(string) bool {
	return func(host string) bool {
		return hasAnyPrefix(host, prefixes)
	}
}

// ExcludeSubnets excludes hosts whose ID is an address inside one of the subnets.
// Hosts identified by name are never excluded.
func ExcludeSubnets(subnets ...netip.Prefix) func(string) bool {
	return func(host string) bool {
		addr, err := netip.ParseAddr(host)
		if err != nil {
			return false
		}
		for _, s := range subnets {
			if s.Contains(addr) {
				return true
			}
		}
		return false
	}
}

// ParseExclusions turns configured entries into an exclusion predicate.
// CIDR entries match addresses, everything else is a host ID prefix.
func ParseExclusions(entries []string) func(string) bool {
	var (
		subnets  []netip.Prefix
		prefixes []string
	)
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			subnets = append(subnets, p.Masked())
			continue
		}
		prefixes = append(prefixes, entry)
	}
	if len(subnets) == 0 && len(prefixes) == 0 {
		return nil
	}

	bySubnet := ExcludeSubnets(subnets...)
	byPrefix := ExcludeHostPrefixes(prefixes...)
	return func(host string) bool {
		return bySubnet(host) || byPrefix(host)
	}
}
