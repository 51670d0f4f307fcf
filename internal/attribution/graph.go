package attribution

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Transport is the transport protocol of a flow edge
type Transport string

const (
	TransportTCP     Transport = "tcp"
	TransportUDP     Transport = "udp"
	TransportICMP    Transport = "icmp"
	TransportUnknown Transport = "unknown"
)

// ParseTransport normalizes a transport name. Anything unrecognized is unknown.
func ParseTransport(s string) Transport {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportTCP, TransportUDP, TransportICMP:
		return t
	default:
		return TransportUnknown
	}
}

// Unattributed is the label carried by edges no origin has claimed yet
const Unattributed = "unknown"

// EdgeID identifies a flow edge for the lifetime of a graph
type EdgeID uint64

// Host is a node of the flow graph
type Host struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname,omitempty"`
}

// FlowEdge is one observed connection segment between two hosts.
// Aggregate edges produced by merging carry the port lists instead of the
// scalar ports. Only Label and Count change after creation.
type FlowEdge struct {
	ID               EdgeID     `json:"id"`
	Source           string     `json:"source"`
	Destination      string     `json:"destination"`
	Transport        Transport  `json:"transport"`
	SourcePort       *int       `json:"source_port,omitempty"`
	DestinationPort  *int       `json:"destination_port,omitempty"`
	SourcePorts      []int      `json:"source_ports,omitempty"`
	DestinationPorts []int      `json:"destination_ports,omitempty"`
	Start            time.Time  `json:"start"`
	End              *time.Time `json:"end,omitempty"`
	Label            string     `json:"attribution_label"`
	Count            int        `json:"count"`
}

// Attributed reports whether an origin has claimed the edge
func (e *FlowEdge) Attributed() bool {
	return e.Label != "" && e.Label != Unattributed
}

// Aggregate reports whether the edge was produced by merging
func (e *FlowEdge) Aggregate() bool {
	return len(e.SourcePorts) > 0 || len(e.DestinationPorts) > 0
}

func (e *FlowEdge) String() string {
	return fmt.Sprintf("%s:%s -> %s:%s/%s [%s]", e.Source, portString(e.SourcePort),
		e.Destination, portString(e.DestinationPort), e.Transport, e.Label)
}

func portString(p *int) string {
	if p == nil {
		return "*"
	}
	return fmt.Sprintf("%d", *p)
}

// Graph is an in-memory directed multigraph of hosts and flow edges.
// It is not safe for concurrent mutation: ingest concurrently into separate
// graphs and Absorb them sequentially.
type Graph struct {
	hosts     map[string]*Host
	hostOrder []string
	edges     map[EdgeID]*FlowEdge
	out       map[string][]EdgeID
	in        map[string][]EdgeID
	nextID    EdgeID
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		hosts: make(map[string]*Host),
		edges: make(map[EdgeID]*FlowEdge),
		out:   make(map[string][]EdgeID),
		in:    make(map[string][]EdgeID),
	}
}

// AddHost returns the host with the given ID, creating it if needed.
// An existing host only gets its hostname set if it had none.
func (g *Graph) AddHost(id, hostname string) *Host {
	if h, ok := g.hosts[id]; ok {
		if h.Hostname == "" && hostname != "" {
			h.Hostname = hostname
		}
		return h
	}
	h := &Host{ID: id, Hostname: hostname}
	g.hosts[id] = h
	g.hostOrder = append(g.hostOrder, id)
	return h
}

// Host returns the host with the given ID or nil
func (g *Graph) Host(id string) *Host {
	return g.hosts[id]
}

// HasHost reports whether the host is part of the graph
func (g *Graph) HasHost(id string) bool {
	_, ok := g.hosts[id]
	return ok
}

// Hosts returns all hosts in insertion order
func (g *Graph) Hosts() []*Host {
	hosts := make([]*Host, 0, len(g.hostOrder))
	for _, id := range g.hostOrder {
		hosts = append(hosts, g.hosts[id])
	}
	return hosts
}

// HostCount returns the number of hosts
func (g *Graph) HostCount() int {
	return len(g.hosts)
}

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// AddFlowEdge creates a new edge between two known hosts. Parallel edges are
// legal: every observed flow is a distinct occurrence.
func (g *Graph) AddFlowEdge(source, destination string, transport Transport, sourcePort, destinationPort *int, start time.Time, end *time.Time) (*FlowEdge, error) {
	var missing []string
	if !g.HasHost(source) {
		missing = append(missing, source)
	}
	if !g.HasHost(destination) && destination != source {
		missing = append(missing, destination)
	}
	if len(missing) > 0 {
		return nil, &InvalidEdgeError{Source: source, Destination: destination, Missing: missing}
	}

	e := &FlowEdge{
		Source:          source,
		Destination:     destination,
		Transport:       transport,
		SourcePort:      copyPort(sourcePort),
		DestinationPort: copyPort(destinationPort),
		Start:           start,
		End:             copyTime(end),
		Label:           Unattributed,
		Count:           1,
	}
	g.insert(e)
	return e, nil
}

// RestoreEdge inserts a copy of a persisted edge, keeping its ports, label
// and count. The copy receives a fresh ID.
func (g *Graph) RestoreEdge(e FlowEdge) (*FlowEdge, error) {
	restored, err := g.AddFlowEdge(e.Source, e.Destination, e.Transport, e.SourcePort, e.DestinationPort, e.Start, e.End)
	if err != nil {
		return nil, err
	}
	restored.SourcePorts = slices.Clone(e.SourcePorts)
	restored.DestinationPorts = slices.Clone(e.DestinationPorts)
	if e.Label != "" {
		restored.Label = e.Label
	}
	if e.Count > 0 {
		restored.Count = e.Count
	}
	return restored, nil
}

func (g *Graph) insert(e *FlowEdge) {
	g.nextID++
	e.ID = g.nextID
	g.edges[e.ID] = e
	g.out[e.Source] = append(g.out[e.Source], e.ID)
	g.in[e.Destination] = append(g.in[e.Destination], e.ID)
}

// Edge returns the edge with the given ID or nil
func (g *Graph) Edge(id EdgeID) *FlowEdge {
	return g.edges[id]
}

// Edges returns every edge in creation order
func (g *Graph) Edges() []*FlowEdge {
	ids := make([]EdgeID, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return g.resolve(ids)
}

// EdgesFrom returns the outbound edges of a host in insertion order
func (g *Graph) EdgesFrom(host string) []*FlowEdge {
	return g.resolve(g.out[host])
}

// EdgesTo returns the inbound edges of a host in insertion order
func (g *Graph) EdgesTo(host string) []*FlowEdge {
	return g.resolve(g.in[host])
}

func (g *Graph) resolve(ids []EdgeID) []*FlowEdge {
	edges := make([]*FlowEdge, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, g.edges[id])
	}
	return edges
}

// Successors returns the distinct destinations reachable over one edge,
// ordered by first appearance
func (g *Graph) Successors(host string) []string {
	seen := make(map[string]struct{})
	var next []string
	for _, id := range g.out[host] {
		dst := g.edges[id].Destination
		if _, ok := seen[dst]; ok {
			continue
		}
		seen[dst] = struct{}{}
		next = append(next, dst)
	}
	return next
}

// SetLabel overwrites the label of an edge. Used when loading a graph that
// was labeled by an earlier run.
func (g *Graph) SetLabel(id EdgeID, label string) error {
	e, ok := g.edges[id]
	if !ok {
		return fmt.Errorf("set label on edge %d: %w", id, ErrEdgeNotFound)
	}
	e.Label = label
	return nil
}

// SetCount overwrites the occurrence count of an edge
func (g *Graph) SetCount(id EdgeID, count int) error {
	e, ok := g.edges[id]
	if !ok {
		return fmt.Errorf("set count on edge %d: %w", id, ErrEdgeNotFound)
	}
	e.Count = count
	return nil
}

// RemoveEdge deletes an edge
func (g *Graph) RemoveEdge(id EdgeID) error {
	e, ok := g.edges[id]
	if !ok {
		return fmt.Errorf("remove edge %d: %w", id, ErrEdgeNotFound)
	}
	delete(g.edges, id)
	g.out[e.Source] = dropID(g.out[e.Source], id)
	g.in[e.Destination] = dropID(g.in[e.Destination], id)
	return nil
}

func dropID(ids []EdgeID, id EdgeID) []EdgeID {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

// RemoveHost deletes a host together with its incident edges
func (g *Graph) RemoveHost(id string) error {
	if !g.HasHost(id) {
		return fmt.Errorf("remove host %s: %w", id, ErrHostNotFound)
	}
	for _, eid := range slices.Clone(g.out[id]) {
		_ = g.RemoveEdge(eid)
	}
	for _, eid := range slices.Clone(g.in[id]) {
		_ = g.RemoveEdge(eid)
	}
	delete(g.hosts, id)
	delete(g.out, id)
	delete(g.in, id)
	if i := slices.Index(g.hostOrder, id); i >= 0 {
		g.hostOrder = slices.Delete(g.hostOrder, i, i+1)
	}
	return nil
}

// MergeInto folds the source edges into target and removes them. Counts add
// up, distinct ports are collected into the target's port lists in first-seen
// order and the time span widens to cover every source.
//
// Merging attributed edges, merging an edge into itself or merging edges of a
// different host pair or transport violates graph invariants and panics.
func (g *Graph) MergeInto(target EdgeID, sources []EdgeID) error {
	t, ok := g.edges[target]
	if !ok {
		return fmt.Errorf("merge into edge %d: %w", target, ErrEdgeNotFound)
	}
	for _, id := range sources {
		if _, ok := g.edges[id]; !ok {
			return fmt.Errorf("merge edge %d: %w", id, ErrEdgeNotFound)
		}
	}
	if t.Attributed() {
		panic(fmt.Sprintf("attribution: merge into attributed edge %d (%s)", t.ID, t.Label))
	}
	// every source is checked before the target changes
	for _, id := range sources {
		s := g.edges[id]
		switch {
		case s.ID == t.ID:
			panic(fmt.Sprintf("attribution: merge edge %d into itself", s.ID))
		case s.Attributed():
			panic(fmt.Sprintf("attribution: merge attributed edge %d (%s)", s.ID, s.Label))
		case s.Source != t.Source || s.Destination != t.Destination || s.Transport != t.Transport:
			panic(fmt.Sprintf("attribution: merge edge %s into %s", s, t))
		}
	}

	if t.SourcePort != nil {
		t.SourcePorts = appendDistinct(t.SourcePorts, *t.SourcePort)
		t.SourcePort = nil
	}
	if t.DestinationPort != nil {
		t.DestinationPorts = appendDistinct(t.DestinationPorts, *t.DestinationPort)
		t.DestinationPort = nil
	}

	for _, id := range sources {
		s, ok := g.edges[id]
		if !ok {
			// listed twice
			continue
		}

		t.Count += s.Count
		if s.SourcePort != nil {
			t.SourcePorts = appendDistinct(t.SourcePorts, *s.SourcePort)
		}
		t.SourcePorts = appendDistinct(t.SourcePorts, s.SourcePorts...)
		if s.DestinationPort != nil {
			t.DestinationPorts = appendDistinct(t.DestinationPorts, *s.DestinationPort)
		}
		t.DestinationPorts = appendDistinct(t.DestinationPorts, s.DestinationPorts...)

		if t.Start.IsZero() || (!s.Start.IsZero() && s.Start.Before(t.Start)) {
			t.Start = s.Start
		}
		if s.End != nil && (t.End == nil || s.End.After(*t.End)) {
			t.End = copyTime(s.End)
		}

		_ = g.RemoveEdge(id)
	}
	return nil
}

// appendDistinct appends the ports not already in list, keeping first-seen order
func appendDistinct(list []int, ports ...int) []int {
	for _, p := range ports {
		if !slices.Contains(list, p) {
			list = append(list, p)
		}
	}
	return list
}

// Labels returns a snapshot of every edge label
func (g *Graph) Labels() map[EdgeID]string {
	labels := make(map[EdgeID]string, len(g.edges))
	for id, e := range g.edges {
		labels[id] = e.Label
	}
	return labels
}

// Clone returns a deep copy that keeps edge IDs
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	c.nextID = g.nextID
	for _, id := range g.hostOrder {
		h := *g.hosts[id]
		c.hosts[id] = &h
		c.hostOrder = append(c.hostOrder, id)
	}
	for id, e := range g.edges {
		c.edges[id] = cloneEdge(e)
	}
	for host, ids := range g.out {
		c.out[host] = slices.Clone(ids)
	}
	for host, ids := range g.in {
		c.in[host] = slices.Clone(ids)
	}
	return c
}

// Absorb copies the hosts and edges of other into g. Edges get fresh IDs and
// keep their label and count.
func (g *Graph) Absorb(other *Graph) {
	for _, h := range other.Hosts() {
		g.AddHost(h.ID, h.Hostname)
	}
	for _, e := range other.Edges() {
		g.insert(cloneEdge(e))
	}
}

func cloneEdge(e *FlowEdge) *FlowEdge {
	c := *e
	c.SourcePort = copyPort(e.SourcePort)
	c.DestinationPort = copyPort(e.DestinationPort)
	c.SourcePorts = slices.Clone(e.SourcePorts)
	c.DestinationPorts = slices.Clone(e.DestinationPorts)
	c.End = copyTime(e.End)
	return &c
}

func copyPort(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Port returns a pointer to p, convenient for optional ports
func Port(p int) *int {
	return &p
}
