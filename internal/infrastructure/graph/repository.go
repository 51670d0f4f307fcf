package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/domain/models"
	"flowattr-lab/pkg/logger"
)

const defaultBatchSize = 500

// Repository persists attributed flow graphs as IP nodes joined by
// TRANSPORT relationships
type Repository struct {
	client    *Neo4jClient
	batchSize int
	logger    *logger.Logger
}

// NewRepository creates a new graph repository
func NewRepository(client *Neo4jClient, log *logger.Logger) *Repository {
	batchSize := client.config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Repository{
		client:    client,
		batchSize: batchSize,
		logger:    log.WithComponent("graph-repo"),
	}
}

// ExportGraph replaces the persisted graph with g
func (r *Repository) ExportGraph(ctx context.Context, runID string, g *attribution.Graph) error {
	if err := r.ClearGraph(ctx); err != nil {
		return err
	}

	hosts := hostParams(g)
	for start := 0; start < len(hosts); start += r.batchSize {
		batch := hosts[start:min(start+r.batchSize, len(hosts))]
		if err := r.write(ctx, models.CypherMergeHosts, map[string]any{"batch": batch}); err != nil {
			return fmt.Errorf("failed to merge hosts: %w", err)
		}
	}

	edges := edgeParams(g)
	for start := 0; start < len(edges); start += r.batchSize {
		batch := edges[start:min(start+r.batchSize, len(edges))]
		params := map[string]any{"batch": batch, "run_id": runID}
		if err := r.write(ctx, models.CypherCreateTransports, params); err != nil {
			return fmt.Errorf("failed to create transports: %w", err)
		}
	}

	r.logger.Debug().
		Str("run_id", runID).
		Int("hosts", len(hosts)).
		Int("edges", len(edges)).
		Msg("Graph exported")

	return nil
}

// ClearGraph removes every host and flow edge
func (r *Repository) ClearGraph(ctx context.Context) error {
	if err := r.write(ctx, models.CypherClearGraph, nil); err != nil {
		return fmt.Errorf("failed to clear graph: %w", err)
	}
	return nil
}

func (r *Repository) write(ctx context.Context, cypher string, params map[string]any) error {
	_, err := r.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// ImportGraph loads the persisted graph
func (r *Repository) ImportGraph(ctx context.Context) (*attribution.Graph, error) {
	result, err := r.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		g := attribution.NewGraph()

		hosts, err := tx.Run(ctx, models.CypherLoadHosts, nil)
		if err != nil {
			return nil, err
		}
		for hosts.Next(ctx) {
			record := hosts.Record()
			name, _, err := neo4j.GetRecordValue[string](record, "name")
			if err != nil {
				return nil, err
			}
			hostname, _ := record.Get("hostname")
			s, _ := hostname.(string)
			g.AddHost(name, s)
		}
		if err := hosts.Err(); err != nil {
			return nil, err
		}

		edges, err := tx.Run(ctx, models.CypherLoadTransports, nil)
		if err != nil {
			return nil, err
		}
		for edges.Next(ctx) {
			e, err := recordToEdge(edges.Record())
			if err != nil {
				return nil, err
			}
			if _, err := g.RestoreEdge(e); err != nil {
				return nil, err
			}
		}
		return g, edges.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}

	return result.(*attribution.Graph), nil
}

// Stats returns node and relationship counts of the persisted graph
func (r *Repository) Stats(ctx context.Context) (*models.GraphStats, error) {
	result, err := r.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		stats := &models.GraphStats{
			RelationsByLabel: make(map[string]int64),
			LastUpdated:      time.Now().UTC(),
		}

		nodes, err := tx.Run(ctx, "MATCH (n:IP) RETURN count(n) AS count", nil)
		if err != nil {
			return nil, err
		}
		record, err := nodes.Single(ctx)
		if err != nil {
			return nil, err
		}
		if stats.TotalNodes, _, err = neo4j.GetRecordValue[int64](record, "count"); err != nil {
			return nil, err
		}

		labels, err := tx.Run(ctx, models.CypherTransportsByLabel, nil)
		if err != nil {
			return nil, err
		}
		for labels.Next(ctx) {
			record := labels.Record()
			total, _, err := neo4j.GetRecordValue[int64](record, "total")
			if err != nil {
				return nil, err
			}
			value, _ := record.Get("label")
			label, _ := value.(string)
			if label == "" {
				label = attribution.Unattributed
			}
			stats.RelationsByLabel[label] += total
			stats.TotalRelationships += total
			if label != attribution.Unattributed {
				stats.AttributedRelationships += total
			}
		}
		return stats, labels.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read graph stats: %w", err)
	}

	return result.(*models.GraphStats), nil
}

// Health checks the underlying connection
func (r *Repository) Health(ctx context.Context) error {
	return r.client.Health(ctx)
}

func hostParams(g *attribution.Graph) []map[string]any {
	hosts := g.Hosts()
	batch := make([]map[string]any, 0, len(hosts))
	for _, h := range hosts {
		var hostname any
		if h.Hostname != "" {
			hostname = h.Hostname
		}
		batch = append(batch, map[string]any{
			"name":     h.ID,
			"hostname": hostname,
		})
	}
	return batch
}

func edgeParams(g *attribution.Graph) []map[string]any {
	edges := g.Edges()
	batch := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		var end any
		if e.End != nil {
			end = e.End.UTC()
		}
		batch = append(batch, map[string]any{
			"edge_id":           int64(e.ID),
			"source":            e.Source,
			"destination":       e.Destination,
			"transport":         string(e.Transport),
			"source_port":       portParam(e.SourcePort),
			"destination_port":  portParam(e.DestinationPort),
			"source_ports":      portsParam(e.SourcePorts),
			"destination_ports": portsParam(e.DestinationPorts),
			"event_start":       e.Start.UTC(),
			"event_end":         end,
			"attribution_label": e.Label,
			"count":             int64(e.Count),
		})
	}
	return batch
}

func portParam(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func portsParam(ports []int) any {
	if len(ports) == 0 {
		return nil
	}
	out := make([]int64, len(ports))
	for i, p := range ports {
		out[i] = int64(p)
	}
	return out
}

// recordToEdge reads one row of CypherLoadTransports
func recordToEdge(record *neo4j.Record) (attribution.FlowEdge, error) {
	var e attribution.FlowEdge
	var err error

	if e.Source, _, err = neo4j.GetRecordValue[string](record, "source"); err != nil {
		return e, err
	}
	if e.Destination, _, err = neo4j.GetRecordValue[string](record, "destination"); err != nil {
		return e, err
	}
	if e.Start, _, err = neo4j.GetRecordValue[time.Time](record, "event_start"); err != nil {
		return e, err
	}

	transport, _ := record.Get("transport")
	if s, ok := transport.(string); ok {
		e.Transport = attribution.ParseTransport(s)
	}
	sport, _ := record.Get("source_port")
	e.SourcePort = portValue(sport)
	dport, _ := record.Get("destination_port")
	e.DestinationPort = portValue(dport)
	sports, _ := record.Get("source_ports")
	e.SourcePorts = portsValue(sports)
	dports, _ := record.Get("destination_ports")
	e.DestinationPorts = portsValue(dports)

	if end, _ := record.Get("event_end"); end != nil {
		if t, ok := end.(time.Time); ok {
			t = t.UTC()
			e.End = &t
		}
	}
	label, _ := record.Get("attribution_label")
	e.Label, _ = label.(string)
	if count, _ := record.Get("count"); count != nil {
		if c, ok := count.(int64); ok {
			e.Count = int(c)
		}
	}
	e.Start = e.Start.UTC()

	return e, nil
}

func portValue(v any) *int {
	n, ok := v.(int64)
	if !ok {
		return nil
	}
	p := int(n)
	return &p
}

func portsValue(v any) []int {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		if n, ok := item.(int64); ok {
			out = append(out, int(n))
		}
	}
	return out
}
