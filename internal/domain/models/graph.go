package models

import "time"

// Graph labels used in Neo4j
const (
	GraphNodeIP  = "IP"
	RelTransport = "TRANSPORT"
)

// GraphStats describes the persisted flow graph
type GraphStats struct {
	TotalNodes              int64            `json:"total_nodes"`
	TotalRelationships      int64            `json:"total_relationships"`
	AttributedRelationships int64            `json:"attributed_relationships"`
	RelationsByLabel        map[string]int64 `json:"relations_by_label"`
	LastUpdated             time.Time        `json:"last_updated"`
}

// Neo4j Cypher query templates. Every value travels as a parameter.
const (
	// Upsert hosts; an existing hostname is kept
	CypherMergeHosts = `
		UNWIND $batch AS h
		MERGE (n:IP {name: h.name})
		ON CREATE SET n.hostname = h.hostname
		ON MATCH SET n.hostname = coalesce(n.hostname, h.hostname)
		RETURN count(n) as created`

	// Create flow edges between existing hosts
	CypherCreateTransports = `
		UNWIND $batch AS e
		MATCH (s:IP {name: e.source}), (d:IP {name: e.destination})
		CREATE (s)-[r:TRANSPORT {
			run_id: $run_id,
			edge_id: e.edge_id,
			name: e.transport,
			source_port: e.source_port,
			destination_port: e.destination_port,
			source_ports: e.source_ports,
			destination_ports: e.destination_ports,
			event_start: e.event_start,
			event_end: e.event_end,
			attribution_label: e.attribution_label,
			count: e.count
		}]->(d)
		RETURN count(r) as created`

	// Load every host
	CypherLoadHosts = `
		MATCH (n:IP)
		RETURN n.name AS name, n.hostname AS hostname
		ORDER BY n.name`

	// Load every flow edge in creation order
	CypherLoadTransports = `
		MATCH (s:IP)-[r:TRANSPORT]->(d:IP)
		RETURN s.name AS source, d.name AS destination, r.name AS transport,
			r.source_port AS source_port, r.destination_port AS destination_port,
			r.source_ports AS source_ports, r.destination_ports AS destination_ports,
			r.event_start AS event_start, r.event_end AS event_end,
			r.attribution_label AS attribution_label, r.count AS count
		ORDER BY r.event_start, r.edge_id`

	// Remove every host and flow edge
	CypherClearGraph = `
		MATCH (n:IP)
		DETACH DELETE n`

	// Relationship counts per attribution label
	CypherTransportsByLabel = `
		MATCH ()-[r:TRANSPORT]->()
		RETURN r.attribution_label AS label, count(r) AS total`
)
