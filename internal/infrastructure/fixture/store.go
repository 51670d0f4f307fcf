// Package fixture serves flow records, conntrack events, session events and
// actors from a YAML file. It backs demos and tests without a database.
package fixture

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"flowattr-lab/internal/domain/models"
)

// ConntrackEntry is a pivot observed by a gateway agent
type ConntrackEntry struct {
	models.PivotRecord `yaml:",inline"`

	Gateway string `yaml:"gateway"`
}

// Document is the fixture file layout
type Document struct {
	Flows     []models.FlowRecord   `yaml:"flows"`
	Conntrack []ConntrackEntry      `yaml:"conntrack"`
	Sessions  []models.SessionEvent `yaml:"sessions"`
	Actors    []models.Actor        `yaml:"actors"`
}

// Store is an in-memory store loaded from a fixture document
type Store struct {
	doc Document
}

// Load reads a fixture file
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fixture document
func Parse(data []byte) (*Store, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fixture YAML: %w", err)
	}
	return NewStore(doc), nil
}

// NewStore creates a store over doc
func NewStore(doc Document) *Store {
	sort.SliceStable(doc.Flows, func(i, j int) bool { return doc.Flows[i].Start.Before(doc.Flows[j].Start) })
	sort.SliceStable(doc.Conntrack, func(i, j int) bool { return doc.Conntrack[i].Timestamp.Before(doc.Conntrack[j].Timestamp) })
	sort.SliceStable(doc.Sessions, func(i, j int) bool { return doc.Sessions[i].Timestamp.Before(doc.Sessions[j].Timestamp) })
	return &Store{doc: doc}
}

// Name identifies the store
func (s *Store) Name() string {
	return "fixture"
}

func bounds(tf models.Timeframe) models.Timeframe {
	if tf.Start.IsZero() && tf.End.IsZero() {
		return models.Timeframe{Start: time.Unix(0, 0).UTC(), End: time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)}
	}
	return tf
}

func inWindow(rec *models.FlowRecord, window models.Timeframe) bool {
	if !window.Contains(rec.Start) {
		return false
	}
	return rec.End == nil || !rec.End.After(window.End)
}

// RecordsInWindow returns the records that start and end inside window
func (s *Store) RecordsInWindow(_ context.Context, window models.Timeframe) ([]models.FlowRecord, error) {
	window = bounds(window)
	var out []models.FlowRecord
	for i := range s.doc.Flows {
		if inWindow(&s.doc.Flows[i], window) {
			out = append(out, s.doc.Flows[i])
		}
	}
	return out, nil
}

// RecordsBetween returns the records from source to destination inside window
func (s *Store) RecordsBetween(_ context.Context, source, destination string, window models.Timeframe) ([]models.FlowRecord, error) {
	window = bounds(window)
	var out []models.FlowRecord
	for i := range s.doc.Flows {
		rec := &s.doc.Flows[i]
		if rec.SourceIP == source && rec.DestinationIP == destination && inWindow(rec, window) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *Store) pivotsThrough(gateway, actorIP, root string, window models.Timeframe) []models.PivotRecord {
	window = bounds(window)
	var out []models.PivotRecord
	for _, e := range s.doc.Conntrack {
		if e.Gateway != gateway || e.ActorIP != actorIP || e.Destination != root || e.Target == root {
			continue
		}
		if window.Contains(e.Timestamp) {
			out = append(out, e.PivotRecord)
		}
	}
	return out
}

// Pivots returns the connections the actor opened through root
func (s *Store) Pivots(_ context.Context, gateway, actorIP, root string, window models.Timeframe) ([]models.PivotRecord, error) {
	return s.pivotsThrough(gateway, actorIP, root, window), nil
}

// TargetHosts returns the distinct hosts the actor reached through root,
// first reached first
func (s *Store) TargetHosts(_ context.Context, gateway, actorIP, root string, window models.Timeframe) ([]string, error) {
	var targets []string
	for _, p := range s.pivotsThrough(gateway, actorIP, root, window) {
		if !slices.Contains(targets, p.Target) {
			targets = append(targets, p.Target)
		}
	}
	return targets, nil
}

// SessionEvents returns the events of actor in world, oldest first
func (s *Store) SessionEvents(_ context.Context, world, actor string, window models.Timeframe) ([]models.SessionEvent, error) {
	window = bounds(window)
	var out []models.SessionEvent
	for _, e := range s.doc.Sessions {
		if e.World == world && e.Actor == actor && window.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ConnectedActors returns the actors with an event inside window
func (s *Store) ConnectedActors(_ context.Context, world string, window models.Timeframe) ([]string, error) {
	window = bounds(window)
	var actors []string
	for _, e := range s.doc.Sessions {
		if e.World == world && window.Contains(e.Timestamp) && !slices.Contains(actors, e.Actor) {
			actors = append(actors, e.Actor)
		}
	}
	slices.Sort(actors)
	return actors, nil
}

// GetActor returns nil when the actor is unknown
func (s *Store) GetActor(_ context.Context, name string) (*models.Actor, error) {
	for i := range s.doc.Actors {
		if s.doc.Actors[i].Name == name {
			a := s.doc.Actors[i]
			return &a, nil
		}
	}
	return nil, nil
}

// ListActors returns every actor
func (s *Store) ListActors(_ context.Context) ([]*models.Actor, error) {
	out := make([]*models.Actor, 0, len(s.doc.Actors))
	for i := range s.doc.Actors {
		a := s.doc.Actors[i]
		out = append(out, &a)
	}
	return out, nil
}
