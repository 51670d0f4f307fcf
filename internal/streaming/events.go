package streaming

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/domain/models"
)

// EventType represents the type of attribution event
type EventType string

const (
	EventTypeRunCompleted       EventType = "run.completed"
	EventTypeChainReconstructed EventType = "chain.reconstructed"
)

// Event is an attribution update delivered over NATS and WebSocket
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Set for run.completed
	Run *models.RunSummary `json:"run,omitempty"`

	// Set for chain.reconstructed
	Actor   string                 `json:"actor,omitempty"`
	Session *models.Timeframe      `json:"session,omitempty"`
	Chain   []attribution.FlowPart `json:"chain,omitempty"`
}

// NewRunCompletedEvent wraps a finished run
func NewRunCompletedEvent(summary *models.RunSummary) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeRunCompleted,
		Timestamp: time.Now().UTC(),
		Run:       summary,
	}
}

// NewChainEvent wraps a chain reconstructed for actor during session
func NewChainEvent(actor string, session models.Timeframe, chain []attribution.FlowPart) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeChainReconstructed,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Session:   &session,
		Chain:     chain,
	}
}

// Subscription represents a client's subscription preferences
type Subscription struct {
	// Filter by event type (empty = all)
	Types []EventType `json:"types,omitempty"`

	// Filter chain events by actor (empty = all)
	Actors []string `json:"actors,omitempty"`
}

// Matches checks if an event matches the subscription filters
func (s *Subscription) Matches(event *Event) bool {
	if s == nil {
		return true
	}
	if len(s.Types) > 0 && !slices.Contains(s.Types, event.Type) {
		return false
	}
	if len(s.Actors) > 0 && event.Type == EventTypeChainReconstructed && !slices.Contains(s.Actors, event.Actor) {
		return false
	}
	return true
}
