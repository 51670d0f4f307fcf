package streaming

import (
	"context"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/domain/models"
)

// EventBusPublisher implements services.EventPublisher using the EventBus
type EventBusPublisher struct {
	eventBus *EventBus
}

// NewEventBusPublisher creates a new publisher adapter
func NewEventBusPublisher(eventBus *EventBus) *EventBusPublisher {
	return &EventBusPublisher{eventBus: eventBus}
}

// PublishRunCompleted publishes a finished attribution run
func (p *EventBusPublisher) PublishRunCompleted(ctx context.Context, summary *models.RunSummary) error {
	return p.eventBus.Publish(ctx, NewRunCompletedEvent(summary))
}

// PublishChainReconstructed publishes one reconstructed chain of an actor
func (p *EventBusPublisher) PublishChainReconstructed(ctx context.Context, actor string, session models.Timeframe, chain []attribution.FlowPart) error {
	return p.eventBus.Publish(ctx, NewChainEvent(actor, session, chain))
}
