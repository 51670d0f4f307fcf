package services

import (
	"context"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/domain/models"
)

// FlowRecordStore delivers raw connection events
type FlowRecordStore interface {
	// Name identifies the store in logs and metrics
	Name() string

	// RecordsInWindow returns every record that starts and ends inside window
	RecordsInWindow(ctx context.Context, window models.Timeframe) ([]models.FlowRecord, error)

	// RecordsBetween returns the records from source to destination that
	// start and end inside window, ordered by start
	RecordsBetween(ctx context.Context, source, destination string, window models.Timeframe) ([]models.FlowRecord, error)
}

// ConntrackStore delivers connections tracked at the VPN gateway
type ConntrackStore interface {
	// Pivots returns the connections the actor opened through root during window
	Pivots(ctx context.Context, gateway, actorIP, root string, window models.Timeframe) ([]models.PivotRecord, error)

	// TargetHosts returns the distinct hosts the actor reached through root during window
	TargetHosts(ctx context.Context, gateway, actorIP, root string, window models.Timeframe) ([]string, error)
}

// SessionEventStore delivers VPN connect and disconnect events
type SessionEventStore interface {
	// SessionEvents returns the events of one actor. A zero window means all time.
	SessionEvents(ctx context.Context, world, actor string, window models.Timeframe) ([]models.SessionEvent, error)

	// ConnectedActors returns the actors with at least one event inside window
	ConnectedActors(ctx context.Context, world string, window models.Timeframe) ([]string, error)
}

// ActorStore resolves actors
type ActorStore interface {
	// GetActor returns nil, nil when the actor does not exist
	GetActor(ctx context.Context, name string) (*models.Actor, error)
	ListActors(ctx context.Context) ([]*models.Actor, error)
}

// GraphStore persists attributed graphs
type GraphStore interface {
	ExportGraph(ctx context.Context, runID string, g *attribution.Graph) error
	ImportGraph(ctx context.Context) (*attribution.Graph, error)
	Stats(ctx context.Context) (*models.GraphStats, error)
}

// RunRecorder keeps run summaries durable
type RunRecorder interface {
	RecordRun(ctx context.Context, summary *models.RunSummary) error
}

// RunCache holds the latest runs and traces for the API
type RunCache interface {
	SaveRun(ctx context.Context, summary *models.RunSummary) error
	LastRun(ctx context.Context) (*models.RunSummary, error)
	RunHistory(ctx context.Context, limit int) ([]models.RunHistoryEntry, error)
	GetTrace(ctx context.Context, key string, dest any) (bool, error)
	SetTrace(ctx context.Context, key string, trace any) error
}

// EventPublisher publishes attribution events
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, summary *models.RunSummary) error
	PublishChainReconstructed(ctx context.Context, actor string, session models.Timeframe, chain []attribution.FlowPart) error
}
