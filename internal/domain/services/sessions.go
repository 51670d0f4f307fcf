package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/pkg/logger"
)

// DefaultSessionMergeGap joins sessions separated by at most this long
const DefaultSessionMergeGap = 300 * time.Second

// OrderEventsToSessions turns connect and disconnect events into sessions.
// Leading disconnects are ignored; of repeated connects the first is kept and
// of repeated disconnects the last; a trailing connect without disconnect is
// dropped. Sessions separated by at most mergeGap are merged into one.
// events is not modified.
func OrderEventsToSessions(events []models.SessionEvent, mergeGap time.Duration) []models.Session {
	sorted := sortEvents(events)

	var bounds []time.Time
	for i, ev := range sorted {
		if len(bounds) == 0 && ev.Type == models.SessionDisconnected {
			continue
		}
		if i+1 < len(sorted) && ev.Type == models.SessionDisconnected && sorted[i+1].Type == models.SessionDisconnected {
			continue
		}
		if i > 0 && ev.Type == models.SessionConnected && sorted[i-1].Type == models.SessionConnected {
			continue
		}
		bounds = append(bounds, ev.Timestamp)
	}
	if len(bounds)%2 != 0 {
		bounds = bounds[:len(bounds)-1]
	}

	var sessions []models.Session
	for i := 0; i < len(bounds); i += 2 {
		start, end := bounds[i], bounds[i+1]
		if n := len(sessions); n > 0 && start.Sub(sessions[n-1].End) <= mergeGap {
			sessions[n-1].End = end
			continue
		}
		sessions = append(sessions, models.Session{Timeframe: models.Timeframe{Start: start, End: end}})
	}
	return sessions
}

// sortEvents orders events by time; at equal times disconnects come first
func sortEvents(events []models.SessionEvent) []models.SessionEvent {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b models.SessionEvent) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.Type == b.Type:
			return 0
		case a.Type == models.SessionDisconnected:
			return -1
		default:
			return 1
		}
	})
	return sorted
}

// CompleteHalfSession adds a connect at start when the events open with a
// disconnect, and a disconnect at end when they close with a connect. The
// result is sorted.
func CompleteHalfSession(events []models.SessionEvent, start, end time.Time) []models.SessionEvent {
	sorted := sortEvents(events)
	if len(sorted) == 0 {
		return sorted
	}
	if first := sorted[0]; first.Type == models.SessionDisconnected {
		sorted = slices.Insert(sorted, 0, models.SessionEvent{
			Actor: first.Actor, World: first.World, Type: models.SessionConnected, Timestamp: start,
		})
	}
	if last := sorted[len(sorted)-1]; last.Type == models.SessionConnected {
		sorted = append(sorted, models.SessionEvent{
			Actor: last.Actor, World: last.World, Type: models.SessionDisconnected, Timestamp: end,
		})
	}
	return sorted
}

// LimitSessions keeps the sessions lying strictly inside timeframe
func LimitSessions(sessions []models.Session, timeframe models.Timeframe) []models.Session {
	var kept []models.Session
	for _, s := range sessions {
		if s.Within(timeframe) {
			kept = append(kept, s)
		}
	}
	return kept
}

// SessionBuilder reads session events and assembles actor sessions
type SessionBuilder struct {
	events   SessionEventStore
	mergeGap time.Duration
	logger   *logger.Logger
}

// NewSessionBuilder creates a session builder
func NewSessionBuilder(events SessionEventStore, mergeGap time.Duration, log *logger.Logger) *SessionBuilder {
	if mergeGap <= 0 {
		mergeGap = DefaultSessionMergeGap
	}
	return &SessionBuilder{
		events:   events,
		mergeGap: mergeGap,
		logger:   log.WithComponent("sessions"),
	}
}

// Sessions returns the sessions of actor lying inside timeframe
func (b *SessionBuilder) Sessions(ctx context.Context, actor *models.Actor, timeframe models.Timeframe) ([]models.Session, error) {
	events, err := b.events.SessionEvents(ctx, actor.World, actor.Name, models.Timeframe{})
	if err != nil {
		return nil, fmt.Errorf("failed to get session events for %s: %w", actor.Name, err)
	}

	valid := events[:0:0]
	for i := range events {
		if err := models.ValidateSessionEvent(&events[i]); err != nil {
			b.logger.Debug().Err(err).Str("actor", actor.Name).Msg("skipping session event")
			continue
		}
		valid = append(valid, events[i])
	}

	sessions := LimitSessions(OrderEventsToSessions(valid, b.mergeGap), timeframe)
	b.logger.Debug().Str("actor", actor.Name).Int("sessions", len(sessions)).Msg("sessions built")
	return sessions, nil
}

// WithCoactors attaches to each session the sessions of every other actor
// connected during it
func (b *SessionBuilder) WithCoactors(ctx context.Context, actor *models.Actor, sessions []models.Session) error {
	for i := range sessions {
		s := &sessions[i]
		names, err := b.events.ConnectedActors(ctx, actor.World, s.Timeframe)
		if err != nil {
			return fmt.Errorf("failed to get connected actors: %w", err)
		}
		for _, name := range names {
			if name == actor.Name {
				continue
			}
			events, err := b.events.SessionEvents(ctx, actor.World, name, s.Timeframe)
			if err != nil {
				return fmt.Errorf("failed to get session events for %s: %w", name, err)
			}
			completed := CompleteHalfSession(events, s.Start, s.End)
			var coSessions []models.Timeframe
			for _, cs := range OrderEventsToSessions(completed, b.mergeGap) {
				coSessions = append(coSessions, cs.Timeframe)
			}
			s.Coactors = append(s.Coactors, models.CoactorSessions{Actor: name, Sessions: coSessions})
		}
	}
	return nil
}
