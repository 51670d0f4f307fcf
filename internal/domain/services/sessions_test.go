package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/pkg/logger"
)

func connect(sec int) models.SessionEvent {
	return models.SessionEvent{Actor: "alice", Type: models.SessionConnected, Timestamp: at(sec)}
}

func disconnect(sec int) models.SessionEvent {
	return models.SessionEvent{Actor: "alice", Type: models.SessionDisconnected, Timestamp: at(sec)}
}

func frames(sessions []models.Session) [][2]int {
	out := make([][2]int, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, [2]int{int(s.Start.Sub(t0).Seconds()), int(s.End.Sub(t0).Seconds())})
	}
	return out
}

func TestOrderEventsToSessions(t *testing.T) {
	tests := []struct {
		name   string
		events []models.SessionEvent
		gap    time.Duration
		want   [][2]int
	}{
		{"single session", []models.SessionEvent{connect(0), disconnect(100)}, 0, [][2]int{{0, 100}}},
		{"unordered input", []models.SessionEvent{disconnect(100), connect(0)}, 0, [][2]int{{0, 100}}},
		{"leading disconnect ignored", []models.SessionEvent{disconnect(0), connect(10), disconnect(20)}, 0, [][2]int{{10, 20}}},
		{"repeated connect keeps first", []models.SessionEvent{connect(0), connect(10), disconnect(20)}, 0, [][2]int{{0, 20}}},
		{"repeated disconnect keeps last", []models.SessionEvent{connect(0), disconnect(10), disconnect(20)}, 0, [][2]int{{0, 20}}},
		{"trailing connect dropped", []models.SessionEvent{connect(0), disconnect(10), connect(1000)}, 0, [][2]int{{0, 10}}},
		{"merged within gap", []models.SessionEvent{connect(0), disconnect(10), connect(310), disconnect(400)}, DefaultSessionMergeGap, [][2]int{{0, 400}}},
		{"kept apart beyond gap", []models.SessionEvent{connect(0), disconnect(10), connect(311), disconnect(400)}, DefaultSessionMergeGap, [][2]int{{0, 10}, {311, 400}}},
		{"disconnect first on ties", []models.SessionEvent{connect(0), connect(10), disconnect(10), disconnect(20)}, -time.Second, [][2]int{{0, 10}, {10, 20}}},
		{"no events", nil, 0, [][2]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, frames(OrderEventsToSessions(tt.events, tt.gap)))
		})
	}
}

func TestOrderEventsToSessions_InputUntouched(t *testing.T) {
	events := []models.SessionEvent{disconnect(100), connect(0)}

	OrderEventsToSessions(events, 0)

	assert.Equal(t, models.SessionDisconnected, events[0].Type)
}

func TestCompleteHalfSession(t *testing.T) {
	events := CompleteHalfSession([]models.SessionEvent{connect(20), disconnect(10)}, at(0), at(100))

	require.Len(t, events, 4)
	assert.Equal(t, connect(0), events[0])
	assert.Equal(t, disconnect(10), events[1])
	assert.Equal(t, connect(20), events[2])
	assert.Equal(t, disconnect(100), events[3])

	assert.Empty(t, CompleteHalfSession(nil, at(0), at(100)))

	whole := CompleteHalfSession([]models.SessionEvent{connect(10), disconnect(20)}, at(0), at(100))
	assert.Len(t, whole, 2)
}

func TestLimitSessions(t *testing.T) {
	sessions := []models.Session{
		{Timeframe: models.Timeframe{Start: at(0), End: at(10)}},
		{Timeframe: models.Timeframe{Start: at(20), End: at(30)}},
		{Timeframe: models.Timeframe{Start: at(40), End: at(60)}},
	}

	kept := LimitSessions(sessions, models.Timeframe{Start: at(0), End: at(50)})

	assert.Equal(t, [][2]int{{20, 30}}, frames(kept))
}

func TestSessionBuilder_SkipsInvalidEvents(t *testing.T) {
	store := &fakeSessionEvents{events: []models.SessionEvent{
		connect(0),
		{Actor: "alice", Type: "client-reconnected", Timestamp: at(5)},
		{Actor: "alice", Type: models.SessionDisconnected},
		disconnect(100),
	}}
	b := NewSessionBuilder(store, 0, logger.NewNop())

	sessions, err := b.Sessions(context.Background(), &models.Actor{Name: "alice"}, models.Timeframe{Start: at(-1), End: at(101)})
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{0, 100}}, frames(sessions))
}

func TestSessionBuilder_WithCoactorsCompletesHalfSessions(t *testing.T) {
	store := &fakeSessionEvents{events: []models.SessionEvent{
		connect(0),
		disconnect(100),
		{Actor: "bob", Type: models.SessionDisconnected, Timestamp: at(30)},
		{Actor: "carol", Type: models.SessionConnected, Timestamp: at(60)},
	}}
	b := NewSessionBuilder(store, time.Second, logger.NewNop())
	actor := &models.Actor{Name: "alice"}

	sessions := []models.Session{{Timeframe: models.Timeframe{Start: at(0), End: at(100)}}}
	require.NoError(t, b.WithCoactors(context.Background(), actor, sessions))

	require.Len(t, sessions[0].Coactors, 2)
	assert.Equal(t, models.CoactorSessions{
		Actor:    "bob",
		Sessions: []models.Timeframe{{Start: at(0), End: at(30)}},
	}, sessions[0].Coactors[0])
	assert.Equal(t, models.CoactorSessions{
		Actor:    "carol",
		Sessions: []models.Timeframe{{Start: at(60), End: at(100)}},
	}, sessions[0].Coactors[1])
}
