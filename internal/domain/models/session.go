package models

import (
	"fmt"
	"time"
)

// Timeframe is the half-open interval [Start, End)
type Timeframe struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// NewTimeframe creates a timeframe. A zero start means the Unix epoch and a
// zero end means now.
func NewTimeframe(start, end time.Time) Timeframe {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return Timeframe{Start: start, End: end}
}

// Contains reports whether t falls inside the timeframe
func (tf Timeframe) Contains(t time.Time) bool {
	return !t.Before(tf.Start) && t.Before(tf.End)
}

// Overlaps reports whether both timeframes share at least one instant
func (tf Timeframe) Overlaps(other Timeframe) bool {
	return tf.Start.Before(other.End) && other.Start.Before(tf.End)
}

// Within reports whether the timeframe lies strictly inside other
func (tf Timeframe) Within(other Timeframe) bool {
	return other.Start.Before(tf.Start) && tf.End.Before(other.End)
}

// Duration returns the length of the timeframe
func (tf Timeframe) Duration() time.Duration {
	return tf.End.Sub(tf.Start)
}

// Valid reports whether the timeframe is non-empty
func (tf Timeframe) Valid() bool {
	return tf.End.After(tf.Start)
}

func (tf Timeframe) String() string {
	return fmt.Sprintf("%s - %s", tf.Start.Format(time.RFC3339), tf.End.Format(time.RFC3339))
}

// Session is a period during which an actor was connected
type Session struct {
	Timeframe
	Coactors []CoactorSessions `json:"coactors,omitempty"`
}

// CoactorSessions are the sessions of another actor connected at the same time
type CoactorSessions struct {
	Actor    string      `json:"actor"`
	Sessions []Timeframe `json:"sessions"`
}

// SessionEventType is a VPN connection event
type SessionEventType string

const (
	SessionConnected    SessionEventType = "client-connected"
	SessionDisconnected SessionEventType = "client-disconnected"
)

// SessionEvent is a VPN connect or disconnect of an actor
type SessionEvent struct {
	Actor     string           `json:"actor" yaml:"actor" validate:"required"`
	Type      SessionEventType `json:"type" yaml:"type" validate:"required,oneof=client-connected client-disconnected"`
	Timestamp time.Time        `json:"timestamp" yaml:"timestamp"`
	World     string           `json:"world,omitempty" yaml:"world"`
}
