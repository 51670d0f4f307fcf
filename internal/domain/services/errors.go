package services

import "errors"

var (
	// ErrRunInProgress is returned when an attribution run is already active
	ErrRunInProgress = errors.New("attribution run already in progress")
	// ErrNoGraph is returned when no attributed graph is available yet
	ErrNoGraph = errors.New("no attributed graph available")
	// ErrActorNotFound is returned when tracing an unknown actor
	ErrActorNotFound = errors.New("actor not found")
	// ErrNoRecordStore is returned when no flow record store is configured
	ErrNoRecordStore = errors.New("no flow record store configured")
)
