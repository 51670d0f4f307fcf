package attribution

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEdge is matched by every *InvalidEdgeError
	ErrInvalidEdge = errors.New("invalid flow edge")
	// ErrEdgeNotFound is returned when an edge ID is not part of the graph
	ErrEdgeNotFound = errors.New("flow edge not found")
	// ErrHostNotFound is returned when a host ID is not part of the graph
	ErrHostNotFound = errors.New("host not found")
)

// InvalidEdgeError reports an edge insertion that references unknown hosts.
// Callers skip the offending record and keep ingesting.
type InvalidEdgeError struct {
	Source      string
	Destination string
	Missing     []string
}

func (e *InvalidEdgeError) Error() string {
	return fmt.Sprintf("invalid flow edge %s -> %s: unknown host(s) %v", e.Source, e.Destination, e.Missing)
}

// Is makes errors.Is(err, ErrInvalidEdge) hold
func (e *InvalidEdgeError) Is(target error) bool {
	return target == ErrInvalidEdge
}
