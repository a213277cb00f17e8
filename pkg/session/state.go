package session

import (
	"fmt"
	"strings"
)

// State is a stage of the meshing session.
type State int

const (
	Unbuilt State = iota
	GeometryBuilt
	AnchorsEmbedded
	FieldBound
	Generated
	Optimized
	Refined
	Terminal
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case GeometryBuilt:
		return "geometry-built"
	case AnchorsEmbedded:
		return "anchors-embedded"
	case FieldBound:
		return "field-bound"
	case Generated:
		return "generated"
	case Optimized:
		return "optimized"
	case Refined:
		return "refined"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateError reports an operation attempted out of order.
type StateError struct {
	Op      string
	State   State
	Allowed []State
}

func (e *StateError) Error() string {
	names := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		names[i] = s.String()
	}
	return fmt.Sprintf("%s: not allowed in state %s (allowed: %s)", e.Op, e.State, strings.Join(names, ", "))
}

// require returns a StateError unless the session is in one of allowed.
func (s *Session) require(op string, allowed ...State) error {
	for _, a := range allowed {
		if s.state == a {
			return nil
		}
	}
	return &StateError{Op: op, State: s.state, Allowed: allowed}
}
