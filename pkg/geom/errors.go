package geom

import (
	"errors"
	"fmt"
)

// ErrFrozen is returned by mutating calls once the store has been frozen
// for generation.
var ErrFrozen = errors.New("geom: store is frozen")

// TopologyError reports a malformed boundary reference. No entity is
// registered by the call that returns it.
type TopologyError struct {
	Op      string // store operation, e.g. "AddCurveLoop"
	Ref     Ref    // offending reference, zero if not applicable
	Message string
}

func (e *TopologyError) Error() string {
	if e.Ref.Tag == 0 {
		return fmt.Sprintf("topology: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("topology: %s: %s %s: %s", e.Op, e.Ref.Dim, e.Ref, e.Message)
}

func topoErr(op string, ref Ref, format string, args ...any) error {
	return &TopologyError{Op: op, Ref: ref, Message: fmt.Sprintf(format, args...)}
}

// EmbeddingError reports a rejected embedding. The embedding table is left
// unchanged.
type EmbeddingError struct {
	Anchor  Ref
	Host    Ref
	Message string
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: anchor %s in host %s: %s", e.Anchor, e.Host, e.Message)
}

func embedErr(anchor, host Ref, format string, args ...any) error {
	return &EmbeddingError{Anchor: anchor, Host: host, Message: fmt.Sprintf(format, args...)}
}
