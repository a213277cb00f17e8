package field

import (
	"errors"
	"fmt"
)

// ErrFrozen is returned when the graph or oracle is modified after
// generation has started.
var ErrFrozen = errors.New("field: sizing field is frozen")

// ConfigError reports invalid numeric parameters, most importantly an
// inconsistent clamp policy.
type ConfigError struct {
	Param   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Param, e.Message)
}

func configErr(param, format string, args ...any) error {
	return &ConfigError{Param: param, Message: fmt.Sprintf(format, args...)}
}

// GraphError reports a dangling, forward or cyclic node reference.
type GraphError struct {
	Node    NodeID // offending node, zero if not yet assigned
	Message string
}

func (e *GraphError) Error() string {
	if e.Node == 0 {
		return "field graph: " + e.Message
	}
	return fmt.Sprintf("field graph: node %d: %s", e.Node, e.Message)
}

func graphErr(id NodeID, format string, args ...any) error {
	return &GraphError{Node: id, Message: fmt.Sprintf(format, args...)}
}
