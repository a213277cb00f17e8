package engine

import (
	"errors"
	"fmt"
	"time"
)

// EvalTimeout is the default limit for a single evaluation. Mesh steps run
// after evaluation and are not bound by it.
const EvalTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when an evaluation exceeds the engine timeout.
	ErrTimeout = errors.New("evaluation timed out")
	// ErrSuperseded is returned for an evaluation overtaken by a newer one.
	ErrSuperseded = errors.New("evaluation superseded by newer request")
)

type evalResult struct {
	script *Script
	errors []EvalError
	err    error
}

// await blocks until the evaluation tagged gen reports on ch or the engine
// timeout fires. The goroutine behind a timed-out evaluation keeps running;
// ch is buffered so its late send does not block.
func (e *Engine) await(ch <-chan evalResult, gen uint64) (*Script, []EvalError, error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if e.current() != gen {
			return nil, nil, ErrSuperseded
		}
		return res.script, res.errors, res.err
	case <-timer.C:
		return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	}
}

func (e *Engine) current() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}
