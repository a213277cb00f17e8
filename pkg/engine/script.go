package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/session"
)

// StepKind identifies a deferred mesh operation.
type StepKind int

const (
	StepGenerate StepKind = iota
	StepOptimize
	StepRefine
	StepWrite
)

func (k StepKind) String() string {
	switch k {
	case StepGenerate:
		return "generate"
	case StepOptimize:
		return "optimize"
	case StepRefine:
		return "refine"
	case StepWrite:
		return "write"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Step is a mesh operation recorded during evaluation and executed by
// Script.Run. Only the field matching Kind is set.
type Step struct {
	Kind   StepKind
	Dim    int
	Passes []session.Pass
	Path   string
}

// Script is the outcome of evaluating a session script: a session whose
// geometry, embeddings and sizing field are in place, plus the mesh steps
// still to run.
type Script struct {
	Session *session.Session
	Steps   []Step
}

// Run executes the recorded steps in order and stops at the first error.
func (sc *Script) Run(ctx context.Context) error {
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch st.Kind {
		case StepGenerate:
			err = sc.Session.Generate(ctx, st.Dim)
		case StepOptimize:
			err = sc.Session.Optimize(ctx, st.Passes...)
		case StepRefine:
			err = sc.Session.Refine(ctx)
		case StepWrite:
			err = sc.Session.Write(st.Path)
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, st.Kind, err)
		}
	}
	return nil
}

// Writes reports whether any step writes the mesh.
func (sc *Script) Writes() bool {
	for _, st := range sc.Steps {
		if st.Kind == StepWrite {
			return true
		}
	}
	return false
}

// scriptState is what the builtins of one evaluation share. Geometry goes
// into a scratch store that the session adopts as soon as the script moves
// on to embeddings or fields.
type scriptState struct {
	sess    *session.Session
	store   *geom.Store
	pending []session.Embedding
	steps   []Step
}

func newScriptState(sess *session.Session) *scriptState {
	return &scriptState{sess: sess, store: geom.NewStore()}
}

// geometry returns the scratch store while geometry may still be added.
func (st *scriptState) geometry() (*geom.Store, error) {
	if st.sess.State() != session.Unbuilt {
		return nil, errors.New("geometry is closed once embeddings or fields are declared")
	}
	return st.store, nil
}

// commit hands the scratch store to the session.
func (st *scriptState) commit() error {
	if st.sess.State() != session.Unbuilt {
		return nil
	}
	return st.sess.Adopt(st.store)
}

// embed registers the pending embeddings and validates the geometry.
func (st *scriptState) embed() error {
	if err := st.commit(); err != nil {
		return err
	}
	if st.sess.State() != session.GeometryBuilt {
		if len(st.pending) > 0 {
			return errors.New("embed: anchors must be embedded before the field is bound")
		}
		return nil
	}
	pending := st.pending
	st.pending = nil
	return st.sess.EmbedAll(pending...)
}

// finish flushes what the script declared but did not close itself.
func (st *scriptState) finish() error {
	if st.sess.State() == session.Unbuilt && st.empty() {
		return nil
	}
	if err := st.commit(); err != nil {
		return err
	}
	if len(st.pending) > 0 {
		return st.embed()
	}
	return nil
}

func (st *scriptState) empty() bool {
	for _, d := range []geom.Dim{geom.DimPoint, geom.DimCurve, geom.DimSurface, geom.DimVolume} {
		if st.store.EntityCount(d) > 0 {
			return false
		}
	}
	return true
}

func (st *scriptState) script() *Script {
	return &Script{Session: st.sess, Steps: st.steps}
}
