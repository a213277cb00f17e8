package field

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Oracle binds one node of a graph as the background field and answers
// size queries through the clamp policy. Binding and policy may be replaced
// until Freeze; afterwards the oracle is read only and safe for concurrent
// use.
type Oracle struct {
	graph *Graph

	background NodeID
	clamp      *ClampPolicy
	frozen     bool
}

// NewOracle creates an unbound oracle over g.
func NewOracle(g *Graph) *Oracle {
	return &Oracle{graph: g}
}

// Graph returns the underlying graph.
func (o *Oracle) Graph() *Graph { return o.graph }

// SetBackground replaces the active background binding.
func (o *Oracle) SetBackground(id NodeID) error {
	if o.frozen {
		return ErrFrozen
	}
	if _, ok := o.graph.Node(id); !ok {
		return graphErr(id, "cannot bind missing node as background")
	}
	o.background = id
	return nil
}

// Bind sets the background node and the clamp policy together. Either both
// are replaced or, on error, neither is.
func (o *Oracle) Bind(id NodeID, min, max, floor float64) error {
	if o.frozen {
		return ErrFrozen
	}
	if _, ok := o.graph.Node(id); !ok {
		return graphErr(id, "cannot bind missing node as background")
	}
	c, err := NewClampPolicy(min, max, floor)
	if err != nil {
		return err
	}
	o.background, o.clamp = id, &c
	return nil
}

// Background returns the bound node, if any.
func (o *Oracle) Background() (NodeID, bool) {
	return o.background, o.background != 0
}

// SetClampPolicy replaces the clamp policy after validating it.
func (o *Oracle) SetClampPolicy(min, max, floor float64) error {
	if o.frozen {
		return ErrFrozen
	}
	c, err := NewClampPolicy(min, max, floor)
	if err != nil {
		return err
	}
	o.clamp = &c
	return nil
}

// ClampPolicy returns the active policy, if any.
func (o *Oracle) ClampPolicy() (ClampPolicy, bool) {
	if o.clamp == nil {
		return ClampPolicy{}, false
	}
	return *o.clamp, true
}

// Bound reports whether a background node is bound.
func (o *Oracle) Bound() bool { return o.background != 0 }

// Freeze makes the binding, the policy and the graph immutable.
func (o *Oracle) Freeze() {
	o.frozen = true
	o.graph.Freeze()
}

// Raw evaluates the background node without clamping. It returns false
// when nothing is bound.
func (o *Oracle) Raw(p r3.Vec) (float64, bool) {
	if o.background == 0 {
		return 0, false
	}
	n, _ := o.graph.Node(o.background)
	return n.Evaluate(p), true
}

// Size is the authoritative size at p: the clamped background value. It
// returns false when no background is bound.
func (o *Oracle) Size(p r3.Vec) (float64, bool) {
	v, ok := o.Raw(p)
	if !ok {
		return 0, false
	}
	return o.ClampValue(v), true
}

// ClampValue applies the clamp policy, or returns v when none is set.
func (o *Oracle) ClampValue(v float64) float64 {
	if o.clamp == nil {
		return v
	}
	return o.clamp.Apply(v)
}

// SizeMany evaluates Size at every position in parallel. Results are in
// input order. Unbound oracles yield zeros.
func (o *Oracle) SizeMany(ctx context.Context, ps []r3.Vec) ([]float64, error) {
	out := make([]float64, len(ps))
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(ps) + workers - 1) / workers
	if chunk < 256 {
		chunk = 256
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(ps); lo += chunk {
		lo, hi := lo, min(lo+chunk, len(ps))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				out[i], _ = o.Size(ps[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Sample is one probe of a size profile.
type Sample struct {
	Pos    r3.Vec
	Offset float64 // distance from the profile start
	Raw    float64
	Size   float64
}

// Profile probes the oracle at n evenly spaced points from a to b. Without a
// bound background every Raw and Size is zero.
func (o *Oracle) Profile(a, b r3.Vec, n int) []Sample {
	if n < 2 {
		n = 2
	}
	length := r3.Norm(r3.Sub(b, a))
	out := make([]Sample, n)
	for i := range out {
		t := float64(i) / float64(n-1)
		p := r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
		out[i] = Sample{Pos: p, Offset: t * length}
		if raw, ok := o.Raw(p); ok {
			out[i].Raw, out[i].Size = raw, o.ClampValue(raw)
		}
	}
	return out
}
