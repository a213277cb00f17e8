package grid

import (
	"context"
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// subSamples is the number of quadrature points per interval between two
// mandatory coordinates.
const subSamples = 32

// errCellLimit reports an axis that needs more cells than allowed.
var errCellLimit = errors.New("cell limit exceeded")

// sizeFunc evaluates the element size at p.
type sizeFunc func(p r3.Vec) (float64, error)

func component(p r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	}
	return p.Z
}

func withComponent(p r3.Vec, axis int, v float64) r3.Vec {
	switch axis {
	case 0:
		p.X = v
	case 1:
		p.Y = v
	default:
		p.Z = v
	}
	return p
}

// uniqueSorted sorts vs and drops values closer than tol to their
// predecessor.
func uniqueSorted(vs []float64, tol float64) []float64 {
	sort.Float64s(vs)
	out := vs[:0]
	for _, v := range vs {
		if len(out) > 0 && v-out[len(out)-1] <= tol {
			continue
		}
		out = append(out, v)
	}
	return out
}

// probes returns the mandatory coordinates plus n uniform samples in
// [lo, hi].
func probes(mandatory []float64, lo, hi float64, n int, tol float64) []float64 {
	vs := append([]float64(nil), mandatory...)
	for i := 0; i < n; i++ {
		vs = append(vs, lo+(hi-lo)*float64(i)/float64(n-1))
	}
	return uniqueSorted(vs, tol)
}

// gradeAxis places node coordinates along one axis. Every mandatory
// coordinate becomes a node. Between two of them nodes are spaced so that
// the integral of 1/h between neighbours is one cell, where h is the
// smallest size over the probe plane at that coordinate. Grading stops with
// errCellLimit once the axis would hold more than limit cells.
func gradeAxis(ctx context.Context, axis int, mandatory []float64, plane [2][]float64, h sizeFunc, limit int) ([]float64, error) {
	u, v := (axis+1)%3, (axis+2)%3
	planeMin := func(x float64) (float64, error) {
		best := math.Inf(1)
		for _, a := range plane[0] {
			for _, b := range plane[1] {
				var p r3.Vec
				p = withComponent(p, axis, x)
				p = withComponent(p, u, a)
				p = withComponent(p, v, b)
				s, err := h(p)
				if err != nil {
					return 0, err
				}
				best = math.Min(best, s)
			}
		}
		return best, nil
	}

	nodes := []float64{mandatory[0]}
	for i := 0; i+1 < len(mandatory); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c0, c1 := mandatory[i], mandatory[i+1]
		dx := (c1 - c0) / subSamples
		var cum [subSamples + 1]float64
		var w [subSamples]float64
		for m := 0; m < subSamples; m++ {
			hm, err := planeMin(c0 + (float64(m)+0.5)*dx)
			if err != nil {
				return nil, err
			}
			w[m] = dx / hm
			cum[m+1] = cum[m] + w[m]
		}
		total := cum[subSamples]
		cells := math.Ceil(total * (1 - 1e-9))
		if !(float64(len(nodes)-1)+cells <= float64(limit)) {
			return nil, errCellLimit
		}
		n := int(cells)
		if n < 1 {
			n = 1
		}
		m := 0
		for k := 1; k < n; k++ {
			target := float64(k) * total / float64(n)
			for m < subSamples-1 && cum[m+1] < target {
				m++
			}
			nodes = append(nodes, c0+(float64(m)+(target-cum[m])/w[m])*dx)
		}
		nodes = append(nodes, c1)
	}
	return nodes, nil
}
