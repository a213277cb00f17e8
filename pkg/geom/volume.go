package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Ray directions used for parity tests; generic so that rays rarely graze
// edges of axis aligned models.
var probeDirs = [3]r3.Vec{
	{X: 0.5773, Y: 0.5891, Z: 0.5654},
	{X: -0.3101, Y: 0.8412, Z: -0.4429},
	{X: 0.7071, Y: -0.1913, Z: -0.6806},
}

// Contains reports whether p lies in the closure of host within tol: on a
// curve, on a surface, or inside or on the boundary of a volume. A point
// host contains only coincident positions.
func (s *Store) Contains(host Ref, p r3.Vec, tol float64) bool {
	switch host.Dim {
	case DimPoint:
		pd, ok := s.Point(host.Tag)
		return ok && r3.Norm(r3.Sub(p, pd.Pos)) <= tol
	case DimCurve:
		c, ok := s.curves[host.Tag]
		return ok && c.Distance(p) <= tol
	case DimSurface:
		f, ok := s.surfaces[host.Tag]
		return ok && f.distance(p) <= tol+f.slack()
	case DimVolume:
		return s.volumeContains(host.Tag, p, tol)
	}
	return false
}

func (s *Store) volumeContains(h Handle, p r3.Vec, tol float64) bool {
	faces := s.volumeFaces(h)
	if faces == nil {
		return false
	}
	bb := emptyBox()
	slack := tol
	for _, f := range faces {
		b := f.bounds()
		bb = extend(extend(bb, b.Min), b.Max)
		slack = math.Max(slack, tol+f.slack())
	}
	if p.X < bb.Min.X-slack || p.Y < bb.Min.Y-slack || p.Z < bb.Min.Z-slack ||
		p.X > bb.Max.X+slack || p.Y > bb.Max.Y+slack || p.Z > bb.Max.Z+slack {
		return false
	}
	for _, f := range faces {
		if f.distance(p) <= tol+f.slack() {
			return true
		}
	}
	votes := 0
	for _, d := range probeDirs {
		n := 0
		for _, f := range faces {
			n += f.crossings(p, d)
		}
		if n%2 == 1 {
			votes++
		}
	}
	return votes >= 2
}

// volumeFaces returns the faces of every shell of volume h.
func (s *Store) volumeFaces(h Handle) []face {
	e := s.entities[DimVolume][h]
	if e == nil {
		return nil
	}
	var out []face
	for _, sh := range e.Data.(VolumeData).Shells {
		for _, sv := range s.shells[sh].Data.(SurfaceLoopData).Surfaces {
			fh, _ := sign(sv)
			out = append(out, s.surfaces[fh])
		}
	}
	return out
}

// Distance returns the Euclidean distance from p to the entity ref. The
// distance to a volume is zero inside it.
func (s *Store) Distance(ref Ref, p r3.Vec) (float64, bool) {
	switch ref.Dim {
	case DimPoint:
		pd, ok := s.Point(ref.Tag)
		if !ok {
			return 0, false
		}
		return r3.Norm(r3.Sub(p, pd.Pos)), true
	case DimCurve:
		c, ok := s.curves[ref.Tag]
		if !ok {
			return 0, false
		}
		return c.Distance(p), true
	case DimSurface:
		f, ok := s.surfaces[ref.Tag]
		if !ok {
			return 0, false
		}
		return f.distance(p), true
	case DimVolume:
		if !s.Has(ref) {
			return 0, false
		}
		if s.volumeContains(ref.Tag, p, s.Tolerance()) {
			return 0, true
		}
		return s.BoundaryDistance(ref.Tag, p), true
	}
	return 0, false
}

// BoundaryDistance returns the distance from p to the boundary of volume h,
// or +Inf when the volume does not exist.
func (s *Store) BoundaryDistance(h Handle, p r3.Vec) float64 {
	best := math.Inf(1)
	for _, f := range s.volumeFaces(h) {
		best = math.Min(best, f.distance(p))
	}
	return best
}

// VolumeBounds returns the bounding box of volume h.
func (s *Store) VolumeBounds(h Handle) (r3.Box, bool) {
	faces := s.volumeFaces(h)
	if faces == nil {
		return r3.Box{}, false
	}
	bb := emptyBox()
	for _, f := range faces {
		b := f.bounds()
		bb = extend(extend(bb, b.Min), b.Max)
	}
	return bb, true
}

// Closest returns the point of curve or surface ref nearest to p.
func (s *Store) Closest(ref Ref, p r3.Vec) (r3.Vec, bool) {
	switch ref.Dim {
	case DimCurve:
		c, ok := s.curves[ref.Tag]
		if !ok {
			return r3.Vec{}, false
		}
		return closestOnCurve(c, p), true
	case DimSurface:
		f, ok := s.surfaces[ref.Tag]
		if !ok {
			return r3.Vec{}, false
		}
		return f.closest(p), true
	}
	return r3.Vec{}, false
}
