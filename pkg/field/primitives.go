package field

import (
	"math"

	"github.com/chazu/impactmesh/pkg/geom"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// ----------------------------------------------------------------------------
// Distance
// ----------------------------------------------------------------------------

// Distance evaluates to the Euclidean distance from a position to the
// nearest of its anchors. Point anchors are indexed in a k-d tree; curve
// anchors are measured exactly.
type Distance struct {
	Anchors []geom.Ref

	points *kdtree.Tree
	curves []geom.Curve
}

func newDistance(s *geom.Store, anchors []geom.Ref) (*Distance, error) {
	if len(anchors) == 0 {
		return nil, graphErr(0, "distance field needs at least one anchor")
	}
	d := &Distance{Anchors: append([]geom.Ref(nil), anchors...)}
	var pts kdtree.Points
	for _, a := range anchors {
		switch a.Dim {
		case geom.DimPoint:
			p, ok := s.Point(a.Tag)
			if !ok {
				return nil, graphErr(0, "anchor %s does not exist", a)
			}
			pts = append(pts, kdtree.Point{p.Pos.X, p.Pos.Y, p.Pos.Z})
		case geom.DimCurve:
			c, ok := s.Curve(a.Tag)
			if !ok {
				return nil, graphErr(0, "anchor %s does not exist", a)
			}
			d.curves = append(d.curves, c)
		default:
			return nil, graphErr(0, "anchor %s must be a point or a curve", a)
		}
	}
	if len(pts) > 0 {
		d.points = kdtree.New(pts, false)
	}
	return d, nil
}

func (d *Distance) Evaluate(p r3.Vec) float64 {
	best := math.Inf(1)
	if d.points != nil {
		_, d2 := d.points.Nearest(kdtree.Point{p.X, p.Y, p.Z})
		best = math.Sqrt(d2)
	}
	for _, c := range d.curves {
		best = math.Min(best, c.Distance(p))
	}
	return best
}

func (d *Distance) Kind() Kind { return KindDistance }
func (d *Distance) Sources() []NodeID { return nil }
func (d *Distance) sizingNode() {}

// ----------------------------------------------------------------------------
// Cylinder
// ----------------------------------------------------------------------------

// Cylinder is a hard step: Inner within Radius of the axis line, Outer
// beyond. A position exactly on the radius gets Inner. When HalfLength is
// positive the cylinder is capped at that axial distance from Center;
// zero means infinite.
type Cylinder struct {
	Center     r3.Vec
	Axis       r3.Vec
	Radius     float64
	Inner      float64
	Outer      float64
	HalfLength float64

	axis r3.Vec // unit
}

func (c *Cylinder) validate() error {
	if r3.Norm(c.Axis) == 0 {
		return configErr("cylinder.axis", "axis must be non-zero")
	}
	if !(c.Radius >= 0) {
		return configErr("cylinder.radius", "radius %g must not be negative", c.Radius)
	}
	if !(c.Inner > 0 && c.Outer > 0) {
		return configErr("cylinder.size", "sizes must be positive, got %g and %g", c.Inner, c.Outer)
	}
	if c.HalfLength < 0 {
		return configErr("cylinder.half_length", "must not be negative")
	}
	c.axis = r3.Unit(c.Axis)
	return nil
}

func (c *Cylinder) Evaluate(p r3.Vec) float64 {
	q := r3.Sub(p, c.Center)
	h := r3.Dot(q, c.axis)
	if c.HalfLength > 0 && math.Abs(h) > c.HalfLength {
		return c.Outer
	}
	d := r3.Norm(r3.Sub(q, r3.Scale(h, c.axis)))
	if d <= c.Radius {
		return c.Inner
	}
	return c.Outer
}

func (c *Cylinder) Kind() Kind { return KindCylinder }
func (c *Cylinder) Sources() []NodeID { return nil }
func (c *Cylinder) sizingNode() {}

// ----------------------------------------------------------------------------
// Frustum
// ----------------------------------------------------------------------------

// Frustum is a conical cylinder between the sections at Start and End.
// Radii and sizes are interpolated linearly along the axis; the axial
// parameter is clamped to [0,1], so the end sections extend past the caps.
// Inside the inner radius the size is the inner size, beyond the outer
// radius the outer size, and in between it blends linearly.
type Frustum struct {
	Start, End  r3.Vec
	InnerRadius [2]float64 // at Start, End
	OuterRadius [2]float64
	InnerSize   [2]float64
	OuterSize   [2]float64

	axis   r3.Vec
	length float64
}

func (f *Frustum) validate() error {
	d := r3.Sub(f.End, f.Start)
	f.length = r3.Norm(d)
	if f.length == 0 {
		return configErr("frustum.axis", "start and end coincide")
	}
	f.axis = r3.Scale(1/f.length, d)
	for i := 0; i < 2; i++ {
		if f.InnerRadius[i] < 0 || f.OuterRadius[i] < f.InnerRadius[i] {
			return configErr("frustum.radius", "need 0 <= inner <= outer, got %g and %g", f.InnerRadius[i], f.OuterRadius[i])
		}
		if !(f.InnerSize[i] > 0 && f.OuterSize[i] > 0) {
			return configErr("frustum.size", "sizes must be positive")
		}
	}
	return nil
}

func lerp(a [2]float64, t float64) float64 { return a[0] + (a[1]-a[0])*t }

func (f *Frustum) Evaluate(p r3.Vec) float64 {
	q := r3.Sub(p, f.Start)
	h := r3.Dot(q, f.axis)
	t := math.Max(0, math.Min(1, h/f.length))
	d := r3.Norm(r3.Sub(q, r3.Scale(h, f.axis)))

	ri, ro := lerp(f.InnerRadius, t), lerp(f.OuterRadius, t)
	vi, vo := lerp(f.InnerSize, t), lerp(f.OuterSize, t)
	switch {
	case d <= ri:
		return vi
	case d >= ro:
		return vo
	}
	return vi + (vo-vi)*(d-ri)/(ro-ri)
}

func (f *Frustum) Kind() Kind { return KindFrustum }
func (f *Frustum) Sources() []NodeID { return nil }
func (f *Frustum) sizingNode() {}
