package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Curve is the evaluable geometry of a curve entity.
type Curve interface {
	// At returns the position at parameter t in [0,1], start to end.
	At(t float64) r3.Vec
	// Distance returns the Euclidean distance from p to the nearest point
	// of the curve.
	Distance(p r3.Vec) float64
	// Length returns the arc length.
	Length() float64
}

// segment is a straight line from a to b.
type segment struct {
	a, b r3.Vec
}

func (s segment) At(t float64) r3.Vec {
	return r3.Add(s.a, r3.Scale(t, r3.Sub(s.b, s.a)))
}

func (s segment) Length() float64 {
	return r3.Norm(r3.Sub(s.b, s.a))
}

func (s segment) Distance(p r3.Vec) float64 {
	return r3.Norm(r3.Sub(p, closestOnSegment(p, s.a, s.b)))
}

// closestOnSegment returns the point of segment ab nearest to p.
func closestOnSegment(p, a, b r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 == 0 {
		return a
	}
	t := r3.Dot(r3.Sub(p, a), ab) / l2
	t = math.Max(0, math.Min(1, t))
	return r3.Add(a, r3.Scale(t, ab))
}

// arc is a circular arc of the given span (radians) starting at
// center+radius*u and turning towards v. A full circle has span 2π.
type arc struct {
	center r3.Vec
	u, v   r3.Vec // orthonormal, in the arc plane
	radius float64
	span   float64
}

func (c arc) normal() r3.Vec {
	return r3.Cross(c.u, c.v)
}

func (c arc) At(t float64) r3.Vec {
	theta := t * c.span
	dir := r3.Add(r3.Scale(math.Cos(theta), c.u), r3.Scale(math.Sin(theta), c.v))
	return r3.Add(c.center, r3.Scale(c.radius, dir))
}

func (c arc) Length() float64 {
	return c.radius * c.span
}

func (c arc) Distance(p r3.Vec) float64 {
	q := r3.Sub(p, c.center)
	n := c.normal()
	h := r3.Dot(q, n)
	inPlane := r3.Sub(q, r3.Scale(h, n))
	rho := r3.Norm(inPlane)
	if rho < 1e-300 {
		// Every point of the circle is equidistant from the axis.
		return math.Hypot(c.radius, h)
	}
	phi := math.Atan2(r3.Dot(inPlane, c.v), r3.Dot(inPlane, c.u))
	if phi < 0 {
		phi += 2 * math.Pi
	}
	if phi <= c.span {
		return math.Hypot(rho-c.radius, h)
	}
	return math.Min(r3.Norm(r3.Sub(p, c.At(0))), r3.Norm(r3.Sub(p, c.At(1))))
}

// newArc builds the arc from start to end around center. The arc must be
// strictly shorter than a half circle so that its plane is well defined.
func newArc(start, center, end r3.Vec, tol float64) (arc, string) {
	a := r3.Sub(start, center)
	b := r3.Sub(end, center)
	ra, rb := r3.Norm(a), r3.Norm(b)
	if ra <= tol || rb <= tol {
		return arc{}, "arc end point coincides with its center"
	}
	if math.Abs(ra-rb) > 1e-6*math.Max(ra, rb)+tol {
		return arc{}, "arc end points are not equidistant from the center"
	}
	n := r3.Cross(a, b)
	if r3.Norm(n) <= 1e-12*ra*rb {
		return arc{}, "arc must be strictly shorter than a half circle"
	}
	n = r3.Unit(n)
	u := r3.Unit(a)
	v := r3.Cross(n, u)
	span := math.Atan2(r3.Dot(b, v), r3.Dot(b, u))
	if span <= 0 || span >= math.Pi {
		return arc{}, "arc must be strictly shorter than a half circle"
	}
	return arc{center: center, u: u, v: v, radius: ra, span: span}, ""
}

// perpendicular returns a unit vector orthogonal to the unit vector n.
func perpendicular(n r3.Vec) r3.Vec {
	axis := r3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		axis = r3.Vec{Y: 1}
	}
	return r3.Unit(r3.Cross(n, axis))
}

// segmentsFor returns how many straight pieces approximate a curve.
func segmentsFor(c Curve) int {
	if r, ok := c.(reversed); ok {
		c = r.Curve
	}
	a, ok := c.(arc)
	if !ok {
		return 1
	}
	n := int(math.Ceil(a.span / (math.Pi / 16)))
	if n < 2 {
		n = 2
	}
	return n
}

// chordError is the largest distance between c and its sampled polyline.
func chordError(c Curve) float64 {
	if r, ok := c.(reversed); ok {
		c = r.Curve
	}
	a, ok := c.(arc)
	if !ok {
		return 0
	}
	return a.radius * (1 - math.Cos(a.span/float64(segmentsFor(a))/2))
}

// sampleCurve returns segmentsFor(c)+1 points from start to end, or from
// end to start when reversed.
func sampleCurve(c Curve, reversed bool) []r3.Vec {
	n := segmentsFor(c)
	pts := make([]r3.Vec, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		if reversed {
			t = 1 - t
		}
		pts[i] = c.At(t)
	}
	return pts
}

// reversed traverses a curve from its end to its start.
type reversed struct {
	Curve
}

func (r reversed) At(t float64) r3.Vec { return r.Curve.At(1 - t) }

// closestOnCurve returns the point of c nearest to p.
func closestOnCurve(c Curve, p r3.Vec) r3.Vec {
	if r, ok := c.(reversed); ok {
		c = r.Curve
	}
	switch c := c.(type) {
	case segment:
		return closestOnSegment(p, c.a, c.b)
	case arc:
		q := r3.Sub(p, c.center)
		n := c.normal()
		inPlane := r3.Sub(q, r3.Scale(r3.Dot(q, n), n))
		if r3.Norm(inPlane) > 1e-300 {
			phi := math.Atan2(r3.Dot(inPlane, c.v), r3.Dot(inPlane, c.u))
			if phi < 0 {
				phi += 2 * math.Pi
			}
			if phi <= c.span {
				return r3.Add(c.center, r3.Scale(c.radius/r3.Norm(inPlane), inPlane))
			}
		}
		a, b := c.At(0), c.At(1)
		if r3.Norm2(r3.Sub(p, a)) <= r3.Norm2(r3.Sub(p, b)) {
			return a
		}
		return b
	}
	return c.At(0)
}
