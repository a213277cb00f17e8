package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// face is the evaluable geometry of a surface entity.
type face interface {
	// closest returns the point of the face nearest to p.
	closest(p r3.Vec) r3.Vec
	// distance returns the distance from p to the nearest point of the face.
	distance(p r3.Vec) float64
	// slack is the extra tolerance a point may deviate from the face
	// representation and still count as lying on it.
	slack() float64
	// signedVolume is the divergence theorem contribution of the face,
	// oriented along its normal.
	signedVolume() float64
	// crossings counts intersections of the ray o+t*d, t>0, with the face.
	crossings(o, d r3.Vec) int
	bounds() r3.Box
}

// ----------------------------------------------------------------------------
// Plane faces
// ----------------------------------------------------------------------------

type planeFace struct {
	origin r3.Vec
	normal r3.Vec // unit, right hand rule over the outer loop
	u, v   r3.Vec
	loops  [][]r2.Vec // outer first, in (u,v) coordinates
	edges  [][2]r3.Vec
	area   float64 // outer area minus hole areas
	box    r3.Box
	chord  float64 // chord error of the sampled boundary

	// holeAligned[i] is true when hole loop i+1 turns the same way as the
	// outer loop and must be reversed to bound the face.
	holeAligned []bool
}

// newPlaneFace builds a face from closed polygons, outer first. chord is
// the largest deviation of the polygons from the true boundary curves.
func newPlaneFace(polys [][]r3.Vec, chord, tol float64) (*planeFace, string) {
	outer := polys[0]
	if len(outer) < 3 {
		return nil, "loop has fewer than three vertices"
	}
	n := newell(outer)
	outerArea := r3.Norm(n) / 2
	extent := polyExtent(outer)
	if outerArea <= tol*extent || outerArea == 0 {
		return nil, "loop encloses no area"
	}
	n = r3.Unit(n)
	f := &planeFace{
		origin: outer[0],
		normal: n,
		u:      perpendicular(n),
		box:    emptyBox(),
		chord:  chord,
	}
	f.v = r3.Cross(n, f.u)
	planeTol := tol + 1e-9*extent
	f.area = outerArea
	for i, poly := range polys {
		loop2 := make([]r2.Vec, len(poly))
		for j, p := range poly {
			d := r3.Sub(p, f.origin)
			if math.Abs(r3.Dot(d, n)) > planeTol {
				return nil, "loop is not planar"
			}
			loop2[j] = r2.Vec{X: r3.Dot(d, f.u), Y: r3.Dot(d, f.v)}
			f.edges = append(f.edges, [2]r3.Vec{p, poly[(j+1)%len(poly)]})
			f.box = extend(f.box, p)
		}
		f.loops = append(f.loops, loop2)
		if i > 0 {
			hn := newell(poly)
			f.holeAligned = append(f.holeAligned, r3.Dot(hn, n) > 0)
			f.area -= r3.Norm(hn) / 2
		}
	}
	if f.area <= tol*extent {
		return nil, "holes cover the whole face"
	}
	return f, ""
}

// newell returns twice the vector area of a closed polygon.
func newell(poly []r3.Vec) r3.Vec {
	var n r3.Vec
	for i, a := range poly {
		b := poly[(i+1)%len(poly)]
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	return n
}

func polyExtent(poly []r3.Vec) float64 {
	b := emptyBox()
	for _, p := range poly {
		b = extend(b, p)
	}
	return r3.Norm(r3.Sub(b.Max, b.Min))
}

// inside reports whether the in-plane point q is inside the face using the
// even-odd rule over all loops.
func (f *planeFace) inside(q r2.Vec) bool {
	in := false
	for _, loop := range f.loops {
		for i, a := range loop {
			b := loop[(i+1)%len(loop)]
			if (a.Y > q.Y) != (b.Y > q.Y) {
				x := a.X + (q.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
				if q.X < x {
					in = !in
				}
			}
		}
	}
	return in
}

func (f *planeFace) project(p r3.Vec) (r2.Vec, float64) {
	d := r3.Sub(p, f.origin)
	return r2.Vec{X: r3.Dot(d, f.u), Y: r3.Dot(d, f.v)}, r3.Dot(d, f.normal)
}

func (f *planeFace) closest(p r3.Vec) r3.Vec {
	q, h := f.project(p)
	if f.inside(q) {
		return r3.Sub(p, r3.Scale(h, f.normal))
	}
	var best r3.Vec
	bestD := math.Inf(1)
	for _, e := range f.edges {
		c := closestOnSegment(p, e[0], e[1])
		if d := r3.Norm2(r3.Sub(p, c)); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func (f *planeFace) distance(p r3.Vec) float64 {
	q, h := f.project(p)
	if f.inside(q) {
		return math.Abs(h)
	}
	return r3.Norm(r3.Sub(p, f.closest(p)))
}

func (f *planeFace) slack() float64 { return f.chord }

func (f *planeFace) signedVolume() float64 {
	return r3.Dot(f.origin, f.normal) * f.area / 3
}

func (f *planeFace) crossings(o, d r3.Vec) int {
	den := r3.Dot(d, f.normal)
	if math.Abs(den) < 1e-12 {
		return 0
	}
	t := r3.Dot(r3.Sub(f.origin, o), f.normal) / den
	if t <= 0 {
		return 0
	}
	q, _ := f.project(r3.Add(o, r3.Scale(t, d)))
	if f.inside(q) {
		return 1
	}
	return 0
}

func (f *planeFace) bounds() r3.Box { return f.box }

// ----------------------------------------------------------------------------
// Transfinite patches
// ----------------------------------------------------------------------------

const patchGrid = 12

// patch is a Coons patch interpolating three or four boundary curves,
// approximated by a regular triangle grid for queries.
type patch struct {
	sides []Curve
	tris  [][3]r3.Vec
	chord float64
	box   r3.Box
}

func newPatch(sides []Curve) *patch {
	p := &patch{sides: sides, box: emptyBox()}
	n := patchGrid
	grid := make([][]r3.Vec, n+1)
	for i := 0; i <= n; i++ {
		grid[i] = make([]r3.Vec, n+1)
		for j := 0; j <= n; j++ {
			grid[i][j] = p.at(float64(i)/float64(n), float64(j)/float64(n))
			p.box = extend(p.box, grid[i][j])
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a, b, c, d := grid[i][j], grid[i+1][j], grid[i+1][j+1], grid[i][j+1]
			p.tris = append(p.tris, [3]r3.Vec{a, b, c}, [3]r3.Vec{a, c, d})
			mid := p.at((float64(i)+0.5)/float64(n), (float64(j)+0.5)/float64(n))
			avg := r3.Scale(0.25, r3.Add(r3.Add(a, b), r3.Add(c, d)))
			p.chord = math.Max(p.chord, r3.Norm(r3.Sub(mid, avg)))
		}
	}
	return p
}

// at evaluates the patch at (s,t) in the unit square. Sides run
// bottom, right, top, left around the loop; a three sided loop collapses
// the left side into its start corner.
func (p *patch) at(s, t float64) r3.Vec {
	bottom := p.sides[0].At(s)
	right := p.sides[1].At(t)
	top := p.sides[2].At(1 - s)
	var left r3.Vec
	if len(p.sides) == 4 {
		left = p.sides[3].At(1 - t)
	} else {
		left = p.sides[0].At(0)
	}
	p00 := p.sides[0].At(0)
	p10 := p.sides[1].At(0)
	p11 := p.sides[2].At(0)
	p01 := p.sides[2].At(1)

	sum := r3.Add(
		r3.Add(r3.Scale(1-t, bottom), r3.Scale(t, top)),
		r3.Add(r3.Scale(1-s, left), r3.Scale(s, right)),
	)
	corners := r3.Add(
		r3.Add(r3.Scale((1-s)*(1-t), p00), r3.Scale(s*(1-t), p10)),
		r3.Add(r3.Scale((1-s)*t, p01), r3.Scale(s*t, p11)),
	)
	return r3.Sub(sum, corners)
}

func (p *patch) closest(q r3.Vec) r3.Vec {
	var best r3.Vec
	bestD := math.Inf(1)
	for _, tri := range p.tris {
		c := closestOnTriangle(q, tri[0], tri[1], tri[2])
		if d := r3.Norm2(r3.Sub(q, c)); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func (p *patch) distance(q r3.Vec) float64 {
	return r3.Norm(r3.Sub(q, p.closest(q)))
}

func (p *patch) slack() float64 { return p.chord }

func (p *patch) signedVolume() float64 {
	var v float64
	for _, t := range p.tris {
		v += r3.Dot(t[0], r3.Cross(t[1], t[2])) / 6
	}
	return v
}

func (p *patch) crossings(o, d r3.Vec) int {
	n := 0
	for _, t := range p.tris {
		if rayTriangle(o, d, t[0], t[1], t[2]) {
			n++
		}
	}
	return n
}

func (p *patch) bounds() r3.Box { return p.box }

// closestOnTriangle returns the point of triangle abc nearest to p.
func closestOnTriangle(p, a, b, c r3.Vec) r3.Vec {
	ab, ac, ap := r3.Sub(b, a), r3.Sub(c, a), r3.Sub(p, a)
	d1, d2 := r3.Dot(ab, ap), r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := r3.Sub(p, b)
	d3, d4 := r3.Dot(ab, bp), r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return r3.Add(a, r3.Scale(d1/(d1-d3), ab))
	}
	cp := r3.Sub(p, c)
	d5, d6 := r3.Dot(ab, cp), r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return r3.Add(a, r3.Scale(d2/(d2-d6), ac))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b)))
	}
	den := va + vb + vc
	if den == 0 {
		return a
	}
	v, w := vb/den, vc/den
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac)))
}

// rayTriangle reports whether the ray o+t*d, t>0, hits triangle abc.
func rayTriangle(o, d, a, b, c r3.Vec) bool {
	const eps = 1e-14
	e1, e2 := r3.Sub(b, a), r3.Sub(c, a)
	h := r3.Cross(d, e2)
	det := r3.Dot(e1, h)
	if math.Abs(det) < eps {
		return false
	}
	inv := 1 / det
	s := r3.Sub(o, a)
	u := inv * r3.Dot(s, h)
	if u < 0 || u > 1 {
		return false
	}
	q := r3.Cross(s, e1)
	v := inv * r3.Dot(d, q)
	if v < 0 || u+v > 1 {
		return false
	}
	return inv*r3.Dot(e2, q) > eps
}
