package geom

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Store owns every entity of one meshing session. It is built once and
// frozen before generation; after Freeze every mutating call fails with
// ErrFrozen.
type Store struct {
	entities [4]map[Handle]*Entity
	next     [4]Handle

	loops     map[Handle]*Entity // curve loops
	nextLoop  Handle
	shells    map[Handle]*Entity // surface loops
	nextShell Handle

	// shapes caches the evaluable geometry of curves and surfaces.
	curves   map[Handle]Curve
	surfaces map[Handle]face

	embeddings *EmbeddingTable
	frozen     bool
	tol        float64 // cached once frozen
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{
		loops:      make(map[Handle]*Entity),
		shells:     make(map[Handle]*Entity),
		curves:     make(map[Handle]Curve),
		surfaces:   make(map[Handle]face),
		embeddings: newEmbeddingTable(),
	}
	for d := range s.entities {
		s.entities[d] = make(map[Handle]*Entity)
	}
	return s
}

// Freeze makes the store and its embedding table immutable.
func (s *Store) Freeze() {
	if !s.frozen {
		s.tol = s.Tolerance()
		s.frozen = true
	}
}

// Frozen reports whether Freeze has been called.
func (s *Store) Frozen() bool { return s.frozen }

// Embeddings returns the embedding table of the store.
func (s *Store) Embeddings() *EmbeddingTable { return s.embeddings }

// Get returns the entity for ref, or nil.
func (s *Store) Get(ref Ref) *Entity {
	if !ref.Dim.Valid() {
		return nil
	}
	return s.entities[ref.Dim][ref.Tag]
}

// Has reports whether ref exists.
func (s *Store) Has(ref Ref) bool {
	return s.Get(ref) != nil
}

// CurveLoop returns the curve loop with handle h, or nil.
func (s *Store) CurveLoop(h Handle) *Entity { return s.loops[h] }

// SurfaceLoop returns the surface loop with handle h, or nil.
func (s *Store) SurfaceLoop(h Handle) *Entity { return s.shells[h] }

// Point returns the position of point h.
func (s *Store) Point(h Handle) (PointData, bool) {
	e := s.entities[DimPoint][h]
	if e == nil {
		return PointData{}, false
	}
	return e.Data.(PointData), true
}

// Curve returns the evaluable geometry of curve h.
func (s *Store) Curve(h Handle) (Curve, bool) {
	c, ok := s.curves[h]
	return c, ok
}

// EntityCount returns the number of entities of dimension d.
func (s *Store) EntityCount(d Dim) int {
	if !d.Valid() {
		return 0
	}
	return len(s.entities[d])
}

// Handles returns the handles of dimension d in creation order.
func (s *Store) Handles(d Dim) []Handle {
	if !d.Valid() {
		return nil
	}
	hs := make([]Handle, 0, len(s.entities[d]))
	for h := range s.entities[d] {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

// BoundingBox returns the axis-aligned box of every point in the store.
func (s *Store) BoundingBox() r3.Box {
	bb := emptyBox()
	for _, e := range s.entities[DimPoint] {
		bb = extend(bb, e.Data.(PointData).Pos)
	}
	for _, c := range s.curves {
		for _, p := range sampleCurve(c, false) {
			bb = extend(bb, p)
		}
	}
	return bb
}

// Tolerance is the geometric tolerance used for coincidence and
// containment tests: 1e-9 of the bounding box diagonal.
func (s *Store) Tolerance() float64 {
	if s.frozen {
		return s.tol
	}
	bb := s.BoundingBox()
	if bb.Min.X > bb.Max.X {
		return 1e-12
	}
	return math.Max(1e-9*r3.Norm(r3.Sub(bb.Max, bb.Min)), 1e-12)
}

func (s *Store) register(d Dim, kind EntityKind, data EntityData) Handle {
	s.next[d]++
	h := s.next[d]
	s.entities[d][h] = &Entity{Handle: h, Kind: kind, Data: data}
	return h
}

// AddPoint adds a vertex. targetSize is the optional per-vertex size hint
// (zero for none); it is consumed by the mesher only when no background
// field takes precedence.
func (s *Store) AddPoint(pos r3.Vec, targetSize float64) (Handle, error) {
	const op = "AddPoint"
	if s.frozen {
		return 0, ErrFrozen
	}
	if !finite(pos) {
		return 0, topoErr(op, Ref{}, "non-finite coordinates %v", pos)
	}
	if targetSize < 0 || math.IsNaN(targetSize) || math.IsInf(targetSize, 0) {
		return 0, topoErr(op, Ref{}, "invalid target size %g", targetSize)
	}
	return s.register(DimPoint, KindPoint, PointData{Pos: pos, TargetSize: targetSize}), nil
}

// AddLine adds a straight curve between two existing, distinct points.
func (s *Store) AddLine(a, b Handle) (Handle, error) {
	const op = "AddLine"
	if s.frozen {
		return 0, ErrFrozen
	}
	pa, ok := s.Point(a)
	if !ok {
		return 0, topoErr(op, PointRef(a), "does not exist")
	}
	pb, ok := s.Point(b)
	if !ok {
		return 0, topoErr(op, PointRef(b), "does not exist")
	}
	if a == b || r3.Norm(r3.Sub(pa.Pos, pb.Pos)) <= s.Tolerance() {
		return 0, topoErr(op, PointRef(b), "line end points coincide")
	}
	h := s.register(DimCurve, KindLine, LineData{Start: a, End: b})
	s.curves[h] = segment{a: pa.Pos, b: pb.Pos}
	return h, nil
}

// AddCircleArc adds an arc from start to end around center. The arc must
// be strictly shorter than a half circle.
func (s *Store) AddCircleArc(start, center, end Handle) (Handle, error) {
	const op = "AddCircleArc"
	if s.frozen {
		return 0, ErrFrozen
	}
	var pos [3]r3.Vec
	for i, h := range []Handle{start, center, end} {
		p, ok := s.Point(h)
		if !ok {
			return 0, topoErr(op, PointRef(h), "does not exist")
		}
		pos[i] = p.Pos
	}
	a, msg := newArc(pos[0], pos[1], pos[2], s.Tolerance())
	if msg != "" {
		return 0, topoErr(op, PointRef(center), "%s", msg)
	}
	h := s.register(DimCurve, KindCircleArc, CircleArcData{Start: start, Center: center, End: end})
	s.curves[h] = a
	return h, nil
}

// AddCircle adds a closed circle of the given radius around center in the
// plane orthogonal to normal. A seam point carrying targetSize is created
// together with the curve.
func (s *Store) AddCircle(center r3.Vec, radius float64, normal r3.Vec, targetSize float64) (Handle, error) {
	const op = "AddCircle"
	if s.frozen {
		return 0, ErrFrozen
	}
	if !finite(center) || !finite(normal) || r3.Norm(normal) == 0 {
		return 0, topoErr(op, Ref{}, "invalid center or normal")
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return 0, topoErr(op, Ref{}, "radius %g must be positive", radius)
	}
	if targetSize < 0 {
		return 0, topoErr(op, Ref{}, "invalid target size %g", targetSize)
	}
	n := r3.Unit(normal)
	u := perpendicular(n)
	c := arc{center: center, u: u, v: r3.Cross(n, u), radius: radius, span: 2 * math.Pi}
	seam := s.register(DimPoint, KindPoint, PointData{Pos: c.At(0), TargetSize: targetSize})
	h := s.register(DimCurve, KindCircle, CircleData{Seam: seam, Center: center, Radius: radius, Normal: n})
	s.curves[h] = c
	return h, nil
}

// curveEnds returns the start and end point handles of curve h.
func (s *Store) curveEnds(h Handle) (Handle, Handle, bool) {
	e := s.entities[DimCurve][h]
	if e == nil {
		return 0, 0, false
	}
	switch d := e.Data.(type) {
	case LineData:
		return d.Start, d.End, true
	case CircleArcData:
		return d.Start, d.End, true
	case CircleData:
		return d.Seam, d.Seam, true
	}
	return 0, 0, false
}

// AddCurveLoop adds a closed, ordered cycle of signed curves. Consecutive
// curves must share their end and start points.
func (s *Store) AddCurveLoop(curves []int) (Handle, error) {
	const op = "AddCurveLoop"
	if s.frozen {
		return 0, ErrFrozen
	}
	if len(curves) == 0 {
		return 0, topoErr(op, Ref{}, "empty curve loop")
	}
	type span struct{ from, to Handle }
	spans := make([]span, len(curves))
	seen := make(map[int]bool, len(curves))
	for i, c := range curves {
		h, rev := sign(c)
		if h == 0 {
			return 0, topoErr(op, Ref{}, "curve handle 0 is not valid")
		}
		if seen[c] {
			return 0, topoErr(op, CurveRef(h), "curve used twice in the same direction")
		}
		seen[c] = true
		a, b, ok := s.curveEnds(h)
		if !ok {
			return 0, topoErr(op, CurveRef(h), "does not exist")
		}
		if rev {
			a, b = b, a
		}
		spans[i] = span{from: a, to: b}
	}
	for i := range spans {
		next := spans[(i+1)%len(spans)]
		if spans[i].to != next.from {
			h, _ := sign(curves[i])
			return 0, topoErr(op, CurveRef(h), "loop is not closed: ends at point %d but next curve starts at point %d",
				spans[i].to, next.from)
		}
	}
	s.nextLoop++
	h := s.nextLoop
	s.loops[h] = &Entity{Handle: h, Kind: KindCurveLoop, Data: CurveLoopData{Curves: append([]int(nil), curves...)}}
	return h, nil
}

// AddPlaneSurface adds a planar surface bounded by loops[0] with the
// remaining loops as holes. Every loop must lie in the plane of the first.
func (s *Store) AddPlaneSurface(loops []Handle) (Handle, error) {
	const op = "AddPlaneSurface"
	if s.frozen {
		return 0, ErrFrozen
	}
	if len(loops) == 0 {
		return 0, topoErr(op, Ref{}, "plane surface needs at least one loop")
	}
	polys := make([][]r3.Vec, len(loops))
	var chord float64
	for i, l := range loops {
		if s.loops[l] == nil {
			return 0, topoErr(op, Ref{}, "curve loop %d does not exist", l)
		}
		polys[i] = s.loopPolyline(l)
		for _, c := range s.loops[l].Data.(CurveLoopData).Curves {
			h, _ := sign(c)
			chord = math.Max(chord, chordError(s.curves[h]))
		}
	}
	f, msg := newPlaneFace(polys, chord, s.Tolerance())
	if msg != "" {
		return 0, topoErr(op, Ref{}, "curve loop %d: %s", loops[0], msg)
	}
	h := s.register(DimSurface, KindPlaneSurface, PlaneSurfaceData{Loops: append([]Handle(nil), loops...)})
	s.surfaces[h] = f
	return h, nil
}

// AddSurfaceFilling adds a transfinite patch bounded by a loop of three or
// four curves.
func (s *Store) AddSurfaceFilling(loop Handle) (Handle, error) {
	const op = "AddSurfaceFilling"
	if s.frozen {
		return 0, ErrFrozen
	}
	l := s.loops[loop]
	if l == nil {
		return 0, topoErr(op, Ref{}, "curve loop %d does not exist", loop)
	}
	curves := l.Data.(CurveLoopData).Curves
	if len(curves) != 3 && len(curves) != 4 {
		return 0, topoErr(op, Ref{}, "curve loop %d has %d curves, filling needs 3 or 4", loop, len(curves))
	}
	sides := make([]Curve, len(curves))
	for i, c := range curves {
		h, rev := sign(c)
		sides[i] = s.curves[h]
		if rev {
			sides[i] = reversed{sides[i]}
		}
	}
	f := newPatch(sides)
	h := s.register(DimSurface, KindSurfaceFilling, SurfaceFillingData{Loop: loop})
	s.surfaces[h] = f
	return h, nil
}

// AddSurfaceLoop adds a closed shell of signed surfaces. Every boundary
// curve must be shared by exactly two member surfaces traversing it in
// opposite directions.
func (s *Store) AddSurfaceLoop(surfaces []int) (Handle, error) {
	const op = "AddSurfaceLoop"
	if s.frozen {
		return 0, ErrFrozen
	}
	if len(surfaces) == 0 {
		return 0, topoErr(op, Ref{}, "empty surface loop")
	}
	uses := make(map[Handle]int)
	balance := make(map[Handle]int)
	member := make(map[Handle]bool)
	for _, sv := range surfaces {
		h, rev := sign(sv)
		if s.entities[DimSurface][h] == nil {
			return 0, topoErr(op, SurfaceRef(h), "does not exist")
		}
		if member[h] {
			return 0, topoErr(op, SurfaceRef(h), "surface listed twice")
		}
		member[h] = true
		for _, c := range s.surfaceBoundary(h) {
			ch, crev := sign(c)
			dir := 1
			if crev != rev {
				dir = -1
			}
			uses[ch]++
			balance[ch] += dir
		}
	}
	curves := make([]Handle, 0, len(uses))
	for c := range uses {
		curves = append(curves, c)
	}
	sort.Slice(curves, func(i, j int) bool { return curves[i] < curves[j] })
	for _, c := range curves {
		if uses[c] != 2 {
			return 0, topoErr(op, CurveRef(c), "shell is not closed: curve bounds %d surfaces", uses[c])
		}
		if balance[c] != 0 {
			return 0, topoErr(op, CurveRef(c), "inconsistent surface orientation across curve")
		}
	}
	s.nextShell++
	h := s.nextShell
	s.shells[h] = &Entity{Handle: h, Kind: KindSurfaceLoop, Data: SurfaceLoopData{Surfaces: append([]int(nil), surfaces...)}}
	return h, nil
}

// AddVolume adds a region bounded by an outward-oriented shell, with
// optional hole shells.
func (s *Store) AddVolume(shell Handle, holes ...Handle) (Handle, error) {
	const op = "AddVolume"
	if s.frozen {
		return 0, ErrFrozen
	}
	shells := append([]Handle{shell}, holes...)
	for _, sh := range shells {
		if s.shells[sh] == nil {
			return 0, topoErr(op, Ref{}, "surface loop %d does not exist", sh)
		}
	}
	vol := s.shellVolume(shell)
	tol := s.Tolerance()
	if vol <= tol*tol*tol {
		return 0, topoErr(op, Ref{}, "surface loop %d is not outward oriented (signed volume %g)", shell, vol)
	}
	return s.register(DimVolume, KindVolume, VolumeData{Shells: shells}), nil
}

// Boundary returns the entities one dimension below ref that bound it:
// end points of a curve, curves of a surface, surfaces of a volume.
func (s *Store) Boundary(ref Ref) []Ref {
	switch ref.Dim {
	case DimCurve:
		a, b, ok := s.curveEnds(ref.Tag)
		if !ok {
			return nil
		}
		if a == b {
			return []Ref{PointRef(a)}
		}
		return []Ref{PointRef(a), PointRef(b)}
	case DimSurface:
		var out []Ref
		seen := make(map[Handle]bool)
		for _, c := range s.surfaceBoundary(ref.Tag) {
			h, _ := sign(c)
			if !seen[h] {
				seen[h] = true
				out = append(out, CurveRef(h))
			}
		}
		return out
	case DimVolume:
		e := s.entities[DimVolume][ref.Tag]
		if e == nil {
			return nil
		}
		var out []Ref
		for _, sh := range e.Data.(VolumeData).Shells {
			for _, sv := range s.shells[sh].Data.(SurfaceLoopData).Surfaces {
				h, _ := sign(sv)
				out = append(out, SurfaceRef(h))
			}
		}
		return out
	}
	return nil
}

// closure returns ref and every entity in its boundary closure.
func (s *Store) closure(ref Ref) map[Ref]bool {
	out := map[Ref]bool{ref: true}
	queue := []Ref{ref}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, b := range s.Boundary(cur) {
			if !out[b] {
				out[b] = true
				queue = append(queue, b)
			}
		}
	}
	return out
}

// surfaceBoundary returns the signed curves bounding surface h, oriented
// along the surface normal: the outer loop as given, holes against it.
func (s *Store) surfaceBoundary(h Handle) []int {
	e := s.entities[DimSurface][h]
	if e == nil {
		return nil
	}
	switch d := e.Data.(type) {
	case PlaneSurfaceData:
		f := s.surfaces[h].(*planeFace)
		var out []int
		for i, l := range d.Loops {
			curves := s.loops[l].Data.(CurveLoopData).Curves
			flip := i > 0 && f.holeAligned[i-1]
			for _, c := range curves {
				if flip {
					c = -c
				}
				out = append(out, c)
			}
		}
		return out
	case SurfaceFillingData:
		return append([]int(nil), s.loops[d.Loop].Data.(CurveLoopData).Curves...)
	}
	return nil
}

// loopPolyline samples a curve loop into a closed polygon (last point not
// repeated).
func (s *Store) loopPolyline(l Handle) []r3.Vec {
	var pts []r3.Vec
	for _, c := range s.loops[l].Data.(CurveLoopData).Curves {
		h, rev := sign(c)
		sample := sampleCurve(s.curves[h], rev)
		pts = append(pts, sample[:len(sample)-1]...)
	}
	return pts
}

// shellVolume is the signed volume enclosed by surface loop h; positive
// for outward orientation.
func (s *Store) shellVolume(h Handle) float64 {
	var vol float64
	for _, sv := range s.shells[h].Data.(SurfaceLoopData).Surfaces {
		sh, rev := sign(sv)
		v := s.surfaces[sh].signedVolume()
		if rev {
			v = -v
		}
		vol += v
	}
	return vol
}

func finite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func emptyBox() r3.Box {
	inf := math.Inf(1)
	return r3.Box{Min: r3.Vec{X: inf, Y: inf, Z: inf}, Max: r3.Vec{X: -inf, Y: -inf, Z: -inf}}
}

func extend(b r3.Box, p r3.Vec) r3.Box {
	b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
	b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	return b
}
