// Package sdfx implements kernel.Mesher with the github.com/deadsy/sdfx
// marching cubes renderer. Volumes of the store are exposed as signed
// distance functions, so this mesher produces triangulated boundary
// surfaces only.
package sdfx

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compile-time interface check.
var _ kernel.Mesher = (*Mesher)(nil)

// minMeshCells is the coarsest marching cubes resolution along the
// longest bounding box axis.
const minMeshCells = 8

// volumeSDF is the union of store volumes as an sdf.SDF3: negative
// inside, positive outside, zero on the boundary.
type volumeSDF struct {
	s    *geom.Store
	vols []geom.Handle
	tol  float64
	bb   sdf.Box3
}

func newVolumeSDF(s *geom.Store, vols []geom.Handle) (*volumeSDF, error) {
	f := &volumeSDF{s: s, vols: vols, tol: s.Tolerance()}
	inf := math.Inf(1)
	lo, hi := r3.Vec{X: inf, Y: inf, Z: inf}, r3.Vec{X: -inf, Y: -inf, Z: -inf}
	for _, v := range vols {
		b, ok := s.VolumeBounds(v)
		if !ok {
			return nil, fmt.Errorf("volume %d has no boundary", v)
		}
		lo = r3.Vec{X: math.Min(lo.X, b.Min.X), Y: math.Min(lo.Y, b.Min.Y), Z: math.Min(lo.Z, b.Min.Z)}
		hi = r3.Vec{X: math.Max(hi.X, b.Max.X), Y: math.Max(hi.Y, b.Max.Y), Z: math.Max(hi.Z, b.Max.Z)}
	}
	f.bb = sdf.Box3{Min: toV3(lo), Max: toV3(hi)}
	return f, nil
}

// Evaluate returns the signed distance to the nearest volume boundary.
func (f *volumeSDF) Evaluate(p v3.Vec) float64 {
	q := toR3(p)
	d := math.Inf(1)
	for _, v := range f.vols {
		b := f.s.BoundaryDistance(v, q)
		if f.s.Contains(geom.VolumeRef(v), q, f.tol) {
			return -b
		}
		d = math.Min(d, b)
	}
	return d
}

// BoundingBox returns the axis-aligned bounding box.
func (f *volumeSDF) BoundingBox() sdf.Box3 {
	return f.bb
}

func toV3(p r3.Vec) v3.Vec { return v3.Vec{X: p.X, Y: p.Y, Z: p.Z} }

func toR3(p v3.Vec) r3.Vec { return r3.Vec{X: p.X, Y: p.Y, Z: p.Z} }

// Mesher is the sdfx surface mesher.
type Mesher struct {
	logger *zap.Logger
}

// Option configures a Mesher.
type Option func(*Mesher)

// WithLogger sets the logger used to report generation and passes.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mesher) { m.logger = l }
}

// New returns a new sdfx Mesher.
func New(opts ...Option) *Mesher {
	m := &Mesher{logger: zap.NewNop()}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Mesher) Name() string { return "sdfx" }

// Locator returns a locator that tests volume containment with the signed
// distance function and defers lower dimensional hosts to the store.
func (m *Mesher) Locator() geom.Locator { return Locator{Samples: 16} }

// Locator implements geom.Locator on top of volumeSDF.
type Locator struct {
	Samples int
}

// Contains implements geom.Locator.
func (l Locator) Contains(s *geom.Store, host, anchor geom.Ref) (bool, error) {
	if host.Dim != geom.DimVolume {
		return geom.GeometricLocator{Samples: l.Samples}.Contains(s, host, anchor)
	}
	f, err := newVolumeSDF(s, []geom.Handle{host.Tag})
	if err != nil {
		return false, err
	}
	samples := geom.AnchorSamples(s, anchor, l.Samples)
	if len(samples) == 0 {
		return false, fmt.Errorf("anchor %v has no position", anchor)
	}
	for _, p := range samples {
		if f.Evaluate(toV3(p)) > f.tol {
			return false, nil
		}
	}
	return true, nil
}

// Generate triangulates the boundary of every volume. Only dim 2 is
// supported. The marching cubes cell is the smallest size sampled over
// the bounding box and the geometry points.
func (m *Mesher) Generate(ctx context.Context, s *geom.Store, dim int, size kernel.SizeCallback, opts kernel.Options) (*kernel.Mesh, error) {
	if err := opts.Validate(); err != nil {
		return nil, &kernel.GenerationError{Dim: dim, Message: "invalid options", Err: err}
	}
	if dim != 2 {
		return nil, kernel.GenErr(dim, "sdfx mesher produces surface meshes only")
	}
	vols := s.Handles(geom.DimVolume)
	if len(vols) == 0 {
		return nil, kernel.GenErr(dim, "geometry has no volume")
	}
	f, err := newVolumeSDF(s, vols)
	if err != nil {
		return nil, &kernel.GenerationError{Dim: dim, Message: "building distance function", Err: err}
	}

	hmin, err := minSize(ctx, s, f, dim, vols[0], size, opts)
	if err != nil {
		return nil, err
	}
	ext := f.bb.Max.Sub(f.bb.Min)
	longest := math.Max(ext.X, math.Max(ext.Y, ext.Z))
	cells := int(math.Ceil(longest / hmin))
	if cells < minMeshCells {
		cells = minMeshCells
	}
	if c := float64(cells); c*c*c > float64(opts.MaxElements) {
		return nil, kernel.GenErr(dim, "size %g requires %d cells per axis, above the limit of %d cells", hmin, cells, opts.MaxElements)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	triangles := render.ToTriangles(f, render.NewMarchingCubesUniform(cells))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mesh := &kernel.Mesh{Dim: dim, Geometry: s}
	q := 1e-9 * math.Max(longest, 1e-12)
	index := make(map[[3]int64]int)
	vertex := func(p v3.Vec) int {
		key := [3]int64{int64(math.Round(p.X / q)), int64(math.Round(p.Y / q)), int64(math.Round(p.Z / q))}
		if id, ok := index[key]; ok {
			return id
		}
		id := mesh.AddVertex(toR3(p), geom.Ref{})
		index[key] = id
		return id
	}
	surfaces := s.Handles(geom.DimSurface)
	var signed float64
	for _, tri := range triangles {
		a, b, c := toR3(tri[0]), toR3(tri[1]), toR3(tri[2])
		if r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a))) <= q*q {
			continue
		}
		nodes := []int{vertex(tri[0]), vertex(tri[1]), vertex(tri[2])}
		if nodes[0] == nodes[1] || nodes[1] == nodes[2] || nodes[2] == nodes[0] {
			continue
		}
		signed += r3.Dot(a, r3.Cross(b, c))
		centroid := r3.Scale(1.0/3, r3.Add(a, r3.Add(b, c)))
		mesh.Elements = append(mesh.Elements, kernel.Element{
			Type:   kernel.Tri3,
			Entity: nearestSurface(s, surfaces, centroid),
			Nodes:  nodes,
		})
	}
	if len(mesh.Elements) == 0 {
		return nil, kernel.GenErr(dim, "marching cubes produced no triangles")
	}
	// Enclosed volume must be positive for outward facing triangles.
	if signed < 0 {
		for _, e := range mesh.Elements {
			e.Nodes[1], e.Nodes[2] = e.Nodes[2], e.Nodes[1]
		}
	}
	for i := range mesh.NodeEntity {
		mesh.NodeEntity[i] = nearestSurface(s, surfaces, mesh.Vertex(i))
	}

	m.logger.Info("sdfx mesh generated",
		zap.Int("cells", cells),
		zap.Float64("cell_size", longest/float64(cells)),
		zap.Int("nodes", mesh.VertexCount()),
		zap.Int("triangles", mesh.CountByType(kernel.Tri3)),
	)
	return mesh, nil
}

// minSize probes the size field on a uniform lattice over the bounding box
// and at every geometry point, returning the smallest value.
func minSize(ctx context.Context, s *geom.Store, f *volumeSDF, dim int, vol geom.Handle, size kernel.SizeCallback, opts kernel.Options) (float64, error) {
	eval := func(p r3.Vec) (float64, error) {
		v := opts.DefaultSize
		if size != nil {
			v = size(int(geom.DimVolume), int(vol), p.X, p.Y, p.Z, opts.DefaultSize)
		}
		v *= opts.SizeFactor
		if math.IsNaN(v) || v <= 0 {
			return 0, kernel.GenErr(dim, "size field returned %g at (%g, %g, %g)", v, p.X, p.Y, p.Z)
		}
		return v, nil
	}
	best := math.Inf(1)
	n := opts.Samples
	lo, hi := toR3(f.bb.Min), toR3(f.bb.Max)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				t := r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)}
				t = r3.Scale(1/float64(n-1), t)
				p := r3.Vec{
					X: lo.X + t.X*(hi.X-lo.X),
					Y: lo.Y + t.Y*(hi.Y-lo.Y),
					Z: lo.Z + t.Z*(hi.Z-lo.Z),
				}
				v, err := eval(p)
				if err != nil {
					return 0, err
				}
				best = math.Min(best, v)
			}
		}
	}
	for _, h := range s.Handles(geom.DimPoint) {
		pd, _ := s.Point(h)
		v, err := eval(pd.Pos)
		if err != nil {
			return 0, err
		}
		best = math.Min(best, v)
	}
	if math.IsInf(best, 1) {
		return 0, kernel.GenErr(dim, "size field is unbounded everywhere")
	}
	return best, nil
}

func nearestSurface(s *geom.Store, surfaces []geom.Handle, p r3.Vec) geom.Ref {
	best, ref := math.Inf(1), geom.Ref{}
	for _, h := range surfaces {
		if d, ok := s.Distance(geom.SurfaceRef(h), p); ok && d < best {
			best, ref = d, geom.SurfaceRef(h)
		}
	}
	return ref
}

// Optimize runs a named pass. Laplace3D has nothing to move on a surface
// mesh and always warns.
func (m *Mesher) Optimize(ctx context.Context, mesh *kernel.Mesh, pass string, niter int, opts kernel.Options) (*kernel.Mesh, error) {
	out, err := kernel.RunPass(ctx, mesh, pass, niter)
	var warn *kernel.OptimizationWarning
	if errors.As(err, &warn) {
		m.logger.Debug("optimize pass skipped", zap.String("pass", pass), zap.String("reason", warn.Message))
	}
	return out, err
}

// Refine splits every triangle in four and projects the new nodes onto
// the surfaces they are classified on.
func (m *Mesher) Refine(ctx context.Context, mesh *kernel.Mesh, opts kernel.Options) (*kernel.Mesh, error) {
	var proj kernel.Projector
	if mesh.Geometry != nil {
		proj = kernel.StoreProjector(mesh.Geometry)
	}
	out, err := kernel.RefineUniform(ctx, mesh, proj)
	if err != nil {
		return nil, err
	}
	m.logger.Info("mesh refined", zap.Int("nodes", out.VertexCount()), zap.Int("triangles", out.CountByType(kernel.Tri3)))
	return out, nil
}
