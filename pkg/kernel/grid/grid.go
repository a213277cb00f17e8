// Package grid implements kernel.Mesher with a graded axis aligned
// hexahedral grid. Grid lines pass through every geometry point so that
// embedded anchors become mesh nodes, and the spacing along each axis
// follows the size field.
package grid

import (
	"context"
	"errors"
	"math"

	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compile-time interface check.
var _ kernel.Mesher = (*Mesher)(nil)

// Mesher is the grid mesher. The zero value is not usable; call New.
type Mesher struct {
	logger *zap.Logger
}

// Option configures a Mesher.
type Option func(*Mesher)

// WithLogger sets the logger used to report generation and passes.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mesher) { m.logger = l }
}

// New returns a grid mesher.
func New(opts ...Option) *Mesher {
	m := &Mesher{logger: zap.NewNop()}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Mesher) Name() string { return "grid" }

// Locator returns the exact geometric containment test of the store.
func (m *Mesher) Locator() geom.Locator { return geom.GeometricLocator{Samples: 16} }

// corner offsets of a cell in Hex8 order.
var (
	cornerI = [8]int{0, 1, 1, 0, 0, 1, 1, 0}
	cornerJ = [8]int{0, 0, 1, 1, 0, 0, 1, 1}
	cornerK = [8]int{0, 0, 0, 0, 1, 1, 1, 1}
)

// faceOffsets gives the neighbouring cell across each of kernel.HexFaces.
var faceOffsets = [6][3]int{
	{0, 0, -1}, {0, 0, 1},
	{0, -1, 0}, {0, 1, 0},
	{1, 0, 0}, {-1, 0, 0},
}

var hexEdges = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// lattice indexes grid nodes and cells.
type lattice struct {
	coords [3][]float64
}

func (l *lattice) cells() (int, int, int) {
	return len(l.coords[0]) - 1, len(l.coords[1]) - 1, len(l.coords[2]) - 1
}

func (l *lattice) node(i, j, k int) int {
	return i + len(l.coords[0])*(j+len(l.coords[1])*k)
}

func (l *lattice) cell(i, j, k int) int {
	nx, ny, _ := l.cells()
	return i + nx*(j+ny*k)
}

func (l *lattice) pos(i, j, k int) r3.Vec {
	return r3.Vec{X: l.coords[0][i], Y: l.coords[1][j], Z: l.coords[2][k]}
}

func (l *lattice) centre(i, j, k int) r3.Vec {
	return r3.Scale(0.5, r3.Add(l.pos(i, j, k), l.pos(i+1, j+1, k+1)))
}

// Generate meshes every volume of s. See kernel.Mesher.
func (m *Mesher) Generate(ctx context.Context, s *geom.Store, dim int, size kernel.SizeCallback, opts kernel.Options) (*kernel.Mesh, error) {
	if err := opts.Validate(); err != nil {
		return nil, &kernel.GenerationError{Dim: dim, Message: "invalid options", Err: err}
	}
	if dim != 2 && dim != 3 {
		return nil, kernel.GenErr(dim, "dimension must be 2 or 3")
	}
	vols := s.Handles(geom.DimVolume)
	if len(vols) == 0 {
		return nil, kernel.GenErr(dim, "geometry has no volume")
	}
	tol := s.Tolerance()
	bb := s.BoundingBox()
	h := sizer(s, dim, vols[0], size, opts)

	var mandatory [3][]float64
	for _, ph := range s.Handles(geom.DimPoint) {
		pd, _ := s.Point(ph)
		for a := 0; a < 3; a++ {
			mandatory[a] = append(mandatory[a], component(pd.Pos, a))
		}
	}
	lat := &lattice{}
	for a := 0; a < 3; a++ {
		mandatory[a] = uniqueSorted(append(mandatory[a], component(bb.Min, a), component(bb.Max, a)), tol)
	}
	for a := 0; a < 3; a++ {
		u, v := (a+1)%3, (a+2)%3
		plane := [2][]float64{
			probes(mandatory[u], component(bb.Min, u), component(bb.Max, u), opts.Samples, tol),
			probes(mandatory[v], component(bb.Min, v), component(bb.Max, v), opts.Samples, tol),
		}
		c, err := gradeAxis(ctx, a, mandatory[a], plane, h, opts.MaxElements)
		if errors.Is(err, errCellLimit) {
			return nil, kernel.GenErr(dim, "size field requires more than %d cells along axis %d", opts.MaxElements, a)
		}
		if err != nil {
			return nil, err
		}
		lat.coords[a] = c
	}
	nx, ny, nz := lat.cells()
	if total := float64(nx) * float64(ny) * float64(nz); total > float64(opts.MaxElements) {
		return nil, kernel.GenErr(dim, "size field requires %.0f cells, above the limit of %d", total, opts.MaxElements)
	}

	// Cell membership: the volume containing the cell centre, 0 outside.
	owner := make([]geom.Handle, nx*ny*nz)
	kept := 0
	for k := 0; k < nz; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				c := lat.centre(i, j, k)
				for _, v := range vols {
					if s.Contains(geom.VolumeRef(v), c, tol) {
						owner[lat.cell(i, j, k)] = v
						kept++
						break
					}
				}
			}
		}
	}
	if kept == 0 {
		return nil, kernel.GenErr(dim, "no grid cell lies inside a volume")
	}

	b := &builder{
		s:       s,
		lat:     lat,
		tol:     tol,
		mesh:    &kernel.Mesh{Dim: dim, Geometry: s},
		vertex:  make(map[int]int),
		nodeVol: make(map[int]geom.Handle),
		exposed: make(map[int]bool),
	}
	var hexes, quads []kernel.Element
	for k := 0; k < nz; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				v := owner[lat.cell(i, j, k)]
				if v == 0 {
					continue
				}
				nodes := make([]int, 8)
				for c := 0; c < 8; c++ {
					nodes[c] = b.node(i+cornerI[c], j+cornerJ[c], k+cornerK[c], v)
				}
				hexes = append(hexes, kernel.Element{Type: kernel.Hex8, Entity: geom.VolumeRef(v), Nodes: nodes})
				for f, off := range faceOffsets {
					ni, nj, nk := i+off[0], j+off[1], k+off[2]
					if ni >= 0 && nj >= 0 && nk >= 0 && ni < nx && nj < ny && nk < nz && owner[lat.cell(ni, nj, nk)] == v {
						continue
					}
					q := make([]int, 4)
					for c, local := range kernel.HexFaces[f] {
						q[c] = nodes[local]
						b.exposed[q[c]] = true
					}
					quads = append(quads, kernel.Element{Type: kernel.Quad4, Nodes: q})
				}
			}
		}
	}
	b.classify()
	for i := range quads {
		quads[i].Entity = b.faceEntity(quads[i].Nodes)
	}

	mesh := b.mesh
	mesh.Elements = append(mesh.Elements, b.pointElements()...)
	mesh.Elements = append(mesh.Elements, b.lineElements(hexes)...)
	mesh.Elements = append(mesh.Elements, quads...)
	if dim == 3 {
		mesh.Elements = append(mesh.Elements, hexes...)
	} else {
		mesh = compact(mesh)
	}

	if dim == 3 && opts.Smoothing > 0 {
		smoothed, err := kernel.Laplace(ctx, mesh, kernel.PassLaplace3D, geom.DimVolume, opts.Smoothing, nil)
		var warn *kernel.OptimizationWarning
		switch {
		case errors.As(err, &warn):
			m.logger.Debug("generation smoothing skipped", zap.String("reason", warn.Message))
		case err != nil:
			return nil, err
		default:
			mesh = smoothed
		}
	}

	m.logger.Info("grid mesh generated",
		zap.Int("dim", dim),
		zap.Ints("divisions", []int{nx, ny, nz}),
		zap.Int("nodes", mesh.VertexCount()),
		zap.Int("hexahedra", mesh.CountByType(kernel.Hex8)),
		zap.Int("quadrangles", mesh.CountByType(kernel.Quad4)),
	)
	return mesh, nil
}

// sizer wraps the size callback. The proposed size is the hint of the
// nearest point when opts.SizeFromPoints is set, otherwise the default
// size. The result is scaled by opts.SizeFactor.
func sizer(s *geom.Store, dim int, vol geom.Handle, size kernel.SizeCallback, opts kernel.Options) sizeFunc {
	var hints []geom.PointData
	if opts.SizeFromPoints {
		for _, h := range s.Handles(geom.DimPoint) {
			if pd, _ := s.Point(h); pd.TargetSize > 0 {
				hints = append(hints, pd)
			}
		}
	}
	return func(p r3.Vec) (float64, error) {
		lc := opts.DefaultSize
		best := math.Inf(1)
		for _, hint := range hints {
			if d := r3.Norm2(r3.Sub(p, hint.Pos)); d < best {
				best, lc = d, hint.TargetSize
			}
		}
		v := lc
		if size != nil {
			v = size(int(geom.DimVolume), int(vol), p.X, p.Y, p.Z, lc)
		}
		v *= opts.SizeFactor
		if math.IsNaN(v) || v <= 0 {
			return 0, kernel.GenErr(dim, "size field returned %g at (%g, %g, %g)", v, p.X, p.Y, p.Z)
		}
		return v, nil
	}
}

// Optimize runs a named pass. See kernel.Mesher.
func (m *Mesher) Optimize(ctx context.Context, mesh *kernel.Mesh, pass string, niter int, opts kernel.Options) (*kernel.Mesh, error) {
	out, err := kernel.RunPass(ctx, mesh, pass, niter)
	if err == nil {
		q := kernel.MeasureQuality(out)
		m.logger.Info("optimize pass applied", zap.String("pass", pass), zap.Float64("min_quality", q.Min), zap.Float64("mean_quality", q.Mean))
	}
	return out, err
}

// Refine splits every element once. New nodes stay on the straight
// element edges, which are exact for the planar faces the grid produces.
func (m *Mesher) Refine(ctx context.Context, mesh *kernel.Mesh, opts kernel.Options) (*kernel.Mesh, error) {
	out, err := kernel.RefineUniform(ctx, mesh, nil)
	if err != nil {
		return nil, err
	}
	m.logger.Info("mesh refined", zap.Int("nodes", out.VertexCount()), zap.Int("elements", out.ElementCount()))
	return out, nil
}
