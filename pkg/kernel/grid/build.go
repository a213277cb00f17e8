package grid

import (
	"math"
	"sort"

	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// builder accumulates mesh vertices for the kept cells of a lattice and
// classifies them on geometric entities.
type builder struct {
	s       *geom.Store
	lat     *lattice
	tol     float64
	mesh    *kernel.Mesh
	vertex  map[int]int         // lattice node -> mesh vertex
	nodeVol map[int]geom.Handle // mesh vertex -> first owning volume
	exposed map[int]bool        // mesh vertex on a boundary face
}

func (b *builder) node(i, j, k int, vol geom.Handle) int {
	key := b.lat.node(i, j, k)
	if id, ok := b.vertex[key]; ok {
		return id
	}
	id := b.mesh.AddVertex(b.lat.pos(i, j, k), geom.VolumeRef(vol))
	b.vertex[key] = id
	b.nodeVol[id] = vol
	return id
}

// classify assigns every vertex the lowest dimensional entity it lies on:
// a point, then a curve, then for boundary vertices the nearest surface,
// and otherwise its volume.
func (b *builder) classify() {
	points := b.s.Handles(geom.DimPoint)
	curves := b.s.Handles(geom.DimCurve)
	surfaces := b.s.Handles(geom.DimSurface)
	for id := range b.mesh.NodeEntity {
		p := b.mesh.Vertex(id)
		b.mesh.NodeEntity[id] = b.locate(p, b.exposed[id], b.nodeVol[id], points, curves, surfaces)
	}
}

func (b *builder) locate(p r3.Vec, boundary bool, vol geom.Handle, points, curves, surfaces []geom.Handle) geom.Ref {
	for _, h := range points {
		if d, _ := b.s.Distance(geom.PointRef(h), p); d <= b.tol {
			return geom.PointRef(h)
		}
	}
	for _, h := range curves {
		if d, _ := b.s.Distance(geom.CurveRef(h), p); d <= b.tol {
			return geom.CurveRef(h)
		}
	}
	if boundary {
		return b.nearestSurface(p, surfaces)
	}
	for _, h := range surfaces {
		if d, _ := b.s.Distance(geom.SurfaceRef(h), p); d <= b.tol {
			return geom.SurfaceRef(h)
		}
	}
	return geom.VolumeRef(vol)
}

func (b *builder) nearestSurface(p r3.Vec, surfaces []geom.Handle) geom.Ref {
	best, ref := math.Inf(1), geom.Ref{}
	for _, h := range surfaces {
		if d, ok := b.s.Distance(geom.SurfaceRef(h), p); ok && d < best {
			best, ref = d, geom.SurfaceRef(h)
		}
	}
	return ref
}

// faceEntity returns the surface a boundary quadrangle is classified on:
// a surface carrying one of its corners when all of them agree, otherwise
// the surface nearest to its centre.
func (b *builder) faceEntity(nodes []int) geom.Ref {
	var found geom.Ref
	agree := true
	var c r3.Vec
	for _, n := range nodes {
		c = r3.Add(c, b.mesh.Vertex(n))
		ent := b.mesh.NodeEntity[n]
		if ent.Dim != geom.DimSurface {
			continue
		}
		if found.Tag != 0 && found != ent {
			agree = false
		}
		found = ent
	}
	if found.Tag != 0 && agree {
		return found
	}
	return b.nearestSurface(r3.Scale(0.25, c), b.s.Handles(geom.DimSurface))
}

func (b *builder) pointElements() []kernel.Element {
	var out []kernel.Element
	for id, ent := range b.mesh.NodeEntity {
		if ent.Dim == geom.DimPoint {
			out = append(out, kernel.Element{Type: kernel.Point1, Entity: ent, Nodes: []int{id}})
		}
	}
	return out
}

// lineElements returns the hexahedron edges lying on a curve.
func (b *builder) lineElements(hexes []kernel.Element) []kernel.Element {
	curves := b.s.Handles(geom.DimCurve)
	seen := make(map[[2]int]bool)
	var out []kernel.Element
	for _, e := range hexes {
		for _, ed := range hexEdges {
			u, v := e.Nodes[ed[0]], e.Nodes[ed[1]]
			if u > v {
				u, v = v, u
			}
			if seen[[2]int{u, v}] {
				continue
			}
			seen[[2]int{u, v}] = true
			if b.mesh.NodeEntity[u].Dim > geom.DimCurve || b.mesh.NodeEntity[v].Dim > geom.DimCurve {
				continue
			}
			pu, pv := b.mesh.Vertex(u), b.mesh.Vertex(v)
			mid := r3.Scale(0.5, r3.Add(pu, pv))
			for _, h := range curves {
				ref := geom.CurveRef(h)
				if b.onCurve(ref, pu) && b.onCurve(ref, pv) && b.onCurve(ref, mid) {
					out = append(out, kernel.Element{Type: kernel.Line2, Entity: ref, Nodes: []int{e.Nodes[ed[0]], e.Nodes[ed[1]]}})
					break
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Entity.Tag < out[j].Entity.Tag })
	return out
}

func (b *builder) onCurve(ref geom.Ref, p r3.Vec) bool {
	d, ok := b.s.Distance(ref, p)
	return ok && d <= b.tol
}

// compact drops vertices no element references and renumbers the rest.
func compact(m *kernel.Mesh) *kernel.Mesh {
	remap := make([]int, m.VertexCount())
	for i := range remap {
		remap[i] = -1
	}
	out := &kernel.Mesh{Dim: m.Dim, Geometry: m.Geometry}
	for _, e := range m.Elements {
		nodes := make([]int, len(e.Nodes))
		for i, n := range e.Nodes {
			if remap[n] < 0 {
				remap[n] = out.AddVertex(m.Vertex(n), m.NodeEntity[n])
			}
			nodes[i] = remap[n]
		}
		out.Elements = append(out.Elements, kernel.Element{Type: e.Type, Entity: e.Entity, Nodes: nodes})
	}
	return out
}
