package kernel

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// hexCorners lists, for each Hex8 corner, its three edge neighbours in
// right handed order.
var hexCorners = [8][4]int{
	{0, 1, 3, 4}, {1, 2, 0, 5}, {2, 3, 1, 6}, {3, 0, 2, 7},
	{4, 7, 5, 0}, {5, 4, 6, 1}, {6, 5, 7, 2}, {7, 6, 4, 3},
}

// ScaledJacobian returns the minimum corner scaled Jacobian of element e:
// 1 for a perfect cell, <= 0 for an inverted or degenerate one. Points and
// lines always score 1.
func (m *Mesh) ScaledJacobian(e Element) float64 {
	switch e.Type {
	case Hex8:
		q := math.Inf(1)
		for _, c := range hexCorners {
			q = math.Min(q, cornerJacobian(m, e.Nodes[c[0]], e.Nodes[c[1]], e.Nodes[c[2]], e.Nodes[c[3]]))
		}
		return q
	case Tet4:
		// A regular tetrahedron has corner scaled Jacobian 1/sqrt(2).
		return math.Sqrt2 * cornerJacobian(m, e.Nodes[0], e.Nodes[1], e.Nodes[2], e.Nodes[3])
	case Quad4, Tri3:
		return faceJacobian(m, e.Nodes)
	}
	return 1
}

func cornerJacobian(m *Mesh, o, a, b, c int) float64 {
	p := m.Vertex(o)
	cols := [3]r3.Vec{r3.Sub(m.Vertex(a), p), r3.Sub(m.Vertex(b), p), r3.Sub(m.Vertex(c), p)}
	j := mat.NewDense(3, 3, nil)
	for i, v := range cols {
		n := r3.Norm(v)
		if n == 0 {
			return 0
		}
		j.Set(0, i, v.X/n)
		j.Set(1, i, v.Y/n)
		j.Set(2, i, v.Z/n)
	}
	return mat.Det(j)
}

// faceJacobian measures a polygon against its mean normal.
func faceJacobian(m *Mesh, nodes []int) float64 {
	k := len(nodes)
	var normal r3.Vec
	for i := range nodes {
		a, b := m.Vertex(nodes[i]), m.Vertex(nodes[(i+1)%k])
		normal = r3.Add(normal, r3.Cross(a, b))
	}
	if r3.Norm(normal) == 0 {
		return 0
	}
	normal = r3.Unit(normal)
	q := math.Inf(1)
	for i := range nodes {
		p := m.Vertex(nodes[i])
		e1 := r3.Sub(m.Vertex(nodes[(i+1)%k]), p)
		e2 := r3.Sub(m.Vertex(nodes[(i+k-1)%k]), p)
		n1, n2 := r3.Norm(e1), r3.Norm(e2)
		if n1 == 0 || n2 == 0 {
			return 0
		}
		s := r3.Dot(r3.Cross(e1, e2), normal) / (n1 * n2)
		if k == 3 {
			// An equilateral triangle has sin(60°) at every corner.
			s /= math.Sqrt(3) / 2
		}
		q = math.Min(q, s)
	}
	return q
}

// Quality summarises element quality over the highest dimensional
// elements of a mesh.
type Quality struct {
	Elements int
	Min      float64
	Mean     float64
	StdDev   float64
	Inverted int // elements with scaled Jacobian <= 0
}

// MeasureQuality computes the scaled Jacobian statistics of the highest
// dimensional elements of m.
func MeasureQuality(m *Mesh) Quality {
	top := 0
	for _, e := range m.Elements {
		if d := e.Type.Dim(); d > top {
			top = d
		}
	}
	return MeasureQualityOf(m, top)
}

// MeasureQualityOf computes the statistics of the dimension dim elements.
func MeasureQualityOf(m *Mesh, dim int) Quality {
	var qs []float64
	for _, e := range m.Elements {
		if e.Type.Dim() == dim {
			qs = append(qs, m.ScaledJacobian(e))
		}
	}
	if len(qs) == 0 {
		return Quality{}
	}
	q := Quality{Elements: len(qs), Min: math.Inf(1)}
	for _, v := range qs {
		q.Min = math.Min(q.Min, v)
		if v <= 0 {
			q.Inverted++
		}
	}
	q.Mean, q.StdDev = stat.MeanStdDev(qs, nil)
	return q
}
