package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Plate is a rectangular prism [0,length]x[0,width]x[0,height] built from
// plane faces.
type Plate struct {
	Corners [8]Handle  // A B C D on z=0, E F G H on z=height
	Lines   [12]Handle // 4 bottom, 4 top, 4 vertical
	Bottom  Handle
	Top     Handle
	Sides   [4]Handle // x=0, y=0, x=length, y=width
	Shell   Handle
	Volume  Handle
}

// BuildPlate adds a plate to the store. lc is stored as the per-vertex
// size hint of every corner.
func BuildPlate(s *Store, length, width, height, lc float64) (*Plate, error) {
	if !(length > 0 && width > 0 && height > 0) {
		return nil, topoErr("BuildPlate", Ref{}, "plate dimensions must be positive")
	}
	p := &Plate{}
	corners := []r3.Vec{
		{}, {X: length}, {X: length, Y: width}, {Y: width},
		{Z: height}, {X: length, Z: height}, {X: length, Y: width, Z: height}, {Y: width, Z: height},
	}
	var err error
	for i, c := range corners {
		if p.Corners[i], err = s.AddPoint(c, lc); err != nil {
			return nil, err
		}
	}
	// Curve i connects corner pair i; the odd directions of lines 2, 6 and
	// the loop signs below reproduce the classic six-loop plate layout.
	pairs := [12][2]int{
		{0, 1}, {2, 1}, {2, 3}, {3, 0},
		{4, 5}, {6, 5}, {6, 7}, {7, 4},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
	}
	for i, pr := range pairs {
		if p.Lines[i], err = s.AddLine(p.Corners[pr[0]], p.Corners[pr[1]]); err != nil {
			return nil, err
		}
	}
	l := func(i int) int { return int(p.Lines[i-1]) }
	loops := [6][]int{
		{l(4), l(1), -l(2), l(3)},
		{l(8), l(5), -l(6), l(7)},
		{l(12), l(8), -l(9), -l(4)},
		{l(5), -l(10), -l(1), l(9)},
		{-l(6), -l(11), l(2), l(10)},
		{l(11), l(7), -l(12), -l(3)},
	}
	var faces [6]Handle
	for i, curves := range loops {
		loop, err := s.AddCurveLoop(curves)
		if err != nil {
			return nil, fmt.Errorf("plate face %d: %w", i+1, err)
		}
		if faces[i], err = s.AddPlaneSurface([]Handle{loop}); err != nil {
			return nil, fmt.Errorf("plate face %d: %w", i+1, err)
		}
	}
	p.Bottom, p.Top = faces[0], faces[1]
	copy(p.Sides[:], faces[2:])
	// Only the top loop turns outward; every other face is flipped.
	shell := []int{-int(faces[0]), int(faces[1]), -int(faces[2]), -int(faces[3]), -int(faces[4]), -int(faces[5])}
	if p.Shell, err = s.AddSurfaceLoop(shell); err != nil {
		return nil, err
	}
	if p.Volume, err = s.AddVolume(p.Shell); err != nil {
		return nil, err
	}
	return p, nil
}

// ImpactAxis is a straight anchor line marking the impact locus.
type ImpactAxis struct {
	Start, End Handle
	Line       Handle
}

// BuildImpactAxis adds the line from (x,y,z0) to (x,y,z1) with its own
// end points.
func BuildImpactAxis(s *Store, x, y, z0, z1, lc float64) (*ImpactAxis, error) {
	a := &ImpactAxis{}
	var err error
	if a.Start, err = s.AddPoint(r3.Vec{X: x, Y: y, Z: z0}, lc); err != nil {
		return nil, err
	}
	if a.End, err = s.AddPoint(r3.Vec{X: x, Y: y, Z: z1}, lc); err != nil {
		return nil, err
	}
	if a.Line, err = s.AddLine(a.Start, a.End); err != nil {
		return nil, err
	}
	return a, nil
}

// EmbedAxis embeds an impact axis through a solid: each end point in its
// cap face and in the volume, and the line in the volume.
func EmbedAxis(s *Store, loc Locator, axis *ImpactAxis, bottom, top, volume Handle) error {
	steps := []struct {
		anchor Ref
		dim    Dim
		host   Handle
	}{
		{PointRef(axis.Start), DimSurface, bottom},
		{PointRef(axis.Start), DimVolume, volume},
		{PointRef(axis.End), DimSurface, top},
		{PointRef(axis.End), DimVolume, volume},
		{CurveRef(axis.Line), DimVolume, volume},
	}
	for _, st := range steps {
		if err := s.Embed(loc, st.anchor, st.dim, st.host); err != nil {
			return err
		}
	}
	return nil
}

// Cylinder is a circular solid standing on the z=center.Z plane. Its
// rim is split into four quarter arcs so that each lateral face is a
// four sided patch.
type Cylinder struct {
	Centers [2]Handle // bottom and top arc centers
	Rim     [2][4]Handle
	Arcs    [2][4]Handle
	Rulings [4]Handle
	Bottom  Handle
	Top     Handle
	Lateral [4]Handle
	Shell   Handle
	Volume  Handle
}

// BuildCylinder adds a cylinder of the given radius and height.
func BuildCylinder(s *Store, center r3.Vec, radius, height, lc float64) (*Cylinder, error) {
	if !(radius > 0 && height > 0) {
		return nil, topoErr("BuildCylinder", Ref{}, "cylinder dimensions must be positive")
	}
	c := &Cylinder{}
	var err error
	for lvl := 0; lvl < 2; lvl++ {
		z := center.Z + float64(lvl)*height
		if c.Centers[lvl], err = s.AddPoint(r3.Vec{X: center.X, Y: center.Y, Z: z}, lc); err != nil {
			return nil, err
		}
		for k := 0; k < 4; k++ {
			theta := float64(k) * math.Pi / 2
			pos := r3.Vec{X: center.X + radius*math.Cos(theta), Y: center.Y + radius*math.Sin(theta), Z: z}
			if c.Rim[lvl][k], err = s.AddPoint(pos, lc); err != nil {
				return nil, err
			}
		}
		for k := 0; k < 4; k++ {
			c.Arcs[lvl][k], err = s.AddCircleArc(c.Rim[lvl][k], c.Centers[lvl], c.Rim[lvl][(k+1)%4])
			if err != nil {
				return nil, err
			}
		}
	}
	for k := 0; k < 4; k++ {
		if c.Rulings[k], err = s.AddLine(c.Rim[0][k], c.Rim[1][k]); err != nil {
			return nil, err
		}
	}
	var caps [2]Handle
	for lvl := 0; lvl < 2; lvl++ {
		curves := make([]int, 4)
		for k := range curves {
			curves[k] = int(c.Arcs[lvl][k])
		}
		loop, err := s.AddCurveLoop(curves)
		if err != nil {
			return nil, err
		}
		if caps[lvl], err = s.AddPlaneSurface([]Handle{loop}); err != nil {
			return nil, err
		}
	}
	c.Bottom, c.Top = caps[0], caps[1]
	shell := []int{-int(c.Bottom), int(c.Top)}
	for k := 0; k < 4; k++ {
		loop, err := s.AddCurveLoop([]int{
			int(c.Arcs[0][k]), int(c.Rulings[(k+1)%4]), -int(c.Arcs[1][k]), -int(c.Rulings[k]),
		})
		if err != nil {
			return nil, err
		}
		if c.Lateral[k], err = s.AddSurfaceFilling(loop); err != nil {
			return nil, err
		}
		shell = append(shell, int(c.Lateral[k]))
	}
	if c.Shell, err = s.AddSurfaceLoop(shell); err != nil {
		return nil, err
	}
	if c.Volume, err = s.AddVolume(c.Shell); err != nil {
		return nil, err
	}
	return c, nil
}

// Axis adds the impact axis joining the two arc centers.
func (c *Cylinder) Axis(s *Store) (*ImpactAxis, error) {
	line, err := s.AddLine(c.Centers[0], c.Centers[1])
	if err != nil {
		return nil, err
	}
	return &ImpactAxis{Start: c.Centers[0], End: c.Centers[1], Line: line}, nil
}
