package geom

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Dim is the topological dimension of an entity.
type Dim int

const (
	DimPoint   Dim = iota // 0-d vertex
	DimCurve              // 1-d edge
	DimSurface            // 2-d face
	DimVolume             // 3-d region
)

func (d Dim) String() string {
	switch d {
	case DimPoint:
		return "point"
	case DimCurve:
		return "curve"
	case DimSurface:
		return "surface"
	case DimVolume:
		return "volume"
	default:
		return fmt.Sprintf("Dim(%d)", int(d))
	}
}

// Valid reports whether d is one of the four entity dimensions.
func (d Dim) Valid() bool {
	return d >= DimPoint && d <= DimVolume
}

// Handle identifies an entity within its dimension. Handles are positive,
// assigned by the Store and never reused.
type Handle int

// Ref is a fully qualified entity reference.
type Ref struct {
	Dim Dim
	Tag Handle
}

func (r Ref) String() string {
	return fmt.Sprintf("(%d,%d)", int(r.Dim), int(r.Tag))
}

// PointRef, CurveRef, SurfaceRef and VolumeRef build refs of fixed dimension.
func PointRef(h Handle) Ref   { return Ref{Dim: DimPoint, Tag: h} }
func CurveRef(h Handle) Ref   { return Ref{Dim: DimCurve, Tag: h} }
func SurfaceRef(h Handle) Ref { return Ref{Dim: DimSurface, Tag: h} }
func VolumeRef(h Handle) Ref  { return Ref{Dim: DimVolume, Tag: h} }

// EntityKind distinguishes the concrete entity variants.
type EntityKind int

const (
	KindPoint EntityKind = iota
	KindLine
	KindCircleArc
	KindCircle
	KindCurveLoop
	KindPlaneSurface
	KindSurfaceFilling
	KindSurfaceLoop
	KindVolume
)

func (k EntityKind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindCircleArc:
		return "circle-arc"
	case KindCircle:
		return "circle"
	case KindCurveLoop:
		return "curve-loop"
	case KindPlaneSurface:
		return "plane-surface"
	case KindSurfaceFilling:
		return "surface-filling"
	case KindSurfaceLoop:
		return "surface-loop"
	case KindVolume:
		return "volume"
	default:
		return "unknown"
	}
}

// Entity is a single record of the store. Loops are stored as entities too,
// but live in their own handle spaces and have no dimension of their own.
type Entity struct {
	Handle Handle
	Kind   EntityKind
	Data   EntityData
}

// EntityData is the interface for kind-specific entity payloads.
type EntityData interface {
	entityData() // marker method restricting implementations to this package
}

// PointData is a vertex. TargetSize is an optional per-vertex size hint;
// zero means no hint.
type PointData struct {
	Pos        r3.Vec
	TargetSize float64
}

func (PointData) entityData() {}

// LineData is a straight segment between two existing points.
type LineData struct {
	Start, End Handle
}

func (LineData) entityData() {}

// CircleArcData is an arc strictly shorter than a half circle, from Start
// to End around Center. Center is a construction point, not a boundary
// vertex of the arc.
type CircleArcData struct {
	Start, Center, End Handle
}

func (CircleArcData) entityData() {}

// CircleData is a closed circle. Seam is the single vertex where the
// parametrisation starts and ends.
type CircleData struct {
	Seam   Handle
	Center r3.Vec
	Radius float64
	Normal r3.Vec // unit
}

func (CircleData) entityData() {}

// CurveLoopData is an ordered cycle of signed curve handles; a negative
// entry traverses the curve from its end to its start.
type CurveLoopData struct {
	Curves []int
}

func (CurveLoopData) entityData() {}

// PlaneSurfaceData is a planar face bounded by an outer loop and optional
// hole loops.
type PlaneSurfaceData struct {
	Loops []Handle
}

func (PlaneSurfaceData) entityData() {}

// SurfaceFillingData is a transfinite (Coons) patch bounded by a loop of
// three or four curves.
type SurfaceFillingData struct {
	Loop Handle
}

func (SurfaceFillingData) entityData() {}

// SurfaceLoopData is a closed shell of signed surface handles; a negative
// entry flips the surface orientation within the shell.
type SurfaceLoopData struct {
	Surfaces []int
}

func (SurfaceLoopData) entityData() {}

// VolumeData is a region bounded by an outer shell and optional hole shells.
type VolumeData struct {
	Shells []Handle
}

func (VolumeData) entityData() {}

// dimOf returns the dimension of a dimensional entity kind.
func dimOf(k EntityKind) (Dim, bool) {
	switch k {
	case KindPoint:
		return DimPoint, true
	case KindLine, KindCircleArc, KindCircle:
		return DimCurve, true
	case KindPlaneSurface, KindSurfaceFilling:
		return DimSurface, true
	case KindVolume:
		return DimVolume, true
	}
	return 0, false
}

// sign returns the handle and direction of a signed reference.
func sign(signed int) (Handle, bool) {
	if signed < 0 {
		return Handle(-signed), true
	}
	return Handle(signed), false
}
