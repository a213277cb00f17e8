// Package recipe assembles complete impact meshing runs from a
// configuration: a refined plate or a cylinder, each with an impact axis
// through its centre and a sizing field that shrinks towards the axis.
package recipe

import (
	"context"
	"fmt"

	"github.com/chazu/impactmesh/pkg/config"
	"github.com/chazu/impactmesh/pkg/field"
	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/session"
	"gonum.org/v1/gonum/spatial/r3"
)

// Recipe prepares a session up to FieldBound.
type Recipe func(s *session.Session, cfg *config.Config) error

// Lookup returns the recipe registered under name.
func Lookup(name string) (Recipe, error) {
	switch name {
	case "plate":
		return Plate, nil
	case "cylinder":
		return Cylinder, nil
	}
	return nil, fmt.Errorf("unknown recipe %q (want plate or cylinder)", name)
}

// Plate builds a Length x Length x Height plate with the impact axis
// through its centre, embeds the axis and binds the impact field.
func Plate(s *session.Session, cfg *config.Config) error {
	g := cfg.Geometry
	var (
		plate *geom.Plate
		axis  *geom.ImpactAxis
	)
	err := s.Build(func(st *geom.Store) error {
		var err error
		if plate, err = geom.BuildPlate(st, g.Length, g.Length, g.Height, cfg.LC); err != nil {
			return err
		}
		half := g.Length / 2
		axis, err = geom.BuildImpactAxis(st, half, half, 0, g.Height, cfg.LC)
		return err
	})
	if err != nil {
		return err
	}
	if err := s.EmbedAll(session.AxisEmbeddings(axis, plate.Bottom, plate.Top, plate.Volume)...); err != nil {
		return err
	}
	return bind(s, cfg, axis)
}

// Cylinder builds a Radius x Height cylinder standing on the origin with
// the impact axis joining its cap centres.
func Cylinder(s *session.Session, cfg *config.Config) error {
	g := cfg.Geometry
	var (
		cyl  *geom.Cylinder
		axis *geom.ImpactAxis
	)
	err := s.Build(func(st *geom.Store) error {
		var err error
		if cyl, err = geom.BuildCylinder(st, r3.Vec{}, g.Radius, g.Height, cfg.LC); err != nil {
			return err
		}
		axis, err = cyl.Axis(st)
		return err
	})
	if err != nil {
		return err
	}
	if err := s.EmbedAll(session.AxisEmbeddings(axis, cyl.Bottom, cyl.Top, cyl.Volume)...); err != nil {
		return err
	}
	return bind(s, cfg, axis)
}

// RadialLine returns the mid-height segment from the impact axis of the
// named recipe out to its boundary along +x.
func RadialLine(name string, cfg *config.Config) (from, to r3.Vec, err error) {
	g := cfg.Geometry
	z := g.Height / 2
	switch name {
	case "plate":
		half := g.Length / 2
		return r3.Vec{X: half, Y: half, Z: z}, r3.Vec{X: g.Length, Y: half, Z: z}, nil
	case "cylinder":
		return r3.Vec{Z: z}, r3.Vec{X: g.Radius, Z: z}, nil
	}
	return r3.Vec{}, r3.Vec{}, fmt.Errorf("unknown recipe %q (want plate or cylinder)", name)
}

func bind(s *session.Session, cfg *config.Config, axis *geom.ImpactAxis) error {
	root, err := ImpactField(s.Graph(), s.Store(), axis, cfg)
	if err != nil {
		return err
	}
	return s.BindField(root, cfg.LCMin, cfg.LCMax, cfg.Floor)
}

// ImpactField adds the impact sizing field to g and returns its root:
// the minimum of Scale*d^Power + Offset over the distance d to the axis
// and one step cylinder per refinement radius.
func ImpactField(g *field.Graph, st *geom.Store, axis *geom.ImpactAxis, cfg *config.Config) (field.NodeID, error) {
	dist, err := g.AddDistance(st, geom.CurveRef(axis.Line))
	if err != nil {
		return 0, err
	}
	ref := cfg.Refinement
	if len(ref.Radii) != len(ref.InnerSizes) {
		return 0, fmt.Errorf("refinement has %d radii but %d inner sizes", len(ref.Radii), len(ref.InnerSizes))
	}
	d := cfg.Distance
	grow, err := g.AddTransform(dist, field.Poly{Scale: d.Scale, Power: d.Power, Offset: d.Offset})
	if err != nil {
		return 0, err
	}
	inputs := []field.NodeID{grow}

	start, ok := st.Point(axis.Start)
	end, ok2 := st.Point(axis.End)
	if !ok || !ok2 {
		return 0, fmt.Errorf("impact axis end points are not in the store")
	}
	for i, radius := range ref.Radii {
		id, err := g.AddCylinder(field.Cylinder{
			Center: start.Pos,
			Axis:   r3.Sub(end.Pos, start.Pos),
			Radius: radius,
			Inner:  ref.InnerSizes[i],
			Outer:  ref.OuterSize,
		})
		if err != nil {
			return 0, fmt.Errorf("refinement cylinder %d: %w", i, err)
		}
		inputs = append(inputs, id)
	}
	if len(inputs) == 1 {
		return grow, nil
	}
	return g.AddMin(inputs...)
}

// Mesh runs the meshing stages the configuration asks for: generate,
// the optimize passes, an optional refinement and the final write.
func Mesh(ctx context.Context, s *session.Session, cfg *config.Config) error {
	passes, err := cfg.Passes()
	if err != nil {
		return err
	}
	if err := s.Generate(ctx, cfg.Mesher.Dimension); err != nil {
		return err
	}
	if len(passes) > 0 {
		if err := s.Optimize(ctx, passes...); err != nil {
			return err
		}
	}
	if cfg.Mesher.Refine {
		if err := s.Refine(ctx); err != nil {
			return err
		}
	}
	return s.Write(cfg.Output)
}
