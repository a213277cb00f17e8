package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/impactmesh/pkg/field"
	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/chazu/impactmesh/pkg/session"
	zygo "github.com/glycerine/zygomys/zygo"
	"gonum.org/v1/gonum/spatial/r3"
)

// builtinFunc is the zygomys user function signature.
type builtinFunc = func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)

// wrap prefixes every error of fn with the builtin name as written in
// scripts, kebab-case restored.
func wrap(fn builtinFunc) builtinFunc {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		out, err := fn(env, name, args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", strings.ReplaceAll(name, "_", "-"), err)
		}
		return out, nil
	}
}

// registerBuiltins installs the session script builtins into env. They
// populate st during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens and kebab-case names are recognized.
func registerBuiltins(env *zygo.Zlisp, st *scriptState) {
	add := func(name string, fn builtinFunc) {
		env.AddFunction(strings.ReplaceAll(name, "-", "_"), wrap(fn))
	}
	registerGeometry(add, st)
	registerBuilders(add, st)
	registerEmbedding(add, st)
	registerFields(add, st)
	registerMeshing(add, st)
}

func ref(r geom.Ref) *sexpRef { return &sexpRef{ref: r} }

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

func registerGeometry(add func(string, builtinFunc), st *scriptState) {
	// (vec3 1 2 3)
	add("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return nil, err
			}
			c[i] = f
		}
		return &sexpVec3{vec: r3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// (point x y z :lc 0.01)
	add("point", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		pa := parseArgs(args)
		if len(pa.positional) != 3 {
			return nil, fmt.Errorf("requires x, y and z, got %d values", len(pa.positional))
		}
		var c [3]float64
		for i, a := range pa.positional {
			if c[i], err = toFloat64(a); err != nil {
				return nil, err
			}
		}
		lc, err := pa.float("lc", 0)
		if err != nil {
			return nil, err
		}
		h, err := s.AddPoint(r3.Vec{X: c[0], Y: c[1], Z: c[2]}, lc)
		if err != nil {
			return nil, err
		}
		return ref(geom.PointRef(h)), nil
	})

	// (line p1 p2)
	add("line", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("requires 2 points, got %d", len(args))
		}
		a, err := toHandle(args[0], geom.DimPoint)
		if err != nil {
			return nil, err
		}
		b, err := toHandle(args[1], geom.DimPoint)
		if err != nil {
			return nil, err
		}
		h, err := s.AddLine(a, b)
		if err != nil {
			return nil, err
		}
		return ref(geom.CurveRef(h)), nil
	})

	// (arc start center end)
	add("arc", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		if len(args) != 3 {
			return nil, fmt.Errorf("requires start, center and end points, got %d", len(args))
		}
		var p [3]geom.Handle
		for i, a := range args {
			if p[i], err = toHandle(a, geom.DimPoint); err != nil {
				return nil, err
			}
		}
		h, err := s.AddCircleArc(p[0], p[1], p[2])
		if err != nil {
			return nil, err
		}
		return ref(geom.CurveRef(h)), nil
	})

	// (circle :center (vec3 0 0 0) :radius 0.05 :normal (vec3 0 0 1) :lc 0.01)
	add("circle", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		pa := parseArgs(args)
		center, err := pa.vec("center", r3.Vec{})
		if err != nil {
			return nil, err
		}
		normal, err := pa.vec("normal", r3.Vec{Z: 1})
		if err != nil {
			return nil, err
		}
		radius, err := pa.required("radius")
		if err != nil {
			return nil, err
		}
		lc, err := pa.float("lc", 0)
		if err != nil {
			return nil, err
		}
		h, err := s.AddCircle(center, radius, normal, lc)
		if err != nil {
			return nil, err
		}
		return ref(geom.CurveRef(h)), nil
	})

	// (reversed c) flips the orientation of a curve or surface in a loop.
	add("reversed", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("requires one entity, got %d", len(args))
		}
		r, err := toRef(args[0], geom.DimCurve, geom.DimSurface)
		if err != nil {
			return nil, err
		}
		return &sexpRef{ref: r.ref, reversed: !r.reversed}, nil
	})

	// (curve-loop c1 c2 (reversed c3) ...)
	add("curve-loop", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		curves, err := signedHandles(args, geom.DimCurve)
		if err != nil {
			return nil, err
		}
		h, err := s.AddCurveLoop(curves)
		if err != nil {
			return nil, err
		}
		return &sexpLoop{handle: h}, nil
	})

	// (plane-surface outer hole ...)
	add("plane-surface", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		loops := make([]geom.Handle, len(args))
		for i, a := range args {
			if loops[i], err = toLoop(a, false); err != nil {
				return nil, err
			}
		}
		h, err := s.AddPlaneSurface(loops)
		if err != nil {
			return nil, err
		}
		return ref(geom.SurfaceRef(h)), nil
	})

	// (surface-filling loop)
	add("surface-filling", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, fmt.Errorf("requires one curve loop, got %d", len(args))
		}
		loop, err := toLoop(args[0], false)
		if err != nil {
			return nil, err
		}
		h, err := s.AddSurfaceFilling(loop)
		if err != nil {
			return nil, err
		}
		return ref(geom.SurfaceRef(h)), nil
	})

	// (surface-loop s1 (reversed s2) ...)
	add("surface-loop", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		surfaces, err := signedHandles(args, geom.DimSurface)
		if err != nil {
			return nil, err
		}
		h, err := s.AddSurfaceLoop(surfaces)
		if err != nil {
			return nil, err
		}
		return &sexpLoop{handle: h, shell: true}, nil
	})

	// (volume shell hole ...)
	add("volume", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, fmt.Errorf("requires a surface loop")
		}
		shells := make([]geom.Handle, len(args))
		for i, a := range args {
			if shells[i], err = toLoop(a, true); err != nil {
				return nil, err
			}
		}
		h, err := s.AddVolume(shells[0], shells[1:]...)
		if err != nil {
			return nil, err
		}
		return ref(geom.VolumeRef(h)), nil
	})
}

func signedHandles(args []zygo.Sexp, d geom.Dim) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		r, err := toRef(a, d)
		if err != nil {
			return nil, err
		}
		out[i] = r.signed()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Parametric builders
// ---------------------------------------------------------------------------

func registerBuilders(add func(string, builtinFunc), st *scriptState) {
	// (plate :length 0.1 :width 0.1 :height 0.01 :lc 0.01)
	add("plate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		pa := parseArgs(args)
		var dims [4]float64
		for i, key := range []string{"length", "width", "height", "lc"} {
			if dims[i], err = pa.required(key); err != nil {
				return nil, err
			}
		}
		p, err := geom.BuildPlate(s, dims[0], dims[1], dims[2], dims[3])
		if err != nil {
			return nil, err
		}
		return &sexpParts{kind: "plate", parts: map[string]geom.Ref{
			"volume": geom.VolumeRef(p.Volume),
			"bottom": geom.SurfaceRef(p.Bottom),
			"top":    geom.SurfaceRef(p.Top),
			"left":   geom.SurfaceRef(p.Sides[0]),
			"front":  geom.SurfaceRef(p.Sides[1]),
			"right":  geom.SurfaceRef(p.Sides[2]),
			"back":   geom.SurfaceRef(p.Sides[3]),
		}}, nil
	})

	// (cylinder :center (vec3 0 0 0) :radius 0.05 :height 0.1 :lc 0.01)
	add("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		pa := parseArgs(args)
		center, err := pa.vec("center", r3.Vec{})
		if err != nil {
			return nil, err
		}
		var dims [3]float64
		for i, key := range []string{"radius", "height", "lc"} {
			if dims[i], err = pa.required(key); err != nil {
				return nil, err
			}
		}
		c, err := geom.BuildCylinder(s, center, dims[0], dims[1], dims[2])
		if err != nil {
			return nil, err
		}
		parts := map[string]geom.Ref{
			"volume":        geom.VolumeRef(c.Volume),
			"bottom":        geom.SurfaceRef(c.Bottom),
			"top":           geom.SurfaceRef(c.Top),
			"bottom-center": geom.PointRef(c.Centers[0]),
			"top-center":    geom.PointRef(c.Centers[1]),
		}
		for k, h := range c.Lateral {
			parts[fmt.Sprintf("lateral-%d", k)] = geom.SurfaceRef(h)
		}
		return &sexpParts{kind: "cylinder", parts: parts}, nil
	})

	// (impact-axis :x 0.05 :y 0.05 :z0 0 :z1 0.01 :lc 0.0025)
	// (impact-axis cyl) joins the cap centers of a cylinder.
	add("impact-axis", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := st.geometry()
		if err != nil {
			return nil, err
		}
		pa := parseArgs(args)
		var axis *geom.ImpactAxis
		if len(pa.positional) == 1 {
			axis, err = cylinderAxis(s, pa.positional[0])
		} else {
			var v [5]float64
			for i, key := range []string{"x", "y", "z0", "z1"} {
				if v[i], err = pa.required(key); err != nil {
					return nil, err
				}
			}
			if v[4], err = pa.float("lc", 0); err != nil {
				return nil, err
			}
			axis, err = geom.BuildImpactAxis(s, v[0], v[1], v[2], v[3], v[4])
		}
		if err != nil {
			return nil, err
		}
		return &sexpParts{kind: "impact-axis", parts: map[string]geom.Ref{
			"start": geom.PointRef(axis.Start),
			"end":   geom.PointRef(axis.End),
			"line":  geom.CurveRef(axis.Line),
		}}, nil
	})

	// (pick plate :top)
	add("pick", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("requires a builder result and a part name")
		}
		p, err := toParts(args[0])
		if err != nil {
			return nil, err
		}
		key, err := toKeywordString(args[1])
		if err != nil {
			return nil, err
		}
		r, err := p.get(key)
		if err != nil {
			return nil, err
		}
		return ref(r), nil
	})
}

func cylinderAxis(s *geom.Store, arg zygo.Sexp) (*geom.ImpactAxis, error) {
	p, err := toParts(arg)
	if err != nil {
		return nil, err
	}
	if p.kind != "cylinder" {
		return nil, fmt.Errorf("expected cylinder, got %s", p.kind)
	}
	start, err := p.get("bottom-center")
	if err != nil {
		return nil, err
	}
	end, err := p.get("top-center")
	if err != nil {
		return nil, err
	}
	line, err := s.AddLine(start.Tag, end.Tag)
	if err != nil {
		return nil, err
	}
	return &geom.ImpactAxis{Start: start.Tag, End: end.Tag, Line: line}, nil
}

// ---------------------------------------------------------------------------
// Embedding
// ---------------------------------------------------------------------------

func registerEmbedding(add func(string, builtinFunc), st *scriptState) {
	// (embed anchor host) queues anchor for embedding in host. Queued
	// embeddings are registered and validated together.
	add("embed", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("requires an anchor and a host")
		}
		anchor, err := toRef(args[0], geom.DimPoint, geom.DimCurve)
		if err != nil {
			return nil, fmt.Errorf("anchor: %w", err)
		}
		host, err := toRef(args[1])
		if err != nil {
			return nil, fmt.Errorf("host: %w", err)
		}
		if err := st.queue(session.Embedding{Anchor: anchor.ref, HostDim: host.ref.Dim, Host: host.ref.Tag}); err != nil {
			return nil, err
		}
		return zygo.SexpNull, nil
	})

	// (embed-axis axis solid) embeds both axis ends in the solid's caps
	// and the volume, and the axis line in the volume.
	add("embed-axis", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("requires an impact axis and a solid")
		}
		axis, err := toParts(args[0])
		if err != nil {
			return nil, err
		}
		solid, err := toParts(args[1])
		if err != nil {
			return nil, err
		}
		refs := make(map[string]geom.Ref)
		for _, k := range []string{"start", "end", "line"} {
			if refs[k], err = axis.get(k); err != nil {
				return nil, err
			}
		}
		for _, k := range []string{"bottom", "top", "volume"} {
			if refs[k], err = solid.get(k); err != nil {
				return nil, err
			}
		}
		ax := &geom.ImpactAxis{Start: refs["start"].Tag, End: refs["end"].Tag, Line: refs["line"].Tag}
		for _, e := range session.AxisEmbeddings(ax, refs["bottom"].Tag, refs["top"].Tag, refs["volume"].Tag) {
			if err := st.queue(e); err != nil {
				return nil, err
			}
		}
		return zygo.SexpNull, nil
	})
}

// queue records an embedding for the next flush.
func (st *scriptState) queue(e session.Embedding) error {
	if err := st.commit(); err != nil {
		return err
	}
	if st.sess.State() != session.GeometryBuilt {
		return fmt.Errorf("anchors must be embedded before the field is bound")
	}
	st.pending = append(st.pending, e)
	return nil
}

// ---------------------------------------------------------------------------
// Sizing field
// ---------------------------------------------------------------------------

func registerFields(add func(string, builtinFunc), st *scriptState) {
	node := func(id field.NodeID, err error) (zygo.Sexp, error) {
		if err != nil {
			return nil, err
		}
		n, _ := st.sess.Graph().Node(id)
		return &sexpField{id: id, kind: n.Kind()}, nil
	}
	graph := func() (*field.Graph, error) {
		if err := st.commit(); err != nil {
			return nil, err
		}
		return st.sess.Graph(), nil
	}

	// (distance anchor ...)
	add("distance", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		g, err := graph()
		if err != nil {
			return nil, err
		}
		anchors := make([]geom.Ref, len(args))
		for i, a := range args {
			r, err := toRef(a, geom.DimPoint, geom.DimCurve)
			if err != nil {
				return nil, err
			}
			anchors[i] = r.ref
		}
		return node(g.AddDistance(st.sess.Store(), anchors...))
	})

	// (cylinder-field :center c :axis a :radius r :inner vi :outer vo :half-length h)
	add("cylinder-field", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		g, err := graph()
		if err != nil {
			return nil, err
		}
		pa := parseArgs(args)
		c := field.Cylinder{}
		if c.Center, err = pa.vec("center", r3.Vec{}); err != nil {
			return nil, err
		}
		if c.Axis, err = pa.vec("axis", r3.Vec{Z: 1}); err != nil {
			return nil, err
		}
		for key, dst := range map[string]*float64{"radius": &c.Radius, "inner": &c.Inner, "outer": &c.Outer} {
			if *dst, err = pa.required(key); err != nil {
				return nil, err
			}
		}
		if c.HalfLength, err = pa.float("half-length", 0); err != nil {
			return nil, err
		}
		return node(g.AddCylinder(c))
	})

	// (frustum :start a :end b :inner-radius (list r0 r1) :outer-radius (list R0 R1)
	//          :inner-size (list v0 v1) :outer-size (list V0 V1))
	add("frustum", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		g, err := graph()
		if err != nil {
			return nil, err
		}
		pa := parseArgs(args)
		f := field.Frustum{}
		if f.Start, err = pa.vec("start", r3.Vec{}); err != nil {
			return nil, err
		}
		if f.End, err = pa.vec("end", r3.Vec{}); err != nil {
			return nil, err
		}
		for key, dst := range map[string]*[2]float64{
			"inner-radius": &f.InnerRadius,
			"outer-radius": &f.OuterRadius,
			"inner-size":   &f.InnerSize,
			"outer-size":   &f.OuterSize,
		} {
			if *dst, err = pa.pair(key); err != nil {
				return nil, err
			}
		}
		return node(g.AddFrustum(f))
	})

	// (transform f :scale 8.8 :power 2 :offset 0.0025)
	add("transform", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		g, err := graph()
		if err != nil {
			return nil, err
		}
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return nil, fmt.Errorf("requires one source field")
		}
		src, err := toField(pa.positional[0])
		if err != nil {
			return nil, err
		}
		e := field.Poly{Power: 1}
		if e.Scale, err = pa.float("scale", 1); err != nil {
			return nil, err
		}
		if e.Offset, err = pa.float("offset", 0); err != nil {
			return nil, err
		}
		if v, ok := pa.kw["power"]; ok {
			if e.Power, err = toInt(v); err != nil {
				return nil, fmt.Errorf("power: %w", err)
			}
		}
		return node(g.AddTransform(src, e))
	})

	// (math-eval "8.8*F1^2 + 0.0025")
	// (math-eval "8.8*F%d^2 + 0.0025" :of f) substitutes the id of f.
	add("math-eval", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		g, err := graph()
		if err != nil {
			return nil, err
		}
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return nil, fmt.Errorf("requires one expression string")
		}
		expr, err := toString(pa.positional[0])
		if err != nil {
			return nil, err
		}
		if v, ok := pa.kw["of"]; ok {
			src, err := toField(v)
			if err != nil {
				return nil, fmt.Errorf("of: %w", err)
			}
			expr = fmt.Sprintf(expr, src)
		}
		return node(g.AddMathEval(expr))
	})

	// (field-min f1 f2 ...)
	add("field-min", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		g, err := graph()
		if err != nil {
			return nil, err
		}
		ids := make([]field.NodeID, len(args))
		for i, a := range args {
			if ids[i], err = toField(a); err != nil {
				return nil, err
			}
		}
		return node(g.AddMin(ids...))
	})

	// (background f :min 0.0025 :max 0.025 :floor 0.0025)
	add("background", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return nil, fmt.Errorf("requires one field")
		}
		root, err := toField(pa.positional[0])
		if err != nil {
			return nil, err
		}
		var c [3]float64
		for i, key := range []string{"min", "max", "floor"} {
			if c[i], err = pa.required(key); err != nil {
				return nil, err
			}
		}
		if err := st.embed(); err != nil {
			return nil, err
		}
		if err := st.sess.BindField(root, c[0], c[1], c[2]); err != nil {
			return nil, err
		}
		return zygo.SexpNull, nil
	})
}

// ---------------------------------------------------------------------------
// Meshing
// ---------------------------------------------------------------------------

func registerMeshing(add func(string, builtinFunc), st *scriptState) {
	// (mesh-options :default-size 0.01 :size-factor 1 :precedence :minimum
	//               :size-from-points true :max-elements 100000 :smoothing 2 :samples 16)
	add("mesh-options", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		o := st.sess.Options()
		var err error
		if o.DefaultSize, err = pa.float("default-size", o.DefaultSize); err != nil {
			return nil, err
		}
		if o.SizeFactor, err = pa.float("size-factor", o.SizeFactor); err != nil {
			return nil, err
		}
		for key, dst := range map[string]*int{"max-elements": &o.MaxElements, "smoothing": &o.Smoothing, "samples": &o.Samples} {
			if v, ok := pa.kw[key]; ok {
				if *dst, err = toInt(v); err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
			}
		}
		if v, ok := pa.kw["size-from-points"]; ok {
			if o.SizeFromPoints, err = toBool(v); err != nil {
				return nil, fmt.Errorf("size-from-points: %w", err)
			}
		}
		if v, ok := pa.kw["precedence"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return nil, fmt.Errorf("precedence: %w", err)
			}
			if o.Precedence, err = kernel.ParsePrecedence(s); err != nil {
				return nil, err
			}
		}
		if err := st.sess.SetOptions(o); err != nil {
			return nil, err
		}
		return zygo.SexpNull, nil
	})

	// (generate 3)
	add("generate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("requires the mesh dimension")
		}
		dim, err := toInt(args[0])
		if err != nil {
			return nil, err
		}
		if dim < 1 || dim > 3 {
			return nil, fmt.Errorf("dimension %d out of range 1..3", dim)
		}
		st.steps = append(st.steps, Step{Kind: StepGenerate, Dim: dim})
		return zygo.SexpNull, nil
	})

	// (optimize "Laplace3D" 5 "Relocate3D" 1)
	add("optimize", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 || len(args)%2 != 0 {
			return nil, fmt.Errorf("requires pass name and iteration pairs")
		}
		var passes []session.Pass
		for i := 0; i < len(args); i += 2 {
			pass, err := toKeywordString(args[i])
			if err != nil {
				return nil, err
			}
			n, err := toInt(args[i+1])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pass, err)
			}
			passes = append(passes, session.Pass{Name: kernel.CanonicalPass(pass), Iterations: n})
		}
		st.steps = append(st.steps, Step{Kind: StepOptimize, Passes: passes})
		return zygo.SexpNull, nil
	})

	// (refine)
	add("refine", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("takes no arguments")
		}
		st.steps = append(st.steps, Step{Kind: StepRefine})
		return zygo.SexpNull, nil
	})

	// (write "plate.msh")
	add("write", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("requires an output path")
		}
		path, err := toString(args[0])
		if err != nil {
			return nil, err
		}
		st.steps = append(st.steps, Step{Kind: StepWrite, Path: path})
		return zygo.SexpNull, nil
	})
}
