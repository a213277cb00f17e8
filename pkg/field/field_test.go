package field

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chazu/impactmesh/pkg/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// axisStore returns a store holding the line (0,0,0)-(0,0,h) and an extra
// point anchor at (1,1,1).
func axisStore(t *testing.T, h float64) (*geom.Store, geom.Handle, geom.Handle) {
	t.Helper()
	s := geom.NewStore()
	a, err := s.AddPoint(r3.Vec{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.AddPoint(r3.Vec{Z: h}, 0)
	if err != nil {
		t.Fatal(err)
	}
	line, err := s.AddLine(a, b)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := s.AddPoint(r3.Vec{X: 1, Y: 1, Z: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	return s, line, pt
}

func approx(a, b float64) bool { return math.Abs(a-b) <= 1e-12*math.Max(1, math.Abs(b)) }

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

func TestDistance_Monotonic(t *testing.T) {
	s, line, pt := axisStore(t, 1)
	g := NewGraph()
	id, err := g.AddDistance(s, geom.CurveRef(line), geom.PointRef(pt))
	if err != nil {
		t.Fatalf("AddDistance: %v", err)
	}
	n, _ := g.Node(id)

	tests := []struct {
		name string
		p    r3.Vec
		want float64
	}{
		{"on line", r3.Vec{Z: 0.5}, 0},
		{"beside line", r3.Vec{X: 0.25, Z: 0.5}, 0.25},
		{"below end", r3.Vec{Z: -0.3}, 0.3},
		{"at point anchor", r3.Vec{X: 1, Y: 1, Z: 1}, 0},
		{"nearer point anchor", r3.Vec{X: 1, Y: 1, Z: 1.1}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Evaluate(tt.p); !approx(got, tt.want) {
				t.Errorf("Evaluate(%v) = %g, want %g", tt.p, got, tt.want)
			}
		})
	}

	prev := -1.0
	for i := 0; i <= 20; i++ {
		d := n.Evaluate(r3.Vec{X: -0.05 * float64(i), Z: 0.5})
		if d <= prev {
			t.Fatalf("distance not increasing at step %d: %g <= %g", i, d, prev)
		}
		prev = d
	}
}

func TestDistance_RejectsBadAnchors(t *testing.T) {
	s, _, _ := axisStore(t, 1)
	g := NewGraph()
	tests := []struct {
		name    string
		anchors []geom.Ref
	}{
		{"none", nil},
		{"missing point", []geom.Ref{geom.PointRef(42)}},
		{"missing curve", []geom.Ref{geom.CurveRef(42)}},
		{"surface", []geom.Ref{geom.SurfaceRef(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.AddDistance(s, tt.anchors...)
			var ge *GraphError
			if !errors.As(err, &ge) {
				t.Errorf("got %v, want GraphError", err)
			}
		})
	}
	if g.Len() != 0 {
		t.Errorf("failed adds left %d nodes", g.Len())
	}
}

func TestCylinder_StepIsInnerInclusive(t *testing.T) {
	g := NewGraph()
	id, err := g.AddCylinder(Cylinder{
		Center: r3.Vec{X: 0.5, Y: 0.5}, Axis: r3.Vec{Z: 1},
		Radius: 0.25, Inner: 0.01, Outer: 0.1,
	})
	if err != nil {
		t.Fatalf("AddCylinder: %v", err)
	}
	n, _ := g.Node(id)
	const eps = 1e-9
	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{"inside", 0.75 - eps, 0.01},
		{"on radius", 0.75, 0.01},
		{"outside", 0.75 + eps, 0.1},
		{"on axis", 0.5, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := r3.Vec{X: tt.x, Y: 0.5, Z: 1e6}
			if got := n.Evaluate(p); got != tt.want {
				t.Errorf("Evaluate(%v) = %g, want %g", p, got, tt.want)
			}
		})
	}
}

func TestCylinder_HalfLength(t *testing.T) {
	g := NewGraph()
	id, err := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 2}, Radius: 1, Inner: 1, Outer: 5, HalfLength: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	n, _ := g.Node(id)
	if got := n.Evaluate(r3.Vec{Z: 0.4}); got != 1 {
		t.Errorf("inside capped cylinder = %g, want 1", got)
	}
	if got := n.Evaluate(r3.Vec{Z: -0.6}); got != 5 {
		t.Errorf("beyond cap = %g, want 5", got)
	}
}

func TestCylinder_InvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		c    Cylinder
	}{
		{"zero axis", Cylinder{Radius: 1, Inner: 1, Outer: 1}},
		{"negative radius", Cylinder{Axis: r3.Vec{Z: 1}, Radius: -1, Inner: 1, Outer: 1}},
		{"zero inner", Cylinder{Axis: r3.Vec{Z: 1}, Radius: 1, Outer: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph().AddCylinder(tt.c)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("got %v, want ConfigError", err)
			}
		})
	}
}

func TestFrustum(t *testing.T) {
	g := NewGraph()
	id, err := g.AddFrustum(Frustum{
		Start:       r3.Vec{},
		End:         r3.Vec{Z: 1},
		InnerRadius: [2]float64{0, 0.2},
		OuterRadius: [2]float64{0.5, 0.5},
		InnerSize:   [2]float64{0.01, 0.02},
		OuterSize:   [2]float64{0.1, 0.1},
	})
	if err != nil {
		t.Fatalf("AddFrustum: %v", err)
	}
	n, _ := g.Node(id)
	tests := []struct {
		name string
		p    r3.Vec
		want float64
	}{
		{"start axis", r3.Vec{}, 0.01},
		{"end inside inner", r3.Vec{X: 0.2, Z: 1}, 0.02},
		{"mid blend", r3.Vec{X: 0.3, Z: 0.5}, 0.015 + (0.1-0.015)*(0.3-0.1)/(0.5-0.1)},
		{"beyond outer", r3.Vec{X: 0.6, Z: 0.5}, 0.1},
		{"below start clamps", r3.Vec{Z: -3}, 0.01},
		{"above end clamps", r3.Vec{X: 0.1, Z: 7}, 0.02},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Evaluate(tt.p); !approx(got, tt.want) {
				t.Errorf("Evaluate(%v) = %g, want %g", tt.p, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Transforms and combinators
// ---------------------------------------------------------------------------

func TestParseMathEval(t *testing.T) {
	tests := []struct {
		in   string
		src  int
		want Poly
	}{
		{"2.5*F1^2 +0.0025", 1, Poly{2.5, 2, 0.0025}},
		{"8.8*F1^2 + 0.0007142857142857143", 1, Poly{8.8, 2, 0.0007142857142857143}},
		{"F3", 3, Poly{1, 1, 0}},
		{"1e-2 * F12 ^ 3 - 4", 12, Poly{0.01, 3, -4}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMathEval(tt.in)
			if err != nil {
				t.Fatalf("ParseMathEval: %v", err)
			}
			if got.Source != tt.src || got.Expr != tt.want {
				t.Errorf("got %+v, want source %d expr %+v", got, tt.src, tt.want)
			}
		})
	}
	for _, bad := range []string{"", "sin(F1)", "2*F1^x", "F1 * F2"} {
		if _, err := ParseMathEval(bad); err == nil {
			t.Errorf("ParseMathEval(%q) succeeded", bad)
		}
	}
}

func TestMin_EqualsSmallestSource(t *testing.T) {
	s, line, _ := axisStore(t, 0.005)
	g := NewGraph()
	dist, _ := g.AddDistance(s, geom.CurveRef(line))
	quad, err := g.AddMathEval("2.5*F1^2 + 0.0025")
	if err != nil {
		t.Fatal(err)
	}
	c1, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 0.02, Inner: 0.01, Outer: 0.1})
	c2, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 0.015, Inner: 0.0025, Outer: 0.1})
	minID, err := g.AddMin(quad, c1, c2)
	if err != nil {
		t.Fatal(err)
	}
	if dist != 1 || minID != 5 {
		t.Fatalf("ids = %d..%d, want 1..5", dist, minID)
	}
	for _, x := range []float64{0, 0.01, 0.015, 0.0175, 0.02, 0.05, 0.3, 2} {
		p := r3.Vec{X: x, Z: 0.002}
		got, _ := g.Evaluate(minID, p)
		want := math.Inf(1)
		for _, id := range []NodeID{quad, c1, c2} {
			v, _ := g.Evaluate(id, p)
			want = math.Min(want, v)
		}
		if got != want || got < 0 {
			t.Errorf("min at x=%g = %g, want %g", x, got, want)
		}
	}
}

func TestGraph_ForwardReferences(t *testing.T) {
	g := NewGraph()
	c, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 1, Inner: 1, Outer: 2})

	_, err := g.AddTransform(c+1, Poly{Scale: 1, Power: 1})
	var ge *GraphError
	if !errors.As(err, &ge) {
		t.Fatalf("transform of undefined node: %v", err)
	}
	if _, err := g.AddMin(c, 9); !errors.As(err, &ge) {
		t.Errorf("min over undefined node: %v", err)
	}
	if _, err := g.AddMin(); !errors.As(err, &ge) {
		t.Errorf("empty min: %v", err)
	}
	if _, err := g.AddMathEval("2*F7^2 + 1"); !errors.As(err, &ge) {
		t.Errorf("math eval over undefined node: %v", err)
	}
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1", g.Len())
	}
	if errs := Validate(g); len(errs) != 0 {
		t.Errorf("Validate: %v", errs)
	}
}

func TestValidate_DetectsCycle(t *testing.T) {
	g := NewGraph()
	c, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 1, Inner: 1, Outer: 2})
	tr, _ := g.AddTransform(c, Poly{Scale: 1, Power: 1})
	// Rewire the transform onto itself, which Add never allows.
	n, _ := g.Node(tr)
	n.(*Transform).Source = tr
	errs := Validate(g)
	if len(errs) == 0 {
		t.Fatal("cycle not reported")
	}
}

func TestGraph_Reachable(t *testing.T) {
	g := NewGraph()
	a, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 1, Inner: 1, Outer: 2})
	b, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 2, Inner: 1, Outer: 2})
	tr, _ := g.AddTransform(a, Poly{Scale: 2, Power: 1})
	m, _ := g.AddMin(tr, a)
	got := g.Reachable(m)
	want := []NodeID{a, tr, m}
	if len(got) != len(want) {
		t.Fatalf("Reachable = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Reachable = %v, want %v", got, want)
		}
	}
	_ = b
}

// ---------------------------------------------------------------------------
// Clamp and oracle
// ---------------------------------------------------------------------------

func TestNewClampPolicy_Errors(t *testing.T) {
	tests := []struct {
		name            string
		min, max, floor float64
	}{
		{"floor above min", 0.01, 1, 0.02},
		{"min above max", 2, 1, 0.5},
		{"zero floor", 0.1, 1, 0},
		{"negative max", 0.1, -1, 0.1},
		{"infinite max", 0.1, math.Inf(1), 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClampPolicy(tt.min, tt.max, tt.floor)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("got %v, want ConfigError", err)
			}
		})
	}
}

func TestClampPolicy_Idempotent(t *testing.T) {
	c, err := NewClampPolicy(0.0025, 1, 0.001)
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range []float64{-1, 0, 0.0005, 0.0025, 0.3, 1, 7, math.Inf(1), math.NaN()} {
		once := c.Apply(x)
		if twice := c.Apply(once); twice != once {
			t.Errorf("Apply(Apply(%g)) = %g, want %g", x, twice, once)
		}
		if once < c.Min || once > c.Max {
			t.Errorf("Apply(%g) = %g outside [%g,%g]", x, once, c.Min, c.Max)
		}
	}
}

func TestOracle_EndToEnd(t *testing.T) {
	const h = 0.005
	s, line, _ := axisStore(t, h)
	g := NewGraph()
	dist, err := g.AddDistance(s, geom.CurveRef(line))
	if err != nil {
		t.Fatal(err)
	}
	tr, err := g.AddTransform(dist, Poly{Scale: 2.5, Power: 2, Offset: 0.0025})
	if err != nil {
		t.Fatal(err)
	}
	o := NewOracle(g)
	if _, ok := o.Size(r3.Vec{}); ok {
		t.Error("unbound oracle reported a size")
	}
	if err := o.SetBackground(tr); err != nil {
		t.Fatal(err)
	}
	if err := o.SetClampPolicy(0.0025, 1, 0.0025); err != nil {
		t.Fatal(err)
	}
	o.Freeze()

	on, _ := o.Size(r3.Vec{Z: h / 2})
	if math.Abs(on-0.0025) > 1e-15 {
		t.Errorf("size on anchor = %g, want 0.0025", on)
	}
	far, _ := o.Size(r3.Vec{X: 100, Y: -50, Z: 30})
	if far != 1 {
		t.Errorf("size far away = %g, want 1", far)
	}
	mid, _ := o.Size(r3.Vec{X: 0.1, Z: h / 2})
	if want := 2.5*0.01 + 0.0025; !approx(mid, want) {
		t.Errorf("size at 0.1 = %g, want %g", mid, want)
	}

	if err := o.SetBackground(dist); !errors.Is(err, ErrFrozen) {
		t.Errorf("rebinding after freeze: %v, want ErrFrozen", err)
	}
	if _, err := g.AddMin(dist); !errors.Is(err, ErrFrozen) {
		t.Errorf("adding after freeze: %v, want ErrFrozen", err)
	}
}

func TestOracle_RebindUntilFrozen(t *testing.T) {
	g := NewGraph()
	a, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 1, Inner: 0.1, Outer: 1})
	b, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 1, Inner: 0.2, Outer: 1})
	o := NewOracle(g)
	if err := o.SetBackground(a); err != nil {
		t.Fatal(err)
	}
	if err := o.SetBackground(b); err != nil {
		t.Fatal(err)
	}
	if v, _ := o.Size(r3.Vec{}); v != 0.2 {
		t.Errorf("size after rebinding = %g, want 0.2", v)
	}
	if err := o.SetBackground(99); err == nil {
		t.Error("binding a missing node succeeded")
	}
	if id, _ := o.Background(); id != b {
		t.Errorf("failed bind replaced background: %d", id)
	}
}

func TestOracle_SizeManyMatchesSize(t *testing.T) {
	s, line, _ := axisStore(t, 1)
	g := NewGraph()
	d, _ := g.AddDistance(s, geom.CurveRef(line))
	o := NewOracle(g)
	_ = o.SetBackground(d)
	_ = o.SetClampPolicy(0.01, 0.5, 0.01)
	o.Freeze()

	ps := make([]r3.Vec, 2000)
	for i := range ps {
		ps[i] = r3.Vec{X: float64(i) / 1000, Y: 0.3, Z: float64(i%7) / 7}
	}
	got, err := o.SizeMany(context.Background(), ps)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range ps {
		want, _ := o.Size(p)
		if got[i] != want {
			t.Fatalf("SizeMany[%d] = %g, want %g", i, got[i], want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.SizeMany(ctx, ps); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled SizeMany: %v", err)
	}
}

func TestOracle_Profile(t *testing.T) {
	g := NewGraph()
	c, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 0.5, Inner: 0.1, Outer: 1})
	o := NewOracle(g)
	_ = o.SetBackground(c)
	_ = o.SetClampPolicy(0.2, 0.8, 0.1)
	prof := o.Profile(r3.Vec{}, r3.Vec{X: 1}, 11)
	if len(prof) != 11 {
		t.Fatalf("len = %d, want 11", len(prof))
	}
	if prof[0].Raw != 0.1 || prof[0].Size != 0.2 {
		t.Errorf("start sample = %+v", prof[0])
	}
	if prof[10].Size != 0.8 || !approx(prof[10].Offset, 1) {
		t.Errorf("end sample = %+v", prof[10])
	}
}

func TestOracle_ProfileUnbound(t *testing.T) {
	o := NewOracle(NewGraph())
	_ = o.SetClampPolicy(0.2, 0.8, 0.1)
	for _, s := range o.Profile(r3.Vec{}, r3.Vec{X: 1}, 3) {
		if s.Raw != 0 || s.Size != 0 {
			t.Errorf("unbound sample = %+v, want zero sizes", s)
		}
	}
}

func TestOracle_BindIsAllOrNothing(t *testing.T) {
	g := NewGraph()
	c, _ := g.AddCylinder(Cylinder{Axis: r3.Vec{Z: 1}, Radius: 1, Inner: 0.1, Outer: 1})
	o := NewOracle(g)
	if err := o.Bind(c, 0.01, 1, 0.01); err != nil {
		t.Fatal(err)
	}
	want, _ := o.ClampPolicy()

	tests := []struct {
		name            string
		id              NodeID
		min, max, floor float64
	}{
		{"missing node", 99, 0.2, 0.3, 0.2},
		{"invalid clamp", c, 0.5, 0.1, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := o.Bind(tt.id, tt.min, tt.max, tt.floor); err == nil {
				t.Fatal("expected an error")
			}
			if got, _ := o.ClampPolicy(); got != want {
				t.Errorf("clamp = %+v, want %+v", got, want)
			}
			if id, _ := o.Background(); id != c {
				t.Errorf("background = %d, want %d", id, c)
			}
		})
	}

	o.Freeze()
	if err := o.Bind(c, 0.01, 1, 0.01); !errors.Is(err, ErrFrozen) {
		t.Errorf("bind after freeze: %v", err)
	}
}
