package recipe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/impactmesh/pkg/config"
	"github.com/chazu/impactmesh/pkg/field"
	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/chazu/impactmesh/pkg/meshio"
	"github.com/chazu/impactmesh/pkg/session"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// coarse returns a configuration small enough to mesh in a test.
func coarse(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		LC:     0.05,
		LCMin:  0.01,
		LCMax:  1,
		Floor:  0.01,
		Output: filepath.Join(t.TempDir(), "impact.msh"),
		Geometry: config.GeometryConfig{
			Length: 0.1,
			Height: 0.005,
			Radius: 0.03,
		},
		Refinement: config.RefinementConfig{
			Radii:      []float64{0.02, 0.015},
			InnerSizes: []float64{0.02, 0.01},
			OuterSize:  0.1,
		},
		Distance: config.DistanceConfig{Scale: 2.5, Power: 2, Offset: 0.01},
		Mesher: config.MesherConfig{
			Kernel:      "grid",
			Dimension:   3,
			MaxElements: 100_000,
			Samples:     8,
			SizeFactor:  1,
			Precedence:  "background",
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func newSession(t *testing.T, cfg *config.Config) *session.Session {
	t.Helper()
	opts, err := cfg.SessionOptions(zap.NewNop())
	if err != nil {
		t.Fatalf("SessionOptions: %v", err)
	}
	return session.New(opts...)
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"plate", "cylinder"} {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%q): %v", name, err)
		}
	}
	if _, err := Lookup("sphere"); err == nil {
		t.Error("expected an error for an unknown recipe")
	}
}

func TestRadialLine(t *testing.T) {
	cfg := coarse(t)
	from, to, err := RadialLine("plate", cfg)
	if err != nil {
		t.Fatalf("RadialLine: %v", err)
	}
	if from != (r3.Vec{X: 0.05, Y: 0.05, Z: 0.0025}) || to != (r3.Vec{X: 0.1, Y: 0.05, Z: 0.0025}) {
		t.Errorf("plate line = %v -> %v", from, to)
	}
	if _, to, _ = RadialLine("cylinder", cfg); to.X != cfg.Geometry.Radius {
		t.Errorf("cylinder line ends at %v", to)
	}
	if _, _, err := RadialLine("cone", cfg); err == nil {
		t.Error("expected an error for an unknown recipe")
	}
}

func TestPlateBindsImpactField(t *testing.T) {
	cfg := coarse(t)
	s := newSession(t, cfg)
	if err := Plate(s, cfg); err != nil {
		t.Fatalf("Plate: %v", err)
	}
	if s.State() != session.FieldBound {
		t.Fatalf("state = %s, want FieldBound", s.State())
	}
	if got := s.Store().Embeddings().Len(); got != 5 {
		t.Errorf("%d embeddings, want 5", got)
	}

	tests := []struct {
		name string
		p    r3.Vec
		want float64
	}{
		// min(offset, inner sizes), clamped to lcmin.
		{"on the axis", r3.Vec{X: 0.05, Y: 0.05, Z: 0.0025}, 0.01},
		// 2.5*0.05^2*2 + 0.01 beats the outer size of both cylinders.
		{"at a corner", r3.Vec{Z: 0.0025}, 2.5*0.005 + 0.01},
	}
	for _, tt := range tests {
		got, ok := s.Oracle().Size(tt.p)
		if !ok {
			t.Fatalf("%s: no size", tt.name)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s: size = %g, want %g", tt.name, got, tt.want)
		}
	}
}

func TestImpactFieldWithoutRefinement(t *testing.T) {
	cfg := coarse(t)
	cfg.Refinement.Radii, cfg.Refinement.InnerSizes = nil, nil

	st := geom.NewStore()
	axis, err := geom.BuildImpactAxis(st, 0, 0, 0, 1, 0.1)
	if err != nil {
		t.Fatalf("BuildImpactAxis: %v", err)
	}
	g := field.NewGraph()
	root, err := ImpactField(g, st, axis, cfg)
	if err != nil {
		t.Fatalf("ImpactField: %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("graph has %d nodes, want distance and transform", g.Len())
	}
	v, err := g.Evaluate(root, r3.Vec{X: 0.1, Z: 0.5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if want := 2.5*0.01 + 0.01; math.Abs(v-want) > 1e-12 {
		t.Errorf("size = %g, want %g", v, want)
	}
}

func TestImpactFieldRejectsMismatchedRefinement(t *testing.T) {
	cfg := coarse(t)
	cfg.Refinement.InnerSizes = cfg.Refinement.InnerSizes[:1]

	st := geom.NewStore()
	axis, err := geom.BuildImpactAxis(st, 0, 0, 0, 1, 0.1)
	if err != nil {
		t.Fatalf("BuildImpactAxis: %v", err)
	}
	g := field.NewGraph()
	if _, err := ImpactField(g, st, axis, cfg); err == nil || !strings.Contains(err.Error(), "2 radii but 1 inner sizes") {
		t.Fatalf("expected a length mismatch error, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("graph has %d nodes after a rejected field", g.Len())
	}
}

func TestPlateMesh(t *testing.T) {
	cfg := coarse(t)
	cfg.Mesher.Optimize = []string{"laplace3d:2"}
	cfg.Mesher.Refine = true

	s := newSession(t, cfg)
	if err := Plate(s, cfg); err != nil {
		t.Fatalf("Plate: %v", err)
	}
	if err := Mesh(context.Background(), s, cfg); err != nil {
		t.Fatalf("Mesh: %v", err)
	}
	if s.State() != session.Terminal {
		t.Fatalf("state = %s, want Terminal", s.State())
	}

	f, err := os.Open(cfg.Output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	m, err := meshio.ReadMSH(f)
	if err != nil {
		t.Fatalf("ReadMSH: %v", err)
	}
	if got, want := m.CountByType(kernel.Hex8), s.Mesh().CountByType(kernel.Hex8); got == 0 || got != want {
		t.Errorf("read back %d hexahedra, session holds %d", got, want)
	}
}

func TestCylinderMesh(t *testing.T) {
	cfg := coarse(t)
	cfg.Output = filepath.Join(t.TempDir(), "cylinder.stl")

	s := newSession(t, cfg)
	if err := Cylinder(s, cfg); err != nil {
		t.Fatalf("Cylinder: %v", err)
	}
	if got, ok := s.Oracle().Size(r3.Vec{Z: 0.0025}); !ok || math.Abs(got-0.01) > 1e-12 {
		t.Errorf("size on the axis = %g, want 0.01", got)
	}
	if err := Mesh(context.Background(), s, cfg); err != nil {
		t.Fatalf("Mesh: %v", err)
	}
	if fi, err := os.Stat(cfg.Output); err != nil || fi.Size() == 0 {
		t.Errorf("no STL written: %v", err)
	}
}

func TestMeshStopsOnGenerateFailure(t *testing.T) {
	cfg := coarse(t)
	cfg.Mesher.MaxElements = 2

	s := newSession(t, cfg)
	if err := Plate(s, cfg); err != nil {
		t.Fatalf("Plate: %v", err)
	}
	if err := Mesh(context.Background(), s, cfg); err == nil {
		t.Fatal("expected the element limit to fail generation")
	}
	if s.State() != session.FieldBound {
		t.Errorf("state = %s, want FieldBound", s.State())
	}
	if _, err := os.Stat(cfg.Output); !os.IsNotExist(err) {
		t.Errorf("output should not exist, stat err = %v", err)
	}
}
