package sdfx

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"
)

func buildPlate(t *testing.T) (*geom.Store, *geom.Plate) {
	t.Helper()
	s := geom.NewStore()
	p, err := geom.BuildPlate(s, 0.1, 0.1, 0.01, 0.01)
	if err != nil {
		t.Fatalf("BuildPlate: %v", err)
	}
	s.Freeze()
	return s, p
}

func constant(h float64) kernel.SizeCallback {
	return func(dim, tag int, x, y, z, lc float64) float64 { return h }
}

func enclosedVolume(m *kernel.Mesh) float64 {
	var vol float64
	for _, tr := range m.Triangles() {
		a, b, c := m.Vertex(tr[0]), m.Vertex(tr[1]), m.Vertex(tr[2])
		vol += r3.Dot(a, r3.Cross(b, c)) / 6
	}
	return vol
}

func TestVolumeSDFSign(t *testing.T) {
	s, p := buildPlate(t)
	f, err := newVolumeSDF(s, []geom.Handle{p.Volume})
	if err != nil {
		t.Fatalf("newVolumeSDF: %v", err)
	}
	tests := []struct {
		name string
		p    v3.Vec
		want float64
	}{
		{"centre", v3.Vec{X: 0.05, Y: 0.05, Z: 0.005}, -0.005},
		{"above", v3.Vec{X: 0.05, Y: 0.05, Z: 0.02}, 0.01},
		{"beside", v3.Vec{X: 0.12, Y: 0.05, Z: 0.005}, 0.02},
		{"on top face", v3.Vec{X: 0.05, Y: 0.05, Z: 0.01}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Evaluate(tt.p); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Evaluate = %g, want %g", got, tt.want)
			}
		})
	}
	bb := f.BoundingBox()
	if bb.Min != (v3.Vec{}) || bb.Max != (v3.Vec{X: 0.1, Y: 0.1, Z: 0.01}) {
		t.Errorf("BoundingBox = %v", bb)
	}
}

func TestGeneratePlateSurface(t *testing.T) {
	s, p := buildPlate(t)
	m, err := New().Generate(context.Background(), s, 2, constant(0.0025), kernel.DefaultOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if m.CountByType(kernel.Tri3) == 0 {
		t.Fatal("no triangles generated")
	}
	if m.Geometry != s {
		t.Error("mesh does not reference its geometry")
	}
	if ratio := enclosedVolume(m) / 1e-4; ratio < 0.85 || ratio > 1.1 {
		t.Errorf("enclosed volume is %.3f of the plate volume", ratio)
	}
	onTop := 0
	for _, e := range m.Elements {
		if e.Entity == geom.SurfaceRef(p.Top) {
			onTop++
		}
	}
	if onTop == 0 {
		t.Error("no triangle classified on the top face")
	}
	for i := range m.NodeEntity {
		if m.NodeEntity[i].Dim != geom.DimSurface {
			t.Fatalf("vertex %d classified on %v", i, m.NodeEntity[i])
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	s, _ := buildPlate(t)
	small := kernel.DefaultOptions()
	small.MaxElements = 100
	tests := []struct {
		name string
		dim  int
		size kernel.SizeCallback
		opts kernel.Options
	}{
		{"volume mesh", 3, nil, kernel.DefaultOptions()},
		{"negative size", 2, constant(-1), kernel.DefaultOptions()},
		{"too fine", 2, constant(0.0001), small},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Generate(context.Background(), s, tt.dim, tt.size, tt.opts)
			var ge *kernel.GenerationError
			if !errors.As(err, &ge) {
				t.Fatalf("expected *GenerationError, got %v", err)
			}
		})
	}
}

func TestLocator(t *testing.T) {
	s := geom.NewStore()
	p, err := geom.BuildPlate(s, 0.1, 0.1, 0.01, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	axis, err := geom.BuildImpactAxis(s, 0.05, 0.05, 0, 0.01, 0.0025)
	if err != nil {
		t.Fatal(err)
	}
	outside, err := s.AddPoint(r3.Vec{X: 0.2, Y: 0.05, Z: 0.005}, 0)
	if err != nil {
		t.Fatal(err)
	}
	loc := New().Locator()
	vol := geom.VolumeRef(p.Volume)

	if ok, err := loc.Contains(s, vol, geom.CurveRef(axis.Line)); err != nil || !ok {
		t.Errorf("axis in volume = %v, %v", ok, err)
	}
	if ok, err := loc.Contains(s, vol, geom.PointRef(outside)); err != nil || ok {
		t.Errorf("outside point in volume = %v, %v", ok, err)
	}
	if ok, err := loc.Contains(s, geom.SurfaceRef(p.Bottom), geom.PointRef(axis.Start)); err != nil || !ok {
		t.Errorf("axis start on bottom = %v, %v", ok, err)
	}
	if _, err := loc.Contains(s, vol, geom.PointRef(99)); err == nil {
		t.Error("expected an error for a missing anchor")
	}
	if err := geom.EmbedAxis(s, loc, axis, p.Bottom, p.Top, p.Volume); err != nil {
		t.Errorf("EmbedAxis with sdf locator: %v", err)
	}
}

func TestPassesAndRefine(t *testing.T) {
	s, _ := buildPlate(t)
	g := New()
	ctx := context.Background()
	m, err := g.Generate(ctx, s, 2, constant(0.005), kernel.DefaultOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var warn *kernel.OptimizationWarning
	if out, err := g.Optimize(ctx, m, kernel.PassLaplace3D, 1, kernel.DefaultOptions()); !errors.As(err, &warn) || out != m {
		t.Errorf("Laplace3D on a surface mesh: %v", err)
	}
	for _, pass := range []string{kernel.PassLaplace2D, kernel.PassRelocate3D} {
		out, err := g.Optimize(ctx, m, pass, 2, kernel.DefaultOptions())
		if err != nil && !errors.As(err, &warn) {
			t.Fatalf("%s: %v", pass, err)
		}
		if q := kernel.MeasureQuality(out); q.Inverted != 0 {
			t.Errorf("%s left %d inverted triangles", pass, q.Inverted)
		}
	}

	r, err := g.Refine(ctx, m, kernel.DefaultOptions())
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if got, want := r.CountByType(kernel.Tri3), 4*m.CountByType(kernel.Tri3); got != want {
		t.Errorf("refined triangles = %d, want %d", got, want)
	}
}
