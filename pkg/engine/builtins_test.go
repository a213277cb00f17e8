package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/impactmesh/pkg/field"
	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/chazu/impactmesh/pkg/meshio"
	"github.com/chazu/impactmesh/pkg/session"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(plate :length 0.1)`,
			expect: `(plate "__kw_length" 0.1)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "escaped quote in string",
			input:  `"a \" :b" :c`,
			expect: `"a \" :b" "__kw_c"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(curve-loop a (reversed b))`,
			expect: `(curve_loop a (reversed b))`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative exponent preserved",
			input:  `1e-3`,
			expect: `1e-3`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:half-length`,
			expect: `"__kw_half-length"`,
		},
		{
			name:   "math eval string untouched",
			input:  `(math-eval "8.8*F%d^2 + 0.0025" :of d)`,
			expect: `(math_eval "8.8*F%d^2 + 0.0025" "__kw_of" d)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Script helpers
// ---------------------------------------------------------------------------

func evaluate(t *testing.T, source string) *Script {
	t.Helper()
	sc, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	return sc
}

func evalError(t *testing.T, source, want string) {
	t.Helper()
	sc, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if sc != nil || len(evalErrs) == 0 {
		t.Fatalf("expected eval errors, got script %v", sc)
	}
	if !strings.Contains(evalErrs[0].Message, want) {
		t.Errorf("error %q does not mention %q", evalErrs[0].Message, want)
	}
}

const plateScript = `
;; thin plate with an impact axis through its centre
(def p (plate :length 0.1 :width 0.1 :height 0.01 :lc 0.01))
(def ax (impact-axis :x 0.05 :y 0.05 :z0 0 :z1 0.01 :lc 0.0025))
(embed-axis ax p)
(def d (distance (pick ax :line)))
(def f (math-eval "8.8*F%d^2 + 0.0025" :of d))
(background f :min 0.05 :max 0.1 :floor 0.05)
`

// ---------------------------------------------------------------------------
// Geometry, embedding and field
// ---------------------------------------------------------------------------

func TestPlateScript(t *testing.T) {
	sc := evaluate(t, plateScript)
	s := sc.Session

	if s.State() != session.FieldBound {
		t.Fatalf("state = %s, want FieldBound", s.State())
	}
	st := s.Store()
	if st.EntityCount(geom.DimVolume) != 1 || st.EntityCount(geom.DimSurface) != 6 {
		t.Errorf("store has %d volumes and %d surfaces",
			st.EntityCount(geom.DimVolume), st.EntityCount(geom.DimSurface))
	}
	if got := st.Embeddings().Len(); got != 5 {
		t.Errorf("embeddings = %d, want 5", got)
	}
	if s.Graph().Len() != 2 {
		t.Errorf("field graph has %d nodes, want 2", s.Graph().Len())
	}
	if root, ok := s.Oracle().Background(); !ok || root != 2 {
		t.Errorf("background = %d, %v", root, ok)
	}
	c, _ := s.Oracle().ClampPolicy()
	if c.Min != 0.05 || c.Max != 0.1 || c.Floor != 0.05 {
		t.Errorf("clamp policy = %+v", c)
	}
	if v, ok := s.Oracle().Size(r3.Vec{X: 0.05, Y: 0.05, Z: 0.005}); !ok || v != 0.05 {
		t.Errorf("size on the axis = %g, %v", v, ok)
	}
}

func TestHandBuiltCube(t *testing.T) {
	sc := evaluate(t, `
(def a (point 0 0 0 :lc 0.5)) (def b (point 1 0 0 :lc 0.5))
(def c (point 1 1 0 :lc 0.5)) (def d (point 0 1 0 :lc 0.5))
(def e (point 0 0 1 :lc 0.5)) (def f (point 1 0 1 :lc 0.5))
(def g (point 1 1 1 :lc 0.5)) (def h (point 0 1 1 :lc 0.5))
(def ab (line a b)) (def bc (line b c)) (def cd (line c d)) (def da (line d a))
(def ef (line e f)) (def fg (line f g)) (def gh (line g h)) (def he (line h e))
(def ae (line a e)) (def bf (line b f)) (def cg (line c g)) (def dh (line d h))
(def bottom (plane-surface (curve-loop (reversed da) (reversed cd) (reversed bc) (reversed ab))))
(def top    (plane-surface (curve-loop ef fg gh he)))
(def front  (plane-surface (curve-loop ab bf (reversed ef) (reversed ae))))
(def right  (plane-surface (curve-loop bc cg (reversed fg) (reversed bf))))
(def back   (plane-surface (curve-loop cd dh (reversed gh) (reversed cg))))
(def left   (plane-surface (curve-loop da ae (reversed he) (reversed dh))))
(def cube (volume (surface-loop bottom top front right back left)))
(def centre (point 0.5 0.5 0.5))
(embed centre cube)
(mesh-options :default-size 0.5 :precedence :minimum :size-from-points true :samples 8)
(generate 3)
`)
	s := sc.Session
	if s.State() != session.AnchorsEmbedded {
		t.Fatalf("state = %s, want AnchorsEmbedded", s.State())
	}
	if !s.Store().Embeddings().IsEmbedded(geom.PointRef(9), geom.VolumeRef(1)) {
		t.Error("centre point not embedded in the cube")
	}
	o := s.Options()
	if o.DefaultSize != 0.5 || o.Precedence != kernel.PrecedenceMinimum || !o.SizeFromPoints || o.Samples != 8 {
		t.Errorf("options = %+v", o)
	}
	if err := sc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.Mesh().CountByType(kernel.Hex8); got != 8 {
		t.Errorf("hexahedra = %d, want 8", got)
	}
}

func TestCylinderScript(t *testing.T) {
	sc := evaluate(t, `
(def cyl (cylinder :center (vec3 0 0 0) :radius 0.05 :height 0.1 :lc 0.02))
(def ax (impact-axis cyl))
(embed-axis ax cyl)
(def near (cylinder-field :center (vec3 0 0 0.05) :axis (vec3 0 0 1) :radius 0.01
                          :inner 0.005 :outer 0.02 :half-length 0.05))
(def cone (frustum :start (vec3 0 0 0) :end (vec3 0 0 0.1)
                   :inner-radius (list 0.01 0.01) :outer-radius (list 0.03 0.03)
                   :inner-size (list 0.005 0.005) :outer-size (list 0.02 0.02)))
(def grow (transform (distance (pick ax :line)) :scale 0.5 :offset 0.005))
(background (field-min near cone grow) :min 0.005 :max 0.02 :floor 0.005)
`)
	s := sc.Session
	if s.State() != session.FieldBound {
		t.Fatalf("state = %s, want FieldBound", s.State())
	}
	if got := s.Store().EntityCount(geom.DimSurface); got != 6 {
		t.Errorf("surfaces = %d, want 6", got)
	}
	root, _ := s.Oracle().Background()
	n, _ := s.Graph().Node(root)
	if n.Kind() != field.KindMin || len(n.Sources()) != 3 {
		t.Errorf("background root is %s with %d sources", n.Kind(), len(n.Sources()))
	}
	if v, _ := s.Oracle().Size(r3.Vec{Z: 0.05}); v != 0.005 {
		t.Errorf("size on the axis = %g, want 0.005", v)
	}
	if v, _ := s.Oracle().Size(r3.Vec{X: 0.049, Z: 0.05}); v != 0.02 {
		t.Errorf("size at the rim = %g, want 0.02", v)
	}
}

// ---------------------------------------------------------------------------
// Mesh steps
// ---------------------------------------------------------------------------

func TestScriptRunWritesMesh(t *testing.T) {
	out := filepath.Join(t.TempDir(), "plate.msh")
	sc := evaluate(t, plateScript+fmt.Sprintf(`
(generate 3)
(optimize :laplace3d 2 "Relocate3D" 1)
(refine)
(write %q)
`, out))

	kinds := make([]StepKind, len(sc.Steps))
	for i, st := range sc.Steps {
		kinds[i] = st.Kind
	}
	want := []StepKind{StepGenerate, StepOptimize, StepRefine, StepWrite}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("steps = %v, want %v", kinds, want)
	}
	if p := sc.Steps[1].Passes; len(p) != 2 || p[0].Name != kernel.PassLaplace3D || p[1].Iterations != 1 {
		t.Errorf("optimize passes = %+v", p)
	}
	if !sc.Writes() {
		t.Error("Writes() = false")
	}

	if err := sc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := sc.Session
	if s.State() != session.Terminal {
		t.Errorf("state = %s, want Terminal", s.State())
	}
	if got := s.Mesh().CountByType(kernel.Hex8); got != 32 {
		t.Errorf("refined hexahedra = %d, want 32", got)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	back, err := meshio.ReadMSH(f)
	if err != nil {
		t.Fatalf("ReadMSH: %v", err)
	}
	if got := back.CountByType(kernel.Hex8); got != 32 {
		t.Errorf("written hexahedra = %d, want 32", got)
	}
}

func TestScriptRunStopsAtFailedStep(t *testing.T) {
	sc := evaluate(t, plateScript+`
(mesh-options :max-elements 2)
(generate 3)
(write "never.msh")
`)
	err := sc.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "step 1 (generate)") {
		t.Fatalf("expected generate step failure, got %v", err)
	}
	if sc.Session.State() != session.FieldBound {
		t.Errorf("state = %s, want FieldBound", sc.Session.State())
	}
}

func TestScriptRunCancelled(t *testing.T) {
	sc := evaluate(t, plateScript+"(generate 3)")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sc.Run(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"missing plate keyword", `(plate :length 1 :width 1 :height 1)`, "missing :lc"},
		{"bad plate dimension", `(plate :length -1 :width 1 :height 1 :lc 1)`, "positive"},
		{"line needs points", `(line 1 2)`, "expected entity"},
		{"unknown part", `(def p (plate :length 1 :width 1 :height 1 :lc 1)) (pick p :lid)`, "no part"},
		{"distance to a volume", `
(def p (plate :length 1 :width 1 :height 1 :lc 1))
(distance (pick p :volume))`, "entity, got"},
		{"geometry closed", `
(def a (point 0 0 0)) (def b (point 1 0 0))
(distance a)
(point 0 1 0)`, "geometry is closed"},
		{"anchor outside host", `
(def p (plate :length 1 :width 1 :height 1 :lc 1))
(embed (point 2 2 2) (pick p :volume))`, "embed"},
		{"embed after background", `
(def p (plate :length 1 :width 1 :height 1 :lc 1))
(def a (point 0.5 0.5 0.5))
(background (distance a) :min 0.1 :max 1 :floor 0.1)
(embed a (pick p :volume))`, "before the field is bound"},
		{"bad clamp", `
(def a (point 0 0 0))
(background (distance a) :min 1 :max 0.5 :floor 0.1)`, "clamp"},
		{"bad math eval", `(def a (point 0 0 0)) (math-eval "sin(F1)")`, "math-eval"},
		{"bad precedence", `(mesh-options :precedence :maximum)`, "precedence"},
		{"fractional iterations", `(optimize "Laplace3D" 1.5)`, "integer"},
		{"generate dimension", `(generate 4)`, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evalError(t, tt.source, tt.want)
		})
	}
}

func TestExampleScripts(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.lisp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Skip("no example scripts")
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			src, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			sc := evaluate(t, string(src))
			if sc.Session.State() != session.FieldBound {
				t.Errorf("state = %s, want FieldBound", sc.Session.State())
			}
			if !sc.Writes() || sc.Steps[0].Kind != StepGenerate {
				t.Errorf("steps = %+v, want generate first and a write", sc.Steps)
			}
		})
	}
}
