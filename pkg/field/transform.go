package field

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Expr is a real function of one real variable applied by a Transform.
type Expr interface {
	Apply(x float64) float64
	String() string
}

// Poly is the expression Scale*x^Power + Offset. With a positive Scale and
// Power it is monotonic for x >= 0, so sizes grow away from an anchor.
type Poly struct {
	Scale  float64
	Power  int
	Offset float64
}

func (e Poly) Apply(x float64) float64 {
	return e.Scale*ipow(x, e.Power) + e.Offset
}

func (e Poly) String() string {
	return fmt.Sprintf("%g*x^%d + %g", e.Scale, e.Power, e.Offset)
}

func ipow(x float64, n int) float64 {
	switch n {
	case 0:
		return 1
	case 1:
		return x
	case 2:
		return x * x
	}
	return math.Pow(x, float64(n))
}

// Func adapts an arbitrary Go function.
type Func struct {
	Name string
	F    func(float64) float64
}

func (e Func) Apply(x float64) float64 { return e.F(x) }
func (e Func) String() string { return e.Name }

var mathEvalRE = regexp.MustCompile(
	`^(?:([-+]?[0-9.]+(?:[eE][-+]?[0-9]+)?)\s*\*\s*)?F(\d+)(?:\s*\^\s*(\d+))?(?:\s*([-+])\s*([0-9.]+(?:[eE][-+]?[0-9]+)?))?$`)

// MathEval is a parsed expression of the form "a*F<n>^k + b".
type MathEval struct {
	Source int // the n of F<n>
	Expr   Poly
}

// ParseMathEval parses the polynomial subset of gmsh MathEval strings,
// e.g. "2.5*F1^2 + 0.0025". The scale, power and offset are optional.
func ParseMathEval(s string) (MathEval, error) {
	src := strings.TrimSpace(s)
	m := mathEvalRE.FindStringSubmatch(src)
	if m == nil {
		return MathEval{}, configErr("math_eval", "unsupported expression %q, want a*F<n>^k + b", s)
	}
	out := MathEval{Expr: Poly{Scale: 1, Power: 1}}
	var err error
	if m[1] != "" {
		if out.Expr.Scale, err = strconv.ParseFloat(m[1], 64); err != nil {
			return MathEval{}, configErr("math_eval", "scale: %v", err)
		}
	}
	if out.Source, err = strconv.Atoi(m[2]); err != nil {
		return MathEval{}, configErr("math_eval", "field reference: %v", err)
	}
	if m[3] != "" {
		if out.Expr.Power, err = strconv.Atoi(m[3]); err != nil {
			return MathEval{}, configErr("math_eval", "power: %v", err)
		}
	}
	if m[5] != "" {
		if out.Expr.Offset, err = strconv.ParseFloat(m[5], 64); err != nil {
			return MathEval{}, configErr("math_eval", "offset: %v", err)
		}
		if m[4] == "-" {
			out.Expr.Offset = -out.Expr.Offset
		}
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Combinators
// ----------------------------------------------------------------------------

// Transform evaluates Expr over the value of its Source node.
type Transform struct {
	Source NodeID
	Expr   Expr

	src Node
}

func (t *Transform) Evaluate(p r3.Vec) float64 {
	return t.Expr.Apply(t.src.Evaluate(p))
}

func (t *Transform) Kind() Kind { return KindTransform }
func (t *Transform) Sources() []NodeID { return []NodeID{t.Source} }
func (t *Transform) sizingNode() {}

// Min evaluates to the smallest value among its inputs, so the finest
// requirement always wins where refinement zones overlap.
type Min struct {
	Inputs []NodeID

	srcs []Node
}

func (m *Min) Evaluate(p r3.Vec) float64 {
	v := math.Inf(1)
	for _, s := range m.srcs {
		if x := s.Evaluate(p); x < v {
			v = x
		}
	}
	return v
}

func (m *Min) Kind() Kind { return KindMin }
func (m *Min) Sources() []NodeID { return append([]NodeID(nil), m.Inputs...) }
func (m *Min) sizingNode() {}
