package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/impactmesh/pkg/field"
	"github.com/chazu/impactmesh/pkg/geom"
	zygo "github.com/glycerine/zygomys/zygo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpRef wraps a geometric entity. A reversed ref enters curve and
// surface loops with a negative orientation.
type sexpRef struct {
	ref      geom.Ref
	reversed bool
}

func (r *sexpRef) SexpString(ps *zygo.PrintState) string {
	if r.reversed {
		return fmt.Sprintf("(reversed %s)", r.ref)
	}
	return fmt.Sprintf("(%s)", r.ref)
}
func (r *sexpRef) Type() *zygo.RegisteredType { return nil }

// signed returns the handle with its orientation sign.
func (r *sexpRef) signed() int {
	if r.reversed {
		return -int(r.ref.Tag)
	}
	return int(r.ref.Tag)
}

// sexpLoop wraps a curve loop or surface loop handle. Loops are not
// entities and cannot be embedded.
type sexpLoop struct {
	handle geom.Handle
	shell  bool
}

func (l *sexpLoop) SexpString(ps *zygo.PrintState) string {
	if l.shell {
		return fmt.Sprintf("(surface-loop %d)", l.handle)
	}
	return fmt.Sprintf("(curve-loop %d)", l.handle)
}
func (l *sexpLoop) Type() *zygo.RegisteredType { return nil }

// sexpParts is the result of a parametric builder: a named set of the
// entities it created.
type sexpParts struct {
	kind  string
	parts map[string]geom.Ref
}

func (p *sexpParts) SexpString(ps *zygo.PrintState) string {
	names := make([]string, 0, len(p.parts))
	for k := range p.parts {
		names = append(names, ":"+k)
	}
	sort.Strings(names)
	return fmt.Sprintf("(%s %s)", p.kind, strings.Join(names, " "))
}
func (p *sexpParts) Type() *zygo.RegisteredType { return nil }

func (p *sexpParts) get(key string) (geom.Ref, error) {
	ref, ok := p.parts[key]
	if !ok {
		return geom.Ref{}, fmt.Errorf("%s has no part %q", p.kind, key)
	}
	return ref, nil
}

// sexpField wraps a node of the sizing field graph.
type sexpField struct {
	id   field.NodeID
	kind field.Kind
}

func (f *sexpField) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(field F%d %s)", f.id, f.kind)
}
func (f *sexpField) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps an r3.Vec.
type sexpVec3 struct {
	vec r3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW reports whether s is a preprocessed keyword and returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// float returns the number under key, or def when the key is absent.
func (a kwArgs) float(key string, def float64) (float64, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// required returns the number under key and fails when it is absent.
func (a kwArgs) required(key string) (float64, error) {
	if _, ok := a.kw[key]; !ok {
		return 0, fmt.Errorf("missing :%s", key)
	}
	return a.float(key, 0)
}

// vec returns the vector under key, or def when the key is absent.
func (a kwArgs) vec(key string, def r3.Vec) (r3.Vec, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	p, err := toVec3(v)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("%s: %w", key, err)
	}
	return p, nil
}

// pair returns a two element number list under key.
func (a kwArgs) pair(key string) ([2]float64, error) {
	v, ok := a.kw[key]
	if !ok {
		return [2]float64{}, fmt.Errorf("missing :%s", key)
	}
	items, err := sexpListToSlice(v)
	if err != nil {
		return [2]float64{}, fmt.Errorf("%s: %w", key, err)
	}
	if len(items) != 2 {
		return [2]float64{}, fmt.Errorf("%s: expected 2 numbers, got %d", key, len(items))
	}
	var out [2]float64
	for i, it := range items {
		if out[i], err = toFloat64(it); err != nil {
			return [2]float64{}, fmt.Errorf("%s: %w", key, err)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an integer. Floats with a fractional part are rejected.
func toInt(s zygo.Sexp) (int, error) {
	f, err := toFloat64(s)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("expected integer, got %g", f)
	}
	return int(f), nil
}

func toBool(s zygo.Sexp) (bool, error) {
	if b, ok := s.(*zygo.SexpBool); ok {
		return b.Val, nil
	}
	return false, fmt.Errorf("expected true or false, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toRef extracts an entity, optionally restricted to the given dimension.
func toRef(s zygo.Sexp, dims ...geom.Dim) (*sexpRef, error) {
	r, ok := s.(*sexpRef)
	if !ok {
		return nil, fmt.Errorf("expected entity, got %T (%s)", s, s.SexpString(nil))
	}
	if len(dims) == 0 {
		return r, nil
	}
	for _, d := range dims {
		if r.ref.Dim == d {
			return r, nil
		}
	}
	return nil, fmt.Errorf("expected %v entity, got %s", dims, r.ref)
}

// toHandle extracts an unreversed entity handle of dimension d.
func toHandle(s zygo.Sexp, d geom.Dim) (geom.Handle, error) {
	r, err := toRef(s, d)
	if err != nil {
		return 0, err
	}
	if r.reversed {
		return 0, fmt.Errorf("%s must not be reversed here", r.ref)
	}
	return r.ref.Tag, nil
}

func toLoop(s zygo.Sexp, shell bool) (geom.Handle, error) {
	l, ok := s.(*sexpLoop)
	if !ok || l.shell != shell {
		want := "curve loop"
		if shell {
			want = "surface loop"
		}
		return 0, fmt.Errorf("expected %s, got %T (%s)", want, s, s.SexpString(nil))
	}
	return l.handle, nil
}

func toParts(s zygo.Sexp) (*sexpParts, error) {
	if p, ok := s.(*sexpParts); ok {
		return p, nil
	}
	return nil, fmt.Errorf("expected builder result, got %T (%s)", s, s.SexpString(nil))
}

func toField(s zygo.Sexp) (field.NodeID, error) {
	if f, ok := s.(*sexpField); ok {
		return f.id, nil
	}
	return 0, fmt.Errorf("expected field, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts an r3.Vec from a sexpVec3.
func toVec3(s zygo.Sexp) (r3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return r3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}
