package kernel

import (
	"fmt"
	"strings"
)

// Precedence decides how per-vertex size hints interact with a bound
// background field.
type Precedence int

const (
	// PrecedenceBackground ignores vertex hints once a field is bound.
	PrecedenceBackground Precedence = iota
	// PrecedenceMinimum takes the smaller of the vertex hint and the field.
	PrecedenceMinimum
)

func (p Precedence) String() string {
	switch p {
	case PrecedenceBackground:
		return "background"
	case PrecedenceMinimum:
		return "minimum"
	default:
		return fmt.Sprintf("Precedence(%d)", int(p))
	}
}

// ParsePrecedence parses "background" or "minimum".
func ParsePrecedence(s string) (Precedence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "background":
		return PrecedenceBackground, nil
	case "minimum", "min":
		return PrecedenceMinimum, nil
	}
	return 0, fmt.Errorf("unknown size precedence %q", s)
}

// Options is the immutable mesher configuration passed explicitly into
// Generate, Optimize and Refine.
type Options struct {
	// DefaultSize is the size proposed where no vertex hint applies.
	DefaultSize float64
	// SizeFromPoints proposes the hint of the nearest vertex carrying one.
	SizeFromPoints bool
	// SizeFactor scales every final size.
	SizeFactor float64
	// Precedence between vertex hints and the background field.
	Precedence Precedence
	// MaxElements bounds the number of generated volume elements.
	MaxElements int
	// Smoothing is the number of Laplace steps applied after generation.
	Smoothing int
	// Samples is the per-axis resolution used to probe the size field.
	Samples int
}

// DefaultOptions returns the configuration used when none is given.
func DefaultOptions() Options {
	return Options{
		DefaultSize: 1,
		SizeFactor:  1,
		Precedence:  PrecedenceBackground,
		MaxElements: 2_000_000,
		Samples:     16,
	}
}

// Validate checks the options for values no mesher can use.
func (o Options) Validate() error {
	if !(o.DefaultSize > 0) {
		return fmt.Errorf("mesher options: default size %g must be positive", o.DefaultSize)
	}
	if !(o.SizeFactor > 0) {
		return fmt.Errorf("mesher options: size factor %g must be positive", o.SizeFactor)
	}
	if o.MaxElements <= 0 {
		return fmt.Errorf("mesher options: max elements %d must be positive", o.MaxElements)
	}
	if o.Smoothing < 0 {
		return fmt.Errorf("mesher options: smoothing %d must not be negative", o.Smoothing)
	}
	if o.Samples < 2 {
		return fmt.Errorf("mesher options: samples %d must be at least 2", o.Samples)
	}
	return nil
}
