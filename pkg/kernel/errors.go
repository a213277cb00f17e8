package kernel

import "fmt"

// GenerationError reports that the mesher could not satisfy the geometry
// or the size field. The driver rolls back to the pre-generation state.
type GenerationError struct {
	Dim     int
	Message string
	Err     error // underlying cause, may be nil
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generate %dD: %s: %v", e.Dim, e.Message, e.Err)
	}
	return fmt.Sprintf("generate %dD: %s", e.Dim, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// GenErr builds a GenerationError.
func GenErr(dim int, format string, args ...any) *GenerationError {
	return &GenerationError{Dim: dim, Message: fmt.Sprintf(format, args...)}
}

// OptimizationWarning reports a post-processing pass that failed or made
// no improvement. The mesh it accompanies is the unchanged input.
type OptimizationWarning struct {
	Pass    string
	Message string
}

func (w *OptimizationWarning) Error() string {
	return fmt.Sprintf("optimize %s: %s", w.Pass, w.Message)
}

// Warn builds an OptimizationWarning.
func Warn(pass, format string, args ...any) *OptimizationWarning {
	return &OptimizationWarning{Pass: pass, Message: fmt.Sprintf(format, args...)}
}
