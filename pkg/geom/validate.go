package geom

import "fmt"

// ValidationSeverity indicates whether a finding blocks generation or is
// merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks generation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Ref      Ref // offending entity, zero if store-level
	Message  string
	Severity ValidationSeverity
}

func (e ValidationError) Error() string {
	if e.Ref.Tag == 0 {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", e.Severity, e.Ref.Dim, e.Ref, e.Message)
}

// Validate runs the store level checks that cannot be enforced by the
// individual Add and Embed calls. It never mutates the store.
func Validate(s *Store) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateSurfaceEmbeddings(s)...)
	errs = append(errs, validateOrphans(s)...)
	errs = append(errs, validateVolumes(s)...)
	return errs
}

// HasErrors reports whether any finding has error severity.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// validateSurfaceEmbeddings checks that an anchor embedded in a volume is
// also embedded in every bounding surface of the volume it touches. For a
// curve anchor, each touching end point must be embedded in the surface.
func validateSurfaceEmbeddings(s *Store) []ValidationError {
	var errs []ValidationError
	tol := s.Tolerance()
	for _, anchor := range s.embeddings.AllAnchors() {
		for _, host := range s.embeddings.Hosts(anchor) {
			if host.Dim != DimVolume {
				continue
			}
			for _, surf := range s.Boundary(host) {
				for _, touch := range touchingParts(s, anchor, surf, tol) {
					if !s.embeddings.IsEmbedded(touch, surf) {
						errs = append(errs, ValidationError{
							Ref:      touch,
							Message:  fmt.Sprintf("touches surface %d of volume %d but is not embedded in it", surf.Tag, host.Tag),
							Severity: SeverityError,
						})
					}
				}
			}
		}
	}
	return errs
}

// touchingParts returns the parts of anchor that lie on surface surf: the
// point itself, a whole curve lying in the surface, or curve end points.
func touchingParts(s *Store, anchor, surf Ref, tol float64) []Ref {
	if anchor.Dim == DimPoint {
		p, _ := s.Point(anchor.Tag)
		if s.Contains(surf, p.Pos, tol) {
			return []Ref{anchor}
		}
		return nil
	}
	whole := true
	for _, p := range AnchorSamples(s, anchor, 0) {
		if !s.Contains(surf, p, tol) {
			whole = false
			break
		}
	}
	if whole {
		return []Ref{anchor}
	}
	var out []Ref
	for _, end := range s.Boundary(anchor) {
		p, _ := s.Point(end.Tag)
		if s.Contains(surf, p.Pos, tol) {
			out = append(out, end)
		}
	}
	return out
}

// validateOrphans warns about points that bound nothing, center nothing
// and are not anchors.
func validateOrphans(s *Store) []ValidationError {
	used := make(map[Handle]bool)
	for _, h := range s.Handles(DimCurve) {
		switch d := s.entities[DimCurve][h].Data.(type) {
		case LineData:
			used[d.Start], used[d.End] = true, true
		case CircleArcData:
			used[d.Start], used[d.Center], used[d.End] = true, true, true
		case CircleData:
			used[d.Seam] = true
		}
	}
	var errs []ValidationError
	for _, h := range s.Handles(DimPoint) {
		if used[h] || s.embeddings.IsAnchor(PointRef(h)) {
			continue
		}
		errs = append(errs, ValidationError{
			Ref:      PointRef(h),
			Message:  "point is neither on a curve nor embedded",
			Severity: SeverityWarning,
		})
	}
	return errs
}

func validateVolumes(s *Store) []ValidationError {
	if s.EntityCount(DimVolume) > 0 || s.EntityCount(DimSurface) == 0 {
		return nil
	}
	return []ValidationError{{
		Message:  "store has surfaces but no volume; only surface meshes can be generated",
		Severity: SeverityWarning,
	}}
}
