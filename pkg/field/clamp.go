package field

import "math"

// ClampPolicy is the last step of every size query:
// clamp(max(Floor, x), Min, Max).
type ClampPolicy struct {
	Min   float64
	Max   float64
	Floor float64
}

// NewClampPolicy validates 0 < floor <= min <= max.
func NewClampPolicy(min, max, floor float64) (ClampPolicy, error) {
	for _, v := range []struct {
		name string
		val  float64
	}{{"min", min}, {"max", max}, {"floor", floor}} {
		if !(v.val > 0) || math.IsInf(v.val, 0) {
			return ClampPolicy{}, configErr("clamp."+v.name, "must be a positive finite number, got %g", v.val)
		}
	}
	if floor > min {
		return ClampPolicy{}, configErr("clamp.floor", "floor %g exceeds min %g", floor, min)
	}
	if min > max {
		return ClampPolicy{}, configErr("clamp.min", "min %g exceeds max %g", min, max)
	}
	return ClampPolicy{Min: min, Max: max, Floor: floor}, nil
}

// Apply clamps x. NaN is treated as the floor.
func (c ClampPolicy) Apply(x float64) float64 {
	if math.IsNaN(x) || x < c.Floor {
		x = c.Floor
	}
	if x < c.Min {
		return c.Min
	}
	if x > c.Max {
		return c.Max
	}
	return x
}
