// Package field implements the sizing field graph: geometric primitives
// (distance to anchors, cylinder and frustum steps), algebraic transforms
// and minimum reduction, combined into a DAG whose designated background
// node answers every size query through a clamp policy.
package field
