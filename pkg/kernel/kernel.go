// Package kernel defines the mesher collaborator contract. Implementations
// (grid, sdfx) generate meshes from a frozen geom.Store while querying a
// size callback, and provide optimization and refinement passes. The
// abstraction allows swapping meshers without changing the driver.
package kernel

import (
	"context"

	"github.com/chazu/impactmesh/pkg/geom"
)

// SizeCallback returns the final element size at (x,y,z) on entity
// (dim, tag). lc is the size the mesher would use on its own, taken from
// per-vertex hints or the default size.
type SizeCallback func(dim, tag int, x, y, z, lc float64) float64

// Mesher is the abstract volumetric mesh generator.
type Mesher interface {
	// Name identifies the mesher in logs and configuration.
	Name() string

	// Locator returns the containment test used when embedding anchors.
	Locator() geom.Locator

	// Generate meshes every volume of s up to dimension dim (2 or 3),
	// querying size at candidate positions. It returns a GenerationError
	// when the size field cannot be satisfied. A cancelled context aborts
	// generation and no partial mesh is returned.
	Generate(ctx context.Context, s *geom.Store, dim int, size SizeCallback, opts Options) (*Mesh, error)

	// Optimize runs the named pass niter times and returns a new mesh. The
	// input mesh is never modified. A pass that fails or does not improve
	// the mesh returns the input together with an *OptimizationWarning.
	Optimize(ctx context.Context, m *Mesh, pass string, niter int, opts Options) (*Mesh, error)

	// Refine splits every element uniformly and returns a new mesh.
	Refine(ctx context.Context, m *Mesh, opts Options) (*Mesh, error)
}
