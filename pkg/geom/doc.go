// Package geom defines the boundary representation used to describe a
// meshing domain: points, curves, curve loops, surfaces, surface loops and
// volumes, each addressed by a stable integer handle within its dimension.
// Lower-dimensional anchors can be embedded into higher-dimensional hosts
// without altering their boundary topology.
package geom
