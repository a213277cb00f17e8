package field

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// NodeID identifies a node within its Graph. IDs are positive and assigned
// in insertion order, so a node can only reference smaller IDs.
type NodeID int

// Kind distinguishes the closed set of sizing node variants.
type Kind int

const (
	KindDistance Kind = iota
	KindCylinder
	KindFrustum
	KindTransform
	KindMin
)

func (k Kind) String() string {
	switch k {
	case KindDistance:
		return "distance"
	case KindCylinder:
		return "cylinder"
	case KindFrustum:
		return "frustum"
	case KindTransform:
		return "transform"
	case KindMin:
		return "min"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is a sizing function of position. Evaluate is pure and safe for
// concurrent use once the node is part of a graph.
type Node interface {
	Evaluate(p r3.Vec) float64
	Kind() Kind
	// Sources lists the nodes this node reads, empty for primitives.
	Sources() []NodeID
	sizingNode() // marker method restricting implementations to this package
}
