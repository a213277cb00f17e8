package geom

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// EmbeddingTable records which anchors are embedded in which hosts. It is
// owned by the Store and frozen with it.
type EmbeddingTable struct {
	hosts   map[Ref]map[Ref]struct{}
	anchors map[Ref]map[Ref]struct{}
}

func newEmbeddingTable() *EmbeddingTable {
	return &EmbeddingTable{
		hosts:   make(map[Ref]map[Ref]struct{}),
		anchors: make(map[Ref]map[Ref]struct{}),
	}
}

func (t *EmbeddingTable) add(anchor, host Ref) {
	if t.hosts[anchor] == nil {
		t.hosts[anchor] = make(map[Ref]struct{})
	}
	t.hosts[anchor][host] = struct{}{}
	if t.anchors[host] == nil {
		t.anchors[host] = make(map[Ref]struct{})
	}
	t.anchors[host][anchor] = struct{}{}
}

// Hosts returns the hosts anchor is embedded in, sorted.
func (t *EmbeddingTable) Hosts(anchor Ref) []Ref {
	return sortedRefs(t.hosts[anchor])
}

// Anchors returns the anchors embedded in host, sorted.
func (t *EmbeddingTable) Anchors(host Ref) []Ref {
	return sortedRefs(t.anchors[host])
}

// IsEmbedded reports whether anchor is embedded in host.
func (t *EmbeddingTable) IsEmbedded(anchor, host Ref) bool {
	_, ok := t.hosts[anchor][host]
	return ok
}

// IsAnchor reports whether ref is embedded anywhere.
func (t *EmbeddingTable) IsAnchor(ref Ref) bool {
	return len(t.hosts[ref]) > 0
}

// AllAnchors returns every embedded anchor, sorted.
func (t *EmbeddingTable) AllAnchors() []Ref {
	set := make(map[Ref]struct{}, len(t.hosts))
	for a := range t.hosts {
		set[a] = struct{}{}
	}
	return sortedRefs(set)
}

// Len returns the number of (anchor, host) pairs.
func (t *EmbeddingTable) Len() int {
	n := 0
	for _, hs := range t.hosts {
		n += len(hs)
	}
	return n
}

func sortedRefs(set map[Ref]struct{}) []Ref {
	out := make([]Ref, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dim != out[j].Dim {
			return out[i].Dim < out[j].Dim
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// Locator decides whether an anchor lies within a host. Mesh kernels
// provide their own locators; GeometricLocator works on the store alone.
type Locator interface {
	Contains(s *Store, host, anchor Ref) (bool, error)
}

// GeometricLocator samples the anchor and tests every sample against the
// exact host geometry.
type GeometricLocator struct {
	// Samples is the number of interior samples taken along curve anchors.
	Samples int
}

// Contains implements Locator.
func (g GeometricLocator) Contains(s *Store, host, anchor Ref) (bool, error) {
	tol := s.Tolerance()
	for _, p := range AnchorSamples(s, anchor, g.Samples) {
		if !s.Contains(host, p, tol) {
			return false, nil
		}
	}
	return true, nil
}

// AnchorSamples returns positions along an anchor: the point itself, or
// samples+2 points along a curve including both ends.
func AnchorSamples(s *Store, anchor Ref, samples int) []r3.Vec {
	switch anchor.Dim {
	case DimPoint:
		if p, ok := s.Point(anchor.Tag); ok {
			return []r3.Vec{p.Pos}
		}
	case DimCurve:
		c, ok := s.curves[anchor.Tag]
		if !ok {
			return nil
		}
		if samples < 0 {
			samples = 0
		}
		if samples == 0 {
			samples = 8
		}
		out := make([]r3.Vec, samples+2)
		for i := range out {
			out[i] = c.At(float64(i) / float64(samples+1))
		}
		return out
	}
	return nil
}

// Embed marks anchor as embedded in the host entity (hostDim, host) so that
// the mesher places nodes on it. Anchors are points or curves; the host
// must be of higher dimension, must exist and must contain the anchor.
// An anchor that is already part of the host boundary is rejected.
func (s *Store) Embed(loc Locator, anchor Ref, hostDim Dim, host Handle) error {
	if s.frozen {
		return ErrFrozen
	}
	hostRef := Ref{Dim: hostDim, Tag: host}
	if anchor.Dim != DimPoint && anchor.Dim != DimCurve {
		return embedErr(anchor, hostRef, "only points and curves can be embedded")
	}
	if !hostDim.Valid() || hostDim <= anchor.Dim {
		return embedErr(anchor, hostRef, "host dimension must exceed anchor dimension")
	}
	if !s.Has(anchor) {
		return embedErr(anchor, hostRef, "anchor does not exist")
	}
	if !s.Has(hostRef) {
		return embedErr(anchor, hostRef, "host does not exist")
	}
	if s.closure(hostRef)[anchor] {
		return embedErr(anchor, hostRef, "anchor is part of the host boundary")
	}
	if loc == nil {
		loc = GeometricLocator{}
	}
	ok, err := loc.Contains(s, hostRef, anchor)
	if err != nil {
		return embedErr(anchor, hostRef, "locating anchor: %v", err)
	}
	if !ok {
		return embedErr(anchor, hostRef, "anchor lies outside the host")
	}
	s.embeddings.add(anchor, hostRef)
	return nil
}
