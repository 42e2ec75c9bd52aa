package deps

import (
	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// Graph is the bipartite edge set between output artifacts (keyed by their
// canonical output-relative path) and source identities. Edges always mean
// "artifact must be regenerated if this identity changes".
type Graph struct {
	edges map[string]sets.Set[source.Identity]
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[string]sets.Set[source.Identity])}
}

// SetEdges replaces the artifact's entire edge set. Edge sets are rebuilt
// from scratch on every full render of an artifact, never patched.
func (g *Graph) SetEdges(artifact string, ids []source.Identity) {
	s := sets.New[source.Identity](ids...)
	g.edges[artifact] = s
}

// Edges returns a copy of the artifact's edge set (nil if unknown).
func (g *Graph) Edges(artifact string) sets.Set[source.Identity] {
	s, ok := g.edges[artifact]
	if !ok {
		return nil
	}
	return s.Clone()
}

// Remove drops an artifact and its edges.
func (g *Graph) Remove(artifact string) { delete(g.edges, artifact) }

// Artifacts returns all artifacts with recorded edges, in unspecified order.
func (g *Graph) Artifacts() []string {
	out := make([]string, 0, len(g.edges))
	for a := range g.edges {
		out = append(out, a)
	}
	return out
}

// Has reports whether the artifact has a recorded edge set.
func (g *Graph) Has(artifact string) bool {
	_, ok := g.edges[artifact]
	return ok
}

// Len returns the number of artifacts with edges.
func (g *Graph) Len() int { return len(g.edges) }

// DependentsOf walks the edge set backwards and returns every artifact whose
// edges intersect the changed identity set. This is the core rebuild-set
// computation: cascade and taxonomy precision fall out of what renderers
// recorded, not of any special casing here.
func (g *Graph) DependentsOf(changed sets.Set[source.Identity]) sets.Set[string] {
	out := sets.New[string]()
	if changed.Len() == 0 {
		return out
	}
	for artifact, edges := range g.edges {
		if edges.Intersects(changed) {
			out.Add(artifact)
		}
	}
	return out
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := NewGraph()
	for a, e := range g.edges {
		out.edges[a] = e.Clone()
	}
	return out
}
