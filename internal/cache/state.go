// Package cache persists the incremental build cache: the fingerprints of
// every source identity seen by the last successful build, and the dependency
// edges recorded while rendering its artifacts.
package cache

import (
	"sort"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/deps"
	"git.home.luguber.info/inful/sitegen/internal/source"
)

// Version is the current cache encoding version. A loaded cache with any
// other version is discarded and the build falls back to a full rebuild;
// possibly-incompatible edge data is never interpreted. Version 2 introduced
// the section and site membership identities; older caches lack those edges.
const Version = 2

// State is the persisted snapshot carried between builds. It is an explicit
// value passed into and returned from the orchestrator, never a hidden
// singleton: corruption and version-mismatch fallback stay trivially
// testable.
type State struct {
	CacheVersion   int                               `json:"cache_version"`
	BuildTimestamp time.Time                         `json:"build_timestamp"`
	Fingerprints   map[source.Identity]source.Fingerprint `json:"fingerprints"`
	Edges          map[string][]source.Identity      `json:"edges"`
}

// NewState returns an empty state at the current version.
func NewState() *State {
	return &State{
		CacheVersion: Version,
		Fingerprints: make(map[source.Identity]source.Fingerprint),
		Edges:        make(map[string][]source.Identity),
	}
}

// FromBuild assembles the state to persist after a successful build.
func FromBuild(snapshot source.Snapshot, graph *deps.Graph, at time.Time) *State {
	st := NewState()
	st.BuildTimestamp = at
	for id, fp := range snapshot {
		st.Fingerprints[id] = fp
	}
	for _, artifact := range graph.Artifacts() {
		edges := graph.Edges(artifact)
		ids := edges.Values()
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		st.Edges[artifact] = ids
	}
	return st
}

// Snapshot returns the cached fingerprints as a snapshot value.
func (s *State) Snapshot() source.Snapshot {
	out := make(source.Snapshot, len(s.Fingerprints))
	for id, fp := range s.Fingerprints {
		out[id] = fp
	}
	return out
}

// Graph returns the cached edges as a dependency graph.
func (s *State) Graph() *deps.Graph {
	g := deps.NewGraph()
	for artifact, ids := range s.Edges {
		g.SetEdges(artifact, ids)
	}
	return g
}

// Artifacts returns the artifacts known to the cache, sorted.
func (s *State) Artifacts() []string {
	out := make([]string, 0, len(s.Edges))
	for a := range s.Edges {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
