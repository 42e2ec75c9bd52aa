// Package deps tracks which output artifacts depend on which source
// identities. Renderers report every input they consult through a scoped
// Recorder; the resulting edge sets feed the impact analysis of the next
// build.
package deps

import (
	"sort"

	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// Recorder collects the source identities consulted while rendering one
// artifact. One recorder is created per artifact render and is not shared
// between goroutines; workers each own the recorder for the artifact they are
// rendering, and edge sets are merged into the graph only after the render
// finishes. A render that fails simply drops its recorder, so partial edge
// sets never reach the cache.
type Recorder struct {
	artifact string
	seen     sets.Set[source.Identity]
}

// NewRecorder begins tracking for the named artifact.
func NewRecorder(artifact string) *Recorder {
	return &Recorder{
		artifact: artifact,
		seen:     sets.New[source.Identity](),
	}
}

// Artifact returns the artifact being tracked.
func (r *Recorder) Artifact() string { return r.artifact }

// Record notes that the artifact consulted the given identity. Duplicate
// records are coalesced.
func (r *Recorder) Record(id source.Identity) {
	r.seen.Add(id)
}

// Finish ends tracking and returns the collected identities sorted by their
// string form for deterministic persistence.
func (r *Recorder) Finish() []source.Identity {
	out := r.seen.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
