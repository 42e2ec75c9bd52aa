// Package impact computes the minimal set of output artifacts that must be
// regenerated for a given change set, by walking the cached dependency graph
// backwards from the changed source identities.
package impact

import (
	"log/slog"

	"git.home.luguber.info/inful/sitegen/internal/deps"
	"git.home.luguber.info/inful/sitegen/internal/detect"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// Reason values explain why an artifact landed in the rebuild set.
// Maintained as constants to prevent string drift across analyzer,
// reporting, and tests.
const (
	ReasonEdgeChanged   = "edge_changed"    // a recorded dependency changed
	ReasonNewArtifact   = "new_artifact"    // artifact not present in the cache
	ReasonFullRebuild   = "full_rebuild"    // forced or fallback full build
	ReasonSourceRemoved = "source_removed"  // artifact's sources vanished; output must be deleted
	ReasonConfigChanged = "config_changed"  // the global config identity moved
	ReasonNoChange      = "no_change"
	ReasonSubsetChanged = "subset_changed"
)

// Plan is the analyzer's output: which artifacts to render, which output
// files to delete, and why.
type Plan struct {
	// Rebuild holds the artifacts (by canonical output path) that must be
	// rendered this build.
	Rebuild sets.Set[string]

	// Deletions holds cached artifacts no longer produced by the current
	// site; their output files must be removed, not skipped.
	Deletions sets.Set[string]

	// Unchanged counts desired artifacts left out of the rebuild set.
	Unchanged int

	// Full marks a forced or fallback full rebuild.
	Full bool

	// Reason is a human readable explanation of the overall decision.
	Reason string

	// ArtifactReasons maps each selected artifact to its inclusion reason.
	ArtifactReasons map[string]string
}

// Analyzer derives rebuild plans. It carries no mutable state; one instance
// can serve every build.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer constructs an analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (a *Analyzer) WithLogger(logger *slog.Logger) *Analyzer {
	a.logger = logger
	return a
}

// Analyze computes the rebuild plan.
//
// desired is the full set of artifacts the current site would produce; graph
// holds the edge sets of the previous successful build. The rebuild set is
// the union of desired artifacts whose cached edges intersect the changed
// identities and desired artifacts the cache has never seen. Cached artifacts
// absent from desired become deletions.
//
// Cascade invalidation needs no special pass here: renderers record a
// synthetic edge from every artifact to each ancestor section identity, and
// term listings record edges to their specific term identity, so plain
// reverse reachability covers both. Section listings and the feed also record
// membership identities whose fingerprints move when pages appear or vanish,
// which is how additions reach artifacts that had no edge to the new page
// yet. An artifact with zero recorded edges is never selected unless full is
// set or the artifact itself is new.
func (a *Analyzer) Analyze(changes detect.Changes, graph *deps.Graph, desired sets.Set[string], full bool) Plan {
	plan := Plan{
		Rebuild:         sets.New[string](),
		Deletions:       sets.New[string](),
		ArtifactReasons: make(map[string]string),
	}

	if full {
		plan.Full = true
		plan.Reason = ReasonFullRebuild
		for artifact := range desired {
			plan.Rebuild.Add(artifact)
			plan.ArtifactReasons[artifact] = ReasonFullRebuild
		}
		a.collectDeletions(&plan, graph, desired)
		return plan
	}

	changed := changes.ChangedSet()
	impacted := graph.DependentsOf(changed)

	for artifact := range desired {
		switch {
		case !graph.Has(artifact):
			plan.Rebuild.Add(artifact)
			plan.ArtifactReasons[artifact] = ReasonNewArtifact
		case impacted.Has(artifact):
			plan.Rebuild.Add(artifact)
			plan.ArtifactReasons[artifact] = ReasonEdgeChanged
		default:
			plan.Unchanged++
		}
	}

	a.collectDeletions(&plan, graph, desired)

	switch {
	case plan.Rebuild.Len() == 0 && plan.Deletions.Len() == 0:
		plan.Reason = ReasonNoChange
	case changes.ConfigChanged:
		// Config changes are global by contract: every artifact with a
		// config edge landed in the rebuild set above.
		plan.Reason = ReasonConfigChanged
	default:
		plan.Reason = ReasonSubsetChanged
	}

	a.logger.Debug("Impact analysis complete",
		"rebuild", plan.Rebuild.Len(),
		"deletions", plan.Deletions.Len(),
		"unchanged", plan.Unchanged,
		"reason", plan.Reason)
	return plan
}

// collectDeletions marks cached artifacts the current site no longer
// produces. Their outputs are orphans and must be removed from the output
// tree and from the persisted cache.
func (a *Analyzer) collectDeletions(plan *Plan, graph *deps.Graph, desired sets.Set[string]) {
	for _, artifact := range graph.Artifacts() {
		if !desired.Has(artifact) {
			plan.Deletions.Add(artifact)
			plan.ArtifactReasons[artifact] = ReasonSourceRemoved
		}
	}
}
