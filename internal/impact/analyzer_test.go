package impact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/sitegen/internal/deps"
	"git.home.luguber.info/inful/sitegen/internal/detect"
	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

func fp(id source.Identity, content string) source.Fingerprint {
	return source.FingerprintBytes(id, []byte(content), time.Unix(0, 0))
}

func changesFor(cached, current source.Snapshot) detect.Changes {
	return detect.Detect(cached, current)
}

// A and B share layout.tmpl, C does not. Changing the
// layout must select exactly A and B.
func TestTemplateChangeSelectsExactlyItsDependents(t *testing.T) {
	layout := source.Template("layout.tmpl")
	g := deps.NewGraph()
	g.SetEdges("A", []source.Identity{source.Content("f1.md"), layout})
	g.SetEdges("B", []source.Identity{source.Content("f2.md"), layout})
	g.SetEdges("C", []source.Identity{source.Content("f3.md")})

	cached := source.Snapshot{}
	cached.Add(fp(source.Content("f1.md"), "1"))
	cached.Add(fp(source.Content("f2.md"), "2"))
	cached.Add(fp(source.Content("f3.md"), "3"))
	cached.Add(fp(layout, "old layout"))

	current := cached.Clone()
	current.Add(fp(layout, "new layout"))

	plan := NewAnalyzer().Analyze(changesFor(cached, current), g, sets.New("A", "B", "C"), false)

	assert.Equal(t, 2, plan.Rebuild.Len())
	assert.True(t, plan.Rebuild.Has("A"))
	assert.True(t, plan.Rebuild.Has("B"))
	assert.False(t, plan.Rebuild.Has("C"))
	assert.Equal(t, 1, plan.Unchanged)
	assert.Equal(t, 0, plan.Deletions.Len())
	assert.Equal(t, ReasonEdgeChanged, plan.ArtifactReasons["A"])
}

// Adding a term association must invalidate only that term's listing. The
// term's membership fingerprint changes; other terms' fingerprints do not.
func TestTaxonomyTermIsolation(t *testing.T) {
	goTerm := source.Term("tags", "go")
	rustTerm := source.Term("tags", "rust")

	g := deps.NewGraph()
	g.SetEdges("tags/go/index.html", []source.Identity{goTerm})
	g.SetEdges("tags/rust/index.html", []source.Identity{rustTerm})

	cached := source.Snapshot{}
	cached.Add(source.Fingerprint{Identity: goTerm, ContentHash: source.HashStrings([]string{"a.md"})})
	cached.Add(source.Fingerprint{Identity: rustTerm, ContentHash: source.HashStrings([]string{"b.md"})})

	current := cached.Clone()
	current.Add(source.Fingerprint{Identity: goTerm, ContentHash: source.HashStrings([]string{"a.md", "c.md"})})

	desired := sets.New("tags/go/index.html", "tags/rust/index.html")
	plan := NewAnalyzer().Analyze(changesFor(cached, current), g, desired, false)

	assert.True(t, plan.Rebuild.Has("tags/go/index.html"))
	assert.False(t, plan.Rebuild.Has("tags/rust/index.html"))
}

// Cascade metadata changes at a section node reach every descendant through
// the recorded ancestor-section edges, and never touch siblings.
func TestCascadePropagation(t *testing.T) {
	docsSection := source.Section("docs")
	blogSection := source.Section("blog")

	g := deps.NewGraph()
	g.SetEdges("docs/a/index.html", []source.Identity{source.Content("docs/a.md"), docsSection})
	g.SetEdges("docs/deep/b/index.html", []source.Identity{source.Content("docs/deep/b.md"), docsSection, source.Section("docs/deep")})
	g.SetEdges("blog/c/index.html", []source.Identity{source.Content("blog/c.md"), blogSection})

	cached := source.Snapshot{}
	cached.Add(source.Fingerprint{Identity: docsSection, ContentHash: "cascade-v1"})
	cached.Add(source.Fingerprint{Identity: source.Section("docs/deep"), ContentHash: "none"})
	cached.Add(source.Fingerprint{Identity: blogSection, ContentHash: "cascade-b"})
	cached.Add(fp(source.Content("docs/a.md"), "a"))
	cached.Add(fp(source.Content("docs/deep/b.md"), "b"))
	cached.Add(fp(source.Content("blog/c.md"), "c"))

	current := cached.Clone()
	current.Add(source.Fingerprint{Identity: docsSection, ContentHash: "cascade-v2"})

	desired := sets.New("docs/a/index.html", "docs/deep/b/index.html", "blog/c/index.html")
	plan := NewAnalyzer().Analyze(changesFor(cached, current), g, desired, false)

	assert.True(t, plan.Rebuild.Has("docs/a/index.html"))
	assert.True(t, plan.Rebuild.Has("docs/deep/b/index.html"))
	assert.False(t, plan.Rebuild.Has("blog/c/index.html"))
}

func TestRemovedSourceYieldsDeletion(t *testing.T) {
	g := deps.NewGraph()
	g.SetEdges("gone/index.html", []source.Identity{source.Content("gone.md")})
	g.SetEdges("kept/index.html", []source.Identity{source.Content("kept.md")})

	cached := source.Snapshot{}
	cached.Add(fp(source.Content("gone.md"), "g"))
	cached.Add(fp(source.Content("kept.md"), "k"))

	current := source.Snapshot{}
	current.Add(fp(source.Content("kept.md"), "k"))

	plan := NewAnalyzer().Analyze(changesFor(cached, current), g, sets.New("kept/index.html"), false)

	assert.True(t, plan.Deletions.Has("gone/index.html"))
	assert.False(t, plan.Rebuild.Has("gone/index.html"))
	assert.Equal(t, ReasonSourceRemoved, plan.ArtifactReasons["gone/index.html"])
	assert.Equal(t, 1, plan.Unchanged)
}

func TestNewArtifactIsAlwaysBuilt(t *testing.T) {
	g := deps.NewGraph()
	cached := source.Snapshot{}
	current := source.Snapshot{}
	current.Add(fp(source.Content("new.md"), "n"))

	plan := NewAnalyzer().Analyze(changesFor(cached, current), g, sets.New("new/index.html"), false)

	assert.True(t, plan.Rebuild.Has("new/index.html"))
	assert.Equal(t, ReasonNewArtifact, plan.ArtifactReasons["new/index.html"])
}

func TestFullModeRebuildsEverything(t *testing.T) {
	g := deps.NewGraph()
	g.SetEdges("a/index.html", []source.Identity{source.Content("a.md")})
	g.SetEdges("stale/index.html", []source.Identity{source.Content("stale.md")})

	plan := NewAnalyzer().Analyze(detect.Changes{}, g, sets.New("a/index.html", "b/index.html"), true)

	assert.True(t, plan.Full)
	assert.True(t, plan.Rebuild.Has("a/index.html"))
	assert.True(t, plan.Rebuild.Has("b/index.html"))
	assert.True(t, plan.Deletions.Has("stale/index.html"))
}

// Second run with no edits: empty rebuild set, empty deletions.
func TestIdempotentSecondRun(t *testing.T) {
	g := deps.NewGraph()
	g.SetEdges("a/index.html", []source.Identity{source.Content("a.md"), source.ConfigIdentity})

	cached := source.Snapshot{}
	cached.Add(fp(source.Content("a.md"), "a"))
	cached.Add(fp(source.ConfigIdentity, "cfg"))

	plan := NewAnalyzer().Analyze(changesFor(cached, cached.Clone()), g, sets.New("a/index.html"), false)

	assert.Equal(t, 0, plan.Rebuild.Len())
	assert.Equal(t, 0, plan.Deletions.Len())
	assert.Equal(t, 1, plan.Unchanged)
	assert.Equal(t, "no_change", plan.Reason)
}

// A moved config identity is surfaced as the plan-level reason, so reports
// explain global invalidation instead of a generic subset change.
func TestConfigChangeIsPlanReason(t *testing.T) {
	g := deps.NewGraph()
	g.SetEdges("a/index.html", []source.Identity{source.Content("a.md"), source.ConfigIdentity})
	g.SetEdges("asset.css", []source.Identity{source.Asset("asset.css")})

	cached := source.Snapshot{}
	cached.Add(fp(source.Content("a.md"), "a"))
	cached.Add(fp(source.Asset("asset.css"), "css"))
	cached.Add(fp(source.ConfigIdentity, "cfg-v1"))

	current := cached.Clone()
	current.Add(fp(source.ConfigIdentity, "cfg-v2"))

	changes := changesFor(cached, current)
	assert.True(t, changes.ConfigChanged)

	desired := sets.New("a/index.html", "asset.css")
	plan := NewAnalyzer().Analyze(changes, g, desired, false)

	assert.Equal(t, ReasonConfigChanged, plan.Reason)
	assert.True(t, plan.Rebuild.Has("a/index.html"))
	assert.False(t, plan.Rebuild.Has("asset.css"), "artifacts without a config edge stay cached")
}

// Zero-edge artifacts are assumed stable: only a full rebuild selects them.
func TestZeroEdgeArtifactIsStable(t *testing.T) {
	g := deps.NewGraph()
	g.SetEdges("static/index.html", nil)

	cached := source.Snapshot{}
	cached.Add(fp(source.Content("other.md"), "x"))
	current := cached.Clone()
	current.Add(fp(source.Content("other.md"), "y"))

	desired := sets.New("static/index.html")
	plan := NewAnalyzer().Analyze(changesFor(cached, current), g, desired, false)
	assert.False(t, plan.Rebuild.Has("static/index.html"))

	full := NewAnalyzer().Analyze(changesFor(cached, current), g, desired, true)
	assert.True(t, full.Rebuild.Has("static/index.html"))
}
