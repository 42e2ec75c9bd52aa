package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

func TestRecorderCoalescesAndSorts(t *testing.T) {
	r := NewRecorder("posts/hello/index.html")
	r.Record(source.Template("base.html"))
	r.Record(source.Content("posts/hello.md"))
	r.Record(source.Template("base.html"))
	r.Record(source.ConfigIdentity)

	got := r.Finish()
	require.Len(t, got, 3)
	assert.Equal(t, source.ConfigIdentity, got[0])
	assert.Equal(t, source.Content("posts/hello.md"), got[1])
	assert.Equal(t, source.Template("base.html"), got[2])
}

func TestSetEdgesReplacesPreviousSet(t *testing.T) {
	g := NewGraph()
	g.SetEdges("a/index.html", []source.Identity{
		source.Content("a.md"),
		source.Template("old.html"),
	})
	g.SetEdges("a/index.html", []source.Identity{
		source.Content("a.md"),
		source.Template("new.html"),
	})

	edges := g.Edges("a/index.html")
	assert.True(t, edges.Has(source.Template("new.html")))
	assert.False(t, edges.Has(source.Template("old.html")), "edge sets are fully replaced, never merged")
}

// Mirrors the canonical scenario: A depends on f1.md and layout.tmpl, B on
// f2.md and layout.tmpl. A layout change must select exactly A and B, and an
// unrelated C must stay out.
func TestDependentsOfSharedTemplate(t *testing.T) {
	g := NewGraph()
	layout := source.Template("layout.tmpl")
	g.SetEdges("A", []source.Identity{source.Content("f1.md"), layout})
	g.SetEdges("B", []source.Identity{source.Content("f2.md"), layout})
	g.SetEdges("C", []source.Identity{source.Content("f3.md")})

	got := g.DependentsOf(sets.New(layout))
	assert.Equal(t, 2, got.Len())
	assert.True(t, got.Has("A"))
	assert.True(t, got.Has("B"))
	assert.False(t, got.Has("C"))
}

func TestDependentsOfEmptyChangeSet(t *testing.T) {
	g := NewGraph()
	g.SetEdges("A", []source.Identity{source.Content("f1.md")})
	assert.Equal(t, 0, g.DependentsOf(sets.New[source.Identity]()).Len())
}

func TestRemoveDropsArtifact(t *testing.T) {
	g := NewGraph()
	g.SetEdges("A", []source.Identity{source.Content("f1.md")})
	g.Remove("A")
	assert.False(t, g.Has("A"))
	assert.Nil(t, g.Edges("A"))
}

func TestCloneIsIndependent(t *testing.T) {
	g := NewGraph()
	g.SetEdges("A", []source.Identity{source.Content("f1.md")})
	c := g.Clone()
	c.SetEdges("A", []source.Identity{source.Content("other.md")})

	assert.True(t, g.Edges("A").Has(source.Content("f1.md")))
	assert.False(t, g.Edges("A").Has(source.Content("other.md")))
}
