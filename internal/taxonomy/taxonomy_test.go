package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/source"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Go":             "go",
		"Static Sites":   "static-sites",
		"C++ & Friends":  "c-friends",
		"Café Culture":   "cafe-culture",
		"  spaced  out ": "spaced-out",
		"älter":          "alter",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestRecordAndFingerprint(t *testing.T) {
	idx := NewIndex()
	idx.Record("tags", "Go", "posts/b.md")
	term := idx.Record("tags", "Go", "posts/a.md")

	assert.Equal(t, []string{"posts/a.md", "posts/b.md"}, term.Members)
	assert.Equal(t, source.Term("tags", "go"), term.Identity())

	before := term.Fingerprint().ContentHash
	idx.Record("tags", "Go", "posts/c.md")
	assert.NotEqual(t, before, term.Fingerprint().ContentHash, "membership change must change the fingerprint")
}

func TestMembershipFingerprintIsolatedPerTerm(t *testing.T) {
	idx := NewIndex()
	goTerm := idx.Record("tags", "go", "a.md")
	rustTerm := idx.Record("tags", "rust", "b.md")
	rustBefore := rustTerm.Fingerprint().ContentHash

	idx.Record("tags", "go", "c.md")
	assert.Equal(t, rustBefore, rustTerm.Fingerprint().ContentHash)
	assert.NotEqual(t, goTerm.Fingerprint().ContentHash, rustTerm.Fingerprint().ContentHash)
}

func TestTermsSorted(t *testing.T) {
	idx := NewIndex()
	idx.Record("tags", "zeta", "a.md")
	idx.Record("tags", "alpha", "a.md")
	idx.Record("categories", "misc", "a.md")

	terms := idx.Terms()
	require.Len(t, terms, 3)
	assert.Equal(t, "categories", terms[0].Taxonomy)
	assert.Equal(t, "alpha", terms[1].Slug)
	assert.Equal(t, "zeta", terms[2].Slug)
}

func TestLookup(t *testing.T) {
	idx := NewIndex()
	idx.Record("tags", "Static Sites", "a.md")
	got, ok := idx.Lookup("tags", "static sites")
	require.True(t, ok)
	assert.Equal(t, "static-sites", got.Slug)
}
