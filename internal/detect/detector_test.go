package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/source"
)

func fp(id source.Identity, content string) source.Fingerprint {
	return source.FingerprintBytes(id, []byte(content), time.Unix(0, 0))
}

func TestDetectClassifications(t *testing.T) {
	a := source.Content("a.md")
	b := source.Content("b.md")
	c := source.Content("c.md")
	d := source.Content("d.md")

	cached := source.Snapshot{}
	cached.Add(fp(a, "old"))
	cached.Add(fp(b, "same"))
	cached.Add(fp(c, "gone"))

	current := source.Snapshot{}
	current.Add(fp(a, "new"))  // modified
	current.Add(fp(b, "same")) // unchanged
	current.Add(fp(d, "born")) // added

	got := Detect(cached, current)

	assert.Equal(t, []source.Identity{d}, got.Added)
	assert.Equal(t, []source.Identity{a}, got.Modified)
	assert.Equal(t, []source.Identity{c}, got.Removed)
	assert.Equal(t, 1, got.Unchanged)
	assert.False(t, got.ConfigChanged)

	changed := got.ChangedSet()
	assert.Equal(t, 3, changed.Len())
	assert.True(t, changed.Has(a))
	assert.True(t, changed.Has(c))
	assert.True(t, changed.Has(d))
}

func TestDetectNothingChanged(t *testing.T) {
	a := source.Content("a.md")
	cached := source.Snapshot{}
	cached.Add(fp(a, "x"))
	current := source.Snapshot{}
	current.Add(fp(a, "x"))

	got := Detect(cached, current)
	assert.False(t, got.Any())
	assert.Equal(t, 1, got.Unchanged)
}

// Identical mtime with different content must still classify as modified:
// only the content hash decides.
func TestDetectHashBeatsMTime(t *testing.T) {
	a := source.Content("a.md")
	cached := source.Snapshot{}
	cached.Add(fp(a, "one"))
	current := source.Snapshot{}
	current.Add(fp(a, "two"))

	got := Detect(cached, current)
	require.Len(t, got.Modified, 1)
	assert.Equal(t, ChangeModified, got.Reasons[a])
}

func TestDetectConfigChangeIsGlobal(t *testing.T) {
	cached := source.Snapshot{}
	cached.Add(fp(source.ConfigIdentity, "title: old"))
	current := source.Snapshot{}
	current.Add(fp(source.ConfigIdentity, "title: new"))

	got := Detect(cached, current)
	assert.True(t, got.ConfigChanged)
	assert.Equal(t, []source.Identity{source.ConfigIdentity}, got.Modified)
}

func TestDetectFreshConfigCountsAsChanged(t *testing.T) {
	current := source.Snapshot{}
	current.Add(fp(source.ConfigIdentity, "title: x"))

	got := Detect(source.Snapshot{}, current)
	assert.True(t, got.ConfigChanged)
}
