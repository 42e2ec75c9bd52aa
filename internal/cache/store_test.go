package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/deps"
	"git.home.luguber.info/inful/sitegen/internal/source"
)

func sampleState(t *testing.T) *State {
	t.Helper()
	snap := source.Snapshot{}
	snap.Add(source.FingerprintBytes(source.Content("posts/a.md"), []byte("alpha"), time.Unix(100, 0)))
	snap.Add(source.FingerprintBytes(source.Template("base.html"), []byte("tmpl"), time.Unix(200, 0)))

	g := deps.NewGraph()
	g.SetEdges("posts/a/index.html", []source.Identity{
		source.Content("posts/a.md"),
		source.Template("base.html"),
		source.ConfigIdentity,
	})
	return FromBuild(snap, g, time.Unix(300, 0).UTC())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Save(sampleState(t)))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Version, loaded.CacheVersion)
	assert.Len(t, loaded.Fingerprints, 2)

	fp, ok := loaded.Fingerprints[source.Content("posts/a.md")]
	require.True(t, ok)
	assert.Equal(t, source.HashBytes([]byte("alpha")), fp.ContentHash)

	g := loaded.Graph()
	edges := g.Edges("posts/a/index.html")
	require.NotNil(t, edges)
	assert.True(t, edges.Has(source.Template("base.html")))
	assert.True(t, edges.Has(source.ConfigIdentity))
}

func TestSavedChecksumCoversStateBytesAsWritten(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(sampleState(t)))

	// The checksum must hold over the state bytes exactly as they appear in
	// the file; any re-encoding between Save and Load breaks every load.
	var env envelope
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, source.HashBytes(env.State), env.Checksum)
}

func TestLoadMissingFileReturnsEmptyState(t *testing.T) {
	store := NewStore(t.TempDir())
	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Fingerprints)
	assert.Empty(t, st.Edges)
}

func TestLoadTruncatedFileIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(sampleState(t)))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), data[:len(data)/2], 0600))

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoadChecksumMismatchIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(sampleState(t)))

	var env envelope
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	env.Checksum = source.HashBytes([]byte("tampered"))
	tampered, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), tampered, 0600))

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoadVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	st := sampleState(t)
	st.CacheVersion = Version + 1
	require.NoError(t, store.Save(st))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestLoadOrEmptyDegradesQuietly(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{garbage"), 0600))

	st, found := store.LoadOrEmpty()
	assert.False(t, found)
	assert.Empty(t, st.Fingerprints)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(sampleState(t)))

	_, err := os.Stat(filepath.Join(dir, cacheFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveMissingIsFine(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.NoError(t, store.Remove())
}
