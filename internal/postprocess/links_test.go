package postprocess

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOutput(t *testing.T, dir, rel, body string) {
	t.Helper()
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0750))
	require.NoError(t, os.WriteFile(abs, []byte(body), 0600))
}

func TestCheckFindsBrokenInternalLinks(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "index.html", `<a href="/posts/a/">ok</a> <a href="/missing/">bad</a>`)
	writeOutput(t, dir, "posts/a/index.html", `<a href="../../">up ok</a>`)

	checker := NewLinkChecker(dir, "/", slog.New(slog.DiscardHandler))
	broken, err := checker.Check([]string{"index.html", "posts/a/index.html"})
	require.NoError(t, err)

	require.Len(t, broken, 1)
	assert.Equal(t, "index.html", broken[0].Source)
	assert.Equal(t, "/missing/", broken[0].Target)
}

func TestCheckSkipsExternalAndFragmentLinks(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "index.html",
		`<a href="https://example.com/x">ext</a> <a href="#section">frag</a> <a href="mailto:a@b.c">mail</a>`)

	checker := NewLinkChecker(dir, "/", slog.New(slog.DiscardHandler))
	broken, err := checker.Check([]string{"index.html"})
	require.NoError(t, err)
	assert.Empty(t, broken)
}

func TestCheckStripsBaseURLPrefix(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "index.html", `<a href="/blog/posts/a/">ok</a>`)
	writeOutput(t, dir, "posts/a/index.html", "x")

	checker := NewLinkChecker(dir, "/blog/", slog.New(slog.DiscardHandler))
	broken, err := checker.Check([]string{"index.html"})
	require.NoError(t, err)
	assert.Empty(t, broken)
}

func TestCheckResolvesAssets(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "index.html", `<img src="/css/site.css"> <img src="/img/gone.png">`)
	writeOutput(t, dir, "css/site.css", "body{}")

	checker := NewLinkChecker(dir, "/", slog.New(slog.DiscardHandler))
	broken, err := checker.Check([]string{"index.html"})
	require.NoError(t, err)
	require.Len(t, broken, 1)
	assert.Equal(t, "/img/gone.png", broken[0].Target)
}
