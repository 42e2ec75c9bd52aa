package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "title: My Site\n"))
	require.NoError(t, err)

	assert.Equal(t, "My Site", cfg.Title)
	assert.Equal(t, "content", cfg.ContentDir)
	assert.Equal(t, "public", cfg.OutputDir)
	assert.Equal(t, ".sitegen", cfg.CacheDir)
	assert.Equal(t, []string{"tags"}, cfg.Taxonomies)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, ".sitegen/history.db", cfg.History.Path)
}

func TestLoadRejectsContentEqualsOutput(t *testing.T) {
	_, err := Load(writeConfig(t, "content_dir: x\noutput_dir: x\n"))
	assert.Error(t, err)
}

func TestLoadEventsRequireURL(t *testing.T) {
	_, err := Load(writeConfig(t, "events:\n  enabled: true\n"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SITEGEN_OUTPUT_DIR", "out-override")
	t.Setenv("SITEGEN_CACHE_DIR", "cache-override")

	cfg, err := Load(writeConfig(t, "title: T\n"))
	require.NoError(t, err)
	assert.Equal(t, "out-override", cfg.OutputDir)
	assert.Equal(t, "cache-override", cfg.CacheDir)
	assert.Equal(t, "cache-override/history.db", cfg.History.Path)
}

func TestFingerprintStableAcrossOperationalChanges(t *testing.T) {
	a := Default()
	b := Default()
	b.Workers = a.Workers + 4
	b.Metrics.Enabled = true
	b.CacheDir = "elsewhere"

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa.ContentHash, fb.ContentHash, "operational settings must not invalidate the cache")
}

func TestFingerprintChangesWithRenderSettings(t *testing.T) {
	a := Default()
	b := Default()
	b.Title = "Other"

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa.ContentHash, fb.ContentHash)
}
