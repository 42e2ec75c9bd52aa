package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObservePhaseDuration("render", time.Second)
	r.ObserveBuildDuration(time.Second)
	r.IncPhaseResult("render", ResultSuccess)
	r.IncBuildOutcome("success")
	r.SetArtifactCounts(1, 2, 3)
	r.IncCacheEvent("hit")
}

func TestPrometheusRecorderRegistersAndCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObservePhaseDuration("render", 250*time.Millisecond)
	r.ObserveBuildDuration(time.Second)
	r.IncPhaseResult("render", ResultSuccess)
	r.IncBuildOutcome("success")
	r.SetArtifactCounts(5, 10, 1)
	r.IncCacheEvent("corrupt")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["sitegen_phase_duration_seconds"])
	assert.True(t, names["sitegen_build_duration_seconds"])
	assert.True(t, names["sitegen_phase_results_total"])
	assert.True(t, names["sitegen_build_outcomes_total"])
	assert.True(t, names["sitegen_build_artifacts"])
	assert.True(t, names["sitegen_cache_events_total"])
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.ObservePhaseDuration("render", time.Second)
	r.IncBuildOutcome("failed")
	r.SetArtifactCounts(0, 0, 0)
	r.IncCacheEvent("hit")
}
