// Package metrics defines observability hooks for builds. The Noop recorder
// is the default; the Prometheus recorder is wired in when metrics are
// enabled in configuration.
package metrics

import "time"

// ResultLabel enumerates phase result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines the hooks the build orchestrator calls. Implementations
// must tolerate nil receivers so injection stays optional.
type Recorder interface {
	ObservePhaseDuration(phase string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncPhaseResult(phase string, result ResultLabel)
	IncBuildOutcome(outcome string) // outcome: success|failed|canceled
	SetArtifactCounts(rebuilt, unchanged, deleted int)
	IncCacheEvent(event string) // event: hit|empty|corrupt|version_mismatch
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncPhaseResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) SetArtifactCounts(int, int, int)            {}
func (NoopRecorder) IncCacheEvent(string)                       {}
