package build

import (
	"sort"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/postprocess"
)

// Outcome labels for a finished build.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Mode labels.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Report summarizes one build: what was rebuilt, what was skipped, why, and
// how long each phase took.
type Report struct {
	BuildID   string
	Mode      string
	StartedAt time.Time
	Duration  time.Duration

	// Rebuilt and Deleted hold artifact paths, sorted.
	Rebuilt   []string
	Deleted   []string
	Unchanged int

	// Reason is the impact analyzer's overall decision.
	Reason string

	Outcome string

	// CacheFound reports whether a prior valid cache was loaded;
	// CacheUpdated whether this build persisted a new one.
	CacheFound   bool
	CacheUpdated bool

	PhaseTimings    map[string]time.Duration
	PhaseErrorKinds map[string]string

	// ArtifactFailures maps artifact paths to their render error text.
	ArtifactFailures map[string]string

	BrokenLinks []postprocess.BrokenLink

	Warnings []error
	Errors   []error
}

func newReport(buildID string) *Report {
	return &Report{
		BuildID:          buildID,
		StartedAt:        time.Now(),
		Mode:             ModeIncremental,
		Outcome:          OutcomeSuccess,
		PhaseTimings:     make(map[string]time.Duration),
		PhaseErrorKinds:  make(map[string]string),
		ArtifactFailures: make(map[string]string),
	}
}

func (r *Report) addRebuilt(path string) {
	r.Rebuilt = append(r.Rebuilt, path)
	sort.Strings(r.Rebuilt)
}

// Failed reports whether the build ended in a non-success outcome.
func (r *Report) Failed() bool { return r.Outcome != OutcomeSuccess }
