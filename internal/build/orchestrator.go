// Package build orchestrates a site build: load the cache, discover sources,
// detect changes, plan the minimal rebuild, render it in parallel, and
// persist the new cache.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/deps"
	"git.home.luguber.info/inful/sitegen/internal/detect"
	"git.home.luguber.info/inful/sitegen/internal/events"
	"git.home.luguber.info/inful/sitegen/internal/gitinfo"
	"git.home.luguber.info/inful/sitegen/internal/history"
	"git.home.luguber.info/inful/sitegen/internal/impact"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/postprocess"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// Options control a single build invocation.
type Options struct {
	// Force discards the incremental plan and rebuilds everything.
	Force bool
}

// Orchestrator runs builds. One orchestrator serves many builds; all
// per-build state lives in the buildState passed through the phases.
type Orchestrator struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *cache.Store
	analyzer *impact.Analyzer
	recorder metrics.Recorder
	events   events.Publisher
	history  *history.Store
}

// NewOrchestrator wires an orchestrator with noop observability; use the
// With* methods to attach real sinks.
func NewOrchestrator(cfg *config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		log:      log,
		store:    cache.NewStore(cfg.CacheDir).WithLogger(log),
		analyzer: impact.NewAnalyzer().WithLogger(log),
		recorder: metrics.NoopRecorder{},
		events:   events.NoopPublisher{},
	}
}

// WithRecorder attaches a metrics recorder.
func (o *Orchestrator) WithRecorder(r metrics.Recorder) *Orchestrator {
	o.recorder = r
	return o
}

// WithPublisher attaches a build event publisher.
func (o *Orchestrator) WithPublisher(p events.Publisher) *Orchestrator {
	o.events = p
	return o
}

// WithHistory attaches a build history store.
func (o *Orchestrator) WithHistory(h *history.Store) *Orchestrator {
	o.history = h
	return o
}

// CacheStore exposes the orchestrator's cache store (status/clean commands).
func (o *Orchestrator) CacheStore() *cache.Store { return o.store }

// buildState carries mutable state across phases of one build.
type buildState struct {
	opts   Options
	report *Report

	cached     *cache.State
	cacheFound bool

	site      *content.Site
	artifacts map[string]render.Artifact
	desired   sets.Set[string]

	changes detect.Changes
	full    bool
	plan    impact.Plan

	// rendered maps successfully rendered artifacts to their recorded
	// edge sets; merged into the graph only at persist time.
	rendered map[string][]source.Identity
}

// Build runs one build end to end. The returned report is always non-nil,
// even on failure.
func (o *Orchestrator) Build(ctx context.Context, opts Options) (*Report, error) {
	bs := &buildState{
		opts:     opts,
		report:   newReport(uuid.NewString()),
		rendered: make(map[string][]source.Identity),
	}
	o.log.Info("build starting", logfields.BuildID(bs.report.BuildID))

	err := o.runPhases(ctx, bs, []namedPhase{
		{"load_cache", o.phaseLoadCache},
		{"discover", o.phaseDiscover},
		{"detect", o.phaseDetect},
		{"plan", o.phasePlan},
		{"render", o.phaseRender},
		{"prune", o.phasePrune},
		{"verify_links", o.phaseVerifyLinks},
		{"persist", o.phasePersist},
	})

	bs.report.Duration = time.Since(bs.report.StartedAt)
	o.finish(ctx, bs, err)
	return bs.report, err
}

func (o *Orchestrator) finish(ctx context.Context, bs *buildState, err error) {
	report := bs.report
	switch {
	case err == nil:
		report.Outcome = OutcomeSuccess
	case isCanceled(err):
		report.Outcome = OutcomeCanceled
	default:
		report.Outcome = OutcomeFailed
	}

	o.recorder.ObserveBuildDuration(report.Duration)
	o.recorder.IncBuildOutcome(report.Outcome)
	o.recorder.SetArtifactCounts(len(report.Rebuilt), report.Unchanged, len(report.Deleted))

	o.log.Info("build finished",
		logfields.BuildID(report.BuildID),
		logfields.Mode(report.Mode),
		slog.String("outcome", report.Outcome),
		slog.Int("rebuilt", len(report.Rebuilt)),
		slog.Int("deleted", len(report.Deleted)),
		slog.Int("unchanged", report.Unchanged),
		logfields.DurationMS(float64(report.Duration.Milliseconds())))

	// Reporting sinks must survive cancellation of the build context.
	bg := context.WithoutCancel(ctx)
	if o.history != nil {
		rec := history.Record{
			BuildID:   report.BuildID,
			Mode:      report.Mode,
			StartedAt: report.StartedAt,
			Duration:  report.Duration,
			Rebuilt:   len(report.Rebuilt),
			Unchanged: report.Unchanged,
			Deleted:   len(report.Deleted),
			Outcome:   report.Outcome,
			Reason:    report.Reason,
		}
		if herr := o.history.Append(bg, rec); herr != nil {
			o.log.Warn("history append failed", logfields.Error(herr))
		}
	}
	event := events.BuildEvent{
		BuildID:   report.BuildID,
		Mode:      report.Mode,
		Outcome:   report.Outcome,
		Rebuilt:   len(report.Rebuilt),
		Deleted:   len(report.Deleted),
		Unchanged: report.Unchanged,
		Reason:    report.Reason,
		Duration:  report.Duration.String(),
	}
	if perr := o.events.Publish(bg, event); perr != nil {
		o.log.Warn("build event publish failed", logfields.Error(perr))
	}
}

func isCanceled(err error) bool {
	var pe *PhaseError
	return errors.As(err, &pe) && pe.Kind == PhaseErrorCanceled
}

func (o *Orchestrator) phaseLoadCache(_ context.Context, bs *buildState) error {
	st, err := o.store.Load()
	bs.cached = st
	switch {
	case err == nil && (len(st.Fingerprints) > 0 || len(st.Edges) > 0):
		bs.cacheFound = true
		o.recorder.IncCacheEvent("hit")
	case err == nil:
		o.recorder.IncCacheEvent("empty")
	case errors.Is(err, cache.ErrVersionMismatch):
		o.recorder.IncCacheEvent("version_mismatch")
		o.log.Warn("cache version mismatch, full rebuild", logfields.Error(err))
	default:
		o.recorder.IncCacheEvent("corrupt")
		o.log.Warn("cache unreadable, full rebuild", logfields.Error(err))
	}
	bs.report.CacheFound = bs.cacheFound
	return nil
}

func (o *Orchestrator) phaseDiscover(ctx context.Context, bs *buildState) error {
	disc := content.NewDiscoverer(o.cfg, o.log)
	if o.cfg.GitInfo {
		if resolver, err := gitinfo.Open(o.cfg.ContentDir, o.log); err != nil {
			o.log.Warn("git info unavailable", logfields.Error(err))
		} else {
			disc.WithLastmod(resolver)
		}
	}

	site, err := disc.Discover(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return newCanceledPhaseError("discover", err)
		}
		return newFatalPhaseError("discover", err)
	}
	bs.site = site

	planned := render.PlanArtifacts(site, o.cfg)
	bs.artifacts = make(map[string]render.Artifact, len(planned))
	for _, a := range planned {
		bs.artifacts[a.Path] = a
	}
	bs.desired = render.DesiredSet(planned)

	o.log.Debug("discovery complete",
		logfields.Count(len(site.Pages)),
		slog.Int("templates", len(site.Templates)),
		slog.Int("assets", len(site.Assets)),
		slog.Int("artifacts", len(planned)))
	return nil
}

func (o *Orchestrator) phaseDetect(_ context.Context, bs *buildState) error {
	bs.changes = detect.Detect(bs.cached.Snapshot(), bs.site.Snapshot)
	bs.full = bs.opts.Force || !bs.cacheFound
	if bs.full {
		bs.report.Mode = ModeFull
	}
	return nil
}

func (o *Orchestrator) phasePlan(_ context.Context, bs *buildState) error {
	bs.plan = o.analyzer.Analyze(bs.changes, bs.cached.Graph(), bs.desired, bs.full)
	bs.report.Reason = bs.plan.Reason
	bs.report.Unchanged = bs.plan.Unchanged
	return nil
}

type renderResult struct {
	path  string
	edges []source.Identity
	err   error
}

func (o *Orchestrator) phaseRender(ctx context.Context, bs *buildState) error {
	if bs.plan.Rebuild.Len() == 0 {
		return nil
	}

	renderer, err := render.NewRenderer(o.cfg, bs.site, o.log)
	if err != nil {
		return newFatalPhaseError("render", err)
	}

	paths := bs.plan.Rebuild.Values()
	sort.Strings(paths)

	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan render.Artifact)
	results := make(chan renderResult)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				results <- o.renderOne(ctx, renderer, a)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, p := range paths {
			a, ok := bs.artifacts[p]
			if !ok {
				continue
			}
			select {
			case jobs <- a:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			bs.report.ArtifactFailures[res.path] = res.err.Error()
			o.log.Error("artifact render failed",
				logfields.Artifact(res.path), logfields.Error(res.err))
			continue
		}
		bs.rendered[res.path] = res.edges
		bs.report.addRebuilt(res.path)
	}

	if ctx.Err() != nil {
		return newCanceledPhaseError("render", ctx.Err())
	}
	if n := len(bs.report.ArtifactFailures); n > 0 {
		return newWarnPhaseError("render", fmt.Errorf("%d of %d artifacts failed", n, len(paths)))
	}
	return nil
}

// renderOne renders a single artifact and writes its output. The recorder is
// scoped to this artifact; on failure it is dropped, so no partial edge set
// is ever committed.
func (o *Orchestrator) renderOne(ctx context.Context, renderer *render.Renderer, a render.Artifact) renderResult {
	rec := deps.NewRecorder(a.Path)
	data, err := renderer.Render(ctx, a, rec)
	if err != nil {
		return renderResult{path: a.Path, err: err}
	}

	out := filepath.Join(o.cfg.OutputDir, filepath.FromSlash(a.Path))
	if err := os.MkdirAll(filepath.Dir(out), 0750); err != nil {
		return renderResult{path: a.Path, err: fmt.Errorf("create output directory: %w", err)}
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		return renderResult{path: a.Path, err: fmt.Errorf("write output: %w", err)}
	}
	return renderResult{path: a.Path, edges: rec.Finish()}
}

// phasePrune removes output files for artifacts the site no longer produces.
func (o *Orchestrator) phasePrune(_ context.Context, bs *buildState) error {
	paths := bs.plan.Deletions.Values()
	sort.Strings(paths)
	for _, p := range paths {
		out := filepath.Join(o.cfg.OutputDir, filepath.FromSlash(p))
		if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
			return newWarnPhaseError("prune", fmt.Errorf("remove %s: %w", p, err))
		}
		removeEmptyParents(filepath.Dir(out), o.cfg.OutputDir)
		bs.report.Deleted = append(bs.report.Deleted, p)
		o.log.Info("removed stale artifact", logfields.Artifact(p))
	}
	return nil
}

// removeEmptyParents deletes now-empty directories up to (not including) root.
func removeEmptyParents(dir, root string) {
	for dir != root && len(dir) > len(root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (o *Orchestrator) phaseVerifyLinks(_ context.Context, bs *buildState) error {
	if len(bs.report.Rebuilt) == 0 {
		return nil
	}
	checker := postprocess.NewLinkChecker(o.cfg.OutputDir, o.cfg.BaseURL, o.log)
	broken, err := checker.Check(bs.report.Rebuilt)
	if err != nil {
		return newWarnPhaseError("verify_links", err)
	}
	bs.report.BrokenLinks = broken
	if len(broken) > 0 {
		for _, b := range broken {
			o.log.Warn("broken internal link",
				logfields.Artifact(b.Source), slog.String("target", b.Target))
		}
		return newWarnPhaseError("verify_links", fmt.Errorf("%d broken internal links", len(broken)))
	}
	return nil
}

// phasePersist writes the new cache state. Render failures block persistence
// entirely: a cache that claims success for artifacts that failed would make
// the next build skip them.
func (o *Orchestrator) phasePersist(_ context.Context, bs *buildState) error {
	if len(bs.report.ArtifactFailures) > 0 {
		return newWarnPhaseError("persist",
			fmt.Errorf("cache not persisted: %d artifacts failed to render", len(bs.report.ArtifactFailures)))
	}

	merged := bs.cached.Graph()
	for deletion := range bs.plan.Deletions {
		merged.Remove(deletion)
	}
	for path, edges := range bs.rendered {
		merged.SetEdges(path, edges)
	}

	state := cache.FromBuild(bs.site.Snapshot, merged, time.Now())
	if err := o.store.Save(state); err != nil {
		// A build that looks successful but could not persist would leave
		// future incremental decisions out of sync; fail loudly instead.
		return newFatalPhaseError("persist", err)
	}
	bs.report.CacheUpdated = true
	return nil
}
