// Package watch drives rebuilds in serve mode: filesystem events are
// debounced into single build triggers, and an optional periodic job forces
// a full rebuild to catch anything event delivery missed.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Trigger describes one coalesced build request.
type Trigger struct {
	// Reason is "fs_change" or "periodic_full".
	Reason string
	// Force requests a full rebuild.
	Force bool
	// Events counts the filesystem events coalesced into this trigger.
	Events int
}

// TriggerFunc receives coalesced triggers. It runs on the watcher's
// goroutine; long builds block further triggers, and events keep
// accumulating into the next trigger meanwhile.
type TriggerFunc func(ctx context.Context, t Trigger)

// Options tune debouncing and the periodic full rebuild.
type Options struct {
	// QuietWindow is how long the filesystem must stay quiet before a
	// trigger fires.
	QuietWindow time.Duration
	// MaxDelay bounds how long a burst can postpone the trigger.
	MaxDelay time.Duration
	// FullRebuildInterval schedules periodic forced full builds; zero
	// disables them.
	FullRebuildInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.QuietWindow <= 0 {
		o.QuietWindow = 300 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 2 * time.Second
	}
}

// Watcher watches the site's source roots.
type Watcher struct {
	cfg     *config.Config
	opts    Options
	log     *slog.Logger
	trigger TriggerFunc
}

// New builds a watcher. The trigger is required.
func New(cfg *config.Config, opts Options, log *slog.Logger, trigger TriggerFunc) (*Watcher, error) {
	if trigger == nil {
		return nil, fmt.Errorf("trigger function is required")
	}
	opts.applyDefaults()
	return &Watcher{cfg: cfg, opts: opts, log: log, trigger: trigger}, nil
}

// Run watches until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	for _, root := range []string{w.cfg.ContentDir, w.cfg.LayoutDir, w.cfg.StaticDir} {
		if err := w.addRecursive(fsw, root); err != nil {
			return err
		}
	}

	var scheduler gocron.Scheduler
	if w.opts.FullRebuildInterval > 0 {
		scheduler, err = gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(w.opts.FullRebuildInterval),
			gocron.NewTask(func() {
				w.log.Info("periodic full rebuild")
				w.trigger(ctx, Trigger{Reason: "periodic_full", Force: true})
			}),
			gocron.WithName("periodic-full-rebuild"),
		)
		if err != nil {
			return fmt.Errorf("schedule periodic rebuild: %w", err)
		}
		scheduler.Start()
		defer func() { _ = scheduler.Shutdown() }()
	}

	return w.loop(ctx, fsw)
}

// loop debounces raw events: a quiet window after the last event, bounded by
// a max delay so sustained bursts cannot postpone builds forever.
func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) error {
	quiet := time.NewTimer(time.Hour)
	stopTimer(quiet)
	maxDelay := time.NewTimer(time.Hour)
	stopTimer(maxDelay)

	var quietC, maxC <-chan time.Time
	pending := 0

	fire := func() {
		stopTimer(quiet)
		stopTimer(maxDelay)
		quietC, maxC = nil, nil
		n := pending
		pending = 0
		w.trigger(ctx, Trigger{Reason: "fs_change", Events: n})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = fsw.Add(event.Name)
				}
			}
			w.log.Debug("source changed", logfields.Path(event.Name), slog.String("op", event.Op.String()))

			if pending == 0 {
				resetTimer(maxDelay, w.opts.MaxDelay)
				maxC = maxDelay.C
			}
			pending++
			resetTimer(quiet, w.opts.QuietWindow)
			quietC = quiet.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", logfields.Error(err))

		case <-quietC:
			fire()

		case <-maxC:
			fire()
		}
	}
}

// relevant filters events the build does not care about.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, "~") {
		return false
	}
	return true
}

// addRecursive watches a root and all its subdirectories. A missing root is
// skipped; it may come into existence later via its parent, which we do not
// chase.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, after time.Duration) {
	stopTimer(t)
	t.Reset(after)
}
