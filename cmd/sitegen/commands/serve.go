package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/server"
	"git.home.luguber.info/inful/sitegen/internal/watch"
)

// ServeCmd builds the site, serves it with live reload and rebuilds
// incrementally as sources change.
type ServeCmd struct {
	Addr                string        `short:"a" help:"Address to serve the site on" default:":1313"`
	QuietWindow         time.Duration `help:"How long the filesystem must stay quiet before a rebuild" default:"300ms"`
	MaxDelay            time.Duration `help:"Upper bound on how long a change burst can delay a rebuild" default:"2s"`
	FullRebuildEvery    time.Duration `help:"Force a periodic full rebuild (0 disables)" default:"0"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}

	orch, sinks, err := setupOrchestrator(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer sinks.Close(g.Logger)

	srv := server.New(cfg, s.Addr, g.Logger)
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		orch.WithRecorder(metrics.NewPrometheusRecorder(reg))
		srv.WithMetrics(reg)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Serve whatever renders even when the first build has problems; the
	// next source change retries.
	if _, err := orch.Build(ctx, build.Options{}); err != nil {
		g.Logger.Error("initial build failed", logfields.Error(err))
	}

	trigger := func(ctx context.Context, t watch.Trigger) {
		report, err := orch.Build(ctx, build.Options{Force: t.Force})
		if err != nil {
			g.Logger.Error("rebuild failed", logfields.Error(err))
			return
		}
		if len(report.Rebuilt) > 0 || len(report.Deleted) > 0 {
			srv.NotifyReload()
		}
	}

	watcher, err := watch.New(cfg, watch.Options{
		QuietWindow:         s.QuietWindow,
		MaxDelay:            s.MaxDelay,
		FullRebuildInterval: s.FullRebuildEvery,
	}, g.Logger, trigger)
	if err != nil {
		return err
	}

	go func() {
		if err := watcher.Run(ctx); err != nil {
			g.Logger.Error("watcher stopped", logfields.Error(err))
			cancel()
		}
	}()

	return srv.Run(ctx)
}
