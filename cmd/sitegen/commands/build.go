package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/events"
	"git.home.luguber.info/inful/sitegen/internal/history"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// BuildCmd runs one build and exits.
type BuildCmd struct {
	Full   bool   `short:"f" help:"Ignore the cache and rebuild every artifact"`
	Output string `short:"o" help:"Override the configured output directory"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.OutputDir = b.Output
	}

	orch, sinks, err := setupOrchestrator(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer sinks.Close(g.Logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := orch.Build(ctx, build.Options{Force: b.Full})
	if err != nil {
		return fmt.Errorf("build %s failed: %w", report.BuildID, err)
	}
	for path, msg := range report.ArtifactFailures {
		g.Logger.Error("artifact failed", logfields.Path(path), slog.String("reason", msg))
	}
	if len(report.ArtifactFailures) > 0 {
		return fmt.Errorf("build %s: %d artifacts failed to render", report.BuildID, len(report.ArtifactFailures))
	}
	return nil
}

// reportSinks holds the optional reporting backends wired into an
// orchestrator so the command can close them on exit.
type reportSinks struct {
	history *history.Store
	events  events.Publisher
}

func (s *reportSinks) Close(log *slog.Logger) {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			log.Warn("closing history store", logfields.Error(err))
		}
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			log.Warn("closing event publisher", logfields.Error(err))
		}
	}
}

// setupOrchestrator builds an orchestrator with the history store and event
// publisher the configuration enables.
func setupOrchestrator(cfg *config.Config, log *slog.Logger) (*build.Orchestrator, *reportSinks, error) {
	orch := build.NewOrchestrator(cfg, log)
	sinks := &reportSinks{}

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open history store: %w", err)
		}
		sinks.history = store
		orch.WithHistory(store)
	}

	if cfg.Events.Enabled {
		pub, err := events.NewNATSPublisher(cfg.Events, log)
		if err != nil {
			sinks.Close(log)
			return nil, nil, fmt.Errorf("connect event publisher: %w", err)
		}
		sinks.events = pub
		orch.WithPublisher(pub)
	}

	return orch, sinks, nil
}
