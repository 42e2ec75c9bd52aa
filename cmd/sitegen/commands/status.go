package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/history"
)

// StatusCmd prints the cache state and recent build history.
type StatusCmd struct {
	N int `short:"n" help:"Number of history entries to show" default:"10"`
}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}

	store := cache.NewStore(cfg.CacheDir).WithLogger(g.Logger)
	st, err := store.Load()
	switch {
	case errors.Is(err, cache.ErrVersionMismatch):
		fmt.Printf("cache: %s (version mismatch, next build will be full)\n", store.Path())
	case errors.Is(err, cache.ErrCorrupt):
		fmt.Printf("cache: %s (corrupt, next build will be full)\n", store.Path())
	case err != nil:
		return err
	case len(st.Fingerprints) == 0 && len(st.Edges) == 0:
		fmt.Printf("cache: %s (empty, next build will be full)\n", store.Path())
	default:
		fmt.Printf("cache: %s\n", store.Path())
		fmt.Printf("  last build: %s\n", st.BuildTimestamp.Format("2006-01-02 15:04:05"))
		fmt.Printf("  sources:    %d\n", len(st.Fingerprints))
		fmt.Printf("  artifacts:  %d\n", len(st.Edges))

		// Integrity check: every cached artifact should still exist in the
		// output tree.
		missing := 0
		for artifact := range st.Edges {
			out := filepath.Join(cfg.OutputDir, filepath.FromSlash(artifact))
			if _, err := os.Stat(out); err != nil {
				missing++
			}
		}
		if missing > 0 {
			fmt.Printf("  missing outputs: %d (next build, or a full build, will restore them)\n", missing)
		}
	}

	if !cfg.History.Enabled {
		return nil
	}

	hist, err := history.NewStore(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() { _ = hist.Close() }()

	records, err := hist.Recent(context.Background(), s.N)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("history: no builds recorded")
		return nil
	}

	fmt.Println("recent builds:")
	for _, r := range records {
		fmt.Printf("  %s  %-11s %-8s rebuilt=%d unchanged=%d deleted=%d in %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Mode, r.Outcome, r.Rebuilt, r.Unchanged, r.Deleted, r.Duration.Round(time.Millisecond))
	}
	return nil
}
