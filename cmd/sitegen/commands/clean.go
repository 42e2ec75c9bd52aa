package commands

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// CleanCmd removes the build cache, forcing the next build to be full.
type CleanCmd struct {
	Output bool `help:"Also remove the generated output directory"`
}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}

	store := cache.NewStore(cfg.CacheDir).WithLogger(g.Logger)
	if err := store.Remove(); err != nil {
		return fmt.Errorf("remove cache: %w", err)
	}
	g.Logger.Info("cache removed", logfields.Path(store.Path()))

	if cfg.History.Enabled {
		if err := os.Remove(cfg.History.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove history: %w", err)
		}
	}

	if c.Output {
		if err := os.RemoveAll(cfg.OutputDir); err != nil {
			return fmt.Errorf("remove output: %w", err)
		}
		g.Logger.Info("output removed", logfields.Path(cfg.OutputDir))
	}
	return nil
}
