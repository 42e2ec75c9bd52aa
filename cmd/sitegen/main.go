package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitegen/cmd/sitegen/commands"
	"git.home.luguber.info/inful/sitegen/internal/version"
)

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("sitegen"),
		kong.Description("Incremental static site generator with dependency-tracked rebuilds."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)

	// AfterApply has configured the default logger by the time commands run.
	g := &commands.Global{Logger: slog.Default()}
	if err := ctx.Run(g, cli); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
