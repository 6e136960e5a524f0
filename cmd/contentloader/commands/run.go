package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/contentloader/internal/daemon"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Watch bool   `help:"Watch the unit directory for changes (overrides units.watch)"`
	Addr  string `help:"Status and metrics listen address (overrides http.addr)"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if r.Watch {
		cfg.Units.Watch = true
	}
	if r.Addr != "" {
		cfg.HTTP.Addr = r.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(ctx, cfg, g.Logger)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
