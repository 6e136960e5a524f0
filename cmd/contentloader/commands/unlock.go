package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/loader"
)

// UnlockCmd implements the 'unlock' command. It is meant for recovering
// from an instance that died while holding record locks.
type UnlockCmd struct {
	Unit     string `arg:"" optional:"" help:"Unit whose record lock is released"`
	Instance string `help:"Release every lock held by this instance instead"`
}

func (u *UnlockCmd) Run(g *Global, root *CLI) error {
	if (u.Unit == "") == (u.Instance == "") {
		return errors.ValidationError("give either a unit or --instance").Build()
	}
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	repo, err := openRepository(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	ctx := context.Background()
	if u.Instance != "" {
		n, err := repo.ReleaseInstanceLocks(ctx, u.Instance)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(g.out(), "released %d lock(s) held by %s\n", n, u.Instance)
		return err
	}

	p := loader.NewStateStore(cfg.Repository.RootPath, cfg.Instance.ID).RecordPath(u.Unit)
	released, err := repo.ForceUnlock(ctx, p)
	if err != nil {
		return err
	}
	if !released {
		return errors.NotFoundError("record is not locked").WithContext("unit", u.Unit).Build()
	}
	_, err = fmt.Fprintf(g.out(), "released lock on %s\n", p)
	return err
}
