package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/loader"
	"git.home.luguber.info/inful/contentloader/internal/repository"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	Unit string `arg:"" optional:"" help:"Show only this unit"`
	JSON bool   `help:"Print JSON instead of a table"`
}

// StatusReport is the JSON form of the status output.
type StatusReport struct {
	RootPath string            `json:"root_path"`
	Records  []*loader.Record  `json:"records"`
	Locks    []repository.Lock `json:"locks"`
}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
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
	store := loader.NewStateStore(cfg.Repository.RootPath, cfg.Instance.ID)
	report := StatusReport{RootPath: store.RootPath(), Records: []*loader.Record{}}

	session, err := repo.Login(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = session.Logout() }()

	if s.Unit != "" {
		rec, err := store.Lookup(ctx, session, s.Unit)
		if err != nil {
			return err
		}
		if rec == nil {
			return errors.NotFoundError("no record for unit").WithContext("unit", s.Unit).Build()
		}
		report.Records = append(report.Records, rec)
	} else {
		recs, err := store.Records(ctx, session)
		if err != nil {
			return err
		}
		if recs != nil {
			report.Records = recs
		}
	}

	locks, err := repo.Locks(ctx)
	if err != nil {
		return err
	}
	for _, l := range locks {
		if l.Path == store.RootPath() || repository.IsDescendant(l.Path, store.RootPath()) {
			report.Locks = append(report.Locks, l)
		}
	}

	if s.JSON {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printStatus(g, report)
}

func printStatus(g *Global, report StatusReport) error {
	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tLOADED\tBY\tAT\tLOCKED\tPATHS")
	for _, r := range report.Records {
		by, at := r.UnloadedBy, r.UnloadTime
		if r.Loaded {
			by, at = r.LoadedBy, r.LoadTime
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%t\t%d\n",
			r.UnitName, r.Loaded, dash(by), formatTime(at), r.Locked, len(r.UninstallPaths))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(report.Locks) == 0 {
		return nil
	}
	fmt.Fprintln(g.out())
	tw = tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCK\tINSTANCE\tOWNER\tACQUIRED")
	for _, l := range report.Locks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			l.Path, l.InstanceID, dash(l.Owner), l.AcquiredAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
