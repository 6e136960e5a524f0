package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/contentloader/internal/eventstore"
	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Unit  string `arg:"" optional:"" help:"Show the full history of this unit"`
	Limit int    `short:"n" help:"Number of recent events to show" default:"20"`
	JSON  bool   `help:"Print JSON instead of a table"`
}

// HistoryEntry is one audit event in command output.
type HistoryEntry struct {
	At         time.Time `json:"at"`
	Unit       string    `json:"unit"`
	Type       string    `json:"type"`
	InstanceID string    `json:"instance_id,omitempty"`
	Paths      []string  `json:"paths,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Audit.Path); err != nil {
		return errors.NotFoundError("audit log not found").
			WithContext("path", cfg.Audit.Path).Build()
	}
	store, err := eventstore.NewSQLiteStore(cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	var events []eventstore.Event
	if h.Unit != "" {
		events, err = store.GetByUnit(ctx, h.Unit)
	} else {
		events, err = store.Recent(ctx, h.Limit)
	}
	if err != nil {
		return err
	}

	entries := make([]HistoryEntry, 0, len(events))
	for _, e := range events {
		entry := HistoryEntry{At: e.Timestamp(), Unit: e.Unit(), Type: e.Type()}
		if p, err := eventstore.DecodePayload(e); err == nil {
			entry.InstanceID, entry.Paths, entry.Error = p.InstanceID, p.Paths, p.Error
		}
		entries = append(entries, entry)
	}

	if h.JSON {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tUNIT\tEVENT\tINSTANCE\tDETAIL")
	for _, e := range entries {
		detail := e.Error
		if detail == "" && len(e.Paths) > 0 {
			detail = strings.Join(e.Paths, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.At.Format(time.RFC3339), e.Unit, e.Type, dash(e.InstanceID), dash(detail))
	}
	return tw.Flush()
}
