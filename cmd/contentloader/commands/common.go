// Package commands implements the contentloader command line.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/contentloader/internal/config"
	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/observability"
	"git.home.luguber.info/inful/contentloader/internal/repository"
)

// Global is bound into every command's Run.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"contentloader.yaml" env:"CONTENTLOADER_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run     RunCmd     `cmd:"" help:"Run the content loader until interrupted"`
	Status  StatusCmd  `cmd:"" help:"Show unit content records and held locks"`
	History HistoryCmd `cmd:"" help:"Show the content event audit log"`
	Unlock  UnlockCmd  `cmd:"" help:"Force-release record locks"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
}

// AfterApply installs a logger before any command runs. Commands that load
// a configuration replace it with the configured one.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig loads the configuration file and applies its logging section.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = NewLogger(cfg.Logging, c.Verbose, os.Stderr)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

// NewLogger builds a logger for the logging configuration. verbose forces
// debug level.
func NewLogger(lc config.LoggingConfig, verbose bool, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.Level.SlogLevel()}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if lc.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(observability.NewContextHandler(h))
}

// openRepository opens the shared repository for a one-shot command.
func openRepository(cfg *config.Config, logger *slog.Logger) (*repository.SQLiteRepository, error) {
	repo, err := repository.NewSQLiteRepository(cfg.Repository.Path, repository.Options{
		InstanceID: cfg.Instance.ID,
		LockLease:  cfg.Repository.LockLease.Std(),
		Logger:     logger,
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRepository, "failed to open repository").
			WithContext("path", cfg.Repository.Path).Build()
	}
	return repo, nil
}

func (g *Global) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}
