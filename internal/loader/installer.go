package loader

import (
	"context"

	"git.home.luguber.info/inful/contentloader/internal/contentreader"
	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/repository"
	"git.home.luguber.info/inful/contentloader/internal/unit"
)

// ErrReaderUnavailable is returned by an Installer when a unit ships content
// that no registered reader can parse yet. The unit is deferred, not failed.
var ErrReaderUnavailable = errors.ContentError("content reader unavailable").Deferred().Build()

// InstallResult describes a successful installation.
type InstallResult struct {
	// CreatedPaths lists the repository paths created, in creation order.
	CreatedPaths []string
}

// Installer moves a unit's content in and out of the repository. Both
// operations stage changes in session and save them.
type Installer interface {
	InstallContent(ctx context.Context, session repository.Session, u *unit.Unit) (*InstallResult, error)
	RemoveContent(ctx context.Context, session repository.Session, u *unit.Unit, paths []string) error
}

// Runtime is the view of the unit runtime the loader needs.
type Runtime interface {
	Units() []*unit.Unit
	Lookup(name string) (*unit.Unit, bool)
	AddListener(l unit.Listener)
	RemoveListener(l unit.Listener)
}

// ReaderRegistry is the view of the content reader registry the loader
// needs.
type ReaderRegistry interface {
	SetListener(l contentreader.Listener)
	RemoveListener()
}
