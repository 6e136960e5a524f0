package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

var exitCodes = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryNotFound:   4,
	CategoryConfig:     7,
	CategoryNetwork:    8,
	CategoryLock:       9,
	CategoryInternal:   10,
	CategoryRepository: 11,
	CategoryContent:    11,
	CategoryEventStore: 11,
	CategoryRuntime:    12,
	CategoryDaemon:     12,
}

// CLIErrorAdapter reports command errors on stderr and exits with a code
// derived from the error category.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	stderr  io.Writer
	exit    func(int)
}

// NewCLIErrorAdapter creates an adapter writing to os.Stderr.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger, stderr: os.Stderr, exit: os.Exit}
}

// ExitCodeFor returns 0 for nil, 1 for unclassified errors.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if c, ok := AsClassified(err); ok {
		if code, known := exitCodes[c.category]; known {
			return code
		}
	}
	return 1
}

// FormatError renders err for a user. Categories a user can act on show
// their message; everything else hides detail unless verbose.
func (a *CLIErrorAdapter) FormatError(err error) string {
	c, ok := AsClassified(err)
	switch {
	case err == nil:
		return ""
	case !ok:
		return fmt.Sprintf("Error: %v", err)
	case a.verbose:
		return c.Error()
	}
	switch c.category {
	case CategoryConfig, CategoryValidation, CategoryNotFound, CategoryLock:
		return "Error: " + c.message
	default:
		return "Internal error occurred (use -v for details)"
	}
}

// HandleError prints err and exits. It does nothing for nil.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	c, ok := AsClassified(err)
	switch {
	case !ok:
		a.logger.Error("Unclassified error", "error", err)
	case a.verbose || c.severity == SeverityFatal:
		attrs := []slog.Attr{slog.String("category", string(c.category))}
		if c.CanRetry() {
			attrs = append(attrs, slog.Bool("retryable", true))
		}
		a.logger.LogAttrs(context.Background(), levelFor(c.severity), c.message, attrs...)
	}
	fmt.Fprintln(a.stderr, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

func levelFor(s ErrorSeverity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
