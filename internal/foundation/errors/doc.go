// Package errors classifies failures of the content loader.
//
// Every error that crosses a package boundary is a *ClassifiedError: it
// carries a category (what failed), a severity (how bad it is) and a retry
// strategy (whether trying again can help). The loader uses the strategy to
// decide between deferring a unit and giving up, the CLI maps categories to
// exit codes and the HTTP API maps them to status codes.
//
//	err := errors.WrapError(cause, errors.CategoryRepository, "failed to save record").
//		WithContext("path", p).
//		Retryable().
//		Build()
package errors
