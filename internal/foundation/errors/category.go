package errors

// ErrorCategory says which part of the system failed.
type ErrorCategory string

const (
	CategoryConfig        ErrorCategory = "config"
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryAlreadyExists ErrorCategory = "already_exists"

	// Shared repository and the content stored in it.
	CategoryRepository ErrorCategory = "repository"
	CategoryLock       ErrorCategory = "lock"
	CategoryContent    ErrorCategory = "content"

	CategoryEventStore ErrorCategory = "eventstore"
	CategoryNetwork    ErrorCategory = "network"

	CategoryRuntime  ErrorCategory = "runtime"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity is the impact of an error on the running operation.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
	SeverityInfo    ErrorSeverity = "info"
)

// RetryStrategy says whether and when an operation may be tried again.
type RetryStrategy string

const (
	RetryNever   RetryStrategy = "never"
	RetryBackoff RetryStrategy = "backoff"
	// RetryImmediate suits contention that the next lifecycle event resolves.
	RetryImmediate RetryStrategy = "immediate"
	// RetryDeferred waits for a missing dependency, such as a content reader.
	RetryDeferred   RetryStrategy = "deferred"
	RetryUserAction RetryStrategy = "user"
)

// ErrorContext is structured detail attached to an error. It is treated as
// immutable once attached.
type ErrorContext map[string]any

func (c ErrorContext) with(key string, value any) ErrorContext {
	out := make(ErrorContext, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[key] = value
	return out
}

// String returns the value of key when it is a string.
func (c ErrorContext) String(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}
