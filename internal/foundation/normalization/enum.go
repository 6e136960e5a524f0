// Package normalization maps loosely written configuration values onto
// typed enums.
package normalization

import (
	"slices"
	"strings"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
)

// EnumNormalizer resolves case-insensitive, whitespace-tolerant input to a
// value of T. Several keys may map to one value to allow aliases.
type EnumNormalizer[T comparable] struct {
	name     string
	values   map[string]T
	fallback T
}

// NewEnumNormalizer creates a normalizer. Keys are matched after lowering
// and trimming; fallback is returned for unknown input by Normalize.
func NewEnumNormalizer[T comparable](name string, values map[string]T, fallback T) *EnumNormalizer[T] {
	m := make(map[string]T, len(values))
	for k, v := range values {
		m[clean(k)] = v
	}
	return &EnumNormalizer[T]{name: name, values: m, fallback: fallback}
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Normalize returns the value for raw, or the fallback.
func (e *EnumNormalizer[T]) Normalize(raw string) T {
	if v, ok := e.values[clean(raw)]; ok {
		return v
	}
	return e.fallback
}

// NormalizeWithValidation returns a validation error for unknown input
// instead of the fallback.
func (e *EnumNormalizer[T]) NormalizeWithValidation(raw string) (T, error) {
	if v, ok := e.values[clean(raw)]; ok {
		return v, nil
	}
	return e.fallback, errors.ValidationError("invalid "+e.name).
		WithContext("value", raw).
		WithContext("valid", strings.Join(e.ValidValues(), ", ")).
		Build()
}

// IsValid reports whether raw names a known value or alias.
func (e *EnumNormalizer[T]) IsValid(raw string) bool {
	_, ok := e.values[clean(raw)]
	return ok
}

// ValidValues returns the accepted keys, sorted.
func (e *EnumNormalizer[T]) ValidValues() []string {
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
