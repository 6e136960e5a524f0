package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterIncludeExclude(t *testing.T) {
	f, err := NewFilter([]string{"org.example.*", "core"}, []string{"*.deprecated"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		expect bool
	}{
		{"org.example.alpha", true},
		{"org.example.deprecated", false},
		{"core", true},
		{"corex", false},
		{"random", false},
	}
	for _, c := range cases {
		ok, _ := f.Include(c.name)
		assert.Equal(t, c.expect, ok, c.name)
	}
}

func TestFilterExcludePrecedence(t *testing.T) {
	f, err := NewFilter([]string{"*"}, []string{"secret-*"})
	require.NoError(t, err)
	ok, reason := f.Include("secret-config")
	assert.False(t, ok)
	assert.Equal(t, "excluded_by_pattern", reason)
}

func TestFilterDefaults(t *testing.T) {
	f, err := NewFilter(nil, []string{"skip-*", " "})
	require.NoError(t, err)

	ok, _ := f.Include("alpha")
	assert.True(t, ok)
	ok, reason := f.Include("skip-me")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	var none *Filter
	ok, _ = none.Include("anything")
	assert.True(t, ok)
}
