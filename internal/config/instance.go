package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
)

// InstanceIDFile holds the generated instance id below the data directory.
const InstanceIDFile = "instance-id"

// ResolveInstanceID returns the configured instance id, or the one
// persisted in the data directory, generating and persisting a new one on
// first use. The id stays stable across restarts.
func (c *Config) ResolveInstanceID() (string, error) {
	if c.Instance.ID != "" {
		return c.Instance.ID, nil
	}
	p := filepath.Join(c.Instance.DataDir, InstanceIDFile)
	data, err := os.ReadFile(filepath.Clean(p))
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			c.Instance.ID = id
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", errors.WrapError(err, errors.CategoryConfig, "failed to read instance id").
			WithContext("path", p).Build()
	}

	id := uuid.NewString()
	if err := os.MkdirAll(c.Instance.DataDir, 0o750); err != nil {
		return "", errors.WrapError(err, errors.CategoryConfig, "failed to create data directory").
			WithContext("path", c.Instance.DataDir).Build()
	}
	if err := os.WriteFile(p, []byte(id+"\n"), 0o600); err != nil {
		return "", errors.WrapError(err, errors.CategoryConfig, "failed to persist instance id").
			WithContext("path", p).Build()
	}
	c.Instance.ID = id
	return id, nil
}
