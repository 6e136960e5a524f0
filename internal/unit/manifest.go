package unit

import (
	"bytes"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
)

// ManifestFile is the name of the manifest every unit directory carries.
const ManifestFile = "unit.yaml"

// Manifest describes a unit and the content it ships.
type Manifest struct {
	Name    string         `yaml:"name"`
	Version string         `yaml:"version,omitempty"`
	Content []ContentEntry `yaml:"content,omitempty"`
}

// ContentEntry maps a directory or file inside the unit onto a repository
// path.
type ContentEntry struct {
	// Path is relative to the unit directory.
	Path string `yaml:"path"`
	// Target is the absolute repository path content is installed below.
	Target string `yaml:"target"`
	// Overwrite replaces existing nodes instead of leaving them alone.
	Overwrite bool `yaml:"overwrite,omitempty"`
	// Uninstall controls whether created nodes are removed when the unit
	// goes away. Defaults to true.
	Uninstall *bool `yaml:"uninstall,omitempty"`
	// Descriptors lists file extensions that must be parsed by a content
	// reader rather than stored as files.
	Descriptors []string `yaml:"descriptors,omitempty"`
}

// RemoveOnUninstall reports whether the entry's content is rolled back.
func (e ContentEntry) RemoveOnUninstall() bool {
	return e.Uninstall == nil || *e.Uninstall
}

// ParseManifest decodes and validates a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "invalid unit manifest").Build()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names and paths.
func (m *Manifest) Validate() error {
	if strings.ContainsAny(m.Name, "/\\") {
		return errors.ValidationError("unit name must not contain path separators").
			WithContext("name", m.Name).Build()
	}
	for i, e := range m.Content {
		if e.Path == "" || filepath.IsAbs(e.Path) || !filepath.IsLocal(e.Path) {
			return errors.ValidationError("content path must be relative to the unit directory").
				WithContext("index", i).WithContext("path", e.Path).Build()
		}
		if !strings.HasPrefix(e.Target, "/") || path.Clean(e.Target) != e.Target {
			return errors.ValidationError("content target must be an absolute clean repository path").
				WithContext("index", i).WithContext("target", e.Target).Build()
		}
	}
	return nil
}
