package installer

import (
	"encoding/base64"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"git.home.luguber.info/inful/contentloader/internal/repository"
)

// Properties written on file nodes.
const (
	PropData     = "data"
	PropMimeType = "mimeType"
	PropEncoding = "encoding"

	defaultMimeType = "application/octet-stream"
)

// MimeType guesses the MIME type of a file name from its extension.
func MimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case "":
		return defaultMimeType
	case ".md", ".markdown":
		return "text/markdown; charset=utf-8"
	case ".yaml", ".yml":
		return "application/yaml"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultMimeType
}

// fileProperties returns the properties of a file node. Content that is not
// valid UTF-8 is stored base64 encoded.
func fileProperties(name string, data []byte) map[string]repository.Value {
	props := map[string]repository.Value{
		PropMimeType: repository.StringValue(MimeType(name)),
	}
	if utf8.Valid(data) {
		props[PropData] = repository.StringValue(string(data))
		return props
	}
	props[PropData] = repository.StringValue(base64.StdEncoding.EncodeToString(data))
	props[PropEncoding] = repository.StringValue("base64")
	return props
}
