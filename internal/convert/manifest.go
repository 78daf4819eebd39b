package convert

import (
	"fmt"
	"os"

	gojson "github.com/goccy/go-json"

	"github.com/samcharles93/psbkit/pkg/psb"
)

// Manifest records what a text tree does not: the header version and the
// platform the document targets. It sits next to the tree as
// <name>.resx.json.
type Manifest struct {
	Version     uint16          `json:"version"`
	Platform    psb.Spec        `json:"platform"`
	PixelFormat psb.PixelFormat `json:"pixel_format"`
	Extension   string          `json:"extension,omitempty"`
	Resources   ResourceMode    `json:"resources"`
	// ResourceDir is relative to the manifest.
	ResourceDir string `json:"resource_dir,omitempty"`
	Format      string `json:"format"`
}

// NewManifest describes doc as it is about to be exported.
func NewManifest(doc *psb.Document, format string, mode ResourceMode, resourceDir string) Manifest {
	return Manifest{
		Version:     doc.Header.Version,
		Platform:    doc.Platform(),
		PixelFormat: doc.Platform().PixelFormat(),
		Extension:   doc.Extension(),
		Resources:   mode,
		ResourceDir: resourceDir,
		Format:      format,
	}
}

// WriteManifest stores m as indented JSON.
func WriteManifest(path string, m Manifest) error {
	b, err := gojson.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := gojson.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%w: manifest %s: %v", ErrSyntax, path, err)
	}
	if _, ok := psb.HeaderLength(m.Version); !ok {
		return m, fmt.Errorf("%w: manifest %s: unsupported version %d", ErrSyntax, path, m.Version)
	}
	return m, nil
}
