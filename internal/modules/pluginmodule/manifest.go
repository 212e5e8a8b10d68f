package pluginmodule

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ManifestFile is the name of the manifest inside each plugin directory.
const ManifestFile = "plugin.cue"

// Manifest is the #Plugin definition of a plugin.cue file:
//
//	#Plugin: {
//		id:          "soundcrowd.plugins.radio"
//		name:        "Radio"
//		version:     "1.0.0"
//		description: "Internet radio stations"
//		enabled:     true
//		entry_points: main: "radio_provider"
//	}
type Manifest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	EntryPoints map[string]string `json:"entry_points"`
}

// IsEnabled reports whether the manifest allows loading; absent means yes.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// EntryPoint returns the relative path of the main executable.
func (m *Manifest) EntryPoint() string {
	return m.EntryPoints["main"]
}

// ParseManifest evaluates CUE source and decodes its #Plugin definition.
func ParseManifest(filename string, data []byte) (*Manifest, error) {
	ctx := cuecontext.New()

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if value.Err() != nil {
		return nil, fmt.Errorf("error building CUE value: %w", value.Err())
	}

	pluginDef := value.LookupPath(cue.ParsePath("#Plugin"))
	if !pluginDef.Exists() {
		return nil, errors.New("#Plugin definition not found in CUE file")
	}

	var m Manifest
	if err := pluginDef.Decode(&m); err != nil {
		return nil, fmt.Errorf("error decoding #Plugin: %w", err)
	}

	if m.ID == "" {
		return nil, errors.New("manifest has no id")
	}
	if m.EntryPoint() == "" {
		return nil, fmt.Errorf("manifest %s has no entry_points.main", m.ID)
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(path, data)
}
