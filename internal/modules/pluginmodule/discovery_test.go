package pluginmodule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlugin(t *testing.T, root, dir, id string, enabled bool, executable bool) {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))

	manifest := fmt.Sprintf(`#Plugin: {
	id:          %q
	name:        "Plugin %s"
	version:     "1.0.0"
	description: "test plugin"
	enabled:     %t
	entry_points: {
		main: "provider"
	}
}
`, id, dir, enabled)
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, ManifestFile), []byte(manifest), 0o644))

	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "provider"), []byte("#!/bin/sh\n"), mode))
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest("plugin.cue", []byte(`
#Plugin: {
	id:      "soundcrowd.plugins.radio"
	version: "0.1.0"
	entry_points: main: "radio_provider"
}
`))
	require.NoError(t, err)
	assert.Equal(t, "soundcrowd.plugins.radio", m.ID)
	assert.Equal(t, "soundcrowd.plugins.radio", m.Name)
	assert.Equal(t, "radio_provider", m.EntryPoint())
	assert.True(t, m.IsEnabled())
}

func TestParseManifest_Invalid(t *testing.T) {
	cases := map[string]string{
		"syntax":         `#Plugin: {`,
		"no definition":  `plugin: { id: "x" }`,
		"no entry point": `#Plugin: { id: "x" }`,
		"no id":          `#Plugin: { entry_points: main: "x" }`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest("plugin.cue", []byte(src))
			assert.Error(t, err)
		})
	}
}

func TestManifestDiscoverer_Filters(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "a_radio", "soundcrowd.plugins.radio", true, true)
	writePlugin(t, root, "b_disabled", "soundcrowd.plugins.disabled", false, true)
	writePlugin(t, root, "c_foreign", "other.plugins.thing", true, true)
	writePlugin(t, root, "d_noexec", "soundcrowd.plugins.noexec", true, false)
	writePlugin(t, filepath.Join(root, "group"), "e_nested", "soundcrowd.plugins.nested", true, true)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "f_broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "f_broken", ManifestFile), []byte("#Plugin: {"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("not a plugin"), 0o644))

	d := NewManifestDiscoverer(root, nil, hclog.NewNullLogger())
	handles := d.Discover(context.Background(), "soundcrowd.plugins.")

	ids := make([]string, 0, len(handles))
	for _, h := range handles {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"soundcrowd.plugins.radio", "soundcrowd.plugins.nested"}, ids)
	assert.Equal(t, filepath.Join(root, "a_radio", "provider"), handles[0].EntryPoint)
	assert.Equal(t, "Plugin a_radio", handles[0].Name)
}

func TestManifestDiscoverer_AllowList(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "a", "soundcrowd.plugins.a", true, true)
	writePlugin(t, root, "b", "soundcrowd.plugins.b", true, true)

	d := NewManifestDiscoverer(root, []string{"soundcrowd.plugins.b"}, hclog.NewNullLogger())
	handles := d.Discover(context.Background(), "soundcrowd.plugins.")
	require.Len(t, handles, 1)
	assert.Equal(t, "soundcrowd.plugins.b", handles[0].ID)
}

func TestManifestDiscoverer_MissingDirectory(t *testing.T) {
	d := NewManifestDiscoverer(filepath.Join(t.TempDir(), "absent"), nil, hclog.NewNullLogger())
	assert.Empty(t, d.Discover(context.Background(), "soundcrowd.plugins."))
}
