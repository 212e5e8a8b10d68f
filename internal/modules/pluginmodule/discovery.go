package pluginmodule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
)

// ManifestDiscoverer finds plugins by their plugin.cue manifests under a
// directory, one plugin per sub-directory (or one level deeper for grouped
// plugins).
type ManifestDiscoverer struct {
	dir    string
	allow  map[string]bool
	logger hclog.Logger
}

var _ Discoverer = (*ManifestDiscoverer)(nil)

// NewManifestDiscoverer creates a discoverer rooted at dir. A non-empty allow
// list restricts discovery to the listed plugin ids.
func NewManifestDiscoverer(dir string, allow []string, logger hclog.Logger) *ManifestDiscoverer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	d := &ManifestDiscoverer{dir: dir, logger: logger}
	if len(allow) > 0 {
		d.allow = make(map[string]bool, len(allow))
		for _, id := range allow {
			d.allow[strings.TrimSpace(id)] = true
		}
	}
	return d
}

// Discover returns a handle for every usable plugin whose id starts with
// prefix, in directory order. Problems are logged and skipped; discovery
// never fails as a whole.
func (d *ManifestDiscoverer) Discover(ctx context.Context, prefix string) []ModuleHandle {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		d.logFailure("read_plugin_dir", d.dir, err)
		return nil
	}

	handles := make([]ModuleHandle, 0)
	for _, entry := range entries {
		if ctx.Err() != nil {
			d.logFailure("discover", d.dir, ctx.Err())
			break
		}
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(d.dir, entry.Name())
		if fileExists(filepath.Join(pluginDir, ManifestFile)) {
			if h, ok := d.inspect(pluginDir, prefix); ok {
				handles = append(handles, h)
			}
			continue
		}

		// Grouped plugins, one level deeper
		subEntries, err := os.ReadDir(pluginDir)
		if err != nil {
			d.logger.Debug("failed to read plugin subdirectory", "path", pluginDir, "error", err)
			continue
		}
		for _, sub := range subEntries {
			subDir := filepath.Join(pluginDir, sub.Name())
			if !sub.IsDir() || !fileExists(filepath.Join(subDir, ManifestFile)) {
				continue
			}
			if h, ok := d.inspect(subDir, prefix); ok {
				handles = append(handles, h)
			}
		}
	}

	d.logger.Info("plugin discovery completed", "dir", d.dir, "discovered_count", len(handles))
	return handles
}

func (d *ManifestDiscoverer) inspect(pluginDir, prefix string) (ModuleHandle, bool) {
	manifest, err := LoadManifest(filepath.Join(pluginDir, ManifestFile))
	if err != nil {
		d.logFailure("parse_manifest", pluginDir, err)
		return ModuleHandle{}, false
	}

	if !strings.HasPrefix(manifest.ID, prefix) {
		d.logger.Debug("skipping plugin outside namespace", "plugin_id", manifest.ID, "prefix", prefix)
		return ModuleHandle{}, false
	}
	if !manifest.IsEnabled() {
		d.logger.Info("skipping disabled plugin", "plugin_id", manifest.ID)
		return ModuleHandle{}, false
	}
	if d.allow != nil && !d.allow[manifest.ID] {
		d.logger.Info("skipping plugin not in allow list", "plugin_id", manifest.ID)
		return ModuleHandle{}, false
	}

	entryPoint := manifest.EntryPoint()
	if !filepath.IsAbs(entryPoint) {
		entryPoint = filepath.Join(pluginDir, entryPoint)
	}
	if err := checkExecutable(entryPoint); err != nil {
		d.logFailure("check_entry_point", manifest.ID, err)
		return ModuleHandle{}, false
	}

	d.logger.Info("discovered plugin", "plugin_id", manifest.ID, "name", manifest.Name, "version", manifest.Version)
	return ModuleHandle{
		ID:          manifest.ID,
		Name:        manifest.Name,
		Version:     manifest.Version,
		Description: manifest.Description,
		Dir:         pluginDir,
		EntryPoint:  entryPoint,
	}, true
}

func (d *ManifestDiscoverer) logFailure(op, subject string, err error) {
	failure := apperrors.DiscoveryFailure(op, err).WithSubject(subject)
	d.logger.Warn("plugin discovery problem", "error", failure)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("entry point not found: %w", err)
	}
	if info.IsDir() {
		return errors.New("entry point is a directory")
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("entry point %s is not executable", path)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
