// validate-plugins checks a plugin directory: every manifest must parse and,
// with -bridge, every discovered plugin must start and describe itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/soundcrowd/internal/config"
	"github.com/mantonx/soundcrowd/internal/modules/pluginmodule"
	"github.com/mantonx/soundcrowd/internal/utils"
)

func main() {
	dir := flag.String("dir", "./plugins", "plugin directory")
	prefix := flag.String("prefix", "soundcrowd.plugins.", "required plugin id prefix")
	bridge := flag.Bool("bridge", false, "start every plugin and call Describe")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := hclog.Warn
	if *verbose {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{Name: "validate-plugins", Level: level, Output: os.Stderr})

	failures := checkManifests(*dir)

	handles := pluginmodule.NewManifestDiscoverer(*dir, nil, logger).Discover(context.Background(), *prefix)
	fmt.Printf("discovered %d plugin(s) in %s\n", len(handles), *dir)
	for _, h := range handles {
		fmt.Printf("  %s %s (%s) -> %s\n", h.Name, h.Version, h.ID, h.EntryPoint)
	}

	if *bridge {
		failures += bridgeAll(handles, logger)
	}

	if failures > 0 {
		fmt.Printf("%d problem(s) found\n", failures)
		os.Exit(1)
	}
	fmt.Println("ok")
}

// checkManifests parses every manifest so broken ones are reported instead
// of silently skipped.
func checkManifests(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Printf("cannot read %s: %v\n", dir, err)
		return 1
	}

	failures := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), pluginmodule.ManifestFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := pluginmodule.LoadManifest(path)
		if err != nil {
			fmt.Printf("invalid manifest %s: %v\n", path, err)
			failures++
			continue
		}
		if !m.IsEnabled() {
			fmt.Printf("  %s is disabled\n", m.ID)
		}
	}
	return failures
}

func bridgeAll(handles []pluginmodule.ModuleHandle, logger hclog.Logger) int {
	executor := utils.NewExecutor(logger)
	defer executor.Stop()

	cfg := config.DefaultConfig().Plugins
	bridger := pluginmodule.NewBridge(cfg, "warn", executor, logger)

	failures := 0
	for _, h := range handles {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		p, err := bridger.Bridge(ctx, h)
		cancel()
		if err != nil {
			fmt.Printf("  FAIL %s: %v\n", h.ID, err)
			failures++
			continue
		}
		d := p.Descriptor()
		fmt.Printf("  ok   %s: categories=%v preferences=%d icon=%d bytes\n", d.Name, d.Categories, len(d.Preferences), len(d.Icon))
		if err := p.Close(); err != nil {
			logger.Warn("failed to stop plugin", "plugin", d.Name, "error", err)
		}
	}
	return failures
}
