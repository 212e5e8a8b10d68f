package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/soundcrowd/internal/config"
	"github.com/mantonx/soundcrowd/internal/database"
	"github.com/mantonx/soundcrowd/internal/events"
	"github.com/mantonx/soundcrowd/internal/logger"
	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule"
	"github.com/mantonx/soundcrowd/internal/modules/pluginmodule"
	"github.com/mantonx/soundcrowd/internal/server"
	"github.com/mantonx/soundcrowd/internal/utils"
)

func main() {
	configPath := flag.String("config", os.Getenv("SOUNDCROWD_CONFIG_PATH"), "path to soundcrowd.yaml")
	flag.Parse()

	if *configPath == "" {
		if _, err := os.Stat("./soundcrowd.yaml"); err == nil {
			*configPath = "./soundcrowd.yaml"
		}
	}

	cm := config.NewConfigManager()
	if err := cm.LoadConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := cm.GetConfig()

	log := logger.Init(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info("configuration loaded", "path", cm.ConfigPath())
	watchReload(cm, log)

	if err := run(cfg, log); err != nil {
		log.Error("soundcrowd exited with error", "error", err)
		os.Exit(1)
	}
}

// watchReload re-reads the configuration on SIGHUP. Only the log level is
// applied to the running process.
func watchReload(cm *config.ConfigManager, log hclog.Logger) {
	cm.AddWatcher(func(oldConfig, newConfig *config.Config) {
		if oldConfig.Logging.Level != newConfig.Logging.Level {
			log.SetLevel(hclog.LevelFromString(newConfig.Logging.Level))
			logger.Info("log level changed", "from", oldConfig.Logging.Level, "to", newConfig.Logging.Level)
		}
	})

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := cm.LoadConfig(cm.ConfigPath()); err != nil {
				log.Warn("configuration reload failed", "error", err)
			}
		}
	}()
}

func run(cfg *config.Config, log hclog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Initialize(cfg.Database, log)
	if err != nil {
		return err
	}
	defer database.Close(db)
	store := database.NewStore(db, log)

	executor := utils.NewExecutor(log)
	defer executor.Stop()

	bus := events.NewBus(events.DefaultBusConfig(), log)
	if err := bus.Start(); err != nil {
		return err
	}
	hub := events.NewHub(bus, log)
	stream := events.NewStream(bus, log)

	registry := pluginmodule.NewRegistry(
		pluginmodule.NewManifestDiscoverer(cfg.Plugins.Dir, cfg.Plugins.Allow, log),
		pluginmodule.NewBridge(cfg.Plugins, cfg.Logging.Level, executor, log),
		cfg.Plugins.Prefix,
		log.Named("registry"),
	)
	registry.OnPluginLoaded(func(d pluginmodule.Descriptor) {
		_ = bus.PublishAsync(events.Event{
			Type:    events.EventPluginLoaded,
			Source:  "registry",
			Title:   d.Name,
			Message: fmt.Sprintf("plugin %s %s loaded", d.Name, d.Version),
			Data:    map[string]interface{}{"id": d.ID, "categories": d.Categories},
		})
	})
	registry.Init(ctx)

	catalog := catalogmodule.NewCatalog(catalogmodule.Config{
		Local:    catalogmodule.NewFileSource(cfg.Catalog.LibraryDir, log),
		Plugins:  registry,
		Store:    store,
		Executor: executor,
		Events:   bus,
		PageSize: cfg.Catalog.PageSize,
	}, log)
	resolver := catalogmodule.NewResolver(catalog, registry, executor, cfg.Catalog.ResolveTimeout, log)

	// warm the root catalog in the background
	catalog.EnsureLoaded("root", catalogmodule.Options{})

	refresh := func() { catalog.Refresh() }

	var watcher *catalogmodule.LibraryWatcher
	if cfg.Catalog.WatchLibrary && cfg.Catalog.LibraryDir != "" {
		watcher, err = catalogmodule.NewLibraryWatcher(cfg.Catalog.LibraryDir, cfg.Catalog.WatchDebounce, refresh, log)
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			log.Warn("library watcher disabled", "error", err)
			watcher = nil
		}
	}

	var scheduler *catalogmodule.RefreshScheduler
	if cfg.Catalog.RefreshInterval > 0 {
		scheduler, err = catalogmodule.NewRefreshScheduler(cfg.Catalog.RefreshInterval, refresh, log)
		if err != nil {
			return fmt.Errorf("failed to schedule catalog refresh: %w", err)
		}
		scheduler.Start()
	}

	srv := server.New(cfg.Server, server.Dependencies{
		Catalog:  catalog,
		Resolver: resolver,
		Plugins:  registry,
		History:  store,
		DB:       store,
		Bus:      bus,
		Hub:      hub,
		Stream:   stream,
	}, log)
	if err := srv.Start(); err != nil {
		return err
	}
	_ = bus.PublishAsync(events.Event{Type: events.EventSystemStarted, Source: "host", Message: "soundcrowd started"})

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", "error", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Warn("library watcher shutdown error", "error", err)
		}
	}
	catalog.Close()
	registry.Shutdown()

	_ = bus.PublishAsync(events.Event{Type: events.EventSystemStopped, Source: "host", Message: "soundcrowd stopping"})
	hub.Close()
	stream.Close()
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("event bus shutdown error", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 5 * time.Second
}
