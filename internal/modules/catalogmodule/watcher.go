package catalogmodule

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// LibraryWatcher watches the library directory tree and calls onChange once
// audio files have stopped changing for the debounce interval.
type LibraryWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	onChange func()
	logger   hclog.Logger

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLibraryWatcher creates a watcher over dir and its subdirectories.
func NewLibraryWatcher(dir string, debounce time.Duration, onChange func(), logger hclog.Logger) (*LibraryWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &LibraryWatcher{
		watcher:  watcher,
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.Named("watcher"),
		done:     make(chan struct{}),
	}, nil
}

// Start adds watches for the tree and starts the event loop.
func (w *LibraryWatcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to add watch for %s: %w", w.dir, err)
	}
	w.addRecursive(w.dir)

	w.wg.Add(1)
	go w.loop()
	w.logger.Info("watching library", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Stop closes the watcher and cancels a pending notification.
func (w *LibraryWatcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *LibraryWatcher) addRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("failed to add watch for subdirectory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *LibraryWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *LibraryWatcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// new directories need their own watch
			if err := w.watcher.Add(event.Name); err == nil {
				w.logger.Debug("watching new directory", "path", event.Name)
			}
			w.addRecursive(event.Name)
		}
	}
	if event.Has(fsnotify.Chmod) || !IsAudioFile(event.Name) && !event.Has(fsnotify.Remove) {
		return
	}

	w.logger.Trace("library change", "path", event.Name, "op", event.Op.String())
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.logger.Info("library changed, refreshing catalog", "dir", w.dir)
		w.onChange()
	})
}
